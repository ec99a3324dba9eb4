package override

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentra/internal/logger"
	symbolpkg "agentra/internal/pkg/symbol"

	"github.com/fsnotify/fsnotify"
)

const (
	killFileName = "STOP_REQUEST"
	closePrefix  = "CLOSE_"
	closeSuffix  = ".req"

	rescanInterval = 5 * time.Second
)

// Registry surfaces operator sentinel files dropped into the signals
// directory. A CLOSE_<SYMBOL>.req file requests a manual close of one
// position; a STOP_REQUEST file arms the kill switch. Each sentinel is
// consumed exactly once: Consume deletes the file, so a crash between
// detection and consumption re-arms the request on restart rather than
// losing it.
type Registry struct {
	dir     string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	closes map[string]string // internal symbol -> sentinel path
	killOn bool
}

func New(dir string) (*Registry, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("override: signals dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	r := &Registry{
		dir:     dir,
		watcher: watcher,
		closes:  make(map[string]string),
	}
	if err := r.rescan(); err != nil {
		watcher.Close()
		return nil, err
	}
	return r, nil
}

// Run drives the watcher until the context ends. A periodic rescan backs up
// the event stream; files dropped while the watcher hiccups are still found.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	defer r.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 {
				r.absorb(filepath.Base(event.Name))
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("[override] watcher error: %v", err)
		case <-ticker.C:
			if err := r.rescan(); err != nil {
				logger.Warnf("[override] rescan failed: %v", err)
			}
		}
	}
}

// KillPending reports whether the kill switch is armed.
func (r *Registry) KillPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killOn
}

// ConsumeKill disarms the kill switch and removes its sentinel.
func (r *Registry) ConsumeKill() error {
	r.mu.Lock()
	armed := r.killOn
	r.killOn = false
	r.mu.Unlock()
	if !armed {
		return nil
	}
	return removeSentinel(filepath.Join(r.dir, killFileName))
}

// PendingClose reports whether a manual close was requested for the symbol.
func (r *Registry) PendingClose(symbol string) bool {
	key := symbolKey(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.closes[key]
	return ok
}

// PendingCloses returns all symbols with an outstanding close request.
func (r *Registry) PendingCloses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.closes))
	for sym := range r.closes {
		out = append(out, sym)
	}
	return out
}

// ConsumeClose clears the request and removes its sentinel file.
func (r *Registry) ConsumeClose(symbol string) error {
	key := symbolKey(symbol)
	r.mu.Lock()
	path, ok := r.closes[key]
	delete(r.closes, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return removeSentinel(path)
}

func (r *Registry) rescan() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		r.absorb(entry.Name())
	}
	return nil
}

func (r *Registry) absorb(name string) {
	if name == killFileName {
		r.mu.Lock()
		if !r.killOn {
			r.killOn = true
			logger.Warnf("[override] kill switch armed")
		}
		r.mu.Unlock()
		return
	}
	sym, ok := parseCloseRequest(name)
	if !ok {
		return
	}
	r.mu.Lock()
	if _, seen := r.closes[sym]; !seen {
		r.closes[sym] = filepath.Join(r.dir, name)
		logger.Infof("[override] manual close requested for %s", sym)
	}
	r.mu.Unlock()
}

// parseCloseRequest maps CLOSE_BTC_USDT.req (or CLOSE_BTCUSDT.req) to the
// internal BTC/USDT form.
func parseCloseRequest(name string) (string, bool) {
	if !strings.HasPrefix(name, closePrefix) || !strings.HasSuffix(name, closeSuffix) {
		return "", false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, closePrefix), closeSuffix)
	raw = strings.ReplaceAll(raw, "_", "/")
	sym := symbolpkg.Normalize(raw)
	if sym == "" {
		sym = symbolpkg.Normalize(strings.ReplaceAll(raw, "/", ""))
	}
	return sym, sym != ""
}

func symbolKey(symbol string) string {
	if sym := symbolpkg.Normalize(symbol); sym != "" {
		return sym
	}
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func removeSentinel(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
