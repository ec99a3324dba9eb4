package apihttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentra/internal/logger"
	symbolpkg "agentra/internal/pkg/symbol"
	"agentra/internal/store"

	"github.com/gin-gonic/gin"
)

// Server is the thin operational surface: read-only state plus the two
// override signals. It writes sentinel files only; the engine consumes them.
type Server struct {
	addr       string
	router     *gin.Engine
	store      store.Store
	signalsDir string
}

type ServerConfig struct {
	Addr       string
	Store      store.Store
	SignalsDir string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("http server requires a state store")
	}
	if strings.TrimSpace(cfg.SignalsDir) == "" {
		return nil, errors.New("http server requires a signals dir")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: cfg.Addr, router: router, store: cfg.Store, signalsDir: cfg.SignalsDir}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.GET("/state", s.handleState)
	api.POST("/positions/:symbol/close", s.handleClose)
	api.POST("/killswitch", s.handleKillSwitch)
	return s, nil
}

func (s *Server) Addr() string { return s.addr }

// Start serves until the context is cancelled, then drains with a short
// shutdown window.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleState(c *gin.Context) {
	st, err := s.store.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleClose drops a CLOSE_<SYMBOL>.req sentinel. The engine acts on it at
// the start of its next cycle.
func (s *Server) handleClose(c *gin.Context) {
	raw := strings.ReplaceAll(c.Param("symbol"), "-", "/")
	sym := symbolpkg.Parse(raw)
	if sym.Internal() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized symbol"})
		return
	}
	name := fmt.Sprintf("CLOSE_%s_%s.req", sym.Base, sym.Quote)
	if err := s.writeSentinel(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "close requested", "symbol": sym.Internal()})
}

func (s *Server) handleKillSwitch(c *gin.Context) {
	if err := s.writeSentinel("STOP_REQUEST"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "kill switch armed"})
}

func (s *Server) writeSentinel(name string) error {
	if err := os.MkdirAll(s.signalsDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.signalsDir, name), []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
