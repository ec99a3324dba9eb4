package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Lesson is one post-trade note fed back into future oracle prompts.
type Lesson struct {
	ID        int64
	Symbol    string
	Side      string
	PnLPct    float64
	Reason    string
	Text      string
	CreatedAt time.Time
}

// Recaller is what the decision gateway needs: the most recent lessons for a
// symbol, newest first.
type Recaller interface {
	Recall(ctx context.Context, symbol string, limit int) ([]Lesson, error)
}

// Recorder is what the position lifecycle needs after a close.
type Recorder interface {
	Record(ctx context.Context, lesson Lesson) error
}

// Store keeps lessons in their own sqlite database, separate from agent
// state, so wiping the state db does not amnesia the agent.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

var (
	_ Recaller = (*Store)(nil)
	_ Recorder = (*Store)(nil)
)

// Open opens or creates the lessons database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("memory: lessons path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Record(ctx context.Context, lesson Lesson) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("memory: store is closed")
	}
	symbol := strings.ToUpper(strings.TrimSpace(lesson.Symbol))
	if symbol == "" {
		return fmt.Errorf("memory: lesson requires a symbol")
	}
	if strings.TrimSpace(lesson.Text) == "" {
		return fmt.Errorf("memory: lesson requires text")
	}
	created := lesson.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO lessons(symbol, side, pnl_pct, reason, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, symbol, lesson.Side, lesson.PnLPct, lesson.Reason, lesson.Text, created.UnixMilli())
	return err
}

func (s *Store) Recall(ctx context.Context, symbol string, limit int) ([]Lesson, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("memory: store is closed")
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, symbol, side, pnl_pct, reason, text, created_at
		FROM lessons WHERE symbol = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		strings.ToUpper(strings.TrimSpace(symbol)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		var l Lesson
		var created int64
		if err := rows.Scan(&l.ID, &l.Symbol, &l.Side, &l.PnLPct, &l.Reason, &l.Text, &created); err != nil {
			return nil, err
		}
		l.CreatedAt = time.UnixMilli(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

func ensureSchema(db *sql.DB) error {
	stmt := `
	CREATE TABLE IF NOT EXISTS lessons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT,
		pnl_pct REAL,
		reason TEXT,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lessons_symbol ON lessons(symbol, created_at);
	`
	_, err := db.Exec(stmt)
	return err
}
