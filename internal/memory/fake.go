package memory

import (
	"context"
	"strings"
	"sync"
)

// FakeStore is an in-memory Recaller/Recorder for tests.
type FakeStore struct {
	mu      sync.Mutex
	lessons []Lesson
}

var (
	_ Recaller = (*FakeStore)(nil)
	_ Recorder = (*FakeStore)(nil)
)

func NewFakeStore() *FakeStore { return &FakeStore{} }

func (f *FakeStore) Record(_ context.Context, lesson Lesson) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lesson.ID = int64(len(f.lessons) + 1)
	lesson.Symbol = strings.ToUpper(strings.TrimSpace(lesson.Symbol))
	f.lessons = append(f.lessons, lesson)
	return nil
}

func (f *FakeStore) Recall(_ context.Context, symbol string, limit int) ([]Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var out []Lesson
	for i := len(f.lessons) - 1; i >= 0 && len(out) < limit; i-- {
		if f.lessons[i].Symbol == symbol {
			out = append(out, f.lessons[i])
		}
	}
	return out, nil
}
