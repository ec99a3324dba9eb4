package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentra/internal/store"
)

func testServer(t *testing.T) (*Server, *store.MemoryStore, string) {
	t.Helper()
	ms := store.NewMemoryStore(10000)
	dir := t.TempDir()
	s, err := NewServer(ServerConfig{Store: ms, SignalsDir: dir})
	require.NoError(t, err)
	return s, ms, dir
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doRequest(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStateEndpoint(t *testing.T) {
	s, ms, _ := testServer(t)
	st, _ := ms.Load(context.Background())
	st.SetPosition(store.Position{Symbol: "BTC/USDT", Side: "LONG", EntryPrice: 100})
	require.NoError(t, ms.Save(context.Background(), st))

	rec := doRequest(s, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var got store.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 10000.0, got.AccountBalance)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, "BTC/USDT", got.Positions[0].Symbol)
}

func TestCloseEndpointWritesSentinel(t *testing.T) {
	s, _, dir := testServer(t)

	rec := doRequest(s, http.MethodPost, "/api/positions/BTC-USDT/close")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	_, err := os.Stat(filepath.Join(dir, "CLOSE_BTC_USDT.req"))
	assert.NoError(t, err)
}

func TestCloseEndpointRejectsGarbage(t *testing.T) {
	s, _, dir := testServer(t)

	rec := doRequest(s, http.MethodPost, "/api/positions/garbage/close")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKillSwitchEndpoint(t *testing.T) {
	s, _, dir := testServer(t)

	rec := doRequest(s, http.MethodPost, "/api/killswitch")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	_, err := os.Stat(filepath.Join(dir, "STOP_REQUEST"))
	assert.NoError(t, err)
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(ServerConfig{SignalsDir: "x"})
	assert.Error(t, err)
	_, err = NewServer(ServerConfig{Store: store.NewMemoryStore(0)})
	assert.Error(t, err)
}
