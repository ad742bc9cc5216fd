package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perth/internal/cache"
	"perth/internal/database"
	"perth/internal/snapshots"
)

func setupServer(t *testing.T) (*Server, *snapshots.Store, *cache.UniverseRepository) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	universe := cache.NewUniverseRepository(db.Conn(), zerolog.Nop())
	quotes := cache.NewQuoteRepository(db.Conn(), zerolog.Nop())
	store := snapshots.NewStore(db.Conn(), zerolog.Nop())

	srv := New(Config{Port: 0}, universe, quotes, store, nil, nil, zerolog.Nop())
	return srv, store, universe
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := setupServer(t)
	rec, body := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "cpu_percent")
	assert.Contains(t, body, "memory_percent")
}

func TestUniverseEndpoint(t *testing.T) {
	srv, _, universe := setupServer(t)
	require.NoError(t, universe.Upsert(cache.Security{Symbol: "AAPL", Name: "Apple", Sector: "Technology"}))
	require.NoError(t, universe.Upsert(cache.Security{Symbol: "XOM", Name: "Exxon", Sector: "Energy"}))

	rec, body := get(t, srv, "/api/universe")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, body = get(t, srv, "/api/universe?sector=Energy")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = get(t, srv, "/api/universe/sectors")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sectors"], 2)
}

func TestRiskEndpointsWithoutSnapshot(t *testing.T) {
	srv, _, _ := setupServer(t)
	rec, _ := get(t, srv, "/api/risk/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, srv, "/api/risk/covariance")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRiskAndAttributionEndpoints(t *testing.T) {
	srv, store, _ := setupServer(t)
	_, err := store.Save(&snapshots.Snapshot{
		ModelDate:     "2024-01-31",
		FactorNames:   []string{"sector_Technology", "composite_value"},
		Dates:         []string{"2024-01-30", "2024-01-31"},
		FactorReturns: [][]float64{{0.001, 0.002}, {0.002, -0.001}},
		Covariance:    [][]float64{{0.04, 0}, {0, 0.02}},
		SpecificRisk:  map[string]float64{"AAPL": 0.22},
		Exposures:     map[string][]float64{"AAPL": {1, 0.5}},
		Regime:        "normal",
		RegimeScale:   1,
	})
	require.NoError(t, err)

	rec, body := get(t, srv, "/api/risk/summary")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-31", body["model_date"])
	assert.Equal(t, "normal", body["regime"])

	rec, body = get(t, srv, "/api/risk/covariance")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "covariance")

	rec, body = get(t, srv, "/api/attribution/AAPL")
	assert.Equal(t, http.StatusOK, rec.Code)
	// Contributions: 1*0.003 + 0.5*0.001 = 0.0035 total factor return.
	assert.InDelta(t, 0.0035, body["factor_return"].(float64), 1e-12)

	rec, _ = get(t, srv, "/api/attribution/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshNotConfigured(t *testing.T) {
	srv, _, _ := setupServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
