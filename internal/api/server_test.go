// SPDX-License-Identifier: Apache-2.0

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/88dreams/SheetGPT-sub005/internal/api"
	"github.com/88dreams/SheetGPT-sub005/internal/cache"
	"github.com/88dreams/SheetGPT-sub005/internal/engine"
	"github.com/88dreams/SheetGPT-sub005/internal/rules"
)

func newServer() *api.Server {
	p := engine.NewPipeline(rules.Default(), engine.WithCache(cache.NewMemory(time.Minute, time.Minute), time.Minute))
	return api.NewServer(":0", p, zap.NewNop())
}

func do(t *testing.T, srv *api.Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func TestHealthEndpoint(t *testing.T) {
	w, body := do(t, newServer(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["entities"], 8)
}

func TestNotFoundEndpoint(t *testing.T) {
	w, _ := do(t, newServer(), http.MethodGet, "/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtractEndpoint(t *testing.T) {
	srv := newServer()
	body := `{"message_id":"m1","content":"Teams ---DATA--- {\"headers\":[\"Team Name\",\"City\"],\"rows\":[[\"Lakers\",\"LA\"]]} __STREAM_COMPLETE__"}`

	w, got := do(t, srv, http.MethodPost, "/api/v1/extract", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, got["found"])
	assert.Equal(t, false, got["cached"])
	assert.Equal(t, "Teams", got["prose"])

	records, ok := got["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"id": "row-0", "#": float64(1), "Team Name": "Lakers", "City": "LA"}, records[0])

	w, got = do(t, srv, http.MethodPost, "/api/v1/extract", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, got["cached"])
}

func TestNormalizeEndpoint(t *testing.T) {
	w, got := do(t, newServer(), http.MethodPost, "/api/v1/normalize",
		`{"data":{"headers":["A","B","C"],"rows":[[1,2,3],[4,5,6],[7,8,9]]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, true, got["transposed"])
	tbl := got["table"].(map[string]any)
	assert.Equal(t, []any{"A", "B", "C"}, tbl["headers"])
	assert.Equal(t, []any{
		[]any{float64(1), float64(4), float64(7)},
		[]any{float64(2), float64(5), float64(8)},
		[]any{float64(3), float64(6), float64(9)},
	}, tbl["rows"])
}

func TestClassifyEndpoint(t *testing.T) {
	w, got := do(t, newServer(), http.MethodPost, "/api/v1/classify",
		`{"fields":["team_name","team_city","team_league_id"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	c := got["classification"].(map[string]any)
	assert.Equal(t, true, c["is_match"])
	assert.Equal(t, "team", c["entity_type"])
}

func TestRecommendEndpoint(t *testing.T) {
	w, got := do(t, newServer(), http.MethodPost, "/api/v1/recommend",
		`{"fields":["Team Name","City","League","Arena"],"entity_type":"team"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, map[string]any{
		"Team Name": "name",
		"City":      "city",
		"League":    "league_id",
		"Arena":     "stadium_id",
	}, got["mapping"])
	assert.Equal(t, []any{}, got["missing_required"])
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		wantErr string
	}{
		{"malformed body", "/api/v1/extract", `{"content":`, "invalid JSON"},
		{"missing content", "/api/v1/extract", `{}`, "content is required"},
		{"blank content", "/api/v1/extract", `{"content":"   "}`, "content is required"},
		{"missing data", "/api/v1/normalize", `{}`, "data is required"},
		{"empty fields", "/api/v1/classify", `{"fields":[]}`, "fields must have at least 1 entries"},
		{"missing entity type", "/api/v1/recommend", `{"fields":["a"]}`, "entity_type is required"},
		{"unknown entity type", "/api/v1/recommend", `{"fields":["a"],"entity_type":"spaceship"}`, "unknown entity type"},
	}

	srv := newServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, got := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, got["error"], tt.wantErr)
		})
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newServer().Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
