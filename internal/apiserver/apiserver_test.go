package apiserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/blendlab/internal/analysis"
)

const blendCSV = "ID,Component1_fraction,BlendProperty1,BlendProperty2\n" +
	"b1,0.2,10,20\n" +
	"b2,0.6,12,18\n"

func newTestServer() *Server {
	return New(analysis.DefaultOptions(), zerolog.Nop(), true)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestHealth(t *testing.T) {
	w, out := do(t, newTestServer(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, false, out["reference_loaded"])
}

func TestCorrelationEndpoint(t *testing.T) {
	s := newTestServer()
	w, out := do(t, s, http.MethodPost, "/correlation", blendCSV)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Component1_fraction", "BlendProperty1", "BlendProperty2"}, out["columns"])

	w, out = do(t, s, http.MethodPost, "/correlation", "a,b\n1,x\n2,y\n")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, out["error"], "not enough data")

	w, _ = do(t, s, http.MethodPost, "/correlation", "\n\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectionAndSummary(t *testing.T) {
	s := newTestServer()
	w, out := do(t, s, http.MethodPost, "/projection", blendCSV)
	require.Equal(t, http.StatusOK, w.Code)
	pts, _ := out["points"].([]any)
	require.Len(t, pts, 2)
	assert.Equal(t, "ID: b1", pts[0].(map[string]any)["label"])

	w, out = do(t, s, http.MethodPost, "/summary", blendCSV)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), out["rows"])
	assert.Equal(t, []any{"Component1_fraction"}, out["components"])
}

func TestAnalyzeNotEnoughData(t *testing.T) {
	w, out := do(t, newTestServer(), http.MethodPost, "/analyze?name=mixed.csv", "a,b\n1,x\n")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["not_enough_data"])
	assert.Equal(t, "mixed.csv", out["name"])
}

func TestReferenceAndMatch(t *testing.T) {
	s := newTestServer()
	w, _ := do(t, s, http.MethodPost, "/match", `{"targets":{"1":10}}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, out := do(t, s, http.MethodPost, "/reference?name=ref.csv", blendCSV)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{float64(1), float64(2)}, out["properties"])

	w, out = do(t, s, http.MethodGet, "/reference", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ref.csv", out["name"])

	w, out = do(t, s, http.MethodPost, "/match", `{"targets":{"1":11,"2":19}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), out["index"])
	assert.Equal(t, float64(1), out["score"])
	row, _ := out["row"].(map[string]any)
	assert.Equal(t, "b1", row["ID"])

	w, _ = do(t, s, http.MethodPost, "/match", `{"targets":{"11":1}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, s, http.MethodPost, "/match", `{"targets":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, s, http.MethodPost, "/match", `{"targets":{"5":1}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidate(t *testing.T) {
	s := newTestServer()
	w, out := do(t, s, http.MethodPost, "/validate", "ID,Component1_fracton\n")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["valid"])
	res := out["result"].(map[string]any)
	sugg := res["suggestions"].(map[string]any)
	assert.Equal(t, []any{"Component1_fracton"}, sugg["Component1_fraction"])

	w, _ = do(t, s, http.MethodPost, "/validate?kind=bogus", "ID\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, s, http.MethodPost, "/validate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: cannot open local listener (%v)", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	s := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
