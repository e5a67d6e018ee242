package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivoronin/dupevid/internal/scan"
	"github.com/ivoronin/dupevid/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedSampler struct{ cpu, mem float64 }

func (s fixedSampler) CPUPercent(context.Context) (float64, error)    { return s.cpu, nil }
func (s fixedSampler) MemoryPercent(context.Context) (float64, error) { return s.mem, nil }

// heldSampler blocks hashing at its first chunk until released.
type heldSampler struct {
	once    sync.Once
	release chan struct{}
}

func (s *heldSampler) CPUPercent(ctx context.Context) (float64, error) {
	select {
	case <-s.release:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *heldSampler) MemoryPercent(context.Context) (float64, error) { return 0, nil }

func (s *heldSampler) Release() { s.once.Do(func() { close(s.release) }) }

// statusBody decodes the fields tests look at.
type statusBody struct {
	Phase           scan.Phase                    `json:"phase"`
	TotalFiles      int64                         `json:"total_files"`
	ProcessedFiles  int64                         `json:"processed_files"`
	CancelRequested bool                          `json:"cancel_requested"`
	DuplicateGroups map[string][]types.FileRecord `json:"duplicate_groups"`
	Progress        float64                       `json:"progress"`
}

func videoDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"one.mp4":     "duplicate payload",
		"two.mkv":     "duplicate payload",
		"three.webm":  "unique payload",
		"ignored.txt": "duplicate payload",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestServer(t *testing.T, opts scan.ControllerOptions, defaults Defaults) (*Server, *scan.Controller) {
	t.Helper()
	if opts.Sampler == nil {
		opts.Sampler = fixedSampler{}
	}
	ctrl := scan.NewController(opts)
	t.Cleanup(ctrl.Close)
	return New(ctrl, fixedSampler{cpu: 12.5, mem: 40}, defaults), ctrl
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func waitDone(t *testing.T, ctrl *scan.Controller) scan.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := ctrl.Wait(ctx)
	require.NoError(t, err)
	return s
}

func TestGetScan_Idle(t *testing.T) {
	s, _ := newTestServer(t, scan.ControllerOptions{}, Defaults{})

	w, body := do(t, s, http.MethodGet, "/api/scan", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", body["phase"])
	assert.InDelta(t, 0, body["progress"], 0.001)
}

func TestStartScan_Completes(t *testing.T) {
	dir := videoDir(t)
	s, ctrl := newTestServer(t, scan.ControllerOptions{}, Defaults{})

	w, body := do(t, s, http.MethodPost, "/api/scan/start", `{"roots":["`+dir+`"],"workers":2}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEqual(t, "idle", body["phase"])

	waitDone(t, ctrl)

	w, _ = do(t, s, http.MethodGet, "/api/scan", "")
	var status statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, scan.Completed, status.Phase)
	assert.Equal(t, int64(3), status.TotalFiles)
	assert.Equal(t, int64(3), status.ProcessedFiles)
	assert.InDelta(t, 100, status.Progress, 0.001)
	assert.Len(t, status.DuplicateGroups, 1)
}

func TestStartScan_DefaultRoots(t *testing.T) {
	dir := videoDir(t)
	s, ctrl := newTestServer(t, scan.ControllerOptions{}, Defaults{
		Roots:      []string{filepath.Join(dir, "missing"), dir},
		Extensions: []string{".mp4"},
	})

	w, _ := do(t, s, http.MethodPost, "/api/scan/start", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	state := waitDone(t, ctrl)
	assert.Equal(t, scan.Completed, state.Phase)
	assert.Equal(t, int64(1), state.TotalFiles, "only .mp4 from the default extensions")
}

func TestStartScan_BadBody(t *testing.T) {
	s, _ := newTestServer(t, scan.ControllerOptions{}, Defaults{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"roots":`},
		{"wrong type", `{"workers":"many"}`},
		{"ceiling out of range", `{"cpu_ceiling":150}`},
		{"negative batch", `{"batch_size":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, s, http.MethodPost, "/api/scan/start", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestControl_Lifecycle(t *testing.T) {
	dir := videoDir(t)
	sampler := &heldSampler{release: make(chan struct{})}
	defer sampler.Release()
	s, ctrl := newTestServer(t, scan.ControllerOptions{Sampler: sampler}, Defaults{})

	w, _ := do(t, s, http.MethodPost, "/api/scan/start", `{"roots":["`+dir+`"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w, body := do(t, s, http.MethodPost, "/api/scan/start", `{"roots":["`+dir+`"]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "scan already in progress", body["error"])

	w, body = do(t, s, http.MethodPost, "/api/scan/pause", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", body["phase"])

	w, body = do(t, s, http.MethodPost, "/api/scan/pause", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "paused", body["phase"])

	w, body = do(t, s, http.MethodPost, "/api/scan/resume", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "scanning", body["phase"])

	w, body = do(t, s, http.MethodPost, "/api/scan/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["cancel_requested"])

	sampler.Release()
	assert.Equal(t, scan.Cancelled, waitDone(t, ctrl).Phase)

	w, _ = do(t, s, http.MethodPost, "/api/scan/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestControl_RejectedWhenIdle(t *testing.T) {
	s, _ := newTestServer(t, scan.ControllerOptions{}, Defaults{})

	for _, op := range []string{"pause", "resume", "cancel"} {
		w, body := do(t, s, http.MethodPost, "/api/scan/"+op, "")
		assert.Equal(t, http.StatusConflict, w.Code, op)
		assert.Equal(t, "cannot "+op+" while idle", body["error"])
	}
}

func TestGetSystem(t *testing.T) {
	s, _ := newTestServer(t, scan.ControllerOptions{}, Defaults{})

	w, body := do(t, s, http.MethodGet, "/api/system", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 12.5, body["cpu_percent"], 0.001)
	assert.InDelta(t, 40, body["memory_percent"], 0.001)
}

func TestEvents_StreamsSnapshots(t *testing.T) {
	dir := videoDir(t)
	s, _ := newTestServer(t, scan.ControllerOptions{Buffer: 1000}, Defaults{})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/scan/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var first statusBody
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, scan.Idle, first.Phase, "a new stream starts with the current snapshot")

	startResp, err := http.Post(srv.URL+"/api/scan/start", "application/json",
		bytes.NewReader([]byte(`{"roots":["`+dir+`"]}`)))
	require.NoError(t, err)
	_ = startResp.Body.Close()
	require.Equal(t, http.StatusAccepted, startResp.StatusCode)

	var last statusBody
	for !last.Phase.Terminal() {
		require.NoError(t, conn.ReadJSON(&last))
	}
	assert.Equal(t, scan.Completed, last.Phase)
	assert.Len(t, last.DuplicateGroups, 1)
}

func TestEvents_UnsubscribesOnClose(t *testing.T) {
	s, _ := newTestServer(t, scan.ControllerOptions{}, Defaults{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/scan/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	var first statusBody
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.Close())

	// The handler notices the close on its read loop and returns;
	// a second connection must still be served normally.
	conn2, resp2, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn2.Close() }()
	if resp2 != nil && resp2.Body != nil {
		_ = resp2.Body.Close()
	}
	require.NoError(t, conn2.ReadJSON(&first))
	assert.Equal(t, scan.Idle, first.Phase)
}

func TestNewStatus(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	st := NewStatus(scan.State{
		Phase:          scan.Completed,
		StartedAt:      start,
		FinishedAt:     start.Add(30 * time.Second),
		TotalFiles:     4,
		ProcessedFiles: 3,
	})
	assert.InDelta(t, 75, st.ProgressPercent, 0.001)
	assert.InDelta(t, 30, st.ElapsedSeconds, 0.001)
}
