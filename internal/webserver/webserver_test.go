package webserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertwitch/zipmount/internal/filesystem"
	"github.com/desertwitch/zipmount/internal/logging"
	"github.com/desertwitch/zipmount/internal/testutil"
	"github.com/desertwitch/zipmount/internal/zipfs"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func testDashboard(t *testing.T, out io.Writer) *FSDashboard {
	t.Helper()

	tnow := time.Now()
	zipPath := testutil.CreateZip(t, t.TempDir(), "test.zip", []testutil.Member{
		{Path: "a.txt", ModTime: tnow, Content: []byte("abcd")},
		{Path: "dir/b.txt", ModTime: tnow, Content: []byte("<b>")},
	})

	rbf := logging.NewRingBuffer(10, out)

	core, err := zipfs.Load(zipPath, nil, rbf)
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	fsys, err := filesystem.NewFS(core, rbf)
	require.NoError(t, err)

	dash, err := NewFSDashboard(fsys, rbf, "gotests")
	require.NoError(t, err)

	return dash
}

// Expectation: NewFSDashboard should fail on missing arguments.
func Test_NewFSDashboard_Error(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	_, err := NewFSDashboard(nil, dash.rbuf, "gotests")
	require.ErrorIs(t, err, errInvalidArgument)

	_, err = NewFSDashboard(dash.fsys, nil, "gotests")
	require.ErrorIs(t, err, errInvalidArgument)
}

// Expectation: Serve should return a valid HTTP server pointer.
func Test_Serve_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	srv := dash.Serve("127.0.0.1:0")
	require.NotNil(t, srv)
	require.NotEmpty(t, srv.Addr)

	defer srv.Close()
}

// Expectation: dashboardMux should register all expected routes.
func Test_dashboardMux_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	router := dash.dashboardMux()

	testCases := []struct {
		path   string
		method string
	}{
		{"/", http.MethodGet},
		{"/metrics.json", http.MethodGet},
		{"/gc", http.MethodGet},
		{"/reset", http.MethodGet},
		{"/set/verbose/false", http.MethodGet},
	}

	for _, tc := range testCases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		require.NotEqual(t, http.StatusNotFound, w.Code, "Route %s should exist", tc.path)
	}

	req := httptest.NewRequest(http.MethodGet, "/logo.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

// Expectation: dashboardHandler should render the dashboard with correct data.
func Test_dashboardHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.version = "test-version"
	dash.rbuf.Println("test log entry <script>")

	dash.fsys.Core().Metrics.OpenStreams.Store(1)
	dash.fsys.Core().Metrics.TotalOpenedStreams.Store(100)
	dash.fsys.Core().Metrics.TotalClosedStreams.Store(99)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	dash.dashboardHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := w.Body.String()
	require.Contains(t, body, "test-version")
	require.Contains(t, body, "test log entry &lt;script&gt;")
	require.NotContains(t, body, "<script>")
	require.Contains(t, body, "100 / 99")
	require.Contains(t, body, "200 MB")
	require.Contains(t, body, "stream")
}

// Expectation: metricsHandler should return JSON with current metrics.
func Test_metricsHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	dash.version = "test-metrics-version"
	dash.rbuf.Println("metrics test log entry")

	data, err := dash.fsys.Core().Read("dir/b.txt", 10, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("<b>"), data)

	req := httptest.NewRequest(http.MethodGet, "/metrics.json", nil)
	w := httptest.NewRecorder()

	dash.metricsHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got fsDashboardData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	require.Equal(t, "test-metrics-version", got.Version)
	require.Equal(t, dash.fsys.Core().ArchivePath(), got.Archive)
	require.Equal(t, "stream", got.CachePolicy)
	require.Equal(t, "dir/b.txt", got.CachedPath)
	require.Equal(t, "Never", got.CacheTTL)
	require.Equal(t, 2, got.Files)
	require.Equal(t, 1, got.Directories)
	require.Equal(t, int64(1), got.OpenStreams)
	require.Equal(t, int64(1), got.TotalExtracts)
	require.Equal(t, "3 B", got.TotalExtractBytes)
	require.Contains(t, strings.Join(got.Logs, "\n"), "metrics test log entry")
	require.Equal(t, 10, got.RingBufferSize)
}

// Expectation: gcHandler should force garbage collection and return success message.
func Test_gcHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	req := httptest.NewRequest(http.MethodGet, "/gc", nil)
	w := httptest.NewRecorder()

	dash.gcHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	require.Contains(t, w.Body.String(), "GC forced")
	require.Contains(t, dash.rbuf.Lines()[len(dash.rbuf.Lines())-1], "GC forced via API")
}

// Expectation: resetMetricsHandler should reset all metrics but the open streams.
func Test_resetMetricsHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	m := dash.fsys.Core().Metrics
	m.Errors.Store(3)
	m.OpenStreams.Store(1)
	m.TotalOpenedStreams.Store(7)
	m.TotalCacheHits.Store(5)
	m.TotalExtractBytes.Store(1024)

	req := httptest.NewRequest(http.MethodGet, "/reset", nil)
	w := httptest.NewRecorder()

	dash.resetMetricsHandler(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, w.Body.String(), "Metrics reset.")

	require.Zero(t, m.Errors.Load())
	require.Zero(t, m.TotalOpenedStreams.Load())
	require.Zero(t, m.TotalCacheHits.Load())
	require.Zero(t, m.TotalExtractBytes.Load())
	require.Equal(t, int64(1), m.OpenStreams.Load())
}

// Expectation: verboseHandler should toggle verbose logging.
func Test_verboseHandler_Success(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	req := httptest.NewRequest(http.MethodGet, "/set/verbose/true", nil)
	req = mux.SetURLVars(req, map[string]string{"value": "true"})
	w := httptest.NewRecorder()

	dash.verboseHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Verbose logging set: true.")
	require.True(t, dash.rbuf.Verbose())

	req = mux.SetURLVars(req, map[string]string{"value": "false"})
	w = httptest.NewRecorder()

	dash.verboseHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, dash.rbuf.Verbose())
}

// Expectation: verboseHandler should reject values that are not booleans.
func Test_verboseHandler_Invalid_Error(t *testing.T) {
	t.Parallel()
	dash := testDashboard(t, io.Discard)

	req := httptest.NewRequest(http.MethodGet, "/set/verbose/maybe", nil)
	req = mux.SetURLVars(req, map[string]string{"value": "maybe"})
	w := httptest.NewRecorder()

	dash.verboseHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Invalid boolean value")
	require.False(t, dash.rbuf.Verbose())
}
