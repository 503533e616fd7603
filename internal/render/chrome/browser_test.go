package chrome

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

const testPage = `<!doctype html>
<html><head><style>body { margin: 0 } .block { width: 900px; height: 1500px; background: #eee }</style></head>
<body>
<header id="top">Header</header>
<div class="block"><span class="stat" data-target="42">0</span></div>
<script>setTimeout(function() { document.querySelector('.stat').textContent = '42'; }, 300);</script>
</body></html>`

// requireChrome skips browser-backed tests when no Chrome binary is installed
func requireChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("chrome not installed")
	return ""
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_CaptureAgainstChrome(t *testing.T) {
	execPath := requireChrome(t)
	srv := testServer(t)

	config := DefaultConfig()
	config.ExecPath = execPath
	renderer, err := NewRenderer(config, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := renderer.Open(ctx)
	require.NoError(t, err)
	defer session.Close()
	assert.EqualValues(t, 1, renderer.Live())

	t.Run("status follows redirects", func(t *testing.T) {
		status, err := session.Navigate(ctx, srv.URL+"/moved", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("not found status is reported", func(t *testing.T) {
		status, err := session.Navigate(ctx, srv.URL+"/missing", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("full capture emits one page", func(t *testing.T) {
		policy := capture.NewPolicy(
			capture.NetworkIdle(5*time.Second),
			capture.AnimatedCounterSettle(".stat", 3*time.Second, 50*time.Millisecond),
			capture.HideSelectors("header"),
		)
		res := capture.Capture(ctx, session, capture.Request{
			URL:      srv.URL + "/page",
			Policy:   policy,
			WidthCap: 800,
		}, zap.NewNop())

		require.True(t, res.OK(), "failure: %+v", res.Failure)
		assert.Equal(t, 800, res.Success.Box.Width)
		assert.GreaterOrEqual(t, res.Success.Box.Height, 1500)
		assert.True(t, bytes.HasPrefix(res.Success.Document, []byte("%PDF")))

		pages, err := api.PageCount(bytes.NewReader(res.Success.Document), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, pages)
	})

	require.NoError(t, session.Close())
	assert.EqualValues(t, 0, renderer.Live())

	_, err = session.Navigate(ctx, srv.URL+"/page", time.Second)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
