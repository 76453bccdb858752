package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New("test")
	require.NoError(t, err)
	return l
}

const samplePage = `<!DOCTYPE html>
<html><head>
<title>Vector Clocks Explained</title>
<meta name="description" content="A primer on logical time.">
</head><body>
<nav>Home | About</nav>
<script>var tracking = 1;</script>
<article>
<h1>Vector Clocks</h1>
<p>Logical clocks order events without wall time.</p>
<p>See <a href="https://example.org/lamport.pdf">Lamport's paper</a> for the origin.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestExtractHTML(t *testing.T) {
	title, desc, text := extractHTML([]byte(samplePage))
	assert.Equal(t, "Vector Clocks Explained", title)
	assert.Equal(t, "A primer on logical time.", desc)
	assert.Contains(t, text, "Logical clocks order events")
	assert.NotContains(t, text, "var tracking")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Copyright")
}

func TestExtractHTMLTitleFallsBackToH1(t *testing.T) {
	title, _, _ := extractHTML([]byte(`<html><body><h1>Only Heading</h1><p>body</p></body></html>`))
	assert.Equal(t, "Only Heading", title)
}

func TestExtractAnchors(t *testing.T) {
	anchors := ExtractAnchors([]byte(samplePage), 40)
	require.Len(t, anchors, 1)
	assert.Equal(t, "https://example.org/lamport.pdf", anchors[0].Href)
	assert.Equal(t, "Lamport's paper", anchors[0].Text)
	assert.Contains(t, anchors[0].Context, "See Lamport's paper")
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name        string
		url         string
		contentType string
		raw         []byte
		want        string
	}{
		{"content type wins", "https://a/b", "text/html; charset=utf-8", []byte("%PDF-1.4"), "html"},
		{"url extension", "https://a/paper.pdf?dl=1", "", []byte("xx"), "pdf"},
		{"magic pdf", "https://a/b", "", []byte("%PDF-1.7 rest"), "pdf"},
		{"magic html", "https://a/b", "", []byte("  <!doctype html><html>"), "html"},
		{"plain text", "https://a/b", "", []byte("just some notes\n"), "text"},
		{"binary", "https://a/b", "application/octet-stream", []byte{0x00, 0x01, 0x02}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectFormat(tc.url, tc.contentType, tc.raw))
		})
	}
}

func TestFetchStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(samplePage))
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	e := New(testLogger(t), 5*time.Second)
	ctx := context.Background()

	res, err := e.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "html", res.Format)
	assert.Equal(t, "Vector Clocks Explained", res.Title)

	_, err = e.Fetch(ctx, srv.URL+"/gone")
	assert.True(t, apierr.IsKind(err, apierr.KindExtractionError))
	assert.False(t, apierr.Transient(err))

	_, err = e.Fetch(ctx, srv.URL+"/down")
	assert.True(t, apierr.IsKind(err, apierr.KindFetchError))
	assert.True(t, apierr.Transient(err))
}

func TestCapText(t *testing.T) {
	long := strings.Repeat("a", maxTextBytes+10)
	capped := capText(long)
	assert.Len(t, capped, maxTextBytes+len(truncationMarker))
	assert.True(t, strings.HasSuffix(capped, truncationMarker))
}

func TestScanURLs(t *testing.T) {
	urls := ScanURLs("see https://example.com/a, and http://b.io/x. done")
	assert.Equal(t, []string{"https://example.com/a", "http://b.io/x"}, urls)
}

func TestPDFFallbackScan(t *testing.T) {
	raw := []byte("\x00\x01garbage https://example.com/ref more readable text\x02\x03")
	out := pdfFallbackScan(raw)
	assert.Contains(t, out, "https://example.com/ref")
	assert.Contains(t, out, "readable text")
}
