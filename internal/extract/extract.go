// Package extract fetches a URL and turns the payload into plain text plus a
// detected format. Extraction is deterministic: identical bytes always
// produce identical text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

const (
	maxRedirects = 5
	maxBodyBytes = 32 << 20 // raw download cap
	// Extracted text cap per the ingestion contract; excess is truncated
	// with a marker.
	maxTextBytes        = 5 << 20
	truncationMarker    = " …[truncated]"
	DefaultFetchTimeout = 15 * time.Second
)

type Result struct {
	RawBytes    []byte
	ContentType string
	Text        string
	Title       string
	Description string
	Format      string
	FetchStatus int
}

type Extractor struct {
	client *http.Client
	log    *logger.Logger
}

func New(baseLog *logger.Logger, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Extractor{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		log: baseLog.With("component", "Extractor"),
	}
}

// Fetch downloads and extracts a URL. 4xx responses are permanent
// (extraction error kinds); network failures and 5xx are transient fetch
// errors the pipeline may retry.
func (e *Extractor) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apierr.New(apierr.KindValidation, fmt.Errorf("bad url %q: %w", url, err))
	}
	req.Header.Set("User-Agent", "neo-alexandria/1.0 (+knowledge archiver)")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.New(apierr.KindTimeout, err)
		}
		return nil, apierr.New(apierr.KindFetchError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apierr.Newf(apierr.KindFetchError, "upstream returned %d for %s", resp.StatusCode, url)
	}
	if resp.StatusCode >= 400 {
		return nil, apierr.Newf(apierr.KindExtractionError, "upstream returned %d for %s", resp.StatusCode, url)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apierr.New(apierr.KindFetchError, err)
	}

	res, err := e.Extract(url, resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return nil, err
	}
	res.FetchStatus = resp.StatusCode
	return res, nil
}

// Extract runs format detection and per-format extraction over raw bytes.
// Detection order: Content-Type header, URL suffix, magic bytes.
func (e *Extractor) Extract(url, contentType string, raw []byte) (*Result, error) {
	if len(raw) == 0 {
		return nil, apierr.Newf(apierr.KindExtractionError, "empty payload from %s", url)
	}

	format := detectFormat(url, contentType, raw)
	res := &Result{
		RawBytes:    raw,
		ContentType: contentType,
		Format:      format,
	}

	switch format {
	case "html":
		title, desc, text := extractHTML(raw)
		res.Title, res.Description, res.Text = title, desc, text
	case "pdf":
		text, err := extractPDF(raw)
		if err != nil {
			// Secondary engine: regex scan over raw bytes.
			text = pdfFallbackScan(raw)
			if text == "" {
				return nil, apierr.New(apierr.KindExtractionError, err)
			}
			e.log.Warn("pdf engine failed, used fallback scan", "url", url, "error", err)
		}
		res.Text = text
	case "markdown", "text":
		res.Text = collapseWhitespace(string(raw))
	default:
		return nil, apierr.Newf(apierr.KindExtractionError, "unsupported format for %s (content-type %q)", url, contentType)
	}

	res.Text = capText(res.Text)
	return res, nil
}

func detectFormat(url, contentType string, raw []byte) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "text/html", "application/xhtml+xml":
		return "html"
	case "application/pdf":
		return "pdf"
	case "text/markdown":
		return "markdown"
	case "text/plain":
		return "text"
	}

	switch strings.ToLower(path.Ext(strippedPath(url))) {
	case ".html", ".htm":
		return "html"
	case ".pdf":
		return "pdf"
	case ".md", ".markdown":
		return "markdown"
	case ".txt":
		return "text"
	}

	switch {
	case isPDF(raw):
		return "pdf"
	case looksLikeHTML(raw):
		return "html"
	case isProbablyText(raw):
		return "text"
	}
	return ""
}

func strippedPath(url string) string {
	s := url
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func capText(s string) string {
	if len(s) <= maxTextBytes {
		return s
	}
	return s[:maxTextBytes] + truncationMarker
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
