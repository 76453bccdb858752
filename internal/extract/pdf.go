package extract

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return collapseWhitespace(string(b)), nil
}

var pdfTextRun = regexp.MustCompile(`[\x20-\x7E]{4,}`)

// pdfFallbackScan pulls printable runs straight out of the raw bytes when the
// primary engine chokes on the file. Lossy, but it keeps URLs and body
// fragments available for citation scanning.
func pdfFallbackScan(data []byte) string {
	runs := pdfTextRun.FindAll(data, -1)
	if len(runs) == 0 {
		return ""
	}
	return collapseWhitespace(string(bytes.Join(runs, []byte(" "))))
}

// PDFAnnotationURLs pulls link targets out of each page's /Annots array.
// Link annotations carry no textual URL in the body, so the plain-text scan
// alone misses them. Malformed files yield nil; the reader panics on some
// corrupt inputs, hence the recover.
func PDFAnnotationURLs(data []byte) (urls []string) {
	defer func() {
		if recover() != nil {
			urls = nil
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil
	}
	seen := map[string]struct{}{}
	for i := 1; i <= r.NumPage(); i++ {
		annots := r.Page(i).V.Key("Annots")
		if annots.Kind() != pdf.Array {
			continue
		}
		for j := 0; j < annots.Len(); j++ {
			uri := annots.Index(j).Key("A").Key("URI")
			if uri.Kind() != pdf.String {
				continue
			}
			u := uri.RawString()
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>()"'\]\[{}|\\^` + "`" + `]+`)

// ScanURLs finds bare URLs in extracted text, trimming trailing punctuation.
func ScanURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		for len(m) > 0 {
			switch m[len(m)-1] {
			case '.', ',', ';', ':', '!', '?':
				m = m[:len(m)-1]
				continue
			}
			break
		}
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}
