// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	acceptPDF      = "application/pdf,text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.5"

	// maxLandingPage caps how much of an HTML response is parsed.
	maxLandingPage = 4 << 20
)

var (
	errNotPDF = errors.New("response is not a pdf")
	errWrite  = errors.New("saving download")
)

// attempt is the identity a candidate pass presents to publishers.
type attempt struct {
	source    string
	cookie    string
	userAgent string
}

// fetchPDF requests u and, when the response is a PDF, streams it to dest.
// The request deadline covers both headers and body.
func (e *Engine) fetchPDF(ctx context.Context, client *http.Client, a attempt, u, dest string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.get(ctx, client, a, u)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if isPDF(resp) {
		return saveBody(e.fs, dest, resp.Body)
	}
	if !e.cfg.FollowLandingPages || !isHTML(resp) {
		return 0, fmt.Errorf("%w: HTTP %d, %q", errNotPDF, resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	link, err := citationPDFURL(resp)
	if err != nil {
		return 0, err
	}
	e.log.Debug("following citation_pdf_url", zap.String("url", link))

	pdf, err := e.get(ctx, client, a, link)
	if err != nil {
		return 0, err
	}
	defer pdf.Body.Close()
	if !isPDF(pdf) {
		return 0, fmt.Errorf("%w: landing link HTTP %d, %q", errNotPDF, pdf.StatusCode, pdf.Header.Get("Content-Type"))
	}
	return saveBody(e.fs, dest, pdf.Body)
}

func (e *Engine) get(ctx context.Context, client *http.Client, a attempt, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	if a.cookie != "" {
		req.Header.Set("Cookie", a.cookie)
	}
	req.Header.Set("Accept", acceptPDF)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	return resp, nil
}

func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func isPDF(resp *http.Response) bool {
	return isSuccess(resp) && strings.Contains(resp.Header.Get("Content-Type"), "application/pdf")
}

func isHTML(resp *http.Response) bool {
	return isSuccess(resp) && strings.Contains(resp.Header.Get("Content-Type"), "text/html")
}

// citationPDFURL extracts the Highwire citation_pdf_url meta tag from an
// HTML landing page, resolved against the final response URL.
func citationPDFURL(resp *http.Response) (string, error) {
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxLandingPage))
	if err != nil {
		return "", fmt.Errorf("parsing landing page: %w", err)
	}
	content, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content")
	content = strings.TrimSpace(content)
	if !ok || content == "" {
		return "", fmt.Errorf("%w: landing page has no citation_pdf_url", errNotPDF)
	}
	ref, err := url.Parse(content)
	if err != nil {
		return "", fmt.Errorf("%w: bad citation_pdf_url %q", errNotPDF, content)
	}
	if resp.Request != nil && resp.Request.URL != nil {
		ref = resp.Request.URL.ResolveReference(ref)
	}
	return ref.String(), nil
}

// saveBody writes body to dest. Failures reading the body are transport
// errors; anything else is reported as errWrite.
func saveBody(fsys afero.Fs, dest string, body io.Reader) (int64, error) {
	r := &bodyReader{r: body}
	n, err := writeAtomic(fsys, dest, r)
	if err != nil {
		if r.err != nil {
			return 0, fmt.Errorf("reading body: %w", r.err)
		}
		return 0, fmt.Errorf("%w: %w", errWrite, err)
	}
	return n, nil
}

// bodyReader remembers the first read error other than io.EOF.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

// writeAtomic streams r into a temp file beside path and renames it into
// place, so readers never observe a partial file.
func writeAtomic(fsys afero.Fs, path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fsys, dir, ".acquire-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		fsys.Remove(tmpPath)
		return 0, fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		fsys.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		fsys.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}
