// Package fetch extracts the readable body of a web page.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// MinTextLength is the shortest extraction accepted as a page body.
const MinTextLength = 100

const maxBodyBytes = 5 << 20

// ErrNoContent is returned when a page yields no usable text.
var ErrNoContent = errors.New("no extractable content")

// HTTPError is returned for 4xx/5xx responses. Further requests to the same
// host are refused for the lifetime of the fetcher.
type HTTPError struct {
	Code int
	Host string
}

func (e *HTTPError) Error() string {
	return e.Host + ": " + http.StatusText(e.Code)
}

// ContentFetcher fetches full page text via HTTP + readability extraction.
type ContentFetcher struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(timeout time.Duration, userAgent string, log *zap.Logger) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:     userAgent,
		log:           log,
		failedDomains: make(map[string]struct{}),
	}
}

// Text downloads pageURL and returns its main text.
func (f *ContentFetcher) Text(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", errors.Wrapf(err, "parsing %s", pageURL)
	}
	host := strings.ToLower(u.Host)
	if f.hostFailed(host) {
		return "", errors.Newf("skipping %s: host failed earlier", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "fetching %s", pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		f.markFailed(host)
		f.log.Warn("HTTP error, skipping remaining pages from host",
			zap.String("url", pageURL), zap.Int("status", resp.StatusCode))
		return "", &HTTPError{Code: resp.StatusCode, Host: host}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", pageURL)
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return "", errors.Wrapf(err, "extracting %s", pageURL)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < MinTextLength {
		return "", ErrNoContent
	}
	return text, nil
}

func (f *ContentFetcher) hostFailed(host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, failed := f.failedDomains[host]
	return failed
}

func (f *ContentFetcher) markFailed(host string) {
	if host == "" {
		return
	}
	f.mu.Lock()
	f.failedDomains[host] = struct{}{}
	f.mu.Unlock()
}
