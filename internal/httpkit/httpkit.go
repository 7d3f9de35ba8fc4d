// Package httpkit builds the HTTP clients the model providers talk
// through and classifies their error responses.
package httpkit

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/kith/internal/buildinfo"
)

// Response header timeouts. A model may think for a long time before
// the first byte; a local one may also have to load first.
const (
	LocalHeaderTimeout  = 5 * time.Minute
	HostedHeaderTimeout = 2 * time.Minute
)

// errorBodyLimit caps how much of an error response is kept.
const errorBodyLimit = 4 << 10

// Options configure NewClient.
type Options struct {
	// HeaderTimeout bounds the wait for response headers. Zero means
	// HostedHeaderTimeout.
	HeaderTimeout time.Duration

	// Logger, when set, receives one debug record per round trip.
	Logger *slog.Logger
}

// NewClient returns a client with no overall timeout: every model call
// carries its own context deadline.
func NewClient(opts Options) *http.Client {
	header := opts.HeaderTimeout
	if header <= 0 {
		header = HostedHeaderTimeout
	}
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: header,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: &stamped{base: base, agent: buildinfo.UserAgent(), logger: opts.Logger},
	}
}

// stamped sets the kith User-Agent on every request.
type stamped struct {
	base   http.RoundTripper
	agent  string
	logger *slog.Logger
}

func (s *stamped) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", s.agent)

	start := time.Now()
	resp, err := s.base.RoundTrip(req)
	if s.logger != nil {
		attrs := []any{"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "elapsed", time.Since(start)}
		if resp != nil {
			attrs = append(attrs, "status", resp.StatusCode)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		s.logger.Debug("provider round trip", attrs...)
	}
	return resp, err
}

// APIError is a non-2xx reply from a model provider.
type APIError struct {
	Provider string
	Status   int
	Body     string // at most 4 KiB
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// CheckResponse returns nil for a 2xx response. Otherwise it reads the
// start of the body, closes it and returns an *APIError.
func CheckResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	Discard(resp)
	text := strings.TrimSpace(string(body))
	if err != nil {
		text = fmt.Sprintf("(unreadable body: %v)", err)
	}
	return &APIError{Provider: provider, Status: resp.StatusCode, Body: text}
}

// Discard drains a bounded amount of the body and closes it so the
// connection goes back to the pool.
func Discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	resp.Body.Close()
}
