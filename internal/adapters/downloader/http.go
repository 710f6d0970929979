package downloader

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"mediafetch/internal/core/domain"
	"mediafetch/internal/core/ports"
)

// HTTPDownloader implements ports.Fetcher: it streams a resolved media URL
// from the origin with the job's identity and credentials attached.
type HTTPDownloader struct {
	transport http.RoundTripper
	logger    zerolog.Logger
}

// Options configures the outbound transport.
type Options struct {
	CABundle              string
	ResponseHeaderTimeout time.Duration
}

// NewHTTPDownloader creates a new HTTPDownloader.
func NewHTTPDownloader(opts Options, logger zerolog.Logger) (*HTTPDownloader, error) {
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = 30 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
	if opts.CABundle != "" {
		pem, err := os.ReadFile(opts.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", opts.CABundle)
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &HTTPDownloader{
		transport: tr,
		logger:    logger.With().Str("component", "passthrough").Logger(),
	}, nil
}

// ignoredEngineHeaders are owned by the transport, the cookie jar or the
// range request, never by the engine's header hints.
var ignoredEngineHeaders = map[string]struct{}{
	"Accept-Encoding": {},
	"Cookie":          {},
	"Range":           {},
	"Host":            {},
	"Content-Length":  {},
}

// Fetch opens the upstream stream. Videos can be large, so there is no
// overall client timeout; the caller's context bounds the transfer.
func (d *HTTPDownloader) Fetch(ctx context.Context, fr ports.FetchRequest) (*ports.UpstreamStream, error) {
	client, err := d.client(fr.CookieFile)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fr.URL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, fmt.Errorf("failed to create request: %w", err))
	}
	for k, v := range fr.Identity.Headers() {
		req.Header.Set(k, v)
	}
	// Signed media URLs can be bound to the client they were minted for.
	for k, v := range fr.Headers {
		if _, skip := ignoredEngineHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		req.Header.Set(k, v)
	}
	if fr.Range != "" {
		req.Header.Set("Range", fr.Range)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	default:
		resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode)
	}

	d.logger.Debug().
		Int("status", resp.StatusCode).
		Int64("content_length", resp.ContentLength).
		Str("range", fr.Range).
		Msg("upstream stream opened")

	return &ports.UpstreamStream{
		Body:          resp.Body,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		ContentRange:  resp.Header.Get("Content-Range"),
	}, nil
}

// client builds a per-call client so one job's cookies never leak into another's.
func (d *HTTPDownloader) client(cookieFile string) (*http.Client, error) {
	c := &http.Client{Transport: d.transport}
	if cookieFile == "" {
		return c, nil
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if err := LoadNetscapeJar(jar, cookieFile); err != nil {
		return nil, err
	}
	c.Jar = jar
	return c, nil
}

func classifyStatus(code int) error {
	err := fmt.Errorf("unexpected status code: %d", code)
	switch {
	case code == http.StatusForbidden, code == http.StatusUnauthorized, code == http.StatusTooManyRequests:
		return domain.NewError(domain.KindUpstreamDenied, err)
	case code == http.StatusNotFound, code == http.StatusGone:
		return domain.NewError(domain.KindUpstreamUnavailable, err)
	case code == http.StatusRequestedRangeNotSatisfiable:
		return &domain.JobError{Kind: domain.KindInvalidRequest, Message: "Requested range not satisfiable", Err: err}
	case code >= 500:
		return domain.NewError(domain.KindUpstreamTransient, err)
	default:
		return domain.NewError(domain.KindInternal, err)
	}
}

func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.NewError(domain.KindInternal, fmt.Errorf("passthrough cancelled: %w", ctx.Err()))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewError(domain.KindUpstreamTransient, err)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return domain.NewError(domain.KindUpstreamTransient, err)
	}
	return domain.NewError(domain.KindInternal, fmt.Errorf("failed to download video: %w", err))
}
