package ports

import (
	"context"
	"io"
	"time"

	"mediafetch/internal/core/domain"
)

// ExtractionRequest is everything the engine needs for one call.
type ExtractionRequest struct {
	SourceURL      string
	Selector       string
	MergeContainer string
	Identity       domain.ExtractionIdentity
	CookieFile     string // empty for anonymous access
}

// Extractor defines the contract for the external extraction engine.
type Extractor interface {
	// Probe resolves metadata without downloading. When the selector resolves
	// to one progressive format, DirectURL is set.
	Probe(ctx context.Context, req ExtractionRequest) (*domain.ExtractionResult, error)

	// Download materializes the selected variant using outputTemplate.
	// The returned result has LocalArtifactPath set.
	Download(ctx context.Context, req ExtractionRequest, outputTemplate string) (*domain.ExtractionResult, error)
}

// Transcoder defines the contract for the external post-processor.
type Transcoder interface {
	// Available reports whether the transcoder binary can be executed.
	Available() bool

	// Apply runs one post-processing step from src to dst.
	Apply(ctx context.Context, step domain.PostProcessStep, src, dst string) error
}

// FetchRequest describes a streamed passthrough fetch.
type FetchRequest struct {
	URL        string
	Identity   domain.ExtractionIdentity
	Headers    map[string]string // engine-reported headers; win over Identity
	CookieFile string
	Range      string
}

// UpstreamStream is an open upstream response body and its metadata.
type UpstreamStream struct {
	Body          io.ReadCloser
	StatusCode    int
	ContentType   string
	ContentLength int64 // -1 when unknown
	ContentRange  string
}

// Fetcher defines the contract for streamed passthrough downloads.
type Fetcher interface {
	// Fetch opens the URL. The caller must close the returned body.
	Fetch(ctx context.Context, req FetchRequest) (*UpstreamStream, error)
}

// Workspace defines the contract for per-job scratch space.
type Workspace interface {
	// Acquire allocates a scratch directory no other job can share.
	Acquire(ctx context.Context) (domain.Scratch, error)

	// Release removes the scratch directory and everything in it.
	Release(s domain.Scratch) error
}

// CredentialSupplier resolves the optional cookie jar used for extraction.
type CredentialSupplier interface {
	// Resolve returns the cookie file path, or ok=false for anonymous access.
	Resolve() (path string, ok bool)
}

// IdentityRotator hands out outbound identities and pacing delays.
type IdentityRotator interface {
	Next() domain.ExtractionIdentity
	Pace(ctx context.Context) (time.Duration, error)
}
