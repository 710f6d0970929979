// Package identity varies the outbound browser persona and inserts human-ish
// pauses before upstream requests. It lowers the odds of tripping bot checks;
// nothing downstream depends on it for correctness or security.
package identity

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"mediafetch/internal/core/domain"
)

// Bucket is a pacing range chosen with relative Weight.
type Bucket struct {
	Min    time.Duration
	Max    time.Duration
	Weight int
}

// DefaultBuckets favour short waits: mostly short, sometimes medium, rarely long.
var DefaultBuckets = []Bucket{
	{Min: 500 * time.Millisecond, Max: 2 * time.Second, Weight: 60},
	{Min: 2 * time.Second, Max: 4 * time.Second, Weight: 30},
	{Min: 4 * time.Second, Max: 6 * time.Second, Weight: 10},
}

// Throttle bounds for the per-job engine download rate, in bytes per second.
const (
	MinThrottle = 800_000
	MaxThrottle = 1_200_000
)

type profile struct {
	name           string
	userAgent      string
	acceptLanguage string
}

var profiles = []profile{
	{"chrome-windows", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36", "en-US,en;q=0.9"},
	{"firefox-windows", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0", "en-US,en;q=0.5"},
	{"safari-macos", "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15", "en-US,en;q=0.9"},
	{"chrome-macos", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36", "en-GB,en;q=0.9,en-US;q=0.8"},
	{"edge-windows", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0", "en-US,en;q=0.9"},
	{"chrome-linux", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36", "en-US,en;q=0.8"},
}

// Rotator implements ports.IdentityRotator.
type Rotator struct {
	referer string
	origin  string
	buckets []Bucket
	total   int
	sleep   func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customises a Rotator.
type Option func(*Rotator)

// WithBuckets replaces the pacing distribution. An empty slice disables pacing.
func WithBuckets(b []Bucket) Option {
	return func(r *Rotator) { r.buckets = b }
}

// WithRand fixes the random source, for reproducible tests.
func WithRand(rng *rand.Rand) Option {
	return func(r *Rotator) { r.rng = rng }
}

// WithSleeper replaces the context-aware sleep.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Rotator) { r.sleep = fn }
}

// WithSite sets the Referer/Origin presented upstream.
func WithSite(origin string) Option {
	return func(r *Rotator) {
		r.origin = origin
		r.referer = origin + "/"
	}
}

// NewRotator creates a new Rotator.
func NewRotator(opts ...Option) *Rotator {
	r := &Rotator{
		referer: "https://www.youtube.com/",
		origin:  "https://www.youtube.com",
		buckets: DefaultBuckets,
		sleep:   sleepCtx,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, b := range r.buckets {
		r.total += b.Weight
	}
	return r
}

// Next draws a fresh identity for one job.
func (r *Rotator) Next() domain.ExtractionIdentity {
	r.mu.Lock()
	p := profiles[r.rng.IntN(len(profiles))]
	dnt := r.rng.IntN(4) == 0
	throttle := MinThrottle + r.rng.Int64N(MaxThrottle-MinThrottle+1)
	r.mu.Unlock()

	return domain.ExtractionIdentity{
		Profile:             p.name,
		UserAgent:           p.userAgent,
		AcceptLanguage:      p.acceptLanguage,
		AcceptEncoding:      "gzip, deflate, br",
		Referer:             r.referer,
		Origin:              r.origin,
		SecFetchDest:        "empty",
		SecFetchMode:        "cors",
		SecFetchSite:        "same-site",
		DNT:                 dnt,
		ThrottleBytesPerSec: throttle,
	}
}

// Delay draws one pacing interval without sleeping.
func (r *Rotator) Delay() time.Duration {
	if r.total <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	pick := r.rng.IntN(r.total)
	for _, b := range r.buckets {
		if pick < b.Weight {
			span := b.Max - b.Min
			if span <= 0 {
				return b.Min
			}
			return b.Min + time.Duration(r.rng.Int64N(int64(span)+1))
		}
		pick -= b.Weight
	}
	return 0
}

// Pace sleeps for a drawn interval, returning early if ctx is done.
func (r *Rotator) Pace(ctx context.Context) (time.Duration, error) {
	d := r.Delay()
	if d <= 0 {
		return 0, ctx.Err()
	}
	return d, r.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
