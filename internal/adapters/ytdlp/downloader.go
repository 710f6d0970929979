package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediafetch/internal/core/domain"
	"mediafetch/internal/core/ports"
)

// Options configures the engine. Zero values fall back to sane defaults.
type Options struct {
	Binary        string
	Timeout       time.Duration // materializing download
	ProbeTimeout  time.Duration
	Retries       int // passed to yt-dlp --retries
	ProbeRetries  int // extra probe attempts on transient failures
	SocketTimeout int
	SleepInterval int
	CABundle      string
	CookieDir     string // where per-call cookie copies live
}

// runner executes a command and returns its captured output.
type runner func(ctx context.Context, binary string, args, env []string) (stdout, stderr []byte, err error)

// YtDlpDownloader implements ports.Extractor with the yt-dlp binary.
type YtDlpDownloader struct {
	opts    Options
	run     runner
	backoff time.Duration
	logger  zerolog.Logger
}

// NewYtDlpDownloader creates a new downloader.
func NewYtDlpDownloader(opts Options, logger zerolog.Logger) *YtDlpDownloader {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Minute
	}
	if opts.CookieDir == "" {
		opts.CookieDir = os.TempDir()
	}
	return &YtDlpDownloader{
		opts:    opts,
		run:     execRun,
		backoff: time.Second,
		logger:  logger.With().Str("component", "ytdlp").Logger(),
	}
}

// Available reports whether the binary is on PATH.
func (d *YtDlpDownloader) Available() bool {
	_, err := exec.LookPath(d.opts.Binary)
	return err == nil
}

// Version returns the engine version string.
func (d *YtDlpDownloader) Version(ctx context.Context) (string, error) {
	out, _, err := d.run(ctx, d.opts.Binary, []string{"--version"}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Probe fetches metadata for the selector without downloading. Transient
// failures are retried here, inside the engine boundary, with linear backoff.
func (d *YtDlpDownloader) Probe(ctx context.Context, req ports.ExtractionRequest) (*domain.ExtractionResult, error) {
	var lastErr error
	for attempt := 0; attempt <= d.opts.ProbeRetries; attempt++ {
		if attempt > 0 {
			d.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Str("url", req.SourceURL).Msg("retrying probe")
			select {
			case <-ctx.Done():
				return nil, domain.NewError(domain.KindInternal, ctx.Err())
			case <-time.After(time.Duration(attempt) * d.backoff):
			}
		}
		res, err := d.probeOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (d *YtDlpDownloader) probeOnce(ctx context.Context, req ports.ExtractionRequest) (*domain.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.ProbeTimeout)
	defer cancel()

	cookie, cleanup, err := d.cookieCopy(req.CookieFile)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, err)
	}
	defer cleanup()

	args := append(d.commonArgs(req, cookie), "--dump-single-json", "--", req.SourceURL)
	out, stderr, err := d.run(ctx, d.opts.Binary, args, d.env())
	if err != nil {
		return nil, classify(ctx, err, string(stderr))
	}

	var info infoJSON
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, domain.NewError(domain.KindInternal, fmt.Errorf("parse yt-dlp info: %w", err))
	}
	if info.Type == "playlist" {
		return nil, domain.NewError(domain.KindUpstreamUnavailable, fmt.Errorf("playlist URLs are not supported"))
	}
	if info.Title == "" {
		return nil, domain.NewError(domain.KindUpstreamUnavailable, fmt.Errorf("yt-dlp returned no title"))
	}
	return info.toResult(), nil
}

// Download materializes the selection into outputTemplate's directory and
// reports the final file path.
func (d *YtDlpDownloader) Download(ctx context.Context, req ports.ExtractionRequest, outputTemplate string) (*domain.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	cookie, cleanup, err := d.cookieCopy(req.CookieFile)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, err)
	}
	defer cleanup()

	args := d.commonArgs(req, cookie)
	if req.MergeContainer != "" {
		args = append(args, "--merge-output-format", req.MergeContainer)
	}
	if d.opts.SleepInterval > 0 {
		args = append(args, "--sleep-interval", strconv.Itoa(d.opts.SleepInterval))
	}
	args = append(args,
		"--no-part",
		"-o", outputTemplate,
		"--print", "after_move:filepath",
		"--", req.SourceURL,
	)

	start := time.Now()
	out, stderr, err := d.run(ctx, d.opts.Binary, args, d.env())
	if err != nil {
		return nil, classify(ctx, err, string(stderr))
	}

	path := extractFilePath(string(out), outputTemplate)
	if path == "" {
		return nil, domain.NewError(domain.KindArtifactValidation, fmt.Errorf("could not determine downloaded file path"))
	}
	d.logger.Debug().Str("path", path).Dur("took", time.Since(start)).Msg("yt-dlp download complete")
	return &domain.ExtractionResult{LocalArtifactPath: path}, nil
}

func (d *YtDlpDownloader) commonArgs(req ports.ExtractionRequest, cookieFile string) []string {
	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--no-cache-dir",
		"-f", req.Selector,
	}
	if d.opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(d.opts.Retries))
	}
	if d.opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(d.opts.SocketTimeout))
	}

	id := req.Identity
	if id.UserAgent != "" {
		args = append(args, "--user-agent", id.UserAgent)
	}
	for _, name := range []string{"Accept-Language", "Referer", "Origin", "Sec-Fetch-Dest", "Sec-Fetch-Mode", "Sec-Fetch-Site", "DNT"} {
		if v, ok := id.Headers()[name]; ok {
			args = append(args, "--add-header", name+":"+v)
		}
	}
	if id.ThrottleBytesPerSec > 0 {
		args = append(args, "--limit-rate", strconv.FormatInt(id.ThrottleBytesPerSec, 10))
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	return args
}

func (d *YtDlpDownloader) env() []string {
	if d.opts.CABundle == "" {
		return nil
	}
	return []string{"SSL_CERT_FILE=" + d.opts.CABundle, "REQUESTS_CA_BUNDLE=" + d.opts.CABundle}
}

// cookieCopy hands yt-dlp a private copy of the jar: yt-dlp rewrites the
// --cookies file on exit, and the shared jar must stay read-only to jobs.
func (d *YtDlpDownloader) cookieCopy(src string) (string, func(), error) {
	if src == "" {
		return "", func() {}, nil
	}
	in, err := os.Open(src)
	if err != nil {
		return "", nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(d.opts.CookieDir, "cookies-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("create cookie copy: %w", err)
	}
	cleanup := func() { _ = os.Remove(out.Name()) }
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		cleanup()
		return "", nil, fmt.Errorf("copy cookie file: %w", err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close cookie copy: %w", err)
	}
	return out.Name(), cleanup, nil
}

// skippedExtensions are engine leftovers, never final artifacts.
var skippedExtensions = []string{".part", ".ytdl", ".temp", ".txt"}

// extractFilePath prefers the path yt-dlp printed; otherwise it globs the
// output template's directory for the job's files.
func extractFilePath(output, outputTemplate string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		if _, err := os.Stat(line); err == nil {
			return line
		}
	}

	pattern := strings.Replace(outputTemplate, "%(ext)s", "*", 1)
	matches, _ := filepath.Glob(pattern)
	for _, m := range matches {
		if !hasSkippedExt(m) {
			return m
		}
	}
	return ""
}

func hasSkippedExt(path string) bool {
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func execRun(ctx context.Context, binary string, args, env []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	err := cmd.Run()
	return out.Bytes(), stderr.Bytes(), err
}
