package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"mediafetch/internal/core/domain"
)

// Markers are matched case-insensitively against yt-dlp's stderr. Order
// matters: a bot check often co-occurs with "unavailable" wording, and must win.
var (
	deniedMarkers = []string{
		"sign in to confirm",
		"not a bot",
		"confirm your age",
		"sign in to view",
		"login required",
		"use --cookies",
		"cookies-from-browser",
		"http error 403",
		"http error 429",
		"too many requests",
		"available to this channel's members",
	}
	unavailableMarkers = []string{
		"video unavailable",
		"private video",
		"has been removed",
		"not available in your country",
		"made this video available in your country",
		"geo restriction",
		"unsupported url",
		"is not a valid url",
		"http error 404",
		"http error 410",
		"this live event will begin",
		"premieres in",
		"requested format is not available",
		"no video formats found",
	}
	transientMarkers = []string{
		"timed out",
		"connection reset",
		"connection refused",
		"temporary failure in name resolution",
		"network is unreachable",
		"remote end closed connection",
		"incompleteread",
		"eof occurred",
		"http error 500",
		"http error 502",
		"http error 503",
		"http error 504",
		"unable to download webpage",
		"unable to download api page",
	}
)

// classify turns a failed yt-dlp run into a domain error. stderr is kept as
// the cause for the operator log; it never becomes the client message.
func classify(ctx context.Context, runErr error, stderr string) error {
	if runErr == nil {
		return nil
	}
	if errors.Is(runErr, exec.ErrNotFound) {
		return domain.NewError(domain.KindDependencyMissing, fmt.Errorf("yt-dlp not found: %w", runErr))
	}
	if ctx.Err() == context.Canceled {
		return domain.NewError(domain.KindInternal, fmt.Errorf("yt-dlp cancelled: %w", ctx.Err()))
	}
	if ctx.Err() == context.DeadlineExceeded {
		return domain.NewError(domain.KindUpstreamTransient, fmt.Errorf("yt-dlp timed out: %w", ctx.Err()))
	}

	msg := lastError(stderr)
	cause := fmt.Errorf("yt-dlp failed: %w, stderr: %s", runErr, truncate(msg, 500))
	lower := strings.ToLower(stderr)

	switch {
	case containsAny(lower, deniedMarkers):
		return domain.NewError(domain.KindUpstreamDenied, cause)
	case containsAny(lower, unavailableMarkers):
		return domain.NewError(domain.KindUpstreamUnavailable, cause)
	case containsAny(lower, transientMarkers):
		return domain.NewError(domain.KindUpstreamTransient, cause)
	default:
		return domain.NewError(domain.KindInternal, cause)
	}
}

// lastError returns the last "ERROR:" line, or the whole output if none.
func lastError(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	return strings.TrimSpace(stderr)
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
