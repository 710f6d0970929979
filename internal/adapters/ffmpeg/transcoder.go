package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediafetch/internal/core/domain"
)

// Transcoder implements ports.Transcoder using the ffmpeg command line tool.
type Transcoder struct {
	Path    string
	Timeout time.Duration

	lookPath func(string) (string, error)
	run      func(ctx context.Context, path string, args []string) (stderr []byte, err error)
	logger   zerolog.Logger
}

// NewTranscoder returns a Transcoder. If path is empty, "ffmpeg" is looked up in PATH.
func NewTranscoder(path string, timeout time.Duration, logger zerolog.Logger) *Transcoder {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Transcoder{
		Path:     path,
		Timeout:  timeout,
		lookPath: exec.LookPath,
		run:      execRun,
		logger:   logger.With().Str("component", "ffmpeg").Logger(),
	}
}

// Available checks if ffmpeg is executable.
func (t *Transcoder) Available() bool {
	_, err := t.lookPath(t.Path)
	return err == nil
}

// Apply runs one post-processing step from src into dst. src is left in
// place; the scratch release removes it with the rest of the job.
func (t *Transcoder) Apply(ctx context.Context, step domain.PostProcessStep, src, dst string) error {
	args, err := stepArgs(step, src, dst)
	if err != nil {
		return domain.NewError(domain.KindInternal, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	stderr, err := t.run(ctx, t.Path, args)
	if err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return domain.NewError(domain.KindDependencyMissing, fmt.Errorf("ffmpeg not found: %w", err))
		case ctx.Err() == context.DeadlineExceeded:
			return domain.NewError(domain.KindInternal, fmt.Errorf("ffmpeg timed out after %s", t.Timeout))
		}
		return domain.NewError(domain.KindInternal, fmt.Errorf("ffmpeg %s failed: %w: %s", step.Kind, err, tail(string(stderr), 500)))
	}

	info, err := os.Stat(dst)
	if err != nil {
		return domain.NewError(domain.KindArtifactValidation, fmt.Errorf("ffmpeg produced no output: %w", err))
	}
	t.logger.Debug().
		Str("step", string(step.Kind)).
		Str("dst", dst).
		Int64("bytes", info.Size()).
		Dur("took", time.Since(start)).
		Msg("post-process step complete")
	return nil
}

func stepArgs(step domain.PostProcessStep, src, dst string) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y", "-i", src}
	switch step.Kind {
	case domain.AudioExtract:
		codec := step.Codec
		if codec == "" || codec == "mp3" {
			codec = "libmp3lame"
		}
		args = append(args, "-vn", "-codec:a", codec)
		if step.Quality != "" {
			args = append(args, "-b:a", step.Quality)
		}
	case domain.ContainerRemux:
		args = append(args, "-map", "0", "-c", "copy")
	default:
		return nil, fmt.Errorf("unknown post-process step %q", step.Kind)
	}
	return append(args, dst), nil
}

// tail keeps the end of ffmpeg's stderr, where the fatal line is.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func execRun(ctx context.Context, path string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}
