package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"mediafetch/internal/core/domain"
	"mediafetch/internal/core/ports"
	"mediafetch/internal/service"
)

func TestAppCommands(t *testing.T) {
	app := App()
	for _, name := range []string{"serve", "fetch"} {
		if app.Command(name) == nil {
			t.Errorf("App() has no %q command", name)
		}
	}
}

func TestWriteArtifactFromFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "job.mp3")
	if err := os.WriteFile(src, []byte("audio bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out", "Song.mp3")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}

	n, err := writeArtifact(&service.Delivery{FilePath: src}, dst)
	if err != nil {
		t.Fatalf("writeArtifact() error = %v", err)
	}
	got, _ := os.ReadFile(dst)
	if n != int64(len("audio bytes")) || string(got) != "audio bytes" {
		t.Errorf("writeArtifact() = %d, file %q", n, got)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(dst), ".mediafetch-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestWriteArtifactFromStream(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "Clip.webm")
	d := &service.Delivery{Stream: &ports.UpstreamStream{
		Body:          io.NopCloser(strings.NewReader("video bytes")),
		StatusCode:    200,
		ContentLength: -1,
	}}
	if _, err := writeArtifact(d, dst); err != nil {
		t.Fatalf("writeArtifact() error = %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "video bytes" {
		t.Errorf("file = %q", got)
	}
}

func TestJobExitCodes(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindInvalidRequest, 2},
		{domain.KindUpstreamDenied, 3},
		{domain.KindUpstreamUnavailable, 4},
		{domain.KindUpstreamTransient, 1},
		{domain.KindDependencyMissing, 1},
	}
	for _, tt := range tests {
		err := jobExit(domain.NewError(tt.kind, errors.New("cause")))
		var coder cli.ExitCoder
		if !errors.As(err, &coder) {
			t.Fatalf("jobExit(%v) = %T, want cli.ExitCoder", tt.kind, err)
		}
		if coder.ExitCode() != tt.want {
			t.Errorf("jobExit(%v) code = %d, want %d", tt.kind, coder.ExitCode(), tt.want)
		}
	}

	err := jobExit(domain.NewError(domain.KindUpstreamDenied, errors.New("Sign in to confirm you're not a bot")))
	if !strings.HasPrefix(err.Error(), domain.MsgDenied) {
		t.Errorf("denied exit message = %q", err.Error())
	}
}
