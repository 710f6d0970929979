package ffmpeg

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediafetch/internal/core/domain"
)

func TestStepArgs(t *testing.T) {
	args, err := stepArgs(domain.PostProcessStep{Kind: domain.AudioExtract, Codec: "mp3", Quality: "192k"}, "in.webm", "out.mp3")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-vn", "libmp3lame", "192k"} {
		if !slices.Contains(args, want) {
			t.Errorf("audio args %v missing %q", args, want)
		}
	}
	if args[len(args)-1] != "out.mp3" {
		t.Errorf("dst not last: %v", args)
	}

	args, err = stepArgs(domain.PostProcessStep{Kind: domain.ContainerRemux, Codec: "mp4"}, "in.mkv", "out.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if i := slices.Index(args, "-c"); i < 0 || args[i+1] != "copy" {
		t.Errorf("remux args %v, want stream copy", args)
	}

	if _, err := stepArgs(domain.PostProcessStep{Kind: "bogus"}, "a", "b"); err == nil {
		t.Error("stepArgs(bogus) error = nil")
	}
}

func TestApply(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.mp3")
	tr := NewTranscoder("ffmpeg", time.Minute, zerolog.Nop())
	tr.run = func(_ context.Context, _ string, args []string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte("ID3"), 0o644)
	}

	step := domain.PostProcessStep{Kind: domain.AudioExtract, Codec: "mp3", Quality: "192k"}
	if err := tr.Apply(context.Background(), step, filepath.Join(dir, "in.webm"), dst); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	tr.run = func(context.Context, string, []string) ([]byte, error) { return nil, nil }
	err := tr.Apply(context.Background(), step, "in", filepath.Join(dir, "missing.mp3"))
	if domain.KindOf(err) != domain.KindArtifactValidation {
		t.Errorf("Apply() without output kind = %v, want ArtifactValidation", domain.KindOf(err))
	}

	tr.run = func(context.Context, string, []string) ([]byte, error) {
		return []byte("Invalid data found when processing input"), errors.New("exit status 1")
	}
	err = tr.Apply(context.Background(), step, "in", dst)
	if domain.KindOf(err) != domain.KindInternal {
		t.Errorf("Apply() failure kind = %v, want Internal", domain.KindOf(err))
	}
}

func TestAvailable(t *testing.T) {
	tr := NewTranscoder("", 0, zerolog.Nop())
	tr.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	if tr.Available() {
		t.Error("Available() = true with no binary")
	}
	tr.lookPath = func(p string) (string, error) { return "/usr/bin/" + p, nil }
	if !tr.Available() {
		t.Error("Available() = false with binary on PATH")
	}
	tr.run = func(context.Context, string, []string) ([]byte, error) { return nil, exec.ErrNotFound }
	err := tr.Apply(context.Background(), domain.PostProcessStep{Kind: domain.ContainerRemux}, "a", "b")
	if domain.KindOf(err) != domain.KindDependencyMissing {
		t.Errorf("Apply() kind = %v, want DependencyMissing", domain.KindOf(err))
	}
}
