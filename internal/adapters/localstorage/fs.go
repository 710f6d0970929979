package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediafetch/internal/core/domain"
)

// Workspace implements ports.Workspace on the local filesystem. Every job gets
// its own directory named by a fresh discriminator, so concurrent jobs never
// share a path and need no locking.
type Workspace struct {
	BaseDir string
	newID   func() string
	now     func() time.Time
	logger  zerolog.Logger
}

// WorkspaceOption customises a Workspace.
type WorkspaceOption func(*Workspace)

// WithIDGenerator replaces uuid discriminators, e.g. with a counter in tests.
func WithIDGenerator(fn func() string) WorkspaceOption {
	return func(w *Workspace) { w.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) WorkspaceOption {
	return func(w *Workspace) { w.now = fn }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) WorkspaceOption {
	return func(w *Workspace) { w.logger = l }
}

// NewWorkspace creates the base directory if needed.
func NewWorkspace(baseDir string, opts ...WorkspaceOption) (*Workspace, error) {
	w := &Workspace{
		BaseDir: baseDir,
		newID:   uuid.NewString,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", baseDir, err)
	}
	return w, nil
}

// Acquire creates the job directory. Mkdir (not MkdirAll) fails on an existing
// directory, so a duplicate discriminator can never hand out a shared path.
func (w *Workspace) Acquire(ctx context.Context) (domain.Scratch, error) {
	if err := ctx.Err(); err != nil {
		return domain.Scratch{}, err
	}
	id := w.newID()
	path := w.GetJobPath(id)
	if err := os.Mkdir(path, 0o755); err != nil {
		return domain.Scratch{}, fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	return domain.Scratch{ID: id, Dir: path, CreatedAt: w.now()}, nil
}

// Release removes the job directory.
func (w *Workspace) Release(s domain.Scratch) error {
	if s.Dir == "" {
		return nil
	}
	if filepath.Dir(s.Dir) != filepath.Clean(w.BaseDir) {
		return fmt.Errorf("refusing to remove %s outside workspace", s.Dir)
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("failed to remove job directory %s: %w", s.Dir, err)
	}
	return nil
}

// GetJobPath returns the path for a job directory.
func (w *Workspace) GetJobPath(jobID string) string {
	return filepath.Join(w.BaseDir, jobID)
}

// Sweep removes job directories last modified more than olderThan ago.
// olderThan <= 0 removes everything. It returns how many entries were removed.
func (w *Workspace) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(w.BaseDir)
	if err != nil {
		return 0, fmt.Errorf("read workspace: %w", err)
	}
	cutoff := w.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if olderThan > 0 {
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
		}
		full := filepath.Join(w.BaseDir, entry.Name())
		if err := os.RemoveAll(full); err != nil {
			w.logger.Warn().Err(err).Str("path", full).Msg("failed to remove orphaned artifact")
			continue
		}
		w.logger.Info().Str("path", full).Msg("removed orphaned artifact")
		removed++
	}
	return removed, nil
}

// Entries lists the names currently in the workspace.
func (w *Workspace) Entries() ([]string, error) {
	entries, err := os.ReadDir(w.BaseDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
