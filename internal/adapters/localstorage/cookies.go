package localstorage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// ErrEmptyCookies is returned when an upload carries no bytes.
var ErrEmptyCookies = errors.New("cookie file is empty")

// CookieStore implements ports.CredentialSupplier. The uploaded jar outlives
// any job; jobs only read it.
type CookieStore struct {
	uploadPath   string
	operatorPath string
	logger       zerolog.Logger

	mu sync.Mutex // serializes Store
}

// NewCookieStore creates a new CookieStore.
func NewCookieStore(uploadPath, operatorPath string, logger zerolog.Logger) *CookieStore {
	return &CookieStore{uploadPath: uploadPath, operatorPath: operatorPath, logger: logger}
}

// Resolve checks the uploaded jar first, then the operator's. Neither present
// means anonymous access, which is not an error.
func (s *CookieStore) Resolve() (string, bool) {
	if info, err := os.Stat(s.uploadPath); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		return s.uploadPath, true
	}
	if s.operatorPath != "" {
		if info, err := os.Stat(s.operatorPath); err == nil && info.Mode().IsRegular() {
			return s.operatorPath, true
		}
	}
	s.logger.Debug().Msg("no cookie file, using anonymous access")
	return "", false
}

// Store replaces the uploaded jar. The write goes to a sibling temp file that
// is renamed into place, so readers never see a partial jar.
func (s *CookieStore) Store(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.uploadPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cookie directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".cookies-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create cookie temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if n == 0 {
		return ErrEmptyCookies
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to chmod cookie file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.uploadPath); err != nil {
		return fmt.Errorf("failed to install cookie file: %w", err)
	}
	s.logger.Info().Int64("bytes", n).Str("path", s.uploadPath).Msg("cookie file updated")
	return nil
}
