package localstorage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCookieStoreResolveOrder(t *testing.T) {
	dir := t.TempDir()
	upload := filepath.Join(dir, "data", "cookies.txt")
	operator := filepath.Join(dir, "operator.txt")
	s := NewCookieStore(upload, operator, zerolog.Nop())

	if p, ok := s.Resolve(); ok {
		t.Fatalf("Resolve() = %q, true with no files, want anonymous", p)
	}

	if err := os.WriteFile(operator, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if p, ok := s.Resolve(); !ok || p != operator {
		t.Fatalf("Resolve() = %q, %v, want operator path", p, ok)
	}

	if err := s.Store(strings.NewReader(".youtube.com\tTRUE\t/\tTRUE\t0\tSID\tabc\n")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if p, ok := s.Resolve(); !ok || p != upload {
		t.Fatalf("Resolve() = %q, %v, want uploaded path", p, ok)
	}
}

func TestCookieStoreEmptyUploadIgnored(t *testing.T) {
	dir := t.TempDir()
	upload := filepath.Join(dir, "cookies.txt")
	s := NewCookieStore(upload, "", zerolog.Nop())

	if err := s.Store(strings.NewReader("")); !errors.Is(err, ErrEmptyCookies) {
		t.Fatalf("Store(empty) error = %v, want ErrEmptyCookies", err)
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Errorf("empty upload left a file behind: %v", err)
	}

	// An existing zero-byte jar must not be treated as a credential.
	if err := os.WriteFile(upload, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Resolve(); ok {
		t.Error("Resolve() = true for zero-byte upload, want anonymous")
	}
}

func TestCookieStoreLastWriteWins(t *testing.T) {
	upload := filepath.Join(t.TempDir(), "cookies.txt")
	s := NewCookieStore(upload, "", zerolog.Nop())
	for _, body := range []string{"first\n", "second\n"} {
		if err := s.Store(strings.NewReader(body)); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
	got, _ := os.ReadFile(upload)
	if string(got) != "second\n" {
		t.Errorf("cookie file = %q, want last upload", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(upload))
	if len(entries) != 1 {
		t.Errorf("cookie dir has %d entries, want temp files cleaned up", len(entries))
	}
}
