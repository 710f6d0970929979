package httpapi

import (
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mediafetch/internal/core/ports"
	"mediafetch/internal/service"
)

func TestRelayPartialContent(t *testing.T) {
	s := New(Config{}, Dependencies{}, zerolog.Nop())
	body := "0123456789"
	d := &service.Delivery{
		JobID:       "job",
		Title:       "Clip",
		Ext:         "webm",
		ContentType: "video/webm",
		Stream: &ports.UpstreamStream{
			Body:          io.NopCloser(strings.NewReader(body)),
			StatusCode:    http.StatusPartialContent,
			ContentLength: int64(len(body)),
			ContentRange:  "bytes 100-109/1000",
		},
	}

	rec := httptest.NewRecorder()
	c := s.echo.NewContext(httptest.NewRequest(http.MethodPost, "/download", nil), rec)
	if err := s.deliver(c, d); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Errorf("status = %d, want 206", rec.Code)
	}
	for k, want := range map[string]string{
		"Content-Range":  "bytes 100-109/1000",
		"Content-Length": "10",
		"Accept-Ranges":  "bytes",
		"Content-Type":   "video/webm",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if rec.Body.String() != body {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Song", "Song"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{`AC/DC: "Back"  in\tBlack`, "AC_DC_ _Back_ in_tBlack"},
		{"line\nbreak\x00here", "line breakhere"},
		{"   ", "download"},
		{"...", "download"},
		{strings.Repeat("é", 200), strings.Repeat("é", maxFilenameRunes)},
	}
	for _, tt := range tests {
		if got := sanitizeTitle(tt.in); got != tt.want {
			t.Errorf("sanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentDispositionUnicode(t *testing.T) {
	h := contentDisposition("Beyoncé – Halo", "mp3")
	if !strings.Contains(h, `filename="Beyonce  Halo.mp3"`) {
		t.Errorf("ASCII fallback missing: %s", h)
	}
	_, params, err := mime.ParseMediaType(h)
	if err != nil {
		t.Fatalf("ParseMediaType(%q) error = %v", h, err)
	}
	if params["filename"] != "Beyoncé – Halo.mp3" {
		t.Errorf("filename = %q", params["filename"])
	}
}
