package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mediafetch/internal/core/domain"
	"mediafetch/internal/core/ports"
)

func newTestDownloader(t *testing.T) *HTTPDownloader {
	t.Helper()
	d, err := NewHTTPDownloader(Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHTTPDownloader() error = %v", err)
	}
	return d
}

func TestFetchForwardsIdentityRangeAndCookies(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "audio/webm")
		w.Header().Set("Content-Range", "bytes 0-3/10")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, "OggS")
	}))
	defer srv.Close()

	host, _, _ := strings.Cut(strings.TrimPrefix(srv.URL, "http://"), ":")
	jar := filepath.Join(t.TempDir(), "cookies.txt")
	body := fmt.Sprintf("# Netscape HTTP Cookie File\n%s\tFALSE\t/\tFALSE\t0\tSID\tsecret\n", host)
	if err := os.WriteFile(jar, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	d := newTestDownloader(t)
	stream, err := d.Fetch(context.Background(), ports.FetchRequest{
		URL:        srv.URL + "/media",
		Identity:   domain.ExtractionIdentity{UserAgent: "UA/2.0", AcceptLanguage: "de-DE", DNT: true},
		CookieFile: jar,
		Range:      "bytes=0-3",
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer stream.Body.Close()

	data, _ := io.ReadAll(stream.Body)
	if string(data) != "OggS" || stream.StatusCode != http.StatusPartialContent {
		t.Errorf("stream = %d %q", stream.StatusCode, data)
	}
	if stream.ContentType != "audio/webm" || stream.ContentRange != "bytes 0-3/10" {
		t.Errorf("stream headers = %q %q", stream.ContentType, stream.ContentRange)
	}
	if got.Header.Get("User-Agent") != "UA/2.0" || got.Header.Get("Accept-Language") != "de-DE" || got.Header.Get("DNT") != "1" {
		t.Errorf("identity headers not forwarded: %v", got.Header)
	}
	if got.Header.Get("Range") != "bytes=0-3" {
		t.Errorf("Range = %q", got.Header.Get("Range"))
	}
	if c, err := got.Cookie("SID"); err != nil || c.Value != "secret" {
		t.Errorf("cookie not sent: %v", err)
	}
}

func TestFetchEngineHeadersOverrideIdentity(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		io.WriteString(w, "data")
	}))
	defer srv.Close()

	d := newTestDownloader(t)
	stream, err := d.Fetch(context.Background(), ports.FetchRequest{
		URL:      srv.URL,
		Identity: domain.ExtractionIdentity{UserAgent: "Rotated/1.0", AcceptLanguage: "de-DE"},
		Headers: map[string]string{
			"User-Agent":      "com.google.android.youtube/19.09.37",
			"Accept":          "*/*",
			"accept-encoding": "br",
			"Range":           "bytes=5-",
		},
		Range: "bytes=0-3",
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	stream.Body.Close()

	if ua := got.Get("User-Agent"); ua != "com.google.android.youtube/19.09.37" {
		t.Errorf("User-Agent = %q, want the one the URL was minted for", ua)
	}
	if got.Get("Accept") != "*/*" || got.Get("Accept-Language") != "de-DE" {
		t.Errorf("headers = %v", got)
	}
	if got.Get("Range") != "bytes=0-3" {
		t.Errorf("Range = %q, want the client range", got.Get("Range"))
	}
	if got.Get("Accept-Encoding") == "br" {
		t.Error("engine Accept-Encoding forwarded")
	}
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   domain.Kind
	}{
		{http.StatusForbidden, domain.KindUpstreamDenied},
		{http.StatusTooManyRequests, domain.KindUpstreamDenied},
		{http.StatusNotFound, domain.KindUpstreamUnavailable},
		{http.StatusGone, domain.KindUpstreamUnavailable},
		{http.StatusBadGateway, domain.KindUpstreamTransient},
		{http.StatusRequestedRangeNotSatisfiable, domain.KindInvalidRequest},
	}
	d := newTestDownloader(t)
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := d.Fetch(context.Background(), ports.FetchRequest{URL: srv.URL})
			if got := domain.KindOf(err); got != tt.want {
				t.Errorf("Fetch() kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseNetscape(t *testing.T) {
	in := strings.Join([]string{
		"# Netscape HTTP Cookie File",
		"",
		".youtube.com\tTRUE\t/\tTRUE\t1893456000\tPREF\tf6=40000000",
		"#HttpOnly_.youtube.com\tTRUE\t/\tTRUE\t0\tLOGIN_INFO\tabc",
		"broken line",
	}, "\n")
	cookies, err := ParseNetscape(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(cookies) != 2 {
		t.Fatalf("ParseNetscape() returned %d cookies, want 2", len(cookies))
	}
	if !cookies[0].Secure || cookies[0].Expires.IsZero() {
		t.Errorf("PREF = %+v", cookies[0])
	}
	if !cookies[1].HttpOnly || !cookies[1].Expires.IsZero() {
		t.Errorf("LOGIN_INFO = %+v, want http-only session cookie", cookies[1])
	}
}

func TestLoadNetscapeJarScopesByDomain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte(".youtube.com\tTRUE\t/\tTRUE\t0\tSID\tx\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	d := newTestDownloader(t)
	c, err := d.client(path)
	if err != nil {
		t.Fatal(err)
	}
	yt, _ := url.Parse("https://www.youtube.com/watch")
	other, _ := url.Parse("https://example.com/")
	if len(c.Jar.Cookies(yt)) != 1 {
		t.Error("cookie not scoped to youtube subdomain")
	}
	if len(c.Jar.Cookies(other)) != 0 {
		t.Error("cookie leaked to unrelated host")
	}
}
