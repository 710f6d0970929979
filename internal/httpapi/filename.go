package httpapi

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameRunes = 150

// sanitizeTitle strips path separators, control characters and characters
// that are unsafe in a quoted header value, collapses whitespace and caps
// the length. It never returns an empty string.
func sanitizeTitle(title string) string {
	var b strings.Builder
	space := false
	for _, r := range title {
		switch {
		case unicode.IsSpace(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		case r == utf8.RuneError, unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			continue
		case strings.ContainsRune(`/\"<>:|?*`, r):
			r = '_'
		}
		space = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), " .")
	if rs := []rune(out); len(rs) > maxFilenameRunes {
		out = strings.TrimRight(string(rs[:maxFilenameRunes]), " .")
	}
	if out == "" {
		return "download"
	}
	return out
}

// asciiFallback folds accents (é -> e) and drops whatever is still not
// printable ASCII, for clients that ignore filename*.
func asciiFallback(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range folded {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || strings.HasPrefix(out, ".") {
		return "download" + out
	}
	return out
}

// Filename is the sanitized download name for title with extension ext.
func Filename(title, ext string) string {
	name := sanitizeTitle(title)
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return name
}

// contentDisposition builds an attachment header for title.ext with an ASCII
// filename and an RFC 5987 filename* carrying the full UTF-8 name.
func contentDisposition(title, ext string) string {
	name := Filename(title, ext)
	return `attachment; filename="` + asciiFallback(name) + `"; filename*=UTF-8''` + encodeRFC5987(name)
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
