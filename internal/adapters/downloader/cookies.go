package downloader

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// ParseNetscape parses a Netscape cookies.txt file.
// Format: domain flag path secure expiration name value
func ParseNetscape(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		c := &http.Cookie{
			Domain:   parts[0],
			Path:     parts[2],
			Secure:   strings.EqualFold(parts[3], "TRUE"),
			Name:     parts[5],
			Value:    parts[6],
			HttpOnly: httpOnly,
		}
		// 0 marks a session cookie.
		if exp, err := strconv.ParseInt(parts[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
		}
		cookies = append(cookies, c)
	}
	return cookies, scanner.Err()
}

// LoadNetscapeJar reads path and adds its cookies to jar, grouped by domain.
func LoadNetscapeJar(jar *cookiejar.Jar, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open cookies file: %w", err)
	}
	defer f.Close()

	list, err := ParseNetscape(f)
	if err != nil {
		return fmt.Errorf("failed to parse cookies file: %w", err)
	}

	byDomain := make(map[string][]*http.Cookie)
	for _, c := range list {
		byDomain[c.Domain] = append(byDomain[c.Domain], c)
	}
	for domain, cs := range byDomain {
		scheme := "http"
		for _, c := range cs {
			if c.Secure {
				scheme = "https"
				break
			}
		}
		u := &url.URL{Scheme: scheme, Host: strings.TrimPrefix(domain, "."), Path: "/"}
		jar.SetCookies(u, cs)
	}
	return nil
}
