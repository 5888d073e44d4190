package sink

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*]+`)
	dashRuns     = regexp.MustCompile(`-+`)
)

// SanitizeName turns a URL or page title into a safe file or folder name:
// percent-escapes are decoded, the query string is dropped, every
// filesystem-hostile character becomes a dash, dash runs collapse, the
// literal substrings "https" and "http" are stripped, and leading or
// trailing dashes are trimmed. The function is idempotent, so names that
// already went through it survive a second pass unchanged.
func SanitizeName(raw string) string {
	s := decodeEscapes(raw)

	if idx := strings.IndexByte(s, '?'); idx != -1 {
		s = s[:idx]
	}

	s = invalidChars.ReplaceAllString(s, "-")

	// Stripping can splice a fresh "http" out of the surrounding
	// characters, so repeat until stable. Every pass that changes the
	// string shortens it, so the loop terminates.
	for {
		stripped := strings.ReplaceAll(s, "https", "")
		stripped = strings.ReplaceAll(stripped, "http", "")
		if stripped == s {
			break
		}
		s = stripped
	}

	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// decodeEscapes unescapes percent-encoding to a fixpoint. Decoding
// either shrinks the string or leaves it unchanged, so the loop
// terminates. Undecodable input is kept as-is.
func decodeEscapes(s string) string {
	for {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			return s
		}
		s = decoded
	}
}

// BaseName extracts the final path segment of a URL for use as a default
// filename, before sanitization.
func BaseName(rawURL string) string {
	s := rawURL
	if idx := strings.IndexByte(s, '?'); idx != -1 {
		s = s[:idx]
	}
	if idx := strings.LastIndexByte(s, '/'); idx != -1 {
		s = s[idx+1:]
	}
	return s
}
