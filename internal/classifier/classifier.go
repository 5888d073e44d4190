// Package classifier decides whether an observed network request is
// downloadable media. The heuristics are empirically tuned, not
// algorithmically pure: browsers report many non-video assets under
// generic resource types, so extension matching is corrected by
// allow/deny substring lists that are expected to keep growing as new
// sites are encountered. All of it lives in a plain-data RuleSet so the
// lists can be tuned without touching code.
package classifier

import (
	"strings"

	"github.com/mediasieve/mediasieve/internal/media"
)

// RuleSet is the complete, externally-suppliable classification
// configuration. Order matters for Indicators (first match wins during
// key resolution); Allow is consulted before Deny.
type RuleSet struct {
	// Version identifies the rule revision, so externally supplied rule
	// files can be told apart in logs and bug reports.
	Version int `json:"version"`

	// MediaTypes are the browser resource types recognized as potential
	// media traffic.
	MediaTypes []string `json:"mediaTypes"`

	// Indicators are the multipart indicator tokens, ordered by match
	// priority. Shared with asset-key resolution.
	Indicators []string `json:"indicators"`

	// Extensions are the recognized video file extensions.
	Extensions []string `json:"extensions"`

	// Allow are substrings that force a media verdict. Manual overrides
	// for CDNs whose segment URLs carry no usable extension.
	Allow []string `json:"allow"`

	// Deny are substrings that force a non-media verdict: thumbnails,
	// previews, stylesheets, scripts.
	Deny []string `json:"deny"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() RuleSet {
	return RuleSet{
		Version:    1,
		MediaTypes: []string{"video", "media", "xhr"},
		Indicators: []string{
			"chunk-",
			"segment-",
			"segment_",
			"part-",
			"seg-",
			"ep.",
			"hls-",
		},
		Extensions: []string{
			".mp4", ".webm", ".ogg", ".mkv", ".flv",
			".avi", ".mov", ".ts", ".m4s", ".m3u8", ".mp2t",
		},
		Allow: []string{
			"stream-1",
			"cdn3x",
			".net/preview/",
			"webapp-prime",
			"/aweme/",
		},
		Deny: []string{
			".mp3",
			".gif",
			"-pic.",
			".js",
			"/images/",
			"videos_screenshots",
			"thumb-",
			".css",
			"/preview",
		},
	}
}

// Classifier applies a RuleSet to observed requests.
type Classifier struct {
	rules RuleSet
}

// New creates a classifier for the given rule set.
func New(rules RuleSet) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the active rule set.
func (c *Classifier) Rules() RuleSet { return c.rules }

// Indicators returns the multipart indicator tokens in match order.
func (c *Classifier) Indicators() []string { return c.rules.Indicators }

// IsMedia reports whether the request looks like downloadable media.
// It is a pure function of the request fields: same input, same verdict.
// Malformed or absent URLs fail closed.
//
// The checks short-circuit in order: the XHR multipart gate, the allow
// list, the deny list, the short-suffix heuristic, and finally the
// extension match.
func (c *Classifier) IsMedia(req media.ObservedRequest) bool {
	if req.URL == "" {
		return false
	}
	url := req.URL

	if c.isMediaType(req.ResourceType) {
		// Generic script-initiated traffic only qualifies when the URL
		// itself looks like a segment or playlist fetch.
		if req.ResourceType == media.ResourceXHR &&
			!c.hasIndicator(url) && !strings.Contains(url, ".m3u8") {
			return false
		}

		if containsAny(url, c.rules.Allow) {
			return true
		}
		if containsAny(url, c.rules.Deny) {
			return false
		}
		if c.shortUnknownSuffix(url) {
			return false
		}
		return containsAny(url, c.rules.Extensions)
	}

	if containsAny(url, c.rules.Deny) {
		return false
	}
	if c.shortUnknownSuffix(url) {
		return false
	}
	return containsAny(url, c.rules.Extensions)
}

// shortUnknownSuffix filters out non-file-like URLs that the browser
// misreported as media: the final dot-delimited suffix is short enough to
// be an extension but is not a recognized video one.
func (c *Classifier) shortUnknownSuffix(url string) bool {
	idx := strings.LastIndex(url, ".")
	if idx == -1 {
		return false
	}
	suffix := url[idx+1:]
	return len(suffix) <= 5 && !containsAny(url, c.rules.Extensions)
}

func (c *Classifier) isMediaType(rt media.ResourceType) bool {
	for _, t := range c.rules.MediaTypes {
		if string(rt) == t {
			return true
		}
	}
	return false
}

func (c *Classifier) hasIndicator(url string) bool {
	lower := strings.ToLower(url)
	for _, token := range c.rules.Indicators {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
