package media

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveKey derives a stable grouping key for an observed request so
// that every segment request belonging to one logical video collapses
// into a single tracked asset.
//
// The key is "tabID:scheme://host/path" with query and fragment stripped.
// If the base contains one of the multipart indicator tokens
// (case-insensitively), it is truncated immediately after the token, so
// ".../seg-1.ts" and ".../seg-2.ts" produce the same key while the token
// itself survives for later segment-number substitution.
//
// ResolveKey never fails: on any URL parse error it falls back to the raw
// URL prefixed with the tab ID.
func ResolveKey(req ObservedRequest, indicators []string) string {
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Sprintf("%d:%s", req.TabID, req.URL)
	}

	base := fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)

	lower := strings.ToLower(base)
	for _, token := range indicators {
		if idx := strings.Index(lower, token); idx != -1 {
			base = base[:idx+len(token)]
			break
		}
	}

	return fmt.Sprintf("%d:%s", req.TabID, base)
}

// DetectDelivery classifies a URL's delivery kind from its path shape and
// returns the matched indicator token for numbered-multipart URLs.
//
// A path ending in ".m3u8" is a playlist and needs no token: the playlist
// URL is already singular. Otherwise the first indicator token found in
// the path (case-insensitively) marks a numbered-multipart asset. URLs
// that parse badly or match nothing are plain single files.
func DetectDelivery(rawURL string, indicators []string) (DeliveryKind, string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return DeliverySingle, ""
	}

	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".m3u8") {
		return DeliveryM3U8, ""
	}

	for _, token := range indicators {
		if strings.Contains(path, token) {
			return DeliveryMultipart, token
		}
	}

	return DeliverySingle, ""
}

// NewAsset builds a tracked asset from a classified observed request.
func NewAsset(req ObservedRequest, indicators []string) *MediaAsset {
	kind, token := DetectDelivery(req.URL, indicators)

	return &MediaAsset{
		CanonicalURL:      req.URL,
		Key:               ResolveKey(req, indicators),
		TabID:             req.TabID,
		Title:             req.TabTitle,
		Kind:              kind,
		IndicatorToken:    token,
		OriginDomain:      req.OriginDomain,
		ParentDocumentURL: req.ParentDocumentURL,
		LastUpdatedAt:     req.Timestamp,
	}
}
