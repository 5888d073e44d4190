// Package media defines the data structures shared across the capture and
// download pipeline: observed network requests and tracked media assets.
package media

import "time"

// ResourceType is the browser-reported type of a network request.
type ResourceType string

const (
	ResourceVideo  ResourceType = "video"
	ResourceMedia  ResourceType = "media"
	ResourceScript ResourceType = "script"
	ResourceXHR    ResourceType = "xhr"
	ResourceOther  ResourceType = "other"
)

// ObservedRequest is one network event snapshot forwarded by the browser
// extension. It lives only long enough to be classified and, if it is
// media, folded into a tracked asset.
type ObservedRequest struct {
	// URL is the full request URL.
	URL string

	// Method is the HTTP method of the request.
	Method string

	// ResourceType is the browser-reported resource type.
	ResourceType ResourceType

	// TabID identifies the browser tab that issued the request.
	TabID int

	// Timestamp is when the request was observed.
	Timestamp time.Time

	// OriginDomain is the origin of the requesting page, if known.
	// Replayed on segment fetches for origin-gated CDNs.
	OriginDomain string

	// ParentDocumentURL is the URL of the document that triggered the
	// request, if known.
	ParentDocumentURL string

	// TabTitle is the title of the owning tab, if known.
	TabTitle string
}

// DeliveryKind classifies how a logical media asset is delivered.
type DeliveryKind string

const (
	// DeliverySingle is a plain one-request media file.
	DeliverySingle DeliveryKind = "single"

	// DeliveryMultipart is a sequence of numbered segment requests
	// sharing a common URL prefix up to an indicator token.
	DeliveryMultipart DeliveryKind = "numbered-multipart"

	// DeliveryM3U8 is an HLS playlist whose segments are listed in a
	// fetched manifest rather than inferred from the URL shape.
	DeliveryM3U8 DeliveryKind = "m3u8"
)

// MediaAsset is one logical, possibly multi-segment media item tracked for
// a tab. The delivery kind is decided once, from the first observed URL
// shape, and does not change afterwards.
type MediaAsset struct {
	// CanonicalURL is the first observed segment or playlist URL.
	CanonicalURL string

	// Key is the stable grouping key produced by ResolveKey. Unique
	// within (TabID, Key).
	Key string

	// TabID identifies the owning browser tab.
	TabID int

	// Title is derived from the tab title, falling back to the URL.
	Title string

	// Kind is the delivery classification for this asset.
	Kind DeliveryKind

	// IndicatorToken is the literal multipart indicator substring
	// (e.g. "seg-") matched in the URL path. Empty unless Kind is
	// DeliveryMultipart; it is reused to template segment numbers.
	IndicatorToken string

	// OriginDomain is carried from the observed request so segment
	// fetches can present the same origin/referrer.
	OriginDomain string

	// ParentDocumentURL is carried from the observed request.
	ParentDocumentURL string

	// LastUpdatedAt is refreshed on every matching observed request and
	// orders assets for eviction.
	LastUpdatedAt time.Time
}

// DisplayTitle returns the tab title when present, otherwise the asset URL
// with its query string stripped.
func (a *MediaAsset) DisplayTitle() string {
	if a.Title != "" {
		return a.Title
	}
	url := a.CanonicalURL
	for i := 0; i < len(url); i++ {
		if url[i] == '?' {
			return url[:i]
		}
	}
	return url
}
