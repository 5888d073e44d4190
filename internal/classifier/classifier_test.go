package classifier

import (
	"testing"

	"github.com/mediasieve/mediasieve/internal/media"
)

func videoReq(url string) media.ObservedRequest {
	return media.ObservedRequest{URL: url, ResourceType: media.ResourceVideo, TabID: 1}
}

func TestIsMedia_EmptyURL(t *testing.T) {
	c := New(DefaultRules())

	if c.IsMedia(media.ObservedRequest{ResourceType: media.ResourceVideo}) {
		t.Error("expected empty URL to classify as non-media")
	}
}

func TestIsMedia_VideoExtensions(t *testing.T) {
	c := New(DefaultRules())

	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/movie.mp4", true},
		{"https://cdn.example.com/movie.webm", true},
		{"https://cdn.example.com/stream/seg-1.ts", true},
		{"https://cdn.example.com/playlist.m3u8", true},
		{"https://cdn.example.com/frag.m4s", true},
		{"https://cdn.example.com/page.html", false},
		{"https://cdn.example.com/script.json", false},
	}

	for _, tt := range tests {
		if got := c.IsMedia(videoReq(tt.url)); got != tt.want {
			t.Errorf("IsMedia(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestIsMedia_Deterministic(t *testing.T) {
	c := New(DefaultRules())
	req := videoReq("https://cdn.example.com/movie.mp4")

	first := c.IsMedia(req)
	for i := 0; i < 100; i++ {
		if c.IsMedia(req) != first {
			t.Fatal("IsMedia is not deterministic for identical input")
		}
	}
}

func TestIsMedia_DenyListPrecedence(t *testing.T) {
	c := New(DefaultRules())

	// Deny-listed substrings win even when a video extension is present.
	tests := []string{
		"https://cdn.example.com/preview.css?x=.mp4",
		"https://cdn.example.com/thumb-001.mp4",
		"https://cdn.example.com/images/clip.mp4",
		"https://cdn.example.com/videos_screenshots/shot.mp4",
	}

	for _, url := range tests {
		if c.IsMedia(videoReq(url)) {
			t.Errorf("IsMedia(%q) = true, deny list should take precedence", url)
		}
	}
}

func TestIsMedia_AllowListOverride(t *testing.T) {
	c := New(DefaultRules())

	// Allow-listed CDNs qualify even without a recognized extension,
	// and even when a deny-listed substring is also present.
	tests := []string{
		"https://cdn.example.com/stream-1/media",
		"https://cdn3x.example.com/asset",
		"https://media.net/preview/clip",
	}

	for _, url := range tests {
		if !c.IsMedia(videoReq(url)) {
			t.Errorf("IsMedia(%q) = false, allow list should override", url)
		}
	}
}

func TestIsMedia_XHRGate(t *testing.T) {
	c := New(DefaultRules())

	xhr := func(url string) media.ObservedRequest {
		return media.ObservedRequest{URL: url, ResourceType: media.ResourceXHR, TabID: 1}
	}

	// Generic XHR traffic is not media unless the URL itself looks like
	// a segment or playlist fetch.
	if c.IsMedia(xhr("https://cdn.example.com/data.mp4")) {
		t.Error("plain XHR .mp4 fetch without indicator should be non-media")
	}
	if !c.IsMedia(xhr("https://cdn.example.com/hls/seg-1.ts")) {
		t.Error("XHR segment fetch with indicator token should be media")
	}
	if !c.IsMedia(xhr("https://cdn.example.com/master.m3u8")) {
		t.Error("XHR playlist fetch should be media")
	}
}

func TestIsMedia_ShortUnknownSuffix(t *testing.T) {
	c := New(DefaultRules())

	// A short final suffix that is not a video extension filters out
	// non-file-like URLs misreported as media.
	if c.IsMedia(videoReq("https://cdn.example.com/api/play.php")) {
		t.Error("short unknown suffix should be non-media")
	}

	// A long final "suffix" is not extension-like; the extension match
	// still decides.
	if !c.IsMedia(videoReq("https://cdn.example.com/movie.mp4/manifest-version")) {
		t.Error("long suffix with embedded video extension should be media")
	}
}

func TestIsMedia_NonMediaResourceType(t *testing.T) {
	c := New(DefaultRules())

	other := media.ObservedRequest{
		URL:          "https://cdn.example.com/movie.mp4",
		ResourceType: media.ResourceOther,
		TabID:        1,
	}
	if !c.IsMedia(other) {
		t.Error("extension match should classify regardless of resource type")
	}

	denied := media.ObservedRequest{
		URL:          "https://cdn.example.com/thumb-movie.mp4",
		ResourceType: media.ResourceOther,
		TabID:        1,
	}
	if c.IsMedia(denied) {
		t.Error("deny list should apply to unrecognized resource types too")
	}
}
