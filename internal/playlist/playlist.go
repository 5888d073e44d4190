// Package playlist builds a download plan from an HLS media playlist:
// the ordered segment URLs, the optional fMP4 init segment, and the
// optional AES-128 key material.
package playlist

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/mediasieve/mediasieve/internal/fetch"
)

// DefaultSegmentsPerPart caps how many segments go into one output file.
// Very long playlists would otherwise produce a single buffer too large
// to hold and name sanely.
const DefaultSegmentsPerPart = 500

// ErrNoSegments is returned when a playlist decodes cleanly but lists no
// media segments. Fatal: there is nothing to assemble.
var ErrNoSegments = errors.New("playlist contains no segments")

// Plan is the ephemeral download plan derived from one media playlist.
type Plan struct {
	// PlaylistURL is the absolute URL the playlist was fetched from.
	PlaylistURL string

	// Segments are the absolute media segment URLs in playlist order.
	// Order is load-bearing: media correctness depends on byte order.
	Segments []string

	// InitSegmentURL is the EXT-X-MAP URI resolved to absolute, or ""
	// when the playlist declares none. Fetched once and prepended only
	// to the first output part.
	InitSegmentURL string

	// Key holds the raw AES-128 key bytes, nil for cleartext playlists.
	Key []byte

	// IV is the playlist-level initialization vector. Real HLS may vary
	// the IV per segment (media-sequence derived); this plan reuses the
	// playlist-level IV for every segment, matching the common case.
	IV [16]byte
}

// Encrypted reports whether segments need AES-128-CBC decryption.
func (p *Plan) Encrypted() bool { return p.Key != nil }

// Parts partitions the segment list into consecutive slices of at most
// limit segments each, preserving order. A non-positive limit falls back
// to DefaultSegmentsPerPart.
func (p *Plan) Parts(limit int) [][]string {
	if limit <= 0 {
		limit = DefaultSegmentsPerPart
	}

	var parts [][]string
	for start := 0; start < len(p.Segments); start += limit {
		end := start + limit
		if end > len(p.Segments) {
			end = len(p.Segments)
		}
		parts = append(parts, p.Segments[start:end])
	}
	return parts
}

// BuildPlan fetches a media playlist and derives its download plan.
// Master playlists are rejected: tracked assets point at the media
// playlist the player actually fetched, not at a variant index.
func BuildPlan(ctx context.Context, client *fetch.Client, playlistURL string) (*Plan, error) {
	body, err := client.Get(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}

	decoded, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}
	if listType == m3u8.MASTER {
		return nil, fmt.Errorf("expected media playlist, got master playlist")
	}

	mediaPlaylist, ok := decoded.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	plan := &Plan{PlaylistURL: playlistURL}

	for _, seg := range mediaPlaylist.Segments {
		if seg == nil {
			break
		}
		segmentURL, err := resolveURL(playlistURL, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve segment URL: %w", err)
		}
		plan.Segments = append(plan.Segments, segmentURL)
	}
	if len(plan.Segments) == 0 {
		return nil, ErrNoSegments
	}

	if initMap := playlistMap(mediaPlaylist); initMap != nil && initMap.URI != "" {
		initURL, err := resolveURL(playlistURL, initMap.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve init segment URL: %w", err)
		}
		plan.InitSegmentURL = initURL
	}

	if key := playlistKey(mediaPlaylist); key != nil && key.URI != "" && !strings.EqualFold(key.Method, "NONE") {
		if err := attachKey(ctx, client, plan, key); err != nil {
			return nil, err
		}
	}

	return plan, nil
}

// playlistKey returns the first EXT-X-KEY declaration: the playlist-level
// key when present, otherwise the first segment-level one.
func playlistKey(pl *m3u8.MediaPlaylist) *m3u8.Key {
	if pl.Key != nil {
		return pl.Key
	}
	for _, seg := range pl.Segments {
		if seg == nil {
			break
		}
		if seg.Key != nil {
			return seg.Key
		}
	}
	return nil
}

// playlistMap returns the first EXT-X-MAP declaration, playlist-level
// first.
func playlistMap(pl *m3u8.MediaPlaylist) *m3u8.Map {
	if pl.Map != nil {
		return pl.Map
	}
	for _, seg := range pl.Segments {
		if seg == nil {
			break
		}
		if seg.Map != nil {
			return seg.Map
		}
	}
	return nil
}

// attachKey fetches the raw key bytes and parses the hex IV. A missing
// IV attribute leaves the IV zeroed.
func attachKey(ctx context.Context, client *fetch.Client, plan *Plan, key *m3u8.Key) error {
	keyURL, err := resolveURL(plan.PlaylistURL, key.URI)
	if err != nil {
		return fmt.Errorf("failed to resolve key URL: %w", err)
	}

	keyBytes, err := client.Get(ctx, keyURL)
	if err != nil {
		return fmt.Errorf("failed to fetch decryption key: %w", err)
	}
	if len(keyBytes) != 16 {
		return fmt.Errorf("decryption key is %d bytes, want 16", len(keyBytes))
	}
	plan.Key = keyBytes

	if key.IV != "" {
		ivHex := strings.TrimPrefix(strings.TrimPrefix(key.IV, "0x"), "0X")
		ivBytes, err := hex.DecodeString(ivHex)
		if err != nil {
			return fmt.Errorf("failed to parse key IV %q: %w", key.IV, err)
		}
		if len(ivBytes) != 16 {
			return fmt.Errorf("key IV is %d bytes, want 16", len(ivBytes))
		}
		copy(plan.IV[:], ivBytes)
	}
	return nil
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}
