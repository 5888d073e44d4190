package assembler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/fetch"
	"github.com/mediasieve/mediasieve/internal/media"
	"github.com/mediasieve/mediasieve/internal/sink"
)

const numberPlaceholder = "{{number}}"

// dashVideoMarker identifies DASH URLs whose audio track lives in a
// sibling path and would otherwise be silently dropped.
const (
	dashVideoMarker = "/video/1080p/dash"
	dashVideoPath   = "/video/1080p/dash/"
	dashAudioPath   = "/audio/eng/dash/128000/"
)

// runMultipart reconstructs a numbered-segment asset. With an explicit
// template the user controls the number range; without one the numeric
// suffix near the matched indicator token is incremented until the first
// failed fetch, which is the natural terminal condition since no segment
// count is known in advance.
func (a *Assembler) runMultipart(ctx context.Context, jobID string, asset *media.MediaAsset, ov Overrides, client *fetch.Client, logger hclog.Logger) error {
	var buffers [][]byte

	// Fragmented-MP4 segments are undecodable without their container
	// metadata, which lives in a derived init segment.
	if initURL, ok := fMP4InitURL(asset.CanonicalURL); ok {
		logger.Debug("assembly phase", "phase", phaseFetchingMetadata)
		logger.Debug("fetching fMP4 init segment", "url", initURL)

		initBytes, err := client.Get(ctx, initURL)
		if err != nil {
			return fmt.Errorf("failed to fetch init segment: %w", err)
		}
		buffers = append(buffers, initBytes)
	}

	logger.Debug("assembly phase", "phase", phaseFetchingSegments)

	var segmentBuffers [][]byte
	var err error
	if ov.Template != "" && ov.Start != nil {
		segmentBuffers, err = a.fetchTemplated(ctx, jobID, ov, client, logger)
	} else {
		segmentBuffers, err = a.fetchAutoIncremented(ctx, jobID, asset, client, logger)
	}
	if err != nil {
		return err
	}
	buffers = append(buffers, segmentBuffers...)

	if len(segmentBuffers) == 0 {
		return fmt.Errorf("no segments found for multipart video")
	}

	logger.Debug("assembly phase", "phase", phaseAssembling, "segments", len(segmentBuffers))
	assembled := concat(buffers)

	logger.Debug("assembly phase", "phase", phaseWriting, "bytes", len(assembled))

	// Fragment containers vary, but claiming MP4 keeps the output
	// playable in naive players.
	name := a.nameFor(asset, ov) + ".mp4"
	path, writeErr := a.sink.WriteBytes(a.folderFor(asset, ov), name, assembled, sink.Uniquify)
	if writeErr != nil {
		return writeErr
	}

	a.jobs.AddResult(jobID, path)
	return nil
}

// fetchTemplated iterates a user-supplied {{number}} template. A closed
// [start, end] range skips failed numbers; an open-ended range stops at
// the first non-OK response.
func (a *Assembler) fetchTemplated(ctx context.Context, jobID string, ov Overrides, client *fetch.Client, logger hclog.Logger) ([][]byte, error) {
	var buffers [][]byte
	downloaded := 0

	fetchOne := func(n int) ([]byte, error) {
		padded := strconv.Itoa(n)
		if ov.Pad > 0 {
			padded = fmt.Sprintf("%0*d", ov.Pad, n)
		}
		segmentURL := strings.ReplaceAll(ov.Template, numberPlaceholder, padded)
		logger.Debug("fetching templated segment", "number", padded, "url", segmentURL)
		return client.Get(ctx, segmentURL)
	}

	if ov.End != nil {
		for n := *ov.Start; n <= *ov.End; n++ {
			buf, err := fetchOne(n)
			if err != nil {
				if fetch.IsNotOK(err) {
					logger.Warn("segment fetch failed, skipping", "number", n, "error", err)
					continue
				}
				return nil, err
			}
			buffers = append(buffers, buf)
			downloaded++
			a.jobs.SetSegments(jobID, downloaded)
		}
		return buffers, nil
	}

	for n := *ov.Start; ; n++ {
		buf, err := fetchOne(n)
		if err != nil {
			if fetch.IsNotOK(err) {
				// First failure ends the open-ended range.
				break
			}
			return nil, err
		}
		buffers = append(buffers, buf)
		downloaded++
		a.jobs.SetSegments(jobID, downloaded)
	}
	return buffers, nil
}

// fetchAutoIncremented substitutes an increasing segment number into the
// original URL near the indicator token and fetches until the first
// non-OK response.
func (a *Assembler) fetchAutoIncremented(ctx context.Context, jobID string, asset *media.MediaAsset, client *fetch.Client, logger hclog.Logger) ([][]byte, error) {
	// A URL with no rewritable number would refetch itself every
	// iteration and never hit the terminal failure.
	if replaceSegmentNumber(asset.CanonicalURL, asset.IndicatorToken, 0) ==
		replaceSegmentNumber(asset.CanonicalURL, asset.IndicatorToken, 1) {
		return nil, fmt.Errorf("no segment number found in %s", asset.CanonicalURL)
	}

	var buffers [][]byte
	downloaded := 0

	// Most schemes number segments from 1; "segment_" URLs start at 0.
	number := 1
	if asset.IndicatorToken == "segment_" {
		number = 0
	}

	for {
		segmentURL := replaceSegmentNumber(asset.CanonicalURL, asset.IndicatorToken, number)
		logger.Debug("fetching segment", "number", number, "url", segmentURL)

		// DASH video-only fragments need their audio sibling fetched
		// alongside, audio bytes before video bytes per segment.
		if strings.Contains(segmentURL, dashVideoMarker) {
			audioURL := strings.ReplaceAll(segmentURL, dashVideoPath, dashAudioPath)
			audioBuf, err := client.Get(ctx, audioURL)
			if err != nil {
				if fetch.IsNotOK(err) {
					break
				}
				return nil, err
			}
			buffers = append(buffers, audioBuf)
		}

		buf, err := client.Get(ctx, segmentURL)
		if err != nil {
			if fetch.IsNotOK(err) {
				break
			}
			return nil, err
		}
		buffers = append(buffers, buf)
		downloaded++
		a.jobs.SetSegments(jobID, downloaded)
		number++
	}
	return buffers, nil
}

// fMP4InitURL derives the init-segment URL for fragmented-MP4 multipart
// assets: the numbered token becomes "init" and the fragment extension
// becomes ".mp4". Returns false when the URL is not an fMP4 pattern.
func fMP4InitURL(rawURL string) (string, bool) {
	if !strings.Contains(rawURL, ".m4s") {
		return "", false
	}

	var re *regexp.Regexp
	switch {
	case strings.Contains(rawURL, "seg-"):
		re = regexp.MustCompile(`seg-(\d+)`)
	case strings.Contains(rawURL, "segment_"):
		re = regexp.MustCompile(`segment_(\d+)`)
	default:
		return "", false
	}

	initURL := re.ReplaceAllString(rawURL, "init")
	initURL = strings.Replace(initURL, ".m4s", ".mp4", 1)
	return initURL, true
}

// replaceSegmentNumber rewrites the numeric suffix near the indicator
// token. URLs without a token-adjacent number fall back to replacing the
// digit run just before the extension.
func replaceSegmentNumber(rawURL, token string, n int) string {
	if token != "" {
		re := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(token) + `)(\d+)`)
		if re.MatchString(rawURL) {
			return re.ReplaceAllString(rawURL, "${1}"+strconv.Itoa(n))
		}
	}

	// No number right after the token: rewrite the trailing digits of
	// the last path element instead.
	re := regexp.MustCompile(`(\d+)(\.[A-Za-z0-9]+)$`)
	if re.MatchString(rawURL) {
		return re.ReplaceAllString(rawURL, strconv.Itoa(n)+"${2}")
	}
	return rawURL
}

// concat joins buffers strictly in fetch order.
func concat(buffers [][]byte) []byte {
	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}
