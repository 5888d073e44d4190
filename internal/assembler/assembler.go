// Package assembler reconstructs complete media files from tracked
// assets. Three strategies cover the three delivery patterns: a direct
// single-URL download, a numbered-segment fetch-until-failure loop, and
// an HLS playlist walk with optional AES-128 decryption and fMP4 init
// segments.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/fetch"
	"github.com/mediasieve/mediasieve/internal/job"
	"github.com/mediasieve/mediasieve/internal/media"
	"github.com/mediasieve/mediasieve/internal/playlist"
	"github.com/mediasieve/mediasieve/internal/sink"
)

// phase names the steps of one assembly invocation. Only for logs; the
// externally visible lifecycle is the coarser job.State.
type phase string

const (
	phaseStarted          phase = "started"
	phaseFetchingMetadata phase = "fetching_metadata"
	phaseFetchingSegments phase = "fetching_segments"
	phaseAssembling       phase = "assembling"
	phaseWriting          phase = "writing"
)

// Overrides are the per-download user settings forwarded by the UI.
type Overrides struct {
	// Filename replaces the derived file name (extension still appended).
	Filename string

	// Folder replaces the derived output folder.
	Folder string

	// SegmentsPerPart overrides the playlist part-splitting limit.
	SegmentsPerPart int

	// Template is an explicit multipart URL template containing a
	// "{{number}}" placeholder.
	Template string

	// Start and End bound the template's number range. A nil End means
	// open-ended: fetch upward from Start until the first failure.
	Start *int
	End   *int

	// Pad zero-pads the substituted number to this width.
	Pad int
}

// Assembler runs download jobs against the sink and reports through the
// job manager.
type Assembler struct {
	sink            *sink.Sink
	jobs            *job.Manager
	segmentsPerPart int
	logger          hclog.Logger
}

// New creates an assembler. segmentsPerPart caps playlist part size when
// no per-download override is given.
func New(s *sink.Sink, jobs *job.Manager, segmentsPerPart int, logger hclog.Logger) *Assembler {
	if segmentsPerPart <= 0 {
		segmentsPerPart = playlist.DefaultSegmentsPerPart
	}
	return &Assembler{
		sink:            s,
		jobs:            jobs,
		segmentsPerPart: segmentsPerPart,
		logger:          logger,
	}
}

// Assemble creates a job for the asset and runs it in the background.
// The returned job ID is immediately pollable.
func (a *Assembler) Assemble(ctx context.Context, asset *media.MediaAsset, ov Overrides) string {
	jobID := a.jobs.Create(asset)
	go a.run(ctx, jobID, asset, ov)
	return jobID
}

// run executes one download invocation. Every fetch inside it is
// strictly sequential; concurrency exists only between jobs.
func (a *Assembler) run(ctx context.Context, jobID string, asset *media.MediaAsset, ov Overrides) {
	logger := a.logger.With("job", jobID, "asset", asset.Key, "kind", asset.Kind)
	logger.Debug("assembly phase", "phase", phaseStarted)

	a.jobs.Start(jobID)

	client := fetch.New(asset.OriginDomain)

	var err error
	switch asset.Kind {
	case media.DeliveryM3U8:
		err = a.runM3U8(ctx, jobID, asset, ov, client, logger)
	case media.DeliveryMultipart:
		err = a.runMultipart(ctx, jobID, asset, ov, client, logger)
	default:
		err = a.runSingle(ctx, jobID, asset, ov, client, logger)
	}

	if err != nil {
		a.jobs.Interrupt(jobID, err.Error())
		return
	}
	a.jobs.Complete(jobID)
}

// runSingle downloads a plain one-request asset. A HEAD request first
// discovers the content type so the file gets a sensible extension; the
// body then streams straight to disk without in-memory buffering.
// Any failure interrupts the job; there is no retry.
func (a *Assembler) runSingle(ctx context.Context, jobID string, asset *media.MediaAsset, ov Overrides, client *fetch.Client, logger hclog.Logger) error {
	logger.Debug("assembly phase", "phase", phaseFetchingMetadata)

	contentType, err := client.Head(ctx, asset.CanonicalURL)
	if err != nil {
		return fmt.Errorf("failed to fetch video headers: %w", err)
	}

	name := ov.Filename
	if name == "" {
		name = sink.BaseName(asset.CanonicalURL)
		if name == "" {
			name = asset.DisplayTitle()
		}
	}
	if ext := extensionFromContentType(contentType); ext != "" && !strings.HasSuffix(name, "."+ext) {
		name += "." + ext
	}

	logger.Debug("assembly phase", "phase", phaseWriting)

	path, err := a.sink.DownloadURL(ctx, client, asset.CanonicalURL, a.folderFor(asset, ov), name, sink.Uniquify,
		func(written, total int64) {
			if total > 0 {
				a.jobs.SetPercent(jobID, int(written*100/total))
			}
		})
	if err != nil {
		return err
	}

	a.jobs.AddResult(jobID, path)
	return nil
}

// folderFor picks the output folder: the user override, then the
// sanitized page title, then a generic bucket.
func (a *Assembler) folderFor(asset *media.MediaAsset, ov Overrides) string {
	if ov.Folder != "" {
		return ov.Folder
	}
	if folder := sink.SanitizeName(asset.DisplayTitle()); folder != "" {
		return folder
	}
	return "videos"
}

// nameFor picks the output file stem: the user override, then the
// sanitized page title, then the URL.
func (a *Assembler) nameFor(asset *media.MediaAsset, ov Overrides) string {
	if ov.Filename != "" {
		return ov.Filename
	}
	if name := sink.SanitizeName(asset.DisplayTitle()); name != "" {
		return name
	}
	return "video"
}

func extensionFromContentType(contentType string) string {
	if idx := strings.Index(contentType, "video/"); idx != -1 {
		ext := contentType[idx+len("video/"):]
		if semi := strings.IndexByte(ext, ';'); semi != -1 {
			ext = ext[:semi]
		}
		return strings.TrimSpace(ext)
	}
	return ""
}
