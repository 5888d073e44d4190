package assembler

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/fetch"
	"github.com/mediasieve/mediasieve/internal/media"
	"github.com/mediasieve/mediasieve/internal/playlist"
	"github.com/mediasieve/mediasieve/internal/sink"
)

// runM3U8 reconstructs an HLS asset: build the segment plan from the
// playlist, then walk its parts fetching segments strictly in order,
// decrypting when the playlist declares a key. Playlist, key, and init
// fetch failures abort the job; a single bad segment is logged and
// skipped — players tolerate small gaps better than a fully failed job.
func (a *Assembler) runM3U8(ctx context.Context, jobID string, asset *media.MediaAsset, ov Overrides, client *fetch.Client, logger hclog.Logger) error {
	logger.Debug("assembly phase", "phase", phaseFetchingMetadata)

	plan, err := playlist.BuildPlan(ctx, client, asset.CanonicalURL)
	if err != nil {
		return err
	}

	var block cipher.Block
	if plan.Encrypted() {
		block, err = aes.NewCipher(plan.Key)
		if err != nil {
			return fmt.Errorf("failed to import decryption key: %w", err)
		}
	}

	limit := ov.SegmentsPerPart
	if limit <= 0 {
		limit = a.segmentsPerPart
	}
	parts := plan.Parts(limit)
	total := len(plan.Segments)

	logger.Info("playlist plan ready",
		"segments", total,
		"parts", len(parts),
		"encrypted", plan.Encrypted(),
		"initSegment", plan.InitSegmentURL != "",
	)

	var initBytes []byte
	if plan.InitSegmentURL != "" {
		initBytes, err = client.Get(ctx, plan.InitSegmentURL)
		if err != nil {
			return fmt.Errorf("failed to fetch init segment: %w", err)
		}
	}

	folder := a.folderFor(asset, ov)
	baseName := a.nameFor(asset, ov)

	downloaded := 0
	wrote := 0
	for partIdx, segments := range parts {
		logger.Debug("assembly phase", "phase", phaseFetchingSegments,
			"part", partIdx+1, "parts", len(parts), "segments", len(segments))

		var buffers [][]byte
		// Container metadata goes in front of the first part only;
		// later parts continue the same stream.
		if partIdx == 0 && initBytes != nil {
			buffers = append(buffers, initBytes)
		}

		good := 0
		for _, segmentURL := range segments {
			buf, err := client.Get(ctx, segmentURL)
			if err != nil {
				logger.Warn("segment fetch failed, skipping", "url", segmentURL, "error", err)
				continue
			}

			if block != nil {
				buf, err = decryptCBC(block, plan.IV, buf)
				if err != nil {
					logger.Warn("segment decrypt failed, skipping", "url", segmentURL, "error", err)
					continue
				}
			}

			buffers = append(buffers, buf)
			good++
			downloaded++
			a.jobs.SetPercent(jobID, downloaded*100/total)
		}

		if good == 0 {
			logger.Warn("part had no successful segments, skipping", "part", partIdx+1)
			continue
		}

		logger.Debug("assembly phase", "phase", phaseAssembling, "part", partIdx+1)
		assembled := concat(buffers)

		name := baseName
		if len(parts) > 1 {
			name = fmt.Sprintf("%s_part%d", baseName, partIdx+1)
		}
		name += ".ts"

		logger.Debug("assembly phase", "phase", phaseWriting, "part", partIdx+1, "bytes", len(assembled))
		path, err := a.sink.WriteBytes(folder, name, assembled, sink.Uniquify)
		if err != nil {
			return err
		}
		a.jobs.AddResult(jobID, path)
		wrote++
	}

	if wrote == 0 {
		return fmt.Errorf("all segment fetches failed")
	}
	return nil
}
