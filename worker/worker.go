// Package worker implements the Worker (C7): it orchestrates one Job
// through Fetch -> Transcribe -> Select -> Render -> Upload, publishing the
// progress breakpoints from §4.6 and applying the per-stage fallback policy
// from §4.7. A Worker's Run method is the registry.Executor wired into the
// Registry at startup.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/fetcher"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/log"
	"github.com/livepeer/clip-job-server/renderer"
	"github.com/livepeer/clip-job-server/selector"
	"github.com/livepeer/clip-job-server/transcriber"
	"github.com/livepeer/clip-job-server/uploader"
)

// Worker holds the five stage components, reused across concurrently
// running Jobs; the Registry's concurrency cap is the only serialization
// between Jobs. Within one Job, clips are rendered/uploaded sequentially
// per §4.7, to respect encoder resources.
type Worker struct {
	fetcher     *fetcher.Fetcher
	transcriber *transcriber.Transcriber
	selector    *selector.Selector
	renderer    *renderer.Renderer
	uploader    *uploader.Uploader

	scratchBaseDir string
	storageURL     string
	clock          config.TimestampGenerator
}

func New(f *fetcher.Fetcher, t *transcriber.Transcriber, s *selector.Selector, r *renderer.Renderer, u *uploader.Uploader, scratchBaseDir, storageURL string) *Worker {
	return &Worker{
		fetcher:        f,
		transcriber:    t,
		selector:       s,
		renderer:       r,
		uploader:       u,
		scratchBaseDir: scratchBaseDir,
		storageURL:     storageURL,
		clock:          config.Clock,
	}
}

// Run is the registry.Executor: it mutates j in place via its thread-safe
// methods and must return promptly once ctx is done.
func (w *Worker) Run(ctx context.Context, j *job.Job) {
	snap := j.Clone()
	traceID := snap.TraceID
	req := snap.Request
	opts := req.Options

	scratchDir := filepath.Join(w.scratchBaseDir, snap.JobID)
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		j.FailWith(w.clock.GetTime(), errors.NewJobError(errors.InternalError, "failed to create scratch directory: "+err.Error(), "fetching", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			log.LogWarn(traceID, "failed to remove scratch directory", "dir", scratchDir, "err", err.Error())
		}
	}()

	// Fetch: failure here is unconditionally terminal, per §4.7.
	j.SetStageProgress(w.clock.GetTime(), job.StageFetching, 0.05, "")
	fetchResult, err := w.fetcher.Fetch(ctx, traceID, req, scratchDir)
	if err != nil {
		w.fail(j, err, "fetching")
		return
	}
	if ctx.Err() != nil {
		return
	}

	// Transcribe: failure here is non-terminal — continue with an empty
	// transcript, which drives the Selector straight to Strategy C.
	j.SetStageProgress(w.clock.GetTime(), job.StageTranscribing, 0.20, "")
	var segments []job.TranscriptSegment
	transcribeResult, terr := w.transcriber.Transcribe(ctx, traceID, fetchResult.LocalPath, scratchDir, opts)
	if terr != nil {
		log.LogWarn(traceID, "transcribe failed, continuing with empty transcript", "err", terr.Error())
	} else {
		segments = transcribeResult.Segments
	}
	if ctx.Err() != nil {
		return
	}

	// Select: below min_guaranteed is terminal.
	j.SetStageProgress(w.clock.GetTime(), job.StageSelecting, 0.45, "")
	ranges := w.selector.Select(ctx, traceID, segments, fetchResult.Duration, opts)
	if len(ranges) < config.MinGuaranteedClips {
		j.FailWith(w.clock.GetTime(), errors.NewJobError(errors.NoSegmentsProducible, "selector produced fewer than min_guaranteed ranges", "selecting", nil))
		return
	}
	if ctx.Err() != nil {
		return
	}

	outputs := w.renderAndUpload(ctx, j, traceID, scratchDir, fetchResult.LocalPath, req.TitleHint, segments, ranges, opts)
	if ctx.Err() != nil {
		return
	}

	if len(outputs) < config.MinGuaranteedClips {
		j.FailWith(w.clock.GetTime(), errors.NewJobError(errors.NoSegmentsProducible, fmt.Sprintf("only %d/%d clips succeeded", len(outputs), len(ranges)), "rendering", nil))
		return
	}

	message := ""
	if len(outputs) < len(ranges) {
		message = fmt.Sprintf("%d of %d selected clips skipped due to render/upload failures", len(ranges)-len(outputs), len(ranges))
	}
	j.Finish(w.clock.GetTime(), message)
}

// renderAndUpload processes ranges sequentially, publishing the linear
// rendering (0.55->0.90) and uploading (0.90->0.99) progress breakpoints
// per clip from §4.6's table. A render or upload failure on clip i skips
// that clip and continues, per §4.7.
func (w *Worker) renderAndUpload(ctx context.Context, j *job.Job, traceID, scratchDir, sourcePath, titleHint string, segments []job.TranscriptSegment, ranges []job.Range, opts job.Options) []job.ClipOutput {
	outputs := make([]job.ClipOutput, 0, len(ranges))
	total := len(ranges)

	for i, rng := range ranges {
		if ctx.Err() != nil {
			return outputs
		}

		renderProgress := 0.55 + 0.35*float64(i)/float64(total)
		j.SetStageProgress(w.clock.GetTime(), job.StageRendering, renderProgress, "")

		filename := fmt.Sprintf("clip_%02d.mp4", i+1)
		outputPath := filepath.Join(scratchDir, filename)
		if err := w.renderer.Render(ctx, traceID, sourcePath, outputPath, rng, segments, opts.SubtitleStyle); err != nil {
			log.LogWarn(traceID, "render failed, skipping clip", "index", i, "err", err.Error())
			continue
		}

		uploadProgress := 0.90 + 0.09*float64(i)/float64(total)
		j.SetStageProgress(w.clock.GetTime(), job.StageUploading, uploadProgress, "")

		locator, err := w.uploader.Upload(ctx, traceID, w.storageURL, outputPath, i, titleHint)
		if err != nil {
			log.LogWarn(traceID, "upload failed, skipping clip", "index", i, "err", err.Error())
			continue
		}

		outputs = append(outputs, job.ClipOutput{
			FileName:      filename,
			RemoteLocator: locator,
			DurationSec:   rng.Duration(),
			Segment:       rng,
			Method:        rng.Method,
		})
		j.AppendOutput(w.clock.GetTime(), outputs[len(outputs)-1])
	}

	return outputs
}

func (w *Worker) fail(j *job.Job, err error, stage string) {
	if je, ok := errors.AsJobError(err); ok {
		j.FailWith(w.clock.GetTime(), je)
		return
	}
	j.FailWith(w.clock.GetTime(), errors.NewJobError(errors.InternalError, err.Error(), stage, err))
}
