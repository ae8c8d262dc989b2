// Package transcriber implements the Transcriber (C2): turning a local
// source file into an ordered, non-overlapping TranscriptSegment list via a
// whisper.cpp-compatible CLI subprocess, per §4.2.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/log"
	"github.com/livepeer/clip-job-server/subprocess"
)

// Transcriber shells out to a whisper-compatible binary to produce a JSON
// transcript, per §6 "Speech-to-text engine".
type Transcriber struct {
	binary  string
	timeout time.Duration
}

func New(binary string, timeout time.Duration) *Transcriber {
	return &Transcriber{binary: binary, timeout: timeout}
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperOutput struct {
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

// Result is what the Transcriber hands the Worker.
type Result struct {
	Segments         []job.TranscriptSegment
	LanguageDetected string
}

// Transcribe runs the whisper binary against sourcePath and parses its JSON
// transcript output into monotonic, non-overlapping segments. Returns a
// structured TranscribeFailed JobError on timeout or subprocess failure; the
// Worker treats this as non-terminal and falls through to Strategy C.
func (t *Transcriber) Transcribe(ctx context.Context, traceID, sourcePath, scratchDir string, opts job.Options) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	outputBase := filepath.Join(scratchDir, "transcript")
	args := []string{
		sourcePath,
		"--language", opts.Language,
		"--model", string(opts.WhisperModel),
		"--output_format", "json",
		"--output_file", outputBase,
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	if err := subprocess.LogOutputs(traceID, cmd); err != nil {
		return Result{}, errors.NewJobError(errors.TranscribeFailed, "failed to attach subprocess logging: "+err.Error(), "transcribing", err)
	}

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, errors.NewJobError(errors.TranscribeFailed, "transcribe_timeout exceeded", "transcribing", ctx.Err())
	}
	if runErr != nil {
		return Result{}, errors.NewJobError(errors.TranscribeFailed, "whisper subprocess failed: "+runErr.Error(), "transcribing", runErr)
	}

	raw, err := os.ReadFile(outputBase + ".json")
	if err != nil {
		return Result{}, errors.NewJobError(errors.TranscribeFailed, "failed to read transcript output: "+err.Error(), "transcribing", err)
	}

	var parsed whisperOutput
	if err := json.Unmarshal(bytes.TrimSpace(raw), &parsed); err != nil {
		return Result{}, errors.NewJobError(errors.TranscribeFailed, "failed to parse transcript json: "+err.Error(), "transcribing", err)
	}

	segments, err := normalize(parsed.Segments)
	if err != nil {
		return Result{}, errors.NewJobError(errors.TranscribeFailed, err.Error(), "transcribing", err)
	}

	log.Log(traceID, "transcribed source", "segments", len(segments), "language_detected", parsed.Language)
	return Result{Segments: segments, LanguageDetected: parsed.Language}, nil
}

// normalize enforces §3's monotonic non-overlapping contract over whisper's
// raw segment list: drops zero/negative-duration segments and clamps any
// segment that starts before the previous one ended.
func normalize(raw []whisperSegment) ([]job.TranscriptSegment, error) {
	out := make([]job.TranscriptSegment, 0, len(raw))
	lastEnd := 0.0
	for _, s := range raw {
		start := s.Start
		end := s.End
		if start < lastEnd {
			start = lastEnd
		}
		if end <= start {
			continue
		}
		out = append(out, job.TranscriptSegment{Start: start, End: end, Text: s.Text})
		lastEnd = end
	}
	return out, nil
}
