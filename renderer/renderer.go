// Package renderer implements the Renderer (C4): encoding one Selection
// range of a source video into the portrait, captioned MP4 clip described
// in §4.4.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/log"
)

const minClipTimeout = 90 * time.Second

// Renderer shells out to ffmpeg to burn in subtitles and transcode one clip.
type Renderer struct {
	binary string
}

func New(binary string) *Renderer {
	return &Renderer{binary: binary}
}

// Render encodes one clip per §4.4's bit-level contract: H.264 High
// 1080x1920 30fps yuv420p, AAC-LC 128kbps 48kHz stereo, +faststart. Subtitles
// are burned in from segments intersecting rng, unless rng.Method is
// MethodFallback. outputPath is sourceDir/clip_NN.mp4.
func (r *Renderer) Render(ctx context.Context, traceID, sourcePath, outputPath string, rng job.Range, segments []job.TranscriptSegment, style job.SubtitleStyle) error {
	timeout := time.Duration(3*rng.Duration()) * time.Second
	if timeout < minClipTimeout {
		timeout = minClipTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vf := "scale=1080:-2:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black"

	var assPath string
	if rng.Method != job.MethodFallback {
		intersecting := intersectingSegments(segments, rng)
		if len(intersecting) > 0 {
			assPath = outputPath + ".ass"
			if err := os.WriteFile(assPath, []byte(buildASS(intersecting, rng.Start, rng.End, style)), 0644); err != nil {
				return errors.NewJobError(errors.EncoderFailed, "failed to write subtitle track: "+err.Error(), "rendering", err)
			}
			defer os.Remove(assPath)
			vf += fmt.Sprintf(",ass=%s", escapeFilterPath(assPath))
		}
	}

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", rng.Start),
		"-to", fmt.Sprintf("%.3f", rng.End),
		"-i", sourcePath,
		"-vf", vf,
		"-r", "30",
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-profile:v", "high",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "48000",
		"-ac", "2",
		"-movflags", "+faststart",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Log(traceID, "rendering clip", "output", outputPath, "start", rng.Start, "end", rng.End, "method", rng.Method)

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewJobError(errors.EncoderFailed, "render timeout exceeded", "rendering", ctx.Err())
	}
	if runErr != nil {
		return errors.NewJobError(errors.EncoderFailed, fmt.Sprintf("ffmpeg failed: %v: %s", runErr, stderr.String()), "rendering", runErr)
	}

	return nil
}

func intersectingSegments(segments []job.TranscriptSegment, rng job.Range) []job.TranscriptSegment {
	var out []job.TranscriptSegment
	for _, seg := range segments {
		if seg.End > rng.Start && seg.Start < rng.End {
			out = append(out, seg)
		}
	}
	return out
}

// escapeFilterPath escapes characters significant to ffmpeg's filtergraph
// parser (colons separate filter options) in a subtitle file path.
func escapeFilterPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	escaped := ""
	for _, r := range abs {
		if r == ':' || r == '\\' || r == '\'' {
			escaped += `\`
		}
		escaped += string(r)
	}
	return escaped
}
