package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/job"
	"github.com/stretchr/testify/require"
)

// fakeFFmpegBinary writes a shell script standing in for ffmpeg: it creates
// an empty file at its last argument (the output path), mirroring how the
// real binary is invoked with the output path trailing all flags.
func fakeFFmpegBinary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg.sh")
	body := "#!/bin/sh\nfor a in \"$@\"; do :; done\ntouch \"$a\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

func fakeFFmpegBinaryExit(t *testing.T, code int) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg-fail.sh")
	body := fmt.Sprintf("#!/bin/sh\n>&2 echo boom\nexit %d\n", code)
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

func fakeFFmpegBinarySleep(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg-sleep.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0755))
	return script
}

func testStyle() job.SubtitleStyle {
	return job.SubtitleStyle{FontFamily: "Arial", FontSize: 48, OutlineColor: "&H00000000", FillColor: "&H00FFFFFF"}
}

func TestRenderProducesOutputFile(t *testing.T) {
	binary := fakeFFmpegBinary(t)
	r := New(binary)
	dir := t.TempDir()
	output := filepath.Join(dir, "clip_01.mp4")

	segs := []job.TranscriptSegment{{Start: 0, End: 5, Text: "hello there."}}
	rng := job.Range{Start: 0, End: 30, Method: job.MethodRule}

	err := r.Render(context.Background(), "trace", "/tmp/source.mp4", output, rng, segs, testStyle())
	require.NoError(t, err)
	_, statErr := os.Stat(output)
	require.NoError(t, statErr)
}

func TestRenderSkipsSubtitlesForFallbackMethod(t *testing.T) {
	binary := fakeFFmpegBinary(t)
	r := New(binary)
	dir := t.TempDir()
	output := filepath.Join(dir, "clip_01.mp4")

	segs := []job.TranscriptSegment{{Start: 0, End: 5, Text: "hello there."}}
	rng := job.Range{Start: 0, End: 30, Method: job.MethodFallback}

	err := r.Render(context.Background(), "trace", "/tmp/source.mp4", output, rng, segs, testStyle())
	require.NoError(t, err)
	_, statErr := os.Stat(output + ".ass")
	require.True(t, os.IsNotExist(statErr))
}

func TestRenderFailureIsEncoderFailed(t *testing.T) {
	binary := fakeFFmpegBinaryExit(t, 1)
	r := New(binary)
	dir := t.TempDir()
	output := filepath.Join(dir, "clip_01.mp4")

	rng := job.Range{Start: 0, End: 30, Method: job.MethodRule}
	err := r.Render(context.Background(), "trace", "/tmp/source.mp4", output, rng, nil, testStyle())
	require.Error(t, err)
	je, ok := errors.AsJobError(err)
	require.True(t, ok)
	require.Equal(t, errors.EncoderFailed, je.Kind)
}

func TestRenderTimeoutIsEncoderFailed(t *testing.T) {
	binary := fakeFFmpegBinarySleep(t)
	r := New(binary)
	dir := t.TempDir()
	output := filepath.Join(dir, "clip_01.mp4")

	rng := job.Range{Start: 0, End: 1, Method: job.MethodRule} // duration 1s -> timeout clamps to minClipTimeout, so override via short ctx instead
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Render(ctx, "trace", "/tmp/source.mp4", output, rng, nil, testStyle())
	require.Error(t, err)
	je, ok := errors.AsJobError(err)
	require.True(t, ok)
	require.Equal(t, errors.EncoderFailed, je.Kind)
}
