package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/fetcher"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/renderer"
	"github.com/livepeer/clip-job-server/selector"
	"github.com/livepeer/clip-job-server/transcriber"
	"github.com/livepeer/clip-job-server/uploader"
	"github.com/stretchr/testify/require"
)

// fakeDriveStorage stands in for the remote-storage capability: it hands
// back a fixed-size fake MP4 payload regardless of the requested URL.
type fakeDriveStorage struct{ sizeBytes int }

func (f fakeDriveStorage) Download(ctx context.Context, storageURL string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(strings.Repeat("x", f.sizeBytes))), nil
}

// fakeProber stands in for the ffprobe inspection step: real media bytes
// aren't available in this test, so the probe result is canned.
type fakeProber struct{ duration float64 }

func (f fakeProber) Probe(ctx context.Context, localPath string) (fetcher.ProbeResult, error) {
	return fetcher.ProbeResult{Container: "mov,mp4,m4a,3gp,3g2,mj2", Duration: f.duration, HasAudio: true}, nil
}

type fakeUploadStorage struct{ uploaded []string }

func (f *fakeUploadStorage) Upload(ctx context.Context, storageBaseURL, filename string, data *os.File) (string, error) {
	f.uploaded = append(f.uploaded, filename)
	return storageBaseURL + "/" + filename, nil
}

func fakeWhisperBinary(t *testing.T, transcriptJSON string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-whisper.sh")
	body := fmt.Sprintf("#!/bin/sh\noutfile=\"\"\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = \"--output_file\" ]; then\n    shift\n    outfile=\"$1\"\n  fi\n  shift\ndone\ncat > \"${outfile}.json\" <<'EOF'\n%s\nEOF\n", transcriptJSON)
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

func fakeFFmpegBinary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg.sh")
	body := "#!/bin/sh\nfor a in \"$@\"; do :; done\ntouch \"$a\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

func fakeFFmpegBinaryFailOn(t *testing.T, failOutputSuffix string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg-partial.sh")
	body := fmt.Sprintf("#!/bin/sh\nfor a in \"$@\"; do :; done\ncase \"$a\" in\n  *%s) exit 1 ;;\nesac\ntouch \"$a\"\n", failOutputSuffix)
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

func newWorker(t *testing.T, whisperJSON, ffmpegBinary string, uploads *fakeUploadStorage) *Worker {
	t.Helper()
	f := fetcher.NewWithProber(fakeDriveStorage{sizeBytes: 1024}, "s3://bucket", fakeProber{duration: 600})
	tr := transcriber.New(fakeWhisperBinary(t, whisperJSON), time.Minute)
	sel := selector.New(nil)
	r := renderer.New(ffmpegBinary)
	u := uploader.New(uploads)
	return New(f, tr, sel, r, u, t.TempDir(), "s3://clips")
}

func testRequest() job.Request {
	return job.Request{
		SourceType:  job.SourceDrive,
		DriveFileID: "file-1",
	}.WithDefaults()
}

func TestWorkerRunHappyPathReachesDone(t *testing.T) {
	segments := `{"language":"en","segments":[`
	for i := 0; i < 120; i++ {
		start := i * 5
		segments += fmt.Sprintf(`{"start":%d,"end":%d,"text":"a reasonably long sentence about something interesting."}`, start, start+5)
		if i < 119 {
			segments += ","
		}
	}
	segments += `]}`

	uploads := &fakeUploadStorage{}
	w := newWorker(t, segments, fakeFFmpegBinary(t), uploads)

	j := job.New("job-1", "trace-1", testRequest(), time.Now())
	j.Start(time.Now())

	w.Run(context.Background(), j)

	snap := j.Clone()
	require.Equal(t, job.StatusDone, snap.Status)
	require.Equal(t, 1.0, snap.Progress)
	require.GreaterOrEqual(t, len(snap.Outputs), 3)
}

func TestWorkerRunEmptyTranscriptFallsBackToStrategyC(t *testing.T) {
	uploads := &fakeUploadStorage{}
	w := newWorker(t, `{"language":"en","segments":[]}`, fakeFFmpegBinary(t), uploads)

	j := job.New("job-2", "trace-2", testRequest(), time.Now())
	j.Start(time.Now())
	w.Run(context.Background(), j)

	snap := j.Clone()
	require.Equal(t, job.StatusDone, snap.Status)
	require.Len(t, snap.Outputs, 3)
	for _, out := range snap.Outputs {
		require.Equal(t, job.MethodFallback, out.Method)
	}
}

func TestWorkerRunUsesInjectedClockForFinishTimestamp(t *testing.T) {
	uploads := &fakeUploadStorage{}
	w := newWorker(t, `{"language":"en","segments":[]}`, fakeFFmpegBinary(t), uploads)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.clock = config.FixedTimestampGenerator{Timestamp: fixed}

	j := job.New("job-4", "trace-4", testRequest(), time.Now())
	j.Start(time.Now())
	w.Run(context.Background(), j)

	snap := j.Clone()
	require.Equal(t, job.StatusDone, snap.Status)
	require.True(t, snap.UpdatedAt.Equal(fixed))
}

func TestWorkerRunPartialRenderFailureStillReachesDone(t *testing.T) {
	segments := `{"language":"en","segments":[`
	for i := 0; i < 120; i++ {
		start := i * 5
		segments += fmt.Sprintf(`{"start":%d,"end":%d,"text":"a reasonably long sentence about something interesting."}`, start, start+5)
		if i < 119 {
			segments += ","
		}
	}
	segments += `]}`

	uploads := &fakeUploadStorage{}
	w := newWorker(t, segments, fakeFFmpegBinaryFailOn(t, "clip_03.mp4"), uploads)

	j := job.New("job-3", "trace-3", testRequest(), time.Now())
	j.Start(time.Now())
	w.Run(context.Background(), j)

	snap := j.Clone()
	require.Equal(t, job.StatusDone, snap.Status)
	require.Len(t, snap.Outputs, 4) // 5 rule-based ranges, clip_03 skipped
	require.NotEmpty(t, snap.Message)
}
