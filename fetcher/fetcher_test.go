package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"time"

	"github.com/livepeer/clip-job-server/config"
	stderrors "github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/job"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	body []byte
	err  error
}

func (f fakeStorage) Download(ctx context.Context, storageURL string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(string(f.body))), nil
}

type countingStorage struct {
	fn func() (io.ReadCloser, error)
}

func (c countingStorage) Download(ctx context.Context, storageURL string) (io.ReadCloser, error) {
	return c.fn()
}

func TestDownloadDriveSourceUsesStorageClient(t *testing.T) {
	storage := fakeStorage{body: []byte("drive-bytes")}
	f := New(storage, "s3://bucket")

	rc, err := f.download(context.Background(), "trace", job.Request{
		SourceType:  job.SourceDrive,
		DriveFileID: "file-1",
	})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "drive-bytes", string(data))
}

func TestDownloadURLSourceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("url-bytes"))
	}))
	defer srv.Close()

	f := New(fakeStorage{}, "s3://bucket")
	rc, err := f.download(context.Background(), "trace", job.Request{
		SourceType: job.SourceURL,
		SourceURL:  srv.URL,
	})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "url-bytes", string(data))
}

func TestDownloadURLSource4xxIsUnretriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(fakeStorage{}, "s3://bucket")
	_, err := f.download(context.Background(), "trace", job.Request{
		SourceType: job.SourceURL,
		SourceURL:  srv.URL,
	})
	require.Error(t, err)
	require.True(t, stderrors.IsUnretriable(err))
}

func TestDownloadURLSource5xxIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(fakeStorage{}, "s3://bucket")
	_, err := f.download(context.Background(), "trace", job.Request{
		SourceType: job.SourceURL,
		SourceURL:  srv.URL,
	})
	require.Error(t, err)
	require.False(t, stderrors.IsUnretriable(err))
}

func TestDownloadUnsupportedSourceTypeIsUnretriable(t *testing.T) {
	f := New(fakeStorage{}, "s3://bucket")
	_, err := f.download(context.Background(), "trace", job.Request{SourceType: "bogus"})
	require.Error(t, err)
	require.True(t, stderrors.IsUnretriable(err))
}

func TestWriteLimitedRejectsOversizedSource(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.mp4"
	err := writeLimited(path, strings.NewReader("0123456789"), 5)
	require.Error(t, err)
}

func TestWriteLimitedWritesWithinLimit(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.mp4"
	err := writeLimited(path, strings.NewReader("hello"), 10)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestExtensionForURLSource(t *testing.T) {
	require.Equal(t, ".mov", extensionFor(job.Request{SourceType: job.SourceURL, SourceURL: "https://example.com/path/clip.mov"}))
	require.Equal(t, ".mp4", extensionFor(job.Request{SourceType: job.SourceURL, SourceURL: "https://example.com/path/no-extension"}))
	require.Equal(t, ".mp4", extensionFor(job.Request{SourceType: job.SourceDrive, DriveFileID: "abc"}))
}

func TestFetchClassifiesObjectNotFoundWithoutExhaustingRetries(t *testing.T) {
	origBase, origMax, origAttempts := config.RetryBaseDelay, config.RetryMaxDelay, config.RetryMaxAttempts
	config.RetryBaseDelay = time.Millisecond
	config.RetryMaxDelay = 5 * time.Millisecond
	config.RetryMaxAttempts = 5
	defer func() {
		config.RetryBaseDelay, config.RetryMaxDelay, config.RetryMaxAttempts = origBase, origMax, origAttempts
	}()

	attempts := 0
	storage := countingStorage{fn: func() (io.ReadCloser, error) {
		attempts++
		return nil, stderrors.NewObjectNotFoundError("not found in OS", errors.New("key missing"))
	}}
	f := New(storage, "s3://bucket")
	dir := t.TempDir()

	_, err := f.Fetch(context.Background(), "trace", job.Request{
		SourceType:  job.SourceDrive,
		DriveFileID: "missing",
	}, dir)
	require.Error(t, err)

	je, ok := stderrors.AsJobError(err)
	require.True(t, ok)
	require.Equal(t, stderrors.SourceUnusable, je.Kind)
	require.Contains(t, je.Message, "not found")
	require.Equal(t, 1, attempts, "an object-not-found condition must not be retried")
}

func TestFetchWrapsDownloadFailureAsSourceUnusable(t *testing.T) {
	origBase, origMax, origAttempts := config.RetryBaseDelay, config.RetryMaxDelay, config.RetryMaxAttempts
	config.RetryBaseDelay = time.Millisecond
	config.RetryMaxDelay = 5 * time.Millisecond
	config.RetryMaxAttempts = 1
	defer func() {
		config.RetryBaseDelay, config.RetryMaxDelay, config.RetryMaxAttempts = origBase, origMax, origAttempts
	}()

	f := New(fakeStorage{err: errors.New("boom")}, "s3://bucket")
	dir := t.TempDir()

	_, err := f.Fetch(context.Background(), "trace", job.Request{
		SourceType:  job.SourceDrive,
		DriveFileID: "missing",
	}, dir)
	require.Error(t, err)
	je, ok := stderrors.AsJobError(err)
	require.True(t, ok)
	require.Equal(t, stderrors.SourceUnusable, je.Kind)
}
