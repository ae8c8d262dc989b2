// Package fetcher implements the Fetcher (C1): obtaining the source video
// as a local file from remote storage or a public URL, per §4.1.
package fetcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/livepeer/go-tools/drivers"
	"gopkg.in/vansante/go-ffprobe.v2"

	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/job"
	"github.com/livepeer/clip-job-server/log"
)

// Result is what the Fetcher hands the Worker: a local path to the
// downloaded source and its detected container format.
type Result struct {
	LocalPath string
	Container string
	Duration  float64
}

// StorageClient abstracts the remote-storage capability a drive_file_id is
// resolved through, per §6 "Remote storage API". Backed by
// github.com/livepeer/go-tools/drivers in production.
type StorageClient interface {
	// Download streams the object identified by storageURL (an OS URL such
	// as s3://bucket/key, constructed by the caller from drive_file_id).
	Download(ctx context.Context, storageURL string) (io.ReadCloser, error)
}

type driversStorageClient struct{}

func (driversStorageClient) Download(ctx context.Context, storageURL string) (io.ReadCloser, error) {
	driver, err := drivers.ParseOSURL(storageURL, true)
	if err != nil {
		return nil, errors.Unretriable(fmt.Errorf("failed to parse storage URL: %w", err))
	}
	sess := driver.NewSession("")
	fileInfoReader, err := sess.ReadData(ctx, "")
	if err != nil {
		if stderrors.Is(err, drivers.ErrNotExist) {
			return nil, errors.NewObjectNotFoundError("source object not found in remote storage", err)
		}
		return nil, fmt.Errorf("failed to read from storage: %w", err)
	}
	return fileInfoReader.Body, nil
}

func NewStorageClient() StorageClient { return driversStorageClient{} }

// Prober abstracts the ffprobe inspection step so tests can substitute a
// fake without needing real media bytes.
type Prober interface {
	Probe(ctx context.Context, localPath string) (ProbeResult, error)
}

type ffprobeProber struct{}

func (ffprobeProber) Probe(ctx context.Context, localPath string) (ProbeResult, error) {
	return probe(ctx, localPath)
}

// Fetcher downloads a Job's source video into its scratch directory.
type Fetcher struct {
	storage    StorageClient
	storageURL string // base remote-storage URL drive_file_id is joined onto
	prober     Prober
}

func New(storage StorageClient, storageBaseURL string) *Fetcher {
	return &Fetcher{
		storage:    storage,
		storageURL: storageBaseURL,
		prober:     ffprobeProber{},
	}
}

// NewWithProber is New, but with the ffprobe inspection step substituted —
// used by tests that exercise the full download pipeline without real
// media bytes.
func NewWithProber(storage StorageClient, storageBaseURL string, prober Prober) *Fetcher {
	return &Fetcher{
		storage:    storage,
		storageURL: storageBaseURL,
		prober:     prober,
	}
}

// httpClientFor builds a retryablehttp client whose retries are logged
// under traceID. Built per-call since Fetch runs concurrently across jobs.
func httpClientFor(traceID string) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = int(config.RetryMaxAttempts)
	retryClient.RetryWaitMin = config.RetryBaseDelay
	retryClient.RetryWaitMax = config.RetryMaxDelay
	retryClient.Logger = log.NewRetryableHTTPLogger(traceID)
	return retryClient.StandardClient()
}

// Fetch downloads req's source into scratchDir/source.<ext> and validates it
// per §4.1: rejects files >2GB or with no audio track as SourceUnusable.
func (f *Fetcher) Fetch(ctx context.Context, traceID string, req job.Request, scratchDir string) (Result, error) {
	var body io.ReadCloser
	var err error

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = config.RetryBaseDelay
	backOff.MaxInterval = config.RetryMaxDelay
	backOff.RandomizationFactor = config.RetryJitterFraction
	backOff.MaxElapsedTime = 0

	err = backoff.Retry(func() error {
		body, err = f.download(ctx, traceID, req)
		return err
	}, backoff.WithMaxRetries(backOff, config.RetryMaxAttempts))

	if err != nil {
		message := "failed to download source: " + err.Error()
		if errors.IsObjectNotFound(err) {
			message = "source object not found in remote storage: " + err.Error()
		}
		return Result{}, errors.NewJobError(errors.SourceUnusable, message, "fetching", err)
	}
	defer body.Close()

	ext := extensionFor(req)
	localPath := filepath.Join(scratchDir, "source"+ext)
	if err := writeLimited(localPath, body, config.MaxInputFileSizeBytes); err != nil {
		return Result{}, errors.NewJobError(errors.SourceUnusable, err.Error(), "fetching", err)
	}

	probed, err := f.prober.Probe(ctx, localPath)
	if err != nil {
		return Result{}, errors.NewJobError(errors.SourceUnusable, "unplayable source: "+err.Error(), "fetching", err)
	}
	if !probed.HasAudio {
		return Result{}, errors.NewJobError(errors.SourceUnusable, "source has no audio track", "fetching", nil)
	}

	log.Log(traceID, "fetched source", "path", localPath, "duration", probed.Duration)
	return Result{LocalPath: localPath, Container: probed.Container, Duration: probed.Duration}, nil
}

func (f *Fetcher) download(ctx context.Context, traceID string, req job.Request) (io.ReadCloser, error) {
	switch req.SourceType {
	case job.SourceDrive:
		storageURL := strings.TrimSuffix(f.storageURL, "/") + "/" + req.DriveFileID
		return f.storage.Download(ctx, storageURL)
	case job.SourceURL:
		return f.downloadURL(ctx, traceID, req.SourceURL)
	default:
		return nil, errors.Unretriable(fmt.Errorf("unsupported source_type %q", req.SourceType))
	}
}

func (f *Fetcher) downloadURL(ctx context.Context, traceID, url string) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Unretriable(fmt.Errorf("error creating request: %w", err))
	}
	resp, err := httpClientFor(traceID).Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error downloading source url: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		err := fmt.Errorf("bad status code downloading source: %d %s", resp.StatusCode, resp.Status)
		if resp.StatusCode < 500 {
			return nil, errors.Unretriable(err)
		}
		return nil, err
	}
	return resp.Body, nil
}

func extensionFor(req job.Request) string {
	if req.SourceType == job.SourceURL {
		if idx := strings.LastIndex(req.SourceURL, "."); idx != -1 && idx > strings.LastIndex(req.SourceURL, "/") {
			ext := req.SourceURL[idx:]
			if len(ext) <= 5 {
				return ext
			}
		}
	}
	return ".mp4"
}

// writeLimited streams src to localPath, failing as soon as maxBytes is
// exceeded rather than after buffering the whole file, per the 2GB cap.
func writeLimited(localPath string, src io.Reader, maxBytes int64) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer out.Close()

	limited := io.LimitReader(src, maxBytes+1)
	written, err := io.Copy(out, limited)
	if err != nil {
		return fmt.Errorf("failed to write scratch file: %w", err)
	}
	if written > maxBytes {
		return fmt.Errorf("source file exceeds %d byte limit", maxBytes)
	}
	return nil
}

type ProbeResult struct {
	Container string
	Duration  float64
	HasAudio  bool
}

func probe(ctx context.Context, localPath string) (ProbeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	data, err := ffprobe.ProbeURL(probeCtx, localPath)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	hasAudio := data.FirstAudioStream() != nil
	duration := 0.0
	container := ""
	if data.Format != nil {
		duration = data.Format.DurationSeconds
		container = data.Format.FormatName
	}

	return ProbeResult{Container: container, Duration: duration, HasAudio: hasAudio}, nil
}
