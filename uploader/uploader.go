// Package uploader implements the Uploader (C5): pushing one rendered clip
// to remote storage and returning a shareable locator, per §4.5.
package uploader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/go-tools/drivers"

	"github.com/livepeer/clip-job-server/config"
	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/log"
)

const uploadTimeout = 5 * time.Minute

// StorageClient abstracts the remote-storage capability a clip is pushed
// through, mirroring fetcher.StorageClient. Backed by
// github.com/livepeer/go-tools/drivers in production.
type StorageClient interface {
	// Upload writes data under filename beneath storageBaseURL and returns a
	// shareable locator string.
	Upload(ctx context.Context, storageBaseURL, filename string, data *os.File) (string, error)
}

type driversStorageClient struct{}

func (driversStorageClient) Upload(ctx context.Context, storageBaseURL, filename string, data *os.File) (string, error) {
	driver, err := drivers.ParseOSURL(storageBaseURL, true)
	if err != nil {
		return "", errors.Unretriable(fmt.Errorf("failed to parse storage URL: %w", err))
	}
	sess := driver.NewSession("")
	locator, err := sess.SaveData(ctx, filename, data, nil, uploadTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to upload to storage: %w", err)
	}
	return locator, nil
}

func NewStorageClient() StorageClient { return driversStorageClient{} }

// Uploader pushes a rendered clip to its target remote folder.
type Uploader struct {
	storage StorageClient
}

func New(storage StorageClient) *Uploader {
	return &Uploader{storage: storage}
}

// Upload retries transport errors identically to the Fetcher's contract
// (§4.1/§4.5) and derives the display name from titleHint (or clip_NN.mp4,
// NN = 1-based selection index zero-padded to 2 digits).
func (u *Uploader) Upload(ctx context.Context, traceID, storageBaseURL, localPath string, selectionIndex int, titleHint string) (string, error) {
	filename := displayName(titleHint, selectionIndex)

	var locator string
	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = config.RetryBaseDelay
	backOff.MaxInterval = config.RetryMaxDelay
	backOff.RandomizationFactor = config.RetryJitterFraction
	backOff.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return errors.Unretriable(fmt.Errorf("failed to open rendered clip: %w", err))
		}
		defer f.Close()

		locator, err = u.storage.Upload(ctx, storageBaseURL, filename, f)
		return err
	}, backoff.WithMaxRetries(backOff, config.RetryMaxAttempts))

	if err != nil {
		return "", errors.NewJobError(errors.UploadFailed, "failed to upload clip: "+err.Error(), "uploading", err)
	}

	log.Log(traceID, "uploaded clip", "filename", filename, "locator", locator)
	return locator, nil
}

// displayName derives the MIME-typed (video/mp4) clip name from titleHint,
// or clip_NN.mp4 (NN = 1-based, zero-padded to 2 digits) when absent.
func displayName(titleHint string, selectionIndex int) string {
	if strings.TrimSpace(titleHint) == "" {
		return fmt.Sprintf("clip_%02d.mp4", selectionIndex+1)
	}
	base := sanitizeForFilename(titleHint)
	return fmt.Sprintf("%s_%02d.mp4", base, selectionIndex+1)
}

func sanitizeForFilename(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('_')
		}
	}
	out := sb.String()
	if out == "" {
		out = "clip"
	}
	return out
}
