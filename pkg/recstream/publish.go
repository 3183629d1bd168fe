package recstream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
)

// CreateIncrementalFile builds the conventional processing-directory
// path for one (flowtype, sensor, hour) incremental file and opens it
// for writing.
func CreateIncrementalFile(processingDir, flowtype, sensor string, hour time.Time, method CompressionMethod, recordLen int) (*Writer, error) {
	dir := filepath.Join(processingDir, flowtype, sensor)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.New(apperr.StreamWriteError, "recstream", "createIncrementalFile", err)
	}
	name := fmt.Sprintf("%s-%s-%s-%s",
		flowtype, sensor, hour.UTC().Format("20060102.15"), uuid.NewString())
	path := filepath.Join(dir, name)
	return Create(path, method, recordLen)
}

// PublishIncremental atomically moves a completed incremental file
// from the processing directory to the output directory: it renames
// to a unique name in outputDir (a fresh uuid suffix guarantees no
// collision with a concurrent publisher), retrying transient failures
// (EXDEV/EBUSY-class) with exponential backoff. A non-transient error,
// such as a missing source file, is wrapped with backoff.Permanent so
// it's returned immediately instead of exhausting the retry budget.
func PublishIncremental(ctx context.Context, srcPath, outputDir string) (string, error) {
	base := filepath.Base(srcPath)
	destName := fmt.Sprintf("%s.%s", base, uuid.NewString()[:8])
	destPath := filepath.Join(outputDir, destName)

	op := func() (string, error) {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return "", backoff.Permanent(err)
		}
		if err := os.Rename(srcPath, destPath); err != nil {
			if isTransientRenameError(err) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return destPath, nil
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
	if err != nil {
		if isTransientRenameError(err) {
			return "", apperr.NewRetryable(apperr.StreamWriteError, "recstream", "publishIncremental", err)
		}
		return "", apperr.New(apperr.StreamWriteError, "recstream", "publishIncremental", err)
	}
	return result, nil
}

// isTransientRenameError reports whether err looks like a transient
// cross-device or resource-busy rename failure worth retrying, versus
// a permanent condition like a missing source file.
func isTransientRenameError(err error) bool {
	return errors.Is(err, syscall.EXDEV) || errors.Is(err, syscall.EBUSY) || os.IsTimeout(err)
}
