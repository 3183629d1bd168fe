package recgen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sirupsen/logrus"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
)

// subprocessSeedStride is added to the base seed, multiplied by shard
// index, so each subprocess draws from an independent RNG stream.
const subprocessSeedStride = 0x00353535

// Window is one subprocess's contiguous shard of [start_time, end_time].
type Window struct {
	Index     int
	StartTime time.Time
	EndTime   time.Time
	Seed      int64
	WorkDir   string
}

// DefaultSubprocessCount returns the host's logical CPU count as the
// concrete default when the operator leaves num-subprocesses at zero.
func DefaultSubprocessCount() int {
	counts, err := cpu.Counts(true)
	if err != nil || counts < 1 {
		return 1
	}
	return counts
}

// SplitWindows divides [start, end] into n contiguous windows of
// equal step count, distributing any remainder across the first
// windows, and assigns each an adjusted seed.
func SplitWindows(start, end time.Time, step time.Duration, n int, seed int64, baseWorkDir string) []Window {
	if n < 1 {
		n = 1
	}
	totalSteps := int(end.Sub(start) / step)
	if totalSteps < 1 {
		totalSteps = 1
	}
	base := totalSteps / n
	remainder := totalSteps % n

	windows := make([]Window, 0, n)
	cursor := start
	for i := 0; i < n; i++ {
		steps := base
		if i < remainder {
			steps++
		}
		winEnd := cursor.Add(time.Duration(steps) * step)
		if i == n-1 {
			winEnd = end
		}
		windows = append(windows, Window{
			Index:     i,
			StartTime: cursor,
			EndTime:   winEnd,
			Seed:      seed + int64(i)*subprocessSeedStride,
			WorkDir:   filepath.Join(baseWorkDir, fmt.Sprintf("shard-%d", i)),
		})
		cursor = winEnd
	}
	return windows
}

// RunSubprocesses re-execs os.Args[0] once per window with a
// -subprocess-window flag selecting that shard, creates each
// subprocess's working directory, and waits for all children. Each
// child runs the full single-process pipeline against its own working
// directory; this isolates an OS-level crash of one worker and avoids
// sharing a StreamCache across cores.
func RunSubprocesses(ctx context.Context, windows []Window, extraArgs []string) error {
	cmds := make([]*exec.Cmd, len(windows))
	for i, w := range windows {
		if err := os.MkdirAll(w.WorkDir, 0o755); err != nil {
			return apperr.New(apperr.InvalidArgument, "recgen", "runSubprocesses", err)
		}
		args := append([]string{
			"-subprocess-window", fmt.Sprintf("%d", w.Index),
			"-start-time", w.StartTime.Format(time.RFC3339),
			"-end-time", w.EndTime.Format(time.RFC3339),
			"-seed", fmt.Sprintf("%d", w.Seed),
			"-root-data-dir", w.WorkDir,
		}, extraArgs...)
		cmd := exec.CommandContext(ctx, os.Args[0], args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmds[i] = cmd
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			return apperr.New(apperr.InvalidArgument, "recgen", "runSubprocesses",
				fmt.Errorf("starting shard %d: %w", i, err))
		}
	}

	var firstErr error
	for i, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "recgen",
				"shard":     i,
			}).WithError(err).Error("subprocess exited with error")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
