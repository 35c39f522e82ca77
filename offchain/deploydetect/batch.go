package deploydetect

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

const DefaultBatchWorkers = 4

var errNotRun = errors.New("detection not run")

type BatchResult struct {
	ProgramID string
	Result    Result
	Err       error
}

// DetectMany runs Detect for each id on a bounded worker pool. Results are
// returned in input order. Each detection is still sequential internally.
func (d *Detector) DetectMany(ctx context.Context, ids []string, workers int) []BatchResult {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	out := make([]BatchResult, len(ids))
	for i, id := range ids {
		out[i] = BatchResult{ProgramID: id, Err: errNotRun}
	}
	if len(ids) == 0 {
		return out
	}

	pool := pond.NewPool(workers, pond.WithQueueSize(len(ids)))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, id := range ids {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				out[i].Err = err
				return
			}
			res, err := d.Detect(groupCtx, id)
			out[i] = BatchResult{ProgramID: id, Result: res, Err: err}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		d.opts.logger.Warn("batch detection group encountered error", zap.Error(err))
	}
	for i := range out {
		if errors.Is(out[i].Err, errNotRun) {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
			} else {
				out[i].Err = fmt.Errorf("%w: %s", errNotRun, out[i].ProgramID)
			}
		}
	}
	return out
}
