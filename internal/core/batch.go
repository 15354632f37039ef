package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/stmtnorm/internal/logging"
)

// ProcessBatch processes independent inputs in parallel, at most
// cfg.Workers at a time. Outcomes are returned in input order.
//
// Inputs whose content repeats an earlier input in the same batch are held
// back until the first copy has finished, so they resolve against its ledger
// entry instead of racing it. A failure or panic in one file never affects
// its siblings.
func (s *Service) ProcessBatch(ctx context.Context, inputs []InputFile) BatchResult {
	result := BatchResult{
		RunID:     logging.RunIDFromContext(ctx),
		Trigger:   TriggerFromContext(ctx),
		StartedAt: s.cfg.Now(),
		Outcomes:  make([]ProcessingOutcome, len(inputs)),
	}
	errs := make([]error, len(inputs))

	seen := make(map[string]bool, len(inputs))
	var firsts, repeats []int
	for i, in := range inputs {
		fp := Fingerprint(in.Data)
		if seen[fp] {
			repeats = append(repeats, i)
			continue
		}
		seen[fp] = true
		firsts = append(firsts, i)
	}

	for _, wave := range [][]int{firsts, repeats} {
		var g errgroup.Group
		g.SetLimit(s.cfg.Workers)
		for _, i := range wave {
			g.Go(func() error {
				result.Outcomes[i], errs[i] = s.processSafely(ctx, inputs[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, err := range errs {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", inputs[i].Name, err))
		}
	}
	result.FinishedAt = s.cfg.Now()
	return result
}

// processSafely converts a panic inside one file into a failed outcome.
func (s *Service) processSafely(ctx context.Context, in InputFile) (out ProcessingOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Enrich(ctx, s.logger).Error("panic while processing file",
				"file", in.Name,
				"panic", r,
			)
			err = fmt.Errorf("internal error: %v", r)
			out = ProcessingOutcome{
				FileName:    in.Name,
				Fingerprint: Fingerprint(in.Data),
				Status:      StatusFailed,
				Detail:      err.Error(),
			}
		}
	}()
	return s.ProcessFile(ctx, in)
}

// StartScheduler runs RunOnce every interval until ctx is cancelled.
// A tick is skipped when the limiter has no free slot, so a slow run is
// never stacked on by the timer. timeout bounds each run; 0 means no bound.
func (s *Service) StartScheduler(ctx context.Context, interval, timeout time.Duration, limiter *RunLimiter) {
	logger := logging.Enrich(ctx, s.logger)
	logger.Info("interval trigger started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("interval trigger stopped")
			return
		case <-ticker.C:
			slot, ok := limiter.TryAcquire(ContextWithTrigger(ctx, TriggerInterval))
			if !ok {
				logger.Debug("interval run skipped, another run is active")
				continue
			}
			s.runScheduled(ctx, timeout)
			slot.Release()
		}
	}
}

func (s *Service) runScheduled(ctx context.Context, timeout time.Duration) {
	runCtx := ContextWithTrigger(ctx, TriggerInterval)
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	if _, err := s.RunOnce(runCtx); err != nil {
		logging.Enrich(ctx, s.logger).Error("scheduled run failed", "error", err)
	}
}
