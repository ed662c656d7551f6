package observer

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"bizpulse/internal/alert"
	"bizpulse/internal/logger"
)

const sweepBatchSize = 100

// GoalSweeper raises goal failures for deadlines that passed without a
// lifecycle hook, e.g. goals nobody touched after their deadline.
type GoalSweeper struct {
	goals     GoalStore
	observers *Observers
	schedule  string
	logger    logger.Logger
}

func NewGoalSweeper(goals GoalStore, observers *Observers, schedule string, log logger.Logger) *GoalSweeper {
	return &GoalSweeper{goals: goals, observers: observers, schedule: schedule, logger: log}
}

// Run sweeps on the cron schedule until ctx is done. An empty schedule
// disables the sweep.
func (s *GoalSweeper) Run(ctx context.Context) error {
	if s.schedule == "" {
		s.logger.Infow("Goal sweep disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Errorw("Goal sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid goal sweep schedule %q: %w", s.schedule, err)
	}

	s.logger.Infow("Goal sweep scheduled", "schedule", s.schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Sweep dispatches one failure per overdue goal and marks it. A goal whose
// dispatch fails stays unmarked and is picked up by the next sweep.
func (s *GoalSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.observers.now()
	goals, err := s.goals.Overdue(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	raised := 0
	var errs []error
	for _, g := range goals {
		decision, err := s.observers.GoalClosed(ctx, goalInput(g), nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !decision.Dispatched {
			continue
		}
		if err := s.goals.MarkFailureAlerted(ctx, g.ID, now); err != nil {
			errs = append(errs, err)
			continue
		}
		raised++
	}

	if raised > 0 {
		s.logger.Infow("Goal sweep raised failures", "goals", raised, "scanned", len(goals))
	}
	return raised, errors.Join(errs...)
}

func goalInput(g OverdueGoal) alert.GoalFailedInput {
	return alert.GoalFailedInput{
		GoalID:              g.ID,
		GoalTitle:           g.Title,
		OwnerID:             g.OwnerID,
		OwnerName:           g.OwnerName,
		TargetValue:         g.TargetValue,
		AchievedValue:       g.CurrentValue,
		Deadline:            g.Deadline,
		ConsecutiveFailures: g.ConsecutiveFailures + 1,
		IsCriticalGoal:      g.IsCritical,
	}
}
