package application

import (
	"context"
	"log"
	"time"
)

// Scheduler drives the settlement pipeline. Every minute it runs one
// ingestion pass followed by one aggregation tick; once a day, at the
// configured local time, it confirms the periods that just closed.
type Scheduler struct {
	ingestion     *IngestionJob
	engine        *AggregationEngine
	confirmations *ConfirmationJob
	loc           *time.Location
	confirmAt     string
	logger        *log.Logger
	clock         Clock
}

// NewScheduler constructs a Scheduler. confirmAt is a local "15:04"
// wall time; an unparsable value disables confirmations.
func NewScheduler(
	ingestion *IngestionJob,
	engine *AggregationEngine,
	confirmations *ConfirmationJob,
	loc *time.Location,
	confirmAt string,
	logger *log.Logger,
	clock Clock,
) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		ingestion:     ingestion,
		engine:        engine,
		confirmations: confirmations,
		loc:           loc,
		confirmAt:     confirmAt,
		logger:        logger,
		clock:         clock,
	}
}

// Start begins the scheduler loop. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.RunMinute(ctx, now)
		}
	}
}

// RunMinute executes one scheduler minute: ingestion, aggregation and,
// when the local wall time matches, the confirmation cascade.
func (s *Scheduler) RunMinute(ctx context.Context, now time.Time) {
	if s.ingestion != nil {
		if _, err := s.ingestion.Run(ctx); err != nil && s.logger != nil {
			s.logger.Printf("scheduler: ingestion error: %v", err)
		}
	}
	if s.engine != nil {
		if _, err := s.engine.Tick(ctx); err != nil && s.logger != nil {
			s.logger.Printf("scheduler: aggregation error: %v", err)
		}
	}
	if s.confirmations != nil && s.shouldConfirm(now.In(s.loc)) {
		s.runConfirmations(ctx, now.In(s.loc))
	}
}

func (s *Scheduler) shouldConfirm(local time.Time) bool {
	at, err := time.Parse("15:04", s.confirmAt)
	if err != nil {
		return false
	}
	return local.Hour() == at.Hour() && local.Minute() == at.Minute()
}

// runConfirmations confirms yesterday's day and, on period boundaries,
// the week, month and year that just closed.
func (s *Scheduler) runConfirmations(ctx context.Context, local time.Time) {
	yesterday := local.AddDate(0, 0, -1)

	if _, err := s.confirmations.ConfirmDaily(ctx, yesterday); err != nil && s.logger != nil {
		s.logger.Printf("scheduler: daily confirmation error: %v", err)
	}
	if local.Weekday() == time.Monday {
		if _, err := s.confirmations.ConfirmWeekly(ctx, yesterday); err != nil && s.logger != nil {
			s.logger.Printf("scheduler: weekly confirmation error: %v", err)
		}
	}
	if local.Day() == 1 {
		if _, err := s.confirmations.ConfirmMonthly(ctx, yesterday); err != nil && s.logger != nil {
			s.logger.Printf("scheduler: monthly confirmation error: %v", err)
		}
	}
	if local.Month() == time.January && local.Day() == 1 {
		if _, err := s.confirmations.ConfirmYearly(ctx, yesterday); err != nil && s.logger != nil {
			s.logger.Printf("scheduler: yearly confirmation error: %v", err)
		}
	}
}
