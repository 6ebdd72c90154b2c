package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/velopay/gateway_api/internal/metrics"
	"github.com/velopay/gateway_api/internal/queue"
)

// SchedulerWorker promotes due scheduled jobs (webhook retries waiting out
// their backoff) onto the ready queue on a fixed interval.
type SchedulerWorker struct {
	jobs     *queue.Queue
	interval time.Duration
}

// NewSchedulerWorker constructs a SchedulerWorker.
func NewSchedulerWorker(jobs *queue.Queue, interval time.Duration) *SchedulerWorker {
	return &SchedulerWorker{
		jobs:     jobs,
		interval: interval,
	}
}

// Start begins the promotion loop and listens for context cancellation.
func (w *SchedulerWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting scheduler worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Scheduler worker stopped")
			return
		}
	}
}

func (w *SchedulerWorker) run(ctx context.Context) {
	promoted, err := w.jobs.PromoteDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to promote scheduled jobs")
		return
	}
	if promoted > 0 {
		log.Debug().Int("count", promoted).Msg("Promoted scheduled jobs")
	}

	status, err := w.jobs.Status(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues("queued").Set(float64(status.Queued))
	metrics.QueueDepth.WithLabelValues("in_flight").Set(float64(status.InFlight))
	metrics.QueueDepth.WithLabelValues("scheduled").Set(float64(status.Scheduled))
	metrics.QueueDepth.WithLabelValues("dead_lettered").Set(float64(status.DeadLettered))
}
