package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainBroadcast "github.com/VladKovDev/subgate-bot/internal/domain/broadcast"
	"github.com/VladKovDev/subgate-bot/internal/metrics"
	"github.com/VladKovDev/subgate-bot/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deliverer copies the template message into one recipient's chat.
//
// Failures are reported through the broadcast error taxonomy:
// *RateLimitError, ErrRecipientBlocked, ErrRecipientDeactivated, or any
// other error for an unclassified failure.
type Deliverer interface {
	DeliverCopy(ctx context.Context, tmpl domainBroadcast.Template, recipientID int64) error
}

// RecipientStore is the part of the user store a broadcast needs.
type RecipientStore interface {
	ListAll(ctx context.Context) ([]int64, error)
	Remove(ctx context.Context, userID int64) error
}

type Options struct {
	// RatePerSecond spaces consecutive deliveries. Zero disables pacing.
	RatePerSecond float64
	// DegradeFailedRetry counts a failed post-flood-wait retry as an
	// unclassified failure instead of aborting the job.
	DegradeFailedRetry bool
}

// Dispatcher fans a template out to recipients one at a time, in order.
type Dispatcher struct {
	deliverer Deliverer
	store     RecipientStore
	limiter   *rate.Limiter
	degrade   bool
	sleep     func(ctx context.Context, d time.Duration) error
	logger    logger.Logger
}

func NewDispatcher(deliverer Deliverer, store RecipientStore, opts Options, log logger.Logger) *Dispatcher {
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Dispatcher{
		deliverer: deliverer,
		store:     store,
		limiter:   limiter,
		degrade:   opts.DegradeFailedRetry,
		sleep:     sleepContext,
		logger:    log.Named("broadcast"),
	}
}

// Run snapshots the user store and dispatches the template to every user in it.
func (d *Dispatcher) Run(ctx context.Context, tmpl domainBroadcast.Template) (domainBroadcast.Report, error) {
	recipients, err := d.store.ListAll(ctx)
	if err != nil {
		return domainBroadcast.Report{}, fmt.Errorf("failed to list recipients: %w", err)
	}
	return d.Dispatch(ctx, tmpl, recipients)
}

// Dispatch delivers tmpl to each recipient sequentially and returns the tally.
//
// A failed retry after a flood wait stops the job with an *AbortError unless
// DegradeFailedRetry is set; no report is returned in that case.
func (d *Dispatcher) Dispatch(ctx context.Context, tmpl domainBroadcast.Template, recipients []int64) (domainBroadcast.Report, error) {
	log := d.logger.With(zap.String("job_id", uuid.NewString()))
	log.Info("broadcast started",
		zap.Int64("from_chat_id", tmpl.ChatID),
		zap.Int("message_id", tmpl.MessageID),
		zap.Int("recipients", len(recipients)))

	start := time.Now()
	var report domainBroadcast.Report

	for _, id := range recipients {
		outcome, err := d.deliver(ctx, log, tmpl, id)
		metrics.IncBroadcastOutcome(string(outcome))

		if outcome == domainBroadcast.OutcomeAborted {
			metrics.IncBroadcastJob("aborted")
			log.Error("broadcast aborted",
				zap.Int64("user_id", id),
				zap.Int("processed", report.Total),
				zap.Error(err))
			return domainBroadcast.Report{}, &domainBroadcast.AbortError{
				RecipientID: id,
				Partial:     report,
				Err:         err,
			}
		}

		report.Record(outcome)
	}

	metrics.IncBroadcastJob("completed")
	log.Info("broadcast completed",
		zap.Int("total", report.Total),
		zap.Int("successful", report.Successful),
		zap.Int("blocked", report.Blocked),
		zap.Int("deleted", report.Deleted),
		zap.Int("unsuccessful", report.Unsuccessful),
		zap.Duration("duration", time.Since(start)))

	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, log logger.Logger, tmpl domainBroadcast.Template, id int64) (domainBroadcast.Outcome, error) {
	// Without pacing nothing else blocks on ctx before the send.
	if err := ctx.Err(); err != nil {
		return domainBroadcast.OutcomeAborted, err
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return domainBroadcast.OutcomeAborted, err
		}
	}

	err := d.deliverer.DeliverCopy(ctx, tmpl, id)

	var rateLimited *domainBroadcast.RateLimitError
	if !errors.As(err, &rateLimited) {
		return d.settle(ctx, log, id, err), err
	}

	metrics.IncBroadcastRateLimited()
	log.Warn("flood wait, retrying once",
		zap.Int64("user_id", id),
		zap.Duration("wait", rateLimited.Wait))

	if err := d.sleep(ctx, rateLimited.Wait); err != nil {
		return domainBroadcast.OutcomeAborted, err
	}

	err = d.deliverer.DeliverCopy(ctx, tmpl, id)
	if err == nil {
		return domainBroadcast.OutcomeDelivered, nil
	}
	if !d.degrade {
		return domainBroadcast.OutcomeAborted, fmt.Errorf("retry after flood wait: %w", err)
	}

	log.Error("broadcast failed", zap.Int64("user_id", id), zap.Error(err))
	return domainBroadcast.OutcomeFailed, err
}

// settle maps a non-rate-limit delivery result to an outcome and applies
// the store side effect for blocked and deactivated recipients.
func (d *Dispatcher) settle(ctx context.Context, log logger.Logger, id int64, err error) domainBroadcast.Outcome {
	switch {
	case err == nil:
		return domainBroadcast.OutcomeDelivered
	case errors.Is(err, domainBroadcast.ErrRecipientBlocked):
		d.remove(ctx, log, id)
		return domainBroadcast.OutcomeBlocked
	case errors.Is(err, domainBroadcast.ErrRecipientDeactivated):
		d.remove(ctx, log, id)
		return domainBroadcast.OutcomeDeactivated
	default:
		log.Error("broadcast failed", zap.Int64("user_id", id), zap.Error(err))
		return domainBroadcast.OutcomeFailed
	}
}

func (d *Dispatcher) remove(ctx context.Context, log logger.Logger, id int64) {
	if err := d.store.Remove(ctx, id); err != nil {
		log.Warn("failed to remove unreachable user", zap.Int64("user_id", id), zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
