// Package worker processes queued background jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/greenway-eco/backend/pkg/mailer"
	"github.com/greenway-eco/backend/pkg/queue"
)

// EmailSender delivers email.
type EmailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// ImageDeleter removes stored listing images.
type ImageDeleter interface {
	DeleteImage(ctx context.Context, key string) error
}

// JobQueue is the job source.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor runs email and image cleanup jobs.
type Processor struct {
	emails  EmailSender
	images  ImageDeleter
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewProcessor creates a job processor. images may be nil when image storage
// is not configured; cleanup jobs then fail and end up in the DLQ.
func NewProcessor(emails EmailSender, images ImageDeleter, q JobQueue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{emails: emails, images: images, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEmail:
		return p.processEmail(ctx, job)
	case queue.JobTypeImageCleanup:
		return p.processImageCleanup(ctx, job)
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

func (p *Processor) processEmail(ctx context.Context, job *queue.Job) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	err := p.emails.Send(ctx, mailer.Message{
		To:      payload.RecipientEmail,
		ToName:  payload.RecipientName,
		Subject: payload.Subject,
		HTML:    payload.BodyHTML,
	})
	if err != nil {
		return err
	}
	p.logger.Info("email sent", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

func (p *Processor) processImageCleanup(ctx context.Context, job *queue.Job) error {
	if p.images == nil {
		return errors.New("image storage is not configured")
	}
	var payload queue.ImageCleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	var errs []error
	for _, key := range payload.Keys {
		if err := p.images.DeleteImage(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	p.logger.Info("listing images removed", zap.String("listing_id", payload.ListingID), zap.Int("count", len(payload.Keys)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
