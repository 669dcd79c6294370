package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/civitasfix/civitasfix-api/pkg/jobs"
	"github.com/civitasfix/civitasfix-api/pkg/mailer"
)

const mailJobType = "mail"

// MailOutcome reports what happened to a dispatch request. Dispatching never fails the caller.
type MailOutcome string

const (
	MailQueued  MailOutcome = "queued"
	MailSkipped MailOutcome = "skipped"
	MailDropped MailOutcome = "dropped"
	MailSent    MailOutcome = "sent"
	MailFailed  MailOutcome = "failed"
)

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// MailDispatcher hands notification emails to the background queue.
type MailDispatcher struct {
	queue   jobEnqueuer
	sender  mailer.Sender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMailDispatcher constructs a dispatcher. The queue is attached later with Attach
// because the queue needs Handle as its handler.
func NewMailDispatcher(sender mailer.Sender, metrics *MetricsService, logger *zap.Logger) *MailDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailDispatcher{sender: sender, metrics: metrics, logger: logger}
}

// Attach sets the queue used by Dispatch.
func (d *MailDispatcher) Attach(queue jobEnqueuer) {
	d.queue = queue
}

// Dispatch enqueues msg and reports the outcome without returning an error.
func (d *MailDispatcher) Dispatch(ctx context.Context, msg mailer.Message) MailOutcome {
	if d == nil {
		return MailSkipped
	}
	outcome := d.dispatch(msg)
	d.metrics.RecordMail(string(outcome))
	return outcome
}

func (d *MailDispatcher) dispatch(msg mailer.Message) MailOutcome {
	if d.queue == nil || len(msg.To) == 0 {
		return MailSkipped
	}
	if err := d.queue.Enqueue(jobs.Job{Type: mailJobType, Payload: msg}); err != nil {
		d.logger.Warn("mail dropped", zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
		return MailDropped
	}
	return MailQueued
}

// Handle is the queue handler that performs delivery.
func (d *MailDispatcher) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		d.logger.Error("unexpected mail payload", zap.String("job_id", job.ID))
		return nil
	}
	if d.sender == nil {
		return errors.New("mail sender not configured")
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.RecordMail(string(MailFailed))
		return fmt.Errorf("send mail %q: %w", msg.Subject, err)
	}
	d.metrics.RecordMail(string(MailSent))
	return nil
}
