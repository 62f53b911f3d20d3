package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mailcal/internal/ics"
	"mailcal/internal/metrics"
	"mailcal/internal/models"
)

// CalendarExtension is the attachment suffix that marks a calendar file.
const CalendarExtension = ".ics"

// Mailbox is the source of inbound messages.
type Mailbox interface {
	FetchMessages(ctx context.Context) ([]models.InboundMessage, error)
	MarkSeen(ctx context.Context, uids []uint32) error
}

// Router maps a recipient to a destination calendar.
type Router interface {
	Resolve(recipient string) string
}

// Uploader writes one mail's events to a destination.
type Uploader interface {
	Upload(ctx context.Context, destination string, events []*models.CalendarEvent) models.BatchResult
}

// Options tune a Pipeline.
type Options struct {
	DryRun   bool // parse and route, but write nothing
	MarkSeen bool // flag messages \Seen after all their mails uploaded
}

// Pipeline orchestrates one fetch, parse, route, upload pass.
type Pipeline struct {
	logger   *slog.Logger
	mailbox  Mailbox
	router   Router
	uploader Uploader
	metrics  *metrics.Metrics
	opts     Options
}

// New creates a Pipeline. m may be nil.
func New(logger *slog.Logger, mailbox Mailbox, router Router, uploader Uploader, m *metrics.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		logger:   logger,
		mailbox:  mailbox,
		router:   router,
		uploader: uploader,
		metrics:  m,
		opts:     opts,
	}
}

// Run performs a full pass. Only a mailbox failure is returned as an error;
// parse and upload failures are logged and recorded in the report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	p.logger.Info("Starting pipeline pass.")

	messages, err := p.mailbox.FetchMessages(ctx)
	if err != nil {
		p.observePass("error", started)
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if p.metrics != nil {
		p.metrics.MessagesScanned.Add(float64(len(messages)))
	}

	mails := p.Collect(messages)
	p.logger.Info("Collected calendar mails.", "messages", len(messages), "mails", len(mails))

	report := &Report{Scanned: len(messages), DryRun: p.opts.DryRun}
	for _, mail := range mails {
		report.Results = append(report.Results, p.deliver(ctx, mail))
	}

	if p.opts.MarkSeen && !p.opts.DryRun {
		if uids := report.completedMessages(); len(uids) > 0 {
			if err := p.mailbox.MarkSeen(ctx, uids); err != nil {
				p.logger.Error("Failed to mark messages as seen", "count", len(uids), "error", err)
			}
		}
	}

	p.observePass("ok", started)
	p.logger.Info("Pipeline pass finished.", "mails", len(report.Results), "failed", report.Failed())
	return report, nil
}

// Collect extracts calendar mails from messages. Attachments without the
// calendar extension, and calendar attachments without events, are skipped.
func (p *Pipeline) Collect(messages []models.InboundMessage) []*models.ProcessedMail {
	var mails []*models.ProcessedMail
	for _, msg := range messages {
		p.logger.Debug("Processing email", "subject", msg.Subject, "from", msg.Sender, "to", msg.Recipient)
		for _, att := range msg.Attachments {
			if !strings.HasSuffix(strings.ToLower(att.Filename), CalendarExtension) {
				continue
			}
			p.logger.Info("Found calendar attachment", "subject", msg.Subject, "filename", att.Filename)

			events, err := ics.Parse(att.Data)
			if err != nil {
				p.logger.Error("Error parsing calendar attachment", "subject", msg.Subject, "filename", att.Filename, "error", err)
				p.countAttachment("error")
				continue
			}
			p.logger.Info("Parsed events from attachment", "filename", att.Filename, "count", len(events))
			if len(events) == 0 {
				p.countAttachment("empty")
				continue
			}
			p.countAttachment("ok")

			mails = append(mails, &models.ProcessedMail{
				MessageUID:    msg.UID,
				Subject:       msg.Subject,
				Sender:        msg.Sender,
				Recipient:     msg.Recipient,
				Filename:      att.Filename,
				RawAttachment: string(att.Data),
				Events:        events,
			})
		}
	}
	return mails
}

// deliver routes one mail and uploads its events.
func (p *Pipeline) deliver(ctx context.Context, mail *models.ProcessedMail) MailResult {
	destination := p.router.Resolve(mail.Recipient)
	p.logger.Info("Routing mail", "subject", mail.Subject, "to", mail.Recipient, "destination", destination)

	result := MailResult{Mail: mail, Destination: destination}
	if p.opts.DryRun {
		p.logger.Info("[DRY RUN] Would upload events", "destination", destination, "count", len(mail.Events))
		p.countMail("dry_run")
		return result
	}

	batch := p.uploader.Upload(ctx, destination, mail.Events)
	result.Batch = batch
	result.Attempted = true

	if p.metrics != nil {
		p.metrics.EventsUploaded.WithLabelValues(destination, "uploaded").Add(float64(batch.UploadedCount()))
		p.metrics.EventsUploaded.WithLabelValues(destination, "failed").Add(float64(len(batch.Outcomes) - batch.UploadedCount()))
		p.metrics.EventsUploaded.WithLabelValues(destination, "skipped").Add(float64(batch.Skipped))
	}

	if batch.Succeeded() {
		p.logger.Info("Uploaded mail", "subject", mail.Subject, "destination", destination, "events", batch.UploadedCount())
		p.countMail("success")
	} else {
		p.logger.Error("Failed to upload mail", "subject", mail.Subject, "destination", destination, "reason", batch.FailureReason())
		p.countMail("failure")
	}
	return result
}

func (p *Pipeline) countAttachment(result string) {
	if p.metrics != nil {
		p.metrics.AttachmentsParsed.WithLabelValues(result).Inc()
	}
}

func (p *Pipeline) countMail(result string) {
	if p.metrics != nil {
		p.metrics.MailsProcessed.WithLabelValues(result).Inc()
	}
}

func (p *Pipeline) observePass(result string, started time.Time) {
	if p.metrics != nil {
		p.metrics.PassesTotal.WithLabelValues(result).Inc()
		p.metrics.PassDuration.Observe(time.Since(started).Seconds())
	}
}
