package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/munlink-zambales/claimdesk-api/internal/models"
	"github.com/munlink-zambales/claimdesk-api/pkg/jobs"
)

const jobTypePickupReady = "pickup_ready"

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// NotificationConfig configures the pickup email.
type NotificationConfig struct {
	APIKey     string
	From       string
	WebBaseURL string
	DevMode    bool
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// PickupNotice is the content of a ready-for-pickup email. It carries no ticket secrets.
type PickupNotice struct {
	RequestID        int64
	RequestNumber    string
	Email            string
	ResidentName     string
	DocumentName     string
	MunicipalityName string
	WindowStart      *time.Time
	WindowEnd        *time.Time
}

// NotificationService emails residents when a document is ready for pickup.
// Delivery is queued so the admin request never waits on the mail provider.
type NotificationService struct {
	sender  emailSender
	config  NotificationConfig
	queue   *jobs.Queue
	logger  *zap.Logger
	metrics *MetricsService
}

// NewNotificationService constructs the service. Without an API key, or in
// dev mode, emails are logged instead of sent.
func NewNotificationService(config NotificationConfig, logger *zap.Logger, metrics *MetricsService) *NotificationService {
	var sender emailSender
	if config.APIKey != "" && !config.DevMode {
		sender = resend.NewClient(config.APIKey).Emails
	}
	return newNotificationService(sender, config, logger, metrics)
}

func newNotificationService(sender emailSender, config NotificationConfig, logger *zap.Logger, metrics *MetricsService) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{sender: sender, config: config, logger: logger, metrics: metrics}
	s.queue = jobs.NewQueue("pickup-notifications", s.handle, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: config.Retries,
		RetryDelay: config.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains queued emails and stops the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyReadyForPickup queues the pickup email for req.
func (s *NotificationService) NotifyReadyForPickup(_ context.Context, req *models.DocumentRequest, ticket *models.ClaimTicket) error {
	if req.ResidentEmail == "" {
		s.metrics.Notification("skipped")
		return nil
	}
	notice := PickupNotice{
		RequestID:        req.ID,
		RequestNumber:    req.RequestNumber,
		Email:            req.ResidentEmail,
		ResidentName:     req.ResidentName,
		DocumentName:     req.DocumentName,
		MunicipalityName: req.MunicipalityName,
	}
	if ticket != nil {
		notice.WindowStart = ticket.WindowStart
		notice.WindowEnd = ticket.WindowEnd
	}
	id := fmt.Sprintf("request-%d", req.ID)
	if ticket != nil {
		id = ticket.ID
	}
	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: jobTypePickupReady, Payload: notice}); err != nil {
		s.metrics.Notification("dropped")
		return fmt.Errorf("queue pickup notification: %w", err)
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	notice, ok := job.Payload.(PickupNotice)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	return s.Deliver(ctx, notice)
}

// Deliver sends the pickup email synchronously.
func (s *NotificationService) Deliver(ctx context.Context, notice PickupNotice) error {
	subject, body := pickupReadyTemplate(notice, s.config.WebBaseURL)

	if s.config.DevMode {
		s.logger.Info("email sent (dev mode)",
			zap.String("type", jobTypePickupReady),
			zap.Int64("request_id", notice.RequestID),
			zap.String("subject", subject))
		s.metrics.Notification("logged")
		return nil
	}

	if s.sender == nil {
		s.metrics.Notification("unconfigured")
		return errors.New("email service not configured (missing RESEND_API_KEY)")
	}

	_, err := s.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{notice.Email},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		s.metrics.Notification("failed")
		return fmt.Errorf("send pickup email: %w", err)
	}
	s.metrics.Notification("sent")
	s.logger.Info("email sent", zap.String("type", jobTypePickupReady), zap.Int64("request_id", notice.RequestID))
	return nil
}

func pickupReadyTemplate(n PickupNotice, webBaseURL string) (string, string) {
	subject := fmt.Sprintf("Your %s is ready for pickup", n.DocumentName)

	var b strings.Builder
	name := n.ResidentName
	if name == "" {
		name = "resident"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "Your request %s for %s is ready for pickup at the %s municipal office.\n", n.RequestNumber, n.DocumentName, n.MunicipalityName)
	switch {
	case n.WindowStart != nil && n.WindowEnd != nil:
		fmt.Fprintf(&b, "Pickup window: %s to %s.\n", n.WindowStart.Format(time.RFC1123), n.WindowEnd.Format(time.RFC1123))
	case n.WindowEnd != nil:
		fmt.Fprintf(&b, "Please claim it before %s.\n", n.WindowEnd.Format(time.RFC1123))
	}
	b.WriteString("\nOpen your claim ticket in MunLink and show the QR code at the counter.\n")
	if webBaseURL != "" {
		fmt.Fprintf(&b, "%s/dashboard/requests/%d\n", strings.TrimRight(webBaseURL, "/"), n.RequestID)
	}
	b.WriteString("\nDo not share your claim ticket or code with anyone.\n")
	return subject, b.String()
}
