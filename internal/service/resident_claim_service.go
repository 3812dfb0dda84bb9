package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/munlink-zambales/claimdesk-api/internal/claim"
	"github.com/munlink-zambales/claimdesk-api/internal/dto"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
	"github.com/munlink-zambales/claimdesk-api/internal/repository"
	appErrors "github.com/munlink-zambales/claimdesk-api/pkg/errors"
	"github.com/munlink-zambales/claimdesk-api/pkg/export"
)

const revealLimitResource = "claim_reveal"

type rateLimiter interface {
	Hit(ctx context.Context, resource, id string, limit int, window time.Duration) (repository.RateLimitResult, error)
}

type claimSheetRenderer interface {
	RenderClaimTicket(sheet export.ClaimSheet) ([]byte, error)
}

// ThrottledError carries how long a throttled caller should wait.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled, retry after %s", e.RetryAfter)
}

// ResidentClaimConfig tunes the resident ticket view.
type ResidentClaimConfig struct {
	RevealLimit  int
	RevealWindow time.Duration
	QRSize       int
}

// ResidentClaimService shows residents the live ticket of their own requests.
type ResidentClaimService struct {
	requests documentRequestStore
	tickets  claimTicketStore
	audit    auditWriter
	limiter  rateLimiter
	keys     *claim.Keyring
	codec    *claim.Codec
	links    *QRLinker
	sheets   claimSheetRenderer
	metrics  *MetricsService
	logger   *zap.Logger
	config   ResidentClaimConfig
	now      func() time.Time
}

// NewResidentClaimService constructs the service.
func NewResidentClaimService(requests documentRequestStore, tickets claimTicketStore, audit auditWriter, limiter rateLimiter, keys *claim.Keyring, codec *claim.Codec, links *QRLinker, sheets claimSheetRenderer, metrics *MetricsService, logger *zap.Logger, config ResidentClaimConfig) *ResidentClaimService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RevealLimit <= 0 {
		config.RevealLimit = 5
	}
	if config.RevealWindow <= 0 {
		config.RevealWindow = 15 * time.Minute
	}
	if config.QRSize <= 0 {
		config.QRSize = claim.DefaultQRSize
	}
	return &ResidentClaimService{
		requests: requests,
		tickets:  tickets,
		audit:    audit,
		limiter:  limiter,
		keys:     keys,
		codec:    codec,
		links:    links,
		sheets:   sheets,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *ResidentClaimService) WithClock(now func() time.Time) *ResidentClaimService {
	s.now = now
	return s
}

// GetTicket returns the resident's live ticket. With reveal the plain code is
// included; reveals are throttled per resident and request.
func (s *ResidentClaimService) GetTicket(ctx context.Context, requestID int64, reveal bool, actor models.Actor) (*dto.ResidentClaimTicket, error) {
	req, ticket, err := s.liveTicket(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}

	qrURL, qrExpires, err := s.links.URL(ticket.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign qr link")
	}

	resp := &dto.ResidentClaimTicket{
		RequestID:      req.ID,
		RequestNumber:  req.RequestNumber,
		QRURL:          qrURL,
		QRURLExpiresAt: qrExpires,
		CodeMasked:     ticket.CodeMasked,
		MuniName:       req.MunicipalityName,
		DocName:        req.DocumentName,
		WindowStart:    ticket.WindowStart,
		WindowEnd:      ticket.WindowEnd,
	}

	if reveal {
		code, err := s.reveal(ctx, req, ticket, actor)
		if err != nil {
			return nil, err
		}
		resp.CodePlain = &code
	}
	return resp, nil
}

func (s *ResidentClaimService) reveal(ctx context.Context, req *models.DocumentRequest, ticket *models.ClaimTicket, actor models.Actor) (string, error) {
	key := strconv.FormatInt(actor.UserID, 10) + ":" + strconv.FormatInt(req.ID, 10)
	result, err := s.limiter.Hit(ctx, revealLimitResource, key, s.config.RevealLimit, s.config.RevealWindow)
	switch {
	case err != nil:
		s.metrics.LimiterError()
		s.logger.Warn("reveal rate limiter unavailable, allowing request", zap.Int64("request_id", req.ID), zap.Error(err))
	case !result.Allowed:
		s.metrics.Reveal("throttled")
		return "", appErrors.Wrap(&ThrottledError{RetryAfter: result.RetryAfter}, appErrors.ErrRateLimited.Code, appErrors.ErrRateLimited.Status,
			"too many reveal attempts, try again later")
	}

	plain, err := s.keys.Open(ticket.CodeEnc, ticket.ID)
	if err != nil {
		s.metrics.Reveal("error")
		s.logger.Error("failed to open claim code", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reveal claim code")
	}

	s.metrics.Reveal("ok")
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionRevealClaimCode, models.AuditResourceClaimTicket, ticket.ID, nil,
		map[string]interface{}{"request_id": req.ID})
	return claim.FormatCode(string(plain)), nil
}

// QRImage renders the QR PNG a signed link points at. Links to tickets that
// are no longer live resolve to not found.
func (s *ResidentClaimService) QRImage(ctx context.Context, signature string) ([]byte, error) {
	ticketID, err := s.links.Resolve(signature)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "qr link is invalid or expired")
	}

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "qr link is invalid or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim ticket")
	}
	if !ticket.Live() || (ticket.ExpiresAt != nil && !s.now().Before(*ticket.ExpiresAt)) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "qr link is invalid or expired")
	}

	return s.renderQR(ticket)
}

// TicketPDF renders a printable ticket with the QR and the masked code.
func (s *ResidentClaimService) TicketPDF(ctx context.Context, requestID int64, actor models.Actor) ([]byte, error) {
	req, ticket, err := s.liveTicket(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}

	png, err := s.renderQR(ticket)
	if err != nil {
		return nil, err
	}

	doc, err := s.sheets.RenderClaimTicket(export.ClaimSheet{
		RequestNumber:    req.RequestNumber,
		ResidentName:     req.ResidentName,
		DocumentName:     req.DocumentName,
		MunicipalityName: req.MunicipalityName,
		CodeMasked:       ticket.CodeMasked,
		WindowStart:      ticket.WindowStart,
		WindowEnd:        ticket.WindowEnd,
		IssuedAt:         ticket.CreatedAt,
		QRPNG:            png,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render claim ticket")
	}
	return doc, nil
}

func (s *ResidentClaimService) renderQR(ticket *models.ClaimTicket) ([]byte, error) {
	token, err := s.keys.Open(ticket.TokenEnc, ticket.ID)
	if err != nil {
		s.logger.Error("failed to open claim token", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	png, err := claim.RenderQR(s.codec.Encode(string(token)), s.config.QRSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	return png, nil
}

// liveTicket loads a request owned by actor together with its live ticket.
// Requests of other residents look like missing ones.
func (s *ResidentClaimService) liveTicket(ctx context.Context, requestID int64, actor models.Actor) (*models.DocumentRequest, *models.ClaimTicket, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document request not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document request")
	}
	if req.UserID != actor.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document request not found")
	}
	if !req.DeliveryMethod.IsPickup() {
		return nil, nil, appErrors.Clone(appErrors.ErrRequestNotEligible, "claim tickets are only issued for pickup requests")
	}

	ticket, err := s.tickets.LatestForRequest(ctx, req.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "no claim ticket available yet")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim ticket")
	}
	if !ticket.Live() {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "no claim ticket available yet")
	}
	return req, ticket, nil
}
