package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/munlink-zambales/claimdesk-api/internal/claim"
	"github.com/munlink-zambales/claimdesk-api/internal/dto"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
	"github.com/munlink-zambales/claimdesk-api/internal/repository"
	appErrors "github.com/munlink-zambales/claimdesk-api/pkg/errors"
	"github.com/munlink-zambales/claimdesk-api/pkg/signing"
)

const qrLinkPurpose = "claim-qr"

type documentRequestStore interface {
	FindByID(ctx context.Context, id int64) (*models.DocumentRequest, error)
	UpdateStatus(ctx context.Context, change models.StatusChange) error
}

type claimTicketStore interface {
	Put(ctx context.Context, ticket *models.ClaimTicket) ([]string, error)
	GetByToken(ctx context.Context, token string) (*models.ClaimTicket, error)
	GetByCode(ctx context.Context, code string, requestID int64) (*models.ClaimTicket, error)
	LatestForRequest(ctx context.Context, requestID int64) (*models.ClaimTicket, error)
	FindByID(ctx context.Context, id string) (*models.ClaimTicket, error)
	MarkConsumed(ctx context.Context, ticketID string, when time.Time, by int64) (bool, error)
	ConsumeForPickup(ctx context.Context, ticketID string, requestID int64, when time.Time, by int64) (bool, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type pickupNotifier interface {
	NotifyReadyForPickup(ctx context.Context, req *models.DocumentRequest, ticket *models.ClaimTicket) error
}

// ClaimConfig tunes ticket issuance.
type ClaimConfig struct {
	TokenTTL time.Duration
}

// QRLinker mints short-lived links to a ticket's QR image.
type QRLinker struct {
	signer *signing.SignedURLSigner
	base   string
}

// NewQRLinker builds links of the form <base>/<signature>.
func NewQRLinker(signer *signing.SignedURLSigner, base string) *QRLinker {
	return &QRLinker{signer: signer, base: base}
}

// URL returns a fresh signed link to the QR image of ticketID.
func (l *QRLinker) URL(ticketID string) (string, time.Time, error) {
	sig, exp, err := l.signer.Generate(ticketID, qrLinkPurpose)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign qr link: %w", err)
	}
	return l.base + "/" + sig, exp, nil
}

// Resolve returns the ticket id a signed link points at.
func (l *QRLinker) Resolve(signature string) (string, error) {
	id, _, err := l.signer.Parse(signature, qrLinkPurpose)
	return id, err
}

// ClaimService issues, verifies and consumes claim tickets.
type ClaimService struct {
	requests documentRequestStore
	tickets  claimTicketStore
	audit    auditWriter
	codec    *claim.Codec
	keys     *claim.Keyring
	links    *QRLinker
	notifier pickupNotifier
	metrics  *MetricsService
	logger   *zap.Logger
	config   ClaimConfig
	now      func() time.Time
}

// NewClaimService constructs a ClaimService.
func NewClaimService(requests documentRequestStore, tickets claimTicketStore, audit auditWriter, codec *claim.Codec, keys *claim.Keyring, links *QRLinker, logger *zap.Logger, config ClaimConfig) *ClaimService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 14 * 24 * time.Hour
	}
	return &ClaimService{
		requests: requests,
		tickets:  tickets,
		audit:    audit,
		codec:    codec,
		keys:     keys,
		links:    links,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNotifier enables the ready-for-pickup email.
func (s *ClaimService) WithNotifier(n pickupNotifier) *ClaimService {
	s.notifier = n
	return s
}

// WithMetrics enables claim counters.
func (s *ClaimService) WithMetrics(m *MetricsService) *ClaimService {
	s.metrics = m
	return s
}

// WithClock overrides the time source.
func (s *ClaimService) WithClock(now func() time.Time) *ClaimService {
	s.now = now
	return s
}

// ReadyForPickup marks an approved or processing pickup request as ready and
// issues its ticket. Calling it on a request already ready reissues.
func (s *ClaimService) ReadyForPickup(ctx context.Context, requestID int64, window models.ClaimWindow, actor models.Actor) (*dto.IssueClaimResponse, error) {
	req, err := s.loadForStaff(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}
	if !req.DeliveryMethod.IsPickup() {
		return nil, appErrors.Clone(appErrors.ErrRequestNotEligible, "only pickup requests can be marked ready for pickup")
	}
	if err := s.validateWindow(window); err != nil {
		return nil, err
	}

	var change *models.StatusChange
	switch req.Status {
	case models.DocumentStatusReady:
	case models.DocumentStatusApproved, models.DocumentStatusProcessing:
		change = &models.StatusChange{RequestID: req.ID, From: req.Status, To: models.DocumentStatusReady}
	default:
		return nil, appErrors.Clone(appErrors.ErrRequestNotEligible, fmt.Sprintf("request in status %s cannot be marked ready", req.Status))
	}

	// Issue before moving the status: a failed issue leaves the request untouched.
	issued, err := s.issue(ctx, req, window, actor)
	if err != nil {
		return nil, err
	}

	if change != nil {
		change.At = s.now()
		if err := s.requests.UpdateStatus(ctx, *change); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "request status changed, reload and retry")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
		}
		s.record(ctx, actor, models.AuditActionStatusChange, models.AuditResourceDocumentRequest, idString(req.ID),
			map[string]interface{}{"status": change.From}, map[string]interface{}{"status": change.To})
		req.Status = models.DocumentStatusReady
		req.ReadyAt = &change.At
		req.UpdatedAt = change.At
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyReadyForPickup(ctx, req, issued.Ticket); err != nil {
			s.logger.Warn("failed to queue pickup notification", zap.Int64("request_id", req.ID), zap.Error(err))
		}
	}

	resp, err := s.issueResponse(req, issued)
	if err != nil {
		return nil, err
	}
	resp.Message = "Marked ready for pickup"
	return resp, nil
}

// Issue creates a new ticket for the request, superseding any live one. The
// credentials in the response are never retrievable again.
func (s *ClaimService) Issue(ctx context.Context, requestID int64, window models.ClaimWindow, actor models.Actor) (*dto.IssueClaimResponse, error) {
	req, err := s.loadForStaff(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}
	if !req.DeliveryMethod.IsPickup() {
		return nil, appErrors.Clone(appErrors.ErrRequestNotEligible, "only pickup requests support claim tickets")
	}
	if !req.Status.ClaimEligible() {
		return nil, appErrors.Clone(appErrors.ErrRequestNotEligible, fmt.Sprintf("request in status %s cannot receive a claim ticket", req.Status))
	}
	if err := s.validateWindow(window); err != nil {
		return nil, err
	}

	issued, err := s.issue(ctx, req, window, actor)
	if err != nil {
		return nil, err
	}
	return s.issueResponse(req, issued)
}

// Regenerate reissues credentials for a request, invalidating any live ticket.
func (s *ClaimService) Regenerate(ctx context.Context, requestID int64, window models.ClaimWindow, actor models.Actor) (*dto.IssueClaimResponse, error) {
	return s.Issue(ctx, requestID, window, actor)
}

func (s *ClaimService) issue(ctx context.Context, req *models.DocumentRequest, window models.ClaimWindow, actor models.Actor) (*models.IssuedClaim, error) {
	creds, err := s.codec.Generate()
	if err != nil {
		s.logger.Error("claim credential generation failed", zap.Int64("request_id", req.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrRandomSourceFailure.Code, appErrors.ErrRandomSourceFailure.Status, appErrors.ErrRandomSourceFailure.Message)
	}

	now := s.now()
	expires := now.Add(s.config.TokenTTL)
	ticket := &models.ClaimTicket{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		TokenHash:   s.keys.TokenDigest(creds.Token),
		CodeMasked:  claim.Mask(creds.Code),
		WindowStart: window.Start,
		WindowEnd:   window.End,
		ExpiresAt:   &expires,
		IssuedBy:    &actor.UserID,
		CreatedAt:   now,
	}

	if ticket.TokenEnc, err = s.keys.Seal([]byte(creds.Token), ticket.ID); err != nil {
		return nil, s.sealFailure(err)
	}
	if ticket.CodeEnc, err = s.keys.Seal([]byte(creds.Code), ticket.ID); err != nil {
		return nil, s.sealFailure(err)
	}
	if ticket.CodeHash, err = s.keys.HashCode(creds.Code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to protect claim code")
	}

	superseded, err := s.tickets.Put(ctx, ticket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store claim ticket")
	}

	for _, oldID := range superseded {
		s.record(ctx, actor, models.AuditActionSupersedeClaimToken, models.AuditResourceClaimTicket, oldID,
			nil, map[string]interface{}{"request_id": req.ID, "superseded_by": ticket.ID})
	}
	s.record(ctx, actor, models.AuditActionGenerateClaimToken, models.AuditResourceClaimTicket, ticket.ID, nil, map[string]interface{}{
		"request_id":   req.ID,
		"code_masked":  ticket.CodeMasked,
		"window_start": ticket.WindowStart,
		"window_end":   ticket.WindowEnd,
		"expires_at":   ticket.ExpiresAt,
	})
	s.metrics.TicketIssued(len(superseded) > 0)
	s.logger.Info("claim ticket issued",
		zap.Int64("request_id", req.ID),
		zap.String("ticket_id", ticket.ID),
		zap.Int("superseded", len(superseded)),
		zap.Int64("actor_id", actor.UserID))

	return &models.IssuedClaim{
		Ticket:     ticket,
		Token:      creds.Token,
		Code:       creds.Code,
		Payload:    s.codec.Encode(creds.Token),
		Superseded: len(superseded) > 0,
	}, nil
}

func (s *ClaimService) issueResponse(req *models.DocumentRequest, issued *models.IssuedClaim) (*dto.IssueClaimResponse, error) {
	qrURL, _, err := s.links.URL(issued.Ticket.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign qr link")
	}
	resp := &dto.IssueClaimResponse{
		Claim: dto.ClaimPayload{
			QRPath:      qrURL,
			QRPayload:   issued.Payload,
			CodeMasked:  issued.Ticket.CodeMasked,
			Code:        issued.Code,
			Token:       issued.Token,
			WindowStart: issued.Ticket.WindowStart,
			WindowEnd:   issued.Ticket.WindowEnd,
			ExpiresAt:   issued.Ticket.ExpiresAt,
			Superseded:  issued.Superseded,
		},
		Request: dto.NewRequestSummary(req),
	}
	if issued.Superseded {
		resp.Warning = "A previous claim ticket for this request was invalidated. Only the new QR and code are valid."
	}
	return resp, nil
}

// VerifyInput is what a counter clerk presents: a scanned token, or a typed
// code together with the request id.
type VerifyInput struct {
	Token     string
	Code      string
	RequestID *int64
}

// Verify checks presented credentials without consuming the ticket. Failures
// are returned as *errors.Error carrying the claim error codes.
func (s *ClaimService) Verify(ctx context.Context, in VerifyInput, actor models.Actor) (*dto.VerifyClaimResponse, error) {
	if !actor.Role.IsStaff() {
		return nil, appErrors.ErrForbidden
	}

	var (
		ticket *models.ClaimTicket
		err    error
		path   string
	)

	switch {
	case in.Token != "":
		path = "token"
		token, decodeErr := claim.Decode(in.Token)
		if decodeErr != nil {
			return nil, s.verifyFailed(ctx, actor, path, nil, in.RequestID, appErrors.ErrTicketNotFound, "malformed_token")
		}
		ticket, err = s.tickets.GetByToken(ctx, token)
	case in.Code != "" || in.RequestID != nil:
		path = "code"
		if in.Code == "" || in.RequestID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "code and request_id are both required when no token is given")
		}
		if !claim.ValidCodeFormat(in.Code) {
			return nil, s.verifyFailed(ctx, actor, path, nil, in.RequestID, appErrors.ErrTicketNotFound, "malformed_code")
		}
		ticket, err = s.tickets.GetByCode(ctx, in.Code, *in.RequestID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "token, or code with request_id, is required")
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.verifyFailed(ctx, actor, path, nil, in.RequestID, appErrors.ErrTicketNotFound, "no_match")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up claim ticket")
	}
	if in.RequestID != nil && *in.RequestID != ticket.RequestID {
		return nil, s.verifyFailed(ctx, actor, path, ticket, in.RequestID, appErrors.ErrTicketNotFound, "request_mismatch")
	}

	req, err := s.requests.FindByID(ctx, ticket.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.verifyFailed(ctx, actor, path, ticket, nil, appErrors.ErrTicketNotFound, "request_missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document request")
	}
	if !actor.CanAccessMunicipality(req.MunicipalityID) {
		return nil, s.verifyFailed(ctx, actor, path, ticket, nil, appErrors.ErrTicketNotFound, "municipality_mismatch")
	}

	switch ticket.StateAt(s.now()) {
	case models.TicketStateSuperseded:
		return nil, s.verifyFailed(ctx, actor, path, ticket, nil, appErrors.ErrTicketNotFound, "superseded")
	case models.TicketStateConsumed:
		return nil, s.verifyFailed(ctx, actor, path, ticket, nil, appErrors.ErrTicketAlreadyConsumed, "consumed")
	case models.TicketStateExpired:
		return nil, s.verifyFailed(ctx, actor, path, ticket, nil, appErrors.ErrTicketExpired, "expired")
	case models.TicketStateNotYetValid:
		return nil, s.verifyFailed(ctx, actor, path, ticket, nil, appErrors.ErrTicketNotYetValid, "not_yet_valid")
	}
	if req.Status != models.DocumentStatusReady {
		return nil, s.verifyFailed(ctx, actor, path, ticket, nil,
			appErrors.Clone(appErrors.ErrRequestNotEligible, fmt.Sprintf("request is %s, not ready for pickup", req.Status)), "status_"+string(req.Status))
	}

	s.metrics.Verification(path, "ok")
	s.record(ctx, actor, models.AuditActionVerifyClaim, models.AuditResourceClaimTicket, ticket.ID, nil,
		map[string]interface{}{"request_id": req.ID, "path": path})

	return &dto.VerifyClaimResponse{
		OK: true,
		Request: &dto.VerifiedRequest{
			ID:            req.ID,
			RequestNumber: req.RequestNumber,
			Resident:      req.ResidentName,
			Document:      req.DocumentName,
			Status:        string(req.Status),
		},
		Municipality: req.MunicipalityName,
		WindowStart:  ticket.WindowStart,
		WindowEnd:    ticket.WindowEnd,
	}, nil
}

// verifyFailed audits a failed verification and returns the error to report.
// Only ids and the reason are recorded, never the presented credentials.
func (s *ClaimService) verifyFailed(ctx context.Context, actor models.Actor, path string, ticket *models.ClaimTicket, requestID *int64, failure *appErrors.Error, reason string) error {
	values := map[string]interface{}{"path": path, "reason": reason, "error": failure.Code}
	resource, resourceID := models.AuditResourceDocumentRequest, ""
	switch {
	case ticket != nil:
		resource, resourceID = models.AuditResourceClaimTicket, ticket.ID
		values["request_id"] = ticket.RequestID
	case requestID != nil:
		resourceID = idString(*requestID)
		values["request_id"] = *requestID
	}
	s.record(ctx, actor, models.AuditActionVerifyClaimFailed, resource, resourceID, nil, values)
	s.metrics.Verification(path, failure.Code)
	return failure
}

// Consume marks the request's live ticket as used and moves the request to
// picked_up. The second of two concurrent calls gets TicketAlreadyConsumed.
func (s *ClaimService) Consume(ctx context.Context, requestID int64, actor models.Actor) error {
	req, err := s.loadForStaff(ctx, requestID, actor)
	if err != nil {
		return err
	}
	consumed, err := s.ConsumeForRequest(ctx, req, actor)
	if err != nil {
		return err
	}
	if !consumed {
		return appErrors.Clone(appErrors.ErrTicketNotFound, "no claim ticket issued for this request")
	}
	return nil
}

// ConsumeForRequest consumes the latest ticket of req as part of the pickup
// transition. It reports false when the request never had a ticket.
func (s *ClaimService) ConsumeForRequest(ctx context.Context, req *models.DocumentRequest, actor models.Actor) (bool, error) {
	ticket, err := s.tickets.LatestForRequest(ctx, req.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load claim ticket")
	}
	if ticket.ConsumedAt != nil {
		s.metrics.Consumption("already_consumed")
		return false, appErrors.ErrTicketAlreadyConsumed
	}

	now := s.now()
	ok, err := s.tickets.ConsumeForPickup(ctx, ticket.ID, req.ID, now, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			s.metrics.Consumption("not_ready")
			return false, appErrors.Clone(appErrors.ErrRequestNotEligible, "request is no longer ready for pickup")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume claim ticket")
	}
	if !ok {
		s.metrics.Consumption("lost_race")
		return false, appErrors.ErrTicketAlreadyConsumed
	}

	s.metrics.Consumption("ok")
	s.record(ctx, actor, models.AuditActionConsumeClaimToken, models.AuditResourceClaimTicket, ticket.ID, nil,
		map[string]interface{}{"request_id": req.ID, "consumed_at": now})
	s.record(ctx, actor, models.AuditActionStatusChange, models.AuditResourceDocumentRequest, idString(req.ID),
		map[string]interface{}{"status": req.Status}, map[string]interface{}{"status": models.DocumentStatusPickedUp})
	s.logger.Info("claim ticket consumed", zap.Int64("request_id", req.ID), zap.String("ticket_id", ticket.ID), zap.Int64("actor_id", actor.UserID))
	return true, nil
}

func (s *ClaimService) loadForStaff(ctx context.Context, requestID int64, actor models.Actor) (*models.DocumentRequest, error) {
	if !actor.Role.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document request")
	}
	if !actor.CanAccessMunicipality(req.MunicipalityID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request not in your municipality")
	}
	return req, nil
}

func (s *ClaimService) validateWindow(w models.ClaimWindow) error {
	now := s.now()
	if w.Start != nil && w.End != nil && w.End.Before(*w.Start) {
		return appErrors.Clone(appErrors.ErrValidation, "window_end must not be before window_start")
	}
	if w.End != nil && !w.End.After(now) {
		return appErrors.Clone(appErrors.ErrValidation, "window_end must be in the future")
	}
	// Tickets expire at now+TTL, so an end on that instant would close early.
	if w.End != nil && !w.End.Before(now.Add(s.config.TokenTTL)) {
		return appErrors.Clone(appErrors.ErrValidation, "window_end exceeds the maximum ticket lifetime")
	}
	if w.Start != nil && !w.Start.Before(now.Add(s.config.TokenTTL)) {
		return appErrors.Clone(appErrors.ErrValidation, "window_start exceeds the maximum ticket lifetime")
	}
	return nil
}

func (s *ClaimService) sealFailure(err error) error {
	if errors.Is(err, claim.ErrRandomSource) {
		return appErrors.Wrap(err, appErrors.ErrRandomSourceFailure.Code, appErrors.ErrRandomSourceFailure.Status, appErrors.ErrRandomSourceFailure.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seal claim ticket")
}

func (s *ClaimService) record(ctx context.Context, actor models.Actor, action, resource, resourceID string, oldValues, newValues map[string]interface{}) {
	recordAudit(ctx, s.audit, s.logger, actor, action, resource, resourceID, oldValues, newValues)
}

// recordAudit writes an audit row. Audit failures are logged and do not fail
// the operation.
func recordAudit(ctx context.Context, audit auditWriter, logger *zap.Logger, actor models.Actor, action, resource, resourceID string, oldValues, newValues map[string]interface{}) {
	if audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	}
	if actor.UserID != 0 {
		uid := actor.UserID
		entry.UserID = &uid
	}
	if resourceID != "" {
		rid := resourceID
		entry.ResourceID = &rid
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
