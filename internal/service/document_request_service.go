package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/munlink-zambales/claimdesk-api/internal/models"
	"github.com/munlink-zambales/claimdesk-api/internal/repository"
	appErrors "github.com/munlink-zambales/claimdesk-api/pkg/errors"
)

type pickupConsumer interface {
	ConsumeForRequest(ctx context.Context, req *models.DocumentRequest, actor models.Actor) (bool, error)
}

// TransitionResult reports the request after a status change.
type TransitionResult struct {
	Request        *models.DocumentRequest
	TicketConsumed bool
}

// DocumentRequestService applies staff status transitions.
type DocumentRequestService struct {
	requests documentRequestStore
	consumer pickupConsumer
	audit    auditWriter
	logger   *zap.Logger
	now      func() time.Time
}

// NewDocumentRequestService constructs the service.
func NewDocumentRequestService(requests documentRequestStore, consumer pickupConsumer, audit auditWriter, logger *zap.Logger) *DocumentRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentRequestService{
		requests: requests,
		consumer: consumer,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *DocumentRequestService) WithClock(now func() time.Time) *DocumentRequestService {
	s.now = now
	return s
}

// TransitionStatus moves a request to status to. Moving a pickup request to
// picked_up consumes its ticket in the same transaction.
func (s *DocumentRequestService) TransitionStatus(ctx context.Context, requestID int64, to models.DocumentStatus, notes string, actor models.Actor) (*TransitionResult, error) {
	if !actor.Role.IsStaff() {
		return nil, appErrors.ErrForbidden
	}
	if !to.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", to))
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

	if req.Status == to {
		return &TransitionResult{Request: req}, nil
	}
	if !req.Status.CanTransitionTo(to) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move request from %s to %s", req.Status, to))
	}

	if to == models.DocumentStatusPickedUp {
		return s.pickUp(ctx, req, actor)
	}

	change := models.StatusChange{RequestID: req.ID, From: req.Status, To: to, At: s.now(), Notes: notes}
	if err := s.requests.UpdateStatus(ctx, change); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request status changed, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
	}

	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionStatusChange, models.AuditResourceDocumentRequest, idString(req.ID),
		map[string]interface{}{"status": change.From}, map[string]interface{}{"status": change.To, "notes": notes})
	applyChange(req, change)
	return &TransitionResult{Request: req}, nil
}

func (s *DocumentRequestService) pickUp(ctx context.Context, req *models.DocumentRequest, actor models.Actor) (*TransitionResult, error) {
	if !req.DeliveryMethod.IsPickup() {
		return nil, appErrors.Clone(appErrors.ErrRequestNotEligible, "only pickup requests can be marked picked up")
	}

	consumed, err := s.consumer.ConsumeForRequest(ctx, req, actor)
	if err != nil {
		return nil, err
	}

	change := models.StatusChange{RequestID: req.ID, From: req.Status, To: models.DocumentStatusPickedUp, At: s.now()}
	if !consumed {
		// Requests readied before tickets existed have nothing to consume.
		if err := s.requests.UpdateStatus(ctx, change); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "request status changed, reload and retry")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
		}
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionStatusChange, models.AuditResourceDocumentRequest, idString(req.ID),
			map[string]interface{}{"status": change.From}, map[string]interface{}{"status": change.To})
	}

	applyChange(req, change)
	return &TransitionResult{Request: req, TicketConsumed: consumed}, nil
}

func applyChange(req *models.DocumentRequest, change models.StatusChange) {
	req.Status = change.To
	req.UpdatedAt = change.At
	switch change.To {
	case models.DocumentStatusReady:
		at := change.At
		req.ReadyAt = &at
	case models.DocumentStatusPickedUp, models.DocumentStatusCompleted:
		at := change.At
		req.CompletedAt = &at
	}
}
