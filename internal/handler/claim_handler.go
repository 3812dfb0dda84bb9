package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/munlink-zambales/claimdesk-api/internal/dto"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
	"github.com/munlink-zambales/claimdesk-api/internal/service"
	appErrors "github.com/munlink-zambales/claimdesk-api/pkg/errors"
	"github.com/munlink-zambales/claimdesk-api/pkg/response"
)

type claimService interface {
	ReadyForPickup(ctx context.Context, requestID int64, window models.ClaimWindow, actor models.Actor) (*dto.IssueClaimResponse, error)
	Regenerate(ctx context.Context, requestID int64, window models.ClaimWindow, actor models.Actor) (*dto.IssueClaimResponse, error)
	Verify(ctx context.Context, in service.VerifyInput, actor models.Actor) (*dto.VerifyClaimResponse, error)
}

type statusService interface {
	TransitionStatus(ctx context.Context, requestID int64, to models.DocumentStatus, notes string, actor models.Actor) (*service.TransitionResult, error)
}

// ClaimHandler exposes the staff claim desk endpoints.
type ClaimHandler struct {
	claims   claimService
	statuses statusService
	validate *validator.Validate
}

// NewClaimHandler constructs a claim handler.
func NewClaimHandler(claims claimService, statuses statusService, validate *validator.Validate) *ClaimHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ClaimHandler{claims: claims, statuses: statuses, validate: validate}
}

// ReadyForPickup godoc
// @Summary Mark a request ready for pickup and issue its claim ticket
// @Tags Claims
// @Accept json
// @Produce json
// @Param id path int true "Document request ID"
// @Param payload body dto.IssueClaimRequest false "Optional pickup window"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/documents/requests/{id}/ready-for-pickup [post]
func (h *ClaimHandler) ReadyForPickup(c *gin.Context) {
	h.issue(c, h.claims.ReadyForPickup)
}

// Regenerate godoc
// @Summary Issue or regenerate a claim ticket
// @Description Any live ticket for the request is invalidated. The code and token are shown only in this response.
// @Tags Claims
// @Accept json
// @Produce json
// @Param id path int true "Document request ID"
// @Param payload body dto.IssueClaimRequest false "Optional pickup window"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/documents/requests/{id}/claim-token [post]
func (h *ClaimHandler) Regenerate(c *gin.Context) {
	h.issue(c, h.claims.Regenerate)
}

type issueFunc func(ctx context.Context, requestID int64, window models.ClaimWindow, actor models.Actor) (*dto.IssueClaimResponse, error)

func (h *ClaimHandler) issue(c *gin.Context, fn issueFunc) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.IssueClaimRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid claim window payload"))
		return
	}

	res, err := fn(c.Request.Context(), id, req.Window(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Verify godoc
// @Summary Verify a claim ticket without consuming it
// @Description Accepts a scanned token or QR payload, or a typed code together with the request id. The body is returned outside the standard envelope.
// @Tags Claims
// @Accept json
// @Produce json
// @Param payload body dto.VerifyClaimRequest true "Presented credentials"
// @Success 200 {object} dto.VerifyClaimResponse
// @Failure 400 {object} dto.VerifyClaimResponse
// @Failure 404 {object} dto.VerifyClaimResponse
// @Failure 409 {object} dto.VerifyClaimResponse
// @Failure 410 {object} dto.VerifyClaimResponse
// @Router /admin/claim/verify [post]
func (h *ClaimHandler) Verify(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		writeVerifyError(c, err)
		return
	}

	var req dto.VerifyClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeVerifyError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verify payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeVerifyError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verify payload"))
		return
	}

	res, err := h.claims.Verify(c.Request.Context(), service.VerifyInput{
		Token:     req.Token,
		Code:      req.Code,
		RequestID: req.RequestID,
	}, actor)
	if err != nil {
		writeVerifyError(c, err)
		return
	}
	response.Raw(c, http.StatusOK, res)
}

func writeVerifyError(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	response.Raw(c, appErr.Status, dto.VerifyClaimResponse{OK: false, Error: appErr.Code, Message: appErr.Message})
}

// UpdateStatus godoc
// @Summary Move a document request to a new status
// @Description Moving a pickup request to picked_up consumes its claim ticket.
// @Tags Claims
// @Accept json
// @Produce json
// @Param id path int true "Document request ID"
// @Param payload body dto.UpdateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/documents/requests/{id}/status [put]
func (h *ClaimHandler) UpdateStatus(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	res, err := h.statuses.TransitionStatus(c.Request.Context(), id, models.DocumentStatus(req.Status), req.Notes, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.UpdateStatusResponse{
		Request:        dto.NewRequestSummary(res.Request),
		TicketConsumed: res.TicketConsumed,
	})
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
