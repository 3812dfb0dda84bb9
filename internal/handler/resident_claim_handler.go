package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/munlink-zambales/claimdesk-api/internal/dto"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
	"github.com/munlink-zambales/claimdesk-api/internal/service"
	"github.com/munlink-zambales/claimdesk-api/pkg/response"
)

type residentClaimService interface {
	GetTicket(ctx context.Context, requestID int64, reveal bool, actor models.Actor) (*dto.ResidentClaimTicket, error)
	TicketPDF(ctx context.Context, requestID int64, actor models.Actor) ([]byte, error)
	QRImage(ctx context.Context, signature string) ([]byte, error)
}

// ResidentClaimHandler exposes the resident ticket viewer.
type ResidentClaimHandler struct {
	service residentClaimService
}

// NewResidentClaimHandler constructs the handler.
func NewResidentClaimHandler(service residentClaimService) *ResidentClaimHandler {
	return &ResidentClaimHandler{service: service}
}

// GetTicket godoc
// @Summary Get the claim ticket of my request
// @Tags Resident Claims
// @Produce json
// @Param id path int true "Document request ID"
// @Param reveal query string false "Set to 1 to include the plain code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /documents/requests/{id}/claim-ticket [get]
func (h *ResidentClaimHandler) GetTicket(c *gin.Context) {
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

	reveal := c.Query("reveal") == "1" || c.Query("reveal") == "true"
	ticket, err := h.service.GetTicket(c.Request.Context(), id, reveal, actor)
	if err != nil {
		var throttled *service.ThrottledError
		if errors.As(err, &throttled) {
			response.RateLimited(c, int(math.Ceil(throttled.RetryAfter.Seconds())))
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ticket)
}

// TicketPDF godoc
// @Summary Download a printable claim ticket
// @Tags Resident Claims
// @Produce application/pdf
// @Param id path int true "Document request ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /documents/requests/{id}/claim-ticket.pdf [get]
func (h *ResidentClaimHandler) TicketPDF(c *gin.Context) {
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

	doc, err := h.service.TicketPDF(c.Request.Context(), id, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="claim-ticket-%d.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// QRImage godoc
// @Summary Render a claim ticket QR code from a signed link
// @Tags Resident Claims
// @Produce image/png
// @Param signature path string true "Signed link"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /claims/qr/{signature} [get]
func (h *ResidentClaimHandler) QRImage(c *gin.Context) {
	png, err := h.service.QRImage(c.Request.Context(), c.Param("signature"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Referrer-Policy", "no-referrer")
	c.Data(http.StatusOK, "image/png", png)
}
