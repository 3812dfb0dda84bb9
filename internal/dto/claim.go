package dto

import (
	"time"

	"github.com/munlink-zambales/claimdesk-api/internal/models"
)

// IssueClaimRequest optionally bounds the pickup window of a new ticket.
type IssueClaimRequest struct {
	WindowStart *time.Time `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`
}

// Window converts the payload to a claim window.
func (r IssueClaimRequest) Window() models.ClaimWindow {
	return models.ClaimWindow{Start: r.WindowStart, End: r.WindowEnd}
}

// ClaimPayload is shown to staff exactly once, right after issuance.
type ClaimPayload struct {
	QRPath      string     `json:"qr_path"`
	QRPayload   string     `json:"qr_payload"`
	CodeMasked  string     `json:"code_masked"`
	Code        string     `json:"code"`
	Token       string     `json:"token"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Superseded  bool       `json:"superseded"`
}

// IssueClaimResponse is returned by ready-for-pickup and claim-token.
type IssueClaimResponse struct {
	Message string         `json:"message,omitempty"`
	Warning string         `json:"warning,omitempty"`
	Claim   ClaimPayload   `json:"claim"`
	Request RequestSummary `json:"request"`
}

// RequestSummary is the staff view of a document request.
type RequestSummary struct {
	ID               int64      `json:"id"`
	RequestNumber    string     `json:"request_number"`
	Status           string     `json:"status"`
	DeliveryMethod   string     `json:"delivery_method"`
	ResidentName     string     `json:"resident_name"`
	DocumentName     string     `json:"document_name"`
	MunicipalityName string     `json:"municipality_name"`
	ReadyAt          *time.Time `json:"ready_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewRequestSummary maps a request to its staff view.
func NewRequestSummary(req *models.DocumentRequest) RequestSummary {
	return RequestSummary{
		ID:               req.ID,
		RequestNumber:    req.RequestNumber,
		Status:           string(req.Status),
		DeliveryMethod:   string(req.DeliveryMethod),
		ResidentName:     req.ResidentName,
		DocumentName:     req.DocumentName,
		MunicipalityName: req.MunicipalityName,
		ReadyAt:          req.ReadyAt,
		CompletedAt:      req.CompletedAt,
		UpdatedAt:        req.UpdatedAt,
	}
}

// VerifyClaimRequest carries either a scanned token (or full QR payload) or
// a typed code together with the request id.
type VerifyClaimRequest struct {
	Token     string `json:"token" validate:"omitempty,max=2048"`
	RequestID *int64 `json:"request_id" validate:"omitempty,gt=0"`
	Code      string `json:"code" validate:"omitempty,max=32"`
}

// VerifiedRequest lists the only request fields a verifier sees.
type VerifiedRequest struct {
	ID            int64  `json:"id"`
	RequestNumber string `json:"request_number"`
	Resident      string `json:"resident"`
	Document      string `json:"document"`
	Status        string `json:"status"`
}

// VerifyClaimResponse is the verifier contract. It is written outside the
// standard envelope.
type VerifyClaimResponse struct {
	OK           bool             `json:"ok"`
	Request      *VerifiedRequest `json:"request,omitempty"`
	Municipality string           `json:"municipality,omitempty"`
	WindowStart  *time.Time       `json:"window_start,omitempty"`
	WindowEnd    *time.Time       `json:"window_end,omitempty"`
	Error        string           `json:"error,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// ResidentClaimTicket is the resident's view of their live ticket.
type ResidentClaimTicket struct {
	RequestID      int64      `json:"request_id"`
	RequestNumber  string     `json:"request_number"`
	QRURL          string     `json:"qr_url"`
	QRURLExpiresAt time.Time  `json:"qr_url_expires_at"`
	CodeMasked     string     `json:"code_masked"`
	CodePlain      *string    `json:"code_plain,omitempty"`
	MuniName       string     `json:"muni_name"`
	DocName        string     `json:"doc_name"`
	WindowStart    *time.Time `json:"window_start,omitempty"`
	WindowEnd      *time.Time `json:"window_end,omitempty"`
}

// UpdateStatusRequest moves a request through its lifecycle.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved processing ready picked_up completed rejected cancelled"`
	Notes  string `json:"notes" validate:"max=1000"`
}

// UpdateStatusResponse reports the applied transition.
type UpdateStatusResponse struct {
	Request        RequestSummary `json:"request"`
	TicketConsumed bool           `json:"ticket_consumed"`
}
