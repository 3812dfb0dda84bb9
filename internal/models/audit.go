package models

import "time"

// Audit actions written by the claim desk.
const (
	AuditActionGenerateClaimToken  = "generate_claim_token"
	AuditActionSupersedeClaimToken = "supersede_claim_token"
	AuditActionConsumeClaimToken   = "consume_claim_token"
	AuditActionRevealClaimCode     = "reveal_claim_code"
	AuditActionVerifyClaim         = "verify_claim"
	AuditActionVerifyClaimFailed   = "verify_claim_failed"
	AuditActionStatusChange        = "document_request_status_change"
)

// Audit resources.
const (
	AuditResourceClaimTicket     = "claim_ticket"
	AuditResourceDocumentRequest = "document_request"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
