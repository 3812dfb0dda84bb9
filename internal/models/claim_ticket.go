package models

import "time"

// TicketState is the derived validity state of a claim ticket at a point in time.
type TicketState string

const (
	TicketStateActive      TicketState = "active"
	TicketStateConsumed    TicketState = "consumed"
	TicketStateSuperseded  TicketState = "superseded"
	TicketStateExpired     TicketState = "expired"
	TicketStateNotYetValid TicketState = "not_yet_valid"
)

// ClaimTicket is the persisted form of a pickup ticket. Only digests and
// sealed copies of the credentials are stored.
type ClaimTicket struct {
	ID           string     `db:"id" json:"id"`
	RequestID    int64      `db:"request_id" json:"request_id"`
	TokenHash    []byte     `db:"token_hash" json:"-"`
	TokenEnc     []byte     `db:"token_enc" json:"-"`
	CodeHash     []byte     `db:"code_hash" json:"-"`
	CodeEnc      []byte     `db:"code_enc" json:"-"`
	CodeMasked   string     `db:"code_masked" json:"code_masked"`
	WindowStart  *time.Time `db:"window_start" json:"window_start,omitempty"`
	WindowEnd    *time.Time `db:"window_end" json:"window_end,omitempty"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IssuedBy     *int64     `db:"issued_by" json:"issued_by,omitempty"`
	SupersededAt *time.Time `db:"superseded_at" json:"superseded_at,omitempty"`
	ConsumedAt   *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	ConsumedBy   *int64     `db:"consumed_by" json:"consumed_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// StateAt derives the ticket state at now. Consumption and supersession take
// precedence over the time window.
func (t *ClaimTicket) StateAt(now time.Time) TicketState {
	switch {
	case t.ConsumedAt != nil:
		return TicketStateConsumed
	case t.SupersededAt != nil:
		return TicketStateSuperseded
	case t.ExpiresAt != nil && !now.Before(*t.ExpiresAt):
		return TicketStateExpired
	case t.WindowEnd != nil && now.After(*t.WindowEnd):
		return TicketStateExpired
	case t.WindowStart != nil && now.Before(*t.WindowStart):
		return TicketStateNotYetValid
	}
	return TicketStateActive
}

// Live reports whether the ticket still occupies the request's single live slot.
func (t *ClaimTicket) Live() bool {
	return t.ConsumedAt == nil && t.SupersededAt == nil
}

// ClaimWindow bounds when a ticket may be presented. Either end may be open.
type ClaimWindow struct {
	Start *time.Time
	End   *time.Time
}

// IssuedClaim is returned once at issuance. Token and Code are never stored in clear.
type IssuedClaim struct {
	Ticket     *ClaimTicket
	Token      string
	Code       string
	Payload    string
	Superseded bool
}
