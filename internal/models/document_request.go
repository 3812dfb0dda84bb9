package models

import (
	"strings"
	"time"
)

// DocumentStatus is the lifecycle state of a document request.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusApproved   DocumentStatus = "approved"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusPickedUp   DocumentStatus = "picked_up"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusRejected   DocumentStatus = "rejected"
	DocumentStatusCancelled  DocumentStatus = "cancelled"
)

var statusTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusPending:    {DocumentStatusApproved, DocumentStatusRejected, DocumentStatusCancelled},
	DocumentStatusApproved:   {DocumentStatusProcessing, DocumentStatusRejected, DocumentStatusCancelled},
	DocumentStatusProcessing: {DocumentStatusReady, DocumentStatusCompleted, DocumentStatusRejected, DocumentStatusCancelled},
	DocumentStatusReady:      {DocumentStatusCompleted, DocumentStatusPickedUp, DocumentStatusRejected, DocumentStatusCancelled},
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusApproved, DocumentStatusProcessing, DocumentStatusReady,
		DocumentStatusPickedUp, DocumentStatusCompleted, DocumentStatusRejected, DocumentStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ClaimEligible reports whether a ticket may be issued in this status.
func (s DocumentStatus) ClaimEligible() bool {
	switch s {
	case DocumentStatusApproved, DocumentStatusProcessing, DocumentStatusReady:
		return true
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s DocumentStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// DeliveryMethod is how a resident receives the document.
type DeliveryMethod string

const (
	DeliveryDigital DeliveryMethod = "digital"
	DeliveryPickup  DeliveryMethod = "pickup"
	// DeliveryPhysical is the legacy spelling of DeliveryPickup.
	DeliveryPhysical DeliveryMethod = "physical"
)

// IsPickup reports whether the document is collected at the municipal office.
func (m DeliveryMethod) IsPickup() bool {
	switch DeliveryMethod(strings.ToLower(string(m))) {
	case DeliveryPickup, DeliveryPhysical:
		return true
	}
	return false
}

// DocumentRequest is a resident's request joined with the names the claim
// desk displays.
type DocumentRequest struct {
	ID               int64          `db:"id" json:"id"`
	RequestNumber    string         `db:"request_number" json:"request_number"`
	UserID           int64          `db:"user_id" json:"user_id"`
	DocumentTypeID   int64          `db:"document_type_id" json:"document_type_id"`
	MunicipalityID   int64          `db:"municipality_id" json:"municipality_id"`
	DeliveryMethod   DeliveryMethod `db:"delivery_method" json:"delivery_method"`
	Status           DocumentStatus `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
	ReadyAt          *time.Time     `db:"ready_at" json:"ready_at,omitempty"`
	CompletedAt      *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	ResidentName     string         `db:"resident_name" json:"resident_name"`
	ResidentEmail    string         `db:"resident_email" json:"-"`
	DocumentName     string         `db:"document_name" json:"document_name"`
	MunicipalityName string         `db:"municipality_name" json:"municipality_name"`
	MunicipalitySlug string         `db:"municipality_slug" json:"municipality_slug"`
}

// StatusChange records a transition applied to a request.
type StatusChange struct {
	RequestID int64
	From      DocumentStatus
	To        DocumentStatus
	At        time.Time
	Notes     string
}
