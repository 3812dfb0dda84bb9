package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/munlink-zambales/claimdesk-api/internal/models"
)

// ErrStaleStatus is returned when a request's status changed between read and write.
var ErrStaleStatus = errors.New("document request status changed concurrently")

const documentRequestSelect = `SELECT dr.id, dr.request_number, dr.user_id, dr.document_type_id, dr.municipality_id,
	dr.delivery_method, dr.status, dr.created_at, dr.updated_at, dr.ready_at, dr.completed_at,
	TRIM(CONCAT(u.first_name, ' ', u.last_name)) AS resident_name, u.email AS resident_email,
	dt.name AS document_name, m.name AS municipality_name, m.slug AS municipality_slug
FROM document_requests dr
JOIN users u ON u.id = dr.user_id
JOIN document_types dt ON dt.id = dr.document_type_id
JOIN municipalities m ON m.id = dr.municipality_id`

// DocumentRequestRepository reads document requests and applies status transitions.
type DocumentRequestRepository struct {
	db *sqlx.DB
}

// NewDocumentRequestRepository constructs the repository.
func NewDocumentRequestRepository(db *sqlx.DB) *DocumentRequestRepository {
	return &DocumentRequestRepository{db: db}
}

// FindByID returns the request with resident, document and municipality names.
func (r *DocumentRequestRepository) FindByID(ctx context.Context, id int64) (*models.DocumentRequest, error) {
	var req models.DocumentRequest
	if err := r.db.GetContext(ctx, &req, documentRequestSelect+` WHERE dr.id = $1`, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateStatus moves a request from change.From to change.To. It fails with
// ErrStaleStatus when the stored status is no longer change.From.
func (r *DocumentRequestRepository) UpdateStatus(ctx context.Context, change models.StatusChange) error {
	const query = `UPDATE document_requests SET status = $1, updated_at = $2,
	ready_at = CASE WHEN $1 = 'ready' THEN $2 ELSE ready_at END,
	completed_at = CASE WHEN $1 IN ('completed', 'picked_up') THEN $2 ELSE completed_at END,
	admin_notes = COALESCE(NULLIF($3, ''), admin_notes)
WHERE id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, string(change.To), change.At, change.Notes, change.RequestID, string(change.From))
	if err != nil {
		return fmt.Errorf("update document request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document request status rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleStatus
	}
	return nil
}
