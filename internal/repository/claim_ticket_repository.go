package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/munlink-zambales/claimdesk-api/internal/claim"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
)

// TokenHasher computes the lookup digest stored for a ticket token.
type TokenHasher interface {
	TokenDigest(token string) []byte
}

const claimTicketColumns = `id, request_id, token_hash, token_enc, code_hash, code_enc, code_masked,
	window_start, window_end, expires_at, issued_by, superseded_at, consumed_at, consumed_by, created_at`

// ClaimTicketRepository persists claim tickets. Tickets are never deleted.
type ClaimTicketRepository struct {
	db     *sqlx.DB
	hasher TokenHasher
}

// NewClaimTicketRepository constructs the repository.
func NewClaimTicketRepository(db *sqlx.DB, hasher TokenHasher) *ClaimTicketRepository {
	return &ClaimTicketRepository{db: db, hasher: hasher}
}

// Put stores ticket as the request's live ticket, superseding the previous
// one in the same transaction. It returns the ids of superseded tickets.
func (r *ClaimTicketRepository) Put(ctx context.Context, ticket *models.ClaimTicket) (superseded []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim ticket transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var requestID int64
	if err = tx.GetContext(ctx, &requestID, `SELECT id FROM document_requests WHERE id = $1 FOR UPDATE`, ticket.RequestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock document request: %w", err)
	}

	const supersedeQuery = `UPDATE claim_tickets SET superseded_at = $1
WHERE request_id = $2 AND consumed_at IS NULL AND superseded_at IS NULL RETURNING id`
	if err = tx.SelectContext(ctx, &superseded, supersedeQuery, ticket.CreatedAt, ticket.RequestID); err != nil {
		return nil, fmt.Errorf("supersede claim tickets: %w", err)
	}

	const insertQuery = `INSERT INTO claim_tickets (` + claimTicketColumns + `) VALUES (:id, :request_id, :token_hash, :token_enc, :code_hash, :code_enc, :code_masked,
	:window_start, :window_end, :expires_at, :issued_by, :superseded_at, :consumed_at, :consumed_by, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, ticket); err != nil {
		return nil, fmt.Errorf("insert claim ticket: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim ticket: %w", err)
	}
	return superseded, nil
}

// GetByToken looks a ticket up by its token whatever its state.
func (r *ClaimTicketRepository) GetByToken(ctx context.Context, token string) (*models.ClaimTicket, error) {
	var ticket models.ClaimTicket
	query := `SELECT ` + claimTicketColumns + ` FROM claim_tickets WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &ticket, query, r.hasher.TokenDigest(token)); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetByCode returns the request's latest non-superseded ticket when code
// matches it. Neither value alone identifies a ticket.
func (r *ClaimTicketRepository) GetByCode(ctx context.Context, code string, requestID int64) (*models.ClaimTicket, error) {
	ticket, err := r.LatestForRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			claim.CompareAbsentCode(code)
		}
		return nil, err
	}
	if !claim.CompareCode(ticket.CodeHash, code) {
		return nil, sql.ErrNoRows
	}
	return ticket, nil
}

// LatestForRequest returns the newest non-superseded ticket, which may be consumed.
func (r *ClaimTicketRepository) LatestForRequest(ctx context.Context, requestID int64) (*models.ClaimTicket, error) {
	var ticket models.ClaimTicket
	query := `SELECT ` + claimTicketColumns + ` FROM claim_tickets
WHERE request_id = $1 AND superseded_at IS NULL ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &ticket, query, requestID); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// FindByID returns a ticket by id.
func (r *ClaimTicketRepository) FindByID(ctx context.Context, id string) (*models.ClaimTicket, error) {
	var ticket models.ClaimTicket
	if err := r.db.GetContext(ctx, &ticket, `SELECT `+claimTicketColumns+` FROM claim_tickets WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkConsumed consumes a live ticket. It reports false without error when
// the ticket was already consumed or superseded.
func (r *ClaimTicketRepository) MarkConsumed(ctx context.Context, ticketID string, when time.Time, by int64) (bool, error) {
	return markConsumed(ctx, r.db, ticketID, when, by)
}

// ConsumeForPickup consumes the ticket and moves its request from ready to
// picked_up atomically. ErrStaleStatus is returned if the request left ready.
func (r *ClaimTicketRepository) ConsumeForPickup(ctx context.Context, ticketID string, requestID int64, when time.Time, by int64) (ok bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin pickup transaction: %w", err)
	}
	defer func() {
		if err != nil || !ok {
			_ = tx.Rollback()
		}
	}()

	if ok, err = markConsumed(ctx, tx, ticketID, when, by); err != nil || !ok {
		return ok, err
	}

	const statusQuery = `UPDATE document_requests SET status = 'picked_up', updated_at = $1, completed_at = $1
WHERE id = $2 AND status = 'ready'`
	res, err := tx.ExecContext(ctx, statusQuery, when, requestID)
	if err != nil {
		return false, fmt.Errorf("mark request picked up: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark request picked up rows: %w", err)
	}
	if affected == 0 {
		return false, ErrStaleStatus
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit pickup: %w", err)
	}
	return true, nil
}

type queryRower interface {
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func markConsumed(ctx context.Context, q queryRower, ticketID string, when time.Time, by int64) (bool, error) {
	const query = `UPDATE claim_tickets SET consumed_at = $1, consumed_by = $2
WHERE id = $3 AND consumed_at IS NULL AND superseded_at IS NULL RETURNING id`
	var id string
	if err := q.QueryRowxContext(ctx, query, when, by, ticketID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("consume claim ticket: %w", err)
	}
	return true, nil
}
