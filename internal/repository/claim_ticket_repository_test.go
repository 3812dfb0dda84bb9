package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/munlink-zambales/claimdesk-api/internal/models"
)

type prefixHasher struct{}

func (prefixHasher) TokenDigest(token string) []byte { return []byte("digest:" + token) }

var ticketColumns = []string{"id", "request_id", "token_hash", "token_enc", "code_hash", "code_enc", "code_masked",
	"window_start", "window_end", "expires_at", "issued_by", "superseded_at", "consumed_at", "consumed_by", "created_at"}

func ticketRow(id string, requestID int64, codeHash []byte, consumedAt interface{}, created time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(ticketColumns).
		AddRow(id, requestID, []byte("h"), []byte("te"), codeHash, []byte("ce"), "AB••••45",
			nil, nil, nil, int64(9), nil, consumedAt, nil, created)
}

func TestClaimTicketPutSupersedesLiveTicket(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	now := time.Now().UTC()
	ticket := &models.ClaimTicket{ID: "t-2", RequestID: 7, CodeMasked: "AB••••45", CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM document_requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE claim_tickets SET superseded_at = $1")).
		WithArgs(now, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t-1"))
	mock.ExpectExec("INSERT INTO claim_tickets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	superseded, err := repo.Put(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1"}, superseded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketPutFirstTicket(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM document_requests").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("UPDATE claim_tickets SET superseded_at").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO claim_tickets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	superseded, err := repo.Put(context.Background(), &models.ClaimTicket{ID: "t-1", RequestID: 7, CreatedAt: now})
	require.NoError(t, err)
	assert.Empty(t, superseded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketPutMissingRequestRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM document_requests").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Put(context.Background(), &models.ClaimTicket{ID: "t-1", RequestID: 404})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketPutUniqueViolationRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM document_requests").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("UPDATE claim_tickets SET superseded_at").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO claim_tickets").WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	_, err := repo.Put(context.Background(), &models.ClaimTicket{ID: "t-1", RequestID: 7})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketGetByTokenUsesDigest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	mock.ExpectQuery(regexp.QuoteMeta("FROM claim_tickets WHERE token_hash = $1")).
		WithArgs([]byte("digest:tok")).
		WillReturnRows(ticketRow("t-1", 7, []byte("x"), nil, time.Now()))

	ticket, err := repo.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "t-1", ticket.ID)
	assert.Equal(t, int64(9), *ticket.IssuedBy)
	assert.Nil(t, ticket.ConsumedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketGetByCodeRequiresBothFields(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	hash, err := bcrypt.GenerateFromPassword([]byte("ABCD2345"), bcrypt.MinCost)
	require.NoError(t, err)

	latest := regexp.QuoteMeta("WHERE request_id = $1 AND superseded_at IS NULL ORDER BY created_at DESC LIMIT 1")
	mock.ExpectQuery(latest).WithArgs(int64(7)).WillReturnRows(ticketRow("t-1", 7, hash, nil, time.Now()))
	mock.ExpectQuery(latest).WithArgs(int64(7)).WillReturnRows(ticketRow("t-1", 7, hash, nil, time.Now()))
	mock.ExpectQuery(latest).WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)

	ticket, err := repo.GetByCode(context.Background(), "abcd-2345", 7)
	require.NoError(t, err)
	assert.Equal(t, "t-1", ticket.ID)

	_, err = repo.GetByCode(context.Background(), "ABCD-2346", 7)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = repo.GetByCode(context.Background(), "ABCD-2345", 8)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketMarkConsumedIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	now := time.Now().UTC()
	consume := regexp.QuoteMeta("UPDATE claim_tickets SET consumed_at = $1, consumed_by = $2")
	mock.ExpectQuery(consume).WithArgs(now, int64(3), "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t-1"))
	mock.ExpectQuery(consume).WithArgs(now, int64(4), "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, err := repo.MarkConsumed(context.Background(), "t-1", now, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkConsumed(context.Background(), "t-1", now, 4)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketMarkConsumedDatabaseError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	mock.ExpectQuery("UPDATE claim_tickets SET consumed_at").WillReturnError(errors.New("conn reset"))

	ok, err := repo.MarkConsumed(context.Background(), "t-1", time.Now(), 3)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestClaimTicketConsumeForPickup(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE claim_tickets SET consumed_at").WithArgs(now, int64(3), "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_requests SET status = 'picked_up'")).
		WithArgs(now, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.ConsumeForPickup(context.Background(), "t-1", 7, now, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketConsumeForPickupLoserRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE claim_tickets SET consumed_at").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	ok, err := repo.ConsumeForPickup(context.Background(), "t-1", 7, time.Now(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTicketConsumeForPickupStaleStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClaimTicketRepository(db, prefixHasher{})

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE claim_tickets SET consumed_at").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t-1"))
	mock.ExpectExec("UPDATE document_requests SET status = 'picked_up'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := repo.ConsumeForPickup(context.Background(), "t-1", 7, time.Now(), 3)
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
