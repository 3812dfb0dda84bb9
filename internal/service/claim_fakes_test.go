package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/munlink-zambales/claimdesk-api/internal/claim"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
	"github.com/munlink-zambales/claimdesk-api/internal/repository"
)

var claimTestNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// memClaimStore keeps requests and tickets in memory with the same
// supersede and compare-and-swap rules as the SQL repositories.
type memClaimStore struct {
	mu       sync.Mutex
	keys     *claim.Keyring
	requests map[int64]*models.DocumentRequest
	tickets  map[string]*models.ClaimTicket
	order    []string
	failPut  error
}

func newMemClaimStore(keys *claim.Keyring) *memClaimStore {
	return &memClaimStore{
		keys:     keys,
		requests: make(map[int64]*models.DocumentRequest),
		tickets:  make(map[string]*models.ClaimTicket),
	}
}

func (m *memClaimStore) addRequest(req models.DocumentRequest) *models.DocumentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := req
	m.requests[req.ID] = &stored
	return &stored
}

func (m *memClaimStore) request(id int64) models.DocumentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func (m *memClaimStore) ticket(id string) models.ClaimTicket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tickets[id]
}

func (m *memClaimStore) ticketsFor(requestID int64) []models.ClaimTicket {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ClaimTicket
	for _, id := range m.order {
		if t := m.tickets[id]; t.RequestID == requestID {
			out = append(out, *t)
		}
	}
	return out
}

func (m *memClaimStore) FindByID(_ context.Context, id int64) (*models.DocumentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *req
	return &clone, nil
}

func (m *memClaimStore) UpdateStatus(_ context.Context, change models.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[change.RequestID]
	if !ok || req.Status != change.From {
		return repository.ErrStaleStatus
	}
	applyChange(req, change)
	return nil
}

func (m *memClaimStore) Put(_ context.Context, ticket *models.ClaimTicket) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return nil, m.failPut
	}
	if _, ok := m.requests[ticket.RequestID]; !ok {
		return nil, sql.ErrNoRows
	}
	var superseded []string
	for _, id := range m.order {
		t := m.tickets[id]
		if t.RequestID == ticket.RequestID && t.Live() {
			at := ticket.CreatedAt
			t.SupersededAt = &at
			superseded = append(superseded, id)
		}
	}
	stored := *ticket
	m.tickets[ticket.ID] = &stored
	m.order = append(m.order, ticket.ID)
	return superseded, nil
}

func (m *memClaimStore) GetByToken(_ context.Context, token string) (*models.ClaimTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	digest := m.keys.TokenDigest(token)
	for _, t := range m.tickets {
		if claim.DigestEqual(t.TokenHash, digest) {
			clone := *t
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memClaimStore) GetByCode(ctx context.Context, code string, requestID int64) (*models.ClaimTicket, error) {
	t, err := m.LatestForRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !claim.CompareCode(t.CodeHash, code) {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *memClaimStore) LatestForRequest(_ context.Context, requestID int64) (*models.ClaimTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*models.ClaimTicket
	for _, t := range m.tickets {
		if t.RequestID == requestID && t.SupersededAt == nil {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, sql.ErrNoRows
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
	clone := *candidates[0]
	return &clone, nil
}

func (m *memClaimStore) findTicket(id string) (*models.ClaimTicket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (m *memClaimStoreTickets) FindByID(_ context.Context, id string) (*models.ClaimTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.findTicket(id)
	if err != nil {
		return nil, err
	}
	clone := *t
	return &clone, nil
}

func (m *memClaimStoreTickets) MarkConsumed(_ context.Context, ticketID string, when time.Time, by int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markConsumed(ticketID, when, by), nil
}

func (m *memClaimStoreTickets) ConsumeForPickup(_ context.Context, ticketID string, requestID int64, when time.Time, by int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	t, err := m.findTicket(ticketID)
	if err != nil || !t.Live() {
		return false, nil
	}
	if !ok || req.Status != models.DocumentStatusReady {
		return false, repository.ErrStaleStatus
	}
	m.markConsumed(ticketID, when, by)
	applyChange(req, models.StatusChange{To: models.DocumentStatusPickedUp, At: when})
	return true, nil
}

func (m *memClaimStore) markConsumed(ticketID string, when time.Time, by int64) bool {
	t, ok := m.tickets[ticketID]
	if !ok || !t.Live() {
		return false
	}
	at, who := when, by
	t.ConsumedAt = &at
	t.ConsumedBy = &who
	return true
}

// memClaimStoreTickets adapts memClaimStore to the ticket store interface.
// The two FindByID methods differ in key type, so tickets get their own view.
type memClaimStoreTickets struct {
	*memClaimStore
}

func (m *memClaimStore) Tickets() *memClaimStoreTickets {
	return &memClaimStoreTickets{memClaimStore: m}
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
	err     error
}

func (a *memAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, *log)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func (a *memAudit) last(action string) *models.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Action == action {
			entry := a.entries[i]
			return &entry
		}
	}
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (n *recordingNotifier) NotifyReadyForPickup(_ context.Context, req *models.DocumentRequest, _ *models.ClaimTicket) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req.ID)
	return n.err
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errFailingReader }

var errFailingReader = errors.New("entropy exhausted")

func newTestKeyring(t *testing.T) *claim.Keyring {
	t.Helper()
	keys, err := claim.NewKeyring("test-hash-secret-0123456789", "test-seal-secret-0123456789")
	require.NoError(t, err)
	return keys.WithCodeCost(bcrypt.MinCost)
}

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func staffActor(municipalityID int64) models.Actor {
	return models.Actor{
		UserID:         900,
		Role:           models.RoleMunicipalAdmin,
		MunicipalityID: int64Ptr(municipalityID),
		IPAddress:      "10.0.0.5",
		UserAgent:      "counter-tablet",
	}
}

func residentActor(userID int64) models.Actor {
	return models.Actor{UserID: userID, Role: models.RoleResident}
}

func pickupRequest(id int64, status models.DocumentStatus) models.DocumentRequest {
	return models.DocumentRequest{
		ID:               id,
		RequestNumber:    "MUN-2026-0001",
		UserID:           42,
		DocumentTypeID:   3,
		MunicipalityID:   7,
		DeliveryMethod:   models.DeliveryPickup,
		Status:           status,
		CreatedAt:        claimTestNow.Add(-48 * time.Hour),
		UpdatedAt:        claimTestNow.Add(-24 * time.Hour),
		ResidentName:     "Maria Santos",
		ResidentEmail:    "maria@example.com",
		DocumentName:     "Barangay Clearance",
		MunicipalityName: "Iba",
		MunicipalitySlug: "iba",
	}
}
