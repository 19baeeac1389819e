package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"studio-payments/internal/gateway"
	"studio-payments/internal/mailer"
	"studio-payments/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockOrderStore struct {
	mock.Mock
}

func (m *mockOrderStore) GetVoiceOrderByID(ctx context.Context, id string) (*models.VoiceOrder, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.VoiceOrder), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderStore) GetMusicOrderByID(ctx context.Context, id string) (*models.MusicOrder, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.MusicOrder), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderStore) GetOrchestraOrderByID(ctx context.Context, id string) (*models.OrchestraOrder, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.OrchestraOrder), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderStore) SettleStudioOrder(ctx context.Context, table string, st *models.StudioSettlement) error {
	args := m.Called(ctx, table, st)
	return args.Error(0)
}

func (m *mockOrderStore) SettleOrchestraOrder(ctx context.Context, st *models.OrchestraSettlement) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}

type mockUserDirectory struct {
	mock.Mock
}

func (m *mockUserDirectory) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if v := args.Get(0); v != nil {
		return v.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserDirectory) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type mockTokenVault struct {
	mock.Mock
}

func (m *mockTokenVault) StoreLoginToken(ctx context.Context, token, email string, ttl time.Duration) error {
	args := m.Called(ctx, token, email, ttl)
	return args.Error(0)
}

func (m *mockTokenVault) AcquireSettlementLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, orderID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockTokenVault) ReleaseSettlementLock(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*gateway.ChargeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockMailer records the delivery order and detects overlapping sends
// so the fan-out's strict sequencing can be asserted.
type mockMailer struct {
	mock.Mock
	mu         sync.Mutex
	active     atomic.Bool
	overlapped atomic.Bool
	categories []string
}

func (m *mockMailer) Send(ctx context.Context, msg *mailer.Message) error {
	if !m.active.CompareAndSwap(false, true) {
		m.overlapped.Store(true)
	}
	time.Sleep(2 * time.Millisecond)

	m.mu.Lock()
	m.categories = append(m.categories, msg.Category)
	m.mu.Unlock()

	m.active.Store(false)

	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockMailer) sentCategories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.categories))
	copy(out, m.categories)
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) PublishPaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
