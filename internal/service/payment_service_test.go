package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio-payments/config"
	"studio-payments/internal/gateway"
	"studio-payments/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testDeps struct {
	store  *mockOrderStore
	gw     *mockGateway
	mail   *mockMailer
	pub    *mockPublisher
	users  *mockUserDirectory
	tokens *mockTokenVault
	svc    *PaymentService
}

func newTestService(guard bool) *testDeps {
	d := &testDeps{
		store:  &mockOrderStore{},
		gw:     &mockGateway{},
		mail:   &mockMailer{},
		pub:    &mockPublisher{},
		users:  &mockUserDirectory{},
		tokens: &mockTokenVault{},
	}

	cfg := &config.Config{
		Mail: config.MailConfig{
			ProductionTeam:  "production@studio.test",
			OpsAlertAddress: "ops@studio.test",
		},
		Business: config.BusinessConfig{IdempotencyGuard: guard},
	}

	identity := NewIdentityProvisioner(d.users, d.tokens, config.AuthConfig{
		PublicBaseURL: "https://api.studio.test",
		DashboardURL:  "https://studio.test/dashboard",
		LinkTTL:       time.Hour,
	})

	d.svc = NewPaymentService(d.store, d.gw, identity, d.mail, d.pub, d.tokens, cfg)
	return d
}

// expectHappyDownstream wires the post-charge collaborators that most
// success-path tests do not assert on directly.
func (d *testDeps) expectHappyDownstream() {
	d.users.On("FindUserByEmail", mock.Anything, mock.Anything).
		Return(&models.User{ID: "user-1"}, nil).Maybe()
	d.tokens.On("StoreLoginToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Maybe()
	d.pub.On("PublishOrderSettled", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.mail.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()
}

func musicOrderFixture() *models.MusicOrder {
	return &models.MusicOrder{
		OrderCore: models.OrderCore{
			ID:          "ord_1",
			OrderNumber: "MU-1042",
			Email:       "buyer@x.com",
			Price:       2500,
			Status:      models.OrderStatusPendingPayment,
		},
		Genre: "electronic",
		Vibe:  "uplifting",
	}
}

func voiceOrderFixture() *models.VoiceOrder {
	return &models.VoiceOrder{
		OrderCore: models.OrderCore{
			ID:          "vo_1",
			OrderNumber: "VO-2001",
			Email:       "buyer@x.com",
			Price:       1500,
			Status:      models.OrderStatusPendingPayment,
		},
		Language:  "en-US",
		VoiceName: "Mia",
	}
}

func orchestraOrderFixture() *models.OrchestraOrder {
	return &models.OrchestraOrder{
		OrderCore: models.OrderCore{
			ID:          "or_1",
			OrderNumber: "OR-3001",
			Email:       "buyer@x.com",
			Price:       50000,
			Status:      models.OrderStatusPendingPayment,
		},
		TierName:        "Chamber",
		DurationMinutes: 4,
	}
}

func approvedCharge(txID string) *gateway.ChargeResult {
	return &gateway.ChargeResult{Approved: true, TransactionID: txID, Status: gateway.StatusSuccess}
}

func TestProcessPayment_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		req         *PayRequest
		wantMissing []string
	}{
		{
			name:        "missing prime",
			req:         &PayRequest{OrderID: "ord_1", Amount: 100},
			wantMissing: []string{"prime"},
		},
		{
			name:        "missing orderId",
			req:         &PayRequest{Prime: "tok_abc", Amount: 100},
			wantMissing: []string{"orderId"},
		},
		{
			name:        "missing both",
			req:         &PayRequest{Amount: 100},
			wantMissing: []string{"prime", "orderId"},
		},
		{
			name:        "zero amount",
			req:         &PayRequest{Prime: "tok_abc", OrderID: "ord_1", Amount: 0},
			wantMissing: []string{"amount"},
		},
		{
			name:        "negative amount",
			req:         &PayRequest{Prime: "tok_abc", OrderID: "ord_1", Amount: -5},
			wantMissing: []string{"amount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestService(false)

			resp, err := d.svc.ProcessPayment(context.Background(), tt.req)

			require.Error(t, err)
			assert.Nil(t, resp)

			var perr *PaymentError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ErrInvalidInput, perr.Code)
			assert.Equal(t, tt.wantMissing, perr.MissingFields)

			d.gw.AssertNumberOfCalls(t, "Charge", 0)
			d.store.AssertNumberOfCalls(t, "GetVoiceOrderByID", 0)
		})
	}
}

func TestProcessPayment_ComplianceShortCircuit(t *testing.T) {
	d := newTestService(false)

	resp, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime:          "tok_abc",
		OrderID:        "ord_1",
		Amount:         1000,
		BillingDetails: &models.BillingDetails{Country: "North Korea"},
	})

	require.Error(t, err)
	assert.Nil(t, resp)

	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrCompliance, perr.Code)

	// No lookup, no charge, no write, no email.
	d.store.AssertNumberOfCalls(t, "GetVoiceOrderByID", 0)
	d.gw.AssertNumberOfCalls(t, "Charge", 0)
	d.mail.AssertNumberOfCalls(t, "Send", 0)
}

func TestProcessPayment_OrderNotFound(t *testing.T) {
	d := newTestService(false)

	d.store.On("GetVoiceOrderByID", mock.Anything, "ghost").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ghost").Return(nil, nil)
	d.store.On("GetOrchestraOrderByID", mock.Anything, "ghost").Return(nil, nil)

	_, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ghost", Amount: 1000,
	})

	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrNotFound, perr.Code)
	d.gw.AssertNumberOfCalls(t, "Charge", 0)
}

func TestProcessPayment_GatewayDecline(t *testing.T) {
	d := newTestService(false)

	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(musicOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(&gateway.ChargeResult{
		Approved: false,
		Status:   10003,
		Message:  "Card declined by issuer",
	}, nil)
	d.pub.On("PublishPaymentDeclined", mock.Anything, mock.Anything).Return(nil)

	resp, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ord_1", Amount: 2500,
	})

	assert.Nil(t, resp)
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrDeclined, perr.Code)
	assert.Equal(t, 10003, perr.GatewayStatus)
	assert.Equal(t, "Card declined by issuer", perr.Message)

	// No settlement write and no customer email on decline.
	d.store.AssertNumberOfCalls(t, "SettleStudioOrder", 0)
	d.store.AssertNumberOfCalls(t, "SettleOrchestraOrder", 0)
	d.mail.AssertNumberOfCalls(t, "Send", 0)
}

func TestProcessPayment_GatewayFailureAlertsOperators(t *testing.T) {
	d := newTestService(false)

	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(musicOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	d.mail.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ord_1", Amount: 2500,
	})

	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrInternal, perr.Code)

	// The only email is the ops alert; nothing is settled.
	assert.Equal(t, []string{"ops_alert"}, d.mail.sentCategories())
	d.store.AssertNumberOfCalls(t, "SettleStudioOrder", 0)
}

func TestProcessPayment_VoiceSettlementShape(t *testing.T) {
	d := newTestService(false)
	d.expectHappyDownstream()

	d.store.On("GetVoiceOrderByID", mock.Anything, "vo_1").Return(voiceOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_v1"), nil)

	var captured *models.StudioSettlement
	d.store.On("SettleStudioOrder", mock.Anything, models.TableVoiceOrders, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(*models.StudioSettlement)
		}).Return(nil)

	resp, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "vo_1", Amount: 1500,
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, captured)
	assert.Equal(t, "txn_v1", captured.TransactionID)
	assert.False(t, captured.PaidAt.IsZero())
	d.store.AssertNumberOfCalls(t, "SettleOrchestraOrder", 0)
}

func TestProcessPayment_OrchestraSettlementShape(t *testing.T) {
	d := newTestService(false)
	d.expectHappyDownstream()

	d.store.On("GetVoiceOrderByID", mock.Anything, "or_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "or_1").Return(nil, nil)
	d.store.On("GetOrchestraOrderByID", mock.Anything, "or_1").Return(orchestraOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_or1"), nil)

	var captured *models.OrchestraSettlement
	d.store.On("SettleOrchestraOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*models.OrchestraSettlement)
		}).Return(nil)

	resp, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime:   "tok_abc",
		OrderID: "or_1",
		Amount:  50000,
		// Billing details are accepted on the request but never
		// written to orchestra rows.
		BillingDetails: &models.BillingDetails{FullName: "A. Customer", Country: "Taiwan"},
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, captured)
	assert.Equal(t, "txn_or1", captured.PaymentRef)
	d.store.AssertNumberOfCalls(t, "SettleStudioOrder", 0)
}

func TestProcessPayment_PriceOverwrittenWithChargedAmount(t *testing.T) {
	d := newTestService(false)
	d.expectHappyDownstream()

	order := musicOrderFixture() // quoted price 2500
	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(order, nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_789"), nil)

	var captured *models.StudioSettlement
	d.store.On("SettleStudioOrder", mock.Anything, models.TableMusicOrders, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(*models.StudioSettlement)
		}).Return(nil)

	_, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ord_1", Amount: 1999,
	})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, int64(1999), captured.Price, "persisted price must be the charged amount, not the quote")
}

func TestProcessPayment_SettlementFailureStillNotifies(t *testing.T) {
	d := newTestService(false)

	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(musicOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_789"), nil)
	d.store.On("SettleStudioOrder", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("connection refused"))
	d.users.On("FindUserByEmail", mock.Anything, mock.Anything).Return(&models.User{ID: "user-1"}, nil)
	d.tokens.On("StoreLoginToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.pub.On("PublishOrderSettled", mock.Anything, mock.Anything).Return(nil)
	d.mail.On("Send", mock.Anything, mock.Anything).Return(nil)

	resp, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ord_1", Amount: 2500,
	})

	// The customer was charged: the response is success and all three
	// emails are still attempted.
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "txn_789", resp.TransactionID)
	assert.Equal(t,
		[]string{emailKindConfirmation, emailKindReceipt, emailKindAlert},
		d.mail.sentCategories())
}

func TestProcessPayment_EmailsSentSequentially(t *testing.T) {
	d := newTestService(false)
	d.expectHappyDownstream()

	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(musicOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_789"), nil)
	d.store.On("SettleStudioOrder", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ord_1", Amount: 2500,
	})

	require.NoError(t, err)
	assert.Equal(t,
		[]string{emailKindConfirmation, emailKindReceipt, emailKindAlert},
		d.mail.sentCategories())
	assert.False(t, d.mail.overlapped.Load(), "email sends must not overlap")
}

func TestProcessPayment_OneEmailFailureDoesNotStopOthers(t *testing.T) {
	d := newTestService(false)
	d.expectHappyDownstream()

	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(musicOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_789"), nil)
	d.store.On("SettleStudioOrder", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// Fresh mail expectations: first send blows up, rest succeed.
	d.mail.ExpectedCalls = nil
	d.mail.On("Send", mock.Anything, mock.Anything).Return(errors.New("rate limited")).Once()
	d.mail.On("Send", mock.Anything, mock.Anything).Return(nil)

	resp, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ord_1", Amount: 2500,
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, d.mail.sentCategories(), 3, "all three sends must be attempted")
}

// Two identical requests for the same order both reach the gateway and
// both report success. This documents the shipped behavior: the flow
// has no idempotency protection unless the settlement guard flag is
// enabled.
func TestProcessPayment_DuplicateSubmitChargesTwice(t *testing.T) {
	d := newTestService(false)
	d.expectHappyDownstream()

	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(musicOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_789"), nil)
	d.store.On("SettleStudioOrder", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	req := &PayRequest{Prime: "tok_abc", OrderID: "ord_1", Amount: 2500}

	first, err1 := d.svc.ProcessPayment(context.Background(), req)
	second, err2 := d.svc.ProcessPayment(context.Background(), req)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, first.Success)
	assert.True(t, second.Success)
	d.gw.AssertNumberOfCalls(t, "Charge", 2)
}

func TestProcessPayment_IdempotencyGuardRejectsConcurrentDuplicate(t *testing.T) {
	d := newTestService(true)
	d.expectHappyDownstream()

	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(musicOrderFixture(), nil)
	d.gw.On("Charge", mock.Anything, mock.Anything).Return(approvedCharge("txn_789"), nil)
	d.store.On("SettleStudioOrder", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d.tokens.On("AcquireSettlementLock", mock.Anything, "ord_1", mock.Anything).Return(true, nil).Once()
	d.tokens.On("AcquireSettlementLock", mock.Anything, "ord_1", mock.Anything).Return(false, nil).Once()

	req := &PayRequest{Prime: "tok_abc", OrderID: "ord_1", Amount: 2500}

	_, err1 := d.svc.ProcessPayment(context.Background(), req)
	_, err2 := d.svc.ProcessPayment(context.Background(), req)

	require.NoError(t, err1)

	var perr *PaymentError
	require.ErrorAs(t, err2, &perr)
	assert.Equal(t, ErrConflict, perr.Code)
	d.gw.AssertNumberOfCalls(t, "Charge", 1)
}

func TestProcessPayment_EndToEnd(t *testing.T) {
	d := newTestService(false)
	d.expectHappyDownstream()

	order := musicOrderFixture() // ord_1, price 2500, buyer@x.com
	d.store.On("GetVoiceOrderByID", mock.Anything, "ord_1").Return(nil, nil)
	d.store.On("GetMusicOrderByID", mock.Anything, "ord_1").Return(order, nil)
	d.gw.On("Charge", mock.Anything, mock.MatchedBy(func(req *gateway.ChargeRequest) bool {
		return req.Amount == 1999 && req.Prime == "tok_abc" && req.CardholderEmail == "buyer@x.com"
	})).Return(approvedCharge("txn_789"), nil)

	var captured *models.StudioSettlement
	d.store.On("SettleStudioOrder", mock.Anything, models.TableMusicOrders, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(*models.StudioSettlement)
		}).Return(nil)

	resp, err := d.svc.ProcessPayment(context.Background(), &PayRequest{
		Prime: "tok_abc", OrderID: "ord_1", Amount: 1999,
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "txn_789", resp.TransactionID)
	assert.Equal(t, "ord_1", resp.OrderID)
	assert.Equal(t, "MU-1042", resp.OrderNumber)

	require.NotNil(t, captured)
	assert.Equal(t, "ord_1", captured.OrderID)
	assert.Equal(t, int64(1999), captured.Price)
	assert.Equal(t, "txn_789", captured.TransactionID)
	assert.False(t, captured.PaidAt.IsZero())
}
