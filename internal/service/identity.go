package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"studio-payments/config"
	"studio-payments/internal/models"
	"studio-payments/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserDirectory is the auth subsystem's surface: exact-email lookup
// and pre-confirmed account creation.
type UserDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// TokenVault stores single-use login tokens and the optional
// per-order settlement lock.
type TokenVault interface {
	StoreLoginToken(ctx context.Context, token, email string, ttl time.Duration) error
	AcquireSettlementLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	ReleaseSettlementLock(ctx context.Context, orderID string) error
}

// IdentityProvisioner ensures a paying customer has an account and can
// reach the dashboard. Every failure path degrades: settlement never
// blocks on identity.
type IdentityProvisioner struct {
	users         UserDirectory
	tokens        TokenVault
	publicBaseURL string
	dashboardURL  string
	linkTTL       time.Duration
	logger        *zap.Logger
}

// NewIdentityProvisioner creates a new identity provisioner
func NewIdentityProvisioner(users UserDirectory, tokens TokenVault, cfg config.AuthConfig) *IdentityProvisioner {
	return &IdentityProvisioner{
		users:         users,
		tokens:        tokens,
		publicBaseURL: cfg.PublicBaseURL,
		dashboardURL:  cfg.DashboardURL,
		linkTTL:       cfg.LinkTTL,
		logger:        util.GetLogger(),
	}
}

// EnsureIdentity reuses the account for email or creates one
// pre-confirmed. Returns nil on any lookup or creation error; the
// caller settles without a user linkage in that case.
func (p *IdentityProvisioner) EnsureIdentity(ctx context.Context, email string) *string {
	if email == "" {
		return nil
	}

	existing, err := p.users.FindUserByEmail(ctx, email)
	if err != nil {
		p.logger.Warn("User lookup failed", zap.String("email", email), zap.Error(err))
		return nil
	}
	if existing != nil {
		return &existing.ID
	}

	user := &models.User{
		ID:             uuid.New().String(),
		Email:          email,
		EmailConfirmed: true,
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		p.logger.Warn("User creation failed", zap.String("email", email), zap.Error(err))
		return nil
	}

	util.UsersProvisionedTotal.Inc()
	p.logger.Info("User provisioned at settlement", zap.String("user_id", user.ID))
	return &user.ID
}

// MintAccessLink mints a single-use, time-boxed login URL that lands
// on destination after redemption. When minting fails the customer
// still gets a plain dashboard URL, just without the automatic login.
func (p *IdentityProvisioner) MintAccessLink(ctx context.Context, email, destination string) string {
	if p.tokens == nil {
		return p.dashboardURL
	}

	token := uuid.New().String()
	if err := p.tokens.StoreLoginToken(ctx, token, email, p.linkTTL); err != nil {
		p.logger.Warn("Access link minting failed, falling back to bare dashboard URL",
			zap.String("email", email), zap.Error(err))
		return p.dashboardURL
	}

	util.MagicLinksIssuedTotal.Inc()
	return fmt.Sprintf("%s/auth/link/%s?next=%s", p.publicBaseURL, token, url.QueryEscape(destination))
}
