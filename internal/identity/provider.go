// Package identity is the account service: it owns credentials, issues
// signed session tokens and manages role claims.
package identity

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/pkg/queue"
	"github.com/greenway-eco/backend/pkg/utils"
)

const (
	minPasswordLen = 8
	resetTokenTTL  = time.Hour
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be %d to %d characters", minPasswordLen, utils.MaxPasswordBytes)
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrStaleClaims        = errors.New("token claims are out of date")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrResetUnavailable   = errors.New("password reset is not configured")
)

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, email, passwordHash, displayName string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SetRoleClaim(ctx context.Context, id uuid.UUID, role models.Role) (int, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ResetStore keeps single-use password reset tokens.
type ResetStore interface {
	Save(ctx context.Context, token, accountID string, ttl time.Duration) error
	Consume(ctx context.Context, token string) (string, error)
}

// Mailer enqueues outgoing email.
type Mailer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Credential is the result of signing in: the account id and a signed token.
type Credential struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role,omitempty"`
	Token  string      `json:"token"`
}

// Provider implements account creation, authentication and token handling.
type Provider struct {
	accounts AccountStore
	jwt      *JWTService
	resets   ResetStore
	mailer   Mailer
	resetURL string
	validate *validator.Validate
	logger   *zap.Logger
}

// Options configures optional Provider collaborators. Without Resets and
// Mailer, SendPasswordReset returns ErrResetUnavailable.
type Options struct {
	Resets           ResetStore
	Mailer           Mailer
	ResetURLTemplate string
	Logger           *zap.Logger
}

// NewProvider creates an identity provider.
func NewProvider(accounts AccountStore, jwt *JWTService, opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		accounts: accounts,
		jwt:      jwt,
		resets:   opts.Resets,
		mailer:   opts.Mailer,
		resetURL: opts.ResetURLTemplate,
		validate: validator.New(),
		logger:   logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrAccountNotFound
	}
	return uid, nil
}

func (p *Provider) issue(a *models.Account) (*Credential, error) {
	token, err := p.jwt.Generate(a.ID.String(), a.Email, string(a.RoleClaim), a.ClaimVersion)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Credential{UserID: a.ID.String(), Email: a.Email, Role: a.RoleClaim, Token: token}, nil
}

func passwordAcceptable(pw string) bool {
	return len(pw) >= minPasswordLen && len(pw) <= utils.MaxPasswordBytes
}

// CreateAccount registers a new account and returns a token without a role claim.
func (p *Provider) CreateAccount(ctx context.Context, email, password, displayName string) (*Credential, error) {
	email = normalizeEmail(email)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}
	if !passwordAcceptable(password) {
		return nil, ErrWeakPassword
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a, err := p.accounts.Create(ctx, email, hash, strings.TrimSpace(displayName))
	if err != nil {
		return nil, err
	}
	p.logger.Info("account created", zap.String("user_id", a.ID.String()))
	return p.issue(a)
}

// Authenticate checks email and password and returns a token carrying the
// account's current role claim.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*Credential, error) {
	a, err := p.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(password, a.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return p.issue(a)
}

// VerifyToken validates the signature and expiry of token and checks that
// its claim version matches the account. Tokens issued before the latest
// claim change fail with ErrStaleClaims.
func (p *Provider) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	claims, a, err := p.parse(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.ClaimVersion != a.ClaimVersion {
		return nil, ErrStaleClaims
	}
	return claims, nil
}

func (p *Provider) parse(ctx context.Context, token string) (*Claims, *models.Account, error) {
	claims, err := p.jwt.Validate(token)
	if err != nil {
		return nil, nil, err
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	a, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	return claims, a, nil
}

// Refresh re-issues a valid, possibly stale, token with the account's
// current role claim.
func (p *Provider) Refresh(ctx context.Context, token string) (*Credential, error) {
	_, a, err := p.parse(ctx, token)
	if err != nil {
		return nil, err
	}
	return p.issue(a)
}

// IssueToken returns a fresh token for the account with its current claim.
func (p *Provider) IssueToken(ctx context.Context, userID string) (*Credential, error) {
	id, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	a, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.issue(a)
}

// SetRoleClaim grants role to the account. Tokens issued before the change
// stop verifying until refreshed.
func (p *Provider) SetRoleClaim(ctx context.Context, userID string, role models.Role) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	version, err := p.accounts.SetRoleClaim(ctx, id, role)
	if err != nil {
		return err
	}
	p.logger.Info("role claim set",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.Int("claim_version", version),
	)
	return nil
}

// DeleteAccount removes the account.
func (p *Provider) DeleteAccount(ctx context.Context, userID string) error {
	id, err := parseID(userID)
	if err != nil {
		return err
	}
	return p.accounts.Delete(ctx, id)
}

// GetByEmail returns the account registered with email.
func (p *Provider) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return p.accounts.GetByEmail(ctx, normalizeEmail(email))
}

// SendPasswordReset stores a single-use reset token and queues the reset
// email. An unknown email is accepted without sending anything.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	if p.resets == nil || p.mailer == nil {
		return ErrResetUnavailable
	}
	a, err := p.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			p.logger.Debug("password reset for unknown email")
			return nil
		}
		return err
	}
	token, err := newResetToken()
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	if err := p.resets.Save(ctx, token, a.ID.String(), resetTokenTTL); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	link := fmt.Sprintf(p.resetURL, token)
	err = p.mailer.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      queue.EmailPasswordReset,
		RecipientEmail: a.Email,
		RecipientName:  a.DisplayName,
		Subject:        "Reset your Greenway password",
		BodyHTML:       fmt.Sprintf(`<p>Hi %s,</p><p><a href="%s">Choose a new password</a>. The link expires in one hour.</p>`, html.EscapeString(a.DisplayName), link),
	})
	if err != nil {
		return fmt.Errorf("enqueue reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (p *Provider) ResetPassword(ctx context.Context, token, newPassword string) error {
	if p.resets == nil {
		return ErrResetUnavailable
	}
	if !passwordAcceptable(newPassword) {
		return ErrWeakPassword
	}
	userID, err := p.resets.Consume(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	id, err := parseID(userID)
	if err != nil {
		return ErrInvalidResetToken
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return p.accounts.UpdatePassword(ctx, id, hash)
}
