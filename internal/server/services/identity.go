// Package services contains server-side business logic. This file implements
// IdentityService, the identity gateway: password sign-in, issuing and
// rotating JWT access tokens plus server-stored refresh tokens, and
// creating identities for provisioning.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/common"
	"github.com/dmitrijs2005/timesheet/internal/cryptox"
	"github.com/dmitrijs2005/timesheet/internal/dbx"
	"github.com/dmitrijs2005/timesheet/internal/server/auth"
	"github.com/dmitrijs2005/timesheet/internal/server/config"
	"github.com/dmitrijs2005/timesheet/internal/server/models"
	"github.com/dmitrijs2005/timesheet/internal/server/repositories/repomanager"
)

const minPasswordLength = 8

// Session bundles a short-lived access token and a long-lived refresh token
// issued for one identity.
type Session struct {
	IdentityID   string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IdentityService provides the identity gateway operations:
// - SignInWithPassword: verify credentials and mint tokens
// - Session: validate an access token
// - Refresh: rotate refresh tokens and mint new access tokens
// - SignOut: revoke every refresh token of an identity
// - CreateIdentity: store credentials for a new account
type IdentityService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewIdentityService constructs an IdentityService using repositories and server config.
func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *IdentityService {
	return &IdentityService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// CreateIdentity stores credentials for email. Preconfirmed identities can
// sign in immediately.
func (s *IdentityService) CreateIdentity(ctx context.Context, email, password string, preconfirmed bool) (*models.Identity, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email %q", common.ErrValidation, email)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}

	salt := cryptox.NewSalt()
	identity := &models.Identity{
		Email:        email,
		PasswordHash: cryptox.HashPassword([]byte(password), salt),
		Salt:         salt,
	}
	if preconfirmed {
		now := time.Now()
		identity.ConfirmedAt = &now
	}

	created, err := s.repomanager.Identities(s.db).Create(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("error creating identity: %w", err)
	}
	return created, nil
}

// SignInWithPassword verifies the password and, on success, returns a new
// Session. Unknown emails, wrong passwords and unconfirmed identities all
// yield common.ErrorUnauthorized.
func (s *IdentityService) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	repo := s.repomanager.Identities(s.db)
	identity, err := repo.ByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// keep timing close to the found case
			d := dummyCredentials()
			cryptox.VerifyPassword([]byte(password), d.salt, d.hash)
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching identity: %w", err)
	}

	if !cryptox.VerifyPassword([]byte(password), identity.Salt, identity.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}
	if identity.ConfirmedAt == nil {
		return nil, common.ErrorUnauthorized
	}

	return s.generateSession(ctx, identity.ID, identity.Email, s.db)
}

// Session validates an access token and returns its claims.
func (s *IdentityService) Session(ctx context.Context, accessToken string) (*auth.Claims, error) {
	return auth.ParseToken(accessToken, s.jwtSecret)
}

// Refresh validates a refresh token, rotates it transactionally, and
// returns a fresh Session. Expired tokens yield ErrRefreshTokenExpired.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	identity, err := s.repomanager.Identities(s.db).ByID(ctx, token.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("error searching identity: %w", err)
	}

	var session *Session
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.RefreshTokens(tx)
		if err := repoTx.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		session, genErr = s.generateSession(ctx, identity.ID, identity.Email, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return session, nil
}

// SignOut revokes every refresh token of the identity. Access tokens stay
// valid until expiry, but every request re-reads the user record.
func (s *IdentityService) SignOut(ctx context.Context, identityID string) error {
	if _, err := s.repomanager.RefreshTokens(s.db).DeleteByIdentity(ctx, identityID); err != nil {
		return fmt.Errorf("error revoking refresh tokens: %w", err)
	}
	return nil
}

// --- helpers below ---

type passwordCredentials struct {
	salt []byte
	hash []byte
}

var dummyCredentials = sync.OnceValue(func() passwordCredentials {
	salt := cryptox.NewSalt()
	return passwordCredentials{salt: salt, hash: cryptox.HashPassword(common.GenerateRandByteArray(16), salt)}
})

func (s *IdentityService) generateAccessToken(identityID, email string) (string, error) {
	return auth.GenerateToken(identityID, email, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *IdentityService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *IdentityService) generateSession(ctx context.Context, identityID, email string, tx dbx.DBTX) (*Session, error) {
	access, err := s.generateAccessToken(identityID, email)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, identityID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &Session{
		IdentityID:   identityID,
		Email:        email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.accessTokenValidityDuration),
	}, nil
}
