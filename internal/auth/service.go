package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/internal/users"
	pkgAuth "github.com/angelmondragon/pokecard-storefront/pkg/auth"
	"github.com/angelmondragon/pokecard-storefront/pkg/auth/session"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controllers.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error)
}

type service struct {
	users   userRepository
	session sessionManager
	jwtCfg  config.JWTConfig
	now     func() time.Time
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Start(ctx context.Context, userID uuid.UUID) (session.Issued, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (session.Issued, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		users:   params.UserRepo,
		session: params.SessionManager,
		jwtCfg:  params.JWTConfig,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now

	return issueTokens(ctx, s.session, s.jwtCfg, now, user)
}

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	issued, err := s.session.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}
	if issued.UserID != claims.UserID {
		_ = s.session.Revoke(ctx, issued.AccessID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}

	access, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now(), pkgAuth.AccessTokenPayload{
		UserID: claims.UserID,
		Email:  claims.Email,
		JTI:    issued.AccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: issued.RefreshToken,
		ExpiresIn:    s.jwtCfg.ExpirationMinutes * 60,
	}, nil
}

func (s *service) Logout(ctx context.Context, accessToken string) error {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.session.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account unavailable")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account unavailable")
	}
	return users.FromModel(user), nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	normalized := security.NormalizeEmail(email)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}

// issueTokens opens a refresh session and mints the matching access token.
func issueTokens(ctx context.Context, manager sessionManager, cfg config.JWTConfig, now time.Time, user *models.User) (*TokenResponse, error) {
	issued, err := manager.Start(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	access, err := pkgAuth.MintAccessToken(cfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		JTI:    issued.AccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: issued.RefreshToken,
		ExpiresIn:    cfg.ExpirationMinutes * 60,
		User:         users.FromModel(user),
	}, nil
}
