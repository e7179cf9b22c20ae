package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/internal/users"
	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pokecard-storefront/pkg/errors"
	"github.com/angelmondragon/pokecard-storefront/pkg/security"
)

// RegisterService opens shopper accounts and signs them in.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error)
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB             *db.Client
	SessionManager sessionManager
	PasswordConfig config.PasswordConfig
	JWTConfig      config.JWTConfig
}

type registerService struct {
	db          *db.Client
	session     sessionManager
	passwordCfg config.PasswordConfig
	jwtCfg      config.JWTConfig
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	if params.SessionManager == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session manager required")
	}
	return &registerService{
		db:          params.DB,
		session:     params.SessionManager,
		passwordCfg: params.PasswordConfig,
		jwtCfg:      params.JWTConfig,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	email := security.NormalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if err := security.ValidatePassword(req.Password, s.passwordCfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "password rejected").
			WithDetails(map[string]string{"password": err.Error()})
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var user *models.User
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		created, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "ux_users_email") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return issueTokens(ctx, s.session, s.jwtCfg, time.Now().UTC(), user)
}
