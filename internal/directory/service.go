package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brewmetric/brewmetric-core/internal/audit"
	"github.com/brewmetric/brewmetric-core/internal/authz"
	"github.com/brewmetric/brewmetric-core/pkg/config"
	"github.com/brewmetric/brewmetric-core/pkg/db"
	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
	"github.com/brewmetric/brewmetric-core/pkg/logger"
	"github.com/brewmetric/brewmetric-core/pkg/metrics"
	"github.com/brewmetric/brewmetric-core/pkg/security"
	"github.com/brewmetric/brewmetric-core/pkg/validate"
	"gorm.io/gorm"
)

// Default bootstrap credentials. The password must be rotated after first
// login; EnsureDefaultAdmin reports whether the account was freshly created so
// the caller can surface the credentials exactly once.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "Admin@123456"
	DefaultAdminEmail    = "admin@brewmetric.local"
	DefaultAdminFullName = "Administrator"
)

// AuthResult carries the outcome of an asynchronous credential check.
type AuthResult struct {
	User *models.User
	Err  error
}

// Service manages user accounts and credential verification.
type Service struct {
	client  *db.Client
	repo    *Repository
	audit   *audit.Service
	log     *logger.Logger
	metrics *metrics.CoreMetrics
	pwCfg   config.PasswordConfig

	dummyOnce sync.Once
	dummyHash string
}

// ServiceParams bundles the dependencies required to build a directory service.
type ServiceParams struct {
	Client   *db.Client
	Repo     *Repository
	Audit    *audit.Service
	Logger   *logger.Logger
	Metrics  *metrics.CoreMetrics
	Password config.PasswordConfig
}

// NewService wires a directory service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("directory repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	return &Service{
		client:  params.Client,
		repo:    params.Repo,
		audit:   params.Audit,
		log:     params.Logger,
		metrics: params.Metrics,
		pwCfg:   params.Password,
	}, nil
}

// CreateUser provisions a new account. The actor needs the manage-users
// permission; the input is validated fail-fast in field order so the caller
// sees one actionable violation at a time. Username and email collisions
// surface as conflicts, including the race where a concurrent insert wins and
// the unique index fires.
func (s *Service) CreateUser(ctx context.Context, actor *models.User, input CreateUserInput) (*UserDTO, error) {
	if err := authz.Require(actor, enums.PermissionManageUsers); err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, actor, input)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *Service) createUser(ctx context.Context, actor *models.User, input CreateUserInput) (*models.User, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := validate.Username(input.Username); err != nil {
		return nil, err
	}
	if err := validate.Email(input.Email); err != nil {
		return nil, err
	}
	if err := validate.PasswordStrength(input.Password, s.pwCfg.MinLength); err != nil {
		return nil, err
	}
	if input.Role != "" && !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", input.Role))
	}

	// Hashing is deliberately slow; keep it outside the transaction.
	hashStart := time.Now()
	hash, err := security.HashPassword(input.Password, s.pwCfg)
	s.metrics.ObserveHashDuration(time.Since(hashStart))
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := &Repository{db: tx}
		if _, err := repo.FindByUsername(ctx, input.Username); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "username already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check username")
		}
		if _, err := repo.FindByEmail(ctx, input.Email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check email")
		}

		user, err := repo.Create(ctx, CreateUserRecord{
			Username:     input.Username,
			Email:        input.Email,
			PasswordHash: hash,
			FullName:     input.FullName,
			Role:         input.Role,
		})
		if err != nil {
			// A concurrent insert can still beat the pre-checks.
			if db.IsUniqueViolation(err, "idx_users_username") {
				return pkgerrors.New(pkgerrors.CodeConflict, "username already exists")
			}
			if db.IsUniqueViolation(err, "idx_users_email") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create user")
		}
		created = user

		recorder := actor
		if recorder == nil {
			// Bootstrap path: the freshly created admin records its own birth.
			recorder = user
		}
		_, err = s.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       recorder,
			Action:      enums.AuditActionCreate,
			EntityType:  enums.EntityTypeUser,
			EntityID:    user.ID,
			After:       FromModel(user),
			Description: fmt.Sprintf("created user %s (%s)", user.Username, user.Role),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.Info(s.log.WithUsername(ctx, created.Username), "user created")
	}
	return created, nil
}

// Authenticate verifies credentials and returns the matching active user.
// Every failure mode collapses into one generic unauthorized error so the
// response never reveals whether the username exists, the password was wrong,
// or the account is deactivated.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.verifyCredentials(ctx, username, password)
	if err != nil {
		s.metrics.IncLogin("failure")
		if s.log != nil {
			s.log.Warn(s.log.WithUsername(ctx, username), "authentication failed")
		}
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid username or password")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Login still succeeds; the timestamp is advisory.
		if s.log != nil {
			s.log.Warn(s.log.WithUserID(ctx, user.ID), "update last login failed: "+err.Error())
		}
	} else {
		user.LastLoginAt = &now
	}

	s.metrics.IncLogin("success")
	return user, nil
}

// AuthenticateAsync runs the credential check off the caller's goroutine. The
// returned channel is buffered and receives exactly one result.
func (s *Service) AuthenticateAsync(ctx context.Context, username, password string) <-chan AuthResult {
	out := make(chan AuthResult, 1)
	go func() {
		defer close(out)
		user, err := s.Authenticate(ctx, username, password)
		out <- AuthResult{User: user, Err: err}
	}()
	return out
}

func (s *Service) verifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("empty credentials")
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		// Burn a hash anyway so an unknown username costs the same as a
		// wrong password.
		security.VerifyPassword(password, s.dummy())
		return nil, err
	}

	verifyStart := time.Now()
	ok, err := security.VerifyPassword(password, user.PasswordHash)
	s.metrics.ObserveHashDuration(time.Since(verifyStart))
	if err != nil || !ok {
		return nil, fmt.Errorf("password mismatch")
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account deactivated")
	}
	return user, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := security.HashPassword("brewmetric-timing-pad", s.pwCfg)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// User loads the full account model for trusted in-process callers such as
// session verification. External surfaces go through GetUser instead.
func (s *Service) User(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load user")
	}
	return user, nil
}

// GetUser loads a single account. Any authenticated actor may resolve users;
// the DTO omits credential material.
func (s *Service) GetUser(ctx context.Context, actor *models.User, id uint) (*UserDTO, error) {
	if actor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load user")
	}
	return FromModel(user), nil
}

// Deactivate tombstones an account so its credentials stop working while its
// audit history stays attributable. The actor needs the manage-users
// permission and cannot deactivate themselves.
func (s *Service) Deactivate(ctx context.Context, actor *models.User, userID uint, sessionID *string) error {
	if err := authz.Require(actor, enums.PermissionManageUsers); err != nil {
		return err
	}
	if actor.ID == userID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot deactivate your own account")
	}

	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := &Repository{db: tx}
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load user")
		}
		if !user.IsActive {
			return nil
		}

		before := FromModel(user)
		if err := repo.SetActive(ctx, userID, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "deactivate user")
		}
		user.IsActive = false

		_, err = s.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       actor,
			Action:      enums.AuditActionUpdate,
			EntityType:  enums.EntityTypeUser,
			EntityID:    user.ID,
			Before:      before,
			After:       FromModel(user),
			Description: fmt.Sprintf("deactivated user %s", user.Username),
			SessionID:   sessionID,
		})
		return err
	})
}

// EnsureDefaultAdmin creates the bootstrap administrator when no admin account
// exists. It reports whether the account was freshly created so the caller can
// print the default credentials exactly once.
func (s *Service) EnsureDefaultAdmin(ctx context.Context) (*UserDTO, bool, error) {
	existing, err := s.repo.FindFirstByRole(ctx, enums.RoleAdmin)
	if err == nil {
		return FromModel(existing), false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "look up admin")
	}

	created, err := s.createUser(ctx, nil, CreateUserInput{
		Username: DefaultAdminUsername,
		Email:    DefaultAdminEmail,
		Password: DefaultAdminPassword,
		FullName: DefaultAdminFullName,
		Role:     enums.RoleAdmin,
	})
	if err != nil {
		// Two processes can race the bootstrap; whoever lost re-reads.
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			existing, findErr := s.repo.FindFirstByRole(ctx, enums.RoleAdmin)
			if findErr == nil {
				return FromModel(existing), false, nil
			}
		}
		return nil, false, err
	}
	return FromModel(created), true, nil
}
