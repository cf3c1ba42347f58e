package session

import (
	"context"
	"fmt"
	"time"

	"github.com/brewmetric/brewmetric-core/internal/audit"
	"github.com/brewmetric/brewmetric-core/internal/directory"
	"github.com/brewmetric/brewmetric-core/pkg/config"
	"github.com/brewmetric/brewmetric-core/pkg/db"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
	"github.com/brewmetric/brewmetric-core/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultTTL = 12 * time.Hour

// Claims is the signed payload embedded in a session handle.
type Claims struct {
	Username string     `json:"username"`
	Role     enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager logs users in and out and verifies session handles.
type Manager struct {
	client    *db.Client
	directory *directory.Service
	audit     *audit.Service
	log       *logger.Logger
	cfg       config.SessionConfig
}

// ManagerParams bundles the dependencies required to build a session manager.
type ManagerParams struct {
	Client    *db.Client
	Directory *directory.Service
	Audit     *audit.Service
	Logger    *logger.Logger
	Config    config.SessionConfig
}

// NewManager wires a session manager with the provided dependencies.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("directory service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if params.Config.Secret == "" {
		return nil, fmt.Errorf("session secret required")
	}
	return &Manager{
		client:    params.Client,
		directory: params.Directory,
		audit:     params.Audit,
		log:       params.Logger,
		cfg:       params.Config,
	}, nil
}

// Login verifies credentials and returns a fresh session. The LOGIN audit
// entry commits before the session is handed out; if the trail cannot be
// written the login fails.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := m.directory.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ttl := m.cfg.TTL()
	if ttl <= 0 {
		ttl = defaultTTL
	}
	sessionID := uuid.NewString()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   fmt.Sprintf("%d", user.ID),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign session token")
	}

	err = m.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := m.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       user,
			Action:      enums.AuditActionLogin,
			EntityType:  enums.EntityTypeUser,
			EntityID:    user.ID,
			Description: fmt.Sprintf("user %s logged in", user.Username),
			SessionID:   &sessionID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if m.log != nil {
		m.log.Info(m.log.WithSessionID(m.log.WithUserID(ctx, user.ID), sessionID), "session opened")
	}

	return &Session{
		ID:        sessionID,
		Token:     token,
		User:      user,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout records the LOGOUT audit entry and revokes the session in place.
// Logging out an already-dead session is a no-op.
func (m *Manager) Logout(ctx context.Context, sess *Session) error {
	if sess == nil || !sess.IsAuthenticated() {
		return nil
	}
	user := sess.User

	err := m.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := m.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       user,
			Action:      enums.AuditActionLogout,
			EntityType:  enums.EntityTypeUser,
			EntityID:    user.ID,
			Description: fmt.Sprintf("user %s logged out", user.Username),
			SessionID:   &sess.ID,
		})
		return err
	})
	if err != nil {
		return err
	}

	sess.revoke()
	if m.log != nil {
		m.log.Info(m.log.WithSessionID(ctx, sess.ID), "session closed")
	}
	return nil
}

// Verify parses and validates a session handle and rehydrates the session
// against the current directory state. A token whose user has since been
// deactivated verifies the signature but still fails.
func (m *Manager) Verify(ctx context.Context, token string) (*Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.cfg.Secret), nil
	}, jwt.WithIssuer(m.cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
	}

	var userID uint
	if _, err := fmt.Sscanf(claims.Subject, "%d", &userID); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
	}

	user, err := m.directory.User(ctx, userID)
	if err != nil || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
	}

	return &Session{
		ID:        claims.ID,
		Token:     token,
		User:      user,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
