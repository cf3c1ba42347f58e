package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brewmetric/brewmetric-core/internal/audit"
	"github.com/brewmetric/brewmetric-core/pkg/config"
	"github.com/brewmetric/brewmetric-core/pkg/db"
	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
	"github.com/brewmetric/brewmetric-core/pkg/migrate"
	"github.com/brewmetric/brewmetric-core/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fast Argon parameters for tests; production values live in config defaults.
func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		MinLength:        8,
		MaxLength:        1024,
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     8,
		ArgonKeyLen:      16,
	}
}

func setupService(t *testing.T) (*db.Client, *Service) {
	t.Helper()
	ctx := context.Background()

	cfg := config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}
	client, err := db.New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Up(ctx, sqlDB, cfg))

	auditSvc, err := audit.NewService(audit.ServiceParams{
		Repo: audit.NewRepository(client.DB()),
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Client:   client,
		Repo:     NewRepository(client.DB()),
		Audit:    auditSvc,
		Password: testPasswordConfig(),
	})
	require.NoError(t, err)
	return client, svc
}

func seedAdmin(t *testing.T, client *db.Client) *models.User {
	t.Helper()
	hash, err := security.HashPassword("Admin@123456", testPasswordConfig())
	require.NoError(t, err)
	admin := &models.User{
		Username:     "root_admin",
		Email:        "root@brewmetric.local",
		PasswordHash: hash,
		FullName:     "Root Admin",
		Role:         enums.RoleAdmin,
		IsActive:     true,
	}
	require.NoError(t, client.DB().Create(admin).Error)
	return admin
}

func TestCreateUserValidation(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	valid := CreateUserInput{
		Username: "brewer_jane",
		Email:    "jane@brewmetric.local",
		Password: "Str0ng!pass",
		FullName: "Jane Brewer",
		Role:     enums.RoleStaff,
	}

	cases := []struct {
		name   string
		mutate func(*CreateUserInput)
	}{
		{"missing username", func(in *CreateUserInput) { in.Username = "" }},
		{"username too short", func(in *CreateUserInput) { in.Username = "ab" }},
		{"username starts with digit", func(in *CreateUserInput) { in.Username = "1jane" }},
		{"bad email", func(in *CreateUserInput) { in.Email = "not-an-email" }},
		{"password too short", func(in *CreateUserInput) { in.Password = "S1!a" }},
		{"password missing uppercase", func(in *CreateUserInput) { in.Password = "str0ng!pass" }},
		{"password missing digit", func(in *CreateUserInput) { in.Password = "Strong!pass" }},
		{"password missing symbol", func(in *CreateUserInput) { in.Password = "Str0ngpass" }},
		{"invalid role", func(in *CreateUserInput) { in.Role = enums.Role("owner") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			_, err := svc.CreateUser(ctx, admin, input)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "want validation error, got %v", err)
		})
	}
}

func TestCreateUserRequiresManageUsers(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	staff, err := svc.CreateUser(ctx, admin, CreateUserInput{
		Username: "brewer_sam",
		Email:    "sam@brewmetric.local",
		Password: "Str0ng!pass",
		FullName: "Sam Brewer",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RoleStaff, staff.Role)

	staffModel, err := svc.repo.FindByID(ctx, staff.ID)
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, staffModel, CreateUserInput{
		Username: "brewer_two",
		Email:    "two@brewmetric.local",
		Password: "Str0ng!pass",
		FullName: "Brewer Two",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	_, err = svc.CreateUser(ctx, nil, CreateUserInput{
		Username: "brewer_three",
		Email:    "three@brewmetric.local",
		Password: "Str0ng!pass",
		FullName: "Brewer Three",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestCreateUserDuplicates(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	input := CreateUserInput{
		Username: "brewer_jane",
		Email:    "jane@brewmetric.local",
		Password: "Str0ng!pass",
		FullName: "Jane Brewer",
	}
	_, err := svc.CreateUser(ctx, admin, input)
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, admin, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Contains(t, err.Error(), "username already exists")

	input.Username = "brewer_janet"
	_, err = svc.CreateUser(ctx, admin, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Contains(t, err.Error(), "email already exists")
}

func TestCreateUserWritesAudit(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, admin, CreateUserInput{
		Username: "brewer_jane",
		Email:    "jane@brewmetric.local",
		Password: "Str0ng!pass",
		FullName: "Jane Brewer",
	})
	require.NoError(t, err)

	var entries []models.AuditEntry
	require.NoError(t, client.DB().Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, admin.ID, entries[0].UserID)
	assert.Equal(t, enums.AuditActionCreate, entries[0].Action)
	assert.Equal(t, enums.EntityTypeUser, entries[0].EntityType)
	assert.Equal(t, created.ID, entries[0].EntityID)
	require.NotNil(t, entries[0].NewValues)
	assert.Contains(t, *entries[0].NewValues, "brewer_jane")
	assert.NotContains(t, *entries[0].NewValues, "Str0ng!pass")
}

func TestAuthenticate(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, admin.Username, "Admin@123456")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)
	require.NotNil(t, user.LastLoginAt)
	assert.WithinDuration(t, time.Now().UTC(), *user.LastLoginAt, 5*time.Second)
}

func TestAuthenticateFailsClosed(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		prepare  func()
	}{
		{"wrong password", admin.Username, "Wrong@123456", nil},
		{"unknown username", "nobody", "Admin@123456", nil},
		{"empty credentials", "", "", nil},
		{"deactivated account", admin.Username, "Admin@123456", func() {
			require.NoError(t, client.DB().Model(&models.User{}).
				Where("id = ?", admin.ID).
				UpdateColumn("is_active", false).Error)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.prepare != nil {
				tc.prepare()
			}
			_, err := svc.Authenticate(ctx, tc.username, tc.password)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
			// Every failure collapses into the same generic message.
			assert.Contains(t, err.Error(), "invalid username or password")
		})
	}
}

func TestAuthenticateAsync(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	result := <-svc.AuthenticateAsync(ctx, admin.Username, "Admin@123456")
	require.NoError(t, result.Err)
	assert.Equal(t, admin.ID, result.User.ID)

	result = <-svc.AuthenticateAsync(ctx, admin.Username, "Wrong@123456")
	require.Error(t, result.Err)
	assert.Nil(t, result.User)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	created, fresh, err := svc.EnsureDefaultAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, DefaultAdminUsername, created.Username)
	assert.Equal(t, enums.RoleAdmin, created.Role)

	again, fresh, err := svc.EnsureDefaultAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, created.ID, again.ID)

	user, err := svc.Authenticate(ctx, DefaultAdminUsername, DefaultAdminPassword)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
}

func TestDeactivate(t *testing.T) {
	client, svc := setupService(t)
	admin := seedAdmin(t, client)
	ctx := context.Background()

	staff, err := svc.CreateUser(ctx, admin, CreateUserInput{
		Username: "brewer_jane",
		Email:    "jane@brewmetric.local",
		Password: "Str0ng!pass",
		FullName: "Jane Brewer",
	})
	require.NoError(t, err)
	staffModel, err := svc.repo.FindByID(ctx, staff.ID)
	require.NoError(t, err)

	t.Run("staff cannot deactivate", func(t *testing.T) {
		err := svc.Deactivate(ctx, staffModel, admin.ID, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	})

	t.Run("cannot deactivate self", func(t *testing.T) {
		err := svc.Deactivate(ctx, admin, admin.ID, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	t.Run("missing user", func(t *testing.T) {
		err := svc.Deactivate(ctx, admin, 9999, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})

	t.Run("deactivates and audits", func(t *testing.T) {
		sessionID := "sess-1"
		require.NoError(t, svc.Deactivate(ctx, admin, staff.ID, &sessionID))

		reloaded, err := svc.repo.FindByID(ctx, staff.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.IsActive)

		_, err = svc.Authenticate(ctx, staff.Username, "Str0ng!pass")
		require.Error(t, err)

		var entries []models.AuditEntry
		require.NoError(t, client.DB().
			Where("entity_type = ? AND action = ?", enums.EntityTypeUser, enums.AuditActionUpdate).
			Find(&entries).Error)
		require.Len(t, entries, 1)
		assert.Equal(t, staff.ID, entries[0].EntityID)
		require.NotNil(t, entries[0].SessionID)
		assert.Equal(t, sessionID, *entries[0].SessionID)

		// Repeat deactivation is a no-op and records nothing new.
		require.NoError(t, svc.Deactivate(ctx, admin, staff.ID, &sessionID))
		require.NoError(t, client.DB().
			Where("entity_type = ? AND action = ?", enums.EntityTypeUser, enums.AuditActionUpdate).
			Find(&entries).Error)
		assert.Len(t, entries, 1)
	})
}
