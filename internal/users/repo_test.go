package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pokecard-storefront/pkg/db"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/dbtest"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: " Ondine@Azuria.fr ", PasswordHash: "h", FirstName: " Ondine ", LastName: "Azuria"})
	require.NoError(t, err)
	assert.Equal(t, "ondine@azuria.fr", user.Email)
	assert.True(t, user.IsActive)

	found, err := repo.FindByEmail(ctx, "ONDINE@azuria.fr")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "Ondine", found.FirstName)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	_, err = repo.Create(ctx, CreateUserDTO{Email: "ondine@azuria.fr", PasswordHash: "h"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryUpdateLastLogin(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	user := dbtest.MustCreateUser(t, conn)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpdateLastLogin(context.Background(), user.ID, at))
	found, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	assert.True(t, found.LastLoginAt.Equal(at))

	dto := FromModel(found)
	assert.Equal(t, user.ID, dto.ID)
	assert.Nil(t, FromModel(nil))
}
