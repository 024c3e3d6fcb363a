package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loclio/identity-recovery/domain"
	"github.com/loclio/identity-recovery/mongodb/testutil"
)

func seedIdentity(t *testing.T, repo *IdentityRepository, id, email string) {
	t.Helper()
	_, err := repo.identities.InsertOne(context.Background(), &domain.Identity{
		ID:            id,
		Email:         email,
		EmailVerified: true,
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestIdentityRepository_GetByEmail(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_identities")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewIdentityRepository(ctx, db)
	require.NoError(t, err)
	seedIdentity(t, repo, "id-1", "user@example.com")

	found, err := repo.GetByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "id-1", found.ID)

	// Lookup is case-insensitive.
	found, err = repo.GetByEmail(ctx, "User@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "id-1", found.ID)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityRepository_GetByID(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_identities")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewIdentityRepository(ctx, db)
	require.NoError(t, err)
	seedIdentity(t, repo, "id-1", "user@example.com")

	found, err := repo.GetByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", found.Email)

	_, err = repo.GetByID(ctx, "id-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityRepository_DeleteFreesEmail(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_identities")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewIdentityRepository(ctx, db)
	require.NoError(t, err)
	seedIdentity(t, repo, "id-1", "user@example.com")

	require.NoError(t, repo.Delete(ctx, "id-1"))
	_, err = repo.GetByEmail(ctx, "user@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The email is available again after the delete.
	seedIdentity(t, repo, "id-2", "user@example.com")
	found, err := repo.GetByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "id-2", found.ID)

	assert.ErrorIs(t, repo.Delete(ctx, "id-1"), domain.ErrNotFound)
}

func TestMembershipRepository_ExistsForOwner(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_members")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewMembershipRepository(ctx, db)
	require.NoError(t, err)

	exists, err := repo.ExistsForOwner(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.members.InsertOne(ctx, map[string]any{"user_id": "id-1", "company_id": "co-1"})
	require.NoError(t, err)

	exists, err = repo.ExistsForOwner(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProfileRepository_ExistsForSubject(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_profiles")
	defer cleanup()
	ctx := context.Background()

	repo := NewProfileRepository(db)

	exists, err := repo.ExistsForSubject(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.profiles.InsertOne(ctx, map[string]any{"_id": "id-1", "display_name": "User"})
	require.NoError(t, err)

	exists, err = repo.ExistsForSubject(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, exists)
}
