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

func newCodeRecord(keyHash string, expiresAt time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		IdentityKeyHash: keyHash,
		CodeHash:        []byte("hash-bytes"),
		CodeSalt:        []byte("salt-bytes"),
		CorrelationID:   "corr-1",
		ExpiresAt:       expiresAt,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestVerificationCodeRepository_InsertAndFind(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_codes")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewVerificationCodeRepository(ctx, db)
	require.NoError(t, err)

	expiresAt := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Millisecond)
	require.NoError(t, repo.Insert(ctx, newCodeRecord("key-1", expiresAt)))

	found, err := repo.FindByIdentityKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", found.IdentityKeyHash)
	assert.Equal(t, []byte("hash-bytes"), found.CodeHash)
	assert.Equal(t, []byte("salt-bytes"), found.CodeSalt)
	assert.WithinDuration(t, expiresAt, found.ExpiresAt, time.Millisecond)
}

func TestVerificationCodeRepository_FindMissing(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_codes")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewVerificationCodeRepository(ctx, db)
	require.NoError(t, err)

	_, err = repo.FindByIdentityKey(ctx, "no-such-key")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerificationCodeRepository_DuplicateInsertRejected(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_codes")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewVerificationCodeRepository(ctx, db)
	require.NoError(t, err)

	expiresAt := time.Now().UTC().Add(10 * time.Minute)
	require.NoError(t, repo.Insert(ctx, newCodeRecord("key-1", expiresAt)))

	err = repo.Insert(ctx, newCodeRecord("key-1", expiresAt.Add(time.Minute)))
	assert.ErrorIs(t, err, domain.ErrDuplicate, "one live record per identity key")
}

func TestVerificationCodeRepository_Delete(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_codes")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewVerificationCodeRepository(ctx, db)
	require.NoError(t, err)

	require.NoError(t, repo.Insert(ctx, newCodeRecord("key-1", time.Now().UTC().Add(10*time.Minute))))
	require.NoError(t, repo.Delete(ctx, "key-1"))

	_, err = repo.FindByIdentityKey(ctx, "key-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting an absent record is not an error.
	assert.NoError(t, repo.Delete(ctx, "key-1"))
}

func TestVerificationCodeRepository_FindReturnsExpiredRecord(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_codes")
	defer cleanup()
	ctx := context.Background()

	repo, err := NewVerificationCodeRepository(ctx, db)
	require.NoError(t, err)

	// The TTL monitor reaps expired documents with up to a minute of lag, so
	// a just-expired record is still findable. The caller owns the expiry
	// decision.
	expired := newCodeRecord("key-1", time.Now().UTC().Add(-time.Second))
	require.NoError(t, repo.Insert(ctx, expired))

	found, err := repo.FindByIdentityKey(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, found.IsExpired(time.Now()))
}
