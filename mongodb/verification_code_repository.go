package mongodb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/loclio/identity-recovery/domain"
)

// VerificationCodeRepository implements domain.VerificationCodeRepository.
// Records are keyed by identity key hash (_id), which is the uniqueness
// constraint backing the one-live-code-per-identity invariant. A TTL index
// on expires_at removes records shortly after natural expiry.
type VerificationCodeRepository struct {
	codes *mongo.Collection
}

// NewVerificationCodeRepository creates the repository and ensures indexes.
func NewVerificationCodeRepository(ctx context.Context, db *mongo.Database) (*VerificationCodeRepository, error) {
	repo := &VerificationCodeRepository{
		codes: db.Collection(VerificationCodesCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create verification code indexes (may already exist)")
	}
	return repo, nil
}

func (r *VerificationCodeRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// Mongo's TTL monitor runs every ~60s, so an expired record can
			// linger briefly. The coordinator checks expires_at itself and
			// never trusts the sweep for correctness.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := r.codes.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for verification codes collection: %w", err)
	}
	return nil
}

// FindByIdentityKey returns the record for the key, expired or not.
func (r *VerificationCodeRepository) FindByIdentityKey(ctx context.Context, identityKeyHash string) (*domain.VerificationCode, error) {
	var code domain.VerificationCode
	err := r.codes.FindOne(ctx, bson.M{"_id": identityKeyHash}).Decode(&code)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load verification code: %w", err)
	}
	return &code, nil
}

// Insert stores a new code record. A duplicate key maps to
// domain.ErrDuplicate, the backstop against concurrent code generation.
func (r *VerificationCodeRepository) Insert(ctx context.Context, code *domain.VerificationCode) error {
	if _, err := r.codes.InsertOne(ctx, code); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to insert verification code: %w", err)
	}
	return nil
}

// Delete consumes the record. Deleting an absent record is not an error.
func (r *VerificationCodeRepository) Delete(ctx context.Context, identityKeyHash string) error {
	if _, err := r.codes.DeleteOne(ctx, bson.M{"_id": identityKeyHash}); err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	return nil
}
