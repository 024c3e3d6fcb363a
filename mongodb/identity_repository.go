package mongodb

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/loclio/identity-recovery/domain"
)

// IdentityRepository implements domain.IdentityRepository against the
// authentication provider's identity collection. This service never creates
// or updates identities; it only resolves them and performs the
// administrative delete at the end of a successful cleanup.
type IdentityRepository struct {
	identities *mongo.Collection
}

// NewIdentityRepository creates the repository and ensures indexes.
func NewIdentityRepository(ctx context.Context, db *mongo.Database) (*IdentityRepository, error) {
	repo := &IdentityRepository{
		identities: db.Collection(IdentitiesCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create identity indexes (may already exist)")
	}
	return repo, nil
}

func (r *IdentityRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// Case-insensitive unique email: the provider rejects duplicate
			// identities for the same address.
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(&options.Collation{Locale: "en", Strength: 2}),
		},
	}
	if _, err := r.identities.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for identities collection: %w", err)
	}
	return nil
}

// GetByEmail resolves an identity by email, case-insensitively.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	var identity domain.Identity
	opts := options.FindOne().SetCollation(&options.Collation{Locale: "en", Strength: 2})
	err := r.identities.FindOne(ctx, bson.M{"email": strings.ToLower(email)}, opts).Decode(&identity)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity by email: %w", err)
	}
	return &identity, nil
}

// GetByID resolves an identity by its provider id.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	var identity domain.Identity
	err := r.identities.FindOne(ctx, bson.M{"_id": id}).Decode(&identity)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity by id: %w", err)
	}
	return &identity, nil
}

// Delete removes the identity record. ErrNotFound when it was already gone.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	res, err := r.identities.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
