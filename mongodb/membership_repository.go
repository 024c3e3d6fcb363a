package mongodb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MembershipRepository implements domain.MembershipRepository over the
// tenant-membership collection. This is the primary existence relation for
// orphan detection: an identity with a membership is not orphaned.
type MembershipRepository struct {
	members *mongo.Collection
}

// NewMembershipRepository creates the repository and ensures indexes.
func NewMembershipRepository(ctx context.Context, db *mongo.Database) (*MembershipRepository, error) {
	repo := &MembershipRepository{
		members: db.Collection(MembersCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create membership indexes (may already exist)")
	}
	return repo, nil
}

func (r *MembershipRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	if _, err := r.members.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for members collection: %w", err)
	}
	return nil
}

// ExistsForOwner reports whether any membership row references the identity.
func (r *MembershipRepository) ExistsForOwner(ctx context.Context, identityID string) (bool, error) {
	count, err := r.members.CountDocuments(ctx, bson.M{"user_id": identityID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check membership existence: %w", err)
	}
	return count > 0, nil
}
