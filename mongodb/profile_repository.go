package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ProfileRepository implements domain.ProfileRepository over the application
// profile collection. Profiles share their _id with the identity, so the
// secondary existence check is a primary-key lookup.
type ProfileRepository struct {
	profiles *mongo.Collection
}

// NewProfileRepository creates the repository. Profiles are keyed by _id;
// no extra indexes are needed.
func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{
		profiles: db.Collection(ProfilesCollection),
	}
}

// ExistsForSubject reports whether a profile exists for the identity.
func (r *ProfileRepository) ExistsForSubject(ctx context.Context, identityID string) (bool, error) {
	count, err := r.profiles.CountDocuments(ctx, bson.M{"_id": identityID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check profile existence: %w", err)
	}
	return count > 0, nil
}
