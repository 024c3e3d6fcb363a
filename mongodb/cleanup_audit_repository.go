package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/loclio/identity-recovery/domain"
)

// CleanupAuditRepository implements domain.CleanupAuditRepository. The
// collection is append-only: records are inserted as pending, moved once to
// a terminal status, and never deleted.
type CleanupAuditRepository struct {
	audits *mongo.Collection
}

// NewCleanupAuditRepository creates the repository and ensures indexes.
func NewCleanupAuditRepository(ctx context.Context, db *mongo.Database) (*CleanupAuditRepository, error) {
	repo := &CleanupAuditRepository{
		audits: db.Collection(CleanupAuditCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create cleanup audit indexes (may already exist)")
	}
	return repo, nil
}

func (r *CleanupAuditRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "correlation_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "email_hash", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := r.audits.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for cleanup audit collection: %w", err)
	}
	return nil
}

// Create inserts a new audit record with status pending.
func (r *CleanupAuditRepository) Create(ctx context.Context, audit *domain.CleanupAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	audit.UpdatedAt = now
	if audit.Status == "" {
		audit.Status = domain.CleanupStatusPending
	}

	if _, err := r.audits.InsertOne(ctx, audit); err != nil {
		return fmt.Errorf("failed to insert cleanup audit record: %w", err)
	}
	return nil
}

// Finalize moves a pending record to a terminal status. The status filter in
// the update makes the terminal transition happen at most once even under
// concurrent finalization.
func (r *CleanupAuditRepository) Finalize(ctx context.Context, id string, status domain.CleanupStatus, errorCode string) error {
	update := bson.M{"$set": bson.M{
		"status":     status,
		"error_code": errorCode,
		"updated_at": time.Now().UTC(),
	}}
	filter := bson.M{"_id": id, "status": domain.CleanupStatusPending}

	if _, err := r.audits.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to finalize cleanup audit record: %w", err)
	}
	return nil
}

// FindByCorrelationID returns every audit record for a correlation id,
// oldest first. Compliance lookups join on this.
func (r *CleanupAuditRepository) FindByCorrelationID(ctx context.Context, correlationID string) ([]*domain.CleanupAudit, error) {
	cursor, err := r.audits.Find(ctx, bson.M{"correlation_id": correlationID})
	if err != nil {
		return nil, fmt.Errorf("failed to query cleanup audit records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*domain.CleanupAudit
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode cleanup audit records: %w", err)
	}
	return records, nil
}
