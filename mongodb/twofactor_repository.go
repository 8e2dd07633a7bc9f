package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftbox/authcore/domain"
)

// TwoFactorRepositoryMongo implements domain.TwoFactorRepository. The user
// id is the document id, which enforces one enrollment per user.
type TwoFactorRepositoryMongo struct {
	collection *mongo.Collection
}

func NewTwoFactorRepositoryMongo(db *mongo.Database) domain.TwoFactorRepository {
	return &TwoFactorRepositoryMongo{collection: db.Collection(TwoFactorCollection)}
}

func (r *TwoFactorRepositoryMongo) GetEnrollment(ctx context.Context, userID string) (*domain.TwoFactorEnrollment, error) {
	var enrollment domain.TwoFactorEnrollment
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&enrollment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Str("userID", userID).Msg("Error getting two-factor enrollment")
		return nil, err
	}
	return &enrollment, nil
}

func (r *TwoFactorRepositoryMongo) UpsertEnrollment(ctx context.Context, enrollment *domain.TwoFactorEnrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = enrollment.UpdatedAt
	}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": enrollment.UserID}, enrollment,
		options.Replace().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("userID", enrollment.UserID).Msg("Error upserting two-factor enrollment")
	}
	return err
}

func (r *TwoFactorRepositoryMongo) DeleteEnrollment(ctx context.Context, userID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Error deleting two-factor enrollment")
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
