package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftbox/authcore/domain"
)

// PasskeyRepositoryMongo implements domain.PasskeyRepository.
type PasskeyRepositoryMongo struct {
	collection *mongo.Collection
}

// NewPasskeyRepositoryMongo creates the repository and ensures its indexes.
func NewPasskeyRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.PasskeyRepository, error) {
	repo := &PasskeyRepositoryMongo{collection: db.Collection(PasskeysCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "credential_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for passkey_credentials collection")
	}
	return repo, nil
}

func (r *PasskeyRepositoryMongo) CreateCredential(ctx context.Context, credential *domain.PasskeyCredential) error {
	if _, err := r.collection.InsertOne(ctx, credential); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("credential already registered: %w", err)
		}
		log.Error().Err(err).Msg("Error storing passkey credential")
		return err
	}
	return nil
}

func (r *PasskeyRepositoryMongo) GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	var credential domain.PasskeyCredential
	err := r.collection.FindOne(ctx, bson.M{"credential_id": credentialID}).Decode(&credential)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error getting passkey credential")
		return nil, err
	}
	return &credential, nil
}

func (r *PasskeyRepositoryMongo) ListCredentialsByUser(ctx context.Context, userID string) ([]*domain.PasskeyCredential, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Error listing passkey credentials")
		return nil, err
	}
	defer cursor.Close(ctx)

	var credentials []*domain.PasskeyCredential
	if err := cursor.All(ctx, &credentials); err != nil {
		return nil, err
	}
	return credentials, nil
}

func (r *PasskeyRepositoryMongo) UpdateCredentialCounter(ctx context.Context, id string, counter uint32, usedAt time.Time) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"counter": counter, "last_used_at": usedAt}})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Error updating passkey counter")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PasskeyRepositoryMongo) DeleteCredential(ctx context.Context, userID, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Error deleting passkey credential")
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
