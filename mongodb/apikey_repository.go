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

// APIKeyRepositoryMongo implements domain.APIKeyRepository.
type APIKeyRepositoryMongo struct {
	collection *mongo.Collection
}

// NewAPIKeyRepositoryMongo creates the repository and ensures its indexes.
func NewAPIKeyRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.APIKeyRepository, error) {
	repo := &APIKeyRepositoryMongo{collection: db.Collection(APIKeysCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "public_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_user_id", Value: 1}},
		},
	}
	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for api_keys collection")
	}
	return repo, nil
}

func (r *APIKeyRepositoryMongo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	if _, err := r.collection.InsertOne(ctx, key); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("api key with this public key already exists: %w", err)
		}
		log.Error().Err(err).Msg("Error storing api key")
		return err
	}
	return nil
}

func (r *APIKeyRepositoryMongo) GetAPIKeyByID(ctx context.Context, id string) (*domain.APIKey, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *APIKeyRepositoryMongo) GetAPIKeyByPublicKey(ctx context.Context, publicKey string) (*domain.APIKey, error) {
	return r.findOne(ctx, bson.M{"public_key": publicKey})
}

func (r *APIKeyRepositoryMongo) findOne(ctx context.Context, filter bson.M) (*domain.APIKey, error) {
	var key domain.APIKey
	err := r.collection.FindOne(ctx, filter).Decode(&key)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error getting api key")
		return nil, err
	}
	return &key, nil
}

func (r *APIKeyRepositoryMongo) ListAPIKeysByOwner(ctx context.Context, ownerUserID string) ([]*domain.APIKey, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"owner_user_id": ownerUserID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		log.Error().Err(err).Str("owner", ownerUserID).Msg("Error listing api keys")
		return nil, err
	}
	defer cursor.Close(ctx)

	var keys []*domain.APIKey
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *APIKeyRepositoryMongo) UpdateAPIKey(ctx context.Context, key *domain.APIKey) error {
	key.UpdatedAt = time.Now().UTC()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": key.ID}, key)
	if err != nil {
		log.Error().Err(err).Str("id", key.ID).Msg("Error updating api key")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *APIKeyRepositoryMongo) TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_used_at": at}})
	return err
}
