package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/driftbox/authcore/domain"
)

// UserRepositoryMongo implements domain.UserRepository. The user store is
// owned by the platform; the auth core reads the fields it snapshots.
type UserRepositoryMongo struct {
	collection *mongo.Collection
}

func NewUserRepositoryMongo(db *mongo.Database) domain.UserRepository {
	return &UserRepositoryMongo{collection: db.Collection(UsersCollection)}
}

func (r *UserRepositoryMongo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Str("id", id).Msg("Error getting user by ID")
		return nil, err
	}
	return &user, nil
}
