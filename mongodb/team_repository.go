package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/driftbox/authcore/domain"
)

// TeamRepositoryMongo implements domain.TeamRepository over the tenancy
// collections. The auth core only reads them.
type TeamRepositoryMongo struct {
	teams       *mongo.Collection
	memberships *mongo.Collection
}

// NewTeamRepositoryMongo creates the repository and ensures the membership
// index.
func NewTeamRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.TeamRepository, error) {
	repo := &TeamRepositoryMongo{
		teams:       db.Collection(TeamsCollection),
		memberships: db.Collection(TeamMembershipsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := repo.memberships.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for team_memberships collection")
	}
	return repo, nil
}

func (r *TeamRepositoryMongo) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	var team domain.Team
	err := r.teams.FindOne(ctx, bson.M{"_id": teamID}).Decode(&team)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Str("teamID", teamID).Msg("Error getting team")
		return nil, err
	}
	return &team, nil
}

func (r *TeamRepositoryMongo) GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	var membership domain.TeamMembership
	err := r.memberships.FindOne(ctx, bson.M{"team_id": teamID, "user_id": userID}).Decode(&membership)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Str("teamID", teamID).Str("userID", userID).Msg("Error getting team membership")
		return nil, err
	}
	return &membership, nil
}
