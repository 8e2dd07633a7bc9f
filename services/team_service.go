package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/cache"
	"github.com/driftbox/authcore/domain"
)

const (
	teamCacheTTL       = 10 * time.Minute
	membershipCacheTTL = 15 * time.Minute
)

// TeamService resolves team context for team-scoped requests. Teams and
// memberships are owned by the tenancy service; this layer only reads them,
// through read-through caches sized for the membership lookup that happens
// on every team-scoped call.
type TeamService struct {
	repo        domain.TeamRepository
	teams       *cache.Lookup[*domain.Team]
	memberships *cache.Lookup[*domain.TeamMembership]
}

func NewTeamService(repo domain.TeamRepository, store cache.Store) *TeamService {
	return &TeamService{
		repo:        repo,
		teams:       cache.NewLookup(store, "team", teamCacheTTL, repo.GetTeam),
		memberships: cache.NewLookup(store, "team_membership", membershipCacheTTL, func(ctx context.Context, key string) (*domain.TeamMembership, error) {
			teamID, userID, ok := splitMembershipKey(key)
			if !ok {
				return nil, domain.ErrNotFound
			}
			return repo.GetMembership(ctx, teamID, userID)
		}),
	}
}

// ResolveMembership checks that the team accepts calls and that the user
// belongs to it, and returns the membership. A missing membership and a
// suspended or deleted team both come back as ErrForbidden, so callers
// cannot distinguish "no such team" from "not yours".
func (s *TeamService) ResolveMembership(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	team, err := s.teams.Get(ctx, teamID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrForbidden
		}
		return nil, fmt.Errorf("resolve team: %w", err)
	}
	if team.Status != domain.TeamStatusActive {
		return nil, domain.ErrForbidden
	}

	membership, err := s.memberships.Get(ctx, membershipKey(teamID, userID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrForbidden
		}
		return nil, fmt.Errorf("resolve membership: %w", err)
	}
	return membership, nil
}

// InvalidateMembership drops the cached membership after the tenancy service
// reports a role change or removal.
func (s *TeamService) InvalidateMembership(ctx context.Context, teamID, userID string) {
	if err := s.memberships.Invalidate(ctx, membershipKey(teamID, userID)); err != nil {
		log.Warn().Err(err).Str("teamID", teamID).Str("userID", userID).Msg("Failed to invalidate membership cache")
	}
}

// InvalidateTeam drops the cached team record after a status change.
func (s *TeamService) InvalidateTeam(ctx context.Context, teamID string) {
	if err := s.teams.Invalidate(ctx, teamID); err != nil {
		log.Warn().Err(err).Str("teamID", teamID).Msg("Failed to invalidate team cache")
	}
}

func membershipKey(teamID, userID string) string {
	return teamID + ":" + userID
}

func splitMembershipKey(key string) (teamID, userID string, ok bool) {
	teamID, userID, ok = strings.Cut(key, ":")
	return teamID, userID, ok && teamID != "" && userID != ""
}
