package area

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/teamlinkhq/teamlink/internal/db"
)

// Service reads areas and memberships.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates an area service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "area")),
	}
}

// Get returns the area by id.
func (s *Service) Get(ctx context.Context, areaID string) (Area, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return Area{}, fmt.Errorf("invalid area id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, team_id, name, description, created_at FROM areas WHERE id = $1`,
		pgAreaID,
	)
	var (
		id, teamID pgtype.UUID
		name, desc string
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &teamID, &name, &desc, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Area{}, ErrNotFound
		}
		return Area{}, fmt.Errorf("get area: %w", err)
	}
	return Area{
		ID:          dbpkg.UUIDToString(id),
		TeamID:      dbpkg.UUIDToString(teamID),
		Name:        name,
		Description: desc,
		CreatedAt:   createdAt.Time,
	}, nil
}

// RoleOf returns the caller's role in the area, or ErrNotAMember.
func (s *Service) RoleOf(ctx context.Context, areaID, userID string) (Role, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return "", fmt.Errorf("invalid area id: %w", err)
	}
	pgUserID, err := dbpkg.ParseUUID(userID)
	if err != nil {
		return "", fmt.Errorf("invalid user id: %w", err)
	}
	var role string
	err = s.pool.QueryRow(ctx,
		`SELECT role FROM area_members WHERE area_id = $1 AND user_id = $2`,
		pgAreaID, pgUserID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotAMember
		}
		return "", fmt.Errorf("get membership: %w", err)
	}
	return Role(role), nil
}

// IsMember reports whether the user belongs to the area.
func (s *Service) IsMember(ctx context.Context, areaID, userID string) (bool, error) {
	_, err := s.RoleOf(ctx, areaID, userID)
	if err != nil {
		if errors.Is(err, ErrNotAMember) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
