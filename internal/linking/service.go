package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/teamlinkhq/teamlink/internal/db"
)

const (
	uniqueViolation   = "23505"
	areaConstraint    = "area_group_bindings_area_id_key"
	groupConstraint   = "area_group_bindings_external_group_id_key"
	bindingColumnsSQL = "id, area_id, external_group_id, bound_by, bound_at"
)

// querier is the slice of pgxpool.Pool the service queries through.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DBService manages area-to-group bindings.
type DBService struct {
	pool   querier
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "linking")),
	}
}

// Bind links an area to an external group. Binding the same pair again
// succeeds and reports AlreadyLinked; binding either side to something
// else fails with the matching sentinel. Uniqueness is enforced by the
// database, so concurrent requests for the same pair cannot both insert.
func (s *DBService) Bind(ctx context.Context, areaID, groupID, linkCode, boundBy string) (LinkResult, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return LinkResult{}, fmt.Errorf("invalid area id: %w", err)
	}
	pgBoundBy, err := dbpkg.ParseUUID(boundBy)
	if err != nil {
		return LinkResult{}, fmt.Errorf("invalid user id: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO area_group_bindings (area_id, external_group_id, link_code, bound_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+bindingColumnsSQL,
		pgAreaID, groupID, linkCode, pgBoundBy,
	)
	binding, err := scanBinding(row)
	if err == nil {
		s.logger.Info("area linked",
			"area_id", areaID, "external_group_id", groupID)
		return LinkResult{Binding: binding}, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return LinkResult{}, fmt.Errorf("bind area: %w", err)
	}

	switch pgErr.ConstraintName {
	case areaConstraint:
		existing, lookupErr := s.ByArea(ctx, areaID)
		if lookupErr != nil {
			return LinkResult{}, fmt.Errorf("bind area: %w", lookupErr)
		}
		if existing.ExternalGroupID == groupID {
			return LinkResult{Binding: existing, AlreadyLinked: true}, nil
		}
		return LinkResult{}, ErrAreaAlreadyLinked
	case groupConstraint:
		// A same-pair retry violates both constraints and Postgres reports
		// whichever it checks first, so this branch re-checks too.
		existing, lookupErr := s.ByGroup(ctx, groupID)
		if lookupErr != nil {
			return LinkResult{}, fmt.Errorf("bind area: %w", lookupErr)
		}
		if existing.AreaID == dbpkg.UUIDToString(pgAreaID) {
			return LinkResult{Binding: existing, AlreadyLinked: true}, nil
		}
		return LinkResult{}, ErrGroupAlreadyLinked
	default:
		return LinkResult{}, fmt.Errorf("bind area: %w", err)
	}
}

// Unbind removes an area's binding. Unbinding an unlinked area returns
// ErrNotLinked.
func (s *DBService) Unbind(ctx context.Context, areaID string) error {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return fmt.Errorf("invalid area id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM area_group_bindings WHERE area_id = $1`, pgAreaID)
	if err != nil {
		return fmt.Errorf("unbind area: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotLinked
	}
	s.logger.Info("area unlinked", "area_id", areaID)
	return nil
}

// ByArea returns the binding for an area, or ErrNotLinked.
func (s *DBService) ByArea(ctx context.Context, areaID string) (Binding, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return Binding{}, fmt.Errorf("invalid area id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+bindingColumnsSQL+` FROM area_group_bindings WHERE area_id = $1`,
		pgAreaID,
	)
	return bindingOrNotLinked(row)
}

// ByGroup returns the binding for an external group, or ErrNotLinked.
func (s *DBService) ByGroup(ctx context.Context, groupID string) (Binding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bindingColumnsSQL+` FROM area_group_bindings WHERE external_group_id = $1`,
		groupID,
	)
	return bindingOrNotLinked(row)
}

func bindingOrNotLinked(row pgx.Row) (Binding, error) {
	binding, err := scanBinding(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Binding{}, ErrNotLinked
		}
		return Binding{}, fmt.Errorf("lookup binding: %w", err)
	}
	return binding, nil
}

func scanBinding(row pgx.Row) (Binding, error) {
	var (
		id, areaID, boundBy pgtype.UUID
		groupID             string
		boundAt             pgtype.Timestamptz
	)
	if err := row.Scan(&id, &areaID, &groupID, &boundBy, &boundAt); err != nil {
		return Binding{}, err
	}
	return Binding{
		ID:              dbpkg.UUIDToString(id),
		AreaID:          dbpkg.UUIDToString(areaID),
		ExternalGroupID: groupID,
		BoundBy:         dbpkg.UUIDToString(boundBy),
		BoundAt:         boundAt.Time,
	}, nil
}
