package store

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"orderlyflow/internal/model"
)

const homesTable = "homes"

// InsertHome persists h, assigning ID and CreatedAt when missing.
func (s *Store) InsertHome(ctx context.Context, h *model.Home) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	query, args, err := s.sb.Insert(homesTable).
		Columns("id", "owner_id", "name", "address", "created_at").
		Values(h.ID, h.OwnerID, h.Name, h.Address, h.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return wrap("insertHome", homesTable, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return wrap("insertHome", homesTable, err)
	}
	return nil
}

// ListHomes returns the owner's homes ordered by name.
func (s *Store) ListHomes(ctx context.Context, ownerID string) ([]model.Home, error) {
	query, args, err := s.sb.Select("id", "owner_id", "name", "address", "created_at").
		From(homesTable).
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, wrap("listHomes", homesTable, err)
	}
	homes := make([]model.Home, 0)
	if err := s.db.SelectContext(ctx, &homes, query, args...); err != nil {
		return nil, wrap("listHomes", homesTable, err)
	}
	return homes, nil
}

// GetHome returns one home owned by ownerID.
func (s *Store) GetHome(ctx context.Context, ownerID, id string) (model.Home, error) {
	query, args, err := s.sb.Select("id", "owner_id", "name", "address", "created_at").
		From(homesTable).
		Where(squirrel.Eq{"id": id, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return model.Home{}, wrap("getHome", homesTable, err)
	}
	var h model.Home
	if err := s.db.GetContext(ctx, &h, query, args...); err != nil {
		return model.Home{}, wrap("getHome", homesTable, err)
	}
	return h, nil
}
