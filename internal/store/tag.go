package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type TagStore struct {
	db   *sql.DB
	feed *changefeed.Hub
}

var _ service.TagService = (*TagStore)(nil)

func NewTagStore(db *sql.DB, feed *changefeed.Hub) *TagStore {
	return &TagStore{db: db, feed: feed}
}

func scanTag(scanner interface{ Scan(...any) error }) (*model.TagItem, error) {
	var t model.TagItem
	err := scanner.Scan(&t.ID, &t.Name, &t.ColorHex)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const tagCols = `id, name, color_hex`

func (s *TagStore) List(ctx context.Context, householdID string) ([]model.TagItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE household_id = ? ORDER BY name COLLATE NOCASE ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []model.TagItem
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, *t)
	}
	return tags, rows.Err()
}

func (s *TagStore) ObserveTags(householdID string, h service.Handler[[]model.TagItem]) listener.Token {
	return observe(s.feed, EntityTags, householdID, h, func(ctx context.Context) ([]model.TagItem, error) {
		return s.List(ctx, householdID)
	})
}

func (s *TagStore) CreateTag(ctx context.Context, householdID string, tag model.TagItem) (model.TagItem, error) {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, household_id, name, color_hex) VALUES (?, ?, ?, ?)`,
		tag.ID, householdID, tag.Name, tag.ColorHex,
	)
	if err != nil {
		return model.TagItem{}, fmt.Errorf("insert tag: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityTags, "created", householdID, tag.ID))
	return tag, nil
}

func (s *TagStore) UpdateTag(ctx context.Context, householdID string, tag model.TagItem) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tags SET name = ?, color_hex = ? WHERE id = ? AND household_id = ?`,
		tag.Name, tag.ColorHex, tag.ID, householdID,
	)
	if err != nil {
		return fmt.Errorf("update tag: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("tag", tag.ID)
	}
	s.feed.Publish(changefeed.NewChange(EntityTags, "updated", householdID, tag.ID))
	return nil
}

func (s *TagStore) DeleteTag(ctx context.Context, householdID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ? AND household_id = ?`, tagID, householdID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityTags, "deleted", householdID, tagID))
	return nil
}
