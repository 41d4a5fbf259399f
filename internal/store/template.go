package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type TemplateStore struct {
	db   *sql.DB
	feed *changefeed.Hub
}

var _ service.TemplateService = (*TemplateStore)(nil)

func NewTemplateStore(db *sql.DB, feed *changefeed.Hub) *TemplateStore {
	return &TemplateStore{db: db, feed: feed}
}

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.ChoreTemplate, error) {
	var t model.ChoreTemplate
	var tags string
	err := scanner.Scan(&t.ID, &t.Title, &t.Details, &tags, &t.Frequency, &t.BaseScore, &t.EstimatedMinutes)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode template tags: %w", err)
	}
	return &t, nil
}

const templateCols = `id, title, details, tags, frequency, base_score, estimated_minutes`

func encodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *TemplateStore) List(ctx context.Context, householdID string) ([]model.ChoreTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateCols+` FROM chore_templates WHERE household_id = ? ORDER BY title COLLATE NOCASE ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.ChoreTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) ObserveTemplates(householdID string, h service.Handler[[]model.ChoreTemplate]) listener.Token {
	return observe(s.feed, EntityTemplates, householdID, h, func(ctx context.Context) ([]model.ChoreTemplate, error) {
		return s.List(ctx, householdID)
	})
}

func (s *TemplateStore) CreateTemplate(ctx context.Context, householdID string, tmpl model.ChoreTemplate) (model.ChoreTemplate, error) {
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	tags, err := encodeStrings(tmpl.Tags)
	if err != nil {
		return model.ChoreTemplate{}, fmt.Errorf("encode template tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chore_templates (id, household_id, title, details, tags, frequency, base_score, estimated_minutes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.ID, householdID, tmpl.Title, tmpl.Details, tags, tmpl.Frequency, tmpl.BaseScore, tmpl.EstimatedMinutes,
	)
	if err != nil {
		return model.ChoreTemplate{}, fmt.Errorf("insert template: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityTemplates, "created", householdID, tmpl.ID))
	return tmpl, nil
}

func (s *TemplateStore) UpdateTemplate(ctx context.Context, householdID string, tmpl model.ChoreTemplate) error {
	tags, err := encodeStrings(tmpl.Tags)
	if err != nil {
		return fmt.Errorf("encode template tags: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE chore_templates
		 SET title = ?, details = ?, tags = ?, frequency = ?, base_score = ?, estimated_minutes = ?
		 WHERE id = ? AND household_id = ?`,
		tmpl.Title, tmpl.Details, tags, tmpl.Frequency, tmpl.BaseScore, tmpl.EstimatedMinutes, tmpl.ID, householdID,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("template", tmpl.ID)
	}
	s.feed.Publish(changefeed.NewChange(EntityTemplates, "updated", householdID, tmpl.ID))
	return nil
}

func (s *TemplateStore) DeleteTemplate(ctx context.Context, householdID, templateID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chore_templates WHERE id = ? AND household_id = ?`,
		templateID, householdID,
	)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityTemplates, "deleted", householdID, templateID))
	return nil
}
