package state

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/mainloop"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/observable"
	"github.com/dukerupert/chorely/internal/service"
)

func templateID(t model.ChoreTemplate) string { return t.ID }

// ChoreCatalogStore holds the household's chore templates.
type ChoreCatalogStore struct {
	svc  service.TemplateService
	list *scoped[model.ChoreTemplate]
	errs *observable.Value[error]
}

func NewChoreCatalogStore(svc service.TemplateService, dispatch mainloop.Dispatcher, logger *slog.Logger) *ChoreCatalogStore {
	errs := observable.NewValue[error](nil)
	return &ChoreCatalogStore{
		svc:  svc,
		errs: errs,
		list: newScoped(logger, dispatch, errs, svc.ObserveTemplates, func(items []model.ChoreTemplate) {
			slices.SortStableFunc(items, func(a, b model.ChoreTemplate) int {
				return strings.Compare(a.Title, b.Title)
			})
		}),
	}
}

func (s *ChoreCatalogStore) Bind(householdID string) { s.list.bind(householdID) }

func (s *ChoreCatalogStore) Templates() observable.Observable[Snapshot[model.ChoreTemplate]] {
	return s.list.state
}

func (s *ChoreCatalogStore) LastError() observable.Observable[error] { return s.errs }

// Template returns the template with id from the current catalog.
func (s *ChoreCatalogStore) Template(id string) (model.ChoreTemplate, bool) {
	return findID(s.list.items(), id, templateID)
}

func (s *ChoreCatalogStore) fail(err error) error {
	s.errs.Set(err)
	return err
}

func validateTemplate(t model.ChoreTemplate) (model.ChoreTemplate, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return t, apperror.ValidationFailed("title", "title is required")
	}
	if t.Frequency == "" {
		t.Frequency = model.FrequencyWeekly
	}
	if !t.Frequency.Valid() {
		return t, apperror.ValidationFailed("frequency", fmt.Sprintf("unknown frequency %q", t.Frequency))
	}
	if t.BaseScore < 0 {
		return t, apperror.ValidationFailed("base_score", "score cannot be negative")
	}
	if t.EstimatedMinutes < 0 {
		return t, apperror.ValidationFailed("estimated_minutes", "estimated minutes cannot be negative")
	}
	return t, nil
}

func (s *ChoreCatalogStore) Create(ctx context.Context, tmpl model.ChoreTemplate) (model.ChoreTemplate, error) {
	tmpl, err := validateTemplate(tmpl)
	if err != nil {
		return model.ChoreTemplate{}, s.fail(err)
	}
	hid := s.list.current()
	if hid == "" {
		return model.ChoreTemplate{}, s.fail(apperror.MissingScope("household"))
	}

	created, err := s.svc.CreateTemplate(ctx, hid, tmpl)
	if err != nil {
		return model.ChoreTemplate{}, s.fail(fmt.Errorf("create template: %w", err))
	}
	s.list.mutate(hid, func(items []model.ChoreTemplate) []model.ChoreTemplate {
		return upsert(items, created, templateID)
	})
	return created, nil
}

func (s *ChoreCatalogStore) Update(ctx context.Context, tmpl model.ChoreTemplate) error {
	tmpl, err := validateTemplate(tmpl)
	if err != nil {
		return s.fail(err)
	}
	hid := s.list.current()
	if hid == "" {
		return s.fail(apperror.MissingScope("household"))
	}
	if _, ok := s.Template(tmpl.ID); !ok {
		return s.fail(apperror.NotFound("template", tmpl.ID))
	}

	if err := s.svc.UpdateTemplate(ctx, hid, tmpl); err != nil {
		return s.fail(fmt.Errorf("update template: %w", err))
	}
	s.list.mutate(hid, func(items []model.ChoreTemplate) []model.ChoreTemplate {
		return upsert(items, tmpl, templateID)
	})
	return nil
}

func (s *ChoreCatalogStore) Delete(ctx context.Context, id string) error {
	hid := s.list.current()
	if hid == "" {
		return s.fail(apperror.MissingScope("household"))
	}

	if err := s.svc.DeleteTemplate(ctx, hid, id); err != nil {
		return s.fail(fmt.Errorf("delete template: %w", err))
	}
	s.list.mutate(hid, func(items []model.ChoreTemplate) []model.ChoreTemplate {
		return removeID(items, id, templateID)
	})
	return nil
}

func (s *ChoreCatalogStore) Close() { s.list.close() }
