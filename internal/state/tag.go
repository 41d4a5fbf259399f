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

func tagID(t model.TagItem) string { return t.ID }

type TagStore struct {
	svc  service.TagService
	list *scoped[model.TagItem]
	errs *observable.Value[error]
}

func NewTagStore(svc service.TagService, dispatch mainloop.Dispatcher, logger *slog.Logger) *TagStore {
	errs := observable.NewValue[error](nil)
	return &TagStore{
		svc:  svc,
		errs: errs,
		list: newScoped(logger, dispatch, errs, svc.ObserveTags, func(items []model.TagItem) {
			slices.SortStableFunc(items, func(a, b model.TagItem) int {
				return strings.Compare(a.Name, b.Name)
			})
		}),
	}
}

func (s *TagStore) Bind(householdID string) { s.list.bind(householdID) }

func (s *TagStore) Tags() observable.Observable[Snapshot[model.TagItem]] { return s.list.state }

func (s *TagStore) LastError() observable.Observable[error] { return s.errs }

func (s *TagStore) fail(err error) error {
	s.errs.Set(err)
	return err
}

func (s *TagStore) scope() (string, error) {
	hid := s.list.current()
	if hid == "" {
		return "", apperror.MissingScope("household")
	}
	return hid, nil
}

func (s *TagStore) Create(ctx context.Context, name, colorHex string) (model.TagItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.TagItem{}, s.fail(apperror.ValidationFailed("name", "tag name is required"))
	}
	hid, err := s.scope()
	if err != nil {
		return model.TagItem{}, s.fail(err)
	}

	tag, err := s.svc.CreateTag(ctx, hid, model.TagItem{Name: name, ColorHex: colorHex})
	if err != nil {
		return model.TagItem{}, s.fail(fmt.Errorf("create tag: %w", err))
	}
	s.list.mutate(hid, func(items []model.TagItem) []model.TagItem {
		return upsert(items, tag, tagID)
	})
	return tag, nil
}

func (s *TagStore) Update(ctx context.Context, tag model.TagItem) error {
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Name == "" {
		return s.fail(apperror.ValidationFailed("name", "tag name is required"))
	}
	hid, err := s.scope()
	if err != nil {
		return s.fail(err)
	}
	if _, ok := findID(s.list.items(), tag.ID, tagID); !ok {
		return s.fail(apperror.NotFound("tag", tag.ID))
	}

	if err := s.svc.UpdateTag(ctx, hid, tag); err != nil {
		return s.fail(fmt.Errorf("update tag: %w", err))
	}
	s.list.mutate(hid, func(items []model.TagItem) []model.TagItem {
		return upsert(items, tag, tagID)
	})
	return nil
}

func (s *TagStore) Delete(ctx context.Context, id string) error {
	hid, err := s.scope()
	if err != nil {
		return s.fail(err)
	}

	if err := s.svc.DeleteTag(ctx, hid, id); err != nil {
		return s.fail(fmt.Errorf("delete tag: %w", err))
	}
	s.list.mutate(hid, func(items []model.TagItem) []model.TagItem {
		return removeID(items, id, tagID)
	})
	return nil
}

func (s *TagStore) Close() { s.list.close() }
