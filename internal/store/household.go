package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/invite"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type HouseholdStore struct {
	db   *sql.DB
	feed *changefeed.Hub
}

var _ service.HouseholdService = (*HouseholdStore)(nil)

func NewHouseholdStore(db *sql.DB, feed *changefeed.Hub) *HouseholdStore {
	return &HouseholdStore{db: db, feed: feed}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.HouseholdSummary, error) {
	var h model.HouseholdSummary
	err := scanner.Scan(&h.ID, &h.Name, &h.InviteCode)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const householdCols = `id, name, invite_code`

func (s *HouseholdStore) GetByID(ctx context.Context, id string) (*model.HouseholdSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) ListForUser(ctx context.Context, userID string) ([]model.HouseholdSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.invite_code
		 FROM households h
		 JOIN household_members hm ON h.id = hm.household_id
		 WHERE hm.user_id = ?
		 ORDER BY h.name COLLATE NOCASE ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	var households []model.HouseholdSummary
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}

func (s *HouseholdStore) ObserveHouseholds(userID string, h service.Handler[[]model.HouseholdSummary]) listener.Token {
	return observe(s.feed, EntityHouseholds, userID, h, func(ctx context.Context) ([]model.HouseholdSummary, error) {
		return s.ListForUser(ctx, userID)
	})
}

func (s *HouseholdStore) CreateHousehold(ctx context.Context, name, userID string) (model.HouseholdSummary, error) {
	h := model.HouseholdSummary{ID: uuid.NewString(), Name: name, InviteCode: invite.NewCode()}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO households (id, name, invite_code) VALUES (?, ?, ?)`,
		h.ID, h.Name, h.InviteCode,
	); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("insert household: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id) VALUES (?, ?)`,
		h.ID, userID,
	); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("add member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("commit household: %w", err)
	}

	s.feed.Publish(changefeed.NewChange(EntityHouseholds, "created", userID, h.ID))
	s.feed.Publish(changefeed.NewChange(EntityMembers, "created", h.ID, userID))
	return h, nil
}

func (s *HouseholdStore) RenameHousehold(ctx context.Context, householdID, name string) error {
	if err := s.updateHousehold(ctx, householdID, `name`, name); err != nil {
		return fmt.Errorf("rename household: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityHouseholds, "updated", "", householdID))
	return nil
}

func (s *HouseholdStore) RefreshInviteCode(ctx context.Context, householdID string) (string, error) {
	code := invite.NewCode()
	if err := s.updateHousehold(ctx, householdID, `invite_code`, code); err != nil {
		return "", fmt.Errorf("refresh invite code: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityHouseholds, "updated", "", householdID))
	return code, nil
}

func (s *HouseholdStore) updateHousehold(ctx context.Context, householdID, column, value string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE households SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), householdID,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("household", householdID)
	}
	return nil
}

// JoinHousehold adds userID to the household holding code. The lookup and the
// insert run as separate statements, so a code refreshed in between still
// admits the joiner.
func (s *HouseholdStore) JoinHousehold(ctx context.Context, code, userID string) (model.HouseholdSummary, error) {
	if code == "" {
		return model.HouseholdSummary{}, apperror.NotFound("household", "invite code "+code)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE invite_code = ?`, code)
	h, err := scanHousehold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HouseholdSummary{}, apperror.NotFound("household", "invite code "+code)
	}
	if err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("find household by code: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO household_members (household_id, user_id) VALUES (?, ?)`,
		h.ID, userID,
	); err != nil {
		return model.HouseholdSummary{}, fmt.Errorf("add member: %w", err)
	}

	s.feed.Publish(changefeed.NewChange(EntityHouseholds, "joined", userID, h.ID))
	s.feed.Publish(changefeed.NewChange(EntityMembers, "created", h.ID, userID))
	return *h, nil
}

func (s *HouseholdStore) LeaveHousehold(ctx context.Context, householdID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.feed.Publish(changefeed.NewChange(EntityHouseholds, "left", userID, householdID))
	s.feed.Publish(changefeed.NewChange(EntityMembers, "deleted", householdID, userID))
	return nil
}

// DeleteHousehold removes the household and every row scoped to it.
func (s *HouseholdStore) DeleteHousehold(ctx context.Context, householdID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"reward_redemptions", "rewards", "tasks", "chore_templates", "tags", "household_members"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE household_id = ?`, householdID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, householdID); err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete household: %w", err)
	}

	s.feed.Publish(changefeed.NewChange(EntityHouseholds, "deleted", "", householdID))
	for _, entity := range householdScoped {
		s.feed.Publish(changefeed.NewChange(entity, "deleted", householdID, ""))
	}
	return nil
}
