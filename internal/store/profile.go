package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/changefeed"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type ProfileStore struct {
	db   *sql.DB
	feed *changefeed.Hub
}

var _ service.ProfileService = (*ProfileStore)(nil)

func NewProfileStore(db *sql.DB, feed *changefeed.Hub) *ProfileStore {
	return &ProfileStore{db: db, feed: feed}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.UserProfile, error) {
	var p model.UserProfile
	err := scanner.Scan(&p.ID, &p.Name, &p.Email, &p.AccentColor, &p.MemberID, &p.AvatarURL, &p.Points, &p.LifetimePoints)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const profileCols = `user_id, name, email, accent_color, member_id, avatar_url, points, lifetime_points`

func (s *ProfileStore) FetchProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SaveProfile writes every field of p, creating the row when needed.
func (s *ProfileStore) SaveProfile(ctx context.Context, p model.UserProfile) error {
	if p.ID == "" {
		return apperror.ValidationFailed("id", "profile has no user id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileCols+`, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   name = excluded.name,
		   email = excluded.email,
		   accent_color = excluded.accent_color,
		   member_id = excluded.member_id,
		   avatar_url = excluded.avatar_url,
		   points = excluded.points,
		   lifetime_points = excluded.lifetime_points,
		   updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Email, p.AccentColor, p.MemberID, p.AvatarURL, p.Points, p.LifetimePoints, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	s.publish(p.ID)
	return nil
}

// SetPoints replaces the point balance. An increase is also added to the
// lifetime total.
func (s *ProfileStore) SetPoints(ctx context.Context, userID string, points int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE profiles
		 SET lifetime_points = lifetime_points + MAX(0, ? - points), points = ?, updated_at = ?
		 WHERE user_id = ?`,
		points, points, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set points: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("profile", userID)
	}
	s.publish(userID)
	return nil
}

// publish notifies the profile's own observers and every member list, since
// the user may belong to several households.
func (s *ProfileStore) publish(userID string) {
	s.feed.Publish(changefeed.NewChange(EntityProfile, "updated", userID, userID))
	s.feed.Publish(changefeed.NewChange(EntityMembers, "updated", "", userID))
}

func (s *ProfileStore) ObserveProfile(userID string, h service.Handler[*model.UserProfile]) listener.Token {
	return observe(s.feed, EntityProfile, userID, h, func(ctx context.Context) (*model.UserProfile, error) {
		return s.FetchProfile(ctx, userID)
	})
}

// ListMembers returns the profiles of every member of householdID ordered by
// name. Members without a profile are omitted.
func (s *ProfileStore) ListMembers(ctx context.Context, householdID string) ([]model.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.user_id, p.name, p.email, p.accent_color, p.member_id, p.avatar_url, p.points, p.lifetime_points
		 FROM profiles p
		 JOIN household_members hm ON p.user_id = hm.user_id
		 WHERE hm.household_id = ?
		 ORDER BY p.name COLLATE NOCASE ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var profiles []model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *ProfileStore) ObserveMembers(householdID string, h service.Handler[[]model.UserProfile]) listener.Token {
	return observe(s.feed, EntityMembers, householdID, h, func(ctx context.Context) ([]model.UserProfile, error) {
		return s.ListMembers(ctx, householdID)
	})
}
