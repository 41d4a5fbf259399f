package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

// SessionTTL is how long a sign-in stays valid.
const SessionTTL = 30 * 24 * time.Hour

// AccountStore is a local authentication provider: accounts with bcrypt
// password hashes and opaque session tokens. One session is current per
// process.
type AccountStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu        sync.Mutex
	current   *model.Session
	token     string
	nextID    uint64
	listeners map[uint64]func(*model.Session)

	// Now is used for session expiry. Tests override it.
	Now func() time.Time
}

var _ service.AuthService = (*AccountStore)(nil)

func NewAccountStore(db *sql.DB, logger *slog.Logger) *AccountStore {
	return &AccountStore{
		db:        db,
		logger:    logger,
		listeners: make(map[uint64]func(*model.Session)),
		Now:       time.Now,
	}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Session, string, error) {
	var s model.Session
	var hash string
	err := scanner.Scan(&s.UserID, &s.Email, &s.DisplayName, &s.PhotoURL, &hash)
	if err != nil {
		return nil, "", err
	}
	return &s, hash, nil
}

const accountCols = `user_id, email, display_name, photo_url, password_hash`

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Restore resumes the most recent unexpired session, if any, and prunes
// expired ones.
func (s *AccountStore) Restore(ctx context.Context) error {
	now := s.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT s.token, a.user_id, a.email, a.display_name, a.photo_url
		 FROM sessions s
		 JOIN accounts a ON a.user_id = s.user_id
		 WHERE s.expires_at > ?
		 ORDER BY s.created_at DESC, s.expires_at DESC
		 LIMIT 1`,
		now,
	)
	var token string
	var sess model.Session
	err := row.Scan(&token, &sess.UserID, &sess.Email, &sess.DisplayName, &sess.PhotoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	s.logger.Info("session restored", "user_id", sess.UserID)
	s.setCurrent(&sess, token)
	return nil
}

func (s *AccountStore) AddStateListener(fn func(*model.Session)) listener.Token {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	cur := copySession(s.current)
	s.mu.Unlock()

	fn(cur)

	return listener.Func(func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	})
}

func copySession(sess *model.Session) *model.Session {
	if sess == nil {
		return nil
	}
	c := *sess
	return &c
}

func (s *AccountStore) setCurrent(sess *model.Session, token string) {
	s.mu.Lock()
	s.current = copySession(sess)
	s.token = token
	cur := copySession(s.current)
	fns := make([]func(*model.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(copySession(cur))
	}
}

func (s *AccountStore) getByEmail(ctx context.Context, email string) (*model.Session, string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE email = ?`, strings.TrimSpace(email))
	sess, hash, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get account: %w", err)
	}
	return sess, hash, nil
}

func (s *AccountStore) createSession(ctx context.Context, userID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	now := s.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		token, userID, now.Add(SessionTTL), now,
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return token, nil
}

func (s *AccountStore) SignIn(ctx context.Context, email, password string) error {
	sess, hash, err := s.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if sess == nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return apperror.Unauthorized("invalid email or password")
	}

	token, err := s.createSession(ctx, sess.UserID)
	if err != nil {
		return err
	}
	s.logger.Info("signed in", "user_id", sess.UserID)
	s.setCurrent(sess, token)
	return nil
}

func (s *AccountStore) SignUp(ctx context.Context, email, password, displayName string) error {
	email = strings.TrimSpace(email)
	existing, _, err := s.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperror.ValidationFailed("email", "email already in use")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	sess := model.Session{UserID: uuid.NewString(), Email: email, DisplayName: strings.TrimSpace(displayName)}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, email, display_name, password_hash) VALUES (?, ?, ?, ?)`,
		sess.UserID, sess.Email, sess.DisplayName, string(hash),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	token, err := s.createSession(ctx, sess.UserID)
	if err != nil {
		return err
	}
	s.logger.Info("account created", "user_id", sess.UserID)
	s.setCurrent(&sess, token)
	return nil
}

func (s *AccountStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token != "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	s.setCurrent(nil, "")
	return nil
}

func (s *AccountStore) UpdateDisplayName(ctx context.Context, name string) error {
	s.mu.Lock()
	cur := copySession(s.current)
	s.mu.Unlock()
	if cur == nil {
		return apperror.MissingScope("user")
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET display_name = ?, updated_at = ? WHERE user_id = ?`,
		name, s.Now().UTC(), cur.UserID,
	)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}

	s.mu.Lock()
	if s.current != nil && s.current.UserID == cur.UserID {
		s.current.DisplayName = name
	}
	s.mu.Unlock()
	return nil
}

// RefreshCurrentSession re-reads the signed-in account. A failed read keeps
// the last known session.
func (s *AccountStore) RefreshCurrentSession(ctx context.Context) *model.Session {
	s.mu.Lock()
	cur := copySession(s.current)
	s.mu.Unlock()
	if cur == nil {
		return nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE user_id = ?`, cur.UserID)
	fresh, _, err := scanAccount(row)
	if err != nil {
		s.logger.Warn("refresh session", "user_id", cur.UserID, "error", err)
		return cur
	}

	s.mu.Lock()
	if s.current != nil && s.current.UserID == fresh.UserID {
		s.current = copySession(fresh)
	}
	s.mu.Unlock()
	return copySession(fresh)
}
