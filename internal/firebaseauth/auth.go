// Package firebaseauth is the authentication provider backed by Firebase
// Authentication. Password sign-in goes through the Identity Toolkit REST
// API; account management and token verification use the Admin SDK.
package firebaseauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"firebase.google.com/go/v4/auth"
	"github.com/go-resty/resty/v2"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

// DefaultEndpoint is the Identity Toolkit REST base URL.
const DefaultEndpoint = "https://identitytoolkit.googleapis.com/v1"

// Admin is the part of the Admin SDK client the provider uses. *auth.Client
// satisfies it.
type Admin interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

type apiError struct {
	Err struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("%d: %s", e.Err.Code, e.Err.Message)
}

// credentialFailures are Identity Toolkit messages meaning the email or
// password was wrong.
var credentialFailures = []string{"EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED"}

type Provider struct {
	admin    Admin
	http     *resty.Client
	apiKey   string
	endpoint string
	logger   *slog.Logger

	mu        sync.Mutex
	current   *model.Session
	nextID    uint64
	listeners map[uint64]func(*model.Session)
}

var _ service.AuthService = (*Provider)(nil)

func NewProvider(admin Admin, client *resty.Client, apiKey, endpoint string, logger *slog.Logger) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Provider{
		admin:     admin,
		http:      client,
		apiKey:    apiKey,
		endpoint:  strings.TrimRight(endpoint, "/"),
		logger:    logger,
		listeners: make(map[uint64]func(*model.Session)),
	}
}

func sessionFromRecord(u *auth.UserRecord) *model.Session {
	if u == nil || u.UserInfo == nil {
		return nil
	}
	return &model.Session{
		UserID:      u.UID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
	}
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (p *Provider) AddStateListener(fn func(*model.Session)) listener.Token {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	cur := copySession(p.current)
	p.mu.Unlock()

	fn(cur)

	return listener.Func(func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	})
}

func (p *Provider) setCurrent(s *model.Session) {
	p.mu.Lock()
	p.current = copySession(s)
	fns := make([]func(*model.Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(copySession(s))
	}
}

// passwordSignIn exchanges credentials for a verified user id.
func (p *Provider) passwordSignIn(ctx context.Context, email, password string) (string, error) {
	result := &signInResponse{}
	apiErr := &apiError{}
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(signInRequest{Email: email, Password: password, ReturnSecureToken: true}).
		SetResult(result).
		SetError(apiErr).
		Post(p.endpoint + "/accounts:signInWithPassword")
	if err != nil {
		return "", fmt.Errorf("sign in request: %w", err)
	}
	if resp.IsError() {
		for _, msg := range credentialFailures {
			if strings.HasPrefix(apiErr.Err.Message, msg) {
				return "", apperror.Unauthorized("invalid email or password")
			}
		}
		return "", fmt.Errorf("sign in: %w", apiErr)
	}

	token, err := p.admin.VerifyIDToken(ctx, result.IDToken)
	if err != nil {
		return "", fmt.Errorf("verify id token: %w", err)
	}
	return token.UID, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	uid, err := p.passwordSignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return err
	}
	u, err := p.admin.GetUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	p.logger.Info("signed in", "user_id", uid)
	p.setCurrent(sessionFromRecord(u))
	return nil
}

func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) error {
	params := (&auth.UserToCreate{}).Email(strings.TrimSpace(email)).Password(password)
	if name := strings.TrimSpace(displayName); name != "" {
		params = params.DisplayName(name)
	}
	u, err := p.admin.CreateUser(ctx, params)
	if auth.IsEmailAlreadyExists(err) {
		return apperror.ValidationFailed("email", "email already in use")
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	p.logger.Info("account created", "user_id", u.UID)
	p.setCurrent(sessionFromRecord(u))
	return nil
}

// SignOut forgets the local session. Refresh tokens are left to expire.
func (p *Provider) SignOut(context.Context) error {
	p.setCurrent(nil)
	return nil
}

func (p *Provider) UpdateDisplayName(ctx context.Context, name string) error {
	p.mu.Lock()
	cur := copySession(p.current)
	p.mu.Unlock()
	if cur == nil {
		return apperror.MissingScope("user")
	}

	if _, err := p.admin.UpdateUser(ctx, cur.UserID, (&auth.UserToUpdate{}).DisplayName(name)); err != nil {
		return fmt.Errorf("update display name: %w", err)
	}

	p.mu.Lock()
	if p.current != nil && p.current.UserID == cur.UserID {
		p.current.DisplayName = name
	}
	p.mu.Unlock()
	return nil
}

func (p *Provider) RefreshCurrentSession(ctx context.Context) *model.Session {
	p.mu.Lock()
	cur := copySession(p.current)
	p.mu.Unlock()
	if cur == nil {
		return nil
	}

	u, err := p.admin.GetUser(ctx, cur.UserID)
	if err != nil {
		p.logger.Warn("refresh session", "user_id", cur.UserID, "error", err)
		return cur
	}
	fresh := sessionFromRecord(u)
	if fresh == nil {
		p.logger.Warn("refresh session: user record has no info", "user_id", cur.UserID)
		return cur
	}

	p.mu.Lock()
	if p.current != nil && p.current.UserID == fresh.UserID {
		p.current = copySession(fresh)
	}
	p.mu.Unlock()
	return fresh
}
