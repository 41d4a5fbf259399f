package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/listener"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/service"
)

type account struct {
	session  model.Session
	password string
}

// Auth is an in-memory authentication provider. Passwords are compared in
// plain text; it is only used for tests and demo mode.
type Auth struct {
	mu        sync.Mutex
	accounts  map[string]*account
	current   *model.Session
	nextID    uint64
	listeners map[uint64]func(*model.Session)
	failures  map[string]error
}

var _ service.AuthService = (*Auth)(nil)

func NewAuth() *Auth {
	return &Auth{
		accounts:  make(map[string]*account),
		listeners: make(map[uint64]func(*model.Session)),
		failures:  make(map[string]error),
	}
}

// FailNext makes the next call to op return err.
func (a *Auth) FailNext(op string, err error) {
	a.mu.Lock()
	a.failures[op] = err
	a.mu.Unlock()
}

func (a *Auth) takeFailure(op string) error {
	err, ok := a.failures[op]
	if !ok {
		return nil
	}
	delete(a.failures, op)
	return err
}

func (a *Auth) AddStateListener(fn func(*model.Session)) listener.Token {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	cur := copySession(a.current)
	a.mu.Unlock()

	fn(cur)

	return listener.Func(func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	})
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SetSession replaces the current session and notifies listeners. Passing
// nil signs out.
func (a *Auth) SetSession(s *model.Session) {
	a.mu.Lock()
	a.current = copySession(s)
	a.mu.Unlock()
	a.notify()
}

func (a *Auth) notify() {
	a.mu.Lock()
	cur := copySession(a.current)
	fns := make([]func(*model.Session), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(copySession(cur))
	}
}

func (a *Auth) SignIn(_ context.Context, email, password string) error {
	a.mu.Lock()
	if err := a.takeFailure("SignIn"); err != nil {
		a.mu.Unlock()
		return err
	}
	acct, ok := a.accounts[strings.ToLower(email)]
	if !ok || acct.password != password {
		a.mu.Unlock()
		return apperror.Unauthorized("invalid email or password")
	}
	s := acct.session
	a.current = &s
	a.mu.Unlock()

	a.notify()
	return nil
}

func (a *Auth) SignUp(_ context.Context, email, password, displayName string) error {
	a.mu.Lock()
	if err := a.takeFailure("SignUp"); err != nil {
		a.mu.Unlock()
		return err
	}
	key := strings.ToLower(email)
	if _, ok := a.accounts[key]; ok {
		a.mu.Unlock()
		return apperror.ValidationFailed("email", "email already in use")
	}
	s := model.Session{UserID: uuid.NewString(), DisplayName: displayName, Email: email}
	a.accounts[key] = &account{session: s, password: password}
	a.current = &s
	a.mu.Unlock()

	a.notify()
	return nil
}

func (a *Auth) SignOut(context.Context) error {
	a.mu.Lock()
	if err := a.takeFailure("SignOut"); err != nil {
		a.mu.Unlock()
		return err
	}
	a.current = nil
	a.mu.Unlock()

	a.notify()
	return nil
}

func (a *Auth) UpdateDisplayName(_ context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.takeFailure("UpdateDisplayName"); err != nil {
		return err
	}
	if a.current == nil {
		return apperror.MissingScope("user")
	}
	a.current.DisplayName = name
	if acct, ok := a.accounts[strings.ToLower(a.current.Email)]; ok {
		acct.session.DisplayName = name
	}
	return nil
}

func (a *Auth) RefreshCurrentSession(context.Context) *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copySession(a.current)
}
