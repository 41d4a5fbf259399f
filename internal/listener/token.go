// Package listener provides the cancellable handle returned by every
// subscription in the system: remote snapshot listeners, change-feed
// registrations and in-memory observers.
package listener

import "sync"

// Token detaches a subscription. Cancel is idempotent and safe to call after
// the owner of the subscription is gone.
type Token interface {
	Cancel()
}

type funcToken struct {
	once sync.Once
	fn   func()
}

// Func wraps fn in a Token that runs fn at most once.
func Func(fn func()) Token {
	return &funcToken{fn: fn}
}

func (t *funcToken) Cancel() {
	t.once.Do(func() {
		if t.fn != nil {
			t.fn()
		}
	})
}

type nopToken struct{}

func (nopToken) Cancel() {}

// Nop returns a Token that does nothing. Used when a scope needs no
// subscription, for example an empty household id.
func Nop() Token {
	return nopToken{}
}

// Bag collects tokens so they can be cancelled together on teardown.
type Bag struct {
	mu     sync.Mutex
	tokens []Token
}

// Add stores t in the bag. A nil token is ignored.
func (b *Bag) Add(t Token) {
	if t == nil {
		return
	}
	b.mu.Lock()
	b.tokens = append(b.tokens, t)
	b.mu.Unlock()
}

// CancelAll cancels every token in the bag and empties it.
func (b *Bag) CancelAll() {
	b.mu.Lock()
	tokens := b.tokens
	b.tokens = nil
	b.mu.Unlock()

	for _, t := range tokens {
		t.Cancel()
	}
}

// Len returns the number of tokens held.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens)
}
