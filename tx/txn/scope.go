package txn

import (
	"github.com/pingcap/errors"

	"github.com/pingcap-incubator/tinylog/tx/config"
)

// Scope owns the chain of transactional contexts for one logical execution.
// Begin while a transaction is already open creates a nested context; its
// commit folds into the enclosing one. There is at most one current context
// per scope, and a scope must not be shared between goroutines. Concurrent
// transactions belong in separate scopes over the same log client.
type Scope struct {
	cfg   *config.Config
	coord *Coordinator
	stack []*Context
}

// NewScope creates a transaction scope backed by the given ordering service
// client.
func NewScope(cfg *config.Config, client LogClient) *Scope {
	return &Scope{
		cfg:   cfg,
		coord: NewCoordinator(client),
	}
}

// Coordinator exposes the scope's commit coordinator, mainly so callers can
// install append hooks.
func (s *Scope) Coordinator() *Coordinator {
	return s.coord
}

// Begin opens a transaction with the given strategy. If a transaction is
// already open the new context nests inside it.
func (s *Scope) Begin(strategy Strategy) (*Context, error) {
	c := newContext(s, strategy, s.Current())
	if strategy.SnapshotAtBegin() {
		if _, err := c.SnapshotTimestamp(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	s.stack = append(s.stack, c)
	return c, nil
}

// Current returns the innermost open context, nil outside any transaction.
func (s *Scope) Current() *Context {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// pop removes c from the chain once it resolves. Contexts resolve innermost
// first, but a stray out-of-order resolve only drops the matching handle.
func (s *Scope) pop(c *Context) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == c {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			return
		}
	}
}
