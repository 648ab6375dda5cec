package hooks

import (
	"errors"
	"fmt"
)

// Kind classifies a callback failure.
type Kind uint8

const (
	// KindUser is a recoverable caller error; only the offending call aborts.
	KindUser Kind = iota + 1
	// KindInvariant is an engine defect; the enclosing operation aborts.
	KindInvariant
	// KindBoundary is a disagreement with the pool manager; the enclosing
	// operation aborts.
	KindBoundary
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindInvariant:
		return "invariant"
	case KindBoundary:
		return "boundary"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyInitialized  = errors.New("pool already initialized")
	ErrPoolNotInitialized  = errors.New("pool not initialized")
	ErrPoolNotActive       = errors.New("pool not active")
	ErrHookAddressMismatch = errors.New("pool key names a different hook")
	ErrInvalidPoolKey      = errors.New("invalid pool key")
	ErrInvalidLiquidity    = errors.New("invalid liquidity params")
	ErrBookFull            = errors.New("order book is full")

	ErrReentrantCall      = errors.New("re-entrant call while a swap is pending")
	ErrNoPendingSwap      = errors.New("no pending swap")
	ErrNoPendingLiquidity = errors.New("no pending liquidity modification")
	ErrSwapMismatch       = errors.New("swap params differ from beforeSwap")
	ErrDeltaMismatch      = errors.New("swap delta mismatch")
	ErrDeltaSign          = errors.New("hook delta inverts swap direction")
	ErrDeltaExceeded      = errors.New("hook delta exceeds specified amount")
	ErrBookMutated        = errors.New("book changed during liquidity modification")
	ErrPersistFailure     = errors.New("failed to persist book changes")
)

// Error carries the failure kind and the callback that raised it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func userErr(op string, err error) error      { return &Error{Kind: KindUser, Op: op, Err: err} }
func invariantErr(op string, err error) error { return &Error{Kind: KindInvariant, Op: op, Err: err} }
func boundaryErr(op string, err error) error  { return &Error{Kind: KindBoundary, Op: op, Err: err} }

// KindOf returns the kind of err, or 0 if err was not raised by a hook.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return 0
}

// IsFatal reports whether err must abort the enclosing operation.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindInvariant || k == KindBoundary
}
