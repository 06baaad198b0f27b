package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of outcomes the ledger reports to its callers.
type ErrorKind string

const (
	KindShareNotFound           ErrorKind = "share_not_found"
	KindInvalidQuantity         ErrorKind = "invalid_quantity"
	KindPortfolioNotFound       ErrorKind = "portfolio_not_found"
	KindAssetNotFound           ErrorKind = "asset_not_found"
	KindAssetClosed             ErrorKind = "asset_closed"
	KindInsufficientLotQuantity ErrorKind = "insufficient_lot_quantity"
	KindInsufficientAssets      ErrorKind = "insufficient_assets"
	KindConflict                ErrorKind = "conflict"
	KindStorageFailure          ErrorKind = "storage_failure"
)

// AllErrorKinds lists every kind, in declaration order.
var AllErrorKinds = []ErrorKind{
	KindShareNotFound,
	KindInvalidQuantity,
	KindPortfolioNotFound,
	KindAssetNotFound,
	KindAssetClosed,
	KindInsufficientLotQuantity,
	KindInsufficientAssets,
	KindConflict,
	KindStorageFailure,
}

// LedgerError is the structured error returned by ledger operations.
// Slack is set for the insufficient_* kinds only.
type LedgerError struct {
	Kind  ErrorKind
	Slack *Decimal
	Err   error
}

func (e *LedgerError) Error() string {
	msg := string(e.Kind)
	if e.Slack != nil {
		msg = fmt.Sprintf("%s (slack %s)", msg, e.Slack)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is matches any LedgerError of the same kind, so the sentinels below work
// with errors.Is regardless of slack or wrapped cause.
func (e *LedgerError) Is(target error) bool {
	var t *LedgerError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrShareNotFound           = &LedgerError{Kind: KindShareNotFound}
	ErrInvalidQuantity         = &LedgerError{Kind: KindInvalidQuantity}
	ErrPortfolioNotFound       = &LedgerError{Kind: KindPortfolioNotFound}
	ErrAssetNotFound           = &LedgerError{Kind: KindAssetNotFound}
	ErrAssetClosed             = &LedgerError{Kind: KindAssetClosed}
	ErrInsufficientLotQuantity = &LedgerError{Kind: KindInsufficientLotQuantity}
	ErrInsufficientAssets      = &LedgerError{Kind: KindInsufficientAssets}
	ErrConflict                = &LedgerError{Kind: KindConflict}
	ErrStorageFailure          = &LedgerError{Kind: KindStorageFailure}
)

// ErrTxConflict is returned by stores when a transaction lost a
// serialization race and may succeed if run again.
var ErrTxConflict = errors.New("transaction conflict")

func NewInsufficientError(kind ErrorKind, slack Decimal) *LedgerError {
	return &LedgerError{Kind: kind, Slack: &slack}
}

func NewConflictError(cause error) *LedgerError {
	return &LedgerError{Kind: KindConflict, Err: cause}
}

func NewStorageError(cause error) *LedgerError {
	return &LedgerError{Kind: KindStorageFailure, Err: cause}
}

// KindOf returns the kind carried by err, or false if err is not a LedgerError.
func KindOf(err error) (ErrorKind, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}

// SlackOf returns the shortfall carried by an insufficient_* error.
func SlackOf(err error) (Decimal, bool) {
	var le *LedgerError
	if errors.As(err, &le) && le.Slack != nil {
		return *le.Slack, true
	}
	return Zero, false
}
