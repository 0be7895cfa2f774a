package services

import (
	"context"
	"errors"
	"fmt"

	"inventory/internal/security"
	"inventory/internal/validator"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidTradeData = security.ErrInvalidTradeData

	ErrNotFound           = errors.New("not found")
	ErrCurrencyNotFound   = fmt.Errorf("currency %w", ErrNotFound)
	ErrItemNotFound       = fmt.Errorf("item %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrTargetUserNotFound = fmt.Errorf("target user %w", ErrNotFound)
	ErrTradeNotFound      = fmt.Errorf("trade %w", ErrNotFound)
	ErrNFTNotFound        = fmt.Errorf("nft %w", ErrNotFound)

	ErrAlreadyExists         = errors.New("already exists")
	ErrDuplicatePendingTrade = fmt.Errorf("pending trade between these users %w", ErrAlreadyExists)
	ErrAlreadyAwarded        = fmt.Errorf("purchase award %w", ErrAlreadyExists)

	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoBalance            = errors.New("no balance")
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	ErrNotTradeable     = errors.New("not tradeable")
	ErrInvalidUpgrade   = errors.New("invalid upgrade")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrNotOwnedByUser   = errors.New("not owned by user")
	ErrUserBlocked      = errors.New("user is blocked")
	ErrSameUser         = errors.New("source and target user are the same")
	ErrCurrencyInactive = errors.New("currency is inactive")
	ErrRateLimited      = security.ErrRateLimited
	ErrInUse            = errors.New("in use")

	ErrTradeNotPending      = errors.New("trade is not pending")
	ErrTradeExpired         = errors.New("trade expired")
	ErrQuantityLimitReached = errors.New("quantity limit reached")
	ErrNoUpgradeableItems   = errors.New("no upgradeable items")
)

var domainErrors = []error{
	ErrValidation, ErrInvalidAmount, ErrInvalidTradeData, ErrNotFound, ErrAlreadyExists,
	ErrInsufficientFunds, ErrNoBalance, ErrInsufficientQuantity, ErrNotTradeable,
	ErrInvalidUpgrade, ErrNotAuthorized, ErrNotOwnedByUser, ErrUserBlocked, ErrSameUser,
	ErrCurrencyInactive, ErrRateLimited, ErrInUse, ErrTradeNotPending, ErrTradeExpired,
	ErrQuantityLimitReached, ErrNoUpgradeableItems, validator.ErrInvalidPayload,
	context.Canceled, context.DeadlineExceeded,
}

// TransferError reports a currency transfer that was rolled back as a whole.
type TransferError struct {
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	return "transfer failed: " + e.Reason
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TradeExecutionError reports a trade whose legs were rolled back and which
// was moved to failed.
type TradeExecutionError struct {
	TradeID int64
	Reason  string
	Err     error
}

func (e *TradeExecutionError) Error() string {
	return fmt.Sprintf("trade %d failed: %s", e.TradeID, e.Reason)
}

func (e *TradeExecutionError) Unwrap() error {
	return e.Err
}

// StorageError wraps an unexpected store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func isDomainError(err error) bool {
	var transferErr *TransferError
	var tradeErr *TradeExecutionError
	var storageErr *StorageError
	if errors.As(err, &transferErr) || errors.As(err, &tradeErr) || errors.As(err, &storageErr) {
		return true
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapStorage passes domain errors through and wraps everything else in a
// StorageError.
func wrapStorage(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// reasonOf is the short failure reason recorded on failed trades.
func reasonOf(err error) string {
	var storageErr *StorageError
	if errors.As(err, &storageErr) || !isDomainError(err) {
		return "storage failure"
	}
	return err.Error()
}
