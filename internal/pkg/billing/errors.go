package billing

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrTenantNotFound marks a billing operation against an unknown tenant.
	ErrTenantNotFound = errors.New("billing: tenant not found")

	// ErrSubscriptionNotFound marks an operation that requires an existing
	// subscription record.
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")

	// ErrInvalidSignature marks a webhook whose checksum did not verify, or
	// whose body could not be parsed. The caller answers with a client error
	// and the event is not processed.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")

	// ErrFreePlanNotBillable marks a checkout attempt for the free base tier.
	ErrFreePlanNotBillable = errors.New("billing: the free tier cannot be purchased")

	// ErrAlreadyBilled marks a recurring charge that was skipped because the
	// ledger already holds an attempt for the same billing window.
	ErrAlreadyBilled = errors.New("billing: period already has a recurring charge attempt")
)

// InvalidStateError is a subscription transition attempted from the wrong
// state, e.g. suspending an already-suspended plan or reactivating a lapsed
// one. Surfaced to operators with a readable message.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("billing: cannot %s: %s", e.Op, e.Reason)
}

// ConfigError is a missing or incomplete gateway/billing configuration value.
// It fails fast at the call site instead of silently defaulting.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("billing: configuration value %s is not set", e.Key)
}

// ChargeDeclinedError is a gateway charge that reached a terminal non-approved
// status. It is not a transport failure: the gateway answered, the card did not.
type ChargeDeclinedError struct {
	Status string
	Reason string
}

func (e *ChargeDeclinedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("billing: charge ended with status %s", e.Status)
	}
	return fmt.Sprintf("billing: charge ended with status %s: %s", e.Status, e.Reason)
}

// LimitReachedError is returned by the limit guard when a tenant's plan quota
// for a resource is exhausted.
type LimitReachedError struct {
	Resource Resource
	Current  int64
	Limit    int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("billing: %s limit reached (%d of %d)", e.Resource, e.Current, e.Limit)
}

// mapNotFound converts the storage layer's record-not-found into the given
// billing sentinel, leaving other errors untouched.
func mapNotFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
