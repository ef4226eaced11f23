package ledger

import "errors"

// Error taxonomy shared by the ledger and the application programs running on
// it. Guards wrap these with fmt.Errorf("...: %w", err) so callers can match
// the category with errors.Is while keeping the full failure context.
var (
	// ErrUnauthorized is returned when the transaction sender is not the
	// identity an operation requires (seller, creator, owner).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState is returned when an operation is attempted outside its
	// valid source state, e.g. bidding on an auction that is not committed.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for malformed or out-of-range inputs,
	// e.g. a bidding window that ends before it starts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientFunds is returned when a payment, fee, or withdrawal
	// would leave an account short, including minimum-balance violations.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned for unknown accounts, assets, and applications.
	ErrNotFound = errors.New("not found")
)
