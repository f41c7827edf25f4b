// Package messages is the single catalog of error and incident text.
// Components reference kinds, never literal strings.
package messages

type Kind string

const (
	KindInvalidPayment      Kind = "INVALID_PAYMENT"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindIdempotencyConflict Kind = "IDEMPOTENCY_CONFLICT"
	KindDependencyFailure   Kind = "DEPENDENCY_UNAVAILABLE"
	KindInvariantViolation  Kind = "INVARIANT_VIOLATION"

	KindLedgerImbalance   Kind = "LEDGER_IMBALANCE"
	KindNegativeBalance   Kind = "NEGATIVE_BALANCE"
	KindBalanceDrift      Kind = "BALANCE_DRIFT"
	KindStuckLease        Kind = "STUCK_LEASE"
	KindReservedUnderflow Kind = "RESERVED_UNDERFLOW"
)

var catalog = map[Kind]string{
	KindInvalidPayment:      "invalid payment request",
	KindInsufficientFunds:   "insufficient funds",
	KindIdempotencyConflict: "idempotency key reused with different payload",
	KindDependencyFailure:   "dependency unavailable",
	KindInvariantViolation:  "ledger invariant violated",

	KindLedgerImbalance:   "ledger entry deltas do not sum to zero",
	KindNegativeBalance:   "account balance below zero",
	KindBalanceDrift:      "stored balance differs from recomputed balance",
	KindStuckLease:        "outbox event stuck in processing past lease recovery",
	KindReservedUnderflow: "reserved funds below settlement amount",
}

func Text(k Kind) string {
	if s, ok := catalog[k]; ok {
		return s
	}
	return string(k)
}
