package mode

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/model"
)

func payloadJSON(p model.EventPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	return string(body), nil
}

// DecodePayload parses an event body. A malformed payload is permanent: the
// event can never succeed, so it is surfaced as an invariant violation.
func DecodePayload(raw string) (model.EventPayload, decimal.Decimal, error) {
	var p model.EventPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, decimal.Zero, &InvariantError{Kind: messages.KindInvariantViolation}
	}
	if p.PaymentID == "" || p.SourceID == "" || p.DestinationID == "" {
		return p, decimal.Zero, &InvariantError{Kind: messages.KindInvariantViolation}
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil || !amount.IsPositive() {
		return p, decimal.Zero, &InvariantError{Kind: messages.KindInvariantViolation}
	}
	return p, amount, nil
}
