package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PositionInput is a position record as submitted by a client. Numeric
// fields stay raw so that a bad value can be reported against its field and
// row instead of failing the whole document decode. Both JSON numbers and
// numeric strings are accepted.
type PositionInput struct {
	Ticker    string          `json:"ticker"`
	Account   string          `json:"account"`
	Quantity  json.RawMessage `json:"quantity"`
	CostBasis json.RawMessage `json:"cost_basis"`
	Type      PositionType    `json:"type,omitempty"`
}

// ToPosition converts the input into a Position. Row is 1-based within a
// batch and 0 for a single record. Quantity is required; an absent cost
// basis is left at zero for the ledger to judge.
func (in PositionInput) ToPosition(row int) (Position, error) {
	qty, present, err := parseRawDecimal(in.Quantity)
	if err != nil {
		return Position{}, &ValidationError{Field: "quantity", Row: row, Message: err.Error()}
	}
	if !present {
		return Position{}, &ValidationError{Field: "quantity", Row: row, Message: "quantity is required"}
	}

	cost, _, err := parseRawDecimal(in.CostBasis)
	if err != nil {
		return Position{}, &ValidationError{Field: "cost_basis", Row: row, Message: err.Error()}
	}

	return Position{
		Ticker:    in.Ticker,
		Account:   in.Account,
		Quantity:  qty,
		CostBasis: cost,
		Type:      in.Type,
	}, nil
}

// PositionsFromInputs converts a batch, stopping at the first bad row.
func PositionsFromInputs(inputs []PositionInput) ([]Position, error) {
	out := make([]Position, 0, len(inputs))
	for i, in := range inputs {
		p, err := in.ToPosition(i + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parseRawDecimal reports present=false for an absent or null value.
func parseRawDecimal(raw json.RawMessage) (d decimal.Decimal, present bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, false, nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, true, fmt.Errorf("not a number: %s", raw)
		}
		if s == "" {
			return decimal.Zero, false, nil
		}
	} else {
		s = string(raw)
	}

	d, err = decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("not a number: %q", s)
	}
	return d, true, nil
}
