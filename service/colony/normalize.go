package colony

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrUnknownCategory reports a record whose category is outside the
// recognized set. This means the reader and the normalizer disagree about
// the category set and must surface loudly, not render blank.
var ErrUnknownCategory = errors.New("unknown event category")

// tokenDecimalScale is the fixed 18-decimal scale shared by the tokens the
// feed displays: 10^18.
var tokenDecimalScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// roleNames maps the on-chain role number to its display name. An
// unrecognized number passes through as its decimal string.
var roleNames = map[string]string{
	"0": "Recovery",
	"1": "Root",
	"2": "Arbitration",
	"3": "Architecture",
	"4": "ArchitectureSubdomain",
	"5": "Funding",
	"6": "Administration",
}

// Normalize converts a raw ledger record into an Event with the field set
// its category carries:
//
//	category          | role | domainId | amount/token | fundingPotId | userAddress
//	ColonyInitialised |  -   |    -     |      -       |      -       |     -
//	ColonyRoleSet     | yes  |   yes    |      -       |      -       |  embedded
//	PayoutClaimed     |  -   |    -     |     yes      |     yes      |  lazy, two-hop
//	DomainAdded       |  -   |   yes    |      -       |      -       |     -
//
// Normalize is pure and idempotent: the same raw record always yields the
// same Event, with Timestamp 0 and DisplayDate "" until resolution runs. A
// field missing from the raw record falls back to its empty representation
// rather than failing; only an unrecognized category is an error.
func Normalize(raw RawEvent, symbols SymbolTable) (Event, error) {
	ev := Event{
		Category:  raw.Category,
		BlockHash: raw.BlockHash,
	}

	switch raw.Category {
	case CategoryColonyInitialised:
		return ev, nil

	case CategoryColonyRoleSet:
		ev.Role = ptr(roleName(field(raw, "role")))
		ev.DomainID = ptr(field(raw, "domainId"))
		ev.UserAddress = ptr(field(raw, "user"))
		return ev, nil

	case CategoryPayoutClaimed:
		ev.Amount = ptr(formatAmount(field(raw, "amount")))
		ev.Token = ptr(symbols.Symbol(field(raw, "token")))
		ev.FundingPotID = ptr(field(raw, "fundingPotId"))
		return ev, nil

	case CategoryDomainAdded:
		ev.DomainID = ptr(field(raw, "domainId"))
		return ev, nil

	default:
		return Event{}, fmt.Errorf("%w: %d", ErrUnknownCategory, int(raw.Category))
	}
}

// formatAmount converts a raw 18-decimal token quantity into whole display
// units using integer division, floor toward zero. Anything that does not
// parse as a decimal integer renders empty.
func formatAmount(wei string) string {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return ""
	}
	return new(big.Int).Quo(n, tokenDecimalScale).String()
}

func roleName(role string) string {
	if name, ok := roleNames[role]; ok {
		return name
	}
	return role
}

// field reads a named field from a raw record, with the empty string
// standing in for a missing field (malformed records still participate in
// the feed).
func field(raw RawEvent, name string) string {
	if raw.Fields == nil {
		return ""
	}
	return raw.Fields[name]
}

func ptr(s string) *string {
	return &s
}
