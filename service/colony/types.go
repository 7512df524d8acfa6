package colony

import (
	"fmt"
	"time"
)

// EventCategory identifies one of the four on-chain event kinds the feed
// tracks. The set is closed: every mapping over categories (field presence,
// display text) is exhaustive, and an unrecognized value is an error, never
// a silently blank entry.
type EventCategory int

const (
	CategoryColonyInitialised EventCategory = iota
	CategoryColonyRoleSet
	CategoryPayoutClaimed
	CategoryDomainAdded
)

// Categories returns all recognized event categories in their fixed
// aggregation order. The final feed order is date-derived, but this order
// decides the tie-break for records in the same block.
func Categories() []EventCategory {
	return []EventCategory{
		CategoryColonyInitialised,
		CategoryColonyRoleSet,
		CategoryPayoutClaimed,
		CategoryDomainAdded,
	}
}

func (c EventCategory) String() string {
	switch c {
	case CategoryColonyInitialised:
		return "ColonyInitialised"
	case CategoryColonyRoleSet:
		return "ColonyRoleSet"
	case CategoryPayoutClaimed:
		return "PayoutClaimed"
	case CategoryDomainAdded:
		return "DomainAdded"
	default:
		return fmt.Sprintf("EventCategory(%d)", int(c))
	}
}

// CategoryFromString parses a category name as used on the wire and in CLI
// flags. Returns an error for anything outside the recognized set.
func CategoryFromString(s string) (EventCategory, error) {
	for _, c := range Categories() {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown event category %q", s)
}

// RawEvent is a single decoded ledger log: the category it was fetched
// under, the hash of the block that carried it, and the event's named fields
// as reported by the contract ABI. Numeric fields are decimal strings
// (ledger identifiers can exceed safe native integer range) and addresses
// are 0x-prefixed hex.
type RawEvent struct {
	Category  EventCategory
	BlockHash string
	Fields    map[string]string
}

// Event is the unit of the feed: one normalized on-chain event.
//
// Timestamp is zero and DisplayDate empty until timestamp resolution
// completes; payload fields are nil unless the category carries them (see
// the presence table in Normalize). Recipient is only ever populated for
// PayoutClaimed events, and only lazily by the per-row address resolver.
type Event struct {
	Category    EventCategory `json:"category"`
	BlockHash   string        `json:"block_hash,omitempty"`
	Timestamp   int64         `json:"timestamp"`
	DisplayDate string        `json:"display_date"`

	// TimestampUnknown marks a record whose block time lookup failed. The
	// record sorts to the oldest end of the feed and renders an unknown-date
	// marker instead of silently claiming the epoch.
	TimestampUnknown bool `json:"timestamp_unknown,omitempty"`

	Role         *string `json:"role,omitempty"`
	DomainID     *string `json:"domain_id,omitempty"`
	Amount       *string `json:"amount,omitempty"`
	Token        *string `json:"token,omitempty"`
	FundingPotID *string `json:"funding_pot_id,omitempty"`
	UserAddress  *string `json:"user_address,omitempty"`

	Recipient *string `json:"recipient,omitempty"`
}

// FormatDisplayDate renders a unix timestamp as the feed's short date,
// day-of-month plus abbreviated month in the local timezone.
func FormatDisplayDate(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).Format("2 Jan")
}

// PrimaryText renders the row text for an event. The switch is exhaustive
// over the category set; a value outside it indicates the normalizer and the
// category set are out of sync, which is a programming error.
func (e Event) PrimaryText() string {
	switch e.Category {
	case CategoryColonyInitialised:
		return "Congratulations! It's a beautiful baby colony!"
	case CategoryColonyRoleSet:
		return fmt.Sprintf("%s role assigned to user %s in domain %s.",
			strOrEmpty(e.Role), strOrEmpty(e.UserAddress), strOrEmpty(e.DomainID))
	case CategoryPayoutClaimed:
		user := strOrEmpty(e.Recipient)
		if user == "" {
			// Degraded display: the two-hop recipient lookup has not (or
			// could not) run, so the pot identifier stands in.
			user = strOrEmpty(e.FundingPotID)
		}
		return fmt.Sprintf("User %s claimed %s%s payout from pot %s.",
			user, strOrEmpty(e.Amount), strOrEmpty(e.Token), strOrEmpty(e.FundingPotID))
	case CategoryDomainAdded:
		return fmt.Sprintf("Domain %s added.", strOrEmpty(e.DomainID))
	default:
		panic(fmt.Sprintf("unhandled event category %d", int(e.Category)))
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
