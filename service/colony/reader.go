package colony

import (
	"context"
)

// ChainReader is the ledger query capability the feed is built on. It covers
// the four operations the pipeline needs: category-scoped event retrieval,
// block time resolution, and the two contract-state reads behind the
// funding-pot to recipient chain.
//
// Implementations issue remote calls and must honor the passed context. The
// interface exists so the RPC layer can be mocked in tests without hitting a
// real node.
type ChainReader interface {
	// FilterEvents fetches every ledger log of the given category for the
	// colony, with match-anything wildcards for all filter parameters. A
	// failure is scoped to the one category.
	FilterEvents(ctx context.Context, category EventCategory) ([]RawEvent, error)

	// BlockTimeMillis resolves a block hash to the block's timestamp in
	// milliseconds since epoch, matching the block-data provider's unit.
	BlockTimeMillis(ctx context.Context, blockHash string) (int64, error)

	// FundingPot resolves a funding pot to its associated payment id.
	FundingPot(ctx context.Context, fundingPotID string) (paymentID string, err error)

	// Payment resolves a payment id to its recipient address.
	Payment(ctx context.Context, paymentID string) (recipient string, err error)
}
