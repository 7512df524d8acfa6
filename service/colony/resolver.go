package colony

import (
	"context"
	"fmt"
	"log/slog"
)

// timestampResult carries one resolved block time or the failure that
// prevented resolving it.
type timestampResult struct {
	seconds int64
	err     error
}

// TimestampFuture is a deferred block timestamp. Resolution starts when the
// future is created and runs independently of the caller; Wait joins it.
type TimestampFuture struct {
	ch   chan timestampResult
	done bool
	res  timestampResult
}

// Wait blocks until the timestamp resolves or the context ends. It is safe
// to call more than once from a single goroutine; the first result is
// remembered.
func (f *TimestampFuture) Wait(ctx context.Context) (int64, error) {
	if f.done {
		return f.res.seconds, f.res.err
	}
	select {
	case res := <-f.ch:
		f.done = true
		f.res = res
		return res.seconds, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TimestampResolver resolves block references to unix timestamps. Each
// Resolve call is fire-and-forget: it returns immediately with a future and
// performs the network round trip in the background, so N records cost one
// round-trip time rather than N when joined as a set.
type TimestampResolver struct {
	reader ChainReader
	logger *slog.Logger
}

// NewTimestampResolver creates a resolver over the given reader.
func NewTimestampResolver(reader ChainReader, logger *slog.Logger) *TimestampResolver {
	return &TimestampResolver{reader: reader, logger: logger}
}

// Resolve starts resolving the timestamp for a block reference. An empty
// reference (malformed input) resolves immediately to 0, the epoch sentinel.
// The provider reports milliseconds; the future yields seconds.
func (r *TimestampResolver) Resolve(ctx context.Context, blockHash string) *TimestampFuture {
	f := &TimestampFuture{ch: make(chan timestampResult, 1)}

	if blockHash == "" {
		f.ch <- timestampResult{seconds: 0}
		return f
	}

	go func() {
		millis, err := r.reader.BlockTimeMillis(ctx, blockHash)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to resolve block time",
				"block_hash", blockHash,
				"error", err,
			)
			f.ch <- timestampResult{err: err}
			return
		}
		f.ch <- timestampResult{seconds: millis / 1000}
	}()

	return f
}

// AddressResolver resolves the recipient address behind a payout via the
// two chained contract-state lookups: funding pot to payment id, then
// payment id to recipient. A payout references a funding pot, not a
// recipient, so the two hops cannot be short-circuited.
type AddressResolver struct {
	reader ChainReader
	logger *slog.Logger
}

// NewAddressResolver creates a resolver over the given reader.
func NewAddressResolver(reader ChainReader, logger *slog.Logger) *AddressResolver {
	return &AddressResolver{reader: reader, logger: logger}
}

// Resolve returns the recipient address for a funding pot, or an error if
// either hop fails.
func (r *AddressResolver) Resolve(ctx context.Context, fundingPotID string) (string, error) {
	paymentID, err := r.reader.FundingPot(ctx, fundingPotID)
	if err != nil {
		return "", fmt.Errorf("resolve funding pot %s: %w", fundingPotID, err)
	}

	recipient, err := r.reader.Payment(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("resolve payment %s for pot %s: %w", paymentID, fundingPotID, err)
	}

	r.logger.DebugContext(ctx, "resolved payout recipient",
		"funding_pot_id", fundingPotID,
		"payment_id", paymentID,
		"recipient", recipient,
	)
	return recipient, nil
}
