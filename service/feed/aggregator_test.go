package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awrenn/colonyfeed/service/colony"
)

// stubReader is a canned-response ChainReader. Per-category delays let tests
// permute the order the concurrent fetches complete in.
type stubReader struct {
	events      map[colony.EventCategory][]colony.RawEvent
	errs        map[colony.EventCategory]error
	delays      map[colony.EventCategory]time.Duration
	blockMillis map[string]int64
	blockErrs   map[string]error
	pots        map[string]string
	payments    map[string]string
}

func (s *stubReader) FilterEvents(ctx context.Context, category colony.EventCategory) ([]colony.RawEvent, error) {
	if d := s.delays[category]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.errs[category]; err != nil {
		return nil, err
	}
	return s.events[category], nil
}

func (s *stubReader) BlockTimeMillis(ctx context.Context, blockHash string) (int64, error) {
	if err := s.blockErrs[blockHash]; err != nil {
		return 0, err
	}
	millis, ok := s.blockMillis[blockHash]
	if !ok {
		return 0, errors.New("unknown block")
	}
	return millis, nil
}

func (s *stubReader) FundingPot(ctx context.Context, fundingPotID string) (string, error) {
	paymentID, ok := s.pots[fundingPotID]
	if !ok {
		return "", errors.New("no such funding pot")
	}
	return paymentID, nil
}

func (s *stubReader) Payment(ctx context.Context, paymentID string) (string, error) {
	recipient, ok := s.payments[paymentID]
	if !ok {
		return "", errors.New("no such payment")
	}
	return recipient, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fullReader returns a reader with one event per category across three
// distinct block times.
func fullReader() *stubReader {
	return &stubReader{
		events: map[colony.EventCategory][]colony.RawEvent{
			colony.CategoryColonyInitialised: {
				{Category: colony.CategoryColonyInitialised, BlockHash: "0xa", Fields: map[string]string{}},
			},
			colony.CategoryColonyRoleSet: {
				{Category: colony.CategoryColonyRoleSet, BlockHash: "0xb", Fields: map[string]string{
					"user": "0x2222222222222222222222222222222222222222", "domainId": "1", "role": "5",
				}},
			},
			colony.CategoryPayoutClaimed: {
				{Category: colony.CategoryPayoutClaimed, BlockHash: "0xc", Fields: map[string]string{
					"fundingPotId": "42", "token": "0x6B175474E89094C44Da98b954EedeAC495271d0F", "amount": "2000000000000000000",
				}},
			},
			colony.CategoryDomainAdded: {
				{Category: colony.CategoryDomainAdded, BlockHash: "0xc", Fields: map[string]string{"domainId": "3"}},
			},
		},
		blockMillis: map[string]int64{
			"0xa": 1700000000000,
			"0xb": 1700000100000,
			"0xc": 1700000200000,
		},
	}
}

func newTestAggregator(reader colony.ChainReader) *Aggregator {
	return New(reader, colony.DefaultSymbols(), nil, testLogger())
}

func TestRefresh_SortsNewestFirst(t *testing.T) {
	a := newTestAggregator(fullReader())

	events, warnings, err := a.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, events, 4)

	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i-1].Timestamp, events[i].Timestamp,
			"feed must be ordered newest first")
	}
	assert.Equal(t, colony.CategoryColonyInitialised, events[3].Category)
}

func TestRefresh_StitchesDisplayDateFromBlockTime(t *testing.T) {
	reader := &stubReader{
		events: map[colony.EventCategory][]colony.RawEvent{
			colony.CategoryDomainAdded: {
				{Category: colony.CategoryDomainAdded, BlockHash: "0xc", Fields: map[string]string{"domainId": "3"}},
			},
		},
		blockMillis: map[string]int64{"0xc": 1700000000000},
	}
	a := newTestAggregator(reader)

	events, _, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, int64(1700000000), events[0].Timestamp)
	assert.NotEmpty(t, events[0].DisplayDate)
	assert.Equal(t, colony.FormatDisplayDate(1700000000), events[0].DisplayDate)
	assert.False(t, events[0].TimestampUnknown)
}

func TestRefresh_AllCategoriesContribute(t *testing.T) {
	a := newTestAggregator(fullReader())

	events, _, err := a.Refresh(context.Background())
	require.NoError(t, err)

	seen := map[colony.EventCategory]int{}
	for _, ev := range events {
		seen[ev.Category]++
	}
	for _, cat := range colony.Categories() {
		assert.Equal(t, 1, seen[cat], "category %s", cat)
	}
}

func TestRefresh_TieBreakFollowsCategoryOrder(t *testing.T) {
	// PayoutClaimed and DomainAdded share block 0xc, so the same timestamp.
	// The stable sort keeps the fixed concatenation order for the tie.
	a := newTestAggregator(fullReader())

	events, _, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, colony.CategoryPayoutClaimed, events[0].Category)
	assert.Equal(t, colony.CategoryDomainAdded, events[1].Category)
	assert.Equal(t, events[0].Timestamp, events[1].Timestamp)
}

func TestRefresh_OrderIndependentOfFetchCompletion(t *testing.T) {
	// Two runs with opposite per-category delays must produce the same feed:
	// the order sources complete in has no bearing on the result.
	fast := fullReader()
	fast.delays = map[colony.EventCategory]time.Duration{
		colony.CategoryColonyInitialised: 40 * time.Millisecond,
		colony.CategoryColonyRoleSet:     30 * time.Millisecond,
		colony.CategoryPayoutClaimed:     20 * time.Millisecond,
		colony.CategoryDomainAdded:       10 * time.Millisecond,
	}
	slow := fullReader()
	slow.delays = map[colony.EventCategory]time.Duration{
		colony.CategoryColonyInitialised: 10 * time.Millisecond,
		colony.CategoryColonyRoleSet:     20 * time.Millisecond,
		colony.CategoryPayoutClaimed:     30 * time.Millisecond,
		colony.CategoryDomainAdded:       40 * time.Millisecond,
	}

	first, _, err := newTestAggregator(fast).Refresh(context.Background())
	require.NoError(t, err)
	second, _, err := newTestAggregator(slow).Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRefresh_FailedCategoryIsIsolated(t *testing.T) {
	reader := fullReader()
	reader.errs = map[colony.EventCategory]error{
		colony.CategoryPayoutClaimed: assert.AnError,
	}
	a := newTestAggregator(reader)

	events, warnings, err := a.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Equal(t, colony.CategoryPayoutClaimed, warnings[0].Category)
	assert.NotEmpty(t, warnings[0].Message)

	require.Len(t, events, 3)
	for _, ev := range events {
		assert.NotEqual(t, colony.CategoryPayoutClaimed, ev.Category)
	}
}

func TestRefresh_UnknownCategoryAbortsCycle(t *testing.T) {
	reader := fullReader()
	reader.events[colony.CategoryDomainAdded] = []colony.RawEvent{
		{Category: colony.EventCategory(99), BlockHash: "0xc", Fields: map[string]string{}},
	}
	a := newTestAggregator(reader)

	_, _, err := a.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, colony.ErrUnknownCategory)
}

func TestRefresh_UnresolvedTimestampSortsOldest(t *testing.T) {
	reader := fullReader()
	reader.events[colony.CategoryDomainAdded] = []colony.RawEvent{
		{Category: colony.CategoryDomainAdded, BlockHash: "0xbad", Fields: map[string]string{"domainId": "3"}},
	}
	reader.blockErrs = map[string]error{"0xbad": assert.AnError}
	a := newTestAggregator(reader)

	events, warnings, err := a.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings, "a timestamp failure degrades the record, not the category")
	require.Len(t, events, 4)

	last := events[len(events)-1]
	assert.Equal(t, colony.CategoryDomainAdded, last.Category)
	assert.True(t, last.TimestampUnknown)
	assert.Equal(t, int64(0), last.Timestamp)
	assert.Empty(t, last.DisplayDate)
}

func TestRefresh_EmptyBlockHashKeepsRecord(t *testing.T) {
	reader := fullReader()
	reader.events[colony.CategoryDomainAdded] = []colony.RawEvent{
		{Category: colony.CategoryDomainAdded, BlockHash: "", Fields: map[string]string{"domainId": "3"}},
	}
	a := newTestAggregator(reader)

	events, _, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)

	last := events[len(events)-1]
	assert.Equal(t, colony.CategoryDomainAdded, last.Category)
	assert.Equal(t, int64(0), last.Timestamp)
	assert.False(t, last.TimestampUnknown)
}

func TestSnapshot_BeforeAndAfterRefresh(t *testing.T) {
	a := newTestAggregator(fullReader())

	snap := a.Snapshot()
	assert.Empty(t, snap.Events)
	assert.False(t, snap.Loading)

	_, _, err := a.Refresh(context.Background())
	require.NoError(t, err)

	snap = a.Snapshot()
	assert.Len(t, snap.Events, 4)
	assert.False(t, snap.Loading)
}

func TestSnapshot_ReturnsCopy(t *testing.T) {
	a := newTestAggregator(fullReader())
	_, _, err := a.Refresh(context.Background())
	require.NoError(t, err)

	snap := a.Snapshot()
	require.NotEmpty(t, snap.Events)
	snap.Events[0].DisplayDate = "mutated"

	assert.NotEqual(t, "mutated", a.Snapshot().Events[0].DisplayDate)
}

func TestCommit_DiscardsStaleGeneration(t *testing.T) {
	a := newTestAggregator(fullReader())

	stale := a.beginCycle()
	current := a.beginCycle()

	staleEvents := []colony.Event{{Category: colony.CategoryDomainAdded}}
	assert.False(t, a.commit(stale, staleEvents, nil))

	currentEvents := []colony.Event{{Category: colony.CategoryColonyInitialised}}
	assert.True(t, a.commit(current, currentEvents, nil))

	snap := a.Snapshot()
	require.Len(t, snap.Events, 1)
	assert.Equal(t, colony.CategoryColonyInitialised, snap.Events[0].Category)
}

func TestRefresh_FailureLeavesPreviousFeed(t *testing.T) {
	reader := fullReader()
	a := newTestAggregator(reader)

	_, _, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, a.Snapshot().Events, 4)

	reader.events[colony.CategoryDomainAdded] = []colony.RawEvent{
		{Category: colony.EventCategory(99), BlockHash: "0xc", Fields: map[string]string{}},
	}
	_, _, err = a.Refresh(context.Background())
	require.Error(t, err)

	snap := a.Snapshot()
	assert.Len(t, snap.Events, 4, "a failed cycle must not clobber the committed feed")
	assert.False(t, snap.Loading)
}

func TestResolveRecipient(t *testing.T) {
	reader := fullReader()
	reader.pots = map[string]string{"42": "7"}
	reader.payments = map[string]string{"7": "0x1111111111111111111111111111111111111111"}
	a := newTestAggregator(reader)

	recipient, err := a.ResolveRecipient(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", recipient)

	_, err = a.ResolveRecipient(context.Background(), "999")
	require.Error(t, err)
}
