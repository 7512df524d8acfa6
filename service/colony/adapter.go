package colony

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/awrenn/colonyfeed/service/metrics"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// colonyABI covers the slice of the colony contract this service touches:
// the four tracked events plus the two view functions behind the
// funding-pot to recipient chain.
const colonyABI = `[
	{"anonymous":false,"inputs":[{"indexed":false,"name":"colonyNetwork","type":"address"},{"indexed":false,"name":"token","type":"address"}],"name":"ColonyInitialised","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":true,"name":"domainId","type":"uint256"},{"indexed":true,"name":"role","type":"uint8"},{"indexed":false,"name":"setTo","type":"bool"}],"name":"ColonyRoleSet","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"fundingPotId","type":"uint256"},{"indexed":false,"name":"token","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"PayoutClaimed","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"domainId","type":"uint256"}],"name":"DomainAdded","type":"event"},
	{"inputs":[{"name":"_id","type":"uint256"}],"name":"getFundingPot","outputs":[{"name":"associatedType","type":"uint8"},{"name":"associatedTypeId","type":"uint256"},{"name":"payoutsWeCannotMake","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_id","type":"uint256"}],"name":"getPayment","outputs":[{"name":"payment","type":"tuple","components":[{"name":"recipient","type":"address"},{"name":"finalized","type":"bool"},{"name":"fundingPotId","type":"uint256"},{"name":"domainId","type":"uint256"},{"name":"skills","type":"uint256[]"}]}],"stateMutability":"view","type":"function"}
]`

// ethRPC is the slice of the go-ethereum client the reader needs. It exists
// so tests can substitute a fake without dialing a node.
type ethRPC interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ethReader implements ChainReader against an Ethereum JSON-RPC endpoint.
// The single underlying connection is read-only and shared by every caller.
type ethReader struct {
	rpc     ethRPC
	colony  common.Address
	abi     abi.ABI
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEthReader dials an Ethereum RPC endpoint and returns a ChainReader
// scoped to the given colony contract address. The timeout applies to each
// individual remote call; metrics may be nil.
func NewEthReader(rpcURL, colonyAddress string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) (ChainReader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial eth rpc: %w", err)
	}
	return newEthReader(client, colonyAddress, timeout, m, logger)
}

func newEthReader(rpc ethRPC, colonyAddress string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) (*ethReader, error) {
	if !common.IsHexAddress(colonyAddress) {
		return nil, fmt.Errorf("invalid colony address %q", colonyAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(colonyABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse colony ABI: %w", err)
	}
	return &ethReader{
		rpc:     rpc,
		colony:  common.HexToAddress(colonyAddress),
		abi:     parsed,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}, nil
}

// FilterEvents fetches all logs of one category for the colony, from the
// genesis block to the head, and decodes each into a RawEvent. The filter
// carries only the event signature topic: every argument position is a
// match-anything wildcard.
func (r *ethReader) FilterEvents(ctx context.Context, category EventCategory) ([]RawEvent, error) {
	event, ok := r.abi.Events[category.String()]
	if !ok {
		return nil, fmt.Errorf("no ABI event for category %s", category)
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{r.colony},
		Topics:    [][]common.Hash{{event.ID}},
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	logs, err := r.rpc.FilterLogs(callCtx, query)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordRPCCall("FilterLogs", status, duration)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to filter logs",
			"category", category.String(),
			"error", err,
		)
		return nil, fmt.Errorf("filter %s logs: %w", category, err)
	}

	raws := make([]RawEvent, 0, len(logs))
	for _, lg := range logs {
		raw, err := r.decodeLog(category, lg)
		if err != nil {
			// A log we cannot decode still participates in the feed with
			// whatever fields it has; the normalizer fills the gaps with
			// empty representations.
			r.logger.WarnContext(ctx, "failed to decode log, keeping partial record",
				"category", category.String(),
				"block_hash", lg.BlockHash.Hex(),
				"error", err,
			)
		}
		raws = append(raws, raw)
	}

	r.logger.DebugContext(ctx, "fetched category logs",
		"category", category.String(),
		"count", len(raws),
	)
	return raws, nil
}

// decodeLog extracts the named field values for one log. Indexed arguments
// live in the topics, the rest in the data section. Decoding is best-effort:
// on error the RawEvent carries the fields decoded so far.
func (r *ethReader) decodeLog(category EventCategory, lg types.Log) (RawEvent, error) {
	raw := RawEvent{
		Category:  category,
		BlockHash: lg.BlockHash.Hex(),
		Fields:    map[string]string{},
	}

	switch category {
	case CategoryColonyInitialised:
		// Only the block reference matters for this category.
		return raw, nil

	case CategoryColonyRoleSet:
		// topics: [signature, user, domainId, role]
		if len(lg.Topics) < 4 {
			return raw, fmt.Errorf("ColonyRoleSet log has %d topics, want 4", len(lg.Topics))
		}
		raw.Fields["user"] = common.BytesToAddress(lg.Topics[1].Bytes()).Hex()
		raw.Fields["domainId"] = new(big.Int).SetBytes(lg.Topics[2].Bytes()).String()
		raw.Fields["role"] = new(big.Int).SetBytes(lg.Topics[3].Bytes()).String()
		return raw, nil

	case CategoryPayoutClaimed:
		// topics: [signature, fundingPotId]; data: token, amount
		if len(lg.Topics) < 2 {
			return raw, fmt.Errorf("PayoutClaimed log has %d topics, want 2", len(lg.Topics))
		}
		raw.Fields["fundingPotId"] = new(big.Int).SetBytes(lg.Topics[1].Bytes()).String()
		out, err := r.abi.Unpack("PayoutClaimed", lg.Data)
		if err != nil {
			return raw, fmt.Errorf("unpack PayoutClaimed data: %w", err)
		}
		if len(out) != 2 {
			return raw, fmt.Errorf("unpack PayoutClaimed data: got %d values, want 2", len(out))
		}
		token, ok := out[0].(common.Address)
		if !ok {
			return raw, fmt.Errorf("PayoutClaimed token has unexpected type %T", out[0])
		}
		amount, ok := out[1].(*big.Int)
		if !ok {
			return raw, fmt.Errorf("PayoutClaimed amount has unexpected type %T", out[1])
		}
		raw.Fields["token"] = token.Hex()
		raw.Fields["amount"] = amount.String()
		return raw, nil

	case CategoryDomainAdded:
		out, err := r.abi.Unpack("DomainAdded", lg.Data)
		if err != nil {
			return raw, fmt.Errorf("unpack DomainAdded data: %w", err)
		}
		if len(out) != 1 {
			return raw, fmt.Errorf("unpack DomainAdded data: got %d values, want 1", len(out))
		}
		domainID, ok := out[0].(*big.Int)
		if !ok {
			return raw, fmt.Errorf("DomainAdded domainId has unexpected type %T", out[0])
		}
		raw.Fields["domainId"] = domainID.String()
		return raw, nil

	default:
		return raw, fmt.Errorf("unhandled category %s", category)
	}
}

// BlockTimeMillis resolves a block hash to the block timestamp in
// milliseconds, the unit the original block-data provider reports.
func (r *ethReader) BlockTimeMillis(ctx context.Context, blockHash string) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	header, err := r.rpc.HeaderByHash(callCtx, common.HexToHash(blockHash))
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordRPCCall("HeaderByHash", status, duration)
	}
	if err != nil {
		return 0, fmt.Errorf("header for block %s: %w", blockHash, err)
	}
	return int64(header.Time) * 1000, nil
}

// FundingPot resolves a funding pot to its associated payment id via the
// getFundingPot view call.
func (r *ethReader) FundingPot(ctx context.Context, fundingPotID string) (string, error) {
	id, ok := new(big.Int).SetString(fundingPotID, 10)
	if !ok {
		return "", fmt.Errorf("invalid funding pot id %q", fundingPotID)
	}

	data, err := r.abi.Pack("getFundingPot", id)
	if err != nil {
		return "", fmt.Errorf("pack getFundingPot: %w", err)
	}

	res, err := r.call(ctx, "getFundingPot", data)
	if err != nil {
		return "", err
	}

	var out struct {
		AssociatedType      uint8
		AssociatedTypeId    *big.Int
		PayoutsWeCannotMake *big.Int
	}
	if err := r.abi.UnpackIntoInterface(&out, "getFundingPot", res); err != nil {
		return "", fmt.Errorf("unpack getFundingPot: %w", err)
	}
	if out.AssociatedTypeId == nil {
		return "", fmt.Errorf("funding pot %s has no associated payment", fundingPotID)
	}
	return out.AssociatedTypeId.String(), nil
}

// Payment resolves a payment id to the payment's recipient address via the
// getPayment view call.
func (r *ethReader) Payment(ctx context.Context, paymentID string) (string, error) {
	id, ok := new(big.Int).SetString(paymentID, 10)
	if !ok {
		return "", fmt.Errorf("invalid payment id %q", paymentID)
	}

	data, err := r.abi.Pack("getPayment", id)
	if err != nil {
		return "", fmt.Errorf("pack getPayment: %w", err)
	}

	res, err := r.call(ctx, "getPayment", data)
	if err != nil {
		return "", err
	}

	var out struct {
		Payment struct {
			Recipient    common.Address
			Finalized    bool
			FundingPotId *big.Int
			DomainId     *big.Int
			Skills       []*big.Int
		}
	}
	if err := r.abi.UnpackIntoInterface(&out, "getPayment", res); err != nil {
		return "", fmt.Errorf("unpack getPayment: %w", err)
	}
	return out.Payment.Recipient.Hex(), nil
}

// call executes a read-only contract call against the colony at the head
// block, with the reader's per-call timeout and metrics.
func (r *ethReader) call(ctx context.Context, method string, data []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg := ethereum.CallMsg{
		To:   &r.colony,
		Data: data,
	}

	start := time.Now()
	res, err := r.rpc.CallContract(callCtx, msg, nil)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordRPCCall(method, status, duration)
	}
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return res, nil
}
