package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/domain"
	"github.com/lootview/wallet-portfolio/internal/logger"
)

// transferEventSignature is keccak256("Transfer(address,address,uint256)")
var transferEventSignature = crypto.Keccak256Hash([]byte(domain.TRANSFER_EVENT_SIGNATURE))

// TransferHistory is the chunked query result for one token: the ordered
// transfer events plus any block ranges that stayed unreadable after maximum
// chunk subdivision.
type TransferHistory struct {
	Events []domain.TransferEvent
	Gaps   []domain.BlockRange
}

// Client defines the interface for Ethereum chain queries to enable mocking
//
//go:generate mockgen -source=client.go -destination=../../mocks/ethereum_client.go -package=mocks -mock_names=Client=MockEthereumClient
type Client interface {
	// GetTokenTransferEvents fetches the ordered ERC721 transfer-event
	// sequence for a token. The query never starts at genesis: it uses the
	// configured start block when set, else a bounded lookback window behind
	// the current head.
	GetTokenTransferEvents(ctx context.Context, contractAddress, tokenNumber string) (*TransferHistory, error)

	// ERC721OwnerOf fetches the current owner of an ERC721 token
	ERC721OwnerOf(ctx context.Context, contractAddress, tokenNumber string) (string, error)

	// Close closes the connection
	Close()
}

type ethereumClient struct {
	cfg    config.EthereumConfig
	client adapter.EthClient
	clock  adapter.Clock
}

// NewClient creates a new Ethereum chain query client
func NewClient(cfg config.EthereumConfig, client adapter.EthClient, clock adapter.Clock) Client {
	return &ethereumClient{cfg: cfg, client: client, clock: clock}
}

// GetTokenTransferEvents fetches the ordered ERC721 transfer-event sequence
// for a token
func (c *ethereumClient) GetTokenTransferEvents(ctx context.Context, contractAddress, tokenNumber string) (*TransferHistory, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	tokenID, ok := new(big.Int).SetString(tokenNumber, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token number: %s", tokenNumber)
	}

	head, err := c.client.HeaderByNumber(timeoutCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	toBlock := head.Number.Uint64()

	fromBlock := c.cfg.StartBlock
	if fromBlock == 0 && toBlock > c.cfg.LookbackBlocks {
		fromBlock = toBlock - c.cfg.LookbackBlocks
	}

	contractAddr := common.HexToAddress(contractAddress)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{contractAddr},
		Topics: [][]common.Hash{
			{transferEventSignature},
			nil,                            // any from address
			nil,                            // any to address
			{common.BigToHash(tokenID)},    // specific token ID
		},
	}

	logs, gaps := c.chunkedFilterLogs(timeoutCtx, query, fromBlock, toBlock)

	history := &TransferHistory{Gaps: gaps}
	timestamps := make(map[uint64]*types.Header)
	unreadable := make(map[uint64]bool)

	for _, vLog := range logs {
		// ERC721 Transfer has 4 topics; ERC20 Transfer has 3
		if len(vLog.Topics) != 4 {
			continue
		}

		if unreadable[vLog.BlockNumber] {
			continue
		}

		header, ok := timestamps[vLog.BlockNumber]
		if !ok {
			header, err = c.client.HeaderByNumber(timeoutCtx, new(big.Int).SetUint64(vLog.BlockNumber))
			if err != nil {
				// A block whose timestamp cannot be read becomes a gap; the
				// events already fetched from other blocks still resolve
				logger.Warn("failed to get block header, recording gap",
					zap.Uint64("block", vLog.BlockNumber),
					zap.Error(err))
				unreadable[vLog.BlockNumber] = true
				history.Gaps = append(history.Gaps, domain.BlockRange{From: vLog.BlockNumber, To: vLog.BlockNumber})
				continue
			}
			timestamps[vLog.BlockNumber] = header
		}

		history.Events = append(history.Events, domain.TransferEvent{
			From:        common.BytesToAddress(vLog.Topics[1].Bytes()).Hex(),
			To:          common.BytesToAddress(vLog.Topics[2].Bytes()).Hex(),
			TokenNumber: tokenNumber,
			BlockNumber: vLog.BlockNumber,
			LogIndex:    vLog.Index,
			TxHash:      vLog.TxHash.Hex(),
			Timestamp:   c.clock.Unix(int64(header.Time), 0).UTC(),
		})
	}

	sort.SliceStable(history.Events, func(i, j int) bool {
		if history.Events[i].BlockNumber != history.Events[j].BlockNumber {
			return history.Events[i].BlockNumber < history.Events[j].BlockNumber
		}
		return history.Events[i].LogIndex < history.Events[j].LogIndex
	})

	return history, nil
}

// chunkedFilterLogs walks the block range in bounded chunks. A failing chunk
// is subdivided by halving the step size down to the configured minimum; a
// minimum-size chunk that still fails is recorded as a gap and skipped so the
// overall resolution can proceed with partial results.
func (c *ethereumClient) chunkedFilterLogs(ctx context.Context, query ethereum.FilterQuery, fromBlock, toBlock uint64) ([]types.Log, []domain.BlockRange) {
	var allLogs []types.Log
	var gaps []domain.BlockRange

	stepSize := c.cfg.ChunkSize
	current := fromBlock

	for current <= toBlock {
		end := current + stepSize - 1
		if end > toBlock {
			end = toBlock
		}

		chunkQuery := query
		chunkQuery.FromBlock = new(big.Int).SetUint64(current)
		chunkQuery.ToBlock = new(big.Int).SetUint64(end)

		logs, err := c.client.FilterLogs(ctx, chunkQuery)
		if err == nil {
			allLogs = append(allLogs, logs...)
			current = end + 1
			// Chunk succeeded; restore the full step size for the next chunk
			stepSize = c.cfg.ChunkSize
			continue
		}

		if ctx.Err() != nil {
			// Out of time: everything not yet queried is a gap
			gaps = append(gaps, domain.BlockRange{From: current, To: toBlock})
			break
		}

		if stepSize > c.cfg.MinChunkSize {
			stepSize = stepSize / 2
			if stepSize < c.cfg.MinChunkSize {
				stepSize = c.cfg.MinChunkSize
			}
			logger.Warn("chunked log query failed, reducing step size",
				zap.Uint64("from_block", current),
				zap.Uint64("to_block", end),
				zap.Uint64("new_step_size", stepSize),
				zap.Error(err))
			continue
		}

		// Minimum-size chunk still failing: record the gap and move on
		logger.Warn("chunked log query failed at minimum step size, recording gap",
			zap.Uint64("from_block", current),
			zap.Uint64("to_block", end),
			zap.Error(err))
		gaps = append(gaps, domain.BlockRange{From: current, To: end})
		current = end + 1
		stepSize = c.cfg.ChunkSize
	}

	return allLogs, gaps
}

// ERC721OwnerOf fetches the current owner of an ERC721 token
func (c *ethereumClient) ERC721OwnerOf(ctx context.Context, contractAddress, tokenNumber string) (string, error) {
	// ERC721 ownerOf function signature: ownerOf(uint256) returns (address)
	ownerOfABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	tokenID, ok := new(big.Int).SetString(tokenNumber, 10)
	if !ok {
		return "", fmt.Errorf("invalid token number: %s", tokenNumber)
	}

	data, err := ownerOfABI.Pack("ownerOf", tokenID)
	if err != nil {
		return "", fmt.Errorf("failed to pack data: %w", err)
	}

	contractAddr := common.HexToAddress(contractAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call contract: %w", err)
	}

	var owner common.Address
	if err := ownerOfABI.UnpackIntoInterface(&owner, "ownerOf", result); err != nil {
		return "", fmt.Errorf("failed to unpack result: %w", err)
	}

	return owner.Hex(), nil
}

// Close closes the connection
func (c *ethereumClient) Close() {
	c.client.Close()
}
