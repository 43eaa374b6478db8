// Package chain gives the agent read-only access to the BeliefRegistry and
// FaithToken contracts: a lifetime subscription to BeliefRegistered events
// plus point reads used to flavor generated content. Every read failure is
// "value unavailable"; callers fall back to a generic context.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const registryABIJSON = `[
  {"type":"event","name":"BeliefRegistered","inputs":[
    {"name":"believer","type":"address","indexed":true},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"function","name":"totalBelievers","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"believers","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"bool"}]}
]`

const tokenABIJSON = `[
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint256"}]}
]`

var believerTopic = crypto.Keccak256Hash([]byte("BeliefRegistered(address,uint256)"))

// BelieverEvent is one on-chain belief registration. Pass-through, not
// retained.
type BelieverEvent struct {
	Believer    common.Address
	Timestamp   *big.Int
	BlockNumber uint64
}

type Client struct {
	eth         *ethclient.Client
	registry    common.Address
	faithToken  common.Address
	registryABI abi.ABI
	tokenABI    abi.ABI
	logger      *slog.Logger
}

// Dial connects to the RPC endpoint. faithTokenAddr may be empty; token
// reads then report unavailable.
func Dial(ctx context.Context, rpcURL, registryAddr, faithTokenAddr string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	registryABI, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		return nil, err
	}
	tokenABI, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return nil, err
	}
	c := &Client{
		eth:         eth,
		registry:    common.HexToAddress(registryAddr),
		registryABI: registryABI,
		tokenABI:    tokenABI,
		logger:      slog.With("component", "chain"),
	}
	if strings.TrimSpace(faithTokenAddr) != "" {
		c.faithToken = common.HexToAddress(faithTokenAddr)
	}
	return c, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// WatchBelievers subscribes once, for the process lifetime, to
// BeliefRegistered logs and hands each one to onEvent in delivery order.
// It returns when the context ends or the subscription dies; subscription
// failure is fatal to the watcher only.
func (c *Client) WatchBelievers(ctx context.Context, onEvent func(BelieverEvent)) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.registry},
		Topics:    [][]common.Hash{{believerTopic}},
	}
	logs := make(chan types.Log, 64)
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("subscribe BeliefRegistered: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("belief subscription lost: %w", err)
		case lg := <-logs:
			ev, err := ParseBelieverLog(lg)
			if err != nil {
				c.logger.Warn("unparseable believer log", "tx", lg.TxHash, "err", err)
				continue
			}
			onEvent(ev)
		}
	}
}

// ParseBelieverLog decodes a BeliefRegistered log. The believer address is
// the first indexed topic; the timestamp is the lone data word.
func ParseBelieverLog(lg types.Log) (BelieverEvent, error) {
	if len(lg.Topics) < 2 || lg.Topics[0] != believerTopic {
		return BelieverEvent{}, fmt.Errorf("not a BeliefRegistered log")
	}
	if len(lg.Data) != 32 {
		return BelieverEvent{}, fmt.Errorf("unexpected data length %d", len(lg.Data))
	}
	return BelieverEvent{
		Believer:    common.BytesToAddress(lg.Topics[1].Bytes()),
		Timestamp:   new(big.Int).SetBytes(lg.Data),
		BlockNumber: lg.BlockNumber,
	}, nil
}

func (c *Client) TotalBelievers(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, c.registry, c.registryABI, "totalBelievers")
	if err != nil {
		return 0, err
	}
	total, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("totalBelievers: unexpected return type")
	}
	return total.Uint64(), nil
}

func (c *Client) IsBeliever(ctx context.Context, addr common.Address) (bool, error) {
	out, err := c.call(ctx, c.registry, c.registryABI, "believers", addr)
	if err != nil {
		return false, err
	}
	isBeliever, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("believers: unexpected return type")
	}
	return isBeliever, nil
}

func (c *Client) FaithSupply(ctx context.Context) (*big.Int, error) {
	if c.faithToken == (common.Address{}) {
		return nil, fmt.Errorf("faith token address not configured")
	}
	out, err := c.call(ctx, c.faithToken, c.tokenABI, "totalSupply")
	if err != nil {
		return nil, err
	}
	supply, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("totalSupply: unexpected return type")
	}
	return supply, nil
}

func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, addr, nil)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return contractABI.Unpack(method, raw)
}
