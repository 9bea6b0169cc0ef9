package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/models"
)

var parsedABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(readingsABI))
})

// Compile-time interface checks
var (
	_ ReadingStore = (*ContractStore)(nil)
	_ EventSource  = (*ContractStore)(nil)
	_ Provider     = (*EthProvider)(nil)
)

// ContractStore reads readings from the deployed contract over JSON-RPC.
type ContractStore struct {
	contract *bind.BoundContract
	from     common.Address
	timeout  time.Duration
}

func (s *ContractStore) callOpts(ctx context.Context) (*bind.CallOpts, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	return &bind.CallOpts{Context: ctx, From: s.from}, cancel
}

// Count returns getReadingCount().
func (s *ContractStore) Count(ctx context.Context) (uint64, error) {
	opts, cancel := s.callOpts(ctx)
	defer cancel()

	var out []interface{}
	if err := s.contract.Call(opts, &out, methodCount); err != nil {
		return 0, fmt.Errorf("call %s: %w", methodCount, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("call %s: expected 1 output, got %d", methodCount, len(out))
	}
	return uint64Of(out[0], "count")
}

// ReadingAt returns sensorReadings(index).
func (s *ContractStore) ReadingAt(ctx context.Context, index uint64) (models.RawReading, error) {
	opts, cancel := s.callOpts(ctx)
	defer cancel()

	var out []interface{}
	if err := s.contract.Call(opts, &out, methodReading, new(big.Int).SetUint64(index)); err != nil {
		return models.RawReading{}, fmt.Errorf("call %s(%d): %w", methodReading, index, err)
	}
	return rawFromOutputs(out)
}

// Owner returns owner(), used as a liveness probe during the handshake.
func (s *ContractStore) Owner(ctx context.Context) (common.Address, error) {
	opts, cancel := s.callOpts(ctx)
	defer cancel()

	var out []interface{}
	if err := s.contract.Call(opts, &out, methodOwner); err != nil {
		return common.Address{}, fmt.Errorf("call %s: %w", methodOwner, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("call %s: expected 1 output, got %d", methodOwner, len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("call %s: unexpected output type %T", methodOwner, out[0])
	}
	return owner, nil
}

// newReadingLog mirrors the NewReading event arguments.
type newReadingLog struct {
	Id           *big.Int
	SensorId     string
	Location     string
	ProcessStage string
	Timestamp    *big.Int
	Temperature  *big.Int
	Humidity     *big.Int
}

// WatchAppends subscribes to NewReading. The endpoint must support
// subscriptions (ws:// or ipc); plain HTTP endpoints fail immediately.
func (s *ContractStore) WatchAppends(ctx context.Context, events chan<- AppendEvent) error {
	logs, sub, err := s.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, eventAppend)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", eventAppend, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case lg := <-logs:
			ev, err := s.decodeAppend(lg)
			if err != nil {
				return err
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *ContractStore) decodeAppend(lg types.Log) (AppendEvent, error) {
	var ev newReadingLog
	if err := s.contract.UnpackLog(&ev, eventAppend, lg); err != nil {
		return AppendEvent{}, fmt.Errorf("unpack %s: %w", eventAppend, err)
	}
	raw, err := rawFromOutputs([]interface{}{ev.SensorId, ev.Location, ev.ProcessStage, ev.Timestamp, ev.Temperature, ev.Humidity})
	if err != nil {
		return AppendEvent{}, err
	}
	index, err := uint64Of(ev.Id, "id")
	if err != nil {
		return AppendEvent{}, err
	}
	return AppendEvent{Index: index, Reading: raw}, nil
}

// rawFromOutputs converts the unpacked sensorReadings tuple.
func rawFromOutputs(out []interface{}) (models.RawReading, error) {
	if len(out) != 6 {
		return models.RawReading{}, fmt.Errorf("reading: expected 6 fields, got %d", len(out))
	}

	var raw models.RawReading
	var ok bool
	if raw.SensorID, ok = out[0].(string); !ok {
		return models.RawReading{}, fmt.Errorf("reading: sensorId has type %T", out[0])
	}
	if raw.Location, ok = out[1].(string); !ok {
		return models.RawReading{}, fmt.Errorf("reading: location has type %T", out[1])
	}
	if raw.ProcessStage, ok = out[2].(string); !ok {
		return models.RawReading{}, fmt.Errorf("reading: processStage has type %T", out[2])
	}

	var err error
	if raw.Timestamp, err = uint64Of(out[3], "timestamp"); err != nil {
		return models.RawReading{}, err
	}
	if raw.Humidity, err = uint64Of(out[5], "humidity"); err != nil {
		return models.RawReading{}, err
	}

	temp, ok := out[4].(*big.Int)
	if !ok || temp == nil {
		return models.RawReading{}, fmt.Errorf("reading: temperature has type %T", out[4])
	}
	if !temp.IsInt64() {
		return models.RawReading{}, fmt.Errorf("reading: temperature %s overflows int64", temp)
	}
	raw.Temperature = temp.Int64()

	return raw, nil
}

func uint64Of(v interface{}, field string) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return 0, fmt.Errorf("reading: %s has type %T", field, v)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("reading: %s %s overflows uint64", field, n)
	}
	return n.Uint64(), nil
}

// EthConfig holds the endpoint and contract coordinates for EthProvider
type EthConfig struct {
	Endpoint        string
	ContractAddress string
	Account         string        // optional, skips account request when set
	CallTimeout     time.Duration // per contract call
}

// EthProvider grants ledger access through an Ethereum JSON-RPC endpoint.
type EthProvider struct {
	cfg      EthConfig
	contract common.Address
	logger   zerolog.Logger
}

// NewEthProvider validates cfg. An empty endpoint means no provider is
// available in this environment.
func NewEthProvider(cfg EthConfig, logger zerolog.Logger) (*EthProvider, error) {
	if cfg.Endpoint == "" {
		return nil, ErrProviderUnavailable
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	if cfg.Account != "" && !common.IsHexAddress(cfg.Account) {
		return nil, fmt.Errorf("invalid account address %q", cfg.Account)
	}
	return &EthProvider{
		cfg:      cfg,
		contract: common.HexToAddress(cfg.ContractAddress),
		logger:   logger,
	}, nil
}

// Authorize dials the endpoint, obtains the caller identity, binds the
// contract and probes owner().
func (p *EthProvider) Authorize(ctx context.Context) (*Session, error) {
	client, err := rpc.DialContext(ctx, p.cfg.Endpoint)
	if err != nil {
		return nil, &ConnectionError{Reason: "dial " + p.cfg.Endpoint, Err: err}
	}

	from, err := p.account(ctx, client)
	if err != nil {
		client.Close()
		return nil, &ConnectionError{Reason: "account authorization", Err: err}
	}

	parsed, err := parsedABI()
	if err != nil {
		client.Close()
		return nil, &ConnectionError{Reason: "parse contract abi", Err: err}
	}

	eth := ethclient.NewClient(client)
	store := &ContractStore{
		contract: bind.NewBoundContract(p.contract, parsed, eth, eth, eth),
		from:     from,
		timeout:  p.cfg.CallTimeout,
	}

	owner, err := store.Owner(ctx)
	if err != nil {
		eth.Close()
		return nil, &ConnectionError{Reason: "contract probe", Err: err}
	}

	p.logger.Info().
		Str("account", from.Hex()).
		Str("contract", p.contract.Hex()).
		Str("owner", owner.Hex()).
		Msg("Ledger contract bound")

	return NewSession(from.Hex(), store, eth.Close), nil
}

func (p *EthProvider) account(ctx context.Context, client *rpc.Client) (common.Address, error) {
	if p.cfg.Account != "" {
		return common.HexToAddress(p.cfg.Account), nil
	}

	var accounts []common.Address
	if err := client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil || len(accounts) == 0 {
		p.logger.Debug().Err(err).Msg("eth_requestAccounts unavailable, falling back to eth_accounts")
		if err := client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
			return common.Address{}, err
		}
	}
	if len(accounts) == 0 {
		return common.Address{}, errors.New("no accounts authorized")
	}
	return accounts[0], nil
}
