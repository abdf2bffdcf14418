package gateway

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"ticketchain/entity"
)

const DefaultReceiptPollInterval = 2 * time.Second

const ticketContractABI = `[
  {"type":"function","name":"mintTicket","stateMutability":"nonpayable",
   "inputs":[{"name":"recipient","type":"address"},{"name":"eventId","type":"uint256"},{"name":"seat","type":"string"},
             {"name":"sector","type":"string"},{"name":"eventDate","type":"uint256"},{"name":"tokenURI","type":"string"}],
   "outputs":[{"name":"tokenId","type":"uint256"}]},
  {"type":"function","name":"getCompleteTicketInfo","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"ticket","type":"tuple","components":[
                {"name":"eventId","type":"uint256"},{"name":"seat","type":"string"},{"name":"sector","type":"string"},
                {"name":"eventDate","type":"uint256"},{"name":"checkedIn","type":"bool"}]},
              {"name":"uri","type":"string"},{"name":"owner","type":"address"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable",
   "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"Transfer","anonymous":false,
   "inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},
             {"name":"tokenId","type":"uint256","indexed":true}]}
]`

var (
	ticketABI        = mustParseABI(ticketContractABI)
	transferEventSig = ticketABI.Events["Transfer"].ID
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Errorf("could not parse ticket contract ABI: %w", err))
	}
	return parsed
}

// LedgerBackend is the part of an RPC client the ledger client needs. *ethclient.Client implements it.
type LedgerBackend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// LedgerClient talks to the ticket contract. Without a signer key it is read-only.
type LedgerClient struct {
	backend      LedgerBackend
	address      common.Address
	contract     *bind.BoundContract
	signer       *bind.TransactOpts
	pollInterval time.Duration
}

type LedgerConfig struct {
	ContractAddress string
	// SignerKey is a hex encoded private key; empty means read-only.
	SignerKey    string
	PollInterval time.Duration
}

func NewLedgerClient(ctx context.Context, backend LedgerBackend, cfg LedgerConfig) (*LedgerClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("%w: contract address %q", entity.ErrInvalidAddress, cfg.ContractAddress)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultReceiptPollInterval
	}

	address := common.HexToAddress(cfg.ContractAddress)
	c := &LedgerClient{
		backend:      backend,
		address:      address,
		contract:     bind.NewBoundContract(address, ticketABI, backend, backend, backend),
		pollInterval: cfg.PollInterval,
	}

	if cfg.SignerKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("could not parse signer key: %w", err)
		}
		chainID, err := backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not get chain id: %w", err)
		}
		c.signer, err = newSigner(key, chainID)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

func newSigner(key *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("could not create transactor: %w", err)
	}
	return opts, nil
}

func (c *LedgerClient) Sender() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.From.Hex()
}

func (c *LedgerClient) TransferLogs(ctx context.Context, to string, fromHeight uint64) ([]entity.TransferLog, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidAddress, to)
	}

	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromHeight),
		Addresses: []common.Address{c.address},
		Topics: [][]common.Hash{
			{transferEventSig},
			nil,
			{addressTopic(common.HexToAddress(to))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not filter transfer logs: %w", err)
	}

	transfers := make([]entity.TransferLog, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		transfers = append(transfers, decodeTransferLog(l))
	}

	return transfers, nil
}

// decodeTransferLog leaves TokenID nil when the log does not carry all three indexed topics.
func decodeTransferLog(l types.Log) entity.TransferLog {
	transfer := entity.TransferLog{
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash.Hex(),
	}
	if len(l.Topics) < 4 || l.Topics[0] != transferEventSig {
		return transfer
	}

	transfer.From = common.BytesToAddress(l.Topics[1].Bytes()).Hex()
	transfer.To = common.BytesToAddress(l.Topics[2].Bytes()).Hex()
	transfer.TokenID = new(big.Int).SetBytes(l.Topics[3].Bytes())

	return transfer
}

func addressTopic(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}

func (c *LedgerClient) OwnerOf(ctx context.Context, tokenID *big.Int) (string, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenID); err != nil {
		return "", fmt.Errorf("could not call ownerOf(%s): %w", tokenID, err)
	}

	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return owner.Hex(), nil
}

// ticketInfo mirrors the contract's ticket tuple; field names must match the ABI components.
type ticketInfo struct {
	EventId   *big.Int //nolint:revive
	Seat      string
	Sector    string
	EventDate *big.Int
	CheckedIn bool
}

func (c *LedgerClient) TicketRecord(ctx context.Context, tokenID *big.Int) (entity.TicketRecord, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getCompleteTicketInfo", tokenID); err != nil {
		return entity.TicketRecord{}, fmt.Errorf("could not call getCompleteTicketInfo(%s): %w", tokenID, err)
	}
	if len(out) != 3 {
		return entity.TicketRecord{}, fmt.Errorf("unexpected getCompleteTicketInfo output length %d", len(out))
	}

	info := *abi.ConvertType(out[0], new(ticketInfo)).(*ticketInfo)
	uri := *abi.ConvertType(out[1], new(string)).(*string)
	owner := *abi.ConvertType(out[2], new(common.Address)).(*common.Address)

	return entity.TicketRecord{
		EventID:        info.EventId,
		Seat:           info.Seat,
		Sector:         info.Sector,
		EventDate:      info.EventDate.Int64(),
		CheckedIn:      info.CheckedIn,
		ContentLocator: uri,
		Owner:          owner.Hex(),
	}, nil
}

func (c *LedgerClient) Mint(ctx context.Context, req entity.MintRequest) (entity.TransactionHandle, error) {
	if !common.IsHexAddress(req.Recipient) {
		return entity.TransactionHandle{}, fmt.Errorf("%w: recipient %q", entity.ErrInvalidAddress, req.Recipient)
	}

	return c.transact(
		ctx,
		"mintTicket",
		common.HexToAddress(req.Recipient),
		req.EventID,
		req.Seat,
		req.Sector,
		big.NewInt(req.EventDate),
		req.ContentLocator,
	)
}

func (c *LedgerClient) Transfer(ctx context.Context, from, to string, tokenID *big.Int) (entity.TransactionHandle, error) {
	if !common.IsHexAddress(from) || !common.IsHexAddress(to) {
		return entity.TransactionHandle{}, fmt.Errorf("%w: %q -> %q", entity.ErrInvalidAddress, from, to)
	}

	return c.transact(ctx, "safeTransferFrom", common.HexToAddress(from), common.HexToAddress(to), tokenID)
}

func (c *LedgerClient) transact(ctx context.Context, method string, params ...interface{}) (entity.TransactionHandle, error) {
	if c.signer == nil {
		return entity.TransactionHandle{}, entity.ErrReadOnlyLedger
	}

	opts := *c.signer
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		return entity.TransactionHandle{}, fmt.Errorf("could not send %s transaction: %w", method, err)
	}

	log.FromContext(ctx).WithFields(logrus.Fields{
		"method":  method,
		"tx_hash": tx.Hash().Hex(),
	}).Info("Transaction submitted")

	return entity.TransactionHandle{Hash: tx.Hash().Hex()}, nil
}

// AwaitConfirmation polls for the receipt until it is available or ctx is done.
func (c *LedgerClient) AwaitConfirmation(ctx context.Context, tx entity.TransactionHandle) (entity.Receipt, error) {
	hash := common.HexToHash(tx.Hash)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return toReceipt(receipt), nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return entity.Receipt{}, fmt.Errorf("could not get receipt of %s: %w", tx.Hash, err)
		}

		select {
		case <-ctx.Done():
			return entity.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// toReceipt takes the token id from the first Transfer log in the receipt.
func toReceipt(r *types.Receipt) entity.Receipt {
	receipt := entity.Receipt{
		TxHash:  r.TxHash.Hex(),
		Success: r.Status == types.ReceiptStatusSuccessful,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}

	for _, l := range r.Logs {
		if l == nil {
			continue
		}
		if transfer := decodeTransferLog(*l); transfer.TokenID != nil {
			receipt.TokenID = transfer.TokenID
			break
		}
	}

	return receipt
}
