package gateway

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"ticketchain/entity"
)

// LedgerMock is an in-memory ledger. Failures can be injected per token id or per operation.
type LedgerMock struct {
	lock sync.Mutex

	SenderAddress string

	records   map[string]entity.TicketRecord
	logs      []entity.TransferLog
	pending   map[string]entity.Receipt
	nextID    int64
	nonce     uint64
	height    uint64
	Minted    []entity.MintRequest
	Transfers []MockTransfer

	LogsErr          error
	OwnerOfErrs      map[string]error
	TicketRecordErrs map[string]error
	MintErr          error
	TransferErr      error
	ConfirmErr       error
	// ConfirmDelay makes AwaitConfirmation block until it elapses or ctx is done.
	ConfirmDelay time.Duration
	// RejectNext makes the next confirmed transaction report a failed receipt.
	RejectNext bool
}

type MockTransfer struct {
	From    string
	To      string
	TokenID *big.Int
}

func (l *LedgerMock) init() {
	if l.records == nil {
		l.records = make(map[string]entity.TicketRecord)
	}
	if l.pending == nil {
		l.pending = make(map[string]entity.Receipt)
	}
	if l.nextID == 0 {
		l.nextID = 1
	}
}

// AddTicket stores a ticket owned by record.Owner and emits the matching Transfer log.
func (l *LedgerMock) AddTicket(tokenID *big.Int, record entity.TicketRecord) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.init()

	l.records[tokenID.String()] = record
	l.appendLog(common.Address{}.Hex(), record.Owner, tokenID)
	if next := tokenID.Int64() + 1; next > l.nextID {
		l.nextID = next
	}
}

// AddLog appends a raw Transfer log without touching ownership.
func (l *LedgerMock) AddLog(log entity.TransferLog) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.logs = append(l.logs, log)
}

// SetOwner moves a token without emitting a log addressed to the new owner's previous holders.
func (l *LedgerMock) SetOwner(tokenID *big.Int, owner string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.init()

	record := l.records[tokenID.String()]
	from := record.Owner
	record.Owner = owner
	l.records[tokenID.String()] = record
	l.appendLog(from, owner, tokenID)
}

func (l *LedgerMock) appendLog(from, to string, tokenID *big.Int) {
	l.height++
	l.logs = append(l.logs, entity.TransferLog{
		TokenID:     new(big.Int).Set(tokenID),
		From:        from,
		To:          to,
		BlockNumber: l.height,
	})
}

func (l *LedgerMock) Sender() string {
	return l.SenderAddress
}

func (l *LedgerMock) TransferLogs(_ context.Context, to string, fromHeight uint64) ([]entity.TransferLog, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.LogsErr != nil {
		return nil, l.LogsErr
	}

	var logs []entity.TransferLog
	for _, log := range l.logs {
		if strings.EqualFold(log.To, to) && log.BlockNumber >= fromHeight {
			logs = append(logs, log)
		}
	}

	return logs, nil
}

func (l *LedgerMock) OwnerOf(_ context.Context, tokenID *big.Int) (string, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.OwnerOfErrs[tokenID.String()]; err != nil {
		return "", err
	}

	record, ok := l.records[tokenID.String()]
	if !ok {
		return "", fmt.Errorf("%w: token %s does not exist", entity.ErrNotFound, tokenID)
	}

	return record.Owner, nil
}

func (l *LedgerMock) TicketRecord(_ context.Context, tokenID *big.Int) (entity.TicketRecord, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.TicketRecordErrs[tokenID.String()]; err != nil {
		return entity.TicketRecord{}, err
	}

	record, ok := l.records[tokenID.String()]
	if !ok {
		return entity.TicketRecord{}, fmt.Errorf("%w: token %s does not exist", entity.ErrNotFound, tokenID)
	}

	return record, nil
}

func (l *LedgerMock) Mint(_ context.Context, req entity.MintRequest) (entity.TransactionHandle, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.init()

	if l.MintErr != nil {
		return entity.TransactionHandle{}, l.MintErr
	}

	tokenID := big.NewInt(l.nextID)
	l.nextID++
	l.Minted = append(l.Minted, req)

	return l.submit(tokenID, func() {
		l.records[tokenID.String()] = entity.TicketRecord{
			EventID:        req.EventID,
			Seat:           req.Seat,
			Sector:         req.Sector,
			EventDate:      req.EventDate,
			ContentLocator: req.ContentLocator,
			Owner:          req.Recipient,
		}
		l.appendLog(common.Address{}.Hex(), req.Recipient, tokenID)
	}), nil
}

func (l *LedgerMock) Transfer(_ context.Context, from, to string, tokenID *big.Int) (entity.TransactionHandle, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.init()

	if l.TransferErr != nil {
		return entity.TransactionHandle{}, l.TransferErr
	}

	l.Transfers = append(l.Transfers, MockTransfer{From: from, To: to, TokenID: tokenID})

	return l.submit(tokenID, func() {
		record := l.records[tokenID.String()]
		record.Owner = to
		l.records[tokenID.String()] = record
		l.appendLog(from, to, tokenID)
	}), nil
}

// submit applies the state change immediately; the receipt is handed out by AwaitConfirmation.
func (l *LedgerMock) submit(tokenID *big.Int, apply func()) entity.TransactionHandle {
	l.nonce++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%d:%s", l.nonce, tokenID))).Hex()

	success := !l.RejectNext
	l.RejectNext = false
	if success {
		apply()
	}

	l.pending[hash] = entity.Receipt{
		TxHash:      hash,
		BlockNumber: l.height,
		Success:     success,
		TokenID:     new(big.Int).Set(tokenID),
	}

	return entity.TransactionHandle{Hash: hash}
}

func (l *LedgerMock) AwaitConfirmation(ctx context.Context, tx entity.TransactionHandle) (entity.Receipt, error) {
	l.lock.Lock()
	delay := l.ConfirmDelay
	confirmErr := l.ConfirmErr
	l.lock.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return entity.Receipt{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if confirmErr != nil {
		return entity.Receipt{}, confirmErr
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	receipt, ok := l.pending[tx.Hash]
	if !ok {
		return entity.Receipt{}, fmt.Errorf("%w: transaction %s", entity.ErrNotFound, tx.Hash)
	}

	return receipt, nil
}

func (l *LedgerMock) MintedRequests() []entity.MintRequest {
	l.lock.Lock()
	defer l.lock.Unlock()

	return append([]entity.MintRequest(nil), l.Minted...)
}
