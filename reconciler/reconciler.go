package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"ticketchain/entity"
	"ticketchain/metrics"
)

const DefaultConcurrency = 8

type LedgerReader interface {
	TransferLogs(ctx context.Context, to string, fromHeight uint64) ([]entity.TransferLog, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (string, error)
	TicketRecord(ctx context.Context, tokenID *big.Int) (entity.TicketRecord, error)
}

type MetadataResolver interface {
	ResolveOrPlaceholder(ctx context.Context, locator string, tokenID *big.Int) entity.MetadataDocument
}

// Reconciler derives the tickets an address currently holds from the ledger's
// transfer history plus live ownership reads.
type Reconciler struct {
	ledger      LedgerReader
	resolver    MetadataResolver
	fromHeight  uint64
	concurrency int
}

func NewReconciler(ledger LedgerReader, resolver MetadataResolver, fromHeight uint64, concurrency int) *Reconciler {
	if ledger == nil {
		panic("ledger is nil")
	}
	if resolver == nil {
		panic("resolver is nil")
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Reconciler{
		ledger:      ledger,
		resolver:    resolver,
		fromHeight:  fromHeight,
		concurrency: concurrency,
	}
}

// Reconcile returns the tickets owner holds right now, newest token first.
// Only a failed log query is returned as an error; candidates that cannot be
// read are dropped from the result.
func (r *Reconciler) Reconcile(ctx context.Context, owner string) ([]entity.Ticket, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidAddress, owner)
	}

	ctx, span := otel.Tracer("").Start(ctx, "reconciler.Reconcile")
	span.SetAttributes(attribute.String("owner", owner))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	logs, err := r.ledger.TransferLogs(ctx, owner, r.fromHeight)
	if err != nil {
		return nil, fmt.Errorf("%w: could not query transfer logs: %w", entity.ErrLedgerRead, err)
	}

	candidates := candidateIDs(logs)
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	results := make([]*entity.Ticket, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, tokenID := range candidates {
		i, tokenID := i, tokenID
		g.Go(func() error {
			ticket, reason, err := r.assemble(gctx, owner, tokenID)
			if err != nil {
				metrics.ReconcileCandidatesDropped.WithLabelValues(reason).Inc()
				log.FromContext(ctx).WithFields(logrus.Fields{
					"token_id": tokenID.String(),
					"reason":   reason,
				}).WithError(err).Warn("Dropping reconciliation candidate")
				return nil
			}
			results[i] = ticket
			return nil
		})
	}

	// candidate errors are absorbed above, so Wait only acts as a barrier
	_ = g.Wait()

	tickets := lo.FilterMap(results, func(t *entity.Ticket, _ int) (entity.Ticket, bool) {
		if t == nil {
			return entity.Ticket{}, false
		}
		return *t, true
	})

	sort.Slice(tickets, func(a, b int) bool {
		return tickets[a].TokenID.Cmp(tickets[b].TokenID) > 0
	})

	return tickets, nil
}

const (
	dropTransferredAway = "transferred_away"
	dropOwnerRead       = "owner_read_failed"
	dropRecordRead      = "record_read_failed"
)

// errTransferredAway marks a candidate whose current owner is someone else.
var errTransferredAway = errors.New("token is currently owned by another address")

func (r *Reconciler) assemble(ctx context.Context, owner string, tokenID *big.Int) (*entity.Ticket, string, error) {
	ctx, span := otel.Tracer("").Start(ctx, "reconciler.assemble")
	span.SetAttributes(attribute.String("token_id", tokenID.String()))
	defer span.End()

	currentOwner, err := r.ledger.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, dropOwnerRead, err
	}
	if !strings.EqualFold(currentOwner, owner) {
		return nil, dropTransferredAway, fmt.Errorf("%w: %s", errTransferredAway, currentOwner)
	}

	record, err := r.ledger.TicketRecord(ctx, tokenID)
	if err != nil {
		return nil, dropRecordRead, err
	}

	doc := r.resolver.ResolveOrPlaceholder(ctx, record.ContentLocator, tokenID)

	return &entity.Ticket{
		TokenID:        new(big.Int).Set(tokenID),
		Owner:          currentOwner,
		ContentLocator: record.ContentLocator,
		EventID:        record.EventID,
		Seat:           record.Seat,
		Sector:         record.Sector,
		EventDate:      record.EventDate,
		CheckedIn:      record.CheckedIn,
		Metadata:       &doc,
	}, "", nil
}

// candidateIDs drops logs without a token id and keeps the first occurrence of every id.
func candidateIDs(logs []entity.TransferLog) []*big.Int {
	withID := lo.Filter(logs, func(l entity.TransferLog, _ int) bool {
		return l.TokenID != nil
	})

	unique := lo.UniqBy(withID, func(l entity.TransferLog) string {
		return l.TokenID.String()
	})

	return lo.Map(unique, func(l entity.TransferLog, _ int) *big.Int {
		return l.TokenID
	})
}
