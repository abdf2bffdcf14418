package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"ticketchain/config"
	dbLib "ticketchain/db"
	"ticketchain/gateway"
	ticketsHTTP "ticketchain/http"
	migrations "ticketchain/migration"
	"ticketchain/pubsub"
	"ticketchain/pubsub/bus"
	"ticketchain/pubsub/outbox"
	"ticketchain/reconciler"
	"ticketchain/resolver"
	"ticketchain/tracing"
	"ticketchain/workflow"
)

// Ledger is everything the service reads from and writes to the ticket contract.
type Ledger interface {
	reconciler.LedgerReader
	workflow.TransferLedger
}

type App struct {
	db              *sqlx.DB
	watermillRouter *message.Router
	httpServer      *ticketsHTTP.Server
	dataLake        dbLib.DataLake
	stepHistory     dbLib.WorkflowStepHistory
	traceProvider   *tracesdk.TracerProvider
}

func New(
	cfg config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	ledger Ledger,
	contentStore workflow.ContentPublisher,
	gatewayClient *http.Client,
	traceProvider *tracesdk.TracerProvider,
) App {
	var redisPublisher message.Publisher

	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))
	redisPublisher = pubsub.NewRedisPublisher(redisClient, watermillLogger)
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	eventBus, err := bus.NewEventBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create event bus: %w", err))
	}

	dataLake := dbLib.NewDataLake(db)
	runsRepo := dbLib.NewWorkflowRunsPostgresRepository(db)
	stepHistory := dbLib.NewWorkflowStepHistory(db)
	stepPublisher := pubsub.NewStepPublisher(eventBus)

	metadataResolver := resolver.NewResolver(gatewayClient, cfg.Gateways, cfg.GatewayTimeout)
	ticketsReconciler := reconciler.NewReconciler(ledger, metadataResolver, cfg.DeploymentHeight, cfg.ReconcileConcurrency)

	timeouts := workflow.Timeouts{
		Submit:       cfg.SubmitTimeout,
		Confirmation: cfg.ConfirmationTimeout,
	}
	issuance := workflow.NewIssuance(ledger, contentStore, gateway.TicketRenderer{}, timeouts, stepPublisher, runsRepo)
	transfer := workflow.NewTransfer(ledger, timeouts, stepPublisher, runsRepo)

	postgresSubscriber := outbox.NewPostgresSubscriber(db.DB, watermillLogger)
	eventProcessorConfig := pubsub.NewEventProcessorConfig(redisClient, watermillLogger)

	redisSubscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client: redisClient,
	}, watermillLogger)
	if err != nil {
		panic(fmt.Errorf("failed to create redis subscriber: %w", err))
	}

	watermillRouter, err := pubsub.NewWatermillRouter(
		postgresSubscriber,
		redisPublisher,
		redisSubscriber,
		eventProcessorConfig,
		stepHistory,
		dataLake,
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	httpServer := ticketsHTTP.NewServer(
		cfg.HTTPAddr,
		ticketsReconciler,
		issuance,
		transfer,
		runsRepo,
		stepHistory,
	)

	return App{
		db,
		watermillRouter,
		httpServer,
		dataLake,
		stepHistory,
		traceProvider,
	}
}

func (a App) Run(ctx context.Context) error {
	if err := dbLib.InitializeDatabaseSchema(a.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.traceProvider != nil {
		g.Go(func() error {
			<-ctx.Done()
			return a.traceProvider.Shutdown(context.Background())
		})
	}

	g.Go(func() error {
		err := migrations.RebuildStepHistory(ctx, a.dataLake, a.stepHistory)
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to rebuild workflow step history")
		}
		return nil
	})

	g.Go(func() error {
		return a.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		// the service is not healthy before the router is ready
		<-a.watermillRouter.Running()

		return a.httpServer.Run(ctx)
	})

	return g.Wait()
}

// NewGatewayClient is the HTTP client used for content gateways and the content store.
func NewGatewayClient() *http.Client {
	return &http.Client{Transport: tracing.NewTransport(http.DefaultTransport)}
}
