package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jessevdk/go-flags"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"ticketchain/app"
	"ticketchain/config"
	"ticketchain/gateway"
	"ticketchain/pubsub"
	"ticketchain/tracing"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Stdout.WriteString(flagsErr.Message + "\n")
			return
		}
		logrus.WithError(err).Fatal("could not load config")
	}

	log.Init(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	traceProvider := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint, cfg.GatewayAddr)

	traceDB, err := otelsql.Open("postgres", cfg.PostgresURL, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		panic(err)
	}
	db := sqlx.NewDb(traceDB, "postgres")
	defer db.Close()

	redisClient := pubsub.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	ethClient, err := ethclient.DialContext(ctx, cfg.LedgerRPCURL)
	if err != nil {
		panic(err)
	}
	defer ethClient.Close()

	ledger, err := gateway.NewLedgerClient(ctx, ethClient, gateway.LedgerConfig{
		ContractAddress: cfg.ContractAddress,
		SignerKey:       cfg.SignerKey,
		PollInterval:    cfg.ReceiptPollInterval,
	})
	if err != nil {
		panic(err)
	}

	gatewayClient := app.NewGatewayClient()
	contentStore := gateway.NewContentStoreClient(gatewayClient, cfg.PinataAPIURL, cfg.PinataJWT)

	err = app.New(
		cfg,
		db,
		redisClient,
		ledger,
		contentStore,
		gatewayClient,
		traceProvider,
	).Run(ctx)
	if err != nil {
		panic(err)
	}
}
