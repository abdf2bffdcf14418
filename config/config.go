package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"ticketchain/resolver"
)

// DefaultDeploymentHeight is the block the ticket contract was deployed at.
const DefaultDeploymentHeight = 27983078

type Config struct {
	HTTPAddr string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"HTTP listen address"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"logrus level"`

	PostgresURL string `long:"postgres-url" env:"POSTGRES_URL" description:"Postgres connection string"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address"`

	JaegerEndpoint string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"Jaeger collector endpoint"`
	GatewayAddr    string `long:"gateway-addr" env:"GATEWAY_ADDR" description:"Fallback base address of the Jaeger collector"`

	LedgerRPCURL         string        `long:"ledger-rpc-url" env:"LEDGER_RPC_URL" description:"Ethereum JSON-RPC endpoint"`
	ContractAddress      string        `long:"contract-address" env:"CONTRACT_ADDRESS" description:"Ticket contract address"`
	SignerKey            string        `long:"signer-key" env:"SIGNER_PRIVATE_KEY" description:"Hex private key used to sign transactions"`
	DeploymentHeight     uint64        `long:"deployment-height" env:"DEPLOYMENT_HEIGHT" default:"27983078" description:"First block scanned for Transfer logs"`
	ReceiptPollInterval  time.Duration `long:"receipt-poll-interval" env:"RECEIPT_POLL_INTERVAL" default:"2s"`
	SubmitTimeout        time.Duration `long:"submit-timeout" env:"SUBMIT_TIMEOUT" default:"2m"`
	ConfirmationTimeout  time.Duration `long:"confirmation-timeout" env:"CONFIRMATION_TIMEOUT" default:"5m"`
	ReconcileConcurrency int           `long:"reconcile-concurrency" env:"RECONCILE_CONCURRENCY" default:"8"`

	Gateways       []string      `long:"gateway" env:"IPFS_GATEWAYS" env-delim:"," description:"Content gateway base URL, in fallback order"`
	GatewaysFile   string        `long:"gateways-file" env:"IPFS_GATEWAYS_FILE" description:"YAML file with the gateway list"`
	GatewayTimeout time.Duration `long:"gateway-timeout" env:"IPFS_GATEWAY_TIMEOUT" default:"10s"`

	PinataAPIURL string `long:"pinata-api-url" env:"PINATA_API_URL" default:"https://api.pinata.cloud"`
	PinataJWT    string `long:"pinata-jwt" env:"PINATA_JWT"`
}

type gatewaysFile struct {
	Gateways []string `yaml:"gateways"`
}

// Load parses args and the environment. Flags win over environment variables.
func Load(args []string) (Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}

	if cfg.GatewaysFile != "" && len(cfg.Gateways) == 0 {
		gateways, err := readGatewaysFile(cfg.GatewaysFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Gateways = gateways
	}

	cfg.Gateways = normalizeGateways(cfg.Gateways)
	if len(cfg.Gateways) == 0 {
		cfg.Gateways = append([]string(nil), resolver.DefaultGateways...)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}

	return level
}

func (c Config) validate() error {
	var errs []error

	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("gateway timeout must be positive"))
	}
	if c.SubmitTimeout <= 0 {
		errs = append(errs, errors.New("submit timeout must be positive"))
	}
	if c.ConfirmationTimeout <= 0 {
		errs = append(errs, errors.New("confirmation timeout must be positive"))
	}
	if c.ReconcileConcurrency <= 0 {
		errs = append(errs, errors.New("reconcile concurrency must be positive"))
	}
	for _, gateway := range c.Gateways {
		if !strings.HasPrefix(gateway, "https://") && !strings.HasPrefix(gateway, "http://") {
			errs = append(errs, fmt.Errorf("gateway %q must be an http(s) URL", gateway))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}

func readGatewaysFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read gateways file: %w", err)
	}

	var file gatewaysFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("could not parse gateways file %s: %w", path, err)
	}

	return file.Gateways, nil
}

// normalizeGateways trims blanks and makes every base URL end with a slash.
func normalizeGateways(gateways []string) []string {
	normalized := make([]string, 0, len(gateways))
	for _, gateway := range gateways {
		gateway = strings.TrimSpace(gateway)
		if gateway == "" {
			continue
		}
		if !strings.HasSuffix(gateway, "/") {
			gateway += "/"
		}
		normalized = append(normalized, gateway)
	}

	return normalized
}
