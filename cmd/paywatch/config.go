package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/RogueTeam/paywatch/internal/walletrpc/rpc"
	"github.com/RogueTeam/paywatch/receipts"
	"github.com/RogueTeam/paywatch/wallets"
	"github.com/RogueTeam/paywatch/wallets/lnd"
	"github.com/RogueTeam/paywatch/wallets/mock"
	"github.com/RogueTeam/paywatch/wallets/monero"
	"github.com/RogueTeam/paywatch/watch"
	"github.com/dgraph-io/badger/v4"
	"github.com/gabstv/httpdigest"
	"golang.org/x/net/proxy"
	"gopkg.in/yaml.v3"
)

const (
	BackendMock   = "mock"
	BackendMonero = "monero"
	BackendLnd    = "lnd"
)

const DefaultAmountUnit = 1_000

var ErrUnknownBackend = errors.New("unknown backend kind")

// Yaml configuration reference
type (
	MoneroBackend struct {
		Url          string  `yaml:"url"`
		Username     *string `yaml:"username,omitempty"`
		Password     *string `yaml:"password,omitempty"`
		AccountIndex uint64  `yaml:"account-index"`
	}
	LndBackend struct {
		Host         string `yaml:"host"`
		TLSCertPath  string `yaml:"tls-cert-path"`
		MacaroonPath string `yaml:"macaroon-path"`
	}
	MockBackend struct {
		Capabilities []string `yaml:"capabilities,omitempty"`
	}
	Backend struct {
		Kind string `yaml:"kind"`
		// SOCKS5 proxy used to reach the wallet RPC. Monero only
		Socks5 string        `yaml:"socks5,omitempty"`
		Monero MoneroBackend `yaml:"monero"`
		Lnd    LndBackend    `yaml:"lnd"`
		Mock   MockBackend   `yaml:"mock"`
	}
	Config struct {
		ListenAddress string        `yaml:"listen-address"`
		DatabasePath  string        `yaml:"database-path"`
		PollInterval  time.Duration `yaml:"poll-interval"`
		// Backend units per displayed unit
		AmountUnit uint64  `yaml:"amount-unit"`
		Backend    Backend `yaml:"backend"`
	}
)

func LoadConfig(path string) (cfg Config, err error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	err = yaml.Unmarshal(contents, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.AmountUnit == 0 {
		cfg.AmountUnit = DefaultAmountUnit
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = watch.DefaultPollInterval
	}
	return cfg, nil
}

func (b *Backend) httpClient() (client *http.Client, err error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if b.Socks5 != "" {
		dialer, err := proxy.SOCKS5("tcp", b.Socks5, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare SOCKS5 dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = contextDialer.DialContext
	}

	client = &http.Client{Transport: transport}
	if b.Monero.Username != nil && b.Monero.Password != nil {
		digest := httpdigest.New(*b.Monero.Username, *b.Monero.Password)
		digest.Transport = transport
		client.Transport = digest
	}
	return client, nil
}

// Wallet builds the configured backend. closer releases its connection
func (c *Config) Wallet(logger *slog.Logger) (wallet wallets.Wallet, closer func() error, err error) {
	closer = func() error { return nil }

	switch c.Backend.Kind {
	case BackendMock:
		return mock.New(mock.Config{Capabilities: c.Backend.Mock.Capabilities}), closer, nil
	case BackendMonero:
		client, err := c.Backend.httpClient()
		if err != nil {
			return nil, closer, err
		}
		wallet = monero.New(monero.Config{
			AccountIndex: c.Backend.Monero.AccountIndex,
			Client: rpc.New(rpc.Config{
				Url:    c.Backend.Monero.Url,
				Client: client,
			}),
		})
		return wallet, closer, nil
	case BackendLnd:
		w, err := lnd.Dial(lnd.Config{
			Host:         c.Backend.Lnd.Host,
			TLSCertPath:  c.Backend.Lnd.TLSCertPath,
			MacaroonPath: c.Backend.Lnd.MacaroonPath,
			Logger:       logger,
		})
		if err != nil {
			return nil, closer, fmt.Errorf("failed to connect to lnd: %w", err)
		}
		return w, w.Close, nil
	default:
		return nil, closer, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend.Kind)
	}
}

func (c *Config) Watcher(wallet wallets.Wallet, logger *slog.Logger) (w *watch.Watcher) {
	return watch.New(watch.Config{
		Wallet:       wallet,
		PollInterval: c.PollInterval,
		Logger:       logger,
	})
}

// Service is everything serve needs, already wired
type Service struct {
	DB       *badger.DB
	Wallet   wallets.Wallet
	Receipts *receipts.Controller
	closer   func() error
}

func (s *Service) Close() (err error) {
	s.Receipts.Close()
	err = errors.Join(s.closer(), s.DB.Close())
	return err
}

func (c *Config) Compile(logger *slog.Logger) (svc Service, err error) {
	svc.Wallet, svc.closer, err = c.Wallet(logger)
	if err != nil {
		return svc, err
	}

	opt := badger.DefaultOptions(c.DatabasePath).WithLogger(nil)
	svc.DB, err = badger.Open(opt)
	if err != nil {
		svc.closer()
		return svc, fmt.Errorf("failed to open database: %w", err)
	}

	svc.Receipts = receipts.New(receipts.Config{
		DB:      svc.DB,
		Watcher: c.Watcher(svc.Wallet, logger),
		Logger:  logger,
	})
	return svc, nil
}
