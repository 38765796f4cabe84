// Package node runs the duel contract as a standalone service: a ledger
// that executes calls serially over SQLite, the confidential coprocessor
// and its disclosure oracle, and an HTTP API in front of them.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"okinoko-cipher_duel/contract"
	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/store/sqlite"
)

// Node owns every long-lived component.
type Node struct {
	cfg     Config
	log     zerolog.Logger
	store   *sqlite.Store
	engine  *coprocessor.Engine
	ledger  *Ledger
	oracle  *coprocessor.Oracle
	metrics *Metrics
	api     *API
}

// New opens storage and assembles the node. Call Close when done.
func New(cfg Config, log zerolog.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	contractCfg, err := cfg.ContractConfig()
	if err != nil {
		return nil, err
	}
	seed, generated, err := cfg.Seed()
	if err != nil {
		return nil, fmt.Errorf("coprocessor seed: %w", err)
	}
	if generated {
		log.Warn().Msg("no key seed configured, sealed values will not survive a restart")
	}
	keys, err := coprocessor.DeriveKeys(seed)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	engine, err := coprocessor.NewEngine(keys, store, cfg.CacheSize, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := NewMetrics()
	ledger := NewLedger(store, engine, contract.New(contractCfg), cfg, metrics, log)
	oracle := coprocessor.NewOracle(engine, store, ledger.Deliver, coprocessor.OracleConfig{
		PollInterval: cfg.OraclePoll,
		BatchSize:    cfg.OracleBatch,
	}, log)
	ledger.OnDisclosure(oracle.Notify)

	return &Node{
		cfg:     cfg,
		log:     log.With().Str("component", "node").Logger(),
		store:   store,
		engine:  engine,
		ledger:  ledger,
		oracle:  oracle,
		metrics: metrics,
		api:     NewAPI(ledger, store, engine, metrics, cfg.Faucet, log),
	}, nil
}

func (n *Node) Ledger() *Ledger { return n.ledger }
func (n *Node) Engine() *coprocessor.Engine { return n.engine }
func (n *Node) Oracle() *coprocessor.Oracle { return n.oracle }
func (n *Node) Handler() http.Handler { return n.api.Routes() }
func (n *Node) Store() *sqlite.Store { return n.store }

// Run serves HTTP and runs the oracle until ctx is cancelled or either
// fails.
func (n *Node) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.cfg.ListenAddr, err)
	}
	srv := &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.log.Info().Str("addr", lis.Addr().String()).Msg("http listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return n.oracle.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases storage.
func (n *Node) Close() error {
	n.engine.Purge()
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
