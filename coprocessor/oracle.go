package coprocessor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"okinoko-cipher_duel/sdk"
)

// Request is a committed disclosure request waiting for delivery.
type Request struct {
	ID     uint64
	Handle sdk.Handle
}

// Answer is a revealed value and its signature, delivered back to the
// contract that asked for it.
type Answer struct {
	RequestID uint64
	Handle    sdk.Handle
	Cleartext []byte
	Proof     []byte
}

// Queue is the durable outbox the ledger writes requests into.
type Queue interface {
	PendingDisclosures(ctx context.Context, limit int) ([]Request, error)
	MarkDisclosureDelivered(ctx context.Context, id uint64, deliveryErr string) error
}

// DeliverFunc hands an answer to the contract callback.
type DeliverFunc func(ctx context.Context, a Answer) error

// OracleConfig tunes the delivery loop.
type OracleConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Oracle reveals disclosable handles and delivers each answer to the
// callback. A request is marked delivered once the callback returned, so a
// crash in between redelivers it; the contract ignores answers to requests
// it already consumed.
type Oracle struct {
	engine  *Engine
	queue   Queue
	deliver DeliverFunc
	cfg     OracleConfig
	log     zerolog.Logger
	wake    chan struct{}
}

func NewOracle(engine *Engine, queue Queue, deliver DeliverFunc, cfg OracleConfig, log zerolog.Logger) *Oracle {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Oracle{
		engine:  engine,
		queue:   queue,
		deliver: deliver,
		cfg:     cfg,
		log:     log.With().Str("component", "oracle").Logger(),
		wake:    make(chan struct{}, 1),
	}
}

// Notify wakes the loop after a commit queued new requests. Never blocks.
func (o *Oracle) Notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run delivers requests until ctx is cancelled.
func (o *Oracle) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	o.log.Info().Dur("poll", o.cfg.PollInterval).Msg("oracle started")
	for {
		if _, err := o.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.log.Error().Err(err).Msg("drain disclosure queue")
		}
		select {
		case <-ctx.Done():
			o.log.Info().Msg("oracle stopped")
			return nil
		case <-o.wake:
		case <-ticker.C:
		}
	}
}

// Drain delivers every pending request and returns how many were handled.
func (o *Oracle) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		reqs, err := o.queue.PendingDisclosures(ctx, o.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if len(reqs) == 0 {
			return total, nil
		}
		for _, req := range reqs {
			if err := o.handle(ctx, req); err != nil {
				return total, err
			}
			total++
		}
	}
}

func (o *Oracle) handle(ctx context.Context, req Request) error {
	log := o.log.With().Uint64("request", req.ID).Str("handle", req.Handle.String()).Logger()
	var deliveryErr string
	clear, proof, err := o.engine.Disclose(req.Handle)
	if err != nil {
		// not recoverable by retrying: the handle is unknown or private
		log.Warn().Err(err).Msg("cannot disclose")
		deliveryErr = err.Error()
	} else {
		err = o.deliver(ctx, Answer{RequestID: req.ID, Handle: req.Handle, Cleartext: clear, Proof: proof})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			log.Warn().Err(err).Msg("callback rejected")
			deliveryErr = err.Error()
		} else {
			log.Debug().Msg("disclosure delivered")
		}
	}
	return o.queue.MarkDisclosureDelivered(ctx, req.ID, deliveryErr)
}
