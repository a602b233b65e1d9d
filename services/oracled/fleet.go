package oracled

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"flightsurety/core/events"
	"flightsurety/crypto"
	"flightsurety/native/flight"
	"flightsurety/native/oracle"
	"flightsurety/observability"
)

// Fleet owns a set of agents and feeds them request events.
type Fleet struct {
	chain        Chain
	agents       []*Agent
	journal      Journal
	ownsJournal  bool
	attempts     int
	registration Duration
	logger       *slog.Logger

	mu     sync.Mutex
	sub    *events.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customises a Fleet.
type Option func(*Fleet)

// WithLogger sets the fleet logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fleet) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithJournal supplies a journal owned by the caller.
func WithJournal(j Journal) Option {
	return func(f *Fleet) {
		if j != nil {
			f.journal = j
		}
	}
}

// NewFleet builds one agent per configured key plus cfg.Count generated ones.
func NewFleet(chain Chain, cfg Config, opts ...Option) (_ *Fleet, err error) {
	if chain == nil {
		return nil, fmt.Errorf("oracled: chain required")
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	f := &Fleet{
		chain:        chain,
		attempts:     cfg.Registration.Attempts,
		registration: cfg.Registration.Delay,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.journal == nil {
		if cfg.JournalPath != "" {
			journal, err := OpenBoltJournal(cfg.JournalPath)
			if err != nil {
				return nil, fmt.Errorf("oracled: open journal: %w", err)
			}
			f.journal = journal
		} else {
			f.journal = NewMemJournal()
		}
		f.ownsJournal = true
		defer func() {
			if err != nil {
				_ = f.journal.Close()
			}
		}()
	}

	stake, err := cfg.StakeAmount()
	if err != nil {
		return nil, err
	}
	shared, err := sourceFor(cfg.Status)
	if err != nil {
		return nil, err
	}
	for i, o := range cfg.Oracles {
		raw, err := o.resolveKey()
		if err != nil {
			return nil, fmt.Errorf("oracles[%d]: %w", i, err)
		}
		key, err := crypto.PrivateKeyFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("oracles[%d]: %w", i, err)
		}
		source := shared
		if o.Status != "" {
			code, err := flight.ParseStatusCode(o.Status)
			if err != nil {
				return nil, fmt.Errorf("oracles[%d]: %w", i, err)
			}
			source = FixedStatus(code)
		}
		f.add(key.PubKey().Address().Raw(), stake, cfg.Fund, source)
	}
	for i := 0; i < cfg.Count; i++ {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		f.add(key.PubKey().Address().Raw(), stake, cfg.Fund, shared)
	}
	return f, nil
}

func sourceFor(cfg StatusConfig) (StatusSource, error) {
	if cfg.Mode == StatusModeFixed {
		code, err := flight.ParseStatusCode(cfg.Code)
		if err != nil {
			return nil, err
		}
		return FixedStatus(code), nil
	}
	return NewRandomStatus(cfg.Seed), nil
}

func (f *Fleet) add(address [20]byte, stake *big.Int, fund bool, source StatusSource) {
	agent := newAgent(address, f.chain, stake, source, f.journal, f.logger)
	agent.fund = fund
	f.agents = append(f.agents, agent)
}

// Agents returns the fleet's agents in configuration order.
func (f *Fleet) Agents() []*Agent {
	return append([]*Agent(nil), f.agents...)
}

// Start registers every agent and begins answering requests. The subscription
// is opened before registration so no request is missed. Agents that fail to
// register are dropped from the fleet; Start fails only when none remain.
func (f *Fleet) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		return fmt.Errorf("oracled: fleet already started")
	}
	sub := f.chain.Subscribe(oracle.EventTypeOracleRequest)

	active := make([]*Agent, 0, len(f.agents))
	var errs []error
	for _, agent := range f.agents {
		if err := agent.RegisterWithRetry(ctx, f.attempts, f.registration.Duration); err != nil {
			errs = append(errs, err)
			continue
		}
		active = append(active, agent)
	}
	if len(active) == 0 && len(f.agents) > 0 {
		sub.Cancel()
		return fmt.Errorf("oracled: no agent registered: %w", errors.Join(errs...))
	}
	f.agents = active
	observability.OracleAgents().SetActive(len(active))
	f.logger.Info("oracle fleet started", slog.Int("agents", len(active)), slog.Int("failed", len(errs)))

	runCtx, cancel := context.WithCancel(context.Background())
	f.sub = sub
	f.cancel = cancel
	f.wg.Add(1)
	go f.run(runCtx, sub)
	return nil
}

func (f *Fleet) run(ctx context.Context, sub *events.Subscription) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			req, err := ParseRequest(evt)
			if err != nil {
				f.logger.Warn("skip malformed request", slog.Any("error", err))
				continue
			}
			f.dispatch(ctx, req)
		}
	}
}

func (f *Fleet) dispatch(ctx context.Context, req Request) {
	for _, agent := range f.agents {
		if ctx.Err() != nil {
			return
		}
		if _, err := agent.Handle(ctx, req); err != nil {
			agent.logger.Warn("status submission failed",
				slog.Int("index", int(req.Index)),
				slog.String("flight", req.Designator),
				slog.Any("error", err))
		}
	}
}

// Stop ends request handling and closes a journal the fleet opened itself.
func (f *Fleet) Stop() error {
	f.mu.Lock()
	sub, cancel := f.sub, f.cancel
	f.sub, f.cancel = nil, nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Cancel()
	}
	f.wg.Wait()
	observability.OracleAgents().SetActive(0)
	if f.ownsJournal {
		f.ownsJournal = false
		return f.journal.Close()
	}
	return nil
}
