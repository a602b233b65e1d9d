// Package oracled runs off-chain oracle agents next to the node. Agents
// register with a stake, listen for status requests routed to their indexes
// and answer with a status code.
package oracled

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/types"
	"flightsurety/crypto"
	"flightsurety/native/flight"
	"flightsurety/native/oracle"
	"flightsurety/observability"
)

// Chain is the slice of the node the agents drive.
type Chain interface {
	Balance(addr [20]byte) (*big.Int, error)
	Credit(ctx context.Context, addr [20]byte, amount *big.Int) error
	IsOracleRegistered(addr [20]byte) (bool, error)
	OracleIndexes(addr [20]byte) ([]uint8, error)
	RegisterOracle(ctx context.Context, caller [20]byte, value *big.Int) (*oracle.Registration, error)
	IsResponseOpen(index uint8, airline [20]byte, designator string, timestamp uint64) (bool, error)
	SubmitOracleResponse(ctx context.Context, caller [20]byte, index uint8, airline [20]byte, designator string, timestamp uint64, code flight.StatusCode) (*oracle.Response, error)
	Subscribe(kinds ...string) *events.Subscription
}

// Request is the submission tuple announced by an oracle.request event.
type Request struct {
	Index      uint8
	Airline    [20]byte
	Designator string
	Timestamp  uint64
}

// Key returns the consensus key of the request.
func (r Request) Key() [32]byte {
	return oracle.RequestKey(r.Index, r.Airline, r.Designator, r.Timestamp)
}

// ParseRequest decodes an oracle.request event.
func ParseRequest(evt *types.Event) (Request, error) {
	var req Request
	if evt == nil || evt.Type != oracle.EventTypeOracleRequest {
		return req, fmt.Errorf("oracled: not a request event")
	}
	index, err := strconv.ParseUint(evt.Attributes["index"], 10, 8)
	if err != nil {
		return req, fmt.Errorf("oracled: request index: %w", err)
	}
	airline, err := crypto.ParseAddress(evt.Attributes["airline"])
	if err != nil {
		return req, fmt.Errorf("oracled: request airline: %w", err)
	}
	timestamp, err := strconv.ParseUint(evt.Attributes["timestamp"], 10, 64)
	if err != nil {
		return req, fmt.Errorf("oracled: request timestamp: %w", err)
	}
	req.Index = uint8(index)
	req.Airline = airline
	req.Designator = evt.Attributes["designator"]
	req.Timestamp = timestamp
	return req, nil
}

// Agent is one oracle identity.
type Agent struct {
	address [20]byte
	chain   Chain
	stake   *big.Int
	fund    bool
	source  StatusSource
	journal Journal
	logger  *slog.Logger
	metrics *observability.OracleAgentMetrics

	mu      sync.RWMutex
	indexes []uint8
}

func newAgent(address [20]byte, chain Chain, stake *big.Int, source StatusSource, journal Journal, logger *slog.Logger) *Agent {
	return &Agent{
		address: address,
		chain:   chain,
		stake:   new(big.Int).Set(stake),
		source:  source,
		journal: journal,
		logger:  logger.With(slog.String("oracle", common.Address(address).Hex())),
		metrics: observability.OracleAgents(),
	}
}

// Address returns the agent's account.
func (a *Agent) Address() [20]byte { return a.address }

// Indexes returns the indexes learned at registration.
func (a *Agent) Indexes() []uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]uint8(nil), a.indexes...)
}

func (a *Agent) holds(index uint8) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, idx := range a.indexes {
		if idx == index {
			return true
		}
	}
	return false
}

// RegisterWithRetry registers the agent, retrying up to attempts times with a
// fixed delay. An agent that is already registered only reloads its indexes.
func (a *Agent) RegisterWithRetry(ctx context.Context, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		a.metrics.RecordAttempt()
		outcome, err := a.register(ctx)
		if err == nil {
			a.metrics.RecordRegistration(outcome)
			a.logger.Info("oracle registered",
				slog.String("status", outcome),
				slog.String("indexes", oracle.FormatIndexes(a.Indexes())))
			return nil
		}
		lastErr = err
		a.logger.Warn("oracle registration failed",
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.metrics.RecordRegistration("failed")
			return ctx.Err()
		case <-timer.C:
		}
	}
	a.metrics.RecordRegistration("failed")
	return fmt.Errorf("oracled: register %s after %d attempts: %w", common.Address(a.address).Hex(), attempts, lastErr)
}

func (a *Agent) register(ctx context.Context) (string, error) {
	registered, err := a.chain.IsOracleRegistered(a.address)
	if err != nil {
		return "", err
	}
	if registered {
		indexes, err := a.chain.OracleIndexes(a.address)
		if err != nil {
			return "", err
		}
		a.setIndexes(indexes)
		return "existing", nil
	}
	if a.fund {
		balance, err := a.chain.Balance(a.address)
		if err != nil {
			return "", err
		}
		if balance.Cmp(a.stake) < 0 {
			if err := a.chain.Credit(ctx, a.address, new(big.Int).Sub(a.stake, balance)); err != nil {
				return "", err
			}
		}
	}
	reg, err := a.chain.RegisterOracle(ctx, a.address, a.stake)
	if err != nil {
		return "", err
	}
	a.setIndexes(reg.Oracle.Indexes)
	return "registered", nil
}

func (a *Agent) setIndexes(indexes []uint8) {
	a.mu.Lock()
	a.indexes = append([]uint8(nil), indexes...)
	a.mu.Unlock()
}

// Handle answers req when it is routed to one of the agent's indexes and still
// accepts responses. It reports whether a response was submitted.
func (a *Agent) Handle(ctx context.Context, req Request) (bool, error) {
	if !a.holds(req.Index) {
		return false, nil
	}
	key := req.Key()
	settled, err := a.journal.Settled(key)
	if err != nil || settled {
		return false, err
	}
	open, err := a.chain.IsResponseOpen(req.Index, req.Airline, req.Designator, req.Timestamp)
	if err != nil {
		return false, err
	}
	if !open {
		return false, a.journal.MarkSettled(key, "not_open")
	}
	code := a.source.Status(req)
	resp, err := a.chain.SubmitOracleResponse(ctx, a.address, req.Index, req.Airline, req.Designator, req.Timestamp, code)
	switch {
	case errors.Is(err, fserrors.ErrRequestClosed), errors.Is(err, fserrors.ErrRequestNotOpen):
		a.metrics.RecordSubmission("closed")
		return false, a.journal.MarkSettled(key, "closed")
	case err != nil:
		a.metrics.RecordSubmission("rejected")
		return false, err
	}
	outcome := "counted"
	switch {
	case resp.Closed:
		outcome = "quorum"
		if err := a.journal.MarkSettled(key, "quorum"); err != nil {
			return true, err
		}
	case !resp.Counted:
		outcome = "duplicate"
	}
	a.metrics.RecordSubmission(outcome)
	a.logger.Debug("status submitted",
		slog.Int("index", int(req.Index)),
		slog.String("flight", req.Designator),
		slog.String("status", code.String()),
		slog.String("outcome", outcome))
	return true, nil
}
