package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flightsurety/core/events"
	"flightsurety/core/state"
	"flightsurety/core/types"
	"flightsurety/native/airline"
	"flightsurety/native/bank"
	nativecommon "flightsurety/native/common"
	"flightsurety/native/flight"
	"flightsurety/native/fund"
	"flightsurety/native/insurance"
	"flightsurety/native/multisig"
	"flightsurety/native/oracle"
	"flightsurety/observability"
	fsotel "flightsurety/observability/otel"
	"flightsurety/storage"
)

// ErrInvalidOwner is returned when the node is built without an owner.
var ErrInvalidOwner = errors.New("core: owner address required")

// Archive persists committed events.
type Archive interface {
	Record(ctx context.Context, evts []*types.Event) error
}

// Node hosts the insurer. Every mutating call runs against a buffered state
// transaction under the write lock and commits, together with its events,
// only if it succeeds. Queries take the read lock and see committed state.
type Node struct {
	mu      sync.RWMutex
	state   *state.Manager
	bus     *events.Bus
	archive Archive
	owner   [20]byte
	params  Params
	logger  *slog.Logger
	nowFn   func() int64
	metrics *observability.SuretyMetrics
}

// Option customises a node.
type Option func(*Node)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithArchive persists every committed event batch to a.
func WithArchive(a Archive) Option {
	return func(n *Node) { n.archive = a }
}

// WithNowFunc overrides the clock stamped on flights, policies and requests.
func WithNowFunc(now func() int64) Option {
	return func(n *Node) {
		if now != nil {
			n.nowFn = now
		}
	}
}

// WithBus publishes committed events to bus instead of a private one.
func WithBus(bus *events.Bus) Option {
	return func(n *Node) {
		if bus != nil {
			n.bus = bus
		}
	}
}

// NewNode builds a node over db. The owner is the bootstrap authority and the
// first governance admin.
func NewNode(db storage.Database, owner [20]byte, params Params, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if owner == ([20]byte{}) {
		return nil, ErrInvalidOwner
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := &Node{
		state:   state.NewManager(db),
		owner:   owner,
		params:  params.Clone(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		nowFn:   func() int64 { return time.Now().Unix() },
		metrics: observability.Surety(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.bus == nil {
		n.bus = events.NewBus()
	}
	n.bus.SetDropHook(observability.Events().RecordDropped)
	return n, nil
}

// Owner returns the bootstrap authority.
func (n *Node) Owner() [20]byte { return n.owner }

// Params returns a copy of the configured parameters.
func (n *Node) Params() Params { return n.params.Clone() }

// Bus exposes the committed event stream.
func (n *Node) Bus() *events.Bus { return n.bus }

// Subscribe opens a subscription to committed events of the listed types.
func (n *Node) Subscribe(kinds ...string) *events.Subscription {
	return n.bus.Subscribe(kinds...)
}

// Close stops the event bus. The database is owned by the caller.
func (n *Node) Close() {
	n.bus.Stop()
}

// engines are the native modules bound to one state view.
type engines struct {
	kv        state.KV
	bank      *bank.Ledger
	airlines  *airline.Registry
	flights   *flight.Registry
	book      *insurance.Book
	oracles   *oracle.Registry
	consensus *oracle.Engine
	gate      *multisig.Gate
}

func (n *Node) bind(kv state.KV, emitter events.Emitter) *engines {
	ledger := bank.NewLedger(kv)
	funds := fund.NewLedger(kv, n.params.AirlineFunding)
	airlines := airline.NewRegistry(kv, funds, n.owner, n.params.BootstrapAirlines)
	flights := flight.NewRegistry(kv, airlines)
	book := insurance.NewBook(kv, flights, ledger, n.params.PolicyCap)
	oracles := oracle.NewRegistry(kv, n.params.Oracle)
	consensus := oracle.NewEngine(kv, oracles, flights, book)
	gate := multisig.NewGate(kv, n.owner)

	airlines.SetEmitter(emitter)
	flights.SetEmitter(emitter)
	book.SetEmitter(emitter)
	oracles.SetEmitter(emitter)
	consensus.SetEmitter(emitter)
	gate.SetEmitter(emitter)

	airlines.SetNowFunc(n.nowFn)
	flights.SetNowFunc(n.nowFn)
	book.SetNowFunc(n.nowFn)
	oracles.SetNowFunc(n.nowFn)
	consensus.SetNowFunc(n.nowFn)
	gate.SetNowFunc(n.nowFn)

	return &engines{
		kv:        kv,
		bank:      ledger,
		airlines:  airlines,
		flights:   flights,
		book:      book,
		oracles:   oracles,
		consensus: consensus,
		gate:      gate,
	}
}

// view binds the engines to committed state for queries.
func (n *Node) view() *engines {
	return n.bind(n.state, events.NoopEmitter{})
}

// mutate runs fn in a state transaction. Gated calls fail while the system is
// not operational. On success the transaction commits and the recorded events
// are published; on failure nothing is kept.
func (n *Node) mutate(ctx context.Context, method string, caller [20]byte, gated bool, fn func(*engines) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := fsotel.Tracer().Start(ctx, "node."+method, trace.WithAttributes(
		attribute.String("caller", common.Address(caller).Hex()),
	))
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()

	tx := n.state.Begin()
	rec := &events.Recorder{}
	e := n.bind(tx, rec)
	err := func() error {
		if gated {
			if err := nativecommon.Guard(e.gate); err != nil {
				return err
			}
		}
		return fn(e)
	}()
	if err == nil {
		err = tx.Commit()
	} else {
		tx.Discard()
	}
	n.metrics.ObserveCall(method, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Info("call rejected",
			slog.String("method", method),
			slog.String("caller", common.Address(caller).Hex()),
			slog.Any("error", err))
		return err
	}
	n.publish(ctx, rec.Events())
	n.logger.Debug("call committed",
		slog.String("method", method),
		slog.String("caller", common.Address(caller).Hex()),
		slog.Int("events", len(rec.Events())))
	return nil
}

func (n *Node) publish(ctx context.Context, evts []*types.Event) {
	if len(evts) == 0 {
		return
	}
	counters := observability.Events()
	for _, evt := range evts {
		counters.RecordPublished(evt.Type)
		switch evt.Type {
		case flight.EventTypeFlightStatus:
			n.metrics.RecordFinalized(statusLabel(evt.Attributes["status"]))
		case insurance.EventTypeInsuranceCredited:
			n.metrics.RecordCredited(1)
		}
	}
	if n.archive != nil {
		if err := n.archive.Record(ctx, evts); err != nil {
			counters.RecordArchiveError()
			n.logger.Warn("archive events", slog.Any("error", err))
		}
	}
	n.bus.Publish(evts...)
}

func statusLabel(raw string) string {
	code, err := flight.ParseStatusCode(raw)
	if err != nil {
		return raw
	}
	return code.String()
}

// Credit adds amount to addr's spendable balance. It backs genesis
// allocations and the development faucet.
func (n *Node) Credit(ctx context.Context, addr [20]byte, amount *big.Int) error {
	return n.mutate(ctx, "Credit", addr, false, func(e *engines) error {
		return e.bank.Credit(addr, amount)
	})
}

// RegisterAirline admits candidate, or counts caller's vote for it.
func (n *Node) RegisterAirline(ctx context.Context, caller, candidate [20]byte) (*airline.Admission, error) {
	var out *airline.Admission
	err := n.mutate(ctx, "RegisterAirline", caller, true, func(e *engines) error {
		res, err := e.airlines.Register(caller, candidate)
		out = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FundAirline moves value from caller's balance into its airline stake.
func (n *Node) FundAirline(ctx context.Context, caller [20]byte, value *big.Int) (*fund.Deposit, error) {
	var out *fund.Deposit
	err := n.mutate(ctx, "FundAirline", caller, true, func(e *engines) error {
		deposit, err := e.airlines.Fund(caller, value)
		if err != nil {
			return err
		}
		out = deposit
		return e.bank.Collect(caller, value)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterFlight registers a flight for the calling airline at the current
// time.
func (n *Node) RegisterFlight(ctx context.Context, caller [20]byte, designator string) (*flight.Flight, error) {
	var out *flight.Flight
	err := n.mutate(ctx, "RegisterFlight", caller, true, func(e *engines) error {
		f, err := e.flights.Register(caller, designator)
		out = f
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuyInsurance records value as caller's premium on the flight.
func (n *Node) BuyInsurance(ctx context.Context, caller [20]byte, flightKey [32]byte, value *big.Int) (*insurance.Policy, error) {
	var out *insurance.Policy
	err := n.mutate(ctx, "BuyInsurance", caller, true, func(e *engines) error {
		p, err := e.book.Buy(caller, flightKey, value)
		if err != nil {
			return err
		}
		out = p
		return e.bank.Collect(caller, value)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Withdraw pays caller every credited, unpaid payout.
func (n *Node) Withdraw(ctx context.Context, caller [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.mutate(ctx, "Withdraw", caller, true, func(e *engines) error {
		amount, err := e.book.Withdraw(caller)
		out = amount
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterOracle admits caller as an oracle staking value. Re-registration
// returns the existing record and collects nothing.
func (n *Node) RegisterOracle(ctx context.Context, caller [20]byte, value *big.Int) (*oracle.Registration, error) {
	var out *oracle.Registration
	err := n.mutate(ctx, "RegisterOracle", caller, true, func(e *engines) error {
		reg, err := e.oracles.Register(caller, value)
		if err != nil {
			return err
		}
		out = reg
		if reg.Existing {
			return nil
		}
		return e.bank.Collect(caller, value)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchFlightStatus opens a status request for the flight. opened is false
// when the drawn index already had an open request.
func (n *Node) FetchFlightStatus(ctx context.Context, caller [20]byte, flightKey [32]byte) (*oracle.Request, bool, error) {
	var (
		out    *oracle.Request
		opened bool
	)
	err := n.mutate(ctx, "FetchFlightStatus", caller, true, func(e *engines) error {
		req, fresh, err := e.consensus.FetchFlightStatus(caller, flightKey)
		out, opened = req, fresh
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, opened, nil
}

// SubmitOracleResponse records caller's status report for the request tuple.
func (n *Node) SubmitOracleResponse(ctx context.Context, caller [20]byte, index uint8, airlineAddr [20]byte, designator string, timestamp uint64, code flight.StatusCode) (*oracle.Response, error) {
	var out *oracle.Response
	err := n.mutate(ctx, "SubmitOracleResponse", caller, true, func(e *engines) error {
		resp, err := e.consensus.SubmitResponse(caller, index, airlineAddr, designator, timestamp, code)
		out = resp
		return err
	})
	n.metrics.RecordResponse(responseOutcome(out, err))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func responseOutcome(resp *oracle.Response, err error) string {
	switch {
	case errors.Is(err, oracle.ErrRequestClosed):
		return "closed"
	case err != nil:
		return "rejected"
	case !resp.Counted:
		return "duplicate"
	case resp.Closed:
		return "quorum"
	default:
		return "counted"
	}
}

// RegisterAdmin adds a governance admin. Only the owner may call it.
func (n *Node) RegisterAdmin(ctx context.Context, caller, admin [20]byte) (bool, error) {
	var added bool
	err := n.mutate(ctx, "RegisterAdmin", caller, false, func(e *engines) error {
		ok, err := e.gate.RegisterAdmin(caller, admin)
		added = ok
		return err
	})
	return added, err
}

// ProposeOperatingStatus proposes a new operational flag and counts caller's
// approval.
func (n *Node) ProposeOperatingStatus(ctx context.Context, caller [20]byte, operational bool) (*multisig.Decision, error) {
	var out *multisig.Decision
	err := n.mutate(ctx, "ProposeOperatingStatus", caller, false, func(e *engines) error {
		d, err := e.gate.Propose(caller, operational)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveOperatingStatus counts caller's approval of the pending proposal.
func (n *Node) ApproveOperatingStatus(ctx context.Context, caller [20]byte) (*multisig.Decision, error) {
	var out *multisig.Decision
	err := n.mutate(ctx, "ApproveOperatingStatus", caller, false, func(e *engines) error {
		d, err := e.gate.Approve(caller)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetOperatingStatusProposal drops the pending proposal.
func (n *Node) ResetOperatingStatusProposal(ctx context.Context, caller [20]byte) (bool, error) {
	var cleared bool
	err := n.mutate(ctx, "ResetOperatingStatusProposal", caller, false, func(e *engines) error {
		ok, err := e.gate.Reset(caller)
		cleared = ok
		return err
	})
	return cleared, err
}
