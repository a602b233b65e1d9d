// Package multisig holds the operational flag and the admin set that toggles
// it. A change commits once a majority of admins approved the same pending
// value; with two or more admins no single admin can commit alone.
package multisig

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
	"flightsurety/core/types"
	"flightsurety/native/voting"
)

const (
	EventTypeAdminRegistered = "multisig.admin"
	EventTypeProposed        = "multisig.proposed"
	EventTypeApproved        = "multisig.approved"
	EventTypeCommitted       = "multisig.committed"
	EventTypeReset           = "multisig.reset"
)

var (
	ErrNotAuthorized     = fmt.Errorf("multisig: caller is not an admin: %w", fserrors.ErrNotAuthorized)
	ErrNotOwner          = fmt.Errorf("multisig: caller is not the owner: %w", fserrors.ErrNotAuthorized)
	ErrNoPendingProposal = fmt.Errorf("multisig: no pending proposal: %w", fserrors.ErrInvalidState)
	ErrInvalidAdmin      = fmt.Errorf("multisig: invalid admin address: %w", fserrors.ErrInvalidState)

	errNilState = errors.New("multisig: state not configured")
)

const (
	approvalsKeyPrefix = "multisig/approvals/"
	// haltedFlag is stored while the system is not operational; a missing
	// key means operational.
	haltedFlag uint64 = 1
)

var (
	keyAdmins      = []byte("multisig/admins")
	keyOperational = []byte("multisig/operational")
	keyPending     = []byte("multisig/pending")
)

// Pending is the proposal currently collecting approvals.
type Pending struct {
	Value      bool
	ProposedBy [20]byte
	ProposedAt uint64
}

// Decision reports the effect of a Propose or Approve call.
type Decision struct {
	// NoOp is set when the proposal matched the committed value.
	NoOp bool
	// Counted is false when the admin had already approved.
	Counted   bool
	Value     bool
	Approvals int
	Quorum    int
	Committed bool
}

// Quorum returns the approvals needed to commit a change with admins
// registered admins: ceil(admins/2), but never fewer than two once a second
// admin exists.
func Quorum(admins int) int {
	if admins <= 1 {
		return 1
	}
	return max(voting.Majority(admins), 2)
}

func boolKey(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// Gate is the operational multisig.
type Gate struct {
	state     state.KV
	owner     [20]byte
	approvals *voting.Gate[bool]
	emitter   events.Emitter
	nowFn     func() int64
}

// NewGate binds the gate to kv. The owner is always an admin.
func NewGate(kv state.KV, owner [20]byte) *Gate {
	return &Gate{
		state:     kv,
		owner:     owner,
		approvals: voting.NewGate[bool](kv, approvalsKeyPrefix, boolKey),
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (g *Gate) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// SetNowFunc overrides the proposal clock.
func (g *Gate) SetNowFunc(now func() int64) {
	if now == nil {
		g.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	g.nowFn = now
}

func (g *Gate) now() uint64 {
	if g == nil || g.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(g.nowFn())
}

// Owner returns the owner address.
func (g *Gate) Owner() [20]byte { return g.owner }

// IsOperational returns the committed flag. It defaults to true.
func (g *Gate) IsOperational() (bool, error) {
	if g == nil || g.state == nil {
		return false, errNilState
	}
	var halted uint64
	if _, err := g.state.KVGet(keyOperational, &halted); err != nil {
		return false, err
	}
	return halted != haltedFlag, nil
}

func (g *Gate) setOperational(value bool) error {
	var halted uint64
	if !value {
		halted = haltedFlag
	}
	return g.state.KVPut(keyOperational, halted)
}

// Admins returns the admin set, owner first.
func (g *Gate) Admins() ([][20]byte, error) {
	if g == nil || g.state == nil {
		return nil, errNilState
	}
	list, err := g.state.KVGetList(keyAdmins)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(list)+1)
	out = append(out, g.owner)
	for _, raw := range list {
		var addr [20]byte
		copy(addr[:], raw)
		if addr != g.owner {
			out = append(out, addr)
		}
	}
	return out, nil
}

// IsAdmin reports whether addr may propose and approve.
func (g *Gate) IsAdmin(addr [20]byte) (bool, error) {
	admins, err := g.Admins()
	if err != nil {
		return false, err
	}
	for _, a := range admins {
		if a == addr {
			return true, nil
		}
	}
	return false, nil
}

// RegisterAdmin adds admin to the set. Only the owner may call it. Adding an
// existing admin is a no-op reported by the boolean.
func (g *Gate) RegisterAdmin(caller, admin [20]byte) (bool, error) {
	if g == nil || g.state == nil {
		return false, errNilState
	}
	if caller != g.owner {
		return false, ErrNotOwner
	}
	if admin == ([20]byte{}) {
		return false, ErrInvalidAdmin
	}
	exists, err := g.IsAdmin(admin)
	if err != nil || exists {
		return false, err
	}
	if err := g.state.KVAppend(keyAdmins, admin[:]); err != nil {
		return false, err
	}
	g.emitter.Emit(types.NewEvent(EventTypeAdminRegistered).
		With("admin", common.Address(admin).Hex()))
	return true, nil
}

// Pending returns the proposal collecting approvals, if any.
func (g *Gate) Pending() (*Pending, bool, error) {
	if g == nil || g.state == nil {
		return nil, false, errNilState
	}
	p := new(Pending)
	ok, err := g.state.KVGet(keyPending, p)
	if err != nil || !ok {
		return nil, false, err
	}
	return p, true, nil
}

// Approvals returns the approvals recorded for the pending proposal.
func (g *Gate) Approvals() (int, error) {
	p, ok, err := g.Pending()
	if err != nil || !ok {
		return 0, err
	}
	return g.approvals.Tally(p.Value)
}

func (g *Gate) requireAdmin(caller [20]byte) error {
	ok, err := g.IsAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// Propose asks for the operational flag to become value and counts the
// proposer's approval. Proposing the committed value changes nothing;
// proposing the pending value approves it; any other value replaces the
// pending proposal and its approvals.
func (g *Gate) Propose(caller [20]byte, value bool) (*Decision, error) {
	if err := g.requireAdmin(caller); err != nil {
		return nil, err
	}
	current, err := g.IsOperational()
	if err != nil {
		return nil, err
	}
	if value == current {
		return &Decision{NoOp: true, Value: value}, nil
	}
	pending, ok, err := g.Pending()
	if err != nil {
		return nil, err
	}
	if !ok || pending.Value != value {
		if ok {
			if err := g.approvals.Clear(pending.Value); err != nil {
				return nil, err
			}
		}
		pending = &Pending{Value: value, ProposedBy: caller, ProposedAt: g.now()}
		if err := g.state.KVPut(keyPending, pending); err != nil {
			return nil, err
		}
		g.emitter.Emit(types.NewEvent(EventTypeProposed).
			With("admin", common.Address(caller).Hex()).
			With("operational", strconv.FormatBool(value)))
	}
	return g.approve(caller, pending)
}

// Approve counts caller's approval of the pending proposal.
func (g *Gate) Approve(caller [20]byte) (*Decision, error) {
	if err := g.requireAdmin(caller); err != nil {
		return nil, err
	}
	pending, ok, err := g.Pending()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoPendingProposal
	}
	return g.approve(caller, pending)
}

func (g *Gate) approve(caller [20]byte, pending *Pending) (*Decision, error) {
	admins, err := g.Admins()
	if err != nil {
		return nil, err
	}
	outcome, err := g.approvals.Vote(pending.Value, caller, Quorum(len(admins)))
	if err != nil {
		return nil, err
	}
	decision := &Decision{
		Counted:   outcome.Counted,
		Value:     pending.Value,
		Approvals: outcome.Votes,
		Quorum:    outcome.Quorum,
	}
	if !outcome.Passed {
		if outcome.Counted {
			g.emitter.Emit(types.NewEvent(EventTypeApproved).
				With("admin", common.Address(caller).Hex()).
				With("approvals", strconv.Itoa(outcome.Votes)).
				With("quorum", strconv.Itoa(outcome.Quorum)))
		}
		return decision, nil
	}
	if err := g.setOperational(pending.Value); err != nil {
		return nil, err
	}
	if err := g.state.KVDelete(keyPending); err != nil {
		return nil, err
	}
	decision.Committed = true
	g.emitter.Emit(types.NewEvent(EventTypeCommitted).
		With("operational", strconv.FormatBool(pending.Value)).
		With("approvals", strconv.Itoa(outcome.Votes)))
	return decision, nil
}

// Reset drops the pending proposal and its approvals. It reports whether a
// proposal was pending.
func (g *Gate) Reset(caller [20]byte) (bool, error) {
	if err := g.requireAdmin(caller); err != nil {
		return false, err
	}
	pending, ok, err := g.Pending()
	if err != nil || !ok {
		return false, err
	}
	if err := g.approvals.Clear(pending.Value); err != nil {
		return false, err
	}
	if err := g.state.KVDelete(keyPending); err != nil {
		return false, err
	}
	g.emitter.Emit(types.NewEvent(EventTypeReset).
		With("admin", common.Address(caller).Hex()))
	return true, nil
}
