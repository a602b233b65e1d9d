package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"flightsurety/core/events"
	fserrors "flightsurety/core/errors"
	"flightsurety/core/state"
)

var (
	ErrInsufficientStake = fmt.Errorf("oracle: stake below minimum: %w", fserrors.ErrInsufficientFunds)
	ErrStakeTooLarge     = fmt.Errorf("oracle: stake exceeds 256 bits: %w", fserrors.ErrInvalidAmount)
	ErrNotRegistered     = fmt.Errorf("oracle: not registered: %w", fserrors.ErrUnknownEntity)

	errNilState = errors.New("oracle: state not configured")
)

var (
	keyNonce = []byte("oracle/nonce")
	keyIndex = []byte("oracle/index")
)

func oracleKey(addr [20]byte) []byte {
	return append([]byte("oracle/record/"), addr[:]...)
}

// Registry admits staked oracles and assigns their routing indexes.
//
// Index draws hash keccak256(participant || stake || nonce) with the stake as
// a 32-byte big-endian word and the nonce as 8 big-endian bytes; the index is
// the first 8 bytes of the digest modulo the index space. The nonce is a
// global counter incremented after every draw, so assignments are
// reproducible from the registration order.
type Registry struct {
	state   state.KV
	params  Params
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry binds a registry to kv.
func NewRegistry(kv state.KV, params Params) *Registry {
	return &Registry{
		state:   kv,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the registration clock.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) now() uint64 {
	if r == nil || r.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(r.nowFn())
}

// Params returns the configured parameters.
func (r *Registry) Params() Params { return r.params }

// Nonce returns the number of index draws performed so far.
func (r *Registry) Nonce() (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	var nonce uint64
	if _, err := r.state.KVGet(keyNonce, &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (r *Registry) draw(prefix ...[]byte) (uint8, error) {
	nonce, err := r.Nonce()
	if err != nil {
		return 0, err
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	seed := ethcrypto.Keccak256(append(prefix, n[:])...)
	if err := r.state.KVPut(keyNonce, nonce+1); err != nil {
		return 0, err
	}
	return uint8(binary.BigEndian.Uint64(seed[:8]) % uint64(r.params.IndexSpace)), nil
}

// DrawRequestIndex picks the routing index for a new status request as
// keccak256(caller || flightKey || nonce).
func (r *Registry) DrawRequestIndex(caller [20]byte, flightKey [32]byte) (uint8, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	return r.draw(caller[:], flightKey[:])
}

func (r *Registry) drawIndexes(participant [20]byte, stake *big.Int) ([]uint8, error) {
	word := make([]byte, 32)
	stake.FillBytes(word)
	indexes := make([]uint8, 0, r.params.IndexCount)
	for len(indexes) < r.params.IndexCount {
		idx, err := r.draw(participant[:], word)
		if err != nil {
			return nil, err
		}
		duplicate := false
		for _, existing := range indexes {
			if existing == idx {
				duplicate = true
				break
			}
		}
		if !duplicate {
			indexes = append(indexes, idx)
		}
	}
	return indexes, nil
}

// Get loads an oracle record.
func (r *Registry) Get(addr [20]byte) (*Oracle, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	o := new(Oracle)
	ok, err := r.state.KVGet(oracleKey(addr), o)
	if err != nil || !ok {
		return nil, false, err
	}
	return o.Clone(), true, nil
}

// IsRegistered reports whether addr is a registered oracle.
func (r *Registry) IsRegistered(addr [20]byte) (bool, error) {
	_, ok, err := r.Get(addr)
	return ok, err
}

// Indexes returns the routing indexes assigned to addr.
func (r *Registry) Indexes(addr [20]byte) ([]uint8, error) {
	o, ok, err := r.Get(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	return o.Indexes, nil
}

// Count returns the number of registered oracles.
func (r *Registry) Count() (int, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	list, err := r.state.KVGetList(keyIndex)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// Register admits participant with the attached stake. Registering again
// returns the existing record with Existing set.
func (r *Registry) Register(participant [20]byte, stake *big.Int) (*Registration, error) {
	existing, ok, err := r.Get(participant)
	if err != nil {
		return nil, err
	}
	if ok {
		return &Registration{Oracle: existing, Existing: true}, nil
	}
	if stake == nil || stake.Sign() < 0 || stake.Cmp(r.params.MinStake) < 0 {
		return nil, ErrInsufficientStake
	}
	if stake.BitLen() > 256 {
		return nil, ErrStakeTooLarge
	}
	indexes, err := r.drawIndexes(participant, stake)
	if err != nil {
		return nil, err
	}
	o := &Oracle{
		Address:      participant,
		Stake:        new(big.Int).Set(stake),
		Indexes:      indexes,
		RegisteredAt: r.now(),
	}
	if err := r.state.KVPut(oracleKey(participant), o); err != nil {
		return nil, err
	}
	if err := r.state.KVAppend(keyIndex, participant[:]); err != nil {
		return nil, err
	}
	r.emitter.Emit(NewRegisteredEvent(o))
	return &Registration{Oracle: o.Clone()}, nil
}
