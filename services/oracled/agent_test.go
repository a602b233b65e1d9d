package oracled

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flightsurety/core/events"
	"flightsurety/core/types"
	"flightsurety/native/flight"
	"flightsurety/native/oracle"
)

type fakeChain struct {
	registered   bool
	failures     int
	registerCall int
	credited     *big.Int
	open         bool
	submitErr    error
	response     *oracle.Response
	submitted    []flight.StatusCode
}

func (c *fakeChain) Balance([20]byte) (*big.Int, error) { return big.NewInt(0), nil }

func (c *fakeChain) Credit(_ context.Context, _ [20]byte, amount *big.Int) error {
	c.credited = amount
	return nil
}

func (c *fakeChain) IsOracleRegistered([20]byte) (bool, error) { return c.registered, nil }

func (c *fakeChain) OracleIndexes([20]byte) ([]uint8, error) { return []uint8{1, 4, 7}, nil }

func (c *fakeChain) RegisterOracle(_ context.Context, caller [20]byte, value *big.Int) (*oracle.Registration, error) {
	c.registerCall++
	if c.registerCall <= c.failures {
		return nil, errors.New("ledger busy")
	}
	c.registered = true
	return &oracle.Registration{Oracle: &oracle.Oracle{Address: caller, Stake: value, Indexes: []uint8{2, 5, 8}}}, nil
}

func (c *fakeChain) IsResponseOpen(uint8, [20]byte, string, uint64) (bool, error) { return c.open, nil }

func (c *fakeChain) SubmitOracleResponse(_ context.Context, _ [20]byte, _ uint8, _ [20]byte, _ string, _ uint64, code flight.StatusCode) (*oracle.Response, error) {
	c.submitted = append(c.submitted, code)
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	if c.response != nil {
		return c.response, nil
	}
	return &oracle.Response{Counted: true, Votes: 1}, nil
}

func (c *fakeChain) Subscribe(...string) *events.Subscription { return nil }

func testAgent(chain Chain, journal Journal) *Agent {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newAgent([20]byte{0x0a}, chain, big.NewInt(100), FixedStatus(flight.StatusLateAirline), journal, logger)
}

func TestRegisterWithRetryRecovers(t *testing.T) {
	chain := &fakeChain{failures: 2}
	agent := testAgent(chain, NewMemJournal())
	require.NoError(t, agent.RegisterWithRetry(context.Background(), 3, time.Millisecond))
	require.Equal(t, 3, chain.registerCall)
	require.Equal(t, []uint8{2, 5, 8}, agent.Indexes())
}

func TestRegisterWithRetryGivesUp(t *testing.T) {
	chain := &fakeChain{failures: 5}
	agent := testAgent(chain, NewMemJournal())
	err := agent.RegisterWithRetry(context.Background(), 2, time.Millisecond)
	require.ErrorContains(t, err, "after 2 attempts")
	require.Equal(t, 2, chain.registerCall)
}

func TestRegisterWithRetrySkipsRegisteredOracle(t *testing.T) {
	chain := &fakeChain{registered: true}
	agent := testAgent(chain, NewMemJournal())
	require.NoError(t, agent.RegisterWithRetry(context.Background(), 3, time.Millisecond))
	require.Zero(t, chain.registerCall)
	require.Equal(t, []uint8{1, 4, 7}, agent.Indexes())
}

func TestRegisterFundsStakeWhenEnabled(t *testing.T) {
	chain := &fakeChain{}
	agent := testAgent(chain, NewMemJournal())
	agent.fund = true
	require.NoError(t, agent.RegisterWithRetry(context.Background(), 1, 0))
	require.Equal(t, big.NewInt(100), chain.credited)
}

func TestHandleSubmitsOnlyForOwnIndexes(t *testing.T) {
	chain := &fakeChain{open: true}
	agent := testAgent(chain, NewMemJournal())
	agent.setIndexes([]uint8{3})

	submitted, err := agent.Handle(context.Background(), Request{Index: 4, Designator: "F1"})
	require.NoError(t, err)
	require.False(t, submitted)

	submitted, err = agent.Handle(context.Background(), Request{Index: 3, Designator: "F1"})
	require.NoError(t, err)
	require.True(t, submitted)
	require.Equal(t, []flight.StatusCode{flight.StatusLateAirline}, chain.submitted)
}

func TestHandleJournalsSettledRequests(t *testing.T) {
	journal := NewMemJournal()
	chain := &fakeChain{open: false}
	agent := testAgent(chain, journal)
	agent.setIndexes([]uint8{3})
	req := Request{Index: 3, Designator: "F1", Timestamp: 1}

	submitted, err := agent.Handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, submitted)
	settled, err := journal.Settled(req.Key())
	require.NoError(t, err)
	require.True(t, settled)

	chain.open = true
	submitted, err = agent.Handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, submitted)
	require.Empty(t, chain.submitted)
}

func TestHandleJournalsClosedRejection(t *testing.T) {
	journal := NewMemJournal()
	chain := &fakeChain{open: true, submitErr: oracle.ErrRequestClosed}
	agent := testAgent(chain, journal)
	agent.setIndexes([]uint8{6})
	req := Request{Index: 6, Designator: "F2", Timestamp: 2}

	submitted, err := agent.Handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, submitted)
	settled, err := journal.Settled(req.Key())
	require.NoError(t, err)
	require.True(t, settled)
}

func TestHandleSurfacesOtherRejections(t *testing.T) {
	chain := &fakeChain{open: true, submitErr: oracle.ErrIndexMismatch}
	agent := testAgent(chain, NewMemJournal())
	agent.setIndexes([]uint8{6})
	_, err := agent.Handle(context.Background(), Request{Index: 6})
	require.ErrorIs(t, err, oracle.ErrIndexMismatch)
}

func TestParseRequest(t *testing.T) {
	evt := types.NewEvent(oracle.EventTypeOracleRequest).
		With("index", "7").
		With("airline", "0x00000000000000000000000000000000000000a1").
		With("designator", "F9").
		With("timestamp", "1700000000")
	req, err := ParseRequest(evt)
	require.NoError(t, err)
	require.Equal(t, uint8(7), req.Index)
	require.Equal(t, byte(0xa1), req.Airline[19])
	require.Equal(t, "F9", req.Designator)
	require.Equal(t, uint64(1_700_000_000), req.Timestamp)

	_, err = ParseRequest(types.NewEvent(oracle.EventTypeOracleClosed))
	require.Error(t, err)
	_, err = ParseRequest(types.NewEvent(oracle.EventTypeOracleRequest).With("index", "300"))
	require.Error(t, err)
}

func TestRandomStatusIsDeterministicPerSeed(t *testing.T) {
	a, b := NewRandomStatus(42), NewRandomStatus(42)
	for i := 0; i < 20; i++ {
		code := a.Status(Request{})
		require.True(t, code.Valid())
		require.Equal(t, code, b.Status(Request{}))
	}
}
