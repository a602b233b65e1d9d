package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"flightsurety/core"
	"flightsurety/core/types"
	"flightsurety/native/airline"
	"flightsurety/native/bank"
	"flightsurety/storage"
	"flightsurety/storage/eventlog"
)

var (
	testOwner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testAirline = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func newTestNode(t *testing.T) *core.Node {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), testOwner, core.DefaultParams(),
		core.WithNowFunc(func() int64 { return 1_700_000_000 }))
	require.NoError(t, err)
	t.Cleanup(node.Close)
	return node
}

type rpcResult struct {
	status int
	resp   RPCResponse
	raw    json.RawMessage
}

func call(t *testing.T, handler http.Handler, method string, params ...interface{}) rpcResult {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var envelope struct {
		RPCResponse
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rpcResult{status: rec.Code, resp: envelope.RPCResponse, raw: envelope.Result}
}

func (r rpcResult) decode(t *testing.T, dst interface{}) {
	t.Helper()
	require.Nil(t, r.resp.Error, "unexpected rpc error")
	require.NoError(t, json.Unmarshal(r.raw, dst))
}

// seedFlight admits and funds testAirline and registers flight F1.
func seedFlight(t *testing.T, node *core.Node) [32]byte {
	t.Helper()
	ctx := context.Background()
	_, err := node.RegisterAirline(ctx, testOwner, testAirline)
	require.NoError(t, err)
	require.NoError(t, node.Credit(ctx, testAirline, bank.MustParseUnits("2")))
	_, err = node.FundAirline(ctx, testAirline, bank.MustParseUnits("1"))
	require.NoError(t, err)
	f, err := node.RegisterFlight(ctx, testAirline, "F1")
	require.NoError(t, err)
	return f.Key
}

func TestHealthz(t *testing.T) {
	server := NewServer(newTestNode(t), nil, ServerConfig{}, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestStatusReportsOwnerAndOperational(t *testing.T) {
	handler := NewServer(newTestNode(t), nil, ServerConfig{}, nil).Handler()

	var status StatusResponse
	call(t, handler, "fs_status").decode(t, &status)
	require.Equal(t, testOwner.Hex(), status.Owner)
	require.True(t, status.Operational)
	require.Equal(t, []string{testOwner.Hex()}, status.Admins)
	require.Nil(t, status.Pending)
	require.Equal(t, "0", status.Vault)
}

func TestFlightAndAirlineQueries(t *testing.T) {
	node := newTestNode(t)
	key := seedFlight(t, node)
	handler := NewServer(node, nil, ServerConfig{}, nil).Handler()

	var funded bool
	call(t, handler, "fs_isFundedAirline", testAirline.Hex()).decode(t, &funded)
	require.True(t, funded)

	var view AirlineResponse
	call(t, handler, "fs_getAirline", testAirline.Hex()).decode(t, &view)
	require.Equal(t, airline.StatusFunded.String(), view.Status)
	require.Equal(t, "1", view.Stake)

	var f FlightResponse
	call(t, handler, "fs_getFlight", common.Hash(key).Hex()).decode(t, &f)
	require.Equal(t, "F1", f.Designator)
	require.Equal(t, testAirline.Hex(), f.Airline)
	require.False(t, f.Finalized)

	var derived string
	call(t, handler, "fs_flightKey", testAirline.Hex(), "F1", f.Timestamp).decode(t, &derived)
	require.Equal(t, common.Hash(key).Hex(), derived)
	call(t, handler, "fs_flightKey", testAirline.Hex(), " F1 ", f.Timestamp).decode(t, &derived)
	require.Equal(t, common.Hash(key).Hex(), derived)
	blank := call(t, handler, "fs_flightKey", testAirline.Hex(), "  ", f.Timestamp)
	require.Equal(t, http.StatusBadRequest, blank.status)
	require.Equal(t, codeInvalidParams, blank.resp.Error.Code)

	var flights []FlightResponse
	call(t, handler, "fs_listFlights", testAirline.Hex()).decode(t, &flights)
	require.Len(t, flights, 1)

	var balance BalanceResponse
	call(t, handler, "fs_getBalance", testAirline.Hex()).decode(t, &balance)
	require.Equal(t, "1", balance.Balance)
	require.Equal(t, "0", balance.Withdrawable)
}

func TestQueryErrors(t *testing.T) {
	handler := NewServer(newTestNode(t), nil, ServerConfig{}, nil).Handler()

	missing := call(t, handler, "fs_getFlight", common.Hash{0x01}.Hex())
	require.Equal(t, http.StatusNotFound, missing.status)
	require.NotNil(t, missing.resp.Error)
	require.Equal(t, codeNotFound, missing.resp.Error.Code)

	badKey := call(t, handler, "fs_getFlight", "0x1234")
	require.Equal(t, http.StatusBadRequest, badKey.status)
	require.Equal(t, codeInvalidParams, badKey.resp.Error.Code)

	noParams := call(t, handler, "fs_getBalance")
	require.Equal(t, http.StatusBadRequest, noParams.status)

	unknown := call(t, handler, "fs_transfer")
	require.Equal(t, http.StatusNotFound, unknown.status)
	require.Equal(t, codeMethodNotFound, unknown.resp.Error.Code)

	closed := call(t, handler, "fs_isResponseOpen", 3, testAirline.Hex(), "F1", 1)
	require.Equal(t, http.StatusOK, closed.status)
	var open bool
	closed.decode(t, &open)
	require.False(t, open)
}

func TestMalformedEnvelope(t *testing.T) {
	handler := NewServer(newTestNode(t), nil, ServerConfig{}, nil).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON payload")
}

func TestFaucet(t *testing.T) {
	node := newTestNode(t)
	disabled := NewServer(node, nil, ServerConfig{}, nil).Handler()
	res := call(t, disabled, "fs_faucet", testAirline.Hex(), "5")
	require.Equal(t, http.StatusForbidden, res.status)

	enabled := NewServer(node, nil, ServerConfig{Faucet: true}, nil).Handler()
	var balance string
	call(t, enabled, "fs_faucet", testAirline.Hex(), "5").decode(t, &balance)
	require.Equal(t, "5", balance)

	negative := call(t, enabled, "fs_faucet", testAirline.Hex(), "-1")
	require.Equal(t, http.StatusBadRequest, negative.status)
}

func faucetRequest(t *testing.T, token string) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "fs_faucet",
		"params":  []interface{}{testAirline.Hex(), "3"},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestFaucetRequiresScopedToken(t *testing.T) {
	handler := NewServer(newTestNode(t), nil, ServerConfig{
		Faucet:       true,
		FaucetSecret: "s3cret",
		TokenIssuer:  "flightsurety-dev",
	}, nil).Handler()
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong secret", token: signToken(t, "other", jwt.MapClaims{"scope": "faucet", "iss": "flightsurety-dev", "exp": exp}), status: http.StatusUnauthorized},
		{name: "wrong issuer", token: signToken(t, "s3cret", jwt.MapClaims{"scope": "faucet", "iss": "elsewhere", "exp": exp}), status: http.StatusUnauthorized},
		{name: "expired", token: signToken(t, "s3cret", jwt.MapClaims{"scope": "faucet", "iss": "flightsurety-dev", "exp": time.Now().Add(-time.Hour).Unix()}), status: http.StatusUnauthorized},
		{name: "no scope", token: signToken(t, "s3cret", jwt.MapClaims{"scope": "read", "iss": "flightsurety-dev", "exp": exp}), status: http.StatusForbidden},
		{name: "valid", token: signToken(t, "s3cret", jwt.MapClaims{"scope": "read faucet", "iss": "flightsurety-dev", "exp": exp}), status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, faucetRequest(t, tc.token))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

type stubEventLog struct {
	filter  eventlog.Filter
	entries []eventlog.Entry
}

func (s *stubEventLog) List(_ context.Context, filter eventlog.Filter) ([]eventlog.Entry, error) {
	s.filter = filter
	return s.entries, nil
}

func TestListEvents(t *testing.T) {
	log := &stubEventLog{entries: []eventlog.Entry{
		{Seq: 4, Event: types.NewEvent("flight.registered")},
		{Seq: 7, Event: types.NewEvent("flight.registered")},
	}}
	handler := NewServer(newTestNode(t), log, ServerConfig{}, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?type=flight.registered&after=3&limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "flight.registered", log.filter.Type)
	require.EqualValues(t, 3, log.filter.AfterSeq)
	require.Equal(t, 2, log.filter.Limit)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	require.EqualValues(t, 7, resp.Next)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?limit=zero", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEventsWithoutArchive(t *testing.T) {
	handler := NewServer(newTestNode(t), nil, ServerConfig{}, nil).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	handler := NewServer(newTestNode(t), nil, ServerConfig{RateLimit: 0.001, Burst: 1}, nil).Handler()

	first := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	first.RemoteAddr = "10.0.0.1:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	again := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	again.RemoteAddr = "10.0.0.1:1001"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, again)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	other.RemoteAddr = "10.0.0.2:1000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	require.Equal(t, "10.0.0.5", clientID(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", clientID(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", clientID(req))
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	node := newTestNode(t)
	srv := httptest.NewServer(NewServer(node, nil, ServerConfig{}, nil).Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?types=" + airline.EventTypeAirlineAdmitted
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return node.Bus().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = node.RegisterAirline(ctx, testOwner, testAirline)
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, airline.EventTypeAirlineAdmitted, evt.Type)
}
