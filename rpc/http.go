package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	fserrors "flightsurety/core/errors"
	"flightsurety/crypto"
	"flightsurety/native/bank"
	"flightsurety/native/flight"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
	codeUnavailable    = -32005
	codeUnauthorized   = -32003
)

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeNodeError maps a node error onto a JSON-RPC error.
func (s *Server) writeNodeError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, fserrors.ErrUnknownEntity):
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, err.Error(), nil)
	case errors.Is(err, fserrors.ErrInvalidAmount), errors.Is(err, fserrors.ErrInvalidState),
		errors.Is(err, fserrors.ErrNotAuthorized), errors.Is(err, fserrors.ErrExceedsCap):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		s.logger.Error("query failed", slog.String("method", req.Method), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", nil)
	}
}

func writeNotFound(w http.ResponseWriter, req *RPCRequest, what string) {
	writeError(w, http.StatusNotFound, req.ID, codeNotFound, what+" not found", nil)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	if s.node == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeUnavailable, "node unavailable", nil)
		return
	}

	switch req.Method {
	case "fs_status":
		s.handleStatus(w, r, req)
	case "fs_isOperational":
		s.handleIsOperational(w, r, req)
	case "fs_getBalance":
		s.handleGetBalance(w, r, req)
	case "fs_isAirline":
		s.handleIsAirline(w, r, req, false)
	case "fs_isFundedAirline":
		s.handleIsAirline(w, r, req, true)
	case "fs_getAirline":
		s.handleGetAirline(w, r, req)
	case "fs_listAirlines":
		s.handleListAirlines(w, r, req)
	case "fs_flightKey":
		s.handleFlightKey(w, r, req)
	case "fs_getFlight":
		s.handleGetFlight(w, r, req)
	case "fs_listFlights":
		s.handleListFlights(w, r, req)
	case "fs_isOracleRegistered":
		s.handleIsOracleRegistered(w, r, req)
	case "fs_getMyIndexes":
		s.handleGetMyIndexes(w, r, req)
	case "fs_getOracle":
		s.handleGetOracle(w, r, req)
	case "fs_getRequest":
		s.handleGetRequest(w, r, req)
	case "fs_isResponseOpen":
		s.handleIsResponseOpen(w, r, req)
	case "fs_getInsuranceAmount":
		s.handleGetInsuranceAmount(w, r, req)
	case "fs_getPolicy":
		s.handleGetPolicy(w, r, req)
	case "fs_policiesOf":
		s.handlePoliciesOf(w, r, req)
	case "fs_policiesFor":
		s.handlePoliciesFor(w, r, req)
	case "fs_withdrawable":
		s.handleWithdrawable(w, r, req)
	case "fs_faucet":
		if !s.cfg.Faucet {
			writeError(w, http.StatusForbidden, req.ID, codeMethodNotFound, "faucet disabled", nil)
			return
		}
		if err := s.auth.Authorize(r, FaucetScope); err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, errMissingScope) {
				status = http.StatusForbidden
			}
			writeError(w, status, req.ID, codeUnauthorized, err.Error(), nil)
			return
		}
		s.handleFaucet(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

// --- parameter decoding ---

func requireParams(req *RPCRequest, n int) error {
	if len(req.Params) < n {
		return fmt.Errorf("expected %d parameter(s), got %d", n, len(req.Params))
	}
	return nil
}

func stringParam(req *RPCRequest, i int) (string, error) {
	var value string
	if err := json.Unmarshal(req.Params[i], &value); err != nil {
		return "", fmt.Errorf("parameter %d must be a string", i)
	}
	return strings.TrimSpace(value), nil
}

func addressParam(req *RPCRequest, i int) ([20]byte, error) {
	value, err := stringParam(req, i)
	if err != nil {
		return [20]byte{}, err
	}
	return crypto.ParseAddress(value)
}

func keyParam(req *RPCRequest, i int) ([32]byte, error) {
	var key [32]byte
	value, err := stringParam(req, i)
	if err != nil {
		return key, err
	}
	raw, err := hexutil.Decode(value)
	if err != nil {
		return key, fmt.Errorf("parameter %d: %w", i, err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("parameter %d must be 32 bytes", i)
	}
	copy(key[:], raw)
	return key, nil
}

func uintParam(req *RPCRequest, i int) (uint64, error) {
	var value uint64
	if err := json.Unmarshal(req.Params[i], &value); err != nil {
		return 0, fmt.Errorf("parameter %d must be an unsigned integer", i)
	}
	return value, nil
}

// requestTuple decodes [index, airline, designator, timestamp].
type requestTuple struct {
	index      uint8
	airline    [20]byte
	designator string
	timestamp  uint64
}

func tupleParams(req *RPCRequest) (requestTuple, error) {
	var t requestTuple
	if err := requireParams(req, 4); err != nil {
		return t, err
	}
	index, err := uintParam(req, 0)
	if err != nil {
		return t, err
	}
	if index > 255 {
		return t, fmt.Errorf("index must be within 0..255")
	}
	t.index = uint8(index)
	if t.airline, err = addressParam(req, 1); err != nil {
		return t, err
	}
	if t.designator, err = stringParam(req, 2); err != nil {
		return t, err
	}
	if t.timestamp, err = uintParam(req, 3); err != nil {
		return t, err
	}
	return t, nil
}

func invalidParams(w http.ResponseWriter, req *RPCRequest, err error) {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
}

// --- handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	operational, err := s.node.IsOperational()
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	admins, err := s.node.Admins()
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	pending, approvals, _, err := s.node.PendingOperatingStatus()
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	vault, err := s.node.VaultBalance()
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	resp := StatusResponse{
		Owner:       hexAddress(s.node.Owner()),
		Operational: operational,
		Admins:      make([]string, 0, len(admins)),
		Pending:     pendingResponse(pending, approvals),
		Vault:       formatAmount(vault),
	}
	for _, admin := range admins {
		resp.Admins = append(resp.Admins, hexAddress(admin))
	}
	writeResult(w, req.ID, resp)
}

func (s *Server) handleIsOperational(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	operational, err := s.node.IsOperational()
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, operational)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	withdrawable, err := s.node.Withdrawable(addr)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, BalanceResponse{
		Address:      hexAddress(addr),
		Balance:      formatAmount(balance),
		Withdrawable: formatAmount(withdrawable),
	})
}

func (s *Server) handleIsAirline(w http.ResponseWriter, _ *http.Request, req *RPCRequest, funded bool) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	var ok bool
	if funded {
		ok, err = s.node.IsFundedAirline(addr)
	} else {
		ok, err = s.node.IsAirline(addr)
	}
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) airlineView(addr [20]byte) (*AirlineResponse, error) {
	record, ok, err := s.node.Airline(addr)
	if err != nil || !ok {
		return nil, err
	}
	stake, err := s.node.AirlineStake(addr)
	if err != nil {
		return nil, err
	}
	votes, err := s.node.AirlineVotes(addr)
	if err != nil {
		return nil, err
	}
	view := airlineResponse(record, stake, votes)
	return &view, nil
}

func (s *Server) handleGetAirline(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	view, err := s.airlineView(addr)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	if view == nil {
		writeNotFound(w, req, "airline")
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleListAirlines(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	airlines, err := s.node.Airlines()
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	out := make([]AirlineResponse, 0, len(airlines))
	for _, a := range airlines {
		view, err := s.airlineView(a.Address)
		if err != nil {
			s.writeNodeError(w, req, err)
			return
		}
		if view != nil {
			out = append(out, *view)
		}
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleFlightKey(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 3); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	designator, err := stringParam(req, 1)
	if err == nil {
		designator, err = flight.NormalizeDesignator(designator)
	}
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	timestamp, err := uintParam(req, 2)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	writeResult(w, req.ID, hexKey(flight.Key(addr, designator, timestamp)))
}

func (s *Server) handleGetFlight(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	key, err := keyParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	f, ok, err := s.node.Flight(key)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	if !ok {
		writeNotFound(w, req, "flight")
		return
	}
	writeResult(w, req.ID, flightResponse(f))
}

// handleListFlights lists every flight, or one airline's when an address is
// given.
func (s *Server) handleListFlights(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 0 {
		addr, err := addressParam(req, 0)
		if err != nil {
			invalidParams(w, req, err)
			return
		}
		flights, err := s.node.FlightsByAirline(addr)
		if err != nil {
			s.writeNodeError(w, req, err)
			return
		}
		writeResult(w, req.ID, flightResponses(flights))
		return
	}
	flights, err := s.node.Flights()
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, flightResponses(flights))
}

func (s *Server) handleIsOracleRegistered(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	ok, err := s.node.IsOracleRegistered(addr)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handleGetMyIndexes(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	indexes, err := s.node.OracleIndexes(addr)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, indexList(indexes))
}

func (s *Server) handleGetOracle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	o, ok, err := s.node.Oracle(addr)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	if !ok {
		writeNotFound(w, req, "oracle")
		return
	}
	writeResult(w, req.ID, oracleResponse(o))
}

func (s *Server) handleGetRequest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	t, err := tupleParams(req)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	request, ok, err := s.node.OracleRequest(t.index, t.airline, t.designator, t.timestamp)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	if !ok {
		writeNotFound(w, req, "request")
		return
	}
	writeResult(w, req.ID, requestResponse(request))
}

func (s *Server) handleIsResponseOpen(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	t, err := tupleParams(req)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	open, err := s.node.IsResponseOpen(t.index, t.airline, t.designator, t.timestamp)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, open)
}

func policyParams(req *RPCRequest) ([32]byte, [20]byte, error) {
	if err := requireParams(req, 2); err != nil {
		return [32]byte{}, [20]byte{}, err
	}
	key, err := keyParam(req, 0)
	if err != nil {
		return key, [20]byte{}, err
	}
	insuree, err := addressParam(req, 1)
	return key, insuree, err
}

func (s *Server) handleGetInsuranceAmount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	key, insuree, err := policyParams(req)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := s.node.InsuranceAmount(key, insuree)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatAmount(amount))
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	key, insuree, err := policyParams(req)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	policy, ok, err := s.node.Policy(key, insuree)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	if !ok {
		writeNotFound(w, req, "policy")
		return
	}
	writeResult(w, req.ID, policyResponse(policy))
}

func (s *Server) handlePoliciesOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	insuree, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	policies, err := s.node.PoliciesOf(insuree)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, policyResponses(policies))
}

func (s *Server) handlePoliciesFor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	key, err := keyParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	policies, err := s.node.PoliciesFor(key)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, policyResponses(policies))
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if err := requireParams(req, 1); err != nil {
		invalidParams(w, req, err)
		return
	}
	insuree, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := s.node.Withdrawable(insuree)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatAmount(amount))
}

// handleFaucet credits [address, amount] for local testing.
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if err := requireParams(req, 2); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := addressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	raw, err := stringParam(req, 1)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := bank.ParseUnits(raw)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.node.Credit(r.Context(), addr, amount); err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	s.logger.Info("faucet credit", slog.String("address", hexAddress(addr)), slog.String("amount", raw))
	balance, err := s.node.Balance(addr)
	if err != nil {
		s.writeNodeError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatAmount(balance))
}
