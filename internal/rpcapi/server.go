// Package rpcapi exposes a read-only JSON-RPC 2.0 query surface over a
// Bank: confirmTransaction, getBalance, getFinality, getLastId and
// getTransactionCount, matching the flat (unnamespaced) method names and
// the -32600/-32602 error-code split of the reference RPC surface.
package rpcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mr-tron/base58"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/types"
)

// Error codes per the JSON-RPC 2.0 spec, matching the reference server's
// usage: -32600 for a malformed/wrong-length parameter value,
// -32602 for a parameter of the wrong JSON type.
const (
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// BankAPI answers read-only queries against a Bank. Every method is safe
// for concurrent use: Bank itself serializes the mutations these queries
// read past.
type BankAPI struct {
	bank *bank.Bank
}

// NewBankAPI wraps b for RPC serving.
func NewBankAPI(b *bank.Bank) *BankAPI {
	return &BankAPI{bank: b}
}

func (a *BankAPI) confirmTransaction(params []string) (interface{}, *rpcError) {
	if len(params) != 1 {
		return nil, invalidRequest()
	}
	sig, err := types.SignatureFromBase58(params[0])
	if err != nil {
		return nil, invalidRequest()
	}
	return a.bank.HasSignature(sig), nil
}

func (a *BankAPI) getBalance(params []string) (interface{}, *rpcError) {
	if len(params) != 1 {
		return nil, invalidRequest()
	}
	pk, err := types.PubkeyFromBase58(params[0])
	if err != nil {
		return nil, invalidRequest()
	}
	return a.bank.GetBalance(pk), nil
}

func (a *BankAPI) getFinality([]string) (interface{}, *rpcError) {
	return int64(a.bank.Finality() / time.Millisecond), nil
}

func (a *BankAPI) getLastId([]string) (interface{}, *rpcError) {
	id := a.bank.LastID()
	return base58.Encode(id[:]), nil
}

func (a *BankAPI) getTransactionCount([]string) (interface{}, *rpcError) {
	return a.bank.TransactionCount(), nil
}

func invalidRequest() *rpcError {
	return &rpcError{Code: codeInvalidRequest, Message: "Invalid request"}
}

func invalidParams(reason string) *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "Invalid params: " + reason}
}

// Server serves BankAPI over HTTP with CORS enabled for any origin, as the
// reference implementation does.
type Server struct {
	api  *BankAPI
	http *http.Server
}

// NewServer constructs a Server bound to addr. Call Start to begin
// listening.
func NewServer(b *bank.Bank, addr string) *Server {
	s := &Server{api: NewBankAPI(b)}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in a background goroutine and returns once the
// listener is bound, reporting the socket's actual address (useful for
// tests that bind port 0).
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("rpcapi: server stopped", "err", err)
		}
	}()
	return ln.Addr(), nil
}

// Close shuts the HTTP server down gracefully.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, invalidRequest())
		return
	}

	result, rpcErr := s.dispatch(req)
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// dispatch decodes params as a list of strings. A params element of the
// wrong JSON type (e.g. a bare integer where a base58 string is expected)
// fails here with -32602, matching confirmTransaction([1234567890]) with
// the reference serde message "invalid type: integer `1234567890`,
// expected a string".
func (a *rpcRequest) decodeStringParams() ([]string, *rpcError) {
	if len(a.Params) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(a.Params, &raw); err != nil {
		return nil, invalidParams("invalid type: expected an array")
	}
	params := make([]string, len(raw))
	for i, elem := range raw {
		if err := json.Unmarshal(elem, &params[i]); err != nil {
			return nil, invalidParams(describeNonString(elem))
		}
	}
	return params, nil
}

// describeNonString renders a serde-style "invalid type: <kind> `<value>`,
// expected a string" message for a JSON token that failed to decode as a
// string.
func describeNonString(raw json.RawMessage) string {
	token := bytes.TrimSpace(raw)
	switch {
	case len(token) == 0 || string(token) == "null":
		return "invalid type: null, expected a string"
	case token[0] == '{':
		return "invalid type: map, expected a string"
	case token[0] == '[':
		return "invalid type: sequence, expected a string"
	case string(token) == "true" || string(token) == "false":
		return fmt.Sprintf("invalid type: boolean `%s`, expected a string", token)
	default:
		if _, err := strconv.ParseInt(string(token), 10, 64); err == nil {
			return fmt.Sprintf("invalid type: integer `%s`, expected a string", token)
		}
		if _, err := strconv.ParseFloat(string(token), 64); err == nil {
			return fmt.Sprintf("invalid type: floating point `%s`, expected a string", token)
		}
		return fmt.Sprintf("invalid type: %s, expected a string", token)
	}
}

func (s *Server) dispatch(req rpcRequest) (interface{}, *rpcError) {
	params, paramErr := req.decodeStringParams()
	if paramErr != nil {
		return nil, paramErr
	}
	switch req.Method {
	case "confirmTransaction":
		return s.api.confirmTransaction(params)
	case "getBalance":
		return s.api.getBalance(params)
	case "getFinality":
		return s.api.getFinality(params)
	case "getLastId":
		return s.api.getLastId(params)
	case "getTransactionCount":
		return s.api.getTransactionCount(params)
	default:
		return nil, &rpcError{Code: -32601, Message: "Method not found"}
	}
}

func writeError(w http.ResponseWriter, id json.RawMessage, e *rpcError) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: e})
}
