// Package rpctest provides an in-memory monero-wallet-rpc for tests
package rpctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/RogueTeam/paywatch/internal/walletrpc/rpc"
	"github.com/RogueTeam/paywatch/random"
)

const ErrCodeMethodNotFound = -32601

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	height    uint64
	addresses []string
	transfers []rpc.Transfer
	failures  int
	calls     map[string]int
}

func NewServer() (s *Server) {
	s = &Server{
		height:    1,
		addresses: []string{"4primary" + random.Hex(random.CryptoRand(), 16)},
		calls:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Url of the json_rpc endpoint
func (s *Server) Url() (url string) {
	return s.Server.URL + "/json_rpc"
}

// Pay simulates a confirmed incoming transfer to address
func (s *Server) Pay(address string, amount uint64) (txid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var index uint64
	var found bool
	for i, a := range s.addresses {
		if a == address {
			index, found = uint64(i), true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("unknown address: %s", address)
	}

	s.height++
	txid = random.Hex(random.CryptoRand(), 32)
	s.transfers = append(s.transfers, rpc.Transfer{
		Address:       address,
		Amount:        amount,
		Confirmations: 1,
		Height:        s.height,
		SubaddrIndex:  rpc.SubaddressIndex{Major: 0, Minor: index},
		Timestamp:     time.Now().Unix(),
		Txid:          txid,
		Type:          "in",
	})
	return txid, nil
}

// Fail makes the next n calls return an internal server error
func (s *Server) Fail(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = n
}

// Calls returns how many times method was invoked
func (s *Server) Calls(method string) (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

type request struct {
	Id     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[req.Method]++
	if s.failures > 0 {
		s.failures--
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}

	var result any
	switch req.Method {
	case "create_address":
		var params rpc.CreateAddressRequest
		json.Unmarshal(req.Params, &params)
		address := "8sub" + random.Hex(random.CryptoRand(), 16)
		s.addresses = append(s.addresses, address)
		result = rpc.CreateAddressResponse{Address: address, AddressIndex: uint64(len(s.addresses) - 1)}
	case "get_transfers":
		var params rpc.GetTransfersRequest
		json.Unmarshal(req.Params, &params)
		var res rpc.GetTransfersResponse
		if params.In {
			res.In = append(res.In, s.transfers...)
		}
		result = res
	case "get_balance":
		var res rpc.GetBalanceResponse
		for _, t := range s.transfers {
			res.Balance += t.Amount
			res.UnlockedBalance += t.Amount
		}
		result = res
	case "refresh":
		result = rpc.RefreshResponse{}
	case "get_version":
		result = rpc.GetVersionResponse{Version: 65562, Release: true}
	case "store":
		result = struct{}{}
	default:
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.Id,
			"error":   rpc.Error{Code: ErrCodeMethodNotFound, Message: "Method not found"},
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.Id,
		"result":  result,
	})
}
