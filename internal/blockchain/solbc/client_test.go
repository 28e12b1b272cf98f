package solbc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/rpc"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// jsonRPCServer answers each method with a canned result (or error object).
type jsonRPCServer struct {
	mu      sync.Mutex
	results map[string]string
	errors  map[string]string
	calls   map[string]int
	params  map[string]json.RawMessage
}

func newJSONRPCServer(t *testing.T) (*jsonRPCServer, *httptest.Server) {
	s := &jsonRPCServer{
		results: map[string]string{},
		errors:  map[string]string{},
		calls:   map[string]int{},
		params:  map[string]json.RawMessage{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls[req.Method]++
		s.params[req.Method] = req.Params
		result, hasResult := s.results[req.Method]
		rpcErr := s.errors[req.Method]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case rpcErr != "":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":` + rpcErr + `}`))
		case hasResult:
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
		default:
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"Method not found"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *jsonRPCServer) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func newTestClient(t *testing.T, urls ...string) *Client {
	t.Helper()
	c, err := NewClient(urls, rpc.Options{RetryAttempts: 2, RetryDelay: time.Millisecond, RequestTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestClient_GetLatestBlockhash(t *testing.T) {
	s, srv := newJSONRPCServer(t)
	hash := solana.Hash{1, 2, 3}
	s.results["getLatestBlockhash"] = `{"context":{"slot":10},"value":{"blockhash":"` + hash.String() + `","lastValidBlockHeight":150}}`

	got, err := newTestClient(t, srv.URL).GetLatestBlockhash(context.Background(), solanarpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, hash, got.Hash)
	assert.Equal(t, uint64(150), got.LastValidBlockHeight)
}

func TestClient_GetSignatureStatuses(t *testing.T) {
	s, srv := newJSONRPCServer(t)
	s.results["getSignatureStatuses"] = `{"context":{"slot":10},"value":[null,{"slot":5,"confirmations":null,"err":null,"confirmationStatus":"confirmed"}]}`

	statuses, err := newTestClient(t, srv.URL).GetSignatureStatuses(context.Background(), solana.Signature{1}, solana.Signature{2})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Nil(t, statuses[0])
	require.NotNil(t, statuses[1])
	assert.Equal(t, uint64(5), statuses[1].Slot)
	assert.Equal(t, solanarpc.ConfirmationStatusConfirmed, statuses[1].ConfirmationStatus)
}

func TestClient_ClusterInfo(t *testing.T) {
	s, srv := newJSONRPCServer(t)
	leader := solana.NewWallet().PublicKey()
	s.results["getClusterNodes"] = `[{"pubkey":"` + leader.String() + `","gossip":"1.2.3.4:8001","tpu":"1.2.3.4:8003","rpc":null,"version":"1.18.0"},{"pubkey":"` + solana.NewWallet().PublicKey().String() + `","gossip":null,"tpu":null,"rpc":null,"version":null}]`
	s.results["getEpochInfo"] = `{"absoluteSlot":500,"blockHeight":400,"epoch":3,"slotIndex":100,"slotsInEpoch":432000,"transactionCount":null}`
	s.results["getSlotLeaders"] = `["` + leader.String() + `","` + leader.String() + `"]`

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	nodes, err := c.GetClusterNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, blockchain.ClusterNode{Pubkey: leader, TPU: "1.2.3.4:8003"}, nodes[0])
	assert.Empty(t, nodes[1].TPU)

	epoch, err := c.GetEpochInfo(ctx, solanarpc.CommitmentProcessed)
	require.NoError(t, err)
	assert.Equal(t, uint64(400+432000), epoch.EndSlot())

	leaders, err := c.GetSlotLeaders(ctx, 500, 2)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{leader, leader}, leaders)
}

func TestClient_GetProgramAccounts(t *testing.T) {
	s, srv := newJSONRPCServer(t)
	key := solana.NewWallet().PublicKey()
	s.results["getProgramAccounts"] = `[{"pubkey":"` + key.String() + `","account":{"data":["AQID","base64"],"executable":false,"lamports":10,"owner":"` + solana.SystemProgramID.String() + `","rentEpoch":0}}]`

	res, err := newTestClient(t, srv.URL).GetProgramAccounts(context.Background(), solana.SystemProgramID, &solanarpc.GetProgramAccountsOpts{
		Encoding: solana.EncodingBase64,
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, key, res[0].Pubkey)
	assert.Equal(t, []byte{1, 2, 3}, res[0].Account.Data.GetBinary())
}

func TestClient_NodeErrorIsNotRetried(t *testing.T) {
	s, srv := newJSONRPCServer(t)
	s.errors["getBlockHeight"] = `{"code":-32005,"message":"Node is behind"}`

	_, err := newTestClient(t, srv.URL).GetBlockHeight(context.Background(), solanarpc.CommitmentConfirmed)
	require.Error(t, err)

	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "getBlockHeight", rpcErr.Method)
	assert.Equal(t, 1, s.callCount("getBlockHeight"))
}

func TestClient_FailsOverToNextNode(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	s, srv := newJSONRPCServer(t)
	s.results["getSlot"] = `777`

	slot, err := newTestClient(t, deadURL, srv.URL).GetSlot(context.Background(), solanarpc.CommitmentProcessed)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), slot)
	assert.Equal(t, 1, s.callCount("getSlot"))
}
