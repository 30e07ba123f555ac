package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fluid-presale/internal/adapter/rpc"
	"fluid-presale/internal/config"
	domainService "fluid-presale/internal/domain/service"
	"fluid-presale/internal/pkg/apperrors"
)

const (
	testPresale = "0x1111111111111111111111111111111111111111"
	testToken   = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	testWallet  = "0x2222222222222222222222222222222222222222"
	testTxHash  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

// fakeNode answers the handful of JSON-RPC methods the ledger uses.
type fakeNode struct {
	mu             sync.Mutex
	calls          []string
	sendErr        string
	pendingPolls   int
	receiptStatus  string
	raisedResponse string
	lastSend       map[string]any
}

func (n *fakeNode) handle(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		n.mu.Lock()
		defer n.mu.Unlock()
		n.calls = append(n.calls, req.Method)

		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_call":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"` + n.raisedResponse + `"}`))
		case "eth_sendTransaction":
			if n.sendErr != "" {
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":4001,"message":"` + n.sendErr + `"}}`))
				return
			}
			n.lastSend = map[string]any{}
			_ = json.Unmarshal(req.Params[0], &n.lastSend)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"` + testTxHash + `"}`))
		case "eth_getTransactionReceipt":
			if n.pendingPolls > 0 {
				n.pendingPolls--
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
				return
			}
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"transactionHash":"` + testTxHash +
				`","blockNumber":"0x10","status":"` + n.receiptStatus + `"}}`))
		default:
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
		}
	}
}

func newTestLedger(t *testing.T, node *fakeNode) *EVMLedger {
	t.Helper()
	srv := httptest.NewServer(node.handle(t))
	t.Cleanup(srv.Close)

	client, err := rpc.NewClient(srv.URL, 2*time.Second, zap.NewNop())
	require.NoError(t, err)

	l, err := NewEVMLedger(client,
		config.PresaleConfig{PresaleContract: testPresale},
		config.LedgerConfig{ReceiptTimeout: 5 * time.Second, ReceiptPollInterval: 5 * time.Millisecond},
		zap.NewNop(),
	)
	require.NoError(t, err)
	return l
}

func TestEVMLedger_ReadRaised(t *testing.T) {
	// 1.5e18 as a 32-byte word
	word := new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	encoded := "0x" + hex.EncodeToString(common.LeftPadBytes(word.Bytes(), 32))

	l := newTestLedger(t, &fakeNode{raisedResponse: encoded})

	raised, err := l.ReadRaised(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised.Cmp(word))
}

func TestEVMLedger_ReadRaised_GarbageResult(t *testing.T) {
	l := newTestLedger(t, &fakeNode{raisedResponse: "0x01"})

	_, err := l.ReadRaised(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExternalServiceFailure)
}

func TestEVMLedger_PrepareCall(t *testing.T) {
	l := newTestLedger(t, &fakeNode{})
	ctx := context.Background()
	wallet := common.HexToAddress(testWallet)

	t.Run("approve encodes spender and amount", func(t *testing.T) {
		tx, err := l.PrepareCall(ctx, domainService.CallRequest{
			Interface: domainService.InterfaceERC20,
			Contract:  common.HexToAddress(testToken),
			Method:    "approve",
			Args:      []any{common.HexToAddress(testPresale), big.NewInt(100_500_000)},
			From:      wallet,
		})
		require.NoError(t, err)
		assert.Equal(t, "095ea7b3", hex.EncodeToString(tx.Data[:4]))
		assert.Len(t, tx.Data, 4+32+32)
		assert.Equal(t, common.HexToAddress(testToken), tx.To)
		assert.Equal(t, 0, tx.Value.Sign())
	})

	t.Run("payable purchase carries value", func(t *testing.T) {
		tx, err := l.PrepareCall(ctx, domainService.CallRequest{
			Interface: domainService.InterfacePresale,
			Contract:  common.HexToAddress(testPresale),
			Method:    "buyTokens",
			Value:     big.NewInt(1000),
			From:      wallet,
		})
		require.NoError(t, err)
		assert.Len(t, tx.Data, 4)
		assert.Equal(t, int64(1000), tx.Value.Int64())
	})

	t.Run("value on non-payable method is rejected", func(t *testing.T) {
		_, err := l.PrepareCall(ctx, domainService.CallRequest{
			Interface: domainService.InterfacePresale,
			Method:    "buyWithUSDT",
			Args:      []any{big.NewInt(1)},
			Value:     big.NewInt(1),
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := l.PrepareCall(ctx, domainService.CallRequest{Interface: domainService.InterfacePresale, Method: "withdraw"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("wrong argument types", func(t *testing.T) {
		_, err := l.PrepareCall(ctx, domainService.CallRequest{
			Interface: domainService.InterfacePresale,
			Method:    "buyWithUSDT",
			Args:      []any{"not a number"},
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func receive(t *testing.T, ch <-chan domainService.TxOutcome) domainService.TxOutcome {
	t.Helper()
	select {
	case outcome, ok := <-ch:
		require.True(t, ok, "channel closed without an outcome")
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return domainService.TxOutcome{}
	}
}

func TestEVMLedger_Submit(t *testing.T) {
	t.Run("mined successfully after pending polls", func(t *testing.T) {
		node := &fakeNode{pendingPolls: 2, receiptStatus: "0x1"}
		l := newTestLedger(t, node)

		outcome := receive(t, l.Submit(context.Background(), domainService.PreparedTx{
			From:   common.HexToAddress(testWallet),
			To:     common.HexToAddress(testPresale),
			Data:   []byte{0xd0, 0xfe, 0xbe, 0x4c},
			Value:  big.NewInt(255),
			Method: "buyTokens",
		}))
		require.NoError(t, outcome.Err)
		assert.Equal(t, testTxHash, outcome.Hash)

		node.mu.Lock()
		defer node.mu.Unlock()
		assert.Equal(t, "0xff", node.lastSend["value"])
		assert.Equal(t, "0xd0febe4c", node.lastSend["data"])
	})

	t.Run("reverted receipt", func(t *testing.T) {
		l := newTestLedger(t, &fakeNode{receiptStatus: "0x0"})

		outcome := receive(t, l.Submit(context.Background(), domainService.PreparedTx{Method: "approve"}))
		require.Error(t, outcome.Err)
		assert.ErrorIs(t, outcome.Err, ErrTxReverted)
		assert.Equal(t, testTxHash, outcome.Hash)
	})

	t.Run("rejected by wallet", func(t *testing.T) {
		l := newTestLedger(t, &fakeNode{sendErr: "user rejected"})

		outcome := receive(t, l.Submit(context.Background(), domainService.PreparedTx{Method: "buyTokens"}))
		require.Error(t, outcome.Err)
		assert.Empty(t, outcome.Hash)
	})

	t.Run("channel is closed after the outcome", func(t *testing.T) {
		l := newTestLedger(t, &fakeNode{receiptStatus: "0x1"})

		ch := l.Submit(context.Background(), domainService.PreparedTx{Method: "buyTokens"})
		_ = receive(t, ch)
		_, open := <-ch
		assert.False(t, open)
	})
}
