package rpcapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/types"
)

func newTestServer(t *testing.T) (url string, bobPubkey types.Pubkey) {
	t.Helper()
	mint, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	b := bank.New(mint.Pubkey(), 10_000)

	bob, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	tx := types.NewTransaction(mint, bob.Pubkey(), 20, b.LastID())
	if err := b.ProcessTransaction(tx); err != nil {
		t.Fatal(err)
	}

	s := NewServer(b, "127.0.0.1:0")
	addr, err := s.Start()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return fmt.Sprintf("http://%s/", addr.String()), bob.Pubkey()
}

func postJSON(t *testing.T, url, body string) map[string]interface{} {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS header, got %q", got)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestGetBalanceAfterMintTransfer(t *testing.T) {
	url, bob := newTestServer(t)

	req := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"getBalance","params":["%s"]}`, bob.String())
	out := postJSON(t, url, req)
	if out["result"].(float64) != 20 {
		t.Fatalf("expected balance 20, got %v", out["result"])
	}

	req = `{"jsonrpc":"2.0","id":1,"method":"getTransactionCount"}`
	out = postJSON(t, url, req)
	if out["result"].(float64) != 1 {
		t.Fatalf("expected transaction count 1, got %v", out["result"])
	}
}

func TestConfirmTransactionBadParameterType(t *testing.T) {
	url, _ := newTestServer(t)

	req := `{"jsonrpc":"2.0","id":1,"method":"confirmTransaction","params":[1234567890]}`
	out := postJSON(t, url, req)
	errObj, ok := out["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected an error response, got %v", out)
	}
	if int(errObj["code"].(float64)) != codeInvalidParams {
		t.Fatalf("expected code %d, got %v", codeInvalidParams, errObj["code"])
	}
	msg := errObj["message"].(string)
	if !strings.HasPrefix(msg, "Invalid params: invalid type: integer") {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestConfirmTransactionShortSignature(t *testing.T) {
	url, _ := newTestServer(t)

	req := `{"jsonrpc":"2.0","id":1,"method":"confirmTransaction","params":["a1b2c3d4e5"]}`
	out := postJSON(t, url, req)
	errObj, ok := out["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected an error response, got %v", out)
	}
	if int(errObj["code"].(float64)) != codeInvalidRequest {
		t.Fatalf("expected code %d, got %v", codeInvalidRequest, errObj["code"])
	}
	if errObj["message"] != "Invalid request" {
		t.Fatalf("unexpected message: %v", errObj["message"])
	}
}
