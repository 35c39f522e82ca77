package solanarpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type testRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func decodeRequest(t *testing.T, r *http.Request) testRequest {
	t.Helper()
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req
}

func requestConfig(t *testing.T, req testRequest) map[string]any {
	t.Helper()
	if len(req.Params) != 2 {
		t.Fatalf("params len=%d", len(req.Params))
	}
	cfg, ok := req.Params[1].(map[string]any)
	if !ok {
		t.Fatalf("params[1] type=%T", req.Params[1])
	}
	return cfg
}

func TestClient_Slot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.Method != "getSlot" {
			t.Fatalf("method=%q", req.Method)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":123}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	got, err := c.Slot(context.Background())
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if got != 123 {
		t.Fatalf("slot=%d, want 123", got)
	}
	if c.URL() != srv.URL {
		t.Fatalf("URL=%q", c.URL())
	}
}

func TestClient_RPCErrorUnwraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32602,"message":"Invalid param"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Slot(context.Background())
	if !errors.Is(err, ErrRPCError) {
		t.Fatalf("want ErrRPCError, got %v", err)
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32602 {
		t.Fatalf("unexpected error: %#v", err)
	}
}

func TestClient_MissingURL(t *testing.T) {
	if _, err := New("  ", nil).Slot(context.Background()); !errors.Is(err, ErrMissingRPCURL) {
		t.Fatalf("want ErrMissingRPCURL, got %v", err)
	}
}

func TestClient_ParsedAccountInfo_Upgradeable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.Method != "getAccountInfo" {
			t.Fatalf("method=%q", req.Method)
		}
		cfg := requestConfig(t, req)
		if cfg["encoding"] != "jsonParsed" {
			t.Fatalf("encoding=%v", cfg["encoding"])
		}
		_, _ = w.Write([]byte(`{
  "jsonrpc":"2.0",
  "id":"1",
  "result":{
    "context":{"slot":1},
    "value":{
      "owner":"BPFLoaderUpgradeab1e11111111111111111111111",
      "executable":true,
      "lamports":1141440,
      "data":{"program":"bpf-upgradeable-loader","parsed":{"type":"program","info":{"programData":"PData111"}},"space":36}
    }
  }
}`))
	}))
	defer srv.Close()

	info, err := New(srv.URL, nil).ParsedAccountInfo(context.Background(), "Prog111")
	if err != nil {
		t.Fatalf("ParsedAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatalf("expected account")
	}
	if info.Owner != "BPFLoaderUpgradeab1e11111111111111111111111" || !info.Executable || info.Lamports != 1141440 {
		t.Fatalf("info=%+v", info)
	}
	if info.Parsed == nil || info.Parsed.Program != "bpf-upgradeable-loader" || info.Parsed.Type != "program" {
		t.Fatalf("parsed=%+v", info.Parsed)
	}
	if got := info.ProgramDataAccount(); got != "PData111" {
		t.Fatalf("programData=%q", got)
	}
}

func TestClient_ParsedAccountInfo_RawData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"context":{"slot":1},"value":{"owner":"BPFLoader2111111111111111111111111111111111","executable":true,"lamports":5,"data":["YWJj","base64"]}}}`))
	}))
	defer srv.Close()

	info, err := New(srv.URL, nil).ParsedAccountInfo(context.Background(), "Prog111")
	if err != nil {
		t.Fatalf("ParsedAccountInfo: %v", err)
	}
	if info == nil || info.Parsed != nil {
		t.Fatalf("info=%+v", info)
	}
	if got := info.ProgramDataAccount(); got != "" {
		t.Fatalf("programData=%q", got)
	}
}

func TestClient_ParsedAccountInfo_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"context":{"slot":1},"value":null}}`))
	}))
	defer srv.Close()

	info, err := New(srv.URL, nil).ParsedAccountInfo(context.Background(), "Nope111")
	if err != nil {
		t.Fatalf("ParsedAccountInfo: %v", err)
	}
	if info != nil {
		t.Fatalf("expected nil, got %+v", info)
	}
}

func TestClient_SignaturesForAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.Method != "getSignaturesForAddress" {
			t.Fatalf("method=%q", req.Method)
		}
		cfg := requestConfig(t, req)
		if cfg["limit"] != float64(3) {
			t.Fatalf("limit=%v", cfg["limit"])
		}
		if cfg["commitment"] != "confirmed" {
			t.Fatalf("commitment=%v", cfg["commitment"])
		}
		if cfg["before"] != "sigZ" {
			t.Fatalf("before=%v", cfg["before"])
		}

		_, _ = w.Write([]byte(`{
  "jsonrpc":"2.0",
  "id":"1",
  "result":[
    {"signature":"sigA","slot":111,"err":null,"blockTime":1700000000},
    {"signature":"sigB","slot":222,"err":{"InstructionError":[0,"Custom"]},"blockTime":null}
  ]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	out, err := c.SignaturesForAddress(context.Background(), "Addr11111111111111111111111111111111111111111", 3, "sigZ")
	if err != nil {
		t.Fatalf("SignaturesForAddress: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len=%d", len(out))
	}
	if out[0].Signature != "sigA" || out[0].Slot != 111 || out[0].Err != nil || out[0].BlockTime == nil || *out[0].BlockTime != 1700000000 {
		t.Fatalf("out[0]=%+v", out[0])
	}
	if out[1].Signature != "sigB" || out[1].Slot != 222 || out[1].Err == nil || out[1].BlockTime != nil {
		t.Fatalf("out[1]=%+v", out[1])
	}
}

func TestClient_SignaturesForAddress_RejectsBadLimit(t *testing.T) {
	c := New("http://127.0.0.1:0", nil)
	if _, err := c.SignaturesForAddress(context.Background(), "A", 0, ""); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := c.SignaturesForAddress(context.Background(), "A", MaxSignaturesPerPage+1, ""); err == nil {
		t.Fatalf("expected error for oversized limit")
	}
	if _, err := c.SignaturesForAddress(context.Background(), " ", 1, ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestClient_AllSignaturesForAddress_Pages(t *testing.T) {
	var (
		mu      sync.Mutex
		befores []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := requestConfig(t, decodeRequest(t, r))
		before, _ := cfg["before"].(string)
		mu.Lock()
		befores = append(befores, before)
		mu.Unlock()

		var items []string
		switch before {
		case "":
			for i := 0; i < MaxSignaturesPerPage; i++ {
				items = append(items, fmt.Sprintf(`{"signature":"p1-%d","slot":%d,"err":null}`, i, 5000-i))
			}
		case fmt.Sprintf("p1-%d", MaxSignaturesPerPage-1):
			items = append(items, `{"signature":"p2-0","slot":10,"err":null}`, `{"signature":"p2-1","slot":9,"err":null}`)
		default:
			t.Fatalf("unexpected before=%q", before)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":[` + strings.Join(items, ",") + `]}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, nil).AllSignaturesForAddress(context.Background(), "Addr", 0)
	if err != nil {
		t.Fatalf("AllSignaturesForAddress: %v", err)
	}
	if len(out) != MaxSignaturesPerPage+2 {
		t.Fatalf("len=%d", len(out))
	}
	mu.Lock()
	pages := len(befores)
	mu.Unlock()
	if pages != 2 {
		t.Fatalf("pages=%d", pages)
	}
	if out[len(out)-1].Signature != "p2-1" {
		t.Fatalf("last=%+v", out[len(out)-1])
	}
}

func TestClient_AllSignaturesForAddress_MaxPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		items := make([]string, 0, MaxSignaturesPerPage)
		for i := 0; i < MaxSignaturesPerPage; i++ {
			items = append(items, fmt.Sprintf(`{"signature":"c%d-%d","slot":%d,"err":null}`, n, i, i))
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":[` + strings.Join(items, ",") + `]}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, nil).AllSignaturesForAddress(context.Background(), "Addr", 2)
	if err != nil {
		t.Fatalf("AllSignaturesForAddress: %v", err)
	}
	if calls.Load() != 2 || len(out) != 2*MaxSignaturesPerPage {
		t.Fatalf("calls=%d len=%d", calls.Load(), len(out))
	}
}

func TestClient_ParsedTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.Method != "getTransaction" {
			t.Fatalf("method=%q", req.Method)
		}
		cfg := requestConfig(t, req)
		if cfg["encoding"] != "jsonParsed" {
			t.Fatalf("encoding=%v", cfg["encoding"])
		}
		if cfg["maxSupportedTransactionVersion"] != float64(0) {
			t.Fatalf("maxSupportedTransactionVersion=%v", cfg["maxSupportedTransactionVersion"])
		}
		_, _ = w.Write([]byte(`{
  "jsonrpc":"2.0",
  "id":"1",
  "result":{
    "slot":42,
    "blockTime":1600000000,
    "meta":{"err":null,"logMessages":["Program BPFLoaderUpgradeab1e11111111111111111111111 invoke [1]","Deployed program Prog111"]},
    "transaction":{}
  }
}`))
	}))
	defer srv.Close()

	tx, err := New(srv.URL, nil).ParsedTransaction(context.Background(), "sig")
	if err != nil {
		t.Fatalf("ParsedTransaction: %v", err)
	}
	if tx == nil {
		t.Fatalf("expected transaction")
	}
	if tx.Signature != "sig" || tx.Slot != 42 || tx.BlockTime == nil || *tx.BlockTime != 1600000000 {
		t.Fatalf("tx=%+v", tx)
	}
	if len(tx.LogMessages) != 2 || tx.LogMessages[1] != "Deployed program Prog111" {
		t.Fatalf("logs=%v", tx.LogMessages)
	}
}

func TestClient_ParsedTransaction_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":null}`))
	}))
	defer srv.Close()

	tx, err := New(srv.URL, nil).ParsedTransaction(context.Background(), "sig")
	if err != nil {
		t.Fatalf("ParsedTransaction: %v", err)
	}
	if tx != nil {
		t.Fatalf("expected nil, got %+v", tx)
	}
}
