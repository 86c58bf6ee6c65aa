package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

const (
	testAddress = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	testTxID    = "8912000000000000000000000000000000000000000000000000000000000000"
)

func testChannel() *Channel {
	cfg := DefaultConfig()
	return NewChannel(cfg, nil)
}

func asResponse(t *testing.T, reply interface{}) rpcResponse {
	t.Helper()
	resp, ok := reply.(rpcResponse)
	if !ok {
		t.Fatalf("expected a single response, got %T", reply)
	}
	return resp
}

func TestSubscribeSuccessEchoesNormalizedParams(t *testing.T) {
	ch := testChannel()
	p := newFakePeer("1.2.3.4:100")

	frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"subscribe","params":{"event":"address_tx_update","address":%q}}`, testAddress)
	reply, ok := ch.HandleFrame(p, []byte(frame))
	if !ok {
		t.Fatal("expected a reply")
	}
	resp := asResponse(t, reply)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	echo := resp.Result.(map[string]string)
	if echo["address"] != testAddress {
		t.Errorf("result echo = %v", echo)
	}
	if !ch.HasListeners(topics.AddressTransaction(testAddress)) {
		t.Error("subscription not registered")
	}
	if !ch.HasFamilyListeners(topics.FamilyAddressTransaction) {
		t.Error("family should report listeners")
	}
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	ch := testChannel()
	p := newFakePeer("1.2.3.4:100")

	// The tx id arrives denormalized; unsubscribing with the identical string
	// must restore the pre-subscribe state.
	raw := "0x" + testTxID
	sub := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"subscribe","params":{"event":"tx_update","tx_id":%q}}`, raw)
	unsub := fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"unsubscribe","params":{"event":"tx_update","tx_id":%q}}`, raw)

	ch.HandleFrame(p, []byte(sub))
	if !ch.HasListeners(topics.Transaction(testTxID)) {
		t.Fatal("normalized subscription missing")
	}
	ch.HandleFrame(p, []byte(unsub))
	if ch.HasFamilyListeners(topics.FamilyTransaction) {
		t.Fatal("registry should be back to its pre-subscribe state")
	}
}

func TestInvalidParamsLeaveRegistryUnchanged(t *testing.T) {
	ch := testChannel()
	p := newFakePeer("1.2.3.4:100")

	frame := `{"jsonrpc":"2.0","id":1,"method":"subscribe","params":{"event":"address_tx_update","address":"not-an-address"}}`
	reply, _ := ch.HandleFrame(p, []byte(frame))
	resp := asResponse(t, reply)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp)
	}
	if ch.HasFamilyListeners(topics.FamilyAddressTransaction) {
		t.Fatal("registry must be unchanged after a rejected subscribe")
	}
}

func TestMissingEventAndUnknownMethod(t *testing.T) {
	ch := testChannel()
	p := newFakePeer("1.2.3.4:100")

	reply, _ := ch.HandleFrame(p, []byte(`{"jsonrpc":"2.0","id":1,"method":"subscribe","params":{}}`))
	if resp := asResponse(t, reply); resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Errorf("missing event: got %+v", resp)
	}

	reply, _ = ch.HandleFrame(p, []byte(`{"jsonrpc":"2.0","id":2,"method":"frobnicate"}`))
	if resp := asResponse(t, reply); resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Errorf("unknown method: got %+v", resp)
	}
}

func TestParseErrorYieldsNullID(t *testing.T) {
	ch := testChannel()
	p := newFakePeer("1.2.3.4:100")

	reply, ok := ch.HandleFrame(p, []byte(`{"jsonrpc":`))
	if !ok {
		t.Fatal("expected a reply")
	}
	resp := asResponse(t, reply)
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", resp)
	}
	if string(resp.ID) != "null" {
		t.Errorf("parse error id = %s, want null", resp.ID)
	}
}

func TestBatchKeepsRequestOrder(t *testing.T) {
	ch := testChannel()
	p := newFakePeer("1.2.3.4:100")

	frame := fmt.Sprintf(`[
		{"jsonrpc":"2.0","id":1,"method":"subscribe","params":{"event":"block"}},
		{"jsonrpc":"1.0","id":99,"method":"subscribe"},
		{"jsonrpc":"2.0","method":"subscribe","params":{"event":"mempool"}},
		{"jsonrpc":"2.0","id":2,"method":"subscribe","params":{"event":"tx_update","tx_id":%q}}
	]`, testTxID)
	reply, ok := ch.HandleFrame(p, []byte(frame))
	if !ok {
		t.Fatal("expected a batch reply")
	}
	replies, isBatch := reply.([]rpcResponse)
	if !isBatch {
		t.Fatalf("expected batch reply, got %T", reply)
	}
	// The id-less notification is filtered, so three slots remain in order.
	if len(replies) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(replies))
	}
	if string(replies[0].ID) != "1" || replies[0].Error != nil {
		t.Errorf("slot 0: %+v", replies[0])
	}
	if replies[1].Error == nil || replies[1].Error.Code != codeInvalidRequest {
		t.Errorf("slot 1: %+v", replies[1])
	}
	if string(replies[2].ID) != "2" || replies[2].Error != nil {
		t.Errorf("slot 2: %+v", replies[2])
	}

	// The id-less slot was filtered before dispatch, not acted on.
	if ch.HasListeners(topics.Mempool()) {
		t.Error("notification slot must not be dispatched")
	}
}

func TestClientNotificationGetsNoReply(t *testing.T) {
	ch := testChannel()
	p := newFakePeer("1.2.3.4:100")

	reply, ok := ch.HandleFrame(p, []byte(`{"jsonrpc":"2.0","method":"subscribe","params":{"event":"block"}}`))
	if ok {
		t.Fatalf("notifications must never be answered, got %v", reply)
	}
	if ch.HasListeners(topics.Block()) {
		t.Error("notifications are filtered before dispatch")
	}
}

func TestConnectionCapReservesAndReleasesSlots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	ch := NewChannel(cfg, nil)
	defer ch.Close(context.Background())
	srv := httptest.NewServer(ch)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("handshake past the cap must be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %+v", resp)
	}

	first.Close()

	// The slot frees once the first connection's handler returns.
	var second *websocket.Conn
	waitFor(t, func() bool {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return false
		}
		second = conn
		return true
	}, "slot should be released after disconnect")
	second.Close()
}

func TestNotificationWireShape(t *testing.T) {
	notif := rpcNotification{JSONRPC: "2.0", Method: "block", Params: map[string]int{"height": 1}}
	raw, err := json.Marshal(notif)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","method":"block","params":{"height":1}}`
	if string(raw) != want {
		t.Errorf("got %s, want %s", raw, want)
	}
}
