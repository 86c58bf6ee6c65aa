package pubsub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hirosystems/stacks-blockchain-api-sub006/store"
	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

const (
	testAddress = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	testTxID    = "8912000000000000000000000000000000000000000000000000000000000000"
	testAsset   = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7.punks::punk"
)

type sentRecord struct {
	topic   topics.Topic
	payload interface{}
}

// stubChannel reports interest from a fixed set and records every send.
type stubChannel struct {
	mu       sync.Mutex
	topics   map[string]bool
	families map[topics.Family]bool
	sent     []sentRecord
	closed   bool
	closeErr error
}

func newStubChannel(interested ...topics.Topic) *stubChannel {
	ch := &stubChannel{
		topics:   make(map[string]bool),
		families: make(map[topics.Family]bool),
	}
	for _, t := range interested {
		ch.topics[t.Key()] = true
		ch.families[t.Family] = true
	}
	return ch
}

func (ch *stubChannel) HasListeners(t topics.Topic) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.topics[t.Key()]
}

func (ch *stubChannel) HasFamilyListeners(f topics.Family) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.families[f]
}

func (ch *stubChannel) Send(ctx context.Context, t topics.Topic, payload interface{}) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.sent = append(ch.sent, sentRecord{topic: t, payload: payload})
	return nil
}

func (ch *stubChannel) Close(ctx context.Context) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closed = true
	return ch.closeErr
}

func (ch *stubChannel) sentRecords() []sentRecord {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]sentRecord(nil), ch.sent...)
}

// countingReader counts queries so tests can assert the no-interest
// short-circuit.
type countingReader struct {
	*store.MemoryReader
	mu      sync.Mutex
	queries int
}

func (r *countingReader) GetBlockByHash(ctx context.Context, hash string) (*store.Block, bool, error) {
	r.mu.Lock()
	r.queries++
	r.mu.Unlock()
	return r.MemoryReader.GetBlockByHash(ctx, hash)
}

func (r *countingReader) queryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries
}

func TestNoInterestShortCircuit(t *testing.T) {
	reader := &countingReader{MemoryReader: store.NewMemoryReader()}
	ch := newStubChannel() // nobody cares about anything
	tx := NewTransmitter(reader, ch)

	tx.Dispatch(context.Background(), BlockCommitted("0xabc"))

	if reader.queryCount() != 0 {
		t.Fatalf("expected no storage query, got %d", reader.queryCount())
	}
	if len(ch.sentRecords()) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestAuthoritativeRefetchWinsOverSignalTimeState(t *testing.T) {
	reader := store.NewMemoryReader()
	ch := newStubChannel(topics.Block())
	tx := NewTransmitter(reader, ch)

	reader.PutBlock(&store.Block{Hash: "0xabc", Height: 100, Canonical: true})
	sig := BlockCommitted("0xabc")

	// A reorg lands between signal emission and delivery.
	reader.PutBlock(&store.Block{Hash: "0xabc", Height: 107, Canonical: true})
	tx.Dispatch(context.Background(), sig)

	records := ch.sentRecords()
	if len(records) != 1 {
		t.Fatalf("expected one send, got %d", len(records))
	}
	if records[0].payload.(*store.Block).Height != 107 {
		t.Fatal("payload must reflect storage state at delivery time, not signal time")
	}
}

func TestSendGoesToEveryChannelWhenOneReportsInterest(t *testing.T) {
	reader := store.NewMemoryReader()
	reader.PutBlock(&store.Block{Hash: "0xabc", Height: 5, Canonical: true})

	interested := newStubChannel(topics.Block())
	indifferent := newStubChannel()
	tx := NewTransmitter(reader, interested, indifferent)

	tx.Dispatch(context.Background(), BlockCommitted("0xabc"))

	if len(interested.sentRecords()) != 1 {
		t.Fatal("interested channel should receive the payload")
	}
	// The push still goes to every channel; the no-op is the channel's side.
	if len(indifferent.sentRecords()) != 1 {
		t.Fatal("payload is pushed to all channels regardless of who reported interest")
	}
}

func TestTxTouchedPrefersConfirmedRecord(t *testing.T) {
	reader := store.NewMemoryReader()
	ch := newStubChannel(topics.Mempool(), topics.Transaction(testTxID))
	tx := NewTransmitter(reader, ch)

	reader.PutMempoolTx(&store.MempoolTransaction{TxID: testTxID, TxStatus: "pending"})
	tx.Dispatch(context.Background(), TxTouched(testTxID))

	records := ch.sentRecords()
	if len(records) != 2 {
		t.Fatalf("pending tx should hit mempool and transaction topics, got %d sends", len(records))
	}

	// Once confirmed, only the transaction topic fires, with the confirmed
	// record.
	ch.mu.Lock()
	ch.sent = nil
	ch.mu.Unlock()
	reader.PutTx(&store.Transaction{TxID: testTxID, TxStatus: "success", Canonical: true})
	tx.Dispatch(context.Background(), TxTouched(testTxID))

	records = ch.sentRecords()
	if len(records) != 1 {
		t.Fatalf("confirmed tx should skip the mempool topic, got %d sends", len(records))
	}
	if records[0].topic.Family != topics.FamilyTransaction {
		t.Fatalf("sent to %v", records[0].topic)
	}
	if records[0].payload.(*store.Transaction).TxStatus != "success" {
		t.Fatal("confirmed record should win over the mempool entry")
	}
}

func TestTxSignalIDNormalizedBeforeMatching(t *testing.T) {
	reader := store.NewMemoryReader()
	ch := newStubChannel(topics.Transaction(testTxID))
	tx := NewTransmitter(reader, ch)

	reader.PutTx(&store.Transaction{TxID: testTxID, TxStatus: "success", Canonical: true})

	// The host may emit the id in any accepted spelling.
	tx.Dispatch(context.Background(), TxTouched("0x"+strings.ToUpper(testTxID)))

	records := ch.sentRecords()
	if len(records) != 1 {
		t.Fatalf("denormalized signal id must still reach the canonical subscription, got %d sends", len(records))
	}
	if records[0].topic.Key() != "transaction:"+testTxID {
		t.Fatalf("sent under %s", records[0].topic.Key())
	}
}

func TestAddressTouchedMergesSummaryAndBalance(t *testing.T) {
	reader := store.NewMemoryReader()
	ch := newStubChannel(topics.AddressTransaction(testAddress), topics.AddressBalance(testAddress))
	tx := NewTransmitter(reader, ch)

	reader.PutAddressTxs(testAddress, 100, []*store.AddressTxWithTransfers{{
		Tx:          &store.Transaction{TxID: testTxID, TxStatus: "success", TxType: "token_transfer", BlockHeight: 100},
		StxSent:     "250",
		StxReceived: "0",
	}})
	reader.PutBalance(100, &store.AddressStxBalance{Address: testAddress, Balance: "12000"})
	reader.PutTokenOffering(testAddress, 100, &store.TokenOfferingLocked{TotalLocked: "500"})

	tx.Dispatch(context.Background(), AddressTouched(testAddress, 100))

	var txUpdate *store.AddressTxUpdate
	var balance *store.AddressStxBalance
	for _, record := range ch.sentRecords() {
		switch payload := record.payload.(type) {
		case *store.AddressTxUpdate:
			txUpdate = payload
		case *store.AddressStxBalance:
			balance = payload
		}
	}

	if txUpdate == nil {
		t.Fatal("missing address tx update")
	}
	if txUpdate.Address != testAddress || txUpdate.TxID != testTxID || txUpdate.TxStatus != "success" {
		t.Fatalf("summary fields not flattened: %+v", txUpdate)
	}
	if txUpdate.StxSent != "250" {
		t.Fatal("transfer record not merged")
	}

	if balance == nil {
		t.Fatal("missing balance update")
	}
	if balance.TokenOffering == nil || balance.TokenOffering.TotalLocked != "500" {
		t.Fatal("token offering state should be attached to the balance payload")
	}
}

func TestNftEventFansOutToThreeTopics(t *testing.T) {
	reader := store.NewMemoryReader()
	ch := newStubChannel(topics.NFTEvent())
	tx := NewTransmitter(reader, ch)

	reader.PutNftEvent(&store.NftEvent{
		TxID:            testTxID,
		EventIndex:      2,
		AssetIdentifier: testAsset,
		Value:           "u401",
	})
	tx.Dispatch(context.Background(), NftEventRecorded(testTxID, 2))

	records := ch.sentRecords()
	if len(records) != 3 {
		t.Fatalf("expected fan-out to three topic shapes, got %d", len(records))
	}
	got := map[string]bool{}
	for _, record := range records {
		got[record.topic.Key()] = true
	}
	for _, want := range []string{
		"nft-event",
		"nft-asset-event:" + testAsset + "+u401",
		"nft-collection-event:" + testAsset,
	} {
		if !got[want] {
			t.Errorf("missing send for %s", want)
		}
	}
}

func TestMissingEntityIsSkippedNotFatal(t *testing.T) {
	reader := store.NewMemoryReader()
	ch := newStubChannel(topics.Block())
	tx := NewTransmitter(reader, ch)

	// No block in storage: the pipeline logs and drops the notification.
	tx.Dispatch(context.Background(), BlockCommitted("0xmissing"))
	if len(ch.sentRecords()) != 0 {
		t.Fatal("nothing should be delivered for a dangling signal")
	}
}

func TestCloseClosesEveryChannelDespiteErrors(t *testing.T) {
	failing := newStubChannel()
	failing.closeErr = errors.New("boom")
	healthy := newStubChannel()
	tx := NewTransmitter(store.NewMemoryReader(), failing, healthy)

	err := tx.Close(context.Background())
	if err == nil {
		t.Fatal("close error should surface")
	}
	if !failing.closed || !healthy.closed {
		t.Fatal("every channel must be closed even when one fails")
	}
}
