package pubsub

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/hirosystems/stacks-blockchain-api-sub006/store"
	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

// Transmitter listens for upstream change signals, checks whether any channel
// has an interested subscriber, rehydrates the referenced entity from storage
// and pushes the payload through every channel. Signal pipelines run
// concurrently and independently; a failing pipeline is logged and dropped
// without affecting the rest.
type Transmitter struct {
	reader   store.Reader
	channels []Channel
	wg       sync.WaitGroup
}

func NewTransmitter(reader store.Reader, channels ...Channel) *Transmitter {
	return &Transmitter{reader: reader, channels: channels}
}

// Run consumes signals until the channel closes or the context is cancelled,
// then waits for in-flight pipelines to drain. Closing the transport channels
// is Close's job.
func (t *Transmitter) Run(ctx context.Context, signals <-chan Signal) error {
	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.Dispatch(ctx, sig)
			}()
		}
	}
}

// Dispatch processes one signal synchronously. Failures are logged, never
// propagated: a single failed notification must not take down the loop.
func (t *Transmitter) Dispatch(ctx context.Context, sig Signal) {
	var err error
	switch sig.Kind {
	case SignalBlockCommitted:
		err = t.notifyBlock(ctx, sig.BlockHash)
	case SignalMicroblockCommitted:
		err = t.notifyMicroblock(ctx, sig.BlockHash)
	case SignalTxTouched:
		err = t.notifyTx(ctx, sig.TxID)
	case SignalAddressTouched:
		err = t.notifyAddress(ctx, sig.Address, sig.BlockHeight)
	case SignalNftEventRecorded:
		err = t.notifyNftEvent(ctx, sig.TxID, sig.EventIndex)
	default:
		err = fmt.Errorf("unknown signal kind %d", int(sig.Kind))
	}
	if err != nil {
		log.Printf("pubsub: %s notification failed: %v", sig.Kind, err)
	}
}

// Close closes every channel. A failure closing one channel is reported but
// does not prevent closing the others.
func (t *Transmitter) Close(ctx context.Context) error {
	var firstErr error
	for _, ch := range t.channels {
		if err := ch.Close(ctx); err != nil {
			log.Printf("pubsub: channel close failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// anyListeners asks every channel whether the exact topic has a subscriber.
// The backpressure short-circuit: no storage query runs when this is false.
func (t *Transmitter) anyListeners(topic topics.Topic) bool {
	for _, ch := range t.channels {
		if ch.HasListeners(topic) {
			return true
		}
	}
	return false
}

func (t *Transmitter) anyFamilyListeners(families ...topics.Family) bool {
	for _, ch := range t.channels {
		for _, f := range families {
			if ch.HasFamilyListeners(f) {
				return true
			}
		}
	}
	return false
}

// sendAll pushes the payload to every channel, regardless of which channel
// reported interest; the others no-op cheaply.
func (t *Transmitter) sendAll(ctx context.Context, topic topics.Topic, payload interface{}) {
	for _, ch := range t.channels {
		if err := ch.Send(ctx, topic, payload); err != nil {
			log.Printf("pubsub: send %s failed: %v", topic.Key(), err)
		}
	}
}

func (t *Transmitter) notifyBlock(ctx context.Context, hash string) error {
	if !t.anyListeners(topics.Block()) {
		return nil
	}
	block, found, err := t.reader.GetBlockByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("fetch block %s: %w", hash, err)
	}
	if !found {
		return fmt.Errorf("block %s not found", hash)
	}
	t.sendAll(ctx, topics.Block(), block)
	return nil
}

func (t *Transmitter) notifyMicroblock(ctx context.Context, hash string) error {
	if !t.anyListeners(topics.Microblock()) {
		return nil
	}
	microblock, found, err := t.reader.GetMicroblockByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("fetch microblock %s: %w", hash, err)
	}
	if !found {
		return fmt.Errorf("microblock %s not found", hash)
	}
	t.sendAll(ctx, topics.Microblock(), microblock)
	return nil
}

func (t *Transmitter) notifyTx(ctx context.Context, txID string) error {
	// Subscriptions are keyed by the canonical id; signals may carry any
	// accepted spelling.
	txID, err := topics.NormalizeTxID(txID)
	if err != nil {
		return fmt.Errorf("bad tx id in signal: %w", err)
	}

	mempoolInterest := t.anyListeners(topics.Mempool())
	txInterest := t.anyListeners(topics.Transaction(txID))
	if !mempoolInterest && !txInterest {
		return nil
	}

	// Prefer the confirmed record; the mempool entry may already be stale.
	tx, found, err := t.reader.GetTxByID(ctx, txID)
	if err != nil {
		return fmt.Errorf("fetch tx %s: %w", txID, err)
	}
	if found {
		if txInterest {
			t.sendAll(ctx, topics.Transaction(txID), tx)
		}
		return nil
	}

	mempoolTxs, err := t.reader.GetMempoolTxsByIDs(ctx, []string{txID})
	if err != nil {
		return fmt.Errorf("fetch mempool tx %s: %w", txID, err)
	}
	if len(mempoolTxs) == 0 {
		return fmt.Errorf("tx %s not found in confirmed or mempool tables", txID)
	}
	if mempoolInterest {
		t.sendAll(ctx, topics.Mempool(), mempoolTxs[0])
	}
	if txInterest {
		t.sendAll(ctx, topics.Transaction(txID), mempoolTxs[0])
	}
	return nil
}

func (t *Transmitter) notifyAddress(ctx context.Context, address string, blockHeight int64) error {
	txTopic := topics.AddressTransaction(address)
	balanceTopic := topics.AddressBalance(address)

	if t.anyListeners(txTopic) {
		records, err := t.reader.GetAddressTxsWithTransfers(ctx, address, blockHeight)
		if err != nil {
			return fmt.Errorf("fetch address txs for %s at height %d: %w", address, blockHeight, err)
		}
		for _, record := range records {
			t.sendAll(ctx, txTopic, store.NewAddressTxUpdate(address, record))
		}
	}

	if t.anyListeners(balanceTopic) {
		balance, found, err := t.reader.GetStxBalanceAtHeight(ctx, address, blockHeight)
		if err != nil {
			return fmt.Errorf("fetch balance for %s at height %d: %w", address, blockHeight, err)
		}
		if !found {
			return fmt.Errorf("balance for %s at height %d not found", address, blockHeight)
		}
		offering, found, err := t.reader.GetTokenOfferingLocked(ctx, address, blockHeight)
		if err != nil {
			return fmt.Errorf("fetch token offering for %s: %w", address, err)
		}
		if found {
			balance.TokenOffering = offering
		}
		t.sendAll(ctx, balanceTopic, balance)
	}
	return nil
}

func (t *Transmitter) notifyNftEvent(ctx context.Context, txID string, eventIndex int) error {
	// The asset identifier is unknown until the record is fetched, so interest
	// is checked at the family level first.
	if !t.anyFamilyListeners(topics.FamilyNFTEvent, topics.FamilyNFTAssetEvent, topics.FamilyNFTCollectionEvent) {
		return nil
	}
	txID, err := topics.NormalizeTxID(txID)
	if err != nil {
		return fmt.Errorf("bad tx id in signal: %w", err)
	}
	ev, found, err := t.reader.GetNftEvent(ctx, txID, eventIndex)
	if err != nil {
		return fmt.Errorf("fetch nft event %s[%d]: %w", txID, eventIndex, err)
	}
	if !found {
		return fmt.Errorf("nft event %s[%d] not found", txID, eventIndex)
	}

	// One fetched record fans out to all three topic shapes.
	t.sendAll(ctx, topics.NFTEvent(), ev)
	t.sendAll(ctx, topics.NFTAssetEvent(ev.AssetIdentifier, ev.Value), ev)
	t.sendAll(ctx, topics.NFTCollectionEvent(ev.AssetIdentifier), ev)
	return nil
}
