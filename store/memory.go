package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryReader is an in-memory Reader for tests and single-process setups.
// All records are keyed the way the queries look them up and can be swapped
// at any time, which is how tests simulate a reorg landing between signal and
// delivery.
type MemoryReader struct {
	mu             sync.RWMutex
	blocks         map[string]*Block
	microblocks    map[string]*Microblock
	txs            map[string]*Transaction
	mempoolTxs     map[string]*MempoolTransaction
	addressTxs     map[string][]*AddressTxWithTransfers
	balances       map[string]*AddressStxBalance
	tokenOfferings map[string]*TokenOfferingLocked
	nftEvents      map[string]*NftEvent
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{
		blocks:         make(map[string]*Block),
		microblocks:    make(map[string]*Microblock),
		txs:            make(map[string]*Transaction),
		mempoolTxs:     make(map[string]*MempoolTransaction),
		addressTxs:     make(map[string][]*AddressTxWithTransfers),
		balances:       make(map[string]*AddressStxBalance),
		tokenOfferings: make(map[string]*TokenOfferingLocked),
		nftEvents:      make(map[string]*NftEvent),
	}
}

func addressHeightKey(address string, blockHeight int64) string {
	return fmt.Sprintf("%s@%d", address, blockHeight)
}

func nftEventKey(txID string, eventIndex int) string {
	return fmt.Sprintf("%s#%d", txID, eventIndex)
}

func (m *MemoryReader) PutBlock(b *Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.Hash] = b
}

func (m *MemoryReader) PutMicroblock(mb *Microblock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.microblocks[mb.MicroblockHash] = mb
}

func (m *MemoryReader) PutTx(tx *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.TxID] = tx
}

func (m *MemoryReader) PutMempoolTx(tx *MempoolTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mempoolTxs[tx.TxID] = tx
}

func (m *MemoryReader) DeleteMempoolTx(txID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mempoolTxs, txID)
}

func (m *MemoryReader) PutAddressTxs(address string, blockHeight int64, records []*AddressTxWithTransfers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addressTxs[addressHeightKey(address, blockHeight)] = records
}

func (m *MemoryReader) PutBalance(blockHeight int64, balance *AddressStxBalance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addressHeightKey(balance.Address, blockHeight)] = balance
}

func (m *MemoryReader) PutTokenOffering(address string, blockHeight int64, offering *TokenOfferingLocked) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenOfferings[addressHeightKey(address, blockHeight)] = offering
}

func (m *MemoryReader) PutNftEvent(ev *NftEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nftEvents[nftEventKey(ev.TxID, ev.EventIndex)] = ev
}

func (m *MemoryReader) GetBlockByHash(ctx context.Context, hash string) (*Block, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[hash]
	return b, ok, nil
}

func (m *MemoryReader) GetMicroblockByHash(ctx context.Context, hash string) (*Microblock, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mb, ok := m.microblocks[hash]
	return mb, ok, nil
}

func (m *MemoryReader) GetTxByID(ctx context.Context, txID string) (*Transaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[txID]
	return tx, ok, nil
}

func (m *MemoryReader) GetMempoolTxsByIDs(ctx context.Context, txIDs []string) ([]*MempoolTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var txs []*MempoolTransaction
	for _, txID := range txIDs {
		if tx, ok := m.mempoolTxs[txID]; ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (m *MemoryReader) GetAddressTxsWithTransfers(ctx context.Context, address string, blockHeight int64) ([]*AddressTxWithTransfers, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addressTxs[addressHeightKey(address, blockHeight)], nil
}

func (m *MemoryReader) GetStxBalanceAtHeight(ctx context.Context, address string, blockHeight int64) (*AddressStxBalance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	balance, ok := m.balances[addressHeightKey(address, blockHeight)]
	return balance, ok, nil
}

func (m *MemoryReader) GetTokenOfferingLocked(ctx context.Context, address string, blockHeight int64) (*TokenOfferingLocked, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offering, ok := m.tokenOfferings[addressHeightKey(address, blockHeight)]
	return offering, ok, nil
}

func (m *MemoryReader) GetNftEvent(ctx context.Context, txID string, eventIndex int) (*NftEvent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.nftEvents[nftEventKey(txID, eventIndex)]
	return ev, ok, nil
}
