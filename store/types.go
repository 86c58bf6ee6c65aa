package store

// Block is the canonical materialization of an anchor block at query time.
type Block struct {
	Canonical       bool     `json:"canonical"`
	Height          int64    `json:"height"`
	Hash            string   `json:"hash"`
	IndexBlockHash  string   `json:"index_block_hash"`
	ParentBlockHash string   `json:"parent_block_hash"`
	BurnBlockTime   int64    `json:"burn_block_time"`
	BurnBlockHash   string   `json:"burn_block_hash"`
	BurnBlockHeight int64    `json:"burn_block_height"`
	MinerTxID       string   `json:"miner_txid"`
	Txs             []string `json:"txs"`
}

// Microblock is a streamed microblock between anchor blocks.
type Microblock struct {
	Canonical            bool     `json:"canonical"`
	MicroblockCanonical  bool     `json:"microblock_canonical"`
	MicroblockHash       string   `json:"microblock_hash"`
	MicroblockSequence   int      `json:"microblock_sequence"`
	MicroblockParentHash string   `json:"microblock_parent_hash"`
	ParentIndexBlockHash string   `json:"parent_index_block_hash"`
	ParentBlockHash      string   `json:"parent_block_hash"`
	BlockHeight          int64    `json:"block_height"`
	ParentBlockHeight    int64    `json:"parent_block_height"`
	Txs                  []string `json:"txs"`
}

// Transaction is a confirmed transaction record.
type Transaction struct {
	TxID          string `json:"tx_id"`
	Nonce         uint64 `json:"nonce"`
	FeeRate       string `json:"fee_rate"`
	SenderAddress string `json:"sender_address"`
	Sponsored     bool   `json:"sponsored"`
	TxStatus      string `json:"tx_status"`
	TxType        string `json:"tx_type"`
	BlockHash     string `json:"block_hash"`
	BlockHeight   int64  `json:"block_height"`
	BurnBlockTime int64  `json:"burn_block_time"`
	Canonical     bool   `json:"canonical"`
	TxIndex       int    `json:"tx_index"`
}

// MempoolTransaction is a received-but-unconfirmed transaction.
type MempoolTransaction struct {
	TxID          string `json:"tx_id"`
	Nonce         uint64 `json:"nonce"`
	FeeRate       string `json:"fee_rate"`
	SenderAddress string `json:"sender_address"`
	TxStatus      string `json:"tx_status"`
	TxType        string `json:"tx_type"`
	ReceiptTime   int64  `json:"receipt_time"`
}

// StxTransfer is a single STX movement within a transaction.
type StxTransfer struct {
	Amount    string `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

// AddressTxWithTransfers pairs a transaction with the STX transfer totals
// scoped to one address.
type AddressTxWithTransfers struct {
	Tx           *Transaction  `json:"tx"`
	StxSent      string        `json:"stx_sent"`
	StxReceived  string        `json:"stx_received"`
	StxTransfers []StxTransfer `json:"stx_transfers"`
}

// AddressTxUpdate is the notification payload for address-transaction
// topics: the summary fields are flattened next to the transfer record so a
// client can filter without re-parsing nested structures. The explicit fields
// mean the summary always wins over same-named keys in the nested record.
type AddressTxUpdate struct {
	Address      string        `json:"address"`
	TxID         string        `json:"tx_id"`
	TxStatus     string        `json:"tx_status"`
	TxType       string        `json:"tx_type"`
	BlockHeight  int64         `json:"block_height"`
	Tx           *Transaction  `json:"tx"`
	StxSent      string        `json:"stx_sent"`
	StxReceived  string        `json:"stx_received"`
	StxTransfers []StxTransfer `json:"stx_transfers"`
}

// NewAddressTxUpdate flattens an address-scoped transfer record into the
// notification payload shape.
func NewAddressTxUpdate(address string, record *AddressTxWithTransfers) *AddressTxUpdate {
	return &AddressTxUpdate{
		Address:      address,
		TxID:         record.Tx.TxID,
		TxStatus:     record.Tx.TxStatus,
		TxType:       record.Tx.TxType,
		BlockHeight:  record.Tx.BlockHeight,
		Tx:           record.Tx,
		StxSent:      record.StxSent,
		StxReceived:  record.StxReceived,
		StxTransfers: record.StxTransfers,
	}
}

// TokenOfferingLocked describes the locked token-offering schedule for an
// address.
type TokenOfferingLocked struct {
	TotalLocked    string         `json:"total_locked"`
	TotalUnlocked  string         `json:"total_unlocked"`
	UnlockSchedule []UnlockPeriod `json:"unlock_schedule"`
}

// UnlockPeriod is one step of a token-offering unlock schedule.
type UnlockPeriod struct {
	Amount      string `json:"amount"`
	BlockHeight int64  `json:"block_height"`
}

// AddressStxBalance is the STX balance of an address at a block height.
type AddressStxBalance struct {
	Address                   string               `json:"address"`
	Balance                   string               `json:"balance"`
	TotalSent                 string               `json:"total_sent"`
	TotalReceived             string               `json:"total_received"`
	TotalFeesSent             string               `json:"total_fees_sent"`
	TotalMinerRewardsReceived string               `json:"total_miner_rewards_received"`
	Locked                    string               `json:"locked"`
	LockHeight                int64                `json:"lock_height"`
	TokenOffering             *TokenOfferingLocked `json:"token_offering_locked,omitempty"`
}

// NftEvent is a single non-fungible token event.
type NftEvent struct {
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	AssetIdentifier string `json:"asset_identifier"`
	Value           string `json:"value"`
	AssetEventType  string `json:"asset_event_type"`
	TxID            string `json:"tx_id"`
	TxIndex         int    `json:"tx_index"`
	EventIndex      int    `json:"event_index"`
	BlockHeight     int64  `json:"block_height"`
}
