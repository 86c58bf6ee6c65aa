package store

import "context"

// Reader is the read-only query surface the notification layer consumes.
// Every lookup reports found/not-found explicitly instead of returning an
// error for the missing case; payloads are always rehydrated through this
// interface at send time so delivered state reflects the canonical view at
// delivery, not at signal time.
type Reader interface {
	GetBlockByHash(ctx context.Context, hash string) (*Block, bool, error)
	GetMicroblockByHash(ctx context.Context, hash string) (*Microblock, bool, error)
	GetTxByID(ctx context.Context, txID string) (*Transaction, bool, error)
	GetMempoolTxsByIDs(ctx context.Context, txIDs []string) ([]*MempoolTransaction, error)
	GetAddressTxsWithTransfers(ctx context.Context, address string, blockHeight int64) ([]*AddressTxWithTransfers, error)
	GetStxBalanceAtHeight(ctx context.Context, address string, blockHeight int64) (*AddressStxBalance, bool, error)
	GetTokenOfferingLocked(ctx context.Context, address string, blockHeight int64) (*TokenOfferingLocked, bool, error)
	GetNftEvent(ctx context.Context, txID string, eventIndex int) (*NftEvent, bool, error)
}
