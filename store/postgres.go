package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgReader implements Reader against the indexer's PostgreSQL schema.
// It never writes; the ingestion pipeline owns all mutations.
type PgReader struct {
	pool *pgxpool.Pool
}

// NewPgReader initializes a PgReader with its own connection pool.
func NewPgReader(ctx context.Context, connString string) (*PgReader, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PgReader{pool: pool}, nil
}

// Close closes the connection pool.
func (r *PgReader) Close() {
	r.pool.Close()
}

func (r *PgReader) GetBlockByHash(ctx context.Context, hash string) (*Block, bool, error) {
	query := `
		SELECT canonical, block_height, block_hash, index_block_hash, parent_block_hash,
		       burn_block_time, burn_block_hash, burn_block_height, miner_txid
		FROM blocks
		WHERE block_hash = $1 AND canonical = true
		ORDER BY block_height DESC
		LIMIT 1
	`
	var b Block
	err := r.pool.QueryRow(ctx, query, hash).Scan(
		&b.Canonical, &b.Height, &b.Hash, &b.IndexBlockHash, &b.ParentBlockHash,
		&b.BurnBlockTime, &b.BurnBlockHash, &b.BurnBlockHeight, &b.MinerTxID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	txs, err := r.blockTxIDs(ctx, b.IndexBlockHash)
	if err != nil {
		return nil, false, err
	}
	b.Txs = txs
	return &b, true, nil
}

func (r *PgReader) blockTxIDs(ctx context.Context, indexBlockHash string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tx_id FROM txs WHERE index_block_hash = $1 AND canonical = true ORDER BY tx_index`,
		indexBlockHash,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txIDs []string
	for rows.Next() {
		var txID string
		if err := rows.Scan(&txID); err != nil {
			return nil, err
		}
		txIDs = append(txIDs, txID)
	}
	return txIDs, rows.Err()
}

func (r *PgReader) GetMicroblockByHash(ctx context.Context, hash string) (*Microblock, bool, error) {
	query := `
		SELECT canonical, microblock_canonical, microblock_hash, microblock_sequence,
		       microblock_parent_hash, parent_index_block_hash, parent_block_hash,
		       block_height, parent_block_height
		FROM microblocks
		WHERE microblock_hash = $1 AND microblock_canonical = true
		LIMIT 1
	`
	var mb Microblock
	err := r.pool.QueryRow(ctx, query, hash).Scan(
		&mb.Canonical, &mb.MicroblockCanonical, &mb.MicroblockHash, &mb.MicroblockSequence,
		&mb.MicroblockParentHash, &mb.ParentIndexBlockHash, &mb.ParentBlockHash,
		&mb.BlockHeight, &mb.ParentBlockHeight,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT tx_id FROM txs WHERE microblock_hash = $1 AND microblock_canonical = true ORDER BY tx_index`,
		hash,
	)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var txID string
		if err := rows.Scan(&txID); err != nil {
			return nil, false, err
		}
		mb.Txs = append(mb.Txs, txID)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return &mb, true, nil
}

func (r *PgReader) GetTxByID(ctx context.Context, txID string) (*Transaction, bool, error) {
	query := `
		SELECT tx_id, nonce, fee_rate, sender_address, sponsored, status, type_id,
		       block_hash, block_height, burn_block_time, canonical, tx_index
		FROM txs
		WHERE tx_id = $1 AND canonical = true
		ORDER BY block_height DESC
		LIMIT 1
	`
	var tx Transaction
	err := r.pool.QueryRow(ctx, query, txID).Scan(
		&tx.TxID, &tx.Nonce, &tx.FeeRate, &tx.SenderAddress, &tx.Sponsored, &tx.TxStatus,
		&tx.TxType, &tx.BlockHash, &tx.BlockHeight, &tx.BurnBlockTime, &tx.Canonical, &tx.TxIndex,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &tx, true, nil
}

func (r *PgReader) GetMempoolTxsByIDs(ctx context.Context, txIDs []string) ([]*MempoolTransaction, error) {
	query := `
		SELECT tx_id, nonce, fee_rate, sender_address, status, type_id, receipt_time
		FROM mempool_txs
		WHERE tx_id = ANY($1) AND pruned = false
	`
	rows, err := r.pool.Query(ctx, query, txIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*MempoolTransaction
	for rows.Next() {
		var tx MempoolTransaction
		if err := rows.Scan(&tx.TxID, &tx.Nonce, &tx.FeeRate, &tx.SenderAddress,
			&tx.TxStatus, &tx.TxType, &tx.ReceiptTime); err != nil {
			return nil, err
		}
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}

func (r *PgReader) GetAddressTxsWithTransfers(ctx context.Context, address string, blockHeight int64) ([]*AddressTxWithTransfers, error) {
	query := `
		SELECT DISTINCT t.tx_id, t.nonce, t.fee_rate, t.sender_address, t.sponsored, t.status,
		       t.type_id, t.block_hash, t.block_height, t.burn_block_time, t.canonical, t.tx_index
		FROM txs t
		LEFT JOIN stx_events e ON e.tx_id = t.tx_id AND e.canonical = true
		WHERE t.canonical = true AND t.block_height = $2
		  AND (t.sender_address = $1 OR e.sender = $1 OR e.recipient = $1)
		ORDER BY t.tx_index
	`
	rows, err := r.pool.Query(ctx, query, address, blockHeight)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*AddressTxWithTransfers
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.TxID, &tx.Nonce, &tx.FeeRate, &tx.SenderAddress, &tx.Sponsored,
			&tx.TxStatus, &tx.TxType, &tx.BlockHash, &tx.BlockHeight, &tx.BurnBlockTime,
			&tx.Canonical, &tx.TxIndex); err != nil {
			return nil, err
		}
		results = append(results, &AddressTxWithTransfers{Tx: &tx})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, res := range results {
		if err := r.fillStxTransfers(ctx, address, res); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (r *PgReader) fillStxTransfers(ctx context.Context, address string, res *AddressTxWithTransfers) error {
	query := `
		SELECT amount::text, sender, recipient
		FROM stx_events
		WHERE tx_id = $1 AND canonical = true AND (sender = $2 OR recipient = $2)
		ORDER BY event_index
	`
	rows, err := r.pool.Query(ctx, query, res.Tx.TxID, address)
	if err != nil {
		return err
	}
	defer rows.Close()

	sent, received := int64(0), int64(0)
	res.StxSent, res.StxReceived = "0", "0"
	for rows.Next() {
		var transfer StxTransfer
		var amount int64
		if err := rows.Scan(&transfer.Amount, &transfer.Sender, &transfer.Recipient); err != nil {
			return err
		}
		if n, perr := parseAmount(transfer.Amount); perr == nil {
			amount = n
		}
		if transfer.Sender == address {
			sent += amount
		}
		if transfer.Recipient == address {
			received += amount
		}
		res.StxTransfers = append(res.StxTransfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	res.StxSent = formatAmount(sent)
	res.StxReceived = formatAmount(received)
	return nil
}

func (r *PgReader) GetStxBalanceAtHeight(ctx context.Context, address string, blockHeight int64) (*AddressStxBalance, bool, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN recipient = $1 THEN amount ELSE 0 END), 0)::text AS received,
			COALESCE(SUM(CASE WHEN sender = $1 THEN amount ELSE 0 END), 0)::text AS sent
		FROM stx_events
		WHERE canonical = true AND block_height <= $2 AND (sender = $1 OR recipient = $1)
	`
	var received, sent string
	if err := r.pool.QueryRow(ctx, query, address, blockHeight).Scan(&received, &sent); err != nil {
		return nil, false, err
	}

	var fees string
	feeQuery := `
		SELECT COALESCE(SUM(fee_rate), 0)::text
		FROM txs
		WHERE canonical = true AND block_height <= $2 AND sender_address = $1 AND sponsored = false
	`
	if err := r.pool.QueryRow(ctx, feeQuery, address, blockHeight).Scan(&fees); err != nil {
		return nil, false, err
	}

	rec, _ := parseAmount(received)
	snt, _ := parseAmount(sent)
	fee, _ := parseAmount(fees)
	balance := &AddressStxBalance{
		Address:       address,
		Balance:       formatAmount(rec - snt - fee),
		TotalSent:     sent,
		TotalReceived: received,
		TotalFeesSent: fees,

		TotalMinerRewardsReceived: "0",
		Locked:                    "0",
	}
	return balance, true, nil
}

func (r *PgReader) GetTokenOfferingLocked(ctx context.Context, address string, blockHeight int64) (*TokenOfferingLocked, bool, error) {
	query := `
		SELECT value::text, block
		FROM token_offering_locked
		WHERE address = $1
		ORDER BY block
	`
	rows, err := r.pool.Query(ctx, query, address)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var offering TokenOfferingLocked
	locked, unlocked := int64(0), int64(0)
	for rows.Next() {
		var period UnlockPeriod
		if err := rows.Scan(&period.Amount, &period.BlockHeight); err != nil {
			return nil, false, err
		}
		amount, _ := parseAmount(period.Amount)
		if period.BlockHeight > blockHeight {
			locked += amount
		} else {
			unlocked += amount
		}
		offering.UnlockSchedule = append(offering.UnlockSchedule, period)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(offering.UnlockSchedule) == 0 {
		return nil, false, nil
	}
	offering.TotalLocked = formatAmount(locked)
	offering.TotalUnlocked = formatAmount(unlocked)
	return &offering, true, nil
}

func (r *PgReader) GetNftEvent(ctx context.Context, txID string, eventIndex int) (*NftEvent, bool, error) {
	query := `
		SELECT sender, recipient, asset_identifier, value::text, asset_event_type_id,
		       tx_id, tx_index, event_index, block_height
		FROM nft_events
		WHERE tx_id = $1 AND event_index = $2 AND canonical = true
		LIMIT 1
	`
	var ev NftEvent
	err := r.pool.QueryRow(ctx, query, txID, eventIndex).Scan(
		&ev.Sender, &ev.Recipient, &ev.AssetIdentifier, &ev.Value, &ev.AssetEventType,
		&ev.TxID, &ev.TxIndex, &ev.EventIndex, &ev.BlockHeight,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &ev, true, nil
}
