package pubsub

import "fmt"

// SignalKind enumerates the upstream change events the transmitter consumes.
type SignalKind int

const (
	SignalBlockCommitted SignalKind = iota
	SignalMicroblockCommitted
	SignalTxTouched
	SignalAddressTouched
	SignalNftEventRecorded
)

func (k SignalKind) String() string {
	switch k {
	case SignalBlockCommitted:
		return "block_committed"
	case SignalMicroblockCommitted:
		return "microblock_committed"
	case SignalTxTouched:
		return "tx_touched"
	case SignalAddressTouched:
		return "address_touched"
	case SignalNftEventRecorded:
		return "nft_event_recorded"
	}
	return fmt.Sprintf("SignalKind(%d)", int(k))
}

// Signal is an internal change event. It carries only identifiers, never
// payloads: the transmitter rehydrates the referenced entity from storage at
// send time, which is what absorbs reorgs between signal and delivery.
type Signal struct {
	Kind SignalKind

	// BlockHash identifies a block or microblock for the committed kinds.
	BlockHash string
	// TxID identifies the transaction for tx and NFT kinds.
	TxID string
	// Address and BlockHeight scope an address-touched signal.
	Address     string
	BlockHeight int64
	// EventIndex selects the NFT event within TxID.
	EventIndex int
}

func BlockCommitted(hash string) Signal {
	return Signal{Kind: SignalBlockCommitted, BlockHash: hash}
}

func MicroblockCommitted(hash string) Signal {
	return Signal{Kind: SignalMicroblockCommitted, BlockHash: hash}
}

func TxTouched(txID string) Signal {
	return Signal{Kind: SignalTxTouched, TxID: txID}
}

func AddressTouched(address string, blockHeight int64) Signal {
	return Signal{Kind: SignalAddressTouched, Address: address, BlockHeight: blockHeight}
}

func NftEventRecorded(txID string, eventIndex int) Signal {
	return Signal{Kind: SignalNftEventRecorded, TxID: txID, EventIndex: eventIndex}
}
