// Package topics defines the closed set of subscribable topic families, the
// composite topic keys clients subscribe with, and the validators for every
// embedded parameter.
package topics

import (
	"fmt"
	"strings"
)

// Family enumerates the topic families clients can subscribe to. The set is
// closed: every dispatch point switches exhaustively over it.
type Family int

const (
	FamilyBlock Family = iota
	FamilyMicroblock
	FamilyMempool
	FamilyNFTEvent
	FamilyTransaction
	FamilyAddressTransaction
	FamilyAddressBalance
	FamilyNFTAssetEvent
	FamilyNFTCollectionEvent
)

// AllFamilies lists every topic family, one registry per entry on the RPC
// transport.
var AllFamilies = []Family{
	FamilyBlock,
	FamilyMicroblock,
	FamilyMempool,
	FamilyNFTEvent,
	FamilyTransaction,
	FamilyAddressTransaction,
	FamilyAddressBalance,
	FamilyNFTAssetEvent,
	FamilyNFTCollectionEvent,
}

// String returns the topic-key prefix for the family.
func (f Family) String() string {
	switch f {
	case FamilyBlock:
		return "block"
	case FamilyMicroblock:
		return "microblock"
	case FamilyMempool:
		return "mempool"
	case FamilyNFTEvent:
		return "nft-event"
	case FamilyTransaction:
		return "transaction"
	case FamilyAddressTransaction:
		return "address-transaction"
	case FamilyAddressBalance:
		return "address-balance"
	case FamilyNFTAssetEvent:
		return "nft-asset-event"
	case FamilyNFTCollectionEvent:
		return "nft-collection-event"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Event returns the wire-level event name used in RPC requests and in
// server-to-client notifications.
func (f Family) Event() string {
	switch f {
	case FamilyBlock:
		return "block"
	case FamilyMicroblock:
		return "microblock"
	case FamilyMempool:
		return "mempool"
	case FamilyNFTEvent:
		return "nft_event"
	case FamilyTransaction:
		return "tx_update"
	case FamilyAddressTransaction:
		return "address_tx_update"
	case FamilyAddressBalance:
		return "address_balance_update"
	case FamilyNFTAssetEvent:
		return "nft_asset_event"
	case FamilyNFTCollectionEvent:
		return "nft_collection_event"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Parameterized reports whether topics of this family carry a parameter as
// part of their identity.
func (f Family) Parameterized() bool {
	switch f {
	case FamilyBlock, FamilyMicroblock, FamilyMempool, FamilyNFTEvent:
		return false
	case FamilyTransaction, FamilyAddressTransaction, FamilyAddressBalance,
		FamilyNFTAssetEvent, FamilyNFTCollectionEvent:
		return true
	}
	return false
}

// FamilyForEvent resolves a wire-level event name back to its family.
func FamilyForEvent(event string) (Family, bool) {
	for _, f := range AllFamilies {
		if f.Event() == event {
			return f, true
		}
	}
	return 0, false
}

// Topic identifies one subscribable stream: a family plus, for parameterized
// families, the parameter that is part of the topic's identity. Exactly the
// fields relevant to the family are set; the rest stay zero.
type Topic struct {
	Family Family

	// TxID is set for FamilyTransaction.
	TxID string
	// Address is set for FamilyAddressTransaction and FamilyAddressBalance.
	Address string
	// AssetIdentifier is set for FamilyNFTAssetEvent and FamilyNFTCollectionEvent.
	AssetIdentifier string
	// Value is set for FamilyNFTAssetEvent.
	Value string
}

func Block() Topic      { return Topic{Family: FamilyBlock} }
func Microblock() Topic { return Topic{Family: FamilyMicroblock} }
func Mempool() Topic    { return Topic{Family: FamilyMempool} }
func NFTEvent() Topic   { return Topic{Family: FamilyNFTEvent} }

func Transaction(txID string) Topic {
	return Topic{Family: FamilyTransaction, TxID: txID}
}

func AddressTransaction(address string) Topic {
	return Topic{Family: FamilyAddressTransaction, Address: address}
}

func AddressBalance(address string) Topic {
	return Topic{Family: FamilyAddressBalance, Address: address}
}

func NFTAssetEvent(assetIdentifier, value string) Topic {
	return Topic{Family: FamilyNFTAssetEvent, AssetIdentifier: assetIdentifier, Value: value}
}

func NFTCollectionEvent(assetIdentifier string) Topic {
	return Topic{Family: FamilyNFTCollectionEvent, AssetIdentifier: assetIdentifier}
}

// Key returns the composite topic key: the bare family name for static
// topics, `family:param` for parameterized ones. Two subscriptions with the
// same family but different parameters are independent topics.
func (t Topic) Key() string {
	switch t.Family {
	case FamilyBlock, FamilyMicroblock, FamilyMempool, FamilyNFTEvent:
		return t.Family.String()
	case FamilyTransaction:
		return t.Family.String() + ":" + t.TxID
	case FamilyAddressTransaction, FamilyAddressBalance:
		return t.Family.String() + ":" + t.Address
	case FamilyNFTAssetEvent:
		return t.Family.String() + ":" + t.AssetIdentifier + "+" + t.Value
	case FamilyNFTCollectionEvent:
		return t.Family.String() + ":" + t.AssetIdentifier
	}
	return t.Family.String()
}

// ParseKey parses a composite topic key back into a Topic. The inverse of
// Key, used for handshake-time subscription lists on the room transport.
func ParseKey(key string) (Topic, error) {
	name, param, hasParam := strings.Cut(key, ":")
	for _, f := range AllFamilies {
		if f.String() != name {
			continue
		}
		if !f.Parameterized() {
			if hasParam {
				return Topic{}, fmt.Errorf("topic %q takes no parameter", name)
			}
			return Topic{Family: f}, nil
		}
		if !hasParam || param == "" {
			return Topic{}, fmt.Errorf("topic %q requires a parameter", name)
		}
		switch f {
		case FamilyTransaction:
			return Topic{Family: f, TxID: param}, nil
		case FamilyAddressTransaction, FamilyAddressBalance:
			return Topic{Family: f, Address: param}, nil
		case FamilyNFTAssetEvent:
			asset, value, ok := strings.Cut(param, "+")
			if !ok || asset == "" || value == "" {
				return Topic{}, fmt.Errorf("topic %q requires an asset_identifier+value parameter", name)
			}
			return Topic{Family: f, AssetIdentifier: asset, Value: value}, nil
		case FamilyNFTCollectionEvent:
			return Topic{Family: f, AssetIdentifier: param}, nil
		}
	}
	return Topic{}, fmt.Errorf("unknown topic %q", name)
}

// Normalize validates the topic's parameter against its family's validator
// and returns the topic with the parameter in canonical form. Validation
// failures are reported to the caller, never swallowed.
func (t Topic) Normalize() (Topic, error) {
	switch t.Family {
	case FamilyBlock, FamilyMicroblock, FamilyMempool, FamilyNFTEvent:
		return t, nil
	case FamilyTransaction:
		txID, err := NormalizeTxID(t.TxID)
		if err != nil {
			return Topic{}, err
		}
		t.TxID = txID
		return t, nil
	case FamilyAddressTransaction, FamilyAddressBalance:
		if err := ValidatePrincipal(t.Address); err != nil {
			return Topic{}, err
		}
		return t, nil
	case FamilyNFTAssetEvent:
		if err := ValidateAssetIdentifier(t.AssetIdentifier); err != nil {
			return Topic{}, err
		}
		if t.Value == "" {
			return Topic{}, fmt.Errorf("invalid value: must not be empty")
		}
		return t, nil
	case FamilyNFTCollectionEvent:
		if err := ValidateAssetIdentifier(t.AssetIdentifier); err != nil {
			return Topic{}, err
		}
		return t, nil
	}
	return Topic{}, fmt.Errorf("unknown topic family %d", int(t.Family))
}
