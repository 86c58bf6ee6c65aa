package wsrpc

import (
	"encoding/json"

	"github.com/hirosystems/stacks-blockchain-api-sub006/topics"
)

// topicFromParams translates subscribe/unsubscribe params into a validated,
// normalized topic. Every failure names the offending field in the returned
// Invalid Params error.
func topicFromParams(raw json.RawMessage) (topics.Topic, *rpcError) {
	if len(raw) == 0 {
		return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "missing params"}
	}
	var params subscribeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	if params.Event == "" {
		return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "missing event"}
	}
	family, ok := topics.FamilyForEvent(params.Event)
	if !ok {
		return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "unknown event " + params.Event}
	}

	var topic topics.Topic
	switch family {
	case topics.FamilyBlock, topics.FamilyMicroblock, topics.FamilyMempool, topics.FamilyNFTEvent:
		topic = topics.Topic{Family: family}
	case topics.FamilyTransaction:
		if params.TxID == "" {
			return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "missing tx_id"}
		}
		topic = topics.Transaction(params.TxID)
	case topics.FamilyAddressTransaction, topics.FamilyAddressBalance:
		if params.Address == "" {
			return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "missing address"}
		}
		topic = topics.Topic{Family: family, Address: params.Address}
	case topics.FamilyNFTAssetEvent:
		if params.AssetIdentifier == "" {
			return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "missing asset_identifier"}
		}
		if params.Value == "" {
			return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "missing value"}
		}
		topic = topics.NFTAssetEvent(params.AssetIdentifier, params.Value)
	case topics.FamilyNFTCollectionEvent:
		if params.AssetIdentifier == "" {
			return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: "missing asset_identifier"}
		}
		topic = topics.NFTCollectionEvent(params.AssetIdentifier)
	}

	normalized, err := topic.Normalize()
	if err != nil {
		return topics.Topic{}, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	return normalized, nil
}

// paramsEcho builds the success result: the normalized parameters the
// subscription was registered under.
func paramsEcho(t topics.Topic) map[string]string {
	switch t.Family {
	case topics.FamilyBlock, topics.FamilyMicroblock, topics.FamilyMempool, topics.FamilyNFTEvent:
		return map[string]string{"event": t.Family.Event()}
	case topics.FamilyTransaction:
		return map[string]string{"tx_id": t.TxID}
	case topics.FamilyAddressTransaction, topics.FamilyAddressBalance:
		return map[string]string{"address": t.Address}
	case topics.FamilyNFTAssetEvent:
		return map[string]string{"asset_identifier": t.AssetIdentifier, "value": t.Value}
	case topics.FamilyNFTCollectionEvent:
		return map[string]string{"asset_identifier": t.AssetIdentifier}
	}
	return map[string]string{"event": t.Family.Event()}
}
