package topics

import (
	"fmt"
	"regexp"
	"strings"
)

// Crockford base32 alphabet used by c32check addresses: no I, L, O or U.
var (
	stdPrincipalRe = regexp.MustCompile(`^S[0-9ABCDEFGHJKMNPQRSTVWXYZ]{38,40}$`)
	contractNameRe = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9]|[-_]){0,47}$`)
	txIDNoPrefixRe = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// NormalizeTxID validates a transaction id and returns it in canonical form:
// lowercase hex with any leading 0x stripped.
func NormalizeTxID(txID string) (string, error) {
	normalized := strings.ToLower(strings.TrimPrefix(txID, "0x"))
	if !txIDNoPrefixRe.MatchString(normalized) {
		return "", fmt.Errorf("invalid tx_id %q: expected 64 hex characters with optional 0x prefix", txID)
	}
	return normalized, nil
}

// ValidatePrincipal checks that the string is a syntactically valid chain
// principal, either a standard address or a contract-qualified one.
func ValidatePrincipal(principal string) error {
	address, contractName, qualified := strings.Cut(principal, ".")
	if !stdPrincipalRe.MatchString(address) {
		return fmt.Errorf("invalid address %q: not a valid principal", principal)
	}
	if qualified && !contractNameRe.MatchString(contractName) {
		return fmt.Errorf("invalid address %q: malformed contract name", principal)
	}
	return nil
}

// ValidateAssetIdentifier checks an NFT asset identifier of the form
// `<contract-principal>::<asset-name>`.
func ValidateAssetIdentifier(assetIdentifier string) error {
	contract, assetName, ok := strings.Cut(assetIdentifier, "::")
	if !ok {
		return fmt.Errorf("invalid asset_identifier %q: missing :: separator", assetIdentifier)
	}
	address, contractName, qualified := strings.Cut(contract, ".")
	if !qualified || !stdPrincipalRe.MatchString(address) || !contractNameRe.MatchString(contractName) {
		return fmt.Errorf("invalid asset_identifier %q: malformed contract principal", assetIdentifier)
	}
	if !contractNameRe.MatchString(assetName) {
		return fmt.Errorf("invalid asset_identifier %q: malformed asset name", assetIdentifier)
	}
	return nil
}
