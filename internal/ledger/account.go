package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCollateral AccountSubType = iota
	SubTypeLockedCollateral

	// System sub-types
	SubTypeSystemLiquidity
	SubTypeSystemInterest

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
	SubTypeExternalDisbursements
	SubTypeExternalRepayments
)

// AssetID maps asset strings to numeric IDs for performance. Collateral
// tokens are pre-registered; synthetic currencies register at CurrencyAdded.
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDT": 1,
		"USDC": 2,
	}
	idToAsset = map[AssetID]string{
		1: "USDT",
		2: "USDC",
	}
	nextAssetID AssetID = 3
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// RegisterAsset assigns an id to a new asset symbol. Idempotent for known
// symbols. Only called from the single-threaded core.
func RegisterAsset(asset string) AssetID {
	if id, ok := assetToID[asset]; ok {
		return id
	}
	id := nextAssetID
	nextAssetID++
	assetToID[asset] = id
	idToAsset[id] = asset
	return id
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, zero for system/external accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// balances from a snapshot. Unknown paths map to the zero key.
func ParseAccountPath(path string) AccountKey {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 4 && parts[0] == "user":
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}
		}
		subType, ok := subTypeFromName(parts[2])
		if !ok {
			return AccountKey{}
		}
		assetID, _ := GetAssetID(parts[3])
		return NewUserAccountKey(uid, subType, assetID)

	case len(parts) == 3 && parts[0] == "system":
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}
		}
		assetID, _ := GetAssetID(parts[2])
		return NewSystemAccountKey(subType, assetID)

	case len(parts) == 3 && parts[0] == "external":
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}
		}
		assetID, _ := GetAssetID(parts[2])
		return NewExternalAccountKey(subType, assetID)
	}
	return AccountKey{}
}

func subTypeFromName(name string) (AccountSubType, bool) {
	switch name {
	case "collateral":
		return SubTypeCollateral, true
	case "locked_collateral":
		return SubTypeLockedCollateral, true
	case "liquidity":
		return SubTypeSystemLiquidity, true
	case "interest":
		return SubTypeSystemInterest, true
	case "deposits":
		return SubTypeExternalDeposits, true
	case "withdrawals":
		return SubTypeExternalWithdrawals, true
	case "disbursements":
		return SubTypeExternalDisbursements, true
	case "repayments":
		return SubTypeExternalRepayments, true
	}
	return 0, false
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCollateral:
		return "collateral"
	case SubTypeLockedCollateral:
		return "locked_collateral"
	case SubTypeSystemLiquidity:
		return "liquidity"
	case SubTypeSystemInterest:
		return "interest"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	case SubTypeExternalDisbursements:
		return "disbursements"
	case SubTypeExternalRepayments:
		return "repayments"
	default:
		return "unknown"
	}
}
