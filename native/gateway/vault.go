package gateway

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FundMover moves value between callers and gateway custody. Admission
// deposits into custody; settlement releases out of it. Implementations must
// fail without side effects, since the callers rely on a failed move leaving
// counters untouched.
type FundMover interface {
	Deposit(token common.Address, from common.Address, amount *big.Int) error
	Release(token common.Address, to common.Address, amount *big.Int) error
	Balance(token common.Address) (*big.Int, error)
}

// Vault is the storage-backed FundMover keeping one custody balance per token.
type Vault struct {
	store Storage
}

// NewVault constructs a vault over the provided storage adapter.
func NewVault(store Storage) *Vault {
	return &Vault{store: store}
}

// Deposit credits the token's custody balance.
func (v *Vault) Deposit(token common.Address, from common.Address, amount *big.Int) error {
	if v == nil {
		return fmt.Errorf("vault not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := loadAmount(v.store, vaultBalanceKey(token))
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(balance, amount)
	return v.store.KVPut(vaultBalanceKey(token), amountRecord{Amount: updated.String()})
}

// Release debits the token's custody balance towards the recipient. The debit
// fails whole when custody cannot cover it.
func (v *Vault) Release(token common.Address, to common.Address, amount *big.Int) error {
	if v == nil {
		return fmt.Errorf("vault not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	balance, err := loadAmount(v.store, vaultBalanceKey(token))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	updated := new(big.Int).Sub(balance, amount)
	return v.store.KVPut(vaultBalanceKey(token), amountRecord{Amount: updated.String()})
}

// Balance reports the token's current custody balance.
func (v *Vault) Balance(token common.Address) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("vault not initialised")
	}
	return loadAmount(v.store, vaultBalanceKey(token))
}
