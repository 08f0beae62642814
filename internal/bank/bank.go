package bank

import (
	"fmt"
	"math"

	"github.com/louisbranch/memimg/internal/memimg/field"
	"github.com/louisbranch/memimg/internal/memimg/txn"
	"github.com/louisbranch/memimg/internal/memimg/validate"
	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
)

// Amount is a quantity of money in minor units.
type Amount int64

var (
	accountIDRule   = validate.Regex(`[a-z][a-z0-9_-]{0,31}`, "invalid account id")
	accountNameRule = validate.NotBlank("account name is required")
	balanceRule     = validate.Min(Amount(0), "insufficient funds")
)

// Account is one bank account. Only its balance changes after creation.
type Account struct {
	ID      string
	Name    string
	balance *field.Field[Amount]
}

func newAccount(id, name string) (*Account, error) {
	balance, err := field.New(accountEntity(id), "balance", Amount(0), balanceRule)
	if err != nil {
		return nil, err
	}
	return &Account{ID: id, Name: name, balance: balance}, nil
}

// Balance returns the current balance.
func (a *Account) Balance() Amount {
	return a.balance.Get()
}

func (a *Account) view() AccountView {
	return AccountView{ID: a.ID, Name: a.Name, Balance: a.Balance()}
}

// AccountView is the read-only shape returned to callers.
type AccountView struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Balance Amount `json:"balance" yaml:"balance"`
}

// Bank is the system: every account keyed by id.
type Bank struct {
	accounts *field.Map[string, *Account]
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{accounts: field.NewMap[string, *Account]("bank", "accounts")}
}

// Account looks up an account by id.
func (b *Bank) Account(id string) (*Account, error) {
	account, ok := b.accounts.Get(id)
	if !ok {
		return nil, apperrors.Application(apperrors.CodeNotFound, fmt.Sprintf("no such account: %s", id), nil)
	}
	return account, nil
}

// Accounts returns views of every account ordered by id.
func (b *Bank) Accounts() []AccountView {
	views := make([]AccountView, 0, b.accounts.Len())
	for _, id := range b.accounts.Keys() {
		account, _ := b.accounts.Get(id)
		views = append(views, account.view())
	}
	return views
}

func (b *Bank) open(tx *txn.Tx, id, name string) (*Account, error) {
	if err := validate.Check(id, validate.NotBlank("account id is required"), accountIDRule); err != nil {
		return nil, apperrors.Application(apperrors.CodeValidation, "account.id", err)
	}
	if err := validate.Check(name, accountNameRule); err != nil {
		return nil, apperrors.Application(apperrors.CodeValidation, "account.name", err)
	}
	if _, exists := b.accounts.Get(id); exists {
		return nil, apperrors.Application(apperrors.CodeAlreadyExists, fmt.Sprintf("account %s already exists", id), nil)
	}
	account, err := newAccount(id, name)
	if err != nil {
		return nil, err
	}
	if err := b.accounts.Put(tx, id, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (b *Bank) deposit(tx *txn.Tx, id string, amount Amount) (*Account, error) {
	if amount <= 0 {
		return nil, invalidAmount(amount)
	}
	account, err := b.Account(id)
	if err != nil {
		return nil, err
	}
	if balance := account.Balance(); amount > Amount(math.MaxInt64)-balance {
		return nil, apperrors.Application(apperrors.CodeInvalidAmount,
			fmt.Sprintf("deposit of %d overflows balance %d of account %s", amount, balance, id), nil)
	}
	return account, account.balance.Update(tx, func(balance Amount) Amount { return balance + amount })
}

func (b *Bank) withdraw(tx *txn.Tx, id string, amount Amount) (*Account, error) {
	if amount <= 0 {
		return nil, invalidAmount(amount)
	}
	account, err := b.Account(id)
	if err != nil {
		return nil, err
	}
	return account, account.balance.Update(tx, func(balance Amount) Amount { return balance - amount })
}

func invalidAmount(amount Amount) error {
	return apperrors.Application(apperrors.CodeInvalidAmount, fmt.Sprintf("amount must be positive: %d", amount), nil)
}

func accountEntity(id string) txn.EntityID {
	return txn.EntityID("account/" + id)
}
