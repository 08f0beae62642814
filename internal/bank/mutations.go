package bank

import (
	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/txn"
)

// Mutation types.
const (
	TypeCreateAccount event.Type = "bank.create_account"
	TypeDeposit       event.Type = "bank.deposit"
	TypeWithdrawal    event.Type = "bank.withdrawal"
	TypeTransfer      event.Type = "bank.transfer"
)

// CreateAccount opens an account with a zero balance.
type CreateAccount struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func (*CreateAccount) MutationType() event.Type { return TypeCreateAccount }

func (m *CreateAccount) ExecuteOn(tx *txn.Tx, b *Bank) (any, error) {
	account, err := b.open(tx, m.ID, m.Name)
	if err != nil {
		return nil, err
	}
	return account.view(), nil
}

// Deposit adds Amount to an account.
type Deposit struct {
	AccountID string `json:"account_id" yaml:"account_id"`
	Amount    Amount `json:"amount" yaml:"amount"`
}

func (*Deposit) MutationType() event.Type { return TypeDeposit }

func (m *Deposit) ExecuteOn(tx *txn.Tx, b *Bank) (any, error) {
	account, err := b.deposit(tx, m.AccountID, m.Amount)
	if err != nil {
		return nil, err
	}
	return account.view(), nil
}

// Withdrawal takes Amount from an account. The balance may not go negative.
type Withdrawal struct {
	AccountID string `json:"account_id" yaml:"account_id"`
	Amount    Amount `json:"amount" yaml:"amount"`
}

func (*Withdrawal) MutationType() event.Type { return TypeWithdrawal }

func (m *Withdrawal) ExecuteOn(tx *txn.Tx, b *Bank) (any, error) {
	account, err := b.withdraw(tx, m.AccountID, m.Amount)
	if err != nil {
		return nil, err
	}
	return account.view(), nil
}

// Transfer moves Amount between two accounts. The destination is credited
// before the source is debited, so an overdraft is undone by rollback.
type Transfer struct {
	FromAccountID string `json:"from_account_id" yaml:"from_account_id"`
	ToAccountID   string `json:"to_account_id" yaml:"to_account_id"`
	Amount        Amount `json:"amount" yaml:"amount"`
}

// TransferResult reports both accounts after a transfer.
type TransferResult struct {
	From AccountView `json:"from" yaml:"from"`
	To   AccountView `json:"to" yaml:"to"`
}

func (*Transfer) MutationType() event.Type { return TypeTransfer }

func (m *Transfer) ExecuteOn(tx *txn.Tx, b *Bank) (any, error) {
	to, err := b.deposit(tx, m.ToAccountID, m.Amount)
	if err != nil {
		return nil, err
	}
	from, err := b.withdraw(tx, m.FromAccountID, m.Amount)
	if err != nil {
		return nil, err
	}
	return TransferResult{From: from.view(), To: to.view()}, nil
}
