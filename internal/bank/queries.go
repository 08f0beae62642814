package bank

// Query types.
const (
	QueryAccountByID  = "bank.account"
	QueryListAccounts = "bank.accounts"
	QueryTotalBalance = "bank.total_balance"
)

// AccountByID returns one account.
type AccountByID struct {
	ID string `json:"id" yaml:"id"`
}

func (*AccountByID) QueryType() string { return QueryAccountByID }

func (q *AccountByID) QueryOn(b *Bank) (any, error) {
	account, err := b.Account(q.ID)
	if err != nil {
		return nil, err
	}
	return account.view(), nil
}

// ListAccounts returns every account ordered by id.
type ListAccounts struct{}

func (*ListAccounts) QueryType() string { return QueryListAccounts }

func (*ListAccounts) QueryOn(b *Bank) (any, error) {
	return b.Accounts(), nil
}

// TotalBalance sums every account balance.
type TotalBalance struct{}

func (*TotalBalance) QueryType() string { return QueryTotalBalance }

func (*TotalBalance) QueryOn(b *Bank) (any, error) {
	var total Amount
	for _, account := range b.Accounts() {
		total += account.Balance
	}
	return total, nil
}
