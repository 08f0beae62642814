package bank

import (
	"github.com/louisbranch/memimg/internal/memimg"
)

// NewRegistry registers every bank mutation and query.
func NewRegistry() (*memimg.Registry[*Bank], error) {
	registry := memimg.NewRegistry[*Bank]()
	for _, factory := range []func() memimg.Mutation[*Bank]{
		func() memimg.Mutation[*Bank] { return &CreateAccount{} },
		func() memimg.Mutation[*Bank] { return &Deposit{} },
		func() memimg.Mutation[*Bank] { return &Withdrawal{} },
		func() memimg.Mutation[*Bank] { return &Transfer{} },
	} {
		if err := registry.RegisterMutation(factory); err != nil {
			return nil, err
		}
	}
	for _, factory := range []func() memimg.Query[*Bank]{
		func() memimg.Query[*Bank] { return &AccountByID{} },
		func() memimg.Query[*Bank] { return &ListAccounts{} },
		func() memimg.Query[*Bank] { return &TotalBalance{} },
	} {
		if err := registry.RegisterQuery(factory); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
