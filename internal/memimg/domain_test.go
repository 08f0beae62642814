package memimg_test

import (
	"errors"
	"fmt"

	"github.com/louisbranch/memimg/internal/memimg"
	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/field"
	"github.com/louisbranch/memimg/internal/memimg/txn"
)

// counters is a minimal system: named integer counters.
type counters struct {
	values *field.Map[string, int]
}

func newCounters() *counters {
	return &counters{values: field.NewMap[string, int]("counters", "values")}
}

func (c *counters) snapshot() map[string]int {
	out := make(map[string]int, c.values.Len())
	for _, key := range c.values.Keys() {
		out[key], _ = c.values.Get(key)
	}
	return out
}

type add struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

func (add) MutationType() event.Type { return "test.add" }

func (m *add) ExecuteOn(tx *txn.Tx, system *counters) (any, error) {
	current, _ := system.values.Get(m.Name)
	next := current + m.Delta
	if next < 0 {
		return nil, fmt.Errorf("%s would become negative", m.Name)
	}
	if err := system.values.Put(tx, m.Name, next); err != nil {
		return nil, err
	}
	return next, nil
}

// steps writes every value in order, then fails when Fail is set.
type steps struct {
	Name   string `json:"name"`
	Values []int  `json:"values"`
	Fail   bool   `json:"fail"`
}

func (steps) MutationType() event.Type { return "test.steps" }

func (m *steps) ExecuteOn(tx *txn.Tx, system *counters) (any, error) {
	for _, value := range m.Values {
		if err := system.values.Put(tx, m.Name, value); err != nil {
			return nil, err
		}
	}
	if m.Fail {
		return nil, errors.New("step failed")
	}
	return nil, nil
}

type explode struct {
	Name string `json:"name"`
}

func (explode) MutationType() event.Type { return "test.explode" }

func (m *explode) ExecuteOn(tx *txn.Tx, system *counters) (any, error) {
	if err := system.values.Put(tx, m.Name, -1); err != nil {
		return nil, err
	}
	panic("boom")
}

// corrupt journals an undo that cannot succeed, then fails.
type corrupt struct{}

func (corrupt) MutationType() event.Type { return "test.corrupt" }

func (corrupt) ExecuteOn(tx *txn.Tx, _ *counters) (any, error) {
	tx.Remember(txn.Key{Entity: "counters", Field: "broken"}, func() error {
		return errors.New("cannot undo")
	})
	return nil, errors.New("abort")
}

type get struct {
	Name string `json:"name"`
}

func (get) QueryType() string { return "test.get" }

func (q *get) QueryOn(system *counters) (any, error) {
	value, ok := system.values.Get(q.Name)
	if !ok {
		return nil, fmt.Errorf("no counter %q", q.Name)
	}
	return value, nil
}

func newRegistry() *memimg.Registry[*counters] {
	registry := memimg.NewRegistry[*counters]()
	for _, factory := range []func() memimg.Mutation[*counters]{
		func() memimg.Mutation[*counters] { return &add{} },
		func() memimg.Mutation[*counters] { return &steps{} },
		func() memimg.Mutation[*counters] { return &explode{} },
		func() memimg.Mutation[*counters] { return &corrupt{} },
	} {
		if err := registry.RegisterMutation(factory); err != nil {
			panic(err)
		}
	}
	if err := registry.RegisterQuery(func() memimg.Query[*counters] { return &get{} }); err != nil {
		panic(err)
	}
	return registry
}
