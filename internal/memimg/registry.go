package memimg

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/louisbranch/memimg/internal/memimg/event"
	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
)

// Registry maps mutation and query type names to factories that return
// fresh, decodable values.
type Registry[S any] struct {
	mutations map[event.Type]func() Mutation[S]
	queries   map[string]func() Query[S]
}

// NewRegistry returns an empty registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{
		mutations: make(map[event.Type]func() Mutation[S]),
		queries:   make(map[string]func() Query[S]),
	}
}

// RegisterMutation adds a mutation type. factory must return a pointer so
// payloads can be decoded into it.
func (r *Registry[S]) RegisterMutation(factory func() Mutation[S]) error {
	if factory == nil {
		return fmt.Errorf("mutation factory is required")
	}
	mutationType := factory().MutationType()
	if strings.TrimSpace(string(mutationType)) == "" {
		return fmt.Errorf("mutation type is required")
	}
	if _, exists := r.mutations[mutationType]; exists {
		return fmt.Errorf("mutation type %s already registered", mutationType)
	}
	r.mutations[mutationType] = factory
	return nil
}

// RegisterQuery adds a query type.
func (r *Registry[S]) RegisterQuery(factory func() Query[S]) error {
	if factory == nil {
		return fmt.Errorf("query factory is required")
	}
	queryType := factory().QueryType()
	if strings.TrimSpace(queryType) == "" {
		return fmt.Errorf("query type is required")
	}
	if _, exists := r.queries[queryType]; exists {
		return fmt.Errorf("query type %s already registered", queryType)
	}
	r.queries[queryType] = factory
	return nil
}

// NewMutation returns a zero mutation of the given type.
func (r *Registry[S]) NewMutation(mutationType event.Type) (Mutation[S], error) {
	factory, ok := r.mutations[mutationType]
	if !ok {
		return nil, apperrors.Application(apperrors.CodeUnknownMutationType, fmt.Sprintf("unknown mutation type %q", mutationType), nil)
	}
	return factory(), nil
}

// NewQuery returns a zero query of the given type.
func (r *Registry[S]) NewQuery(queryType string) (Query[S], error) {
	factory, ok := r.queries[queryType]
	if !ok {
		return nil, apperrors.Application(apperrors.CodeUnknownQueryType, fmt.Sprintf("unknown query type %q", queryType), nil)
	}
	return factory(), nil
}

// MutationTypes returns the registered mutation types in order.
func (r *Registry[S]) MutationTypes() []event.Type {
	types := make([]event.Type, 0, len(r.mutations))
	for mutationType := range r.mutations {
		types = append(types, mutationType)
	}
	slices.Sort(types)
	return types
}

// QueryTypes returns the registered query types in order.
func (r *Registry[S]) QueryTypes() []string {
	types := make([]string, 0, len(r.queries))
	for queryType := range r.queries {
		types = append(types, queryType)
	}
	slices.Sort(types)
	return types
}

// Encode serializes m into an event envelope. Identity and timestamp are
// left for the caller.
func (r *Registry[S]) Encode(m Mutation[S]) (event.Event, error) {
	mutationType := m.MutationType()
	if _, ok := r.mutations[mutationType]; !ok {
		return event.Event{}, apperrors.Application(apperrors.CodeUnknownMutationType, fmt.Sprintf("unknown mutation type %q", mutationType), nil)
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return event.Event{}, fmt.Errorf("encode %s payload: %w", mutationType, err)
	}
	return event.Event{Type: mutationType, PayloadJSON: payload}, nil
}

// Decode rebuilds the mutation recorded in evt.
func (r *Registry[S]) Decode(evt event.Event) (Mutation[S], error) {
	m, err := r.NewMutation(evt.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(evt.PayloadJSON, m); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return m, nil
}
