package telephony

import "sort"

// Registry maps the closed provider enum to adapter instances. It is built
// once at startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	providers map[ProviderName]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[ProviderName]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get resolves an adapter. Unknown identifiers are rejected here rather than
// via an unchecked map lookup downstream.
func (r *Registry) Get(name ProviderName) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, &UnknownProviderError{Name: string(name)}
	}
	return p, nil
}

func (r *Registry) Names() []ProviderName {
	out := make([]ProviderName, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
