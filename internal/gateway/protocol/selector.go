// Package protocol selects the provider protocol configured for a scope.
package protocol

import (
	"sort"
	"strings"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol/ecom"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol/epayment"
)

// DefaultName is used when a scope configures no protocol or an unknown one.
const DefaultName = ecom.Name

type Selector struct {
	protocols map[string]domain.Protocol
	fallback  domain.Protocol
}

// NewSelector registers protocols by normalized name. The fallback must be one of them.
func NewSelector(fallback string, protocols ...domain.Protocol) *Selector {
	selector := &Selector{protocols: map[string]domain.Protocol{}}
	for _, p := range protocols {
		if p == nil {
			continue
		}
		name := normalize(p.Name())
		if name == "" {
			continue
		}
		selector.protocols[name] = p
	}
	selector.fallback = selector.protocols[normalize(fallback)]
	if selector.fallback == nil {
		for _, name := range selector.Names() {
			selector.fallback = selector.protocols[name]
			break
		}
	}
	return selector
}

// NewDefaultSelector registers every built-in protocol.
func NewDefaultSelector() *Selector {
	return NewSelector(DefaultName, ecom.New(), epayment.New())
}

func (s *Selector) Exists(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.protocols[normalize(name)]
	return ok
}

// Resolve never fails. Unknown names fall back to the default protocol.
func (s *Selector) Resolve(name string) domain.Protocol {
	if s == nil {
		return nil
	}
	if p, ok := s.protocols[normalize(name)]; ok {
		return p
	}
	return s.fallback
}

// All returns the registered protocols ordered by name.
func (s *Selector) All() []domain.Protocol {
	names := s.Names()
	out := make([]domain.Protocol, 0, len(names))
	for _, name := range names {
		out = append(out, s.protocols[name])
	}
	return out
}

func (s *Selector) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.protocols))
	for name := range s.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
