// Package transaction derives a single payment status from provider responses.
//
// The legacy protocol reports an ordered operation log, the modern protocol a
// flattened state label. Both are held behind the sealed Snapshot union and
// inspected through Inspect, so callers never branch on protocol.
package transaction

import "strings"

const (
	ProtocolLegacy = "ecom"
	ProtocolModern = "epayment"
)

// Snapshot is an immutable view of a provider transaction built from one response.
type Snapshot interface {
	Protocol() string
	Reference() string
	Currency() string
	Summary() Summary
	Accept(v Visitor)
}

// Visitor dispatches on the concrete snapshot shape.
type Visitor interface {
	VisitLegacy(s *LegacySnapshot)
	VisitModern(s *ModernSnapshot)
}

// LegacySnapshot wraps an operation log ordered oldest to newest.
type LegacySnapshot struct {
	reference string
	entries   []LogEntry
	summary   Summary
}

// NewLegacySnapshot copies entries, which must already be in chronological order.
func NewLegacySnapshot(reference string, entries []LogEntry) *LegacySnapshot {
	log := make([]LogEntry, len(entries))
	copy(log, entries)
	return &LegacySnapshot{
		reference: strings.TrimSpace(reference),
		entries:   log,
		summary:   fold(log),
	}
}

func (s *LegacySnapshot) Protocol() string  { return ProtocolLegacy }
func (s *LegacySnapshot) Reference() string { return s.reference }
func (s *LegacySnapshot) Currency() string  { return "NOK" }
func (s *LegacySnapshot) Summary() Summary  { return s.summary }
func (s *LegacySnapshot) Accept(v Visitor)  { v.VisitLegacy(s) }

// Entries returns a copy of the operation log.
func (s *LegacySnapshot) Entries() []LogEntry {
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ModernState is the state label reported by the modern protocol.
type ModernState string

const (
	StateCreated    ModernState = "CREATED"
	StateAuthorized ModernState = "AUTHORIZED"
	StateAborted    ModernState = "ABORTED"
	StateExpired    ModernState = "EXPIRED"
	StateTerminated ModernState = "TERMINATED"
)

// ModernFields carries the decoded modern payment response.
type ModernFields struct {
	Reference    string
	State        ModernState
	Aborted      bool
	Expired      bool
	Currency     string
	PSPReference string
	Authorized   int64
	Captured     int64
	Refunded     int64
	Cancelled    int64
}

// ModernSnapshot wraps a state label and the provider-side aggregate.
type ModernSnapshot struct {
	fields  ModernFields
	summary Summary
}

func NewModernSnapshot(fields ModernFields) *ModernSnapshot {
	fields.Reference = strings.TrimSpace(fields.Reference)
	fields.State = ModernState(strings.ToUpper(strings.TrimSpace(string(fields.State))))
	fields.Currency = strings.ToUpper(strings.TrimSpace(fields.Currency))
	return &ModernSnapshot{
		fields: fields,
		summary: Summary{
			Reserved:  fields.Authorized,
			Captured:  fields.Captured,
			Refunded:  fields.Refunded,
			Cancelled: fields.Cancelled,
			Remaining: remaining(fields.Authorized, fields.Captured, fields.Cancelled),
		},
	}
}

func (s *ModernSnapshot) Protocol() string     { return ProtocolModern }
func (s *ModernSnapshot) Reference() string    { return s.fields.Reference }
func (s *ModernSnapshot) Currency() string     { return s.fields.Currency }
func (s *ModernSnapshot) Summary() Summary     { return s.summary }
func (s *ModernSnapshot) Accept(v Visitor)     { v.VisitModern(s) }
func (s *ModernSnapshot) State() ModernState   { return s.fields.State }
func (s *ModernSnapshot) PSPReference() string { return s.fields.PSPReference }
