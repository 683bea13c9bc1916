package transaction

// Status is the semantic state derived from a snapshot.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusInitiated Status = "initiated"
	StatusReserved  Status = "reserved"
	StatusCaptured  Status = "captured"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusVoided    Status = "voided"
)

// Predicates are the derived flags of a snapshot. They are never stored.
type Predicates struct {
	Initiated bool
	Reserved  bool
	Captured  bool
	Cancelled bool
	Voided    bool
	Expired   bool
}

// Status collapses the predicates. Terminal outcomes win over money movement.
func (p Predicates) Status() Status {
	switch {
	case p.Cancelled:
		return StatusCancelled
	case p.Voided:
		return StatusVoided
	case p.Expired:
		return StatusExpired
	case p.Captured:
		return StatusCaptured
	case p.Reserved:
		return StatusReserved
	case p.Initiated:
		return StatusInitiated
	default:
		return StatusUnknown
	}
}

// Closed reports whether nothing can be reserved or captured anymore.
func (p Predicates) Closed() bool {
	return p.Cancelled || p.Voided || p.Expired
}

// StatusVisitor collects predicates using the strategy matching the snapshot shape.
type StatusVisitor struct {
	Result Predicates
}

func (v *StatusVisitor) VisitLegacy(s *LegacySnapshot) {
	v.Result = legacyPredicates(s)
}

func (v *StatusVisitor) VisitModern(s *ModernSnapshot) {
	v.Result = modernPredicates(s)
}

// Inspect derives the predicates of any snapshot.
func Inspect(s Snapshot) Predicates {
	if s == nil {
		return Predicates{}
	}
	v := &StatusVisitor{}
	s.Accept(v)
	return v.Result
}

func legacyPredicates(s *LegacySnapshot) Predicates {
	p := Predicates{Captured: s.summary.Captured > 0}

	lastReserve := -1
	for i, entry := range s.entries {
		if !entry.Success {
			continue
		}
		switch entry.Operation {
		case OperationInitiate:
			p.Initiated = true
		case OperationReserve, OperationSale:
			lastReserve = i
		case OperationCancel:
			p.Cancelled = true
		case OperationVoid:
			p.Voided = true
		case OperationExpired:
			p.Expired = true
		}
	}

	if lastReserve >= 0 {
		p.Reserved = true
		scope := s.entries[lastReserve].Amount
		for _, entry := range s.entries[lastReserve+1:] {
			if !entry.Success {
				continue
			}
			switch entry.Operation {
			case OperationCancel, OperationVoid, OperationRefund:
				if entry.Amount >= scope {
					p.Reserved = false
				}
			}
		}
	}
	return p
}

func modernPredicates(s *ModernSnapshot) Predicates {
	f := s.fields
	authorized := f.State == StateAuthorized && f.Authorized > 0
	return Predicates{
		Initiated: f.State != "",
		Reserved:  authorized && f.Cancelled < f.Authorized && f.Refunded < f.Authorized,
		Captured:  f.Captured > 0,
		Cancelled: f.State == StateAborted || f.State == StateTerminated || f.Aborted,
		Voided:    authorized && f.Cancelled >= f.Authorized,
		Expired:   f.State == StateExpired || f.Expired,
	}
}
