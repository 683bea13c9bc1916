package transaction

import "time"

// Operation is an entry kind in the legacy provider operation log.
type Operation string

const (
	OperationInitiate Operation = "INITIATE"
	OperationReserve  Operation = "RESERVE"
	OperationSale     Operation = "SALE"
	OperationCapture  Operation = "CAPTURE"
	OperationCancel   Operation = "CANCEL"
	OperationVoid     Operation = "VOID"
	OperationRefund   Operation = "REFUND"
	OperationFailed   Operation = "FAILED"
	OperationRejected Operation = "REJECTED"
	OperationExpired  Operation = "EXPIRED"
)

// LogEntry is one provider-reported operation.
type LogEntry struct {
	Operation     Operation
	Amount        int64
	Success       bool
	RequestID     string
	TransactionID string
	Timestamp     time.Time
}

// Summary is the accumulated money view of a transaction, in minor units.
type Summary struct {
	Reserved  int64
	Captured  int64
	Refunded  int64
	Cancelled int64
	Remaining int64
}

func fold(entries []LogEntry) Summary {
	var s Summary
	for _, entry := range entries {
		if !entry.Success {
			continue
		}
		switch entry.Operation {
		case OperationReserve:
			s.Reserved += entry.Amount
		case OperationSale:
			s.Reserved += entry.Amount
			s.Captured += entry.Amount
		case OperationCapture:
			s.Captured += entry.Amount
		case OperationRefund:
			s.Refunded += entry.Amount
		case OperationCancel, OperationVoid:
			s.Cancelled += entry.Amount
		}
	}
	s.Remaining = remaining(s.Reserved, s.Captured, s.Cancelled)
	return s
}

func remaining(reserved, captured, cancelled int64) int64 {
	left := reserved - captured - cancelled
	if left < 0 {
		return 0
	}
	return left
}
