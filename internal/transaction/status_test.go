package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func entry(op Operation, amount int64, success bool, at time.Time) LogEntry {
	return LogEntry{Operation: op, Amount: amount, Success: success, Timestamp: at}
}

func TestLegacyReservedThenCaptured(t *testing.T) {
	t0 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	snap := NewLegacySnapshot("wp-1", []LogEntry{
		entry(OperationInitiate, 5000, true, t0),
		entry(OperationReserve, 5000, true, t0.Add(time.Minute)),
	})

	p := Inspect(snap)
	assert.True(t, p.Initiated)
	assert.True(t, p.Reserved)
	assert.False(t, p.Captured)
	assert.Equal(t, StatusReserved, p.Status())
	assert.Equal(t, int64(5000), snap.Summary().Remaining)

	captured := NewLegacySnapshot("wp-1", append(snap.Entries(), entry(OperationCapture, 5000, true, t0.Add(2*time.Minute))))
	p = Inspect(captured)
	assert.True(t, p.Captured)
	assert.True(t, p.Reserved, "capture does not release the reservation flag")
	assert.Equal(t, StatusCaptured, p.Status())
	assert.Equal(t, int64(5000), captured.Summary().Captured)
	assert.Equal(t, int64(0), captured.Summary().Remaining)
}

func TestLegacyFailedReserveIsNotReserved(t *testing.T) {
	t0 := time.Now()
	snap := NewLegacySnapshot("wp-2", []LogEntry{
		entry(OperationInitiate, 1000, true, t0),
		entry(OperationReserve, 1000, false, t0.Add(time.Second)),
	})

	p := Inspect(snap)
	assert.False(t, p.Reserved)
	assert.Equal(t, StatusInitiated, p.Status())
}

func TestLegacyCancelIsTerminal(t *testing.T) {
	t0 := time.Now()
	snap := NewLegacySnapshot("wp-3", []LogEntry{
		entry(OperationInitiate, 1000, true, t0),
		entry(OperationReserve, 1000, true, t0.Add(time.Second)),
		entry(OperationCancel, 1000, true, t0.Add(2*time.Second)),
		entry(OperationReserve, 1000, true, t0.Add(3*time.Second)),
	})

	p := Inspect(snap)
	assert.True(t, p.Cancelled)
	assert.Equal(t, StatusCancelled, p.Status())
}

func TestLegacyFullRefundReleasesReservation(t *testing.T) {
	t0 := time.Now()
	snap := NewLegacySnapshot("wp-4", []LogEntry{
		entry(OperationReserve, 800, true, t0),
		entry(OperationCapture, 800, true, t0.Add(time.Second)),
		entry(OperationRefund, 300, true, t0.Add(2*time.Second)),
	})
	assert.True(t, Inspect(snap).Reserved, "partial refund keeps the reservation")
	assert.Equal(t, int64(300), snap.Summary().Refunded)

	full := NewLegacySnapshot("wp-4", append(snap.Entries(), entry(OperationRefund, 800, true, t0.Add(3*time.Second))))
	assert.False(t, Inspect(full).Reserved)
}

func TestLegacySaleCountsAsReserveAndCapture(t *testing.T) {
	snap := NewLegacySnapshot("wp-5", []LogEntry{
		entry(OperationSale, 1200, true, time.Now()),
	})

	p := Inspect(snap)
	assert.True(t, p.Reserved)
	assert.True(t, p.Captured)
	assert.Equal(t, Summary{Reserved: 1200, Captured: 1200}, snap.Summary())
}

func TestLegacyVoidAndExpired(t *testing.T) {
	t0 := time.Now()
	voided := NewLegacySnapshot("wp-6", []LogEntry{
		entry(OperationReserve, 500, true, t0),
		entry(OperationVoid, 500, true, t0.Add(time.Second)),
	})
	assert.Equal(t, StatusVoided, Inspect(voided).Status())
	assert.False(t, Inspect(voided).Reserved)

	expired := NewLegacySnapshot("wp-7", []LogEntry{
		entry(OperationInitiate, 500, true, t0),
		entry(OperationExpired, 0, true, t0.Add(time.Hour)),
	})
	assert.Equal(t, StatusExpired, Inspect(expired).Status())
	assert.True(t, Inspect(expired).Closed())
}

func TestInspectIsIdempotent(t *testing.T) {
	snap := NewLegacySnapshot("wp-8", []LogEntry{
		entry(OperationInitiate, 100, true, time.Now()),
		entry(OperationReserve, 100, true, time.Now()),
	})
	assert.Equal(t, Inspect(snap), Inspect(snap))

	modern := NewModernSnapshot(ModernFields{Reference: "wp-8", State: StateAuthorized, Authorized: 100})
	assert.Equal(t, Inspect(modern), Inspect(modern))
}

func TestNewLegacySnapshotCopiesEntries(t *testing.T) {
	entries := []LogEntry{entry(OperationReserve, 100, true, time.Now())}
	snap := NewLegacySnapshot("wp-9", entries)
	entries[0].Success = false

	assert.True(t, Inspect(snap).Reserved)
}

func TestModernPredicates(t *testing.T) {
	cases := []struct {
		name   string
		fields ModernFields
		status Status
	}{
		{name: "created", fields: ModernFields{State: "created"}, status: StatusInitiated},
		{name: "authorized", fields: ModernFields{State: StateAuthorized, Authorized: 5000}, status: StatusReserved},
		{name: "captured", fields: ModernFields{State: StateAuthorized, Authorized: 5000, Captured: 5000}, status: StatusCaptured},
		{name: "voided", fields: ModernFields{State: StateAuthorized, Authorized: 5000, Cancelled: 5000}, status: StatusVoided},
		{name: "aborted", fields: ModernFields{State: StateAborted}, status: StatusCancelled},
		{name: "terminated", fields: ModernFields{State: StateTerminated, Authorized: 5000}, status: StatusCancelled},
		{name: "expired", fields: ModernFields{State: StateExpired}, status: StatusExpired},
		{name: "aborted flag wins", fields: ModernFields{State: StateCreated, Aborted: true}, status: StatusCancelled},
		{name: "empty", fields: ModernFields{}, status: StatusUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := NewModernSnapshot(tc.fields)
			assert.Equal(t, tc.status, Inspect(snap).Status())
		})
	}
}

func TestModernSummary(t *testing.T) {
	snap := NewModernSnapshot(ModernFields{
		Reference:  " wp-10 ",
		State:      StateAuthorized,
		Currency:   "nok",
		Authorized: 5000,
		Captured:   2000,
		Refunded:   500,
	})

	assert.Equal(t, "wp-10", snap.Reference())
	assert.Equal(t, "NOK", snap.Currency())
	assert.Equal(t, Summary{Reserved: 5000, Captured: 2000, Refunded: 500, Remaining: 3000}, snap.Summary())
}

func TestInspectNil(t *testing.T) {
	assert.Equal(t, StatusUnknown, Inspect(nil).Status())
}
