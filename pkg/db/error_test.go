package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{&pgconn.PgError{Code: "23503"}, false},
		{errors.New("UNIQUE constraint failed: payment_attempts.order_draft_id"), true},
		{errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKeyErr(tc.err); got != tc.want {
			t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsSerializationErr(t *testing.T) {
	if !IsSerializationErr(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be detected")
	}
	if IsSerializationErr(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation is not a serialization failure")
	}
	if !IsSerializationErr(errors.New("database is locked")) {
		t.Fatalf("expected sqlite lock to be detected")
	}
}
