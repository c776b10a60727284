package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestIsUniqueViolation_PqError23505(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "uq_storys_feed_unique"}
	if !IsUniqueViolation(err) {
		t.Error("SQLSTATE 23505はtrueであるべき")
	}
}

func TestIsUniqueViolation_WrappedError(t *testing.T) {
	err := fmt.Errorf("ストーリーの作成に失敗: %w", &pq.Error{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Error("ラップされた23505もtrueであるべき")
	}
}

func TestIsUniqueViolation_OtherErrors(t *testing.T) {
	cases := []error{
		nil,
		errors.New("connection refused"),
		&pq.Error{Code: "23503"}, // 外部キー違反
	}
	for _, err := range cases {
		if IsUniqueViolation(err) {
			t.Errorf("IsUniqueViolation(%v) = true, want false", err)
		}
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("空文字列はNULLになるべき")
	}
	ns := nullString("value")
	if !ns.Valid || ns.String != "value" {
		t.Errorf("nullString(value) = %+v", ns)
	}
	if got := nullStringValue(ns); got != "value" {
		t.Errorf("nullStringValue() = %q", got)
	}
	if got := nullStringValue(nullString("")); got != "" {
		t.Errorf("nullStringValue(NULL) = %q, want \"\"", got)
	}
}

func TestNullTime(t *testing.T) {
	if nt := nullTime(nil); nt.Valid {
		t.Error("nilはNULLになるべき")
	}
	now := time.Now()
	nt := nullTime(&now)
	if !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTime() = %+v", nt)
	}
	got := nullTimeValue(nt)
	if got == nil || !got.Equal(now) {
		t.Errorf("nullTimeValue() = %v", got)
	}
	if got := nullTimeValue(nullTime(nil)); got != nil {
		t.Errorf("nullTimeValue(NULL) = %v, want nil", got)
	}
}

func TestIntervalSeconds(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{2 * time.Hour, "7200 seconds"},
		{10 * time.Minute, "600 seconds"},
		{30 * time.Minute, "1800 seconds"},
		{time.Second, "1 seconds"},
	}
	for _, tc := range cases {
		if got := intervalSeconds(tc.d); got != tc.want {
			t.Errorf("intervalSeconds(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
