package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
)

func TestNanos_RoundTrip(t *testing.T) {
	in := time.Date(2026, 1, 2, 3, 4, 5, 6, time.FixedZone("CET", 3600))

	got := fromNanos(toNanos(in))
	if !got.Equal(in) {
		t.Errorf("fromNanos(toNanos(%v)) = %v", in, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
}

func TestNullHelpers(t *testing.T) {
	if timePtr(sql.NullInt64{}) != nil {
		t.Error("timePtr(NULL) should be nil")
	}
	if stringPtr(sql.NullString{}) != nil {
		t.Error("stringPtr(NULL) should be nil")
	}
	if nullString(nil).Valid {
		t.Error("nullString(nil) should be NULL")
	}
	if nullNanos(nil).Valid {
		t.Error("nullNanos(nil) should be NULL")
	}

	id := "emp-a"
	if got := stringPtr(nullString(&id)); got == nil || *got != id {
		t.Errorf("stringPtr(nullString(%q)) = %v", id, got)
	}
	now := testTime(0)
	if got := timePtr(nullNanos(&now)); got == nil || !got.Equal(now) {
		t.Errorf("timePtr(nullNanos(%v)) = %v", now, got)
	}
}

func TestMarshalStrings_NilIsEmptyArray(t *testing.T) {
	got, err := marshalStrings(nil)
	if err != nil {
		t.Fatalf("marshalStrings(nil) failed: %v", err)
	}
	if got != "[]" {
		t.Errorf("marshalStrings(nil) = %q, want []", got)
	}
}

func TestMarshalMoves_Canonical(t *testing.T) {
	got, err := marshalMoves([]model.Move{{StableID: "emp-a", FromOrdinal: 3, ToOrdinal: 1}})
	if err != nil {
		t.Fatalf("marshalMoves() failed: %v", err)
	}
	want := `[{"from":3,"stable_id":"emp-a","to":1}]`
	if got != want {
		t.Errorf("marshalMoves() = %s, want %s", got, want)
	}

	moves, err := unmarshalMoves(got)
	if err != nil {
		t.Fatalf("unmarshalMoves() failed: %v", err)
	}
	if len(moves) != 1 || moves[0].StableID != "emp-a" || moves[0].FromOrdinal != 3 || moves[0].ToOrdinal != 1 {
		t.Errorf("unmarshalMoves() = %+v", moves)
	}
}

func TestUnmarshal_EmptyAndInvalid(t *testing.T) {
	ids, err := unmarshalStrings("")
	if err != nil || ids == nil || len(ids) != 0 {
		t.Errorf("unmarshalStrings(\"\") = %v, %v; want empty slice", ids, err)
	}
	if _, err := unmarshalStrings("{"); err == nil {
		t.Error("unmarshalStrings(invalid) should fail")
	}
	if _, err := unmarshalMoves("not json"); err == nil {
		t.Error("unmarshalMoves(invalid) should fail")
	}
}
