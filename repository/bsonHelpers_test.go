package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCoerceDecimal(t *testing.T) {
	d128, err := primitive.ParseDecimal128("1045000.123456789012345")
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		in   interface{}
		want string
	}{
		{"decimal128", d128, "1045000.123456789012345"},
		{"float64", float64(1040.5), "1040.5"},
		{"int32", int32(42), "42"},
		{"int64", int64(-7), "-7"},
		{"string", "1.045", "1.045"},
		{"bad string", "abc", "0"},
		{"nil", nil, "0"},
	}
	for _, c := range cases {
		if got := coerceDecimal(c.in); !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("%s: coerceDecimal = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestCoerceTime(t *testing.T) {
	ref := time.Date(2024, 9, 16, 10, 30, 0, 0, time.UTC)

	if got := coerceTime(primitive.NewDateTimeFromTime(ref)); !got.Equal(ref) {
		t.Errorf("DateTime: got %s, want %s", got, ref)
	}
	if got := coerceTime(ref); !got.Equal(ref) {
		t.Errorf("time.Time: got %s, want %s", got, ref)
	}
	// legacy importers stored naive strings and Brasília offsets
	if got := coerceTime("2024-09-16T10:30:00"); !got.Equal(ref) {
		t.Errorf("naive string: got %s, want %s", got, ref)
	}
	if got := coerceTime("2024-09-16T07:30:00-03:00"); !got.Equal(ref) {
		t.Errorf("offset string: got %s, want %s", got, ref)
	}
	if got := coerceTime("not a date"); !got.IsZero() {
		t.Errorf("garbage: got %s, want zero", got)
	}
	if got := coerceTime(nil); !got.IsZero() {
		t.Errorf("nil: got %s, want zero", got)
	}
}

func TestCoerceScalars(t *testing.T) {
	if got := coerceInt(int32(5)); got != 5 {
		t.Errorf("coerceInt(int32) = %d", got)
	}
	if got := coerceInt(float64(7.9)); got != 7 {
		t.Errorf("coerceInt(float64) = %d", got)
	}
	if got := coerceInt("5"); got != 0 {
		t.Errorf("coerceInt(string) = %d, want 0", got)
	}
	if !coerceBool(true) || coerceBool("true") {
		t.Error("coerceBool must only accept real booleans")
	}
	if coerceString(42) != "" || coerceString("x") != "x" {
		t.Error("coerceString mismatch")
	}
}
