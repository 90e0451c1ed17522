package format

import (
	"math"
	"testing"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1234567, "1.234.567"},
		{12.5, "12,5"},
	}
	for _, tt := range tests {
		if got := Number(tt.in); got != tt.want {
			t.Errorf("Number(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if Number(math.NaN()) != Placeholder {
		t.Error("NaN should render as placeholder")
	}
}

func TestAbsentValues(t *testing.T) {
	if NumberPtr(nil) != "—" {
		t.Errorf("NumberPtr(nil) = %q", NumberPtr(nil))
	}
	if VNDPtr(nil) != "—" {
		t.Errorf("VNDPtr(nil) = %q", VNDPtr(nil))
	}
	if Text("  ") != "—" {
		t.Errorf("Text(blank) = %q", Text("  "))
	}
	v := 15.0
	if NumberPtr(&v) != "15" {
		t.Errorf("NumberPtr(15) = %q", NumberPtr(&v))
	}
}

func TestVND(t *testing.T) {
	if got := VND(4800000.4); got != "4.800.000 ₫" {
		t.Errorf("VND = %q", got)
	}
}

func TestDate(t *testing.T) {
	if got := Date("2026-03-05"); got != "05/03/2026" {
		t.Errorf("Date = %q", got)
	}
	if got := Date("2026-03-05 10:11:12"); got != "05/03/2026" {
		t.Errorf("Date(ts) = %q", got)
	}
	if Date("") != Placeholder {
		t.Error("empty date should render placeholder")
	}
}

func TestLabels(t *testing.T) {
	if Stage("won") != "Thành công" {
		t.Errorf("Stage(won) = %q", Stage("won"))
	}
	if Status("delivered") != "Đã giao" {
		t.Errorf("Status(delivered) = %q", Status("delivered"))
	}
	if Status("unknown") != "unknown" {
		t.Error("unknown status should pass through")
	}
}
