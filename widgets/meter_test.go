package widgets

import (
	"testing"

	"go-cvbridge/engine"
	"go-cvbridge/theme"
)

func TestMeterCells(t *testing.T) {
	sym := theme.New(nil).Symbols
	tests := []struct {
		cv   int32
		want string
	}{
		{0, "░░░│░░░"},
		{engine.MaxCV, "░░░│███"},
		{-engine.MaxCV, "███│░░░"},
		{engine.MaxCV / 3, "░░░│█░░"},
		{2 * engine.MaxCV, "░░░│███"},
	}
	for _, tt := range tests {
		if got := MeterCells(tt.cv, 7, sym); got != tt.want {
			t.Errorf("cv %d: expected %q, got %q", tt.cv, tt.want, got)
		}
	}
}

func TestVoltsAndNoteName(t *testing.T) {
	if got := Volts(engine.CVPerVolt + engine.CVPerVolt/4); got != "+1.25V" {
		t.Errorf("expected +1.25V, got %s", got)
	}
	if got := Volts(-engine.CVPerVolt); got != "-1.00V" {
		t.Errorf("expected -1.00V, got %s", got)
	}
	if got := NoteName(60); got != "C4" {
		t.Errorf("expected C4, got %s", got)
	}
	if got := NoteName(0); got != "C-1" {
		t.Errorf("expected C-1, got %s", got)
	}
}
