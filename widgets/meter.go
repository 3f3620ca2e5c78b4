package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-cvbridge/engine"
	"go-cvbridge/theme"
)

// MeterCells draws cv as a bipolar bar over -MaxCV..MaxCV. The centre cell is
// the 0V marker; cells fill outward from it.
func MeterCells(cv int32, width int, sym theme.Symbols) string {
	if width < 3 {
		width = 3
	}
	half := width / 2
	cv = max(min(cv, engine.MaxCV), -engine.MaxCV)
	filled := int((abs(cv)*int32(half) + engine.MaxCV/2) / engine.MaxCV)

	cells := make([]rune, width)
	for i := range cells {
		cells[i] = sym.MeterEmpty
	}
	cells[half] = sym.MeterZero
	for i := 1; i <= filled; i++ {
		if cv > 0 && half+i < width {
			cells[half+i] = sym.MeterFull
		} else if cv < 0 && half-i >= 0 {
			cells[half-i] = sym.MeterFull
		}
	}
	return string(cells)
}

// RenderMeter colours the meter by level
func RenderMeter(cv int32, width int, th *theme.Theme) string {
	norm := 0.3 + 0.7*float64(abs(cv))/float64(engine.MaxCV)
	style := lipgloss.NewStyle().Foreground(th.Color(min(norm, 1)))
	return style.Render(MeterCells(cv, width, th.Symbols))
}

// RenderGate renders a gate or trig indicator
func RenderGate(high, trig bool, th *theme.Theme) string {
	switch {
	case trig:
		return lipgloss.NewStyle().Foreground(th.Warning()).Render(string(th.Symbols.Trig))
	case high:
		return lipgloss.NewStyle().Foreground(th.Success()).Render(string(th.Symbols.GateOn))
	}
	return lipgloss.NewStyle().Foreground(th.Muted()).Render(string(th.Symbols.GateOff))
}

// Volts formats a CV value as "+1.25V"
func Volts(cv int32) string {
	return fmt.Sprintf("%+.2fV", float64(cv)/engine.CVPerVolt)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the name of a MIDI note, middle C being C4
func NoteName(note uint8) string {
	return fmt.Sprintf("%s%d", noteNames[note%12], int(note)/12-1)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
