package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-cvbridge/bridge"
	"go-cvbridge/engine"
	"go-cvbridge/midi"
	"go-cvbridge/theme"
	"go-cvbridge/widgets"
)

const meterWidth = 21

var polyModes = []engine.PolyMode{engine.PolyRotate, engine.PolyReuse, engine.PolyReset}

var keyHelp = []widgets.KeySection{
	{Keys: []widgets.KeyBinding{
		{Key: "r", Desc: "reset (all notes off)"},
		{Key: "m", Desc: "cycle voice allocation"},
		{Key: "?", Desc: "toggle help"},
		{Key: "q", Desc: "quit"},
	}},
}

// Model is a read-only monitor of the bridge
type Model struct {
	Manager   *bridge.Manager
	DeviceMgr *midi.DeviceManager
	Theme     *theme.Theme
	snap      bridge.Snapshot
	ports     []string
	lastTrig  uint32
	showHelp  bool
	quitting  bool
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

func NewModel(manager *bridge.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme) Model {
	return Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
		snap:      manager.Snapshot(),
	}
}

func ListenForUpdates(manager *bridge.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Manager)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "r":
			m.Manager.Panic()

		case "m":
			next := polyModes[0]
			for i, pm := range polyModes {
				if pm == m.snap.PolyMode {
					next = polyModes[(i+1)%len(polyModes)]
				}
			}
			m.Manager.SetPolyMode(next)

		case "?":
			m.showHelp = !m.showHelp
		}

	case UpdateMsg:
		m.snap = m.Manager.Snapshot()
		m.lastTrig = m.snap.Triggered
		return m, ListenForUpdates(m.Manager)

	case DeviceEventMsg:
		m.ports = m.DeviceMgr.Endpoints()
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(m.header()))
	out.WriteString("\n")
	if len(m.ports) > 0 {
		out.WriteString(dimStyle.Render("ports: " + strings.Join(m.ports, ", ")))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	out.WriteString(m.slotsView(fgStyle, dimStyle))
	out.WriteString("\n")
	if v := m.voicesView(); v != "" {
		out.WriteString(fgStyle.Render(v))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	out.WriteString(m.inputsView(fgStyle))
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render(m.activityView()))
	out.WriteString("\n\n")

	if m.showHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	} else {
		out.WriteString(dimStyle.Render("r:reset  m:voices  ?:help  q:quit"))
	}
	return out.String()
}

func (m Model) header() string {
	state := "STOP"
	if m.snap.Transport.Running {
		state = "RUN "
	}
	return fmt.Sprintf("go-cvbridge  %s clk:%02d  voices:%s  sustain:%016b  sent:%d",
		state, m.snap.Transport.Count, m.snap.PolyMode, m.snap.Sustain, m.snap.Sent)
}

func (m Model) slotsView(fg, dim lipgloss.Style) string {
	var lines []string
	for i, s := range m.snap.Slots {
		if s.Function == engine.FnNoop {
			continue
		}
		label := s.String()
		if s.Function.Binding() == engine.Learning {
			label += " " + string(m.Theme.Symbols.Learn)
		}
		high := s.Output > 0
		trig := m.lastTrig&(1<<i) != 0
		lines = append(lines, fmt.Sprintf("%2d %s %-18s %s %s",
			i+1,
			widgets.RenderGate(high, trig, m.Theme),
			fg.Render(label),
			widgets.RenderMeter(s.Output, meterWidth, m.Theme),
			dim.Render(widgets.Volts(s.Output)),
		))
	}
	if len(lines) == 0 {
		return dim.Render("no slots mapped")
	}
	return strings.Join(lines, "\n")
}

func (m Model) voicesView() string {
	if len(m.snap.Voices) <= 1 {
		return ""
	}
	parts := make([]string, len(m.snap.Voices))
	for i, v := range m.snap.Voices {
		gate := m.Theme.Symbols.GateOff
		if v.Gated {
			gate = m.Theme.Symbols.GateOn
		}
		parts[i] = fmt.Sprintf("v%d %c %-4s", i+1, gate, widgets.NoteName(v.Note))
	}
	return strings.Join(parts, "  ")
}

func (m Model) inputsView(fg lipgloss.Style) string {
	var lines []string
	for i, a := range m.snap.Assignments {
		if a.Function == engine.OutNone {
			continue
		}
		var in engine.InputSample
		if i < len(m.snap.Inputs) {
			in = m.snap.Inputs[i]
		}
		desc := fmt.Sprintf("%s ch%d", a.Function, a.Channel+1)
		if a.Function == engine.OutCC {
			desc = fmt.Sprintf("%s %d ch%d", a.Function, a.CC, a.Channel+1)
		}
		lines = append(lines, fmt.Sprintf("in%-2d %s %-14s %s",
			i+1,
			widgets.RenderGate(in.Gate, false, m.Theme),
			fg.Render(desc),
			widgets.RenderMeter(in.CV, meterWidth, m.Theme),
		))
	}
	return strings.Join(lines, "\n")
}

func (m Model) activityView() string {
	if len(m.snap.Activity) == 0 {
		return "no activity"
	}
	lines := make([]string, 0, len(m.snap.Activity))
	// newest first
	for i := len(m.snap.Activity) - 1; i >= 0; i-- {
		e := m.snap.Activity[i]
		switch {
		case e.Kind.IsRealtime():
			lines = append(lines, e.Kind.String())
		case e.Kind == engine.NoteOn || e.Kind == engine.NoteOff:
			lines = append(lines, fmt.Sprintf("%-8s ch%-2d %-4s %3d", e.Kind, e.Channel+1, widgets.NoteName(e.Data1), e.Data2))
		default:
			lines = append(lines, fmt.Sprintf("%-8s ch%-2d %3d %3d", e.Kind, e.Channel+1, e.Data1, e.Data2))
		}
	}
	return strings.Join(lines, "\n")
}
