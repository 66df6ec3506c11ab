// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 the ramses-rf authors

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/silverailscolo/ramses-rf/pkg/engine"
	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive live monitor",
	Long: `Full-screen monitor showing the live frame stream, the device
population seen on air, and engine statistics.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// deviceEntry is one row of the device table.
type deviceEntry struct {
	addr     ramses.Address
	class    string
	model    string
	lastCode ramses.Code
	lastSeen time.Time
	packets  int
}

// tuiModel is the bubbletea model for the live monitor.
type tuiModel struct {
	connInfo string
	stats    *engine.Stats

	devices map[ramses.Address]*deviceEntry
	frames  viewport.Model
	lines   []string
	maxLine int

	width    int
	height   int
	quitting bool
}

// Messages
type tickMsg time.Time
type packetMsg struct{ pkt *ramses.Packet }
type diagMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func newTUIModel(connInfo string, stats *engine.Stats) tuiModel {
	return tuiModel{
		connInfo: connInfo,
		stats:    stats,
		devices:  make(map[ramses.Address]*deviceEntry),
		frames:   viewport.New(80, 12),
		maxLine:  200,
		width:    80,
		height:   24,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.frames, cmd = m.frames.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.frames.Width = msg.Width - 2
		m.frames.Height = msg.Height/2 - 2

	case tickMsg:
		return m, tickCmd()

	case packetMsg:
		m.observe(msg.pkt)
		m.appendLine(msg.pkt.String())

	case diagMsg:
		m.appendLine(fmt.Sprintf("[REJECT] %v", msg.err))
	}

	return m, nil
}

func (m *tuiModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > m.maxLine {
		m.lines = m.lines[len(m.lines)-m.maxLine:]
	}
	m.frames.SetContent(strings.Join(m.lines, "\n"))
	m.frames.GotoBottom()
}

// observe maintains the device table from a decoded packet.
func (m *tuiModel) observe(pkt *ramses.Packet) {
	addr := pkt.Src()
	entry, ok := m.devices[addr]
	if !ok {
		entry = &deviceEntry{addr: addr, class: addr.ClassName()}
		m.devices[addr] = entry
	}
	entry.lastCode = pkt.Code()
	entry.lastSeen = pkt.Timestamp()
	entry.packets++

	// A 10E0 upgrades the class tag to the fingerprinted one.
	if pkt.Code() == ramses.Code10E0 && pkt.Verb() != ramses.RQ {
		if info, err := ramses.ParseDeviceInfo(pkt.Payload()); err == nil {
			if class := info.Class(); class != "" {
				entry.class = class
			}
			entry.model = info.Model()
		}
	}
}

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	tuiHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	tuiDeviceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

func (m tuiModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(tuiTitleStyle.Render("ramses-rf live monitor — "+m.connInfo) + "\n\n")

	// Device table, most recently heard first.
	entries := make([]*deviceEntry, 0, len(m.devices))
	for _, e := range m.devices {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastSeen.After(entries[j].lastSeen)
	})
	b.WriteString(tuiHeaderStyle.Render(fmt.Sprintf("%-11s %-4s %-14s %-5s %7s  %s",
		"DEVICE", "CLS", "MODEL", "LAST", "PKTS", "SEEN")) + "\n")
	shown := len(entries)
	if max := m.height/2 - 6; shown > max && max > 0 {
		shown = max
	}
	for _, e := range entries[:shown] {
		b.WriteString(tuiDeviceStyle.Render(fmt.Sprintf("%-11s %-4s %-14s %-5s %7d  %s",
			e.addr, e.class, e.model, e.lastCode, e.packets,
			e.lastSeen.Format("15:04:05"))) + "\n")
	}

	b.WriteString("\n" + tuiHeaderStyle.Render("FRAMES") + "\n")
	b.WriteString(m.frames.View() + "\n")

	b.WriteString(tuiHeaderStyle.Render(fmt.Sprintf(
		"rx %d  tx %d  retries %d  spontaneous %d  rejects %d   q to quit",
		m.stats.FramesIn.Load(), m.stats.TxSent.Load(), m.stats.Retries.Load(),
		m.stats.Spontaneous.Load(),
		m.stats.Malformed.Load()+m.stats.LengthErrs.Load()+m.stats.ChecksumErr.Load())))

	return b.String()
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, connInfo, stop, err := StartEngine(ctx)
	if err != nil {
		return err
	}
	defer stop()

	program := tea.NewProgram(newTUIModel(connInfo, eng.Statistics()))

	sub := eng.Subscribe(engine.Filter{}, func(p *ramses.Packet) {
		program.Send(packetMsg{pkt: p})
	})
	defer sub.Unsubscribe()
	eng.OnDiagnostic(func(err error, _ string) {
		program.Send(diagMsg{err: err})
	})

	_, err = program.Run()
	return err
}
