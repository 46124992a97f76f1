// Package tui is the live terminal dashboard.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"netsniff/internal/analysis"
	"netsniff/internal/devices"
)

const refreshInterval = 250 * time.Millisecond

// TickMsg triggers a refresh of the dashboard.
type TickMsg time.Time

// StatsSource is the traffic statistics the dashboard reads.
type StatsSource interface {
	GetRates() (float64, float64)
	GetTotalDataTransferred() int64
	GetTopTalkers(limit int) []analysis.IPStat
	GetProtocolStats() []analysis.ProtocolStat
	GetAlerts() []analysis.Alert
}

// DeviceSource lists the tracked devices.
type DeviceSource interface {
	Devices() []devices.Device
}

type AnalysisModel struct {
	stats         StatsSource
	devs          DeviceSource
	interfaceName string
	filter        string

	bps        float64
	pps        float64
	totalBytes int64
	topTalkers []analysis.IPStat
	protocols  []analysis.ProtocolStat
	alerts     []analysis.Alert
	deviceN    int

	talkers table.Model
	devices table.Model
}

func NewAnalysisModel(stats StatsSource, devs DeviceSource, iface, filter string) AnalysisModel {
	talkers := newTable([]table.Column{
		{Title: "Address", Width: 16},
		{Title: "Packets", Width: 10},
		{Title: "Bytes", Width: 12},
	}, 10)

	devTable := newTable([]table.Column{
		{Title: "IP", Width: 16},
		{Title: "MAC", Width: 18},
		{Title: "Type", Width: 22},
		{Title: "Conf", Width: 7},
		{Title: "Method", Width: 14},
		{Title: "Packets", Width: 9},
		{Title: "Top Ports", Width: 20},
	}, 12)
	devTable.Focus()

	return AnalysisModel{
		stats:         stats,
		devs:          devs,
		interfaceName: iface,
		filter:        filter,
		talkers:       talkers,
		devices:       devTable,
	}
}

func newTable(columns []table.Column, height int) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func (m AnalysisModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
