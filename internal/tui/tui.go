// Package tui renders a live terminal view of the controller: the latest
// command, the chosen gap and the cycle counters.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/banshee-data/gapfollow/internal/controller"
	"github.com/banshee-data/gapfollow/internal/followgap"
	"github.com/banshee-data/gapfollow/internal/units"
)

// historyLen is how many recent cycle outcomes the strip shows.
const historyLen = 48

// StatsSource is the part of controller.Driver the view polls.
type StatsSource interface {
	Stats() controller.StatsSnapshot
	RunID() string
	Params() followgap.Params
}

type cycleMsg controller.Cycle

type statsTickMsg time.Time

// Styles groups the lipgloss styles used by the view.
type Styles struct {
	Title    lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Box      lipgloss.Style
	Good     lipgloss.Style
	Warn     lipgloss.Style
	Bad      lipgloss.Style
	Help     lipgloss.Style
	Marker   lipgloss.Style
	BarTrack lipgloss.Style
}

// DefaultStyles returns the default palette.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18),
		Value:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("86")).Padding(0, 1),
		Good:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Warn:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Bad:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Help:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Marker:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		BarTrack: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

// Model is the bubbletea model.
type Model struct {
	src      StatsSource
	input    string
	styles   Styles
	stats    controller.StatsSnapshot
	last     *controller.Cycle
	decision *followgap.Decision
	history  []controller.Status
	width    int
	cancel   context.CancelFunc
	interval time.Duration
	unit     string
}

// NewModel builds a model. cancel, when non-nil, is called on quit so the
// controller stops with the view.
func NewModel(src StatsSource, input string, cancel context.CancelFunc) *Model {
	return &Model{
		src:      src,
		input:    input,
		styles:   DefaultStyles(),
		history:  make([]controller.Status, 0, historyLen),
		cancel:   cancel,
		interval: 500 * time.Millisecond,
		width:    80,
		unit:     units.MPS,
	}
}

// WithSpeedUnit sets the unit speeds are shown in (see units.Parse).
func (m *Model) WithSpeedUnit(unit string) *Model {
	m.unit = unit
	return m
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return statsTickMsg(t) })
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statsTickMsg:
		m.stats = m.src.Stats()
		return m, m.tick()
	case cycleMsg:
		c := controller.Cycle(msg)
		m.last = &c
		if c.Decision != nil {
			m.decision = c.Decision
		}
		if len(m.history) == historyLen {
			copy(m.history, m.history[1:])
			m.history = m.history[:historyLen-1]
		}
		m.history = append(m.history, c.Status)
	}
	return m, nil
}

func (m *Model) row(label, value string) string {
	return m.styles.Label.Render(label) + m.styles.Value.Render(value)
}

// View implements tea.Model.
func (m *Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("gapfollow") + "  " + s.Help.Render(m.src.RunID()+"  "+m.input))
	b.WriteString("\n\n")

	var cmd []string
	if d := m.decision; d != nil {
		p := m.src.Params()
		cmd = append(cmd,
			m.row("seq", fmt.Sprintf("%d", d.Seq)),
			m.row("steering", fmt.Sprintf("%+.4f rad (%+.1f°)", d.Command.SteeringAngle, units.Degrees(d.Command.SteeringAngle))),
			m.row("", m.steeringBar(d.Command.SteeringAngle, p, 41)),
			m.row("speed", units.FormatSpeed(d.Command.Speed, m.unit)),
			m.row("target", fmt.Sprintf("index %d at %.2f m", d.TargetIndex, d.TargetRange)),
			m.row("gaps", fmt.Sprintf("%d", len(d.Gaps))),
			m.row("fallback", m.fallback(d.Fallback)),
			m.row("masked / invalid", fmt.Sprintf("%d / %d", d.MaskedSamples, d.InvalidSamples)),
		)
	} else {
		cmd = append(cmd, s.Help.Render("waiting for the first sweep"))
	}
	b.WriteString(s.Box.Render(strings.Join(cmd, "\n")))
	b.WriteString("\n")

	st := m.stats
	counters := []string{
		m.row("received", fmt.Sprintf("%d (dropped %d)", st.Received, st.Dropped)),
		m.row("emitted", s.Good.Render(fmt.Sprintf("%d", st.Emitted))),
		m.row("malformed", m.count(st.Malformed, s.Warn)),
		m.row("deadline", m.count(st.DeadlineExceeded, s.Bad)),
		m.row("send failures", m.count(st.SendFailures, s.Bad)),
		m.row("cycle last/max", fmt.Sprintf("%s / %s", st.LastCycle, st.MaxCycle)),
		m.row("recent", m.historyStrip()),
	}
	b.WriteString(s.Box.Render(strings.Join(counters, "\n")))
	b.WriteString("\n")

	if m.last != nil && m.last.Err != nil {
		b.WriteString(s.Bad.Render(truncate(m.last.Err.Error(), m.width)) + "\n")
	}
	b.WriteString(s.Help.Render("q: quit"))
	return b.String()
}

func (m *Model) count(n uint64, nonzero lipgloss.Style) string {
	txt := fmt.Sprintf("%d", n)
	if n == 0 {
		return txt
	}
	return nonzero.Render(txt)
}

func (m *Model) fallback(f followgap.Fallback) string {
	if f == followgap.FallbackNone {
		return m.styles.Good.Render(f.String())
	}
	return m.styles.Warn.Render(f.String())
}

// steeringBar draws a track of width cells spanning +/- the steering limit
// (or +/- pi when unclamped) with the command marked. Positive angles are to
// the left, so they are drawn on the left.
func (m *Model) steeringBar(angle float64, p followgap.Params, width int) string {
	limit := p.MaxSteeringAngle
	if limit <= 0 {
		limit = math.Pi
	}
	frac := (limit - math.Max(-limit, math.Min(limit, angle))) / (2 * limit)
	pos := int(math.Round(frac * float64(width-1)))

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == pos:
			b.WriteString(m.styles.Marker.Render("●"))
		case i == width/2:
			b.WriteString(m.styles.BarTrack.Render("┼"))
		default:
			b.WriteString(m.styles.BarTrack.Render("─"))
		}
	}
	return b.String()
}

func (m *Model) historyStrip() string {
	var b strings.Builder
	for _, st := range m.history {
		switch st {
		case controller.StatusEmitted:
			b.WriteString(m.styles.Good.Render("▪"))
		case controller.StatusMalformed:
			b.WriteString(m.styles.Warn.Render("▪"))
		case controller.StatusCanceled:
			b.WriteString(m.styles.Help.Render("▪"))
		default:
			b.WriteString(m.styles.Bad.Render("▪"))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
