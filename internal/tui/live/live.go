package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hookstorm/internal/runner"
	"hookstorm/internal/tui/components"
	"hookstorm/internal/tui/styles"
)

const tickInterval = 200 * time.Millisecond

// DoneMsg tells the model that every scenario has finished.
type DoneMsg struct{}

// LogMsg is a log line to print above the view.
type LogMsg string

type tickMsg time.Time

type row struct {
	name   string
	style  lipgloss.Style
	bar    progress.Model
	latest runner.ProgressUpdate
}

type Model struct {
	Duration time.Duration
	Inflight func() int64

	rows    []row
	index   map[string]int
	RpsLine components.Sparkline

	lastReqs uint64
	lastTick time.Time

	Width       int
	Done        bool
	Interrupted bool
}

func NewModel(d time.Duration, scenarios []runner.Scenario, inflight func() int64) Model {
	m := Model{
		Duration: d,
		Inflight: inflight,
		index:    make(map[string]int, len(scenarios)),
		RpsLine:  components.NewSparkline(40, "RPS", styles.Active),
		lastTick: time.Now(),
	}

	for i, sc := range scenarios {
		color := styles.ScenarioColors[i%len(styles.ScenarioColors)]
		m.index[sc.Name] = len(m.rows)
		m.rows = append(m.rows, row{
			name:  sc.Name,
			style: lipgloss.NewStyle().Foreground(color).Bold(true),
			bar:   progress.New(progress.WithSolidFill(string(color)), progress.WithWidth(40)),
		})
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.ProgressUpdate:
		if i, ok := m.index[msg.Scenario]; ok {
			m.rows[i].latest = msg
		}
		return m, nil

	case tickMsg:
		now := time.Time(msg)
		dt := now.Sub(m.lastTick).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}
		reqs := m.requests()
		m.RpsLine.Add(float64(reqs-m.lastReqs) / dt)
		m.lastReqs = reqs
		m.lastTick = now
		return m, tick()

	case LogMsg:
		return m, tea.Println(string(msg))

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.Interrupted = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		barWidth := msg.Width - 50
		if barWidth < 10 {
			barWidth = 10
		}
		for i := range m.rows {
			m.rows[i].bar.Width = barWidth
		}
		m.RpsLine.Width = max(10, msg.Width-8)
		return m, nil
	}

	return m, nil
}

func (m Model) requests() uint64 {
	var total uint64
	for _, r := range m.rows {
		total += r.latest.Success + r.latest.Fail
	}
	return total
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(styles.Title.Render("Webhook API Load Test"))
	s.WriteString("\n")

	for _, r := range m.rows {
		pct := 0.0
		if m.Duration > 0 {
			pct = min(1.0, r.latest.Elapsed.Seconds()/m.Duration.Seconds())
		}

		status := styles.Subtle.Render("running")
		if r.latest.Done {
			status = styles.Success.Render("done")
		}

		fmt.Fprintf(&s, "%s %s %s  %s %s  %s\n",
			r.style.Render(fmt.Sprintf("%-16s", r.name)),
			r.bar.ViewAs(pct),
			styles.Value.Render(fmt.Sprintf("%s/%s", r.latest.Elapsed.Round(time.Second), m.Duration)),
			styles.Success.Render(fmt.Sprintf("OK %d", r.latest.Success)),
			styles.Error.Render(fmt.Sprintf("ERR %d", r.latest.Fail)),
			status,
		)
	}
	s.WriteString("\n")

	inflight := int64(0)
	if m.Inflight != nil {
		inflight = m.Inflight()
	}
	stats := fmt.Sprintf("REQ: %d\nINF: %d", m.requests(), inflight)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(stats),
		styles.Box.Render(m.RpsLine.View()),
	))
	s.WriteString("\n")

	if m.Done {
		s.WriteString(styles.Subtle.Render("Generating report..."))
	} else {
		s.WriteString(styles.RenderKey("q", "stop starting new batches"))
	}
	s.WriteString("\n")

	return s.String()
}
