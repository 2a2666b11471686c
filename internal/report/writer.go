package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	jsoniter "github.com/json-iterator/go"

	"hookstorm/internal/runner"
	"hookstorm/internal/stats"
	"hookstorm/internal/tui/styles"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	Title           = "Webhook API Load Test Results"
	MarkdownFile    = "summary.md"
	jsonFilePattern = "load_test_results_%s.json"
	notAvailable    = "N/A"
)

var headers = []string{"Scenario", "Success", "Fail", "RPS", "Avg (ms)", "Min (ms)", "Max (ms)", "p95 (ms)"}

// Generator renders the console table and writes the JSON and Markdown artifacts.
type Generator struct {
	Dir string
	Out io.Writer
	Now func() time.Time
}

func NewGenerator(dir string, out io.Writer) *Generator {
	return &Generator{Dir: dir, Out: out, Now: time.Now}
}

// Generate builds the report from the final results and writes every output.
func (g *Generator) Generate(cfg *runner.Config, results *stats.ResultSet) (*Report, error) {
	rep := Build(cfg, results.Snapshots(), g.Now())

	if err := os.MkdirAll(g.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if g.Out != nil {
		fmt.Fprintln(g.Out, rep.Console())
	}

	rep.JSONPath = filepath.Join(g.Dir, fmt.Sprintf(jsonFilePattern, rep.Timestamp))
	if err := rep.WriteJSON(rep.JSONPath); err != nil {
		return nil, err
	}

	rep.MarkdownPath = filepath.Join(g.Dir, MarkdownFile)
	if err := rep.WriteMarkdown(rep.MarkdownPath); err != nil {
		return nil, err
	}

	if g.Out != nil {
		fmt.Fprintln(g.Out, styles.Success.Render("Results saved to "+rep.JSONPath))
	}
	return rep, nil
}

// row renders one scenario as table cells.
func (s Summary) row() []string {
	cells := []string{
		s.Name,
		fmt.Sprintf("%d", s.Success),
		fmt.Sprintf("%d", s.Fail),
		fmt.Sprintf("%.2f", s.RPS),
	}
	if !s.HasLatency {
		return append(cells, notAvailable, notAvailable, notAvailable, notAvailable)
	}
	return append(cells,
		fmt.Sprintf("%.2f", s.AvgMs),
		fmt.Sprintf("%.2f", s.MinMs),
		fmt.Sprintf("%.2f", s.MaxMs),
		fmt.Sprintf("%.2f", s.P95Ms),
	)
}

var columnStyles = []lipgloss.Style{
	styles.Active,
	styles.Success,
	styles.Error,
	styles.Warn,
	styles.Value,
	styles.Text,
	styles.Text,
	styles.Highlight,
}

// Console returns the human-readable results table.
func (r *Report) Console() string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.Subtle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			if col < len(columnStyles) {
				return columnStyles[col].Padding(0, 1)
			}
			return styles.Text.Padding(0, 1)
		})

	for _, s := range r.Scenarios {
		t.Row(s.row()...)
	}

	return lipgloss.JoinVertical(lipgloss.Left, styles.Title.Render(Title), t.String())
}

type testInfo struct {
	APIURL          string `json:"api_url"`
	ConcurrentUsers int    `json:"concurrent_users"`
	DurationSeconds int64  `json:"duration_seconds"`
	Timestamp       string `json:"timestamp"`
}

type rawResult struct {
	Success         uint64    `json:"success"`
	Fail            uint64    `json:"fail"`
	TransportErrors uint64    `json:"transport_errors"`
	Latencies       []float64 `json:"latencies"`
}

type derived struct {
	Requests uint64   `json:"requests"`
	RPS      float64  `json:"rps"`
	MinMs    *float64 `json:"min_ms"`
	MaxMs    *float64 `json:"max_ms"`
	AvgMs    *float64 `json:"avg_ms"`
	P95Ms    *float64 `json:"p95_ms"`
	P99Ms    *float64 `json:"p99_ms"`
}

type document struct {
	TestInfo testInfo             `json:"test_info"`
	Results  map[string]rawResult `json:"results"`
	Summary  map[string]derived   `json:"summary"`
}

func (r *Report) document() document {
	doc := document{
		TestInfo: testInfo{
			APIURL:          r.APIURL,
			ConcurrentUsers: r.ConcurrentUsers,
			DurationSeconds: r.DurationSeconds,
			Timestamp:       r.Timestamp,
		},
		Results: make(map[string]rawResult, len(r.raw)),
		Summary: make(map[string]derived, len(r.Scenarios)),
	}

	for _, s := range r.raw {
		lat := make([]float64, len(s.Latencies))
		for i, l := range s.Latencies {
			lat[i] = l.Seconds()
		}
		doc.Results[s.Name] = rawResult{
			Success:         s.Success,
			Fail:            s.Fail,
			TransportErrors: s.TransportErrors,
			Latencies:       lat,
		}
	}

	for _, s := range r.Scenarios {
		d := derived{Requests: s.Requests, RPS: s.RPS}
		if s.HasLatency {
			lo, hi, avg, p95, p99 := s.MinMs, s.MaxMs, s.AvgMs, s.P95Ms, s.P99Ms
			d.MinMs, d.MaxMs, d.AvgMs, d.P95Ms, d.P99Ms = &lo, &hi, &avg, &p95, &p99
		}
		doc.Summary[s.Name] = d
	}
	return doc
}

// WriteJSON writes the test configuration with raw and derived results.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r.document(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}

// Markdown returns the summary table as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", Title)
	fmt.Fprintf(&b, "- API URL: %s\n", r.APIURL)
	fmt.Fprintf(&b, "- Concurrent users: %d\n", r.ConcurrentUsers)
	fmt.Fprintf(&b, "- Duration: %d s\n", r.DurationSeconds)
	fmt.Fprintf(&b, "- Timestamp: %s\n\n", r.Timestamp)

	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(headers)) + "\n")
	for _, s := range r.Scenarios {
		b.WriteString("| " + strings.Join(s.row(), " | ") + " |\n")
	}
	return b.String()
}

func (r *Report) WriteMarkdown(path string) error {
	if err := os.WriteFile(path, []byte(r.Markdown()), 0644); err != nil {
		return fmt.Errorf("write markdown summary: %w", err)
	}
	return nil
}
