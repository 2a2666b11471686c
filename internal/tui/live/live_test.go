package live

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookstorm/internal/runner"
)

func newTestModel() Model {
	return NewModel(10*time.Second, runner.DefaultScenarios(), func() int64 { return 7 })
}

func TestModel_ProgressUpdate(t *testing.T) {
	m := newTestModel()

	next, cmd := m.Update(runner.ProgressUpdate{
		Scenario: runner.ScenarioPost,
		Elapsed:  5 * time.Second,
		Success:  40,
		Fail:     2,
	})
	assert.Nil(t, cmd)

	m = next.(Model)
	assert.Equal(t, uint64(42), m.requests())

	view := m.View()
	assert.Contains(t, view, runner.ScenarioGet)
	assert.Contains(t, view, runner.ScenarioBackgroundJob)
	assert.Contains(t, view, "OK 40")
	assert.Contains(t, view, "ERR 2")
	assert.Contains(t, view, "5s/10s")
	assert.Contains(t, view, "INF: 7")
}

func TestModel_UnknownScenarioIgnored(t *testing.T) {
	m := newTestModel()
	next, _ := m.Update(runner.ProgressUpdate{Scenario: "other", Success: 3})
	assert.Equal(t, uint64(0), next.(Model).requests())
}

func TestModel_TickRecordsRPS(t *testing.T) {
	m := newTestModel()
	start := m.lastTick

	next, _ := m.Update(runner.ProgressUpdate{Scenario: runner.ScenarioGet, Success: 10})
	next, cmd := next.(Model).Update(tickMsg(start.Add(time.Second)))
	require.NotNil(t, cmd)

	m = next.(Model)
	assert.InDelta(t, 10.0, m.RpsLine.Last(), 1e-9)
	assert.Equal(t, uint64(10), m.lastReqs)
}

func TestModel_DoneQuits(t *testing.T) {
	next, cmd := newTestModel().Update(DoneMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	m := next.(Model)
	assert.True(t, m.Done)
	assert.False(t, m.Interrupted)
	assert.Contains(t, m.View(), "Generating report")
}

func TestModel_KeyInterrupts(t *testing.T) {
	next, cmd := newTestModel().Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.True(t, next.(Model).Interrupted)
}

func TestModel_WindowResize(t *testing.T) {
	next, _ := newTestModel().Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m := next.(Model)
	assert.Equal(t, 70, m.rows[0].bar.Width)
	assert.Equal(t, 112, m.RpsLine.Width)
}

func TestModel_LogMsgPrints(t *testing.T) {
	m := newTestModel()
	next, cmd := m.Update(LogMsg("level=error msg=\"POST API failed\""))
	require.NotNil(t, cmd)
	assert.False(t, next.(Model).Done)
}
