package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docbatch/internal/batch"
)

// Update is one message from the runner: a file event, or a job that has
// settled.
type Update struct {
	Event    *batch.Event
	Finished *batch.BatchJob
}

// Feed turns runner callbacks into Updates on ch. It is a batch.Sink and a
// job observer.
type Feed chan<- Update

func (f Feed) Emit(ev batch.Event) {
	f <- Update{Event: &ev}
}

func (f Feed) JobFinished(job *batch.BatchJob, at time.Time) {
	f <- Update{Finished: job}
}

type jobRow struct {
	name      string
	kind      batch.JobType
	files     int
	completed int
	failed    int
	current   int
	status    batch.JobStatus
	order     int
}

type Model struct {
	updates  <-chan Update
	started  time.Time
	width    int
	jobs     map[string]*jobRow
	total    int
	done     int
	failed   int
	outputs  int
	quitting bool
}

type doneMsg struct{}

type updateMsg Update

// NewModel tracks the given jobs; their pending files make up the total.
func NewModel(updates <-chan Update, jobs []*batch.BatchJob) Model {
	m := Model{updates: updates, started: time.Now(), jobs: make(map[string]*jobRow, len(jobs))}
	for i, job := range jobs {
		pending := len(batch.PendingFiles(job))
		m.jobs[job.ID] = &jobRow{name: job.Name, kind: job.Type, files: pending, status: job.Status, order: i}
		m.total += pending
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.apply(Update(msg))
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	default:
		return m, nil
	}
}

// apply mutates the rows in place; the map is shared between model copies.
func (m *Model) apply(u Update) {
	if ev := u.Event; ev != nil {
		row := m.row(ev.JobID)
		switch ev.Kind {
		case batch.EventFileStarted:
			row.status = batch.JobProcessing
			row.current = 0
		case batch.EventFileProgress:
			row.current = ev.Percent
		case batch.EventFileCompleted:
			row.completed++
			row.current = 0
			m.done++
			m.outputs += len(ev.Outputs)
		case batch.EventFileFailed:
			row.failed++
			row.current = 0
			m.done++
			m.failed++
		}
	}
	if job := u.Finished; job != nil {
		row := m.row(job.ID)
		row.status = job.Status
		row.current = 0
		if row.name == "" {
			row.name = job.Name
		}
	}
}

func (m *Model) row(id string) *jobRow {
	row, ok := m.jobs[id]
	if !ok {
		row = &jobRow{name: id, order: len(m.jobs)}
		m.jobs[id] = row
	}
	return row
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)
	lines := []string{
		titleStyle.Render("docbatch"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.done, m.total)) + dimStyle.Render(fmt.Sprintf("  failed:%d  outputs:%d", m.failed, m.outputs)),
		barStyle.Render(renderBar(barWidth, ratio(m.done, m.total))),
	}

	for _, row := range m.sortedRows() {
		if row.status != batch.JobProcessing {
			continue
		}
		progress := ratio(row.completed+row.failed, row.files)
		if row.files > 0 {
			progress += float64(row.current) / 100 / float64(row.files)
		}
		name := fmt.Sprintf("%-20s", truncate(row.name, 20))
		lines = append(lines, labelStyle.Render(name)+" "+renderBar(barWidth/2, progress)+dimStyle.Render(fmt.Sprintf(" %s %d/%d", row.kind, row.completed+row.failed, row.files)))
	}

	lines = append(lines, dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)))
	return strings.Join(lines, "\n")
}

func (m Model) sortedRows() []*jobRow {
	rows := make([]*jobRow, 0, len(m.jobs))
	for _, row := range m.jobs {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].order < rows[j].order })
	return rows
}

func listenForUpdates(updates <-chan Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func ratio(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Min(float64(n)/float64(total), 1)
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorAccentAlt)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
)
