package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
	"github.com/jamesainslie/sysprint/pkg/sysprint/recorder"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// maxWarnings is the number of recent warnings shown under the stats.
const maxWarnings = 3

// RecordModel is the progress view for a running recording.
type RecordModel struct {
	progress  types.ScanProgress
	spinner   spinner.Model
	project   string
	mode      config.Mode
	roots     []string
	startTime time.Time
	width     int
	done      bool
	stopping  bool
	err       error
	result    *recorder.Result
	warnings  []logging.Entry
	cancel    context.CancelFunc
}

// ProgressMsg is sent when scan progress is updated.
type ProgressMsg types.ScanProgress

// RecordDoneMsg is sent when the archive has been written or the
// recording failed.
type RecordDoneMsg struct {
	Result *recorder.Result
	Err    error
}

// NewRecordModel creates a progress view. cancel is called when the user
// interrupts the recording.
func NewRecordModel(project string, mode config.Mode, roots []string, cancel context.CancelFunc) RecordModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return RecordModel{
		spinner:   s,
		project:   project,
		mode:      mode,
		roots:     roots,
		startTime: time.Now(),
		width:     80,
		cancel:    cancel,
	}
}

// Init starts the spinner.
func (m RecordModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the progress view.
func (m RecordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The recorder removes its temporary file and reports
			// context.Canceled through RecordDoneMsg.
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case ProgressMsg:
		m.SetProgress(types.ScanProgress(msg))
		m.warnings = logging.Recent(maxWarnings)
		return m, nil

	case RecordDoneMsg:
		m.SetDone(msg.Result, msg.Err)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress view.
func (m RecordModel) View() string {
	var b strings.Builder

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(errorTextStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
	case m.done:
		b.WriteString(successTextStyle.Render("  Recorded " + m.result.Path))
	case m.stopping:
		b.WriteString(warningTextStyle.Render("  Stopping..."))
	case m.progress.WalkComplete:
		b.WriteString(fmt.Sprintf("  %s Hashing remaining files", m.spinner.View()))
	default:
		b.WriteString(fmt.Sprintf("  %s Scanning: %s",
			m.spinner.View(),
			truncatePath(m.progress.CurrentPath, contentWidth-20)))
	}
	b.WriteString("\n\n")

	if !m.done {
		b.WriteString(m.renderProgressBar(contentWidth))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderStats(contentWidth))
	b.WriteString("\n")

	if len(m.warnings) > 0 {
		b.WriteString("\n")
		for _, w := range m.warnings {
			b.WriteString(warningTextStyle.Render("  ! " + truncatePath(w.String(), contentWidth-6)))
			b.WriteString("\n")
		}
	}

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m RecordModel) renderHeader(width int) string {
	title := titleStyle.Render("  sysprint record " + m.project)
	hint := mutedTextStyle.Render(fmt.Sprintf("%s · %s  [Ctrl+C to stop]", m.mode, strings.Join(m.roots, " ")))

	spacing := width - lipgloss.Width(title) - lipgloss.Width(hint)
	if spacing < 1 {
		spacing = 1
	}
	return title + strings.Repeat(" ", spacing) + hint
}

// renderProgressBar renders an indeterminate bar; the number of files is
// not known until the walk completes.
func (m RecordModel) renderProgressBar(width int) string {
	barWidth := width - 4
	if barWidth < 10 {
		barWidth = 10
	}

	elapsed := time.Since(m.startTime)
	position := int(elapsed.Seconds()*2) % (barWidth * 2)
	if position > barWidth {
		position = barWidth*2 - position
	}

	pulseWidth := barWidth / 5
	if pulseWidth < 3 {
		pulseWidth = 3
	}

	var bar strings.Builder
	bar.WriteString("  ")
	for i := range barWidth {
		dist := i - position
		if dist < 0 {
			dist = -dist
		}
		if dist < pulseWidth {
			bar.WriteString(progressFillStyle.Render("█"))
		} else {
			bar.WriteString(progressEmptyStyle.Render("░"))
		}
	}
	return bar.String()
}

func (m RecordModel) renderStats(totalWidth int) string {
	boxWidth := (totalWidth - 12) / 5
	if boxWidth < 10 {
		boxWidth = 10
	}

	elapsed := time.Since(m.startTime)
	if m.done && m.result != nil {
		elapsed = m.result.Elapsed
	}

	boxes := []string{
		m.renderStatBox("Dirs", humanize.Comma(m.progress.DirsScanned), boxWidth),
		m.renderStatBox("Files", humanize.Comma(m.progress.FilesScanned), boxWidth),
		m.renderStatBox("Hashed", humanize.IBytes(uint64(m.progress.BytesHashed)), boxWidth),
		m.renderStatBox("Errors", humanize.Comma(m.progress.Errors), boxWidth),
		m.renderStatBox("Time", formatDuration(elapsed), boxWidth),
	}
	parts := []string{"  "}
	for i, box := range boxes {
		if i > 0 {
			parts = append(parts, " ")
		}
		parts = append(parts, box)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m RecordModel) renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		center(statsLabelStyle.Render(label), width-4),
		center(statsValueStyle.Render(value), width-4))
	return statsBoxStyle.Width(width).Render(content)
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}

// SetProgress updates the progress.
func (m *RecordModel) SetProgress(p types.ScanProgress) {
	m.progress = p
}

// SetDone marks the recording as finished.
func (m *RecordModel) SetDone(res *recorder.Result, err error) {
	m.done = true
	m.result = res
	m.err = err
	if res != nil && err == nil {
		s := res.Manifest.Summary()
		m.progress.DirsScanned = int64(s.TotalDirectories)
		m.progress.FilesScanned = int64(s.TotalFiles)
		m.progress.Errors = int64(s.Errors)
	}
}

// IsDone returns true once the recording has finished.
func (m RecordModel) IsDone() bool {
	return m.done
}

// Result returns the recording outcome.
func (m RecordModel) Result() (*recorder.Result, error) {
	return m.result, m.err
}

// RecordFunc performs a recording, reporting progress through onProgress.
type RecordFunc func(ctx context.Context, onProgress func(types.ScanProgress)) (*recorder.Result, error)

// RunRecord runs fn while showing the progress view and returns its
// result. Interrupting the view cancels fn's context.
func RunRecord(ctx context.Context, project string, mode config.Mode, roots []string, fn RecordFunc) (*recorder.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewRecordModel(project, mode, roots, cancel))

	finished := make(chan RecordDoneMsg, 1)
	go func() {
		res, err := fn(ctx, func(sp types.ScanProgress) {
			p.Send(ProgressMsg(sp))
		})
		done := RecordDoneMsg{Result: res, Err: err}
		finished <- done
		p.Send(done)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-finished
		return nil, fmt.Errorf("progress view: %w", err)
	}

	done := <-finished
	return done.Result, done.Err
}
