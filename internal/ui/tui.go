package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Aman-CERP/ragindex/internal/async"
)

// maxShownErrors caps the failures listed under the progress panel.
const maxShownErrors = 5

// quitTimeout bounds how long Stop waits for the program to exit.
const quitTimeout = 2 * time.Second

// TUIRenderer draws a live progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	model   *progressModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	return &TUIRenderer{
		cfg:   cfg,
		model: newProgressModel(cfg.Title, cfg.NoColor || DetectNoColor()),
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer. Input is not read, so Ctrl+C reaches the
// process as SIGINT and cancels the pass.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		return nil
	}
	r.program = tea.NewProgram(r.model,
		tea.WithContext(ctx),
		tea.WithOutput(r.cfg.Output),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Update implements Renderer.
func (r *TUIRenderer) Update(snap async.IndexProgressSnapshot) {
	r.send(snapshotMsg(snap))
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.send(errorMsg(event))
}

// Complete implements Renderer. The program prints the summary and exits.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.send(completeMsg(stats))
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Quit()
	select {
	case <-r.done:
	case <-time.After(quitTimeout):
	}
	return nil
}

type snapshotMsg async.IndexProgressSnapshot
type errorMsg ErrorEvent
type completeMsg CompletionStats

// progressModel is the bubbletea model behind TUIRenderer.
type progressModel struct {
	title    string
	snap     async.IndexProgressSnapshot
	errors   []ErrorEvent
	errCount int
	complete bool
	stats    CompletionStats
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newProgressModel(title string, noColor bool) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	barOpts := []progress.Option{
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	}
	if noColor {
		barOpts = append(barOpts, progress.WithColorProfile(termenv.Ascii))
	} else {
		s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))
	}

	if title == "" {
		title = "ragindex"
	}
	return &progressModel{
		title:   title,
		spinner: s,
		bar:     progress.New(barOpts...),
		styles:  GetStyles(noColor),
	}
}

// Init implements tea.Model.
func (m *progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = async.IndexProgressSnapshot(msg)
	case errorMsg:
		m.errCount++
		m.errors = append(m.errors, ErrorEvent(msg))
		if len(m.errors) > maxShownErrors {
			m.errors = m.errors[1:]
		}
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-20, 20), 60)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *progressModel) View() string {
	var sb strings.Builder
	if m.complete {
		m.writeErrors(&sb)
		writeSummary(&sb, m.stats, m.styles)
		return sb.String()
	}

	sb.WriteString(m.styles.Header.Render(m.title))
	sb.WriteString("\n")
	sb.WriteString(m.renderStages())
	sb.WriteString("\n")
	sb.WriteString(m.renderProgress())
	sb.WriteString("\n")
	m.writeErrors(&sb)
	return sb.String()
}

var tuiStages = []async.IndexingStage{async.StageScanning, async.StageRemoving, async.StageIndexing}

func stageOrder(stage string) int {
	for i, s := range tuiStages {
		if string(s) == stage {
			return i
		}
	}
	return -1
}

func (m *progressModel) renderStages() string {
	current := stageOrder(m.snap.Stage)
	parts := make([]string, 0, len(tuiStages))
	for i, s := range tuiStages {
		name := stageLabel(string(s))
		switch {
		case current < 0 || i > current:
			parts = append(parts, m.styles.Dim.Render("○ "+name))
		case i < current:
			parts = append(parts, m.styles.Success.Render("● "+name))
		default:
			parts = append(parts, m.styles.Header.Render(m.spinner.View()+name))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *progressModel) renderProgress() string {
	snap := m.snap
	elapsed := m.styles.Dim.Render(fmt.Sprintf("%ds", snap.ElapsedSeconds))
	if snap.FilesTotal <= 0 {
		return fmt.Sprintf("%s%s...  %s", m.spinner.View(), stageLabel(snap.Stage), elapsed)
	}

	frac := float64(snap.FilesProcessed) / float64(snap.FilesTotal)
	counts := fmt.Sprintf("%d/%d files", snap.FilesProcessed, snap.FilesTotal)
	if async.IndexingStage(snap.Stage) == async.StageIndexing {
		counts += fmt.Sprintf(", %d chunks", snap.ChunksIndexed)
	}
	return fmt.Sprintf("%s %3.0f%%  %s  %s",
		m.bar.ViewAs(frac), frac*100, m.styles.Label.Render(counts), elapsed)
}

func (m *progressModel) writeErrors(sb *strings.Builder) {
	if m.errCount == 0 {
		return
	}
	for _, e := range m.errors {
		style := m.styles.Error
		if e.IsWarn {
			style = m.styles.Warning
		}
		if e.File != "" {
			fmt.Fprintf(sb, "%s %s: %v\n", style.Render("✗"), e.File, e.Err)
		} else {
			fmt.Fprintf(sb, "%s %v\n", style.Render("✗"), e.Err)
		}
	}
	if hidden := m.errCount - len(m.errors); hidden > 0 {
		fmt.Fprintf(sb, "%s\n", m.styles.Dim.Render(fmt.Sprintf("... and %d more", hidden)))
	}
}

var _ Renderer = (*TUIRenderer)(nil)
