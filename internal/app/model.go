package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/db"
	"murmur/internal/record"
	"murmur/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// Recorder captures microphone audio into a local file.
type Recorder interface {
	Start(ctx context.Context, compressed bool) (string, error)
	Stop() (record.Completion, error)
	Abort() error
}

// Transcriber turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string, onProgress func(float64)) (string, error)
}

// Classifier decides whether a transcript references earlier ones.
type Classifier interface {
	Classify(ctx context.Context, newText string, history []string) (bool, error)
}

// Store persists transcripts.
type Store interface {
	Save(text string) error
	Latest(limit int) ([]db.Transcript, error)
	FetchLatest(limit int) ([]string, error)
}

// Deps wires the services the model drives. CredErr, when non-nil, makes
// remote calls fail fast instead of sending unauthenticated requests.
type Deps struct {
	Recorder     Recorder
	Transcriber  Transcriber
	Classifier   Classifier
	Store        Store
	HistoryLimit int
	Compressed   bool
	CredErr      error
	Logger       *log.Logger
}

// Model is the root bubbletea model for the murmur TUI.
type Model struct {
	deps Deps

	panel  PanelState
	verify ContextState

	history []db.Transcript

	// progressCh streams upload progress from the transcriber goroutine.
	// Non-nil only while an upload is in flight.
	progressCh chan float64

	bar     progress.Model
	spinner spinner.Model

	width  int
	height int
	log    *log.Logger

	// bootErr marks a model that only renders a startup failure.
	bootErr error
}

// New creates a new Model with default state.
func New(deps Deps) Model {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 5
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return Model{
		deps:    deps,
		panel:   Idle{},
		verify:  ContextNone{},
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(ui.SpinnerStyle)),
		log:     logger,
	}
}

// NewBootError creates a model that renders a startup failure and waits for
// the user to quit.
func NewBootError(err error) Model {
	return Model{panel: Idle{}, verify: ContextNone{}, log: log.Default(), bootErr: err}
}

// Init returns the initial command — load recent transcripts.
func (m Model) Init() tea.Cmd {
	if m.bootErr != nil {
		return nil
	}
	return m.loadHistoryCmd()
}

// startCmd begins a new recording.
func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		path, err := m.deps.Recorder.Start(context.Background(), m.deps.Compressed)
		if err != nil {
			return RecordingFailedMsg{Err: err}
		}
		return RecordingStartedMsg{Path: path, StartedAt: time.Now()}
	}
}

// stopCmd finalizes the in-flight recording.
func (m Model) stopCmd() tea.Cmd {
	return func() tea.Msg {
		done, err := m.deps.Recorder.Stop()
		if err != nil {
			return StopFailedMsg{Err: err}
		}
		return RecordingStoppedMsg{Done: done}
	}
}

// abortCmd discards the in-flight recording.
func (m Model) abortCmd() tea.Cmd {
	return func() tea.Msg {
		return RecordingAbortedMsg{Err: m.deps.Recorder.Abort()}
	}
}

// transcribeCmd uploads the recording and closes ch when the upload settles,
// which ends the waitProgressCmd loop.
func (m Model) transcribeCmd(path string, ch chan float64) tea.Cmd {
	return func() tea.Msg {
		defer close(ch)
		if m.deps.CredErr != nil {
			return TranscribeFailedMsg{Err: m.deps.CredErr}
		}
		text, err := m.deps.Transcriber.Transcribe(context.Background(), path, func(p float64) {
			select {
			case ch <- p:
			default: // drop updates the UI has not consumed yet
			}
		})
		if err != nil {
			return TranscribeFailedMsg{Err: err}
		}
		return TranscriptReadyMsg{Text: text}
	}
}

// waitProgressCmd relays the next progress value from the upload goroutine.
func waitProgressCmd(ch chan float64) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return ProgressStreamClosedMsg{}
		}
		return UploadProgressMsg{Progress: p}
	}
}

// saveCmd persists a transcript.
func (m Model) saveCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return TranscriptSavedMsg{Err: m.deps.Store.Save(text)}
	}
}

// loadHistoryCmd reads recent transcripts from SQLite.
func (m Model) loadHistoryCmd() tea.Cmd {
	return func() tea.Msg {
		records, err := m.deps.Store.Latest(m.deps.HistoryLimit)
		if err != nil {
			return HistoryLoadedMsg{} // silently ignore DB errors
		}
		return HistoryLoadedMsg{Records: records}
	}
}

// classifyCmd asks the classifier whether text references stored history.
func (m Model) classifyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		if m.deps.CredErr != nil {
			return ContextVerdictMsg{Err: m.deps.CredErr}
		}
		// The transcript under test is already saved; fetch one extra row
		// and drop it from the history handed to the classifier.
		history, err := m.deps.Store.FetchLatest(m.deps.HistoryLimit + 1)
		if err != nil {
			return ContextVerdictMsg{Err: err}
		}
		if len(history) > 0 && history[0] == text {
			history = history[1:]
		}
		if len(history) > m.deps.HistoryLimit {
			history = history[:m.deps.HistoryLimit]
		}
		referenced, err := m.deps.Classifier.Classify(context.Background(), text, history)
		return ContextVerdictMsg{Referenced: referenced, Err: err}
	}
}

// recordTickCmd redraws the elapsed-time readout once per second.
func recordTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return RecordTickMsg(t)
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.bootErr != nil {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			switch msg.String() {
			case KeyQuit, KeyQuitUpper, KeyCtrlC:
				return m, tea.Quit
			}
		case tea.WindowSizeMsg:
			m.width = msg.Width
			m.height = msg.Height
		}
		return m, nil
	}

	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(40, m.width-20))
		return m, nil

	case RecordingStartedMsg:
		m.panel = Recording{Path: msg.Path, StartedAt: msg.StartedAt}
		return m, recordTickCmd()

	case RecordTickMsg:
		if _, ok := m.panel.(Recording); ok {
			return m, recordTickCmd()
		}
		return m, nil

	case RecordingFailedMsg:
		m.panel = Failure{Message: errorMessage(msg.Err)}
		return m, nil

	case RecordingStoppedMsg:
		if msg.Done.Path == "" {
			// Stop raced an already-idle recorder.
			m.panel = Idle{}
			return m, nil
		}
		ch := make(chan float64, 1)
		m.panel = Transcribing{}
		m.progressCh = ch
		return m, tea.Batch(m.transcribeCmd(msg.Done.Path, ch), waitProgressCmd(ch))

	case StopFailedMsg:
		m.panel = Failure{Message: errorMessage(msg.Err)}
		return m, nil

	case RecordingAbortedMsg:
		if msg.Err != nil {
			m.log.Warn("discarding recording failed", "err", msg.Err)
		}
		m.panel = Idle{}
		return m, nil

	case UploadProgressMsg:
		if t, ok := m.panel.(Transcribing); ok {
			p := msg.Progress
			if p < 0 {
				p = 0
			}
			if p > 1 {
				p = 1
			}
			if p > t.Progress {
				t.Progress = p
			}
			m.panel = t
		}
		if m.progressCh == nil {
			return m, nil
		}
		return m, waitProgressCmd(m.progressCh)

	case ProgressStreamClosedMsg:
		m.progressCh = nil
		return m, nil

	case TranscriptReadyMsg:
		m.panel = Success{Text: msg.Text}
		return m, m.saveCmd(msg.Text)

	case TranscribeFailedMsg:
		m.panel = Failure{Message: errorMessage(msg.Err)}
		return m, nil

	case TranscriptSavedMsg:
		if msg.Err != nil {
			m.panel = Failure{Message: "could not save transcript: " + msg.Err.Error()}
			return m, nil
		}
		return m, m.loadHistoryCmd()

	case HistoryLoadedMsg:
		m.history = msg.Records
		return m, nil

	case ContextVerdictMsg:
		// The verdict never touches PanelState.
		if msg.Err != nil {
			m.verify = ContextError{Message: errorMessage(msg.Err)}
		} else {
			m.verify = ContextResult{Referenced: msg.Referenced}
		}
		return m, nil

	case spinner.TickMsg:
		if _, ok := m.verify.(ContextChecking); ok {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if _, ok := m.panel.(Recording); ok {
			if err := m.deps.Recorder.Abort(); err != nil {
				m.log.Warn("discarding recording failed", "err", err)
			}
		}
		return m, tea.Quit

	case KeySpace:
		switch m.panel.(type) {
		case Transcribing:
			// The record key stays disabled while an upload is in flight.
			return m, nil
		case Recording:
			return m, m.stopCmd()
		default:
			// A fresh recording invalidates the previous verdict.
			m.verify = ContextNone{}
			return m, m.startCmd()
		}

	case KeyEsc:
		if _, ok := m.panel.(Recording); ok {
			return m, m.abortCmd()
		}
		return m, nil

	case KeyContext:
		s, ok := m.panel.(Success)
		if !ok {
			return m, nil
		}
		if _, checking := m.verify.(ContextChecking); checking {
			return m, nil
		}
		m.verify = ContextChecking{}
		return m, tea.Batch(m.spinner.Tick, m.classifyCmd(s.Text))
	}

	return m, nil
}

// errorMessage maps pipeline errors to user-facing text.
func errorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, record.ErrPermissionDenied):
		return "microphone access denied"
	case errors.Is(err, record.ErrPermissionTimeout):
		return "timed out waiting for microphone permission"
	case errors.Is(err, record.ErrEmptyRecording):
		return "recording produced no audio"
	case errors.Is(err, config.ErrMissingAPIKey), errors.Is(err, config.ErrPlaceholderAPIKey):
		return "OPENAI_API_KEY is not configured"
	}

	switch api.KindOf(err) {
	case api.KindNetwork:
		return "network error: " + err.Error()
	case api.KindEmptyResponse:
		return "the service returned an empty response"
	case api.KindInvalidResponse:
		return "unexpected response from the service"
	case api.KindEncoding:
		return "could not prepare the request: " + err.Error()
	}

	return err.Error()
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	if m.bootErr != nil {
		return strings.Join([]string{
			ui.TitleStyle.Render("MURMUR"),
			"",
			"  " + ui.ErrorStyle.Render("Startup failed: ") + ui.ErrorTextStyle.Render(m.bootErr.Error()),
			"",
			"  " + ui.FooterKeyStyle.Render("q") + ui.FooterDescStyle.Render(" Quit"),
		}, "\n")
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusLine())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderResult())
	sections = append(sections, m.renderContextLine())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderHistory())
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("MURMUR")
	if m.deps.CredErr != nil {
		return title + ui.ErrorTextStyle.Render(" — OPENAI_API_KEY is not configured")
	}
	return title
}

func (m Model) renderStatusLine() string {
	switch s := m.panel.(type) {
	case Recording:
		elapsed := time.Since(s.StartedAt).Truncate(time.Second)
		return ui.RecordingDotStyle.Render("● REC") +
			"  " + elapsed.String() +
			"  " + ui.DimStyle.Render(s.Path)

	case Transcribing:
		return ui.StatusStyle.Render("⇅ UPLOADING") + "  " + m.bar.ViewAs(s.Progress)

	case Success:
		return ui.ContextYesStyle.Render("✔ DONE")

	case Failure:
		return ui.ErrorStyle.Render("✘ FAILED")

	default:
		return ui.IdleDotStyle.Render("○ IDLE") +
			"  " + ui.DimStyle.Render("Press Space to record")
	}
}

func (m Model) renderResult() string {
	switch s := m.panel.(type) {
	case Success:
		lines := wrapText(s.Text, max(20, m.width-4))
		for i, l := range lines {
			lines[i] = "  " + ui.TranscriptStyle.Render(l)
		}
		return strings.Join(lines, "\n")

	case Failure:
		return "  " + ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(s.Message)

	default:
		return "  " + ui.DimStyle.Render("No transcript yet")
	}
}

func (m Model) renderContextLine() string {
	label := ui.DimStyle.Render("Context: ")

	switch c := m.verify.(type) {
	case ContextChecking:
		return label + m.spinner.View() + " checking history..."

	case ContextResult:
		if c.Referenced {
			return label + ui.ContextYesStyle.Render("references earlier notes")
		}
		return label + ui.ContextNoStyle.Render("standalone")

	case ContextError:
		return label + ui.ErrorTextStyle.Render(c.Message)

	default:
		if _, ok := m.panel.(Success); ok {
			return label + ui.DimStyle.Render("press c to check")
		}
		return label + ui.DimStyle.Render("—")
	}
}

func (m Model) renderHistory() string {
	var lines []string
	lines = append(lines, ui.PanelTitleStyle.Render(fmt.Sprintf("RECENT (%d)", len(m.history))))

	if len(m.history) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No transcripts yet"))
	} else {
		textWidth := max(20, m.width-16)
		for _, t := range m.history {
			ts := ui.TimestampStyle.Render(t.CreatedAt.Format("[15:04:05]"))
			lines = append(lines, "  "+ts+" "+truncateToWidth(t.Text, textWidth))
		}
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	var parts []string

	switch m.panel.(type) {
	case Recording:
		parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Stop"))
		parts = append(parts, ui.FooterKeyStyle.Render("Esc")+ui.FooterDescStyle.Render(" Discard"))
	case Transcribing:
		parts = append(parts, ui.DimStyle.Render("Space Record (busy)"))
	default:
		parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Record"))
	}

	if _, ok := m.panel.(Success); ok {
		parts = append(parts, ui.FooterKeyStyle.Render("c")+ui.FooterDescStyle.Render(" Context"))
	}

	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
