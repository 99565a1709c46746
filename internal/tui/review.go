package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// reviewMode is the input mode of the review screen.
type reviewMode int

const (
	modeBrowse reviewMode = iota
	modeEdit
)

// chromeHeight is the number of lines taken by the title, header and prompt.
const chromeHeight = 9

// ReviewModel displays a consolidated summary at the approval gate and
// collects the reviewer's decision.
type ReviewModel struct {
	runID    string
	query    string
	summary  models.ConsolidatedSummary
	rendered string
	deadline time.Time

	width  int
	height int
	mode   reviewMode

	viewport viewport.Model
	editor   textarea.Model

	decision *models.ApprovalDecision
	aborted  bool
	notice   string

	// Styles
	titleStyle   lipgloss.Style
	headerStyle  lipgloss.Style
	promptStyle  lipgloss.Style
	contextStyle lipgloss.Style
	okStyle      lipgloss.Style
	partialStyle lipgloss.Style
	failedStyle  lipgloss.Style
}

// NewReviewModel creates a review screen for a parked run.
func NewReviewModel(s *models.RunState, rendered string) *ReviewModel {
	vp := viewport.New(80, 15)
	vp.SetContent(rendered)

	ta := textarea.New()
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(15)

	m := &ReviewModel{
		rendered: rendered,
		width:    80,
		height:   24,
		viewport: vp,
		editor:   ta,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Background(lipgloss.Color("236")).
			Padding(0, 2),
		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")). // Blue
			Bold(true),
		promptStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")). // Yellow
			Bold(true),
		contextStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")), // Gray
		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green
		partialStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")), // Orange
		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red
	}
	if s != nil {
		m.runID = s.RunID
		m.query = s.Query.Text
		if s.Summary != nil {
			m.summary = *s.Summary
		}
		if s.ApprovalDeadline != nil {
			m.deadline = *s.ApprovalDeadline
		}
	}
	return m
}

// Init implements tea.Model.
func (m *ReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.aborted = true
			return m, tea.Quit
		}
		if m.mode == modeEdit {
			return m.updateEdit(msg)
		}
		return m.updateBrowse(msg)
	}

	if m.mode == modeEdit {
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *ReviewModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "a", "A":
		m.decide(models.ApprovalApproved, "")
		return m, tea.Quit
	case "r", "R":
		m.decide(models.ApprovalRejected, "")
		return m, tea.Quit
	case "e", "E":
		m.mode = modeEdit
		m.notice = ""
		m.editor.SetValue(m.rendered)
		return m, m.editor.Focus()
	case "q":
		m.aborted = true
		return m, tea.Quit
	case "home", "g":
		m.viewport.GotoTop()
		return m, nil
	case "end", "G":
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *ReviewModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.editor.Blur()
		return m, nil
	case "ctrl+s":
		text := strings.TrimSpace(m.editor.Value())
		if text == "" {
			m.notice = "edited summary is empty"
			return m, nil
		}
		m.decide(models.ApprovalEdited, text)
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m *ReviewModel) decide(outcome models.ApprovalOutcome, edited string) {
	m.decision = &models.ApprovalDecision{
		RunID:      m.runID,
		Outcome:    outcome,
		EditedText: edited,
		Reason:     models.ReasonReviewer,
		DecidedAt:  time.Now().UTC(),
	}
}

// View implements tea.Model.
func (m *ReviewModel) View() string {
	var sb strings.Builder

	sb.WriteString(m.titleStyle.Render(" Approval Required "))
	sb.WriteString("\n\n")

	sb.WriteString(m.headerStyle.Render("Run: "))
	sb.WriteString(m.runID)
	sb.WriteString("  ")
	sb.WriteString(m.headerStyle.Render("Status: "))
	sb.WriteString(m.statusStyle().Render(string(m.summary.OverallStatus)))
	sb.WriteString("\n")
	sb.WriteString(m.headerStyle.Render("Query: "))
	sb.WriteString(m.query)
	sb.WriteString("\n")
	if !m.deadline.IsZero() {
		sb.WriteString(m.contextStyle.Render(fmt.Sprintf("Auto-rejects at %s", m.deadline.Local().Format("2006-01-02 15:04:05"))))
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Repeat("-", min(m.width, 80)))
	sb.WriteString("\n")

	if m.mode == modeEdit {
		sb.WriteString(m.editor.View())
	} else {
		sb.WriteString(m.viewport.View())
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", min(m.width, 80)))
	sb.WriteString("\n")

	if m.notice != "" {
		sb.WriteString(m.failedStyle.Render(m.notice))
		sb.WriteString("\n")
	}
	if m.mode == modeEdit {
		sb.WriteString(m.promptStyle.Render("Editing summary: ctrl+s to send, esc to go back"))
	} else {
		sb.WriteString(m.promptStyle.Render("[A]pprove / [R]eject / [E]dit"))
		sb.WriteString("\n")
		sb.WriteString(m.contextStyle.Render(fmt.Sprintf("(j/k or arrows to scroll, %3.f%%, q to leave undecided)", m.viewport.ScrollPercent()*100)))
	}
	return sb.String()
}

func (m *ReviewModel) statusStyle() lipgloss.Style {
	switch m.summary.OverallStatus {
	case models.OverallComplete:
		return m.okStyle
	case models.OverallPartial:
		return m.partialStyle
	default:
		return m.failedStyle
	}
}

// SetSize updates the screen dimensions.
func (m *ReviewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	body := max(height-chromeHeight, 5)
	m.viewport.Width = width
	m.viewport.Height = body
	m.editor.SetWidth(width)
	m.editor.SetHeight(body)
}

// Decision returns the reviewer's decision. ok is false when the reviewer
// quit without deciding.
func (m *ReviewModel) Decision() (models.ApprovalDecision, bool) {
	if m.decision == nil {
		return models.ApprovalDecision{}, false
	}
	return *m.decision, true
}

// Aborted reports whether the reviewer quit without deciding.
func (m *ReviewModel) Aborted() bool {
	return m.aborted
}

// RunReview shows the review screen for s and blocks until the reviewer
// decides or quits.
func RunReview(s *models.RunState, rendered string, opts ...tea.ProgramOption) (models.ApprovalDecision, bool, error) {
	m := NewReviewModel(s, rendered)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return models.ApprovalDecision{}, false, fmt.Errorf("review screen: %w", err)
	}
	d, ok := final.(*ReviewModel).Decision()
	return d, ok, nil
}
