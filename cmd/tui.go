package cmd

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/blacktop/sdpaint/internal/cloudflare"
	"github.com/blacktop/sdpaint/internal/paint"
)

type field int

const (
	fieldModel field = iota
	fieldPrompt
	fieldGuidance
	fieldSteps
	fieldGenerate
	numFields
)

type resultMsg paint.Result

type savedMsg struct {
	path string
	err  error
}

var (
	calloutStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("204")).
			Padding(0, 1)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	buttonStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	dialogStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 2)
)

type model struct {
	ctrl    *paint.Controller
	config  *config
	ctx     context.Context
	cancel  context.CancelFunc
	state   paint.State
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	prompt   textarea.Model
	guidance textinput.Model
	steps    textinput.Model
	focus    field

	settings      bool
	accountID     textinput.Model
	apiToken      textinput.Model
	settingsFocus int

	rendered string
	saved    string
	err      error
	width    int
	height   int
}

func newInitialModel(ctrl *paint.Controller, c *config) model {
	st := ctrl.Snapshot()
	ctx, cancel := context.WithCancel(context.Background())

	ta := textarea.New()
	ta.Placeholder = "eg: A photo of a cat"
	ta.ShowLineNumbers = false
	ta.SetHeight(5)
	ta.SetValue(st.Config.Prompt)

	guidance := numberInput(st.Config.GuidanceScale)
	steps := numberInput(st.Config.Steps)

	account := textinput.New()
	account.Placeholder = "Enter your AccountID"
	token := textinput.New()
	token.Placeholder = "Enter your API Token"
	token.EchoMode = textinput.EchoPassword

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	if st.Warning {
		// no keys configured: start with the settings dialog open
		account.Focus()
	}

	return model{
		settings:  st.Warning,
		ctrl:      ctrl,
		config:    c,
		ctx:       ctx,
		cancel:    cancel,
		state:     st,
		keys:      newKeyMap(),
		help:      help.New(),
		spinner:   s,
		prompt:    ta,
		guidance:  guidance,
		steps:     steps,
		focus:     fieldModel,
		accountID: account,
		apiToken:  token,
	}
}

func numberInput(v int) textinput.Model {
	ti := textinput.New()
	ti.CharLimit = 6
	ti.Width = 6
	ti.Prompt = ""
	ti.SetValue(strconv.Itoa(v))
	return ti
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func waitForResult(ch <-chan paint.Result) tea.Cmd {
	return func() tea.Msg {
		return resultMsg(<-ch)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.prompt.SetWidth(max(20, msg.Width-4))
		m.help.Width = msg.Width
		m.rendered = m.renderImage()
		return m, nil
	case resultMsg:
		m.state = m.ctrl.Snapshot()
		m.rendered = m.renderImage()
		return m, nil
	case savedMsg:
		m.saved, m.err = msg.path, msg.err
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.cancel()
			return m, tea.Quit
		}
		if m.settings {
			return m.updateSettings(msg)
		}
		return m.updateForm(msg)
	}
	return m.updateFocused(msg)
}

func (m model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Settings):
		m.commit()
		m.settings = true
		m.settingsFocus = 0
		m.accountID.Reset()
		m.apiToken.Reset()
		m.apiToken.Blur()
		cmd := m.accountID.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Next):
		cmd := m.setFocus((m.focus + 1) % numFields)
		return m, cmd
	case key.Matches(msg, m.keys.Prev):
		cmd := m.setFocus((m.focus + numFields - 1) % numFields)
		return m, cmd
	case key.Matches(msg, m.keys.Generate):
		return m.generate()
	case key.Matches(msg, m.keys.Save):
		st := m.state
		folder := m.config.OutputFolder
		return m, func() tea.Msg {
			path, err := saveImage(st.Image, st.Config.Prompt, folder)
			return savedMsg{path: path, err: err}
		}
	}

	switch m.focus {
	case fieldModel:
		if key.Matches(msg, m.keys.Left) || key.Matches(msg, m.keys.Right) {
			m.cycleModel(key.Matches(msg, m.keys.Right))
		}
		return m, nil
	case fieldGenerate:
		if msg.Type == tea.KeyEnter || msg.String() == " " {
			return m.generate()
		}
		return m, nil
	}
	return m.updateFocused(msg)
}

// updateFocused forwards msg to the focused input and commits numeric edits.
func (m model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.settings {
		if m.settingsFocus == 0 {
			m.accountID, cmd = m.accountID.Update(msg)
		} else {
			m.apiToken, cmd = m.apiToken.Update(msg)
		}
		return m, cmd
	}
	switch m.focus {
	case fieldPrompt:
		m.prompt, cmd = m.prompt.Update(msg)
	case fieldGuidance:
		m.guidance, cmd = m.guidance.Update(msg)
		if _, ok := msg.(tea.KeyMsg); ok {
			m.ctrl.SetGuidanceScale(m.guidance.Value())
			m.state = m.ctrl.Snapshot()
		}
	case fieldSteps:
		m.steps, cmd = m.steps.Update(msg)
		if _, ok := msg.(tea.KeyMsg); ok {
			m.ctrl.SetSteps(m.steps.Value())
			m.state = m.ctrl.Snapshot()
		}
	}
	return m, cmd
}

func (m model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.settings = false
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.ctrl.SetCredentials(strings.TrimSpace(m.accountID.Value()), strings.TrimSpace(m.apiToken.Value()))
		m.accountID.Reset()
		m.apiToken.Reset()
		m.state = m.ctrl.Snapshot()
		m.settings = false
		return m, nil
	case key.Matches(msg, m.keys.Next), key.Matches(msg, m.keys.Prev):
		m.settingsFocus = 1 - m.settingsFocus
		var cmd tea.Cmd
		if m.settingsFocus == 0 {
			m.apiToken.Blur()
			cmd = m.accountID.Focus()
		} else {
			m.accountID.Blur()
			cmd = m.apiToken.Focus()
		}
		return m, cmd
	}
	return m.updateFocused(msg)
}

// commit pushes the prompt to the controller and resets numeric inputs to
// the values the controller accepted.
func (m *model) commit() {
	m.ctrl.SetPrompt(m.prompt.Value())
	m.state = m.ctrl.Snapshot()
	m.guidance.SetValue(strconv.Itoa(m.state.Config.GuidanceScale))
	m.steps.SetValue(strconv.Itoa(m.state.Config.Steps))
}

func (m *model) setFocus(f field) tea.Cmd {
	m.commit()
	m.prompt.Blur()
	m.guidance.Blur()
	m.steps.Blur()
	m.focus = f
	switch f {
	case fieldPrompt:
		return m.prompt.Focus()
	case fieldGuidance:
		return m.guidance.Focus()
	case fieldSteps:
		return m.steps.Focus()
	}
	return nil
}

func (m *model) cycleModel(forward bool) {
	labels := cloudflare.Labels()
	i := slices.Index(labels, m.state.Config.Model)
	if forward {
		i = (i + 1) % len(labels)
	} else {
		i = (i + len(labels) - 1) % len(labels)
	}
	if err := m.ctrl.SetModel(labels[i]); err != nil {
		log.Debug("Model selection rejected", "err", err)
	}
	m.state = m.ctrl.Snapshot()
}

func (m model) generate() (tea.Model, tea.Cmd) {
	m.commit()
	ch, err := m.ctrl.Start(m.ctx)
	if err != nil {
		log.Debug("Generate ignored", "err", err)
		return m, nil
	}
	m.state = m.ctrl.Snapshot()
	m.saved, m.err = "", nil
	log.Debug("Generating image", "model", m.state.Config.Model, "prompt", m.state.Config.Prompt)
	return m, tea.Batch(waitForResult(ch), m.spinner.Tick)
}

func (m model) renderImage() string {
	if m.width == 0 || m.state.Image.Decoded == nil {
		return ""
	}
	return displayImage(m.state.Image, m.config.DisplayProtocol, max(10, m.width/2), max(5, m.height/2))
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	if m.settings {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.settingsView())
	}

	var b strings.Builder
	if m.state.Warning {
		b.WriteString(calloutStyle.Render("⚠ Please set your AccountID and API Token") + "\n\n")
	}
	b.WriteString(headingStyle.Render("SD painting") + "  " + dimStyle.Render("ctrl+s: keys") + "\n\n")

	b.WriteString(m.label(fieldModel, "Select a model") + "  " + m.modelView() + "\n\n")
	b.WriteString(m.label(fieldPrompt, "Your prompt:") + "\n" + m.prompt.View() + "\n\n")
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s\n",
		m.label(fieldGuidance, "CFG scale:"), m.guidance.View(),
		m.label(fieldSteps, "Steps:"), m.steps.View(),
		m.generateButton(),
	))
	b.WriteString(dimStyle.Render(strings.Repeat("─", max(0, m.width-2))) + "\n")
	b.WriteString(labelStyle.Render("Generated Image:") + "\n")
	b.WriteString(m.imageView() + "\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) label(f field, text string) string {
	if m.focus == f {
		return focusedStyle.Bold(true).Render(text)
	}
	return labelStyle.Render(text)
}

func (m model) modelView() string {
	v := fmt.Sprintf("‹ %s ›", m.state.Config.Model)
	if m.focus == fieldModel {
		return focusedStyle.Render(v)
	}
	return v
}

func (m model) generateButton() string {
	if m.state.Loading {
		return dimStyle.Render("[ Generating… ]")
	}
	style := buttonStyle
	if m.focus == fieldGenerate {
		style = style.Background(lipgloss.Color("7"))
	}
	return style.Render("[ Generate ]")
}

func (m model) imageView() string {
	if m.state.Loading {
		return fmt.Sprintf("%s Generating image...", m.spinner.View())
	}
	var b strings.Builder
	b.WriteString(m.rendered)
	if m.state.LastError != nil {
		b.WriteString("\n" + errorStyle.Render(m.state.LastError.Error()))
	}
	if m.saved != "" {
		b.WriteString("\n" + dimStyle.Render("Image saved: "+m.saved))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}
	return b.String()
}

func (m model) settingsView() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render("Setting Your Keys"),
		"",
		labelStyle.Render("AccountID"),
		m.accountID.View(),
		"",
		labelStyle.Render("API Token"),
		m.apiToken.View(),
		"",
		m.help.ShortHelpView(m.keys.settingsHelp()),
	)
	return dialogStyle.Render(content)
}
