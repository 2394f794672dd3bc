package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"

	"qemutrace/internal/elfx"
	"qemutrace/internal/qemutrace/styles"
	"qemutrace/internal/trace"
)

type corpusMsg struct {
	corpus *trace.Corpus
	err    error
}

// loadCorpusCmd parses the whole log off the UI goroutine.
func loadCorpusCmd(src *trace.Source) tea.Cmd {
	return func() tea.Msg {
		c, err := src.Corpus()
		return corpusMsg{corpus: c, err: err}
	}
}

// Model is the history navigator. It needs an eager source since it walks
// backwards as well as forwards.
type Model struct {
	viewport viewport.Model
	spinner  spinner.Model
	src      *trace.Source
	elf      *elfx.Image
	report   *Report
	cur      *trace.Snapshot
	start    int
	loading  bool
	status   string
	err      error
	width    int
	height   int
}

// New returns a navigator over src that opens at snapshot start once loaded.
func New(src *trace.Source, elf *elfx.Image, start int) Model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	m := Model{
		viewport: vp,
		spinner:  s,
		src:      src,
		elf:      elf,
		start:    start,
		loading:  true,
		width:    80,
		height:   24,
	}
	m.updateContent()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(loadCorpusCmd(m.src), m.spinner.Tick)
}

// Current is the id of the snapshot on screen, or -1 before loading.
func (m Model) Current() int {
	if m.cur == nil {
		return -1
	}
	return m.cur.ID
}

// Err is the load error, if any.
func (m Model) Err() error { return m.err }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case corpusMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.updateContent()
			return m, nil
		}
		m.report = NewReport(msg.corpus, m.elf)
		if s, ok := msg.corpus.Snapshot(m.start); ok {
			m.cur = s
		} else if s, ok := msg.corpus.Snapshot(0); ok {
			m.cur = s
			if m.start != 0 {
				m.status = fmt.Sprintf("no snapshot %d", m.start)
			}
		}
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateContent()
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.updateContent()
		}
		return m, nil

	case tea.KeyMsg:
		if next, cmd, ok := m.handleKey(msg.String()); ok {
			return next, cmd
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleKey applies a navigation key. It reports false for keys the viewport
// should handle instead.
func (m Model) handleKey(key string) (Model, tea.Cmd, bool) {
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	}
	if m.report == nil || m.cur == nil {
		return m, nil, false
	}
	c := m.report.Corpus
	var (
		to   *trace.Snapshot
		ok   bool
		miss string
	)
	switch key {
	case "n", "right":
		to, ok = c.Next(m.cur)
		miss = "last snapshot"
	case "p", "left":
		to, ok = c.Previous(m.cur)
		miss = "first snapshot"
	case "e":
		if next, more := c.Next(m.cur); more {
			to, ok = c.ExceptionReturnAfter(next)
		}
		miss = "no later exception return"
	case "g", "home":
		to, ok = c.Snapshot(0)
	case "G", "end":
		to, ok = c.Snapshot(c.Len() - 1)
	default:
		return m, nil, false
	}
	if !ok {
		m.status = miss
		m.updateContent()
		return m, nil, true
	}
	m.cur, m.status = to, ""
	m.updateContent()
	m.viewport.GotoTop()
	return m, nil, true
}

func (m Model) View() string {
	menu := " n/p: next/previous • e: exception return • g/G: first/last • q: quit "
	if m.status != "" {
		menu = " " + m.status + " •" + menu
	}
	if m.cur != nil {
		menu = fmt.Sprintf(" %d/%d •%s", m.cur.ID, m.report.Corpus.Len()-1, menu)
	}
	return m.viewport.View() + "\n" + styles.MenuBar.Width(m.width).Render(menu)
}

func (m *Model) updateContent() {
	var content string
	switch {
	case m.err != nil:
		content = styles.Warning.Render("Failed to load trace: " + m.err.Error())
	case m.loading:
		content = fmt.Sprintf("\n  %s Parsing %s...", m.spinner.View(), m.src.Path)
	case m.cur == nil:
		content = "\n  " + styles.Muted.Render("The trace holds no register snapshots.")
	default:
		out, err := m.report.Render(m.cur, m.width)
		if err != nil {
			out = styles.Warning.Render(err.Error())
		}
		content = out
	}
	m.viewport.SetContent(strings.TrimSuffix(content, "\n"))
}
