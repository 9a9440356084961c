package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/portwhine/portwhine/internal/model"
)

const refreshInterval = 2 * time.Second

// Model is the bubbletea model for the run monitor.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	healthy   bool
	uptime    int64
	pipelines []*model.Pipeline
	runs      map[string][]*model.Run
	selected  int

	theme     Theme
	lastError string
}

func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL: apiURL,
		apiKey: apiKey,
		runs:   make(map[string][]*model.Run),
		theme:  NewDefaultTheme(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		fetchHealth(m.apiURL, m.apiKey),
		fetchPipelines(m.apiURL, m.apiKey),
		tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.pipelines)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		cmds := []tea.Cmd{
			fetchHealth(m.apiURL, m.apiKey),
			fetchPipelines(m.apiURL, m.apiKey),
			tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		}
		for _, p := range m.pipelines {
			cmds = append(cmds, fetchRuns(m.apiURL, m.apiKey, p.ID.String()))
		}
		return m, tea.Batch(cmds...)

	case healthMsg:
		m.healthy = msg.Status == "ok"
		m.uptime = msg.UptimeSeconds
		m.lastError = ""

	case pipelinesMsg:
		m.pipelines = msg
		sort.Slice(m.pipelines, func(i, j int) bool {
			return m.pipelines[i].Name < m.pipelines[j].Name
		})
		if m.selected >= len(m.pipelines) {
			m.selected = 0
		}

	case runsMsg:
		m.runs[msg.pipelineID] = msg.runs

	case errMsg:
		m.healthy = false
		m.lastError = msg.err.Error()
	}
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.pipelinesView())
	if sel := m.selectedPipeline(); sel != nil {
		b.WriteString("\n")
		b.WriteString(m.runsView(sel))
	}
	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.StatusError.Render("error: " + m.lastError))
	}
	b.WriteString("\n")
	b.WriteString(m.theme.Dim.Render("q quit · j/k select pipeline"))
	return b.String()
}

func (m *Model) headerView() string {
	status := m.theme.StatusError.Render("● offline")
	if m.healthy {
		status = m.theme.StatusCompleted.Render(fmt.Sprintf("● up %s", (time.Duration(m.uptime) * time.Second)))
	}
	title := m.theme.Title.Render("portwhine watch")
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", status)
}

func (m *Model) pipelinesView() string {
	if len(m.pipelines) == 0 {
		return m.theme.Dim.Render("no pipelines")
	}

	var rows []string
	rows = append(rows, m.theme.Header.Render(fmt.Sprintf("  %-36s %-8s %-8s %s", "PIPELINE", "WORKERS", "EDGES", "LAST RUN")))
	for i, p := range m.pipelines {
		cursor := "  "
		if i == m.selected {
			cursor = m.theme.Highlight.Render("> ")
		}
		last := m.theme.Dim.Render("never")
		if runs := m.runs[p.ID.String()]; len(runs) > 0 {
			last = m.theme.status(string(runs[0].Status)).Render(string(runs[0].Status))
		}
		rows = append(rows, fmt.Sprintf("%s%-36s %-8d %-8d %s", cursor, p.Name, len(p.Workers), len(p.Edges), last))
	}
	return strings.Join(rows, "\n")
}

func (m *Model) runsView(p *model.Pipeline) string {
	runs := m.runs[p.ID.String()]
	if len(runs) == 0 {
		return m.theme.Dim.Render("no runs for " + p.Name)
	}

	run := runs[0]
	var rows []string
	rows = append(rows, m.theme.Header.Render("run "+run.ID.String()+"  "+
		m.theme.status(string(run.Status)).Render(string(run.Status))))

	keys := make([]string, 0, len(run.NodeStates))
	for k := range run.NodeStates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		st := run.NodeStates[k]
		line := fmt.Sprintf("  %-22s %s", nodeLabel(p, k), m.theme.status(string(st.Status)).Render(string(st.Status)))
		if st.Error != "" {
			line += "  " + m.theme.StatusError.Render(st.Error)
		}
		rows = append(rows, line)
	}
	return m.theme.Border.Render(strings.Join(rows, "\n"))
}

// nodeLabel shows the node's type name, falling back to a shortened id when
// the run references a node the current definition no longer has.
func nodeLabel(p *model.Pipeline, key string) string {
	if id, err := uuid.Parse(key); err == nil {
		if typ, ok := p.NodeType(id); ok {
			return typ
		}
	}
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

func (m *Model) selectedPipeline() *model.Pipeline {
	if m.selected < 0 || m.selected >= len(m.pipelines) {
		return nil
	}
	return m.pipelines[m.selected]
}
