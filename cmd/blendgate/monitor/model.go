package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Srjnnnn/blendgate/pkg/gateway"
)

const refreshEvery = 2 * time.Second

// batchRow is one entry of the /batches listing.
type batchRow struct {
	BatchID     string `json:"batch_id"`
	Status      string `json:"status"`
	Total       int    `json:"total_commands"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	SubmittedAt string `json:"submitted_at"`
}

// snapshot bundles everything one poll cycle fetches.
type snapshot struct {
	status  gateway.StatusReport
	batches []batchRow
}

type snapshotMsg struct {
	snap snapshot
	err  error
}

type tickMsg time.Time

// Model is the dashboard's root bubbletea model.
type Model struct {
	addr   string
	client *http.Client

	width  int
	height int

	snap        *snapshot
	err         error
	loading     bool
	spinner     spinner.Model
	lastRefresh time.Time
}

func NewModel(addr string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	return Model{
		addr:    strings.TrimRight(addr, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		spinner: s,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchCmd(m.client, m.addr), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, fetchCmd(m.client, m.addr))
		}
		return m, nil

	case snapshotMsg:
		m.loading = false
		m.lastRefresh = time.Now()
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.snap = &msg.snap
		return m, nil

	case tickMsg:
		if !m.loading {
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, fetchCmd(m.client, m.addr), tickCmd())
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(styleHeader.Render("blendgate monitor"))
	b.WriteString(styleDim.Render("  " + m.addr))
	b.WriteString("\n\n")

	switch {
	case m.err != nil && m.snap == nil:
		b.WriteString(styleErr.Render("  Cannot reach the gateway"))
		b.WriteString("\n")
		b.WriteString(styleDim.Render("  " + m.err.Error()))
		b.WriteString("\n")
	case m.snap == nil:
		b.WriteString(fmt.Sprintf("  %s Connecting...\n", m.spinner.View()))
	default:
		b.WriteString(m.renderStatus())
		b.WriteString(m.renderBatches())
		if m.err != nil {
			b.WriteString(styleErr.Render("  connection lost, showing last snapshot"))
			b.WriteString("\n")
		}
	}

	rendered := b.String()
	lines := strings.Count(rendered, "\n") + 1
	for lines < m.height-1 {
		rendered += "\n"
		lines++
	}
	return rendered + m.renderStatusBar()
}

func (m Model) renderStatus() string {
	s := m.snap.status

	var b strings.Builder
	b.WriteString(stylePanelTitle.Render("Gateway"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", styleLabel.Render("Version"), styleValue.Render(s.Version)))
	b.WriteString(fmt.Sprintf("%s %s\n", styleLabel.Render("Uptime"), (time.Duration(s.UptimeSec) * time.Second).String()))
	b.WriteString(fmt.Sprintf("%s %d executed, %d failed\n", styleLabel.Render("Commands"), s.Commands, s.Errors))
	b.WriteString(fmt.Sprintf("%s %d submitted, %d running\n", styleLabel.Render("Batches"), s.Batches, s.RunningBatches))
	b.WriteString(fmt.Sprintf("%s %d commands\n", styleLabel.Render("Catalog"), s.CatalogSize))

	if len(s.Channels) > 0 {
		names := make([]string, 0, len(s.Channels))
		for name := range s.Channels {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			mark := styleErr.Render("✗")
			if s.Channels[name] {
				mark = styleOK.Render("✓")
			}
			parts = append(parts, mark+" "+name)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", styleLabel.Render("Channels"), strings.Join(parts, "  ")))
	}

	if len(s.SceneCounts) > 0 {
		kinds := make([]string, 0, len(s.SceneCounts))
		for kind := range s.SceneCounts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			parts = append(parts, fmt.Sprintf("%d %s", s.SceneCounts[kind], kind))
		}
		b.WriteString(fmt.Sprintf("%s %s\n", styleLabel.Render("Scene"), strings.Join(parts, ", ")))
	}

	return stylePanel.Width(m.panelWidth()).Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (m Model) renderBatches() string {
	var b strings.Builder
	b.WriteString(stylePanelTitle.Render("Recent batches"))
	b.WriteString("\n")

	if len(m.snap.batches) == 0 {
		b.WriteString(styleDim.Render("none yet"))
	} else {
		for _, row := range m.snap.batches {
			id := row.BatchID
			if len(id) > 8 {
				id = id[:8]
			}
			when := row.SubmittedAt
			if t, err := time.Parse(time.RFC3339, row.SubmittedAt); err == nil {
				when = t.Local().Format("15:04:05")
			}
			b.WriteString(fmt.Sprintf("%s %-8s  %-10s  %d/%d ok  %s\n",
				statusMark(row.Status, row.Failed), id, row.Status,
				row.Successful, row.Total, styleDim.Render(when)))
		}
	}

	return stylePanel.Width(m.panelWidth()).Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (m Model) renderStatusBar() string {
	left := ""
	if m.loading {
		left = fmt.Sprintf(" %s refreshing", m.spinner.View())
	} else if !m.lastRefresh.IsZero() {
		left = fmt.Sprintf(" updated %s ago", time.Since(m.lastRefresh).Truncate(time.Second))
	}
	right := "r: refresh  q: quit"

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return styleStatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) panelWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func fetchCmd(client *http.Client, addr string) tea.Cmd {
	return func() tea.Msg {
		var snap snapshot
		if err := getJSON(client, addr+"/status", &snap.status); err != nil {
			return snapshotMsg{err: err}
		}
		var listing struct {
			Batches []batchRow `json:"batches"`
		}
		if err := getJSON(client, addr+"/batches?limit=15", &listing); err != nil {
			return snapshotMsg{err: err}
		}
		snap.batches = listing.Batches
		return snapshotMsg{snap: snap}
	}
}

func getJSON(client *http.Client, url string, into interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
