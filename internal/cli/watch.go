package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/thuduc/fan-out-fan-in/pkg/config"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
)

func (c *CLI) watchCommand() *cobra.Command {
	var (
		requestID  string
		storeURL   string
		configPath string
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a request's group progress live",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if storeURL != "" {
				cfg.RedisURL = storeURL
			}

			ctx := cmd.Context()
			st, err := store.NewRedisStore(ctx, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("connect to store: %w", err)
			}
			defer st.Close()

			model := newWatchModel(st, requestID, interval)
			p := tea.NewProgram(model)
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request identifier to watch")
	cmd.Flags().StringVar(&storeURL, "store-url", "", "Redis URL, overriding REDIS_URL/config")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.MarkFlagRequired("request-id")

	return cmd
}

// =============================================================================
// WatchModel - poll-based, read-only progress view
// =============================================================================

type groupRow struct {
	index     int
	expected  int
	completed int
	failed    int
	status    string
}

type watchTickMsg time.Time

type watchStateMsg struct {
	requestStatus string
	groupCount    int
	groups        []groupRow
	err           error
}

// WatchModel is the bubbletea model for live request-progress rendering.
type WatchModel struct {
	store     store.Store
	requestID string
	interval  time.Duration

	requestStatus string
	groups        []groupRow
	err           error
	quitting      bool
}

func newWatchModel(st store.Store, requestID string, interval time.Duration) WatchModel {
	return WatchModel{store: st, requestID: requestID, interval: interval}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), tickEvery(m.interval))
}

func (m WatchModel) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reqState, err := m.store.HGetAll(ctx, store.RequestStateKey(m.requestID))
		if err != nil {
			return watchStateMsg{err: err}
		}
		groupCount, _ := strconv.Atoi(reqState["groupCount"])

		rows := make([]groupRow, 0, groupCount)
		for i := 0; i < groupCount; i++ {
			gs, err := m.store.HGetAll(ctx, store.GroupStateKey(m.requestID, i))
			if err != nil {
				return watchStateMsg{err: err}
			}
			expected, _ := strconv.Atoi(gs["expected"])
			completed, _ := strconv.Atoi(gs["completed"])
			failed, _ := strconv.Atoi(gs["failed"])
			rows = append(rows, groupRow{index: i, expected: expected, completed: completed, failed: failed, status: gs["status"]})
		}

		return watchStateMsg{requestStatus: reqState["status"], groupCount: groupCount, groups: rows}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return watchTickMsg(t) })
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case watchTickMsg:
		if m.requestStatus == "succeeded" || m.requestStatus == "failed" {
			return m, nil
		}
		return m, tea.Batch(m.poll(), tickEvery(m.interval))
	case watchStateMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.requestStatus = msg.requestStatus
		m.groups = msg.groups
		m.err = nil
	}
	return m, nil
}

func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Request " + m.requestID))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(StyleWarning.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(StyleDim.Render("status: ") + statusStyle(m.requestStatus).Render(m.requestStatus))
	b.WriteString("\n\n")

	rows := make([][]string, 0, len(m.groups))
	for _, g := range m.groups {
		rows = append(rows, []string{
			strconv.Itoa(g.index),
			fmt.Sprintf("%d/%d", g.completed, g.expected),
			strconv.Itoa(g.failed),
			g.status,
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Group", "Completed", "Failed", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(StyleDim.Render("q to quit"))

	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "succeeded", "completed":
		return StyleSuccess
	case "failed":
		return lipgloss.NewStyle().Foreground(colorRed)
	default:
		return StyleDim
	}
}
