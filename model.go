package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"

	"github.com/entro314-labs/nookfb/internal/fileops"
	"github.com/entro314-labs/nookfb/internal/listing"
	"github.com/entro314-labs/nookfb/internal/session"
)

// browser is the navigation surface of the session manager.
type browser interface {
	NavigateTo(path string)
	ForceRefresh()
	Up()
	Home()
	DismissError(id uint64)
}

// operations is the file operation surface of the dispatcher.
type operations interface {
	Download(ctx context.Context, remotePath string) error
	Upload(ctx context.Context, localPaths ...string)
	Delete(ctx context.Context, remotePath string)
}

type modelDeps struct {
	browser  browser
	ops      operations
	listings <-chan session.Listing
	notices  <-chan fileops.Notice
}

type listingMsg struct {
	Listing session.Listing
}

type noticeMsg struct {
	Notice fileops.Notice
}

type downloadStartedMsg struct {
	Remote string
	Err    error
}

type confirmState struct {
	active bool
	path   string
	name   string
}

type keyMap struct {
	Open         key.Binding
	Up           key.Binding
	Home         key.Binding
	Refresh      key.Binding
	ToggleHidden key.Binding
	Delete       key.Binding
	Upload       key.Binding
	Dismiss      key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open/download"),
		),
		Up: key.NewBinding(
			key.WithKeys("backspace"),
			key.WithHelp("backspace", "up"),
		),
		Home: key.NewBinding(
			key.WithKeys("~"),
			key.WithHelp("~", "home"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ToggleHidden: key.NewBinding(
			key.WithKeys("."),
			key.WithHelp(".", "hidden"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Upload: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "upload"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "dismiss error"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Open, k.Up, k.Refresh, k.Delete, k.Upload, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Open, k.Up, k.Home, k.Refresh, k.ToggleHidden}, {k.Delete, k.Upload, k.Dismiss, k.Help, k.Quit}}
}

type model struct {
	table      table.Model
	spinner    spinner.Model
	help       help.Model
	input      textinput.Model
	keys       keyMap
	deps       modelDeps
	ctx        context.Context
	listing    session.Listing
	visible    []listing.Entry
	showHidden bool
	prompting  bool
	confirm    confirmState
	lastEvent  string
	nameWidth  int
	width      int
	height     int
}

type styles struct {
	base      lipgloss.Style
	header    lipgloss.Style
	title     lipgloss.Style
	status    lipgloss.Style
	muted     lipgloss.Style
	accent    lipgloss.Style
	danger    lipgloss.Style
	confirm   lipgloss.Style
	chip      lipgloss.Style
	container lipgloss.Style
}

var ui = styles{
	base: lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("238")),
	container: lipgloss.NewStyle().Padding(0, 1),
	header:    lipgloss.NewStyle().Padding(0, 1),
	title:     lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
	status:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	accent:    lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
	danger:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
	confirm:   lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("203")).Bold(true).Padding(0, 1),
	chip:      lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("62")).Padding(0, 1),
}

const kindWidth = 8

func newModel(ctx context.Context, deps modelDeps) model {
	// d and u are taken by delete and upload.
	tableKeys := table.DefaultKeyMap()
	tableKeys.HalfPageUp.SetKeys("ctrl+u")
	tableKeys.HalfPageDown.SetKeys("ctrl+d")

	t := table.New(
		table.WithColumns(columnsFor(40)),
		table.WithFocused(true),
		table.WithKeyMap(tableKeys),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("238")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	in := textinput.New()
	in.Prompt = "Upload: "
	in.Placeholder = "local file path"

	return model{
		table:     t,
		spinner:   sp,
		help:      help.New(),
		input:     in,
		keys:      newKeyMap(),
		deps:      deps,
		ctx:       ctx,
		nameWidth: 40,
	}
}

func columnsFor(nameWidth int) []table.Column {
	return []table.Column{
		{Title: "Name", Width: nameWidth},
		{Title: "Kind", Width: kindWidth},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitListing(m.deps.listings), waitNotice(m.deps.notices))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.updateLayout(msg.Width, msg.Height)
	case spinner.TickMsg:
		if m.listing.Loading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case listingMsg:
		cmds = append(cmds, waitListing(m.deps.listings))
		if msg.Listing.Version <= m.listing.Version {
			break
		}
		wasLoading := m.listing.Loading()
		moved := msg.Listing.Path != m.listing.Path
		m.listing = msg.Listing
		m.setTableRows()
		if moved {
			m.table.SetCursor(0)
		}
		if m.listing.Loading() && !wasLoading {
			cmds = append(cmds, m.spinner.Tick)
		}
	case noticeMsg:
		m.lastEvent = describeNotice(msg.Notice)
		cmds = append(cmds, waitNotice(m.deps.notices))
	case downloadStartedMsg:
		if msg.Err != nil {
			m.lastEvent = fmt.Sprintf("Download failed: %v", msg.Err)
		} else {
			m.lastEvent = fmt.Sprintf("Downloading %s…", displayName(baseName(msg.Remote), 0))
		}
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		if m.confirm.active {
			switch msg.String() {
			case "y", "Y":
				target := m.confirm.path
				m.confirm = confirmState{}
				m.deps.ops.Delete(m.ctx, target)
				m.lastEvent = fmt.Sprintf("Deleting %s…", target)
			case "n", "N", "esc":
				m.confirm = confirmState{}
				m.lastEvent = "Deletion cancelled"
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Open):
			if cmd := m.openSelected(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case key.Matches(msg, m.keys.Up):
			m.deps.browser.Up()
		case key.Matches(msg, m.keys.Home):
			m.deps.browser.Home()
		case key.Matches(msg, m.keys.Refresh):
			m.deps.browser.ForceRefresh()
		case key.Matches(msg, m.keys.ToggleHidden):
			m.showHidden = !m.showHidden
			m.setTableRows()
			if m.showHidden {
				m.lastEvent = "Showing hidden entries"
			} else {
				m.lastEvent = "Hiding hidden entries"
			}
		case key.Matches(msg, m.keys.Delete):
			m.requestDelete()
		case key.Matches(msg, m.keys.Upload):
			m.prompting = true
			m.input.SetValue("")
			cmds = append(cmds, m.input.Focus())
		case key.Matches(msg, m.keys.Dismiss):
			if p := m.listing.Pending; p != nil {
				m.deps.browser.DismissError(p.ID)
			}
		default:
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
		m.input.Blur()
		m.lastEvent = "Upload cancelled"
		return m, nil
	case tea.KeyEnter:
		m.prompting = false
		m.input.Blur()
		local, err := expandLocal(m.input.Value())
		if err != nil {
			m.lastEvent = fmt.Sprintf("Upload: %v", err)
			return m, nil
		}
		m.deps.ops.Upload(m.ctx, local)
		m.lastEvent = fmt.Sprintf("Uploading %s…", local)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	var content string
	if m.listing.LoadFailed {
		content = ui.base.Width(m.width - 4).Render(ui.danger.Render(
			fmt.Sprintf("Could not load %s. Press r to retry.", session.Display(m.listing.Path))))
	} else {
		content = ui.base.Render(m.table.View())
	}
	view := lipgloss.JoinVertical(
		lipgloss.Left,
		m.headerView(),
		content,
		m.statusView(),
		m.footerView(),
	)
	return ui.container.Render(view)
}

func (m *model) updateLayout(width, height int) {
	if width == 0 || height == 0 {
		return
	}
	width = max(width, 40)
	height = max(height, 10)
	if m.width == width && m.height == height {
		return
	}
	m.width = width
	m.height = height

	m.nameWidth = max(width-kindWidth-10, 16)
	m.table.SetColumns(columnsFor(m.nameWidth))
	m.setTableRows()

	headerHeight := lipgloss.Height(m.headerView())
	statusHeight := lipgloss.Height(m.statusView())
	footerHeight := lipgloss.Height(m.footerView())
	m.table.SetHeight(max(height-headerHeight-statusHeight-footerHeight-4, 3))
	m.table.SetWidth(width - 4)
	m.input.Width = max(width-16, 10)
}

func (m model) headerView() string {
	title := ui.title.Render("nookfb")
	chip := ui.chip.Render(fmt.Sprintf("%d entries", len(m.visible)))
	path := ui.muted.Render(session.Display(m.listing.Path))
	return ui.header.Render(lipgloss.JoinHorizontal(lipgloss.Left, title, " ", chip, " ", path))
}

func (m model) statusView() string {
	if p := m.listing.Pending; p != nil {
		return ui.danger.Render(fmt.Sprintf("Error: %v (esc to dismiss)", p))
	}
	if m.listing.Loading() {
		return ui.status.Render(fmt.Sprintf("%s Listing %s… %d entries", m.spinner.View(), session.Display(m.listing.Path), len(m.listing.Entries)))
	}
	hidden := "hidden: off"
	if m.showHidden {
		hidden = "hidden: on"
	}
	parts := []string{
		fmt.Sprintf("Entries: %d", len(m.visible)),
		hidden,
	}
	if m.listing.State != session.StateIdle {
		parts = append(parts, m.listing.State.String())
	}
	return ui.status.Render(strings.Join(parts, " · "))
}

func (m model) footerView() string {
	if m.confirm.active {
		return ui.confirm.Render(fmt.Sprintf("Delete %s? (y/n)", m.confirm.name))
	}
	if m.prompting {
		return m.input.View()
	}
	if m.lastEvent != "" {
		return lipgloss.JoinVertical(lipgloss.Left, ui.muted.Render(m.lastEvent), m.help.View(m.keys))
	}
	return m.help.View(m.keys)
}

func (m *model) setTableRows() {
	visible := make([]listing.Entry, 0, len(m.listing.Entries))
	for _, e := range m.listing.Entries {
		if e.Hidden && !m.showHidden {
			continue
		}
		visible = append(visible, e)
	}
	m.visible = visible

	rows := make([]table.Row, 0, len(m.visible))
	for _, e := range m.visible {
		kind := "file"
		if e.IsDir() {
			kind = ui.accent.Render("dir")
		}
		if e.Hidden {
			kind = ui.muted.Render(kind + " ·")
		}
		rows = append(rows, table.Row{displayName(e.Name, m.nameWidth), kind})
	}
	m.table.SetRows(rows)
	if len(rows) > 0 && m.table.Cursor() < 0 {
		m.table.SetCursor(0)
	}
}

func (m model) selected() (listing.Entry, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.visible) {
		return listing.Entry{}, false
	}
	return m.visible[idx], true
}

func (m *model) openSelected() tea.Cmd {
	if m.listing.LoadFailed {
		return nil
	}
	e, ok := m.selected()
	if !ok {
		return nil
	}
	target := session.Join(m.listing.Path, e.Name)
	if e.IsDir() {
		m.deps.browser.NavigateTo(target)
		return nil
	}
	return downloadCmd(m.ctx, m.deps.ops, target)
}

func (m *model) requestDelete() {
	if m.listing.LoadFailed {
		return
	}
	e, ok := m.selected()
	if !ok {
		return
	}
	m.confirm = confirmState{
		active: true,
		path:   session.Join(m.listing.Path, e.Name),
		name:   displayName(e.Name, 0),
	}
}

// displayName normalizes name to NFC and truncates it to width display
// cells. A width of zero disables truncation.
func displayName(name string, width int) string {
	name = norm.NFC.String(name)
	if width <= 0 {
		return name
	}
	return runewidth.Truncate(name, width, "…")
}

func baseName(remote string) string {
	if idx := strings.LastIndex(remote, "/"); idx >= 0 {
		return remote[idx+1:]
	}
	return remote
}

func expandLocal(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", errors.New("empty path")
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

func describeNotice(n fileops.Notice) string {
	switch n.Kind {
	case fileops.NoticeDownloaded:
		return fmt.Sprintf("Downloaded %s to %s", displayName(baseName(n.Remote), 0), n.Local)
	case fileops.NoticeUploaded:
		return fmt.Sprintf("Uploaded %s", filepath.Base(n.Local))
	default:
		return fmt.Sprintf("Deleted %s", displayName(baseName(n.Remote), 0))
	}
}

func downloadCmd(ctx context.Context, ops operations, remote string) tea.Cmd {
	return func() tea.Msg {
		return downloadStartedMsg{Remote: remote, Err: ops.Download(ctx, remote)}
	}
}

func waitListing(ch <-chan session.Listing) tea.Cmd {
	return func() tea.Msg {
		l, ok := <-ch
		if !ok {
			return nil
		}
		return listingMsg{Listing: l}
	}
}

func waitNotice(ch <-chan fileops.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{Notice: n}
	}
}
