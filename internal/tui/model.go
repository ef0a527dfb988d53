// Package tui is the terminal front end: a bubbletea program that renders
// the cart store and drives the sync controller's session actions.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/quickcart/internal/cart"
	"github.com/dukerupert/quickcart/internal/identity"
	"github.com/dukerupert/quickcart/internal/model"
	"github.com/dukerupert/quickcart/internal/syncer"
)

// Session is the part of the sync controller the TUI drives.
type Session interface {
	SignIn(ctx context.Context, creds identity.Credentials) (identity.Identity, error)
	SignUp(ctx context.Context, creds identity.Credentials) (identity.Identity, error)
	SignOut(ctx context.Context) error
	ContinueLocal(ctx context.Context) error
	LeaveLocal(ctx context.Context) error
	Status() syncer.Status
	Subscribe(fn func(syncer.Status)) func()
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeNewList
	modeRenameList
	modeNameItem
	modeEmail
	modePassword
	modeSearch
	modeConfirmDelete
)

const (
	eventBuffer   = 64
	actionTimeout = 30 * time.Second
)

// Model is the root bubbletea model.
type Model struct {
	store   *cart.Store
	session Session
	keys    KeyMap
	help    help.Model
	input   textinput.Model
	events  chan tea.Msg
	unsubs  []func()

	status  syncer.Status
	mode    inputMode
	signUp  bool
	email   string
	busy    bool
	open    bool
	openID  int64
	editID  int64
	cursor  int
	results []cart.SearchResult

	width  int
	height int

	statusMsg string
	errorMsg  string
}

// New subscribes to the store and the controller. Call Close when the
// program exits.
func New(store *cart.Store, session Session) Model {
	ti := textinput.New()
	ti.CharLimit = 200

	m := Model{
		store:   store,
		session: session,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		input:   ti,
		events:  make(chan tea.Msg, eventBuffer),
		status:  session.Status(),
	}
	// Subscribers run on the mutating goroutine and must not block, so they
	// only enqueue.
	m.unsubs = append(m.unsubs,
		store.Subscribe(func(ch cart.Change) { m.push(storeChangedMsg{change: ch}) }),
		session.Subscribe(func(st syncer.Status) { m.push(statusChangedMsg{status: st}) }),
	)
	return m
}

func (m Model) push(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

func (m Model) listen() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

// Close drops the subscriptions.
func (m Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
}

func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case storeChangedMsg:
		m.refresh()
		return m, m.listen()

	case statusChangedMsg:
		m.refresh()
		return m, m.listen()

	case authResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errorMsg = authMessage(msg.err)
			return m, nil
		}
		m.errorMsg = ""
		m.statusMsg = "Signed in"
		m.refresh()
		return m, nil

	case localResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
			return m, nil
		}
		m.statusMsg = "Using local storage"
		m.refresh()
		return m, nil

	case signedOutMsg:
		m.busy = false
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
		}
		m.open = false
		m.cursor = 0
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// refresh re-reads the controller status and keeps the cursor and the open
// list valid after store changes.
func (m *Model) refresh() {
	m.status = m.session.Status()
	if m.open {
		if _, ok := m.store.List(m.openID); !ok {
			m.open = false
			m.cursor = 0
		}
	}
	if n := m.rowCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m Model) onAuthScreen() bool {
	return m.status.Mode == syncer.ModeNone
}

func (m Model) rowCount() int {
	if m.open {
		l, _ := m.store.List(m.openID)
		return len(l.Items)
	}
	return len(m.store.Sorted())
}

// rows returns the open list's items in display order: to buy first, then
// completed.
func (m Model) rows() []model.CartItem {
	l, ok := m.store.List(m.openID)
	if !ok {
		return nil
	}
	toBuy, completed := cart.Partition(l)
	return append(toBuy, completed...)
}

func (m Model) selectedList() (model.CartList, bool) {
	lists := m.store.Sorted()
	if m.cursor < 0 || m.cursor >= len(lists) {
		return model.CartList{}, false
	}
	return lists[m.cursor], true
}

func (m Model) selectedItem() (model.CartItem, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return model.CartItem{}, false
	}
	return rows[m.cursor], true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.mode != modeNormal {
		return m.handleInput(msg)
	}

	m.statusMsg = ""
	m.errorMsg = ""

	if key.Matches(msg, m.keys.Help) {
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	if m.onAuthScreen() {
		return m.handleAuthKey(msg)
	}
	if !m.status.Loaded {
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.open {
		return m.handleListKey(msg)
	}
	return m.handleOverviewKey(msg)
}

func (m Model) handleAuthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch msg.String() {
	case "i", "u":
		m.signUp = msg.String() == "u"
		m.email = ""
		return m.startInput(modeEmail, "you@example.com", "")
	case "l":
		m.busy = true
		return m, m.continueLocal()
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleOverviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if l, ok := m.selectedList(); ok {
			m.openList(l.ID)
		}
	case key.Matches(msg, m.keys.Add):
		return m.startInput(modeNewList, model.DefaultListName, "")
	case key.Matches(msg, m.keys.Rename):
		if l, ok := m.selectedList(); ok {
			m.openID = l.ID
			return m.startInput(modeRenameList, model.DefaultListName, l.Name)
		}
	case key.Matches(msg, m.keys.Delete):
		if l, ok := m.selectedList(); ok {
			m.openID = l.ID
			m.mode = modeConfirmDelete
		}
	case key.Matches(msg, m.keys.ToBuy):
		if l, ok := m.selectedList(); ok {
			m.addToBuy(l.ID)
		}
	case key.Matches(msg, m.keys.Search):
		m.results = nil
		return m.startInput(modeSearch, "search items", "")
	case key.Matches(msg, m.keys.Leave):
		m.busy = true
		return m, m.leave()
	}
	return m, nil
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.open = false
		m.cursor = m.indexInOverview(m.openID)
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Add):
		if id, ok := m.store.AddItem(m.openID); ok {
			m.editID = id
			m.cursor = m.rowOf(id)
			return m.startInput(modeNameItem, cart.ItemPlaceholder, "")
		}
	case key.Matches(msg, m.keys.Open):
		if item, ok := m.selectedItem(); ok {
			m.editID = item.ID
			return m.startInput(modeNameItem, cart.ItemPlaceholder, item.Name)
		}
	case key.Matches(msg, m.keys.Toggle):
		if item, ok := m.selectedItem(); ok {
			m.store.ToggleItem(m.openID, item.ID)
		}
	case key.Matches(msg, m.keys.Delete):
		if item, ok := m.selectedItem(); ok {
			m.store.DeleteItem(m.openID, item.ID)
		}
	case key.Matches(msg, m.keys.Clear):
		n := m.store.ClearChecked(m.openID)
		m.statusMsg = fmt.Sprintf("Cleared %d checked item%s", n, plural(n))
	case key.Matches(msg, m.keys.ToBuy):
		m.addToBuy(m.openID)
	case key.Matches(msg, m.keys.Rename):
		l, _ := m.store.List(m.openID)
		return m.startInput(modeRenameList, model.DefaultListName, l.Name)
	}
	m.refresh()
	return m, nil
}

func (m *Model) openList(id int64) {
	m.store.SetActiveList(id)
	m.open = true
	m.openID = id
	m.cursor = 0
}

func (m Model) rowOf(itemID int64) int {
	for i, item := range m.rows() {
		if item.ID == itemID {
			return i
		}
	}
	return 0
}

func (m Model) indexInOverview(id int64) int {
	for i, l := range m.store.Sorted() {
		if l.ID == id {
			return i
		}
	}
	return 0
}

func (m *Model) addToBuy(id int64) {
	if id == model.ToBuyListID {
		m.errorMsg = "Already the To Buy list"
		return
	}
	added, created := m.store.AddUncheckedToAggregate(id)
	switch {
	case created:
		m.statusMsg = fmt.Sprintf("Created To Buy with %d item%s", added, plural(added))
	default:
		m.statusMsg = fmt.Sprintf("Added %d item%s to To Buy", added, plural(added))
	}
}

func (m Model) startInput(mode inputMode, placeholder, value string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	if mode == modePassword {
		m.input.EchoMode = textinput.EchoPassword
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) endInput() Model {
	m.mode = modeNormal
	m.input.Blur()
	m.input.SetValue("")
	return m
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeConfirmDelete {
		switch msg.String() {
		case "y", "Y":
			m.store.DeleteList(m.openID)
			m.open = false
			m.statusMsg = "List deleted"
		}
		m.mode = modeNormal
		m.refresh()
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		if m.mode == modeNameItem {
			m.store.StopEditing()
			m.editID = 0
		}
		m = m.endInput()
		m.results = nil
		m.refresh()
		return m, nil
	case tea.KeyEnter:
		return m.commitInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.mode == modeSearch {
		m.results = m.store.Search(m.input.Value())
	}
	return m, cmd
}

func (m Model) commitInput() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	switch m.mode {
	case modeNewList:
		id := m.store.CreateList(value)
		m = m.endInput()
		m.openList(id)
		return m, nil
	case modeRenameList:
		m.store.RenameList(m.openID, value)
	case modeNameItem:
		m.store.RenameItem(m.openID, m.editID, value)
		m.store.StopEditing()
		m.editID = 0
	case modeSearch:
		results := m.results
		m = m.endInput()
		m.results = nil
		if len(results) > 0 {
			m.openList(results[0].ListID)
			m.cursor = m.rowOf(results[0].Item.ID)
		}
		return m, nil
	case modeEmail:
		m.email = strings.TrimSpace(value)
		return m.startInput(modePassword, "password", "")
	case modePassword:
		creds := identity.Credentials{Email: m.email, Password: value}
		m = m.endInput()
		m.busy = true
		return m, m.authenticate(creds)
	}
	m = m.endInput()
	m.refresh()
	return m, nil
}

func (m Model) authenticate(creds identity.Credentials) tea.Cmd {
	fn := m.session.SignIn
	if m.signUp {
		fn = m.session.SignUp
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		_, err := fn(ctx, creds)
		return authResultMsg{err: err}
	}
}

func (m Model) continueLocal() tea.Cmd {
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return localResultMsg{err: session.ContinueLocal(ctx)}
	}
}

// leave signs out of the cloud or leaves local mode, whichever is active.
func (m Model) leave() tea.Cmd {
	session := m.session
	local := m.status.Mode == syncer.ModeLocal
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if local {
			return signedOutMsg{err: session.LeaveLocal(ctx)}
		}
		return signedOutMsg{err: session.SignOut(ctx)}
	}
}

func authMessage(err error) string {
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return err.Error()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	switch {
	case m.onAuthScreen():
		b.WriteString(m.renderAuth())
	case !m.status.Loaded:
		b.WriteString(syncStyle.Render("Loading lists..."))
	case m.mode == modeSearch:
		b.WriteString(m.renderSearch())
	case m.open:
		b.WriteString(m.renderList())
	default:
		b.WriteString(m.renderOverview())
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("QuickCart")
	return lipgloss.JoinHorizontal(lipgloss.Top, title, syncStyle.Render(syncLabel(m.status)))
}

// syncLabel describes where lists are stored and whether a save is pending.
func syncLabel(st syncer.Status) string {
	var parts []string
	switch st.Mode {
	case syncer.ModeRemote:
		if st.Identity != nil {
			parts = append(parts, st.Identity.Email)
		}
	case syncer.ModeLocal:
		parts = append(parts, "local only")
	default:
		parts = append(parts, "signed out")
	}
	switch {
	case st.PendingSave:
		parts = append(parts, "saving...")
	case st.LastSaved != nil:
		parts = append(parts, "saved "+st.LastSaved.Local().Format("15:04"))
	}
	if st.LastError != "" {
		parts = append(parts, "sync error")
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderAuth() string {
	var b strings.Builder
	switch {
	case m.busy:
		b.WriteString(syncStyle.Render("Working..."))
	case m.mode == modeEmail || m.mode == modePassword:
		label := "Sign in"
		if m.signUp {
			label = "Create account"
		}
		b.WriteString(sectionStyle.Render(label))
		b.WriteString("\n")
		if m.mode == modePassword {
			b.WriteString("Email: " + m.email + "\n")
		}
		b.WriteString(m.input.View())
	default:
		b.WriteString("Keep your lists in the cloud, or only on this device.\n\n")
		b.WriteString(hint("i", "sign in") + "\n")
		b.WriteString(hint("u", "create account") + "\n")
		b.WriteString(hint("l", "continue without an account"))
	}
	return b.String()
}

func (m Model) renderOverview() string {
	lists := m.store.Sorted()
	if len(lists) == 0 {
		return placeholderStyle.Render("No lists yet. Press a to create one.")
	}
	var b strings.Builder
	for i, l := range lists {
		toBuy, _ := cart.Partition(l)
		name := l.Name
		if l.IsToBuyList {
			name = toBuyStyle.Render(name)
		}
		line := fmt.Sprintf("%s  %s", name, syncStyle.Render(fmt.Sprintf("%d to buy", len(toBuy))))
		b.WriteString(m.cursorLine(i, line))
		b.WriteString("\n")
	}
	if m.mode == modeNewList || m.mode == modeRenameList {
		b.WriteString("\n" + m.input.View())
	}
	if m.mode == modeConfirmDelete {
		l, _ := m.store.List(m.openID)
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("Delete %q? (y/n)", l.Name)))
	}
	return b.String()
}

func (m Model) renderList() string {
	l, ok := m.store.List(m.openID)
	if !ok {
		return ""
	}
	var b strings.Builder
	if m.mode == modeRenameList {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(sectionStyle.Render(l.Name))
	}
	b.WriteString("\n")

	toBuy, completed := cart.Partition(l)
	row := 0
	for _, item := range toBuy {
		b.WriteString(m.itemLine(row, item))
		row++
	}
	if len(completed) > 0 {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Completed (%d)", len(completed))))
		b.WriteString("\n")
		for _, item := range completed {
			b.WriteString(m.itemLine(row, item))
			row++
		}
	}
	if row == 0 {
		b.WriteString(placeholderStyle.Render("Empty list. Press a to add an item."))
	}
	return b.String()
}

func (m Model) itemLine(row int, item model.CartItem) string {
	box := "[ ]"
	if item.Checked {
		box = "[x]"
	}
	var name string
	switch {
	case m.mode == modeNameItem && item.ID == m.editID:
		name = m.input.View()
	case strings.TrimSpace(item.Name) == "":
		name = placeholderStyle.Render(cart.DisplayName(item))
	case item.Checked:
		name = checkedStyle.Render(item.Name)
	default:
		name = item.Name
	}
	return m.cursorLine(row, box+" "+name) + "\n"
}

func (m Model) renderSearch() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if len(m.results) == 0 {
		if strings.TrimSpace(m.input.Value()) != "" {
			b.WriteString(placeholderStyle.Render("No matches"))
		}
		return b.String()
	}
	for _, r := range m.results {
		b.WriteString(fmt.Sprintf("%s  %s\n", cart.DisplayName(r.Item), syncStyle.Render(r.ListName)))
	}
	return b.String()
}

func (m Model) cursorLine(i int, line string) string {
	if i == m.cursor {
		return selectedStyle.Render("> ") + line
	}
	return "  " + line
}

func (m Model) renderFooter() string {
	var b strings.Builder
	if m.errorMsg != "" {
		b.WriteString(errorStyle.Render(m.errorMsg) + "\n")
	} else if m.statusMsg != "" {
		b.WriteString(infoStyle.Render(m.statusMsg) + "\n")
	}
	if m.onAuthScreen() || m.mode != modeNormal {
		return b.String()
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func hint(k, desc string) string {
	return selectedStyle.Render(k) + " " + desc
}
