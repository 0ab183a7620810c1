// Package tui is the Bubble Tea front end of the typing game.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"typerush/internal/apiclient"
	"typerush/internal/game/typing"
	"typerush/internal/model"
	"typerush/internal/payment"
)

// Backend is the player's store as seen by the client.
type Backend interface {
	typing.Persistence
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// Shop sells hearts. It is nil when playing offline.
type Shop interface {
	Catalog(ctx context.Context) (*apiclient.Catalog, error)
	Checkout(ctx context.Context, hearts int) (*payment.Checkout, error)
	// Updates streams the player's row changes. Optional; polling covers
	// the purchase screen without it.
	Updates(ctx context.Context) (<-chan model.ChangeEvent, error)
}

// Options configures the client model.
type Options struct {
	Runner  *typing.Runner
	Backend Backend
	Shop    Shop
	Player  string
	Theme   *Theme

	PollInterval   time.Duration
	PaymentTimeout time.Duration
	RecheckDelay   time.Duration
	CallTimeout    time.Duration
	BoardSize      int
}

type screen int

const (
	screenMenu screen = iota
	screenPlaying
	screenGameOver
)

const noticeDuration = 4 * time.Second

type (
	frameMsg   typing.Snapshot
	boardMsg   struct {
		entries []model.LeaderboardEntry
		err     error
	}
	catalogMsg struct {
		catalog *apiclient.Catalog
		err     error
	}
	checkoutMsg struct {
		seq      int
		checkout *payment.Checkout
		qr       string
		err      error
	}
	livesMsg struct {
		seq   int
		lives int
		err   error
	}
	pollMsg    struct{ seq int }
	recheckMsg struct{ seq int }
	timeoutMsg struct{ seq int }
	updatesMsg struct {
		events <-chan model.ChangeEvent
		err    error
	}
	eventMsg       model.ChangeEvent
	clearNoticeMsg struct{ seq int }
)

// Model is the Bubble Tea model for the game client.
type Model struct {
	ctx    context.Context
	opts   Options
	runner *typing.Runner
	theme  Theme
	keys   KeyMap
	help   help.Model
	input  textinput.Model
	board  table.Model

	screen  screen
	snap    typing.Snapshot
	shop    *purchase
	catalog *apiclient.Catalog
	events  <-chan model.ChangeEvent

	notice    string
	noticeErr bool
	noticeSeq int

	width    int
	height   int
	quitting bool
}

// NewModel creates the client model. ctx bounds every network call.
func NewModel(ctx context.Context, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = DefaultPaymentTimeout
	}
	if opts.RecheckDelay <= 0 {
		opts.RecheckDelay = DefaultRecheckDelay
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = typing.DefaultCallTimeout
	}
	if opts.BoardSize <= 0 {
		opts.BoardSize = 10
	}
	theme := DefaultTheme()
	if opts.Theme != nil {
		theme = *opts.Theme
	}

	in := textinput.New()
	in.Placeholder = "type a falling word"
	in.CharLimit = 32
	in.Prompt = "› "

	board := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Player", Width: 20},
			{Title: "Score", Width: 8},
			{Title: "Combo", Width: 6},
		}),
		table.WithHeight(opts.BoardSize+2),
	)

	return Model{
		ctx:    ctx,
		opts:   opts,
		runner: opts.Runner,
		theme:  theme,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		input:  in,
		board:  board,
		width:  80,
		height: 24,
	}
}

// Init starts frame delivery and loads menu data.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitFrame(), m.loadBoard()}
	if m.opts.Shop != nil {
		cmds = append(cmds, m.loadCatalog(), m.openUpdates())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case frameMsg:
		return m.handleFrame(typing.Snapshot(msg))

	case boardMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("Failed to load leaderboard")
			return m, nil
		}
		m.setBoard(msg.entries)
		return m, nil

	case catalogMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("Failed to load heart catalog, using defaults")
			return m, nil
		}
		m.catalog = msg.catalog
		return m, nil

	case checkoutMsg:
		return m.handleCheckout(msg)

	case pollMsg:
		if m.shop == nil || !m.shop.waiting(msg.seq) {
			return m, nil
		}
		return m, tea.Batch(m.loadLives(msg.seq), m.schedulePoll(msg.seq))

	case recheckMsg:
		if m.shop == nil || !m.shop.waiting(msg.seq) {
			return m, nil
		}
		return m, m.loadLives(msg.seq)

	case livesMsg:
		return m.handleLives(msg)

	case timeoutMsg:
		if m.shop == nil || !m.shop.waiting(msg.seq) {
			return m, nil
		}
		log.Info().Msg("Payment not confirmed in time, granting a free continue")
		var cmd tea.Cmd
		m, cmd = m.setNotice("Payment timed out. Here is a free continue!", true)
		return m.resume(1), cmd

	case updatesMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("Realtime updates unavailable, falling back to polling")
			return m, nil
		}
		m.events = msg.events
		return m, m.waitEvent()

	case eventMsg:
		return m.handleEvent(model.ChangeEvent(msg))

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.exitRun(context.WithoutCancel(m.ctx))
		m.quitting = true
		return m, tea.Quit
	}

	switch m.screen {
	case screenMenu:
		switch {
		case key.Matches(msg, m.keys.Start):
			return m.start()
		case key.Matches(msg, m.keys.Refresh):
			return m, m.loadBoard()
		case msg.String() == "q", key.Matches(msg, m.keys.Back):
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case screenPlaying:
		if key.Matches(msg, m.keys.Back) {
			m.exitRun(m.ctx)
			return m, m.loadBoard()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if matched, _, err := m.runner.Input(m.input.Value()); err == nil && matched {
			m.input.SetValue("")
		}
		return m, cmd

	case screenGameOver:
		return m.handleGameOverKey(msg)
	}
	return m, nil
}

func (m Model) handleGameOverKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Back) || (m.shop == nil && key.Matches(msg, m.keys.Start)) {
		m.exitRun(m.ctx)
		return m, m.loadBoard()
	}
	if m.shop == nil {
		return m, nil
	}

	switch m.shop.phase {
	case phaseSelect:
		switch {
		case key.Matches(msg, m.keys.More):
			m.shop.adjust(1)
		case key.Matches(msg, m.keys.Less):
			m.shop.adjust(-1)
		case key.Matches(msg, m.keys.Pick):
			m.shop.pick(int(msg.String()[0] - '1'))
		case key.Matches(msg, m.keys.Buy):
			seq := m.shop.begin()
			return m, m.createCheckout(seq, m.shop.hearts)
		}
	case phaseWaiting:
		if key.Matches(msg, m.keys.Paid) {
			seq := m.shop.seq
			recheck := tea.Tick(m.opts.RecheckDelay, func(time.Time) tea.Msg {
				return recheckMsg{seq: seq}
			})
			return m, tea.Batch(m.loadLives(seq), recheck)
		}
	}
	return m, nil
}

func (m Model) handleFrame(snap typing.Snapshot) (tea.Model, tea.Cmd) {
	prev := m.snap.State
	m.snap = snap

	switch {
	case prev == typing.StatePlaying && snap.State == typing.StateGameOver:
		m.screen = screenGameOver
		m.input.Blur()
		m.input.SetValue("")
		if m.opts.Shop != nil {
			m.shop = newPurchase(m.catalog)
		}
	case snap.State == typing.StatePlaying && m.screen != screenPlaying:
		m.screen = screenPlaying
		m.input.Focus()
	case snap.State == typing.StateMenu:
		m.screen = screenMenu
	}
	return m, m.waitFrame()
}

func (m Model) handleCheckout(msg checkoutMsg) (tea.Model, tea.Cmd) {
	if m.shop == nil || m.shop.phase != phaseCreating || m.shop.seq != msg.seq {
		return m, nil
	}
	if msg.err != nil {
		log.Error().Err(msg.err).Msg("Checkout failed")
		var cmd tea.Cmd
		m, cmd = m.setNotice("Payment failed. Here is a free continue!", true)
		return m.resume(1), cmd
	}

	m.shop.opened(msg.checkout, msg.qr, time.Now(), m.opts.PaymentTimeout)
	seq := msg.seq
	timeout := tea.Tick(m.opts.PaymentTimeout, func(time.Time) tea.Msg {
		return timeoutMsg{seq: seq}
	})
	return m, tea.Batch(m.schedulePoll(seq), timeout)
}

func (m Model) handleLives(msg livesMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		log.Debug().Err(msg.err).Msg("Lives check failed")
		return m, nil
	}
	return m.applyLives(msg.lives)
}

func (m Model) handleEvent(ev model.ChangeEvent) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitEvent()}
	if ev.Table == model.TableUsers && m.screen == screenMenu {
		cmds = append(cmds, m.loadBoard())
	}
	if lives, ok := livesFromEvent(ev); ok {
		next, cmd := m.applyLives(lives)
		return next, tea.Batch(append(cmds, cmd)...)
	}
	return m, tea.Batch(cmds...)
}

// applyLives resumes a pending purchase once lives show up, and otherwise
// mirrors the server's count.
func (m Model) applyLives(lives int) (Model, tea.Cmd) {
	if m.screen == screenGameOver && m.shop != nil && m.shop.phase == phaseWaiting && lives > 0 {
		log.Info().Int("lives", lives).Msg("Payment confirmed")
		var cmd tea.Cmd
		m, cmd = m.setNotice(fmt.Sprintf("Payment received! %s", hearts(lives)), false)
		return m.resume(lives), cmd
	}
	if err := m.runner.SyncLives(lives); err != nil {
		log.Debug().Err(err).Msg("Failed to sync lives")
	}
	return m, nil
}

// resume continues the run after a purchase or the free fallback.
func (m Model) resume(lives int) Model {
	if m.shop != nil {
		m.shop.finish()
	}
	if ok, err := m.runner.Continue(lives); err != nil || !ok {
		log.Warn().Err(err).Msg("Failed to continue run")
		return m
	}
	m.screen = screenPlaying
	m.input.Focus()
	return m
}

func (m Model) start() (tea.Model, tea.Cmd) {
	if err := m.runner.Start(m.ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start run")
		return m, nil
	}
	m.screen = screenPlaying
	m.shop = nil
	m.input.SetValue("")
	cmd := m.input.Focus()
	return m, cmd
}

func (m *Model) exitRun(ctx context.Context) {
	if m.screen == screenMenu {
		return
	}
	res, err := m.runner.Exit(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Exit after runner stopped")
	}
	if res.NewBest {
		log.Info().Int("score", res.Score).Msg("New personal best")
	}
	m.screen = screenMenu
	m.shop = nil
	m.input.Blur()
	m.input.SetValue("")
}

func (m Model) setNotice(text string, isErr bool) (Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	m.noticeErr = isErr
	seq := m.noticeSeq
	return m, tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}

func (m *Model) setBoard(entries []model.LeaderboardEntry) {
	rows := make([]table.Row, 0, len(entries))
	cursor := 0
	for i, e := range entries {
		name := e.Name
		if e.IsCurrent {
			name += " (you)"
			cursor = i
		}
		rows = append(rows, table.Row{fmt.Sprint(e.Rank), name, fmt.Sprint(e.Score), fmt.Sprint(e.Combo)})
	}
	m.board.SetRows(rows)
	m.board.SetCursor(cursor)
}

func (m Model) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, m.opts.CallTimeout)
}

func (m Model) waitFrame() tea.Cmd {
	frames := m.runner.Frames()
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case snap := <-frames:
			return frameMsg(snap)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitEvent() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return updatesMsg{err: fmt.Errorf("realtime stream closed")}
		}
		return eventMsg(ev)
	}
}

func (m Model) loadBoard() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callCtx()
		defer cancel()
		entries, err := m.opts.Backend.Leaderboard(ctx, m.opts.BoardSize)
		return boardMsg{entries: entries, err: err}
	}
}

func (m Model) loadCatalog() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callCtx()
		defer cancel()
		cat, err := m.opts.Shop.Catalog(ctx)
		return catalogMsg{catalog: cat, err: err}
	}
}

func (m Model) openUpdates() tea.Cmd {
	return func() tea.Msg {
		events, err := m.opts.Shop.Updates(m.ctx)
		return updatesMsg{events: events, err: err}
	}
}

func (m Model) loadLives(seq int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callCtx()
		defer cancel()
		lives, err := m.opts.Backend.LoadLives(ctx)
		return livesMsg{seq: seq, lives: lives, err: err}
	}
}

func (m Model) schedulePoll(seq int) tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(time.Time) tea.Msg {
		return pollMsg{seq: seq}
	})
}

func (m Model) createCheckout(seq, hearts int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.callCtx()
		defer cancel()
		co, err := m.opts.Shop.Checkout(ctx, hearts)
		if err != nil {
			return checkoutMsg{seq: seq, err: err}
		}
		qr, qrErr := renderQR(co.PurchaseURL)
		if qrErr != nil {
			log.Debug().Err(qrErr).Msg("Failed to render QR code")
		}
		return checkoutMsg{seq: seq, checkout: co, qr: qr}
	}
}

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.screen {
	case screenMenu:
		body = m.viewMenu()
	case screenPlaying:
		body = m.viewPlaying()
	case screenGameOver:
		body = m.viewGameOver()
	}

	if m.notice != "" {
		style := m.theme.Notice
		if m.noticeErr {
			style = m.theme.Error
		}
		body = lipgloss.JoinVertical(lipgloss.Left, style.Render(m.notice), body)
	}
	return body
}

func (m Model) viewMenu() string {
	title := m.theme.Title.Render("T Y P E R U S H")
	player := m.theme.HUDLabel.Render("Player ") + m.theme.HUDValue.Render(m.opts.Player)
	stats := fmt.Sprintf("%s   %s   %s",
		player,
		m.theme.HUDLabel.Render("Best ")+m.theme.HUDValue.Render(fmt.Sprint(m.snap.BestScore)),
		m.theme.Hearts.Render(hearts(m.snap.Lives)),
	)
	hint := m.theme.Subtle.Render("Pop the falling words by typing them before they hit the line.")
	keys := m.help.ShortHelpView([]key.Binding{m.keys.Start, m.keys.Refresh, m.keys.Quit})

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, title, "", stats, "", m.board.View(), "", hint, keys))
}

func (m Model) fieldSize() (int, int) {
	// HUD line, bordered input (3 lines) and help
	return m.width, max(m.height-6, 5)
}

func (m Model) viewPlaying() string {
	w, h := m.fieldSize()
	f := newField(w, h)
	f.drawSnapshot(m.snap)
	return lipgloss.JoinVertical(lipgloss.Left,
		hud(m.theme, m.snap, w),
		f.render(m.theme),
		m.theme.Input.Width(min(w-4, 40)).Render(m.input.View()),
		m.help.ShortHelpView([]key.Binding{m.keys.Back, m.keys.Quit}),
	)
}

func (m Model) viewGameOver() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render("GAME OVER"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Score %s   Max combo %s\n",
		m.theme.HUDValue.Render(fmt.Sprint(m.snap.Score)),
		m.theme.HUDValue.Render(fmt.Sprint(m.snap.MaxCombo)))
	if m.snap.Score > 0 && m.snap.Score >= m.snap.BestScore {
		b.WriteString(m.theme.Notice.Render("New personal best!"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.shop == nil:
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.Start, m.keys.Back}))
	case m.shop.phase == phaseSelect:
		b.WriteString("Keep your score going with extra hearts:\n\n")
		b.WriteString(m.viewHeartSelector())
		b.WriteString("\n\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.Less, m.keys.More, m.keys.Pick, m.keys.Buy, m.keys.Back}))
	case m.shop.phase == phaseCreating:
		b.WriteString(m.theme.Subtle.Render("Creating checkout..."))
	case m.shop.phase == phaseWaiting:
		if m.shop.qr != "" {
			b.WriteString(m.shop.qr)
			b.WriteString("\n")
		}
		if m.shop.checkout != nil {
			b.WriteString(m.theme.Subtle.Render(m.shop.checkout.PurchaseURL))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Waiting for payment... %s\n", m.shop.remaining(time.Now()))
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.Paid, m.keys.Back}))
	}

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.theme.Overlay.Render(b.String()))
}

func (m Model) viewHeartSelector() string {
	p := m.shop
	var picks []string
	for i, n := range p.picks {
		label := fmt.Sprintf("%d:%d♥", i+1, n)
		if n == p.hearts {
			picks = append(picks, m.theme.Selected.Render(label))
		} else {
			picks = append(picks, m.theme.Unselected.Render(label))
		}
	}
	amount := m.theme.Hearts.Render(fmt.Sprintf("◀ %d ♥ ▶", p.hearts))
	return lipgloss.JoinVertical(lipgloss.Center,
		strings.Join(picks, " "),
		"",
		amount+"  "+m.theme.HUDValue.Render(p.totalLabel()),
	)
}

// Run starts the runner loop and the Bubble Tea program, and waits for
// pending saves after the program exits.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = opts.Runner.Run(ctx)
	}()

	p := tea.NewProgram(NewModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()

	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), typing.DefaultCallTimeout)
	defer flushCancel()
	if werr := opts.Runner.Wait(flushCtx); werr != nil {
		log.Warn().Err(werr).Msg("Pending saves did not finish")
	}

	cancel()
	<-loopDone
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
