package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/famigo/famigo/internal/account"
	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/directory"
	"github.com/famigo/famigo/internal/forms"
	"github.com/famigo/famigo/internal/session"
	"github.com/famigo/famigo/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewSpots View = iota
	ViewDetail
	ViewFavorites
	ViewAuth
	ViewReview
	ViewProfile
)

// Loader fetches read-only directory data into the shared store.
type Loader interface {
	Search(ctx context.Context, filter api.SpotFilter) error
	Detail(ctx context.Context, spotID int64) (api.SpotDetail, error)
}

// Options configures the UI.
type Options struct {
	Context   context.Context
	Loader    Loader
	Session   *session.Controller
	Directory *directory.Service
	Account   *account.Service
	Store     *state.Store
	Forms     *forms.Validator
	Log       zerolog.Logger
	PollTick  time.Duration
	ThemeName string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Collaborators
	ctx      context.Context
	loader   Loader
	session  *session.Controller
	dir      *directory.Service
	account  *account.Service
	store    *state.Store
	forms    *forms.Validator
	log      zerolog.Logger
	pollTick time.Duration
	keys     keyMap

	// UI state
	theme    Theme
	view     View
	prevView View
	width    int
	height   int
	ready    bool
	showHelp bool
	notice   string

	// Data state
	snapshot state.Snapshot
	sess     session.Snapshot

	// Spot list state
	selected    int
	search      textinput.Model
	searching   bool
	categoryIdx int // 0 = all categories

	// Detail state
	detailID       int64
	detail         *api.SpotDetail
	detailErr      error
	reviews        []api.Review
	reviewSel      int
	detailViewport viewport.Model

	// Favorites state
	favorites []api.Spot
	favSel    int

	// Forms
	auth    authForm
	review  reviewForm
	profile profileForm
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = 500 * time.Millisecond
	}

	validator := opts.Forms
	if validator == nil {
		validator = forms.New()
	}

	search := textinput.New()
	search.Placeholder = "keyword"
	search.Prompt = "/ "
	search.CharLimit = 100

	m := Model{
		ctx:      ctx,
		loader:   opts.Loader,
		session:  opts.Session,
		dir:      opts.Directory,
		account:  opts.Account,
		store:    opts.Store,
		forms:    validator,
		log:      opts.Log,
		pollTick: pollTick,
		keys:     DefaultKeyMap(),
		theme:    GetTheme(opts.ThemeName),
		view:     ViewSpots,
		search:   search,
		auth:     newAuthForm(authLogin),
		review:   newReviewForm(),
		profile:  newProfileForm(profileDetails),
	}
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
	}
	if m.session != nil {
		m.sess = m.session.Snapshot()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.pollTick), m.refreshCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.detailViewport = viewport.New(msg.Width, m.contentHeight())
		} else {
			m.detailViewport.Width = msg.Width
			m.detailViewport.Height = m.contentHeight()
		}
		m.ready = true
		m.updateDetailViewport()
		return m, nil

	case tickMsg:
		m.pull()
		return m, tickCmd(m.pollTick)

	case spotsLoadedMsg:
		m.pull()
		if msg.err != nil {
			return m.handleFailure(msg.err)
		}
		m.clampSelection()
		return m, nil

	case detailLoadedMsg:
		if msg.spotID != m.detailID {
			return m, nil
		}
		m.detailErr = msg.err
		if msg.err == nil {
			d := msg.detail
			m.detail = &d
		}
		m.pull()
		m.updateDetailViewport()
		if msg.err != nil {
			return m.handleFailure(msg.err)
		}
		return m, nil

	case favoritesLoadedMsg:
		if msg.err != nil {
			return m.handleFailure(msg.err)
		}
		m.pull()
		return m, nil

	case authDoneMsg:
		return m.handleAuthDone(msg)

	case profileDoneMsg:
		return m.handleProfileDone(msg)

	case mutationSettledMsg:
		m.pull()
		m.updateDetailViewport()
		if msg.err != nil {
			return m.handleFailure(msg.err)
		}
		if msg.reloadReviews != 0 {
			return m, m.loadDetailCmd(msg.reloadReviews)
		}
		return m, nil
	}

	return m.updateInputs(msg)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.view {
	case ViewDetail:
		return m.detailViewport.View()
	case ViewFavorites:
		return m.renderFavorites()
	case ViewAuth:
		return m.renderAuthForm()
	case ViewReview:
		return m.renderReviewForm()
	case ViewProfile:
		return m.renderProfileForm()
	default:
		return m.renderSpots()
	}
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	m.notice = ""

	// Text entry owns the keyboard.
	switch {
	case m.searching:
		return m.handleSearchKey(msg)
	case m.view == ViewAuth:
		return m.handleAuthKey(msg)
	case m.view == ViewReview:
		return m.handleReviewKey(msg)
	case m.view == ViewProfile:
		return m.handleProfileKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.updateDetailViewport()
		return m, nil
	case key.Matches(msg, m.keys.Back):
		m.view = ViewSpots
		return m, nil
	case key.Matches(msg, m.keys.Login):
		if m.sess.Authenticated() {
			m.session.Logout()
			m.pull()
			m.notice = "Signed out."
			return m, m.refreshCmd()
		}
		m.openAuth(authLogin, "")
		return m, m.auth.focusCmd()
	case key.Matches(msg, m.keys.Register):
		if !m.sess.Authenticated() {
			m.openAuth(authRegister, "")
			return m, m.auth.focusCmd()
		}
		return m, nil
	case key.Matches(msg, m.keys.Profile):
		if !m.sess.Authenticated() {
			m.openAuth(authLogin, "Sign in to edit your profile.")
			return m, m.auth.focusCmd()
		}
		m.openProfile(profileDetails)
		return m, m.profile.focusCmd()
	case key.Matches(msg, m.keys.ViewFavorites):
		if !m.sess.Authenticated() {
			m.openAuth(authLogin, "Sign in to see your favorites.")
			return m, m.auth.focusCmd()
		}
		m.view = ViewFavorites
		m.favSel = 0
		return m, m.loadFavoritesCmd()
	}

	switch m.view {
	case ViewDetail:
		return m.handleDetailKey(msg)
	case ViewFavorites:
		return m.handleFavoritesKey(msg)
	default:
		return m.handleSpotsKey(msg)
	}
}

// handleFailure surfaces err. AuthRequired sends the user to sign in.
func (m Model) handleFailure(err error) (tea.Model, tea.Cmd) {
	m.log.Debug().Err(err).Msg("action failed")
	if apierr.KindOf(err) == apierr.AuthRequired && m.view != ViewAuth {
		m.openAuth(authLogin, "Please sign in to continue.")
		return m, m.auth.focusCmd()
	}
	return m, nil
}

// pull copies the latest shared state into the model.
func (m *Model) pull() {
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
	}
	if m.session != nil {
		m.sess = m.session.Snapshot()
	}
	if m.dir != nil {
		m.favorites = m.dir.FavoriteList()
		if id := m.detailSpotID(); id != 0 {
			m.reviews = m.dir.Reviews(id)
			if m.detail != nil {
				m.detail.IsFavorite = api.Flag(m.dir.IsFavorite(id))
			}
		}
	}
	m.clampSelection()
	if m.view == ViewDetail {
		m.updateDetailViewport()
	}
}

func (m *Model) clampSelection() {
	m.selected = clamp(m.selected, len(m.snapshot.Spots))
	m.favSel = clamp(m.favSel, len(m.favorites))
	m.reviewSel = clamp(m.reviewSel, len(m.reviews))
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (m Model) contentHeight() int {
	// header + status line
	h := m.height - 3
	if h < 3 {
		return 3
	}
	return h
}

func (m Model) detailSpotID() int64 {
	return m.detailID
}

func (m Model) currentFilter() api.SpotFilter {
	filter := api.SpotFilter{Keyword: m.search.Value()}
	if cat, ok := m.currentCategory(); ok {
		filter.CategoryIDs = []int64{cat.ID}
	}
	return filter
}

func (m Model) currentCategory() (api.Category, bool) {
	cats := m.snapshot.Categories
	if m.categoryIdx <= 0 || m.categoryIdx > len(cats) {
		return api.Category{}, false
	}
	return cats[m.categoryIdx-1], true
}

func (m Model) principalUser() api.User {
	if p := m.sess.Principal; p != nil {
		return api.User{ID: p.ID, DisplayName: p.DisplayName, Email: p.Email, Role: p.Role}
	}
	return api.User{}
}

// Messages

type tickMsg time.Time

type spotsLoadedMsg struct{ err error }

type detailLoadedMsg struct {
	spotID int64
	detail api.SpotDetail
	err    error
}

type favoritesLoadedMsg struct{ err error }

type authDoneMsg struct {
	mode authMode
	err  error
}

type mutationSettledMsg struct {
	err           error
	reloadReviews int64
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshCmd() tea.Cmd {
	if m.loader == nil {
		return nil
	}
	ctx, loader, filter := m.ctx, m.loader, m.currentFilter()
	return func() tea.Msg {
		return spotsLoadedMsg{err: loader.Search(ctx, filter)}
	}
}

func (m Model) loadDetailCmd(spotID int64) tea.Cmd {
	if m.loader == nil {
		return nil
	}
	ctx, loader := m.ctx, m.loader
	return func() tea.Msg {
		detail, err := loader.Detail(ctx, spotID)
		return detailLoadedMsg{spotID: spotID, detail: detail, err: err}
	}
}

func (m Model) loadFavoritesCmd() tea.Cmd {
	if m.dir == nil {
		return nil
	}
	ctx, dir, store := m.ctx, m.dir, m.store
	return func() tea.Msg {
		_, err := dir.LoadFavorites(ctx)
		if err != nil && store != nil {
			store.RecordError(err)
		}
		return favoritesLoadedMsg{err: err}
	}
}

// settleCmd waits for a mutation in the background. Its error has already
// been reported by the directory's error handler.
func settleCmd(ctx context.Context, done <-chan struct{}, errFn func() error, reloadReviews int64) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-done:
		case <-ctx.Done():
			return nil
		}
		msg := mutationSettledMsg{err: errFn()}
		if msg.err == nil {
			msg.reloadReviews = reloadReviews
		}
		return msg
	}
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := apierr.As(err); ok {
		return de.Message()
	}
	return fmt.Sprint(err)
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}
