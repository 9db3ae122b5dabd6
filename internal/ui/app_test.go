package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famigo/famigo/internal/account"
	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/credential"
	"github.com/famigo/famigo/internal/directory"
	"github.com/famigo/famigo/internal/session"
	"github.com/famigo/famigo/internal/state"
)

type fakeLoader struct {
	store    *state.Store
	spots    []api.Spot
	err      error
	searches []api.SpotFilter
}

func (l *fakeLoader) Search(_ context.Context, filter api.SpotFilter) error {
	l.searches = append(l.searches, filter)
	l.store.UpdateSpots(filter, l.spots, l.err)
	return l.err
}

func (l *fakeLoader) Detail(_ context.Context, spotID int64) (api.SpotDetail, error) {
	for _, s := range l.spots {
		if s.ID == spotID {
			return api.SpotDetail{Spot: s, Notes: "bring snacks"}, nil
		}
	}
	return api.SpotDetail{}, apierr.Classify(http.StatusNotFound, "application/json", []byte(`{"message":"Spot not found"}`))
}

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login":
			var body api.LoginRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(api.AuthResponse{
				AccessToken: "tok",
				User:        api.User{ID: 3, DisplayName: "Ann", Email: body.Email},
			})
		case "/favorites":
			_, _ = w.Write([]byte(`[]`))
		case "/users/me/profile":
			var body api.UpdateProfileRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(api.User{ID: 3, DisplayName: body.DisplayName, Email: body.Email})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestModel(t *testing.T, spots ...api.Spot) (Model, *fakeLoader, *state.Store) {
	t.Helper()
	server := apiServer(t)
	creds := credential.NewMemoryStore("")
	client, err := api.NewClient(server.URL, creds)
	require.NoError(t, err)

	store := &state.Store{}
	loader := &fakeLoader{store: store, spots: spots}
	dir := directory.NewService(client, directory.WithErrorHandler(store.RecordError))
	t.Cleanup(dir.Wait)
	sess := session.NewController(client, creds)

	m := New(Options{
		Context:   context.Background(),
		Loader:    loader,
		Session:   sess,
		Directory: dir,
		Account:   account.NewService(client, sess),
		Store:     store,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), loader, store
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch keys {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// drain runs cmd and feeds its message back into the model. Batches are
// flattened; ticks are skipped.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	switch msg := cmd().(type) {
	case nil, tickMsg:
		return m
	case tea.BatchMsg:
		for _, c := range msg {
			m = drain(t, m, c)
		}
		return m
	default:
		next, follow := m.Update(msg)
		return drain(t, next.(Model), follow)
	}
}

func TestViewListsSpots(t *testing.T) {
	m, _, _ := newTestModel(t, api.Spot{ID: 1, Name: "River Park", Area: "North"})
	m = drain(t, m, m.refreshCmd())

	out := m.View()
	assert.Contains(t, out, "famigo")
	assert.Contains(t, out, "River Park")
	assert.Contains(t, out, "guest")
}

func TestSearchRunsWithKeyword(t *testing.T) {
	m, loader, _ := newTestModel(t)

	m, _ = press(t, m, "/")
	require.True(t, m.searching)
	m, _ = press(t, m, "zoo")
	m, cmd := press(t, m, "enter")
	m = drain(t, m, cmd)

	require.NotEmpty(t, loader.searches)
	assert.Equal(t, "zoo", loader.searches[len(loader.searches)-1].Keyword)
	assert.False(t, m.searching)
}

func TestFavoritesRequireSignIn(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, _ = press(t, m, "F")

	assert.Equal(t, ViewAuth, m.view)
	assert.Equal(t, ViewSpots, m.prevView)
	assert.Equal(t, "Sign in to see your favorites.", m.auth.notice)
}

func TestLoginValidationHighlightsFields(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = press(t, m, "L")
	m.auth.focus = len(m.auth.fields) - 1

	m, cmd := press(t, m, "enter")

	assert.Nil(t, cmd)
	assert.Equal(t, ViewAuth, m.view)
	assert.Equal(t, "This field is required.", m.auth.errs.First("email"))
	assert.Equal(t, "This field is required.", m.auth.errs.First("password"))
	assert.Contains(t, m.View(), "This field is required.")
}

func TestLoginReturnsToPreviousView(t *testing.T) {
	m, _, _ := newTestModel(t, api.Spot{ID: 1, Name: "River Park"})
	m, _ = press(t, m, "L")
	m.auth.setValue("email", "ann@example.com")
	m.auth.setValue("password", "secret")
	m.auth.focus = len(m.auth.fields) - 1

	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	assert.True(t, m.auth.busy)
	m = drain(t, m, cmd)

	assert.Equal(t, ViewSpots, m.view)
	assert.True(t, m.sess.Authenticated())
	assert.Equal(t, "Signed in as Ann.", m.notice)
	assert.Contains(t, m.renderHeader(), "Ann")
}

func TestProfileUpdateRenamesPrincipal(t *testing.T) {
	m, _, _ := newTestModel(t)
	require.NoError(t, m.session.Login(context.Background(), "ann@example.com", "secret"))
	m.pull()

	m, _ = press(t, m, "P")
	require.Equal(t, ViewProfile, m.view)
	assert.Equal(t, "Ann", m.profile.value("displayName"))

	m.profile.setValue("displayName", "Ann B")
	m.profile.focus = len(m.profile.fields) - 1
	m, cmd := press(t, m, "enter")
	m = drain(t, m, cmd)

	assert.Equal(t, ViewSpots, m.view)
	assert.Equal(t, "Profile updated.", m.notice)
	assert.Equal(t, "Ann B", m.sess.Principal.DisplayName)
}

func TestPasswordFormChecksConfirmation(t *testing.T) {
	m, _, _ := newTestModel(t)
	require.NoError(t, m.session.Login(context.Background(), "ann@example.com", "secret"))
	m.pull()
	m.openProfile(profilePassword)
	m.profile.setValue("currentPassword", "secret")
	m.profile.setValue("newPassword", "brand-new")
	m.profile.setValue("newPasswordConfirm", "brand-old")
	m.profile.focus = len(m.profile.fields) - 1

	m, cmd := press(t, m, "enter")

	assert.Nil(t, cmd)
	assert.Equal(t, "Passwords do not match.", m.profile.errs.First("newPasswordConfirm"))
}

func TestLoginRejectedShowsFormError(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = press(t, m, "L")
	m.auth.setValue("email", "ann@example.com")
	m.auth.setValue("password", "wrong")
	m.auth.focus = len(m.auth.fields) - 1

	m, cmd := press(t, m, "enter")
	m = drain(t, m, cmd)

	assert.Equal(t, ViewAuth, m.view)
	assert.False(t, m.auth.busy)
	assert.Equal(t, "Email or password is incorrect.", m.auth.formErr)
	assert.False(t, m.sess.Authenticated())
}

func TestAnonymousFavoriteToggleAsksToSignIn(t *testing.T) {
	m, _, store := newTestModel(t, api.Spot{ID: 1, Name: "River Park"})
	m = drain(t, m, m.refreshCmd())

	m, cmd := press(t, m, "f")
	m = drain(t, m, cmd)

	assert.Equal(t, ViewAuth, m.view)
	assert.False(t, m.dir.IsFavorite(1))
	assert.Equal(t, apierr.AuthRequired, apierr.KindOf(store.Snapshot().LastError))
}

func TestOpenDetailLoadsSpot(t *testing.T) {
	m, _, _ := newTestModel(t, api.Spot{ID: 4, Name: "Science Hall"})
	m = drain(t, m, m.refreshCmd())

	m, cmd := press(t, m, "enter")
	assert.Equal(t, ViewDetail, m.view)
	m = drain(t, m, cmd)

	require.NotNil(t, m.detail)
	assert.Equal(t, int64(4), m.detail.ID)
	assert.Contains(t, m.renderDetail(), "bring snacks")
	assert.Contains(t, m.renderDetail(), "No reviews yet.")
}

func TestStaleDetailIgnored(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.view = ViewDetail
	m.detailID = 2

	next, _ := m.Update(detailLoadedMsg{spotID: 1, detail: api.SpotDetail{Spot: api.Spot{ID: 1}}})
	assert.Nil(t, next.(Model).detail)
}

func TestWriteReviewRequiresSignIn(t *testing.T) {
	m, _, _ := newTestModel(t, api.Spot{ID: 4, Name: "Science Hall"})
	m.view = ViewDetail
	m.detailID = 4

	m, _ = press(t, m, "w")

	assert.Equal(t, ViewAuth, m.view)
	assert.Equal(t, ViewDetail, m.prevView)
}

func TestReviewFormValidatesBeforeSending(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.view = ViewDetail
	m.detailID = 4
	m.openReview(nil)
	m.review.setValue("rating", "9")
	m.review.setValue("visitedAt", "yesterday")
	m.review.focus = len(m.review.fields) - 1

	m, cmd := press(t, m, "enter")

	assert.Nil(t, cmd)
	assert.Equal(t, ViewReview, m.view)
	assert.Equal(t, "Must be at most 5.", m.review.errs.First("rating"))
	assert.Equal(t, "Use the format YYYY-MM-DD.", m.review.errs.First("visitedAt"))
	assert.Empty(t, m.dir.Reviews(4))
}

func TestStatusShowsErrorKind(t *testing.T) {
	m, _, store := newTestModel(t)
	store.RecordError(apierr.Classify(http.StatusConflict, "application/json", []byte(`{"errorCode":"CONFLICT","message":"Already exists"}`)))
	m.pull()

	status := m.renderStatus()
	assert.Contains(t, status, "CONFLICT")
	assert.Contains(t, status, "Already exists")
}

func TestOfflineBadge(t *testing.T) {
	m, loader, _ := newTestModel(t)
	loader.err = apierr.ClassifyTransport(context.DeadlineExceeded)
	m = drain(t, m, m.refreshCmd())
	m = drain(t, m, m.refreshCmd())

	assert.True(t, m.snapshot.IsOffline())
	assert.Contains(t, m.renderHeader(), "OFFLINE")
}

func TestHelpOverlayListsBindings(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = press(t, m, "?")
	require.True(t, m.showHelp)

	out := m.View()
	assert.Contains(t, out, "Keyboard Shortcuts")
	assert.Contains(t, out, "Toggle favorite")

	m, _ = press(t, m, "x")
	assert.False(t, m.showHelp)
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.Local)
	assert.Equal(t, "", formatTimestamp(time.Time{}, now))
	assert.True(t, strings.HasSuffix(formatTimestamp(now.Add(-10*time.Second), now), "(now)"))
	assert.True(t, strings.HasSuffix(formatTimestamp(now.Add(-5*time.Minute), now), "(5m ago)"))
	assert.True(t, strings.HasSuffix(formatTimestamp(now.Add(-3*time.Hour), now), "(3h ago)"))
}
