package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
)

type authMode int

const (
	authLogin authMode = iota
	authRegister
)

// formField pairs an input with the JSON name its errors are keyed by.
type formField struct {
	name  string
	label string
	input textinput.Model
}

func newField(name, label string, secret bool) formField {
	in := textinput.New()
	in.Prompt = ""
	in.CharLimit = 255
	if secret {
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '•'
	}
	return formField{name: name, label: label, input: in}
}

// inputForm is the shared focus and error state of a form.
type inputForm struct {
	fields  []formField
	focus   int
	errs    apierr.FieldErrors
	formErr string
	busy    bool
}

func (f *inputForm) focusCmd() tea.Cmd {
	var cmd tea.Cmd
	for i := range f.fields {
		if i == f.focus {
			cmd = f.fields[i].input.Focus()
		} else {
			f.fields[i].input.Blur()
		}
	}
	return cmd
}

func (f *inputForm) move(delta int) tea.Cmd {
	n := len(f.fields)
	f.focus = ((f.focus+delta)%n + n) % n
	return f.focusCmd()
}

func (f *inputForm) update(msg tea.Msg) tea.Cmd {
	if f.focus >= len(f.fields) {
		return nil
	}
	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

func (f *inputForm) value(name string) string {
	for _, fld := range f.fields {
		if fld.name == name {
			return fld.input.Value()
		}
	}
	return ""
}

func (f *inputForm) setValue(name, v string) {
	for i := range f.fields {
		if f.fields[i].name == name {
			f.fields[i].input.SetValue(v)
		}
	}
}

// fail maps err onto fields. Validation errors land next to their inputs;
// anything else becomes a form-level message.
func (f *inputForm) fail(err error) {
	f.busy = false
	f.errs = nil
	f.formErr = ""
	de, ok := apierr.As(err)
	if !ok {
		f.formErr = describeError(err)
		return
	}
	if de.Kind() == apierr.Validation {
		f.errs = de.FieldErrors()
		known := map[string]bool{}
		for _, fld := range f.fields {
			known[fld.name] = true
		}
		var stray []string
		for _, name := range f.errs.Fields() {
			if !known[name] {
				stray = append(stray, f.errs[name]...)
			}
		}
		f.formErr = strings.Join(stray, " ")
		if f.formErr == "" && len(f.errs) == 0 {
			f.formErr = de.Message()
		}
		return
	}
	f.formErr = de.Message()
}

func (f *inputForm) reset() {
	f.focus = 0
	f.errs = nil
	f.formErr = ""
	f.busy = false
}

type authForm struct {
	inputForm
	mode   authMode
	notice string
}

func newAuthForm(mode authMode) authForm {
	var fields []formField
	if mode == authRegister {
		fields = []formField{
			newField("displayName", "Display name", false),
			newField("email", "Email", false),
			newField("password", "Password", true),
			newField("passwordConfirm", "Confirm password", true),
		}
	} else {
		fields = []formField{
			newField("email", "Email", false),
			newField("password", "Password", true),
		}
	}
	return authForm{inputForm: inputForm{fields: fields}, mode: mode}
}

type reviewForm struct {
	inputForm
	editing *api.Review
}

func newReviewForm() reviewForm {
	rating := newField("rating", "Rating (1-5)", false)
	rating.input.CharLimit = 1
	visited := newField("visitedAt", "Visited (YYYY-MM-DD)", false)
	visited.input.CharLimit = 10
	comment := newField("comment", "Comment", false)
	comment.input.CharLimit = 1000
	return reviewForm{inputForm: inputForm{fields: []formField{rating, comment, visited}}}
}

func (m *Model) openAuth(mode authMode, notice string) {
	if m.view != ViewAuth {
		m.prevView = m.view
	}
	m.auth = newAuthForm(mode)
	m.auth.notice = notice
	m.view = ViewAuth
	m.searching = false
}

func (m *Model) openReview(existing *api.Review) {
	m.review = newReviewForm()
	if existing != nil {
		r := *existing
		m.review.editing = &r
		m.review.setValue("rating", strconv.Itoa(r.Rating))
		m.review.setValue("comment", r.Comment)
		m.review.setValue("visitedAt", r.VisitedAt)
	}
	m.view = ViewReview
}

// handleAuthKey processes keyboard input for the sign-in and sign-up forms.
func (m Model) handleAuthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyEsc:
		m.view = m.prevView
		return m, nil
	case msg.Type == tea.KeyCtrlR:
		next := authRegister
		if m.auth.mode == authRegister {
			next = authLogin
		}
		m.auth = newAuthForm(next)
		return m, m.auth.focusCmd()
	case key.Matches(msg, m.keys.NextField):
		return m, m.auth.move(1)
	case key.Matches(msg, m.keys.PrevField):
		return m, m.auth.move(-1)
	case key.Matches(msg, m.keys.Submit):
		if m.auth.focus < len(m.auth.fields)-1 {
			return m, m.auth.move(1)
		}
		return m.submitAuth()
	}
	return m, m.auth.update(msg)
}

func (m Model) submitAuth() (tea.Model, tea.Cmd) {
	if m.auth.busy || m.session == nil {
		return m, nil
	}
	ctx, sess, mode := m.ctx, m.session, m.auth.mode

	if mode == authRegister {
		req := api.RegisterRequest{
			DisplayName:     strings.TrimSpace(m.auth.value("displayName")),
			Email:           strings.TrimSpace(m.auth.value("email")),
			Password:        m.auth.value("password"),
			PasswordConfirm: m.auth.value("passwordConfirm"),
		}
		if err := m.forms.Check(req); err != nil {
			m.auth.fail(err)
			return m, nil
		}
		m.auth.busy = true
		return m, func() tea.Msg {
			return authDoneMsg{mode: mode, err: sess.Register(ctx, req)}
		}
	}

	req := api.LoginRequest{
		Email:    strings.TrimSpace(m.auth.value("email")),
		Password: m.auth.value("password"),
	}
	if err := m.forms.Check(req); err != nil {
		m.auth.fail(err)
		return m, nil
	}
	m.auth.busy = true
	return m, func() tea.Msg {
		return authDoneMsg{mode: mode, err: sess.Login(ctx, req.Email, req.Password)}
	}
}

func (m Model) handleAuthDone(msg authDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if apierr.KindOf(msg.err) == apierr.AuthRequired && msg.mode == authLogin {
			m.auth.fail(apierr.ClassifyFields(nil, "Email or password is incorrect."))
			return m, nil
		}
		m.auth.fail(msg.err)
		return m, nil
	}

	m.auth.reset()
	m.pull()
	if p := m.sess.Principal; p != nil {
		m.notice = "Signed in as " + p.DisplayName + "."
	}
	m.view = m.prevView
	cmds := []tea.Cmd{m.refreshCmd()}
	switch m.view {
	case ViewDetail:
		cmds = append(cmds, m.loadDetailCmd(m.detailID))
	case ViewFavorites:
		cmds = append(cmds, m.loadFavoritesCmd())
	}
	return m, tea.Batch(cmds...)
}

// handleReviewKey processes keyboard input for the review form.
func (m Model) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyEsc:
		m.view = ViewDetail
		return m, nil
	case key.Matches(msg, m.keys.NextField):
		return m, m.review.move(1)
	case key.Matches(msg, m.keys.PrevField):
		return m, m.review.move(-1)
	case key.Matches(msg, m.keys.Submit):
		if m.review.focus < len(m.review.fields)-1 {
			return m, m.review.move(1)
		}
		return m.submitReview()
	}
	return m, m.review.update(msg)
}

func (m Model) submitReview() (tea.Model, tea.Cmd) {
	if m.dir == nil || m.detailID == 0 {
		return m, nil
	}
	rating, _ := strconv.Atoi(strings.TrimSpace(m.review.value("rating")))
	req := api.ReviewRequest{
		Rating:    rating,
		Comment:   strings.TrimSpace(m.review.value("comment")),
		VisitedAt: strings.TrimSpace(m.review.value("visitedAt")),
	}
	if err := m.forms.Check(req); err != nil {
		m.review.fail(err)
		return m, nil
	}

	spotID := m.detailID
	m.view = ViewDetail
	if m.review.editing != nil {
		mut := m.dir.UpdateReview(m.ctx, spotID, m.review.editing.ID, req)
		m.pull()
		return m, settleCmd(m.ctx, mut.Done(), mut.Err, 0)
	}
	mut := m.dir.CreateReview(m.ctx, spotID, m.principalUser(), req)
	m.reviewSel = 0
	m.pull()
	return m, settleCmd(m.ctx, mut.Done(), mut.Err, spotID)
}

// updateInputs forwards non-key messages (cursor blink) to the focused input.
func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.searching:
		m.search, cmd = m.search.Update(msg)
	case m.view == ViewAuth:
		cmd = m.auth.update(msg)
	case m.view == ViewReview:
		cmd = m.review.update(msg)
	case m.view == ViewProfile:
		cmd = m.profile.update(msg)
	}
	return m, cmd
}

func (m Model) renderAuthForm() string {
	title := "Sign in"
	hint := "enter: next/submit · tab: move · ctrl+r: create an account · esc: cancel"
	if m.auth.mode == authRegister {
		title = "Create account"
		hint = "enter: next/submit · tab: move · ctrl+r: sign in instead · esc: cancel"
	}
	return m.renderForm(title, m.auth.notice, hint, m.auth.inputForm)
}

func (m Model) renderReviewForm() string {
	title := "Write a review"
	if m.review.editing != nil {
		title = "Edit review"
	}
	if m.detail != nil {
		title += ": " + m.detail.Name
	}
	return m.renderForm(title, "", "enter: next/submit · tab: move · esc: cancel", m.review.inputForm)
}

func (m Model) renderForm(title, notice, hint string, f inputForm) string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render(title))
	b.WriteString("\n")
	if notice != "" {
		b.WriteString(styles.WarningText.Render(notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for i, fld := range f.fields {
		label := styles.MutedText.Render(fld.label)
		if i == f.focus {
			label = styles.AccentText.Render(fld.label)
		}
		b.WriteString(label)
		b.WriteString("\n")
		panel := styles.Panel
		if i == f.focus {
			panel = styles.FocusPanel
		}
		b.WriteString(panel.Width(max(20, min(60, m.width-4))).Render(fld.input.View()))
		b.WriteString("\n")
		if msg := f.errs.First(fld.name); msg != "" {
			b.WriteString(styles.DangerText.Render(msg))
			b.WriteString("\n")
		}
	}
	if f.formErr != "" {
		b.WriteString(styles.DangerText.Render(f.formErr))
		b.WriteString("\n")
	}
	if f.busy {
		b.WriteString(styles.MutedText.Render("Working..."))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(hint))
	return b.String()
}
