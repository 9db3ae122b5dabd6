package ui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/famigo/famigo/internal/api"
)

type profileMode int

const (
	profileDetails profileMode = iota
	profilePassword
)

type profileForm struct {
	inputForm
	mode profileMode
}

func newProfileForm(mode profileMode) profileForm {
	if mode == profilePassword {
		return profileForm{mode: mode, inputForm: inputForm{fields: []formField{
			newField("currentPassword", "Current password", true),
			newField("newPassword", "New password", true),
			newField("newPasswordConfirm", "Confirm new password", true),
		}}}
	}
	return profileForm{mode: mode, inputForm: inputForm{fields: []formField{
		newField("displayName", "Display name", false),
		newField("email", "Email", false),
	}}}
}

type profileDoneMsg struct {
	mode profileMode
	err  error
}

func (m *Model) openProfile(mode profileMode) {
	if m.view != ViewProfile {
		m.prevView = m.view
	}
	m.profile = newProfileForm(mode)
	if mode == profileDetails {
		if p := m.sess.Principal; p != nil {
			m.profile.setValue("displayName", p.DisplayName)
			m.profile.setValue("email", p.Email)
		}
	}
	m.view = ViewProfile
}

// handleProfileKey processes keyboard input for the profile form.
func (m Model) handleProfileKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyEsc:
		m.view = m.prevView
		return m, nil
	case msg.Type == tea.KeyCtrlR:
		next := profilePassword
		if m.profile.mode == profilePassword {
			next = profileDetails
		}
		m.openProfile(next)
		return m, m.profile.focusCmd()
	case key.Matches(msg, m.keys.NextField):
		return m, m.profile.move(1)
	case key.Matches(msg, m.keys.PrevField):
		return m, m.profile.move(-1)
	case key.Matches(msg, m.keys.Submit):
		if m.profile.focus < len(m.profile.fields)-1 {
			return m, m.profile.move(1)
		}
		return m.submitProfile()
	}
	return m, m.profile.update(msg)
}

func (m Model) submitProfile() (tea.Model, tea.Cmd) {
	if m.profile.busy || m.account == nil {
		return m, nil
	}
	ctx, acct, mode := m.ctx, m.account, m.profile.mode

	if mode == profilePassword {
		req := api.ChangePasswordRequest{
			CurrentPassword:    m.profile.value("currentPassword"),
			NewPassword:        m.profile.value("newPassword"),
			NewPasswordConfirm: m.profile.value("newPasswordConfirm"),
		}
		if err := m.forms.Check(req); err != nil {
			m.profile.fail(err)
			return m, nil
		}
		m.profile.busy = true
		return m, func() tea.Msg {
			return profileDoneMsg{mode: mode, err: acct.ChangePassword(ctx, req)}
		}
	}

	req := api.UpdateProfileRequest{
		DisplayName: m.profile.value("displayName"),
		Email:       m.profile.value("email"),
	}
	m.profile.busy = true
	return m, func() tea.Msg {
		_, err := acct.UpdateProfile(ctx, req)
		return profileDoneMsg{mode: mode, err: err}
	}
}

func (m Model) handleProfileDone(msg profileDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.profile.fail(msg.err)
		return m.handleFailure(msg.err)
	}
	m.profile.reset()
	m.pull()
	m.view = m.prevView
	if msg.mode == profilePassword {
		m.notice = "Password changed."
	} else {
		m.notice = "Profile updated."
	}
	return m, nil
}

func (m Model) renderProfileForm() string {
	title := "Profile"
	hint := "enter: next/submit · tab: move · ctrl+r: change password · esc: cancel"
	if m.profile.mode == profilePassword {
		title = "Change password"
		hint = "enter: next/submit · tab: move · ctrl+r: edit profile · esc: cancel"
	}
	return m.renderForm(title, "", hint, m.profile.inputForm)
}
