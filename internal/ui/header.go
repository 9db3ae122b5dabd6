package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/session"
)

// renderHeader renders the top bar: logo, session and freshness.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	compact := m.width < 90

	parts := []string{styles.Logo.Render("famigo")}

	switch m.sess.Phase {
	case session.Authenticated:
		name := "signed in"
		if p := m.sess.Principal; p != nil && p.DisplayName != "" {
			name = p.DisplayName
		}
		parts = append(parts, styles.SuccessText.Render("● "+name))
	case session.Restoring:
		parts = append(parts, styles.WarningText.Render("● restoring session..."))
	default:
		parts = append(parts, styles.MutedText.Render("○ guest"))
	}

	parts = append(parts,
		styles.MutedText.Render("Spots:")+" "+styles.Text.Render(fmt.Sprintf("%d", len(m.snapshot.Spots))),
	)
	if m.sess.Authenticated() && !compact {
		parts = append(parts,
			styles.MutedText.Render("Favorites:")+" "+styles.Text.Render(fmt.Sprintf("%d", len(m.favorites))),
		)
	}

	if m.snapshot.IsOffline() {
		parts = append(parts, styles.KindStyle(apierr.Transport).Render("OFFLINE"))
	}

	if ts := formatTimestamp(m.snapshot.LastUpdated, time.Now()); ts != "" && !compact {
		parts = append(parts, styles.FaintText.Render(ts))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

// renderStatus renders the bottom line: the latest notice or error, then
// key hints for the active view.
func (m Model) renderStatus() string {
	styles := m.theme.Styles()

	var lead string
	switch {
	case m.notice != "":
		lead = styles.SuccessText.Render(m.notice)
	case m.snapshot.LastError != nil:
		kind := apierr.KindOf(m.snapshot.LastError)
		msg := truncate(describeError(m.snapshot.LastError), max(20, m.width/2))
		lead = styles.KindStyle(kind).Render(strings.ToUpper(string(kind))) + " " + styles.DangerText.Render(msg)
	}

	segments := make([]string, 0, 8)
	for _, b := range m.statusBindings() {
		h := b.Help()
		segments = append(segments, styles.AccentText.Render(h.Key)+":"+styles.MutedText.Render(h.Desc))
	}
	hints := strings.Join(segments, "  ")

	if lead == "" {
		return styles.Footer.Width(m.width).Render(hints)
	}
	line := lead + "  " + hints
	if m.width > 0 && lipgloss.Width(line) > m.width {
		line = lead
	}
	return styles.Footer.Width(m.width).Render(line)
}

func (m Model) statusBindings() []key.Binding {
	k := m.keys
	switch m.view {
	case ViewDetail:
		return []key.Binding{k.ToggleFavorite, k.WriteReview, k.EditReview, k.DeleteReview, k.Back, k.Help}
	case ViewFavorites:
		return []key.Binding{k.Open, k.Unfavorite, k.Reload, k.Back, k.Help}
	case ViewAuth, ViewReview, ViewProfile:
		return []key.Binding{k.NextField, k.Submit}
	}
	account := k.Login
	if !m.sess.Authenticated() {
		return []key.Binding{k.Search, k.CycleCategory, k.ToggleFavorite, account, k.Register, k.Help}
	}
	return []key.Binding{k.Search, k.CycleCategory, k.ToggleFavorite, k.ViewFavorites, k.Profile, account, k.Help}
}

// formatTimestamp formats the last update time with a relative indicator.
func formatTimestamp(last, now time.Time) string {
	if last.IsZero() {
		return ""
	}
	since := now.Sub(last)
	s := last.Format("15:04:05")
	switch {
	case since < time.Minute:
		s += " (now)"
	case since < time.Hour:
		s += fmt.Sprintf(" (%dm ago)", int(since.Minutes()))
	case since < 24*time.Hour:
		s += fmt.Sprintf(" (%dh ago)", int(since.Hours()))
	}
	return s
}
