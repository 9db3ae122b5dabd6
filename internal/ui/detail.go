package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/famigo/famigo/internal/api"
)

// handleDetailKey processes keyboard input for the spot detail view.
func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFavorite):
		if m.detailID == 0 {
			return m, nil
		}
		return m.toggleFavorite(m.detailID)
	case key.Matches(msg, m.keys.Reload):
		return m, m.loadDetailCmd(m.detailID)
	case key.Matches(msg, m.keys.Down):
		if m.reviewSel < len(m.reviews)-1 {
			m.reviewSel++
			m.updateDetailViewport()
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.reviewSel > 0 {
			m.reviewSel--
			m.updateDetailViewport()
		}
		return m, nil
	case key.Matches(msg, m.keys.WriteReview):
		if !m.sess.Authenticated() {
			m.openAuth(authLogin, "Sign in to write a review.")
			return m, m.auth.focusCmd()
		}
		m.openReview(nil)
		return m, m.review.focusCmd()
	case key.Matches(msg, m.keys.EditReview):
		if r, ok := m.ownSelectedReview(); ok {
			m.openReview(&r)
			return m, m.review.focusCmd()
		}
		m.notice = "You can only edit your own reviews."
		return m, nil
	case key.Matches(msg, m.keys.DeleteReview):
		r, ok := m.ownSelectedReview()
		if !ok {
			m.notice = "You can only delete your own reviews."
			return m, nil
		}
		mut := m.dir.DeleteReview(m.ctx, m.detailID, r.ID)
		m.pull()
		return m, settleCmd(m.ctx, mut.Done(), mut.Err, 0)
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

// ownSelectedReview returns the selected review if the principal wrote it
// and the server has assigned it an ID.
func (m Model) ownSelectedReview() (api.Review, bool) {
	if m.sess.Principal == nil || m.reviewSel >= len(m.reviews) {
		return api.Review{}, false
	}
	r := m.reviews[m.reviewSel]
	if r.ID <= 0 || r.UserID != m.sess.Principal.ID {
		return api.Review{}, false
	}
	return r, true
}

func (m *Model) updateDetailViewport() {
	if !m.ready {
		return
	}
	m.detailViewport.SetContent(m.renderDetail())
}

func (m Model) renderDetail() string {
	styles := m.theme.Styles()
	var b strings.Builder

	if m.detail == nil {
		if m.detailErr != nil {
			b.WriteString(styles.DangerText.Render(describeError(m.detailErr)))
		} else {
			b.WriteString(styles.MutedText.Render("Loading spot..."))
		}
		return b.String()
	}
	d := m.detail

	title := d.Name
	if d.IsFavorite {
		title = "★ " + title
	}
	b.WriteString(styles.AccentText.Bold(true).Render(title))
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render(strings.Join(nonEmpty(d.CategoryName, d.Area, d.PriceType, d.TargetAge), " · ")))
	b.WriteString("\n\n")

	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		b.WriteString(styles.MutedText.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(styles.Text.Render(value))
		b.WriteString("\n")
	}
	field("Address", d.Address)
	field("Hours/closed", d.ClosedDays)
	field("Parking", d.ParkingInfo)
	field("Toilets", d.ToiletInfo)
	field("Stay", d.StayingTime)
	field("Food", d.RestaurantInfo)
	field("Shops", d.ConvenienceStore)
	field("Website", d.OfficialURL)
	field("Map", d.GoogleMapURL)
	field("Notes", d.Notes)

	if facilities := facilityLabels(d.Facilities); len(facilities) > 0 {
		b.WriteString(styles.MutedText.Render(fmt.Sprintf("%-12s", "Facilities")))
		b.WriteString(styles.SuccessText.Render(strings.Join(facilities, ", ")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.AccentText.Bold(true).Render(fmt.Sprintf("Reviews (%d)", len(m.reviews))))
	b.WriteString("\n")
	if len(m.reviews) == 0 {
		b.WriteString(styles.MutedText.Render("No reviews yet."))
		b.WriteString("\n")
	}
	for i, r := range m.reviews {
		head := fmt.Sprintf("%s  %s", stars(r.Rating), r.UserName)
		if r.ID < 0 {
			head += "  (sending)"
		}
		if t := r.ParsedCreatedAt(); !t.IsZero() {
			head += "  " + t.Local().Format("2006-01-02")
		}
		if i == m.reviewSel {
			b.WriteString(styles.Selected.Render(head))
		} else {
			b.WriteString(styles.WarningText.Render(head))
		}
		b.WriteString("\n")
		if r.Comment != "" {
			b.WriteString(styles.Text.Render("  " + r.Comment))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func facilityLabels(f api.Facilities) []string {
	var out []string
	add := func(ok api.Flag, label string) {
		if ok {
			out = append(out, label)
		}
	}
	add(f.DiaperChanging, "diaper changing")
	add(f.StrollerOK, "stroller ok")
	add(f.Playground, "playground")
	add(f.Athletics, "athletics")
	add(f.WaterPlay, "water play")
	add(f.Indoor, "indoor")
	return out
}

func stars(rating int) string {
	rating = max(0, min(rating, 5))
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
