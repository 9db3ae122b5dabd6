package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/famigo/famigo/internal/api"
)

// handleSpotsKey processes keyboard input for the spot list.
func (m Model) handleSpotsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	spots := m.snapshot.Spots

	switch {
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.CycleCategory):
		m.categoryIdx = (m.categoryIdx + 1) % (len(m.snapshot.Categories) + 1)
		m.selected = 0
		return m, m.refreshCmd()
	case key.Matches(msg, m.keys.Reload):
		return m, m.refreshCmd()
	}

	if len(spots) == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(spots)-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selected = len(spots) - 1
	case key.Matches(msg, m.keys.Open):
		return m.openDetail(spots[m.selected].ID)
	case key.Matches(msg, m.keys.ToggleFavorite):
		return m.toggleFavorite(spots[m.selected].ID)
	}
	return m, nil
}

// handleSearchKey edits the keyword; enter runs the search.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.selected = 0
		return m, m.refreshCmd()
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

// handleFavoritesKey processes keyboard input for the favorites list.
func (m Model) handleFavoritesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Reload) {
		return m, m.loadFavoritesCmd()
	}
	if len(m.favorites) == 0 {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Down):
		if m.favSel < len(m.favorites)-1 {
			m.favSel++
		}
	case key.Matches(msg, m.keys.Up):
		if m.favSel > 0 {
			m.favSel--
		}
	case key.Matches(msg, m.keys.Open):
		return m.openDetail(m.favorites[m.favSel].ID)
	case key.Matches(msg, m.keys.Unfavorite), key.Matches(msg, m.keys.ToggleFavorite):
		id := m.favorites[m.favSel].ID
		mut := m.dir.RemoveFromFavorites(m.ctx, id)
		m.pull()
		return m, settleCmd(m.ctx, mut.Done(), mut.Err, 0)
	}
	return m, nil
}

func (m Model) toggleFavorite(spotID int64) (tea.Model, tea.Cmd) {
	if m.dir == nil {
		return m, nil
	}
	mut := m.dir.ToggleFavorite(m.ctx, spotID)
	m.pull()
	return m, settleCmd(m.ctx, mut.Done(), mut.Err, 0)
}

func (m Model) openDetail(spotID int64) (tea.Model, tea.Cmd) {
	m.view = ViewDetail
	m.detailID = spotID
	m.detail = nil
	m.detailErr = nil
	m.reviews = nil
	m.reviewSel = 0
	m.detailViewport.GotoTop()
	m.updateDetailViewport()
	return m, m.loadDetailCmd(spotID)
}

// renderSpots renders the search bar and the spot table.
func (m Model) renderSpots() string {
	styles := m.theme.Styles()
	var b strings.Builder

	if m.searching {
		b.WriteString(m.search.View())
	} else {
		kw := m.search.Value()
		if kw == "" {
			kw = "(all)"
		}
		b.WriteString(styles.MutedText.Render("keyword: "))
		b.WriteString(styles.Text.Render(kw))
	}
	b.WriteString(styles.MutedText.Render("   category: "))
	if cat, ok := m.currentCategory(); ok {
		b.WriteString(styles.AccentText.Render(cat.Name))
	} else {
		b.WriteString(styles.Text.Render("all"))
	}
	b.WriteString("\n\n")

	spots := m.snapshot.Spots
	if len(spots) == 0 {
		if m.snapshot.HasSpots {
			b.WriteString(styles.MutedText.Render("No spots match."))
		} else {
			b.WriteString(styles.MutedText.Render("Loading spots..."))
		}
		return b.String()
	}

	rows := m.contentHeight() - 3
	start := 0
	if rows > 0 && m.selected >= rows {
		start = m.selected - rows + 1
	}
	for i := start; i < len(spots) && (rows <= 0 || i < start+rows); i++ {
		line := spotLine(spots[i], m.width)
		if i == m.selected {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderFavorites renders the signed-in user's favorites.
func (m Model) renderFavorites() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Favorites"))
	b.WriteString("\n\n")
	if len(m.favorites) == 0 {
		b.WriteString(styles.MutedText.Render("No favorites yet. Press f on a spot to add one."))
		return b.String()
	}
	for i, spot := range m.favorites {
		line := spotLine(spot, m.width)
		if i == m.favSel {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func spotLine(spot api.Spot, width int) string {
	star := "  "
	if spot.IsFavorite {
		star = "★ "
	}
	line := fmt.Sprintf("%s%-28s %-12s %-10s %s", star, truncate(spot.Name, 28), truncate(spot.CategoryName, 12), truncate(spot.Area, 10), spot.PriceType)
	if width > 0 && lipgloss.Width(line) > width {
		return truncate(line, width)
	}
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
