package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/synctui/synctui/internal/engine"
	"github.com/synctui/synctui/internal/state"
)

// renderFolders renders the folder list.
func (m Model) renderFolders() string {
	styles := m.theme.Styles()
	contentHeight := m.height - 2

	if m.proj == nil || len(m.proj.Folders) == 0 {
		empty := styles.MutedText.Render("No folders. Press n to add one.")
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, empty)
	}

	lines := make([]string, 0, len(m.proj.Folders))
	for i, f := range m.proj.Folders {
		lines = append(lines, m.formatFolderRow(f, i == m.folderRow))
	}
	return joinLines(lines)
}

// formatFolderRow formats one folder line:
// "Label  sync-state  shared n  path [badge]".
func (m Model) formatFolderRow(f engine.FolderRow, selected bool) string {
	styles := m.theme.Styles()

	name := padRight(truncate(f.DisplayName(), 24), 24)
	sync := padRight(f.Sync.String(), 8)
	shared := fmt.Sprintf("shared %d", len(f.SharedWith))
	if f.Share == state.Unshared {
		shared = "unshared"
	}
	shared = padRight(shared, 10)
	path := truncate(f.Path, maxInt(m.width-56, 12))

	if selected {
		line := fmt.Sprintf("%s %s %s %s%s", name, sync, shared, path, m.badgeSuffix(f.Badge, f.Stalled, f.ErrMsg))
		return styles.Selected.Width(m.width).Render(line)
	}

	syncStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StateColor(f.Sync.String())))
	return styles.Text.Render(name) + " " +
		syncStyle.Render(sync) + " " +
		styles.MutedText.Render(shared) + " " +
		styles.FaintText.Render(path) +
		m.styledBadge(f.Badge, f.Stalled, f.ErrMsg)
}

// badgeSuffix renders the plain-text badge for selected rows, where the
// selection colors flatten everything.
func (m Model) badgeSuffix(badge string, stalled bool, errMsg string) string {
	var s string
	if badge != "" {
		s = " [" + badge + "]"
		if stalled {
			s += " (no confirmation yet)"
		}
	}
	if errMsg != "" {
		s += " ! " + truncate(errMsg, 40)
	}
	return s
}

// styledBadge renders the badge with theme colors for unselected rows.
func (m Model) styledBadge(badge string, stalled bool, errMsg string) string {
	styles := m.theme.Styles()
	var s string
	if badge != "" {
		badgeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StateColor(badge)))
		s = " " + badgeStyle.Render("["+badge+"]")
		if stalled {
			s += " " + styles.WarningText.Render("(no confirmation yet)")
		}
	}
	if errMsg != "" {
		s += " " + styles.DangerText.Render("! "+truncate(errMsg, 40))
	}
	return s
}

// handleFoldersKey processes folder view actions.
func (m Model) handleFoldersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.NewFolder):
		m.popup = newFolderPopup(m.ctx, m.eng)
		return m, nil

	case key.Matches(msg, m.keys.Share):
		f := m.selectedFolder()
		if f == nil {
			return m, nil
		}
		candidates := shareCandidates(m.proj, *f)
		if len(candidates) == 0 {
			m.errorMsg = "no devices left to share " + f.DisplayName() + " with"
			return m, nil
		}
		m.popup = newSharePopup(m.ctx, m.eng, *f, candidates)
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		f := m.selectedFolder()
		if f == nil {
			return m, nil
		}
		m.popup = newConfirmPopup(m.ctx, m.eng,
			fmt.Sprintf("Delete folder %s (%s)?", f.DisplayName(), f.ID),
			engine.Intent{Kind: engine.DeleteFolder, Target: f.ID})
		return m, nil
	}
	return m, nil
}

// shareCandidates returns configured devices the folder is not yet shared
// with, excluding the local device.
func shareCandidates(p *engine.Projection, f engine.FolderRow) []engine.DeviceRow {
	shared := make(map[string]struct{}, len(f.SharedWith))
	for _, id := range f.SharedWith {
		shared[id] = struct{}{}
	}
	var out []engine.DeviceRow
	for _, d := range p.Devices {
		if d.ID == p.LocalID {
			continue
		}
		if _, ok := shared[d.ID]; ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// joinLines joins row lines into the content block.
func joinLines(lines []string) string {
	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}
