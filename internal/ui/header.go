package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/synctui/synctui/internal/engine"
	"github.com/synctui/synctui/internal/state"
)

// renderHeader renders the status bar: daemon connection, entity counts,
// and the latest notice.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)

	parts := []string{bg.Render("synctui", styles.Logo)}

	p := m.proj
	if p == nil {
		parts = append(parts, bg.Render("Connecting to Syncthing...", styles.WarningText.Bold(true)))
		return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
	}

	switch {
	case !p.Connected:
		parts = append(parts,
			bg.Render("● OFFLINE", styles.DangerText),
			bg.Render("Reconnecting...", styles.WarningText))
	case p.Refreshing:
		parts = append(parts, bg.Render("● REFRESHING", styles.WarningText))
	default:
		parts = append(parts, bg.Render("● ONLINE", styles.SuccessText))
	}

	connected := 0
	for _, d := range p.Devices {
		if d.Conn == state.Connected {
			connected++
		}
	}
	parts = append(parts,
		bg.Render("Folders:", styles.MutedText)+bg.Space()+
			bg.Render(fmt.Sprintf("%d", len(p.Folders)), styles.Text),
		bg.Render("Devices:", styles.MutedText)+bg.Space()+
			bg.Render(fmt.Sprintf("%d/%d", connected, len(p.Devices)), styles.Text),
	)

	if n := len(p.PendingDevices) + len(p.PendingFolders); n > 0 {
		parts = append(parts,
			bg.Render("Pending:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", n), styles.WarningText))
	}

	if m.errorMsg != "" {
		parts = append(parts,
			bg.Render("!", styles.DangerText)+bg.Space()+
				bg.Render(truncate(m.errorMsg, m.noticeWidth()), styles.DangerText))
	} else if n, ok := p.LastNotice(); ok {
		style := styles.MutedText
		switch n.Level {
		case engine.NoticeWarn:
			style = styles.WarningText
		case engine.NoticeError:
			style = styles.DangerText
		}
		parts = append(parts, bg.Render(truncate(n.Text, m.noticeWidth()), style))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
}

// noticeWidth bounds the notice text so the counts stay visible.
func (m Model) noticeWidth() int {
	if m.width < 100 {
		return 40
	}
	return 80
}

// renderCommandBar renders the key hints for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewDevices:
		commands = []cmd{
			{"d", "Delete"},
			{"j/k", "Navigate"},
			{"tab", "Next view"},
			{"r", "Refresh"},
			{"?", "More"},
		}
	case ViewPending:
		commands = []cmd{
			{"a", "Accept"},
			{"x", "Dismiss"},
			{"j/k", "Navigate"},
			{"tab", "Next view"},
			{"?", "More"},
		}
	case ViewID:
		commands = []cmd{
			{"tab", "Next view"},
			{"r", "Refresh"},
			{"?", "More"},
		}
	default: // ViewFolders
		commands = []cmd{
			{"n", "New"},
			{"s", "Share"},
			{"d", "Delete"},
			{"j/k", "Navigate"},
			{"tab", "Next view"},
			{"?", "More"},
		}
	}

	colon := bg.Sep(":")
	sep := bg.Spaces(2)

	segments := make([]string, 0, len(commands)+2)

	// View tabs: 1:Folders 2:Devices 3:Pending 4:ID with the active one lit.
	for i, v := range []View{ViewFolders, ViewDevices, ViewPending, ViewID} {
		label := v.String()
		style := styles.FaintText
		if v == m.currentView {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Accent)).Bold(true)
		}
		segments = append(segments,
			bg.Render(fmt.Sprintf("%d", i+1), styles.AccentText)+colon+bg.Render(label, style))
	}

	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}

	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, sep))
}
