package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/synctui/synctui/internal/engine"
	"github.com/synctui/synctui/internal/state"
)

// renderDevices renders the device list.
func (m Model) renderDevices() string {
	styles := m.theme.Styles()
	contentHeight := m.height - 2

	if m.proj == nil || len(m.proj.Devices) == 0 {
		empty := styles.MutedText.Render("No devices")
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, empty)
	}

	lines := make([]string, 0, len(m.proj.Devices))
	for i, d := range m.proj.Devices {
		lines = append(lines, m.formatDeviceRow(d, i == m.deviceRow))
	}
	return joinLines(lines)
}

// formatDeviceRow formats one device line:
// "Name  SHORTID  conn-state  last-seen [badge]".
func (m Model) formatDeviceRow(d engine.DeviceRow, selected bool) string {
	styles := m.theme.Styles()

	name := d.Name
	if name == "" {
		name = shortID(d.ID)
	}
	if m.proj != nil && d.ID == m.proj.LocalID {
		name += " (this device)"
	}
	name = padRight(truncate(name, 28), 28)
	id := padRight(shortID(d.ID), 8)
	conn := padRight(d.Conn.String(), 12)

	seen := ""
	if d.Conn != state.Connected {
		seen = formatAgo(d.LastSeen)
	}

	if selected {
		line := fmt.Sprintf("%s %s %s %s%s", name, id, conn, seen, m.badgeSuffix(d.Badge, d.Stalled, ""))
		return styles.Selected.Width(m.width).Render(line)
	}

	connStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StateColor(d.Conn.String())))
	return styles.Text.Render(name) + " " +
		styles.FaintText.Render(id) + " " +
		connStyle.Render(conn) + " " +
		styles.MutedText.Render(seen) +
		m.styledBadge(d.Badge, d.Stalled, "")
}

// handleDevicesKey processes device view actions.
func (m Model) handleDevicesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Delete) {
		d := m.selectedDevice()
		if d == nil {
			return m, nil
		}
		if m.proj != nil && d.ID == m.proj.LocalID {
			m.errorMsg = "cannot delete this device"
			return m, nil
		}
		name := d.Name
		if name == "" {
			name = shortID(d.ID)
		}
		m.popup = newConfirmPopup(m.ctx, m.eng,
			fmt.Sprintf("Delete device %s (%s)?", name, shortID(d.ID)),
			engine.Intent{Kind: engine.DeleteDevice, Target: d.ID})
		return m, nil
	}
	return m, nil
}
