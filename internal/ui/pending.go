package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/synctui/synctui/internal/engine"
)

// pendingEntry addresses one row of the combined pending list: exactly one
// of device/folder is set.
type pendingEntry struct {
	device *engine.PendingDeviceRow
	folder *engine.PendingFolderRow
}

// pendingEntries flattens pending devices and folder offers into one list,
// devices first, matching the projection's ordering.
func (m Model) pendingEntries() []pendingEntry {
	if m.proj == nil {
		return nil
	}
	out := make([]pendingEntry, 0, len(m.proj.PendingDevices)+len(m.proj.PendingFolders))
	for i := range m.proj.PendingDevices {
		out = append(out, pendingEntry{device: &m.proj.PendingDevices[i]})
	}
	for i := range m.proj.PendingFolders {
		out = append(out, pendingEntry{folder: &m.proj.PendingFolders[i]})
	}
	return out
}

// selectedPending returns the entry under the cursor.
func (m Model) selectedPending() *pendingEntry {
	entries := m.pendingEntries()
	if len(entries) == 0 {
		return nil
	}
	row := m.pendingRow
	if row >= len(entries) {
		row = len(entries) - 1
	}
	return &entries[row]
}

// renderPending renders unaccepted device introductions and folder offers.
func (m Model) renderPending() string {
	styles := m.theme.Styles()
	contentHeight := m.height - 2

	entries := m.pendingEntries()
	if len(entries) == 0 {
		empty := styles.MutedText.Render("Nothing pending")
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, empty)
	}

	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(lines, m.formatPendingRow(e, i == m.pendingRow))
	}
	return joinLines(lines)
}

func (m Model) formatPendingRow(e pendingEntry, selected bool) string {
	styles := m.theme.Styles()

	var kind, title, detail, when string
	if e.device != nil {
		kind = "device"
		title = e.device.Name
		if title == "" {
			title = shortID(e.device.DeviceID)
		}
		detail = shortID(e.device.DeviceID)
		if e.device.Address != "" {
			detail += "  " + e.device.Address
		}
		when = formatAgo(e.device.Time)
	} else {
		kind = "folder"
		title = e.folder.Label
		if title == "" {
			title = e.folder.FolderID
		}
		from := e.folder.OfferedByName
		if from == "" {
			from = shortID(e.folder.OfferedBy)
		}
		detail = fmt.Sprintf("%s  from %s", e.folder.FolderID, from)
		when = formatAgo(e.folder.Time)
	}

	kind = padRight(kind, 7)
	title = padRight(truncate(title, 24), 24)
	detail = padRight(truncate(detail, maxInt(m.width-48, 16)), maxInt(m.width-48, 16))

	if selected {
		return styles.Selected.Width(m.width).Render(
			fmt.Sprintf("%s %s %s %s", kind, title, detail, when))
	}
	return styles.WarningText.Render(kind) + " " +
		styles.Text.Render(title) + " " +
		styles.MutedText.Render(detail) + " " +
		styles.FaintText.Render(when)
}

// handlePendingKey processes accept/dismiss on the selected offer.
func (m Model) handlePendingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.selectedPending()
	if e == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Accept):
		if e.device != nil {
			m.popup = newAcceptDevicePopup(m.ctx, m.eng, *e.device)
		} else {
			m.popup = newAcceptFolderPopup(m.ctx, m.eng, *e.folder)
		}
		return m, nil

	case key.Matches(msg, m.keys.Dismiss):
		var intent engine.Intent
		if e.device != nil {
			intent = engine.Intent{Kind: engine.RejectDevice, Target: e.device.DeviceID}
		} else {
			intent = engine.Intent{
				Kind:    engine.RejectFolder,
				Target:  e.folder.FolderID,
				Payload: engine.Payload{Device: e.folder.OfferedBy},
			}
		}
		return m, submitCmd(m.ctx, m.eng, intent)
	}
	return m, nil
}
