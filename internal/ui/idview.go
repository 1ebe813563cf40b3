package ui

import (
	"github.com/charmbracelet/lipgloss"
	qrcode "github.com/skip2/go-qrcode"
)

// renderID renders the local device ID as a scannable code plus the plain
// string, so another device can add this one by camera or by typing.
func (m Model) renderID() string {
	styles := m.theme.Styles()
	contentHeight := m.height - 2

	var payload string
	if m.proj != nil && m.eng != nil {
		payload = m.eng.DeviceIDPayload(m.proj.LocalID)
	}
	if payload == "" {
		empty := styles.MutedText.Render("Device ID not known yet")
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, empty)
	}

	content := styles.AccentText.Bold(true).Render(payload)
	if qr, err := qrcode.New(payload, qrcode.Medium); err == nil {
		content = styles.Text.Render(qr.ToSmallString(false)) + "\n" + content
	}
	content += "\n\n" + styles.MutedText.Render("Scan or enter this ID on another device to connect.")

	return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, content)
}
