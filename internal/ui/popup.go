package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/synctui/synctui/internal/engine"
)

// Popup is a modal dialog layered over the main views. Update returns the
// updated popup, a command, and whether the popup should close.
type Popup interface {
	Update(msg tea.KeyMsg, keys keyMap) (Popup, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// renderPopupBox centers a bordered modal over the whole screen.
func renderPopupBox(theme Theme, width, height int, title, body string) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(title))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")
	b.WriteString(body)

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Accent)).
		Padding(1, 2).
		Width(48)

	return lipgloss.Place(
		width, height,
		lipgloss.Center, lipgloss.Center,
		modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}

func newInput(placeholder, value string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.SetValue(value)
	ti.CharLimit = 256
	return ti
}

// folderPopup collects the id, label and path for a new folder.
type folderPopup struct {
	ctx    context.Context
	eng    *engine.Engine
	inputs [3]textinput.Model // id, label, path
	focus  int
	errMsg string
}

func newFolderPopup(ctx context.Context, eng *engine.Engine) Popup {
	p := &folderPopup{ctx: ctx, eng: eng}
	p.inputs[0] = newInput("folder id (e.g. abcde-fghij)", "")
	p.inputs[1] = newInput("label (optional)", "")
	p.inputs[2] = newInput("local path", "")
	p.inputs[0].Focus()
	return p
}

func (p *folderPopup) Update(msg tea.KeyMsg, keys keyMap) (Popup, tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		return p, nil, true

	case "tab", "down":
		p.setFocus((p.focus + 1) % len(p.inputs))
		return p, nil, false

	case "shift+tab", "up":
		p.setFocus((p.focus + len(p.inputs) - 1) % len(p.inputs))
		return p, nil, false

	case "enter":
		id := strings.TrimSpace(p.inputs[0].Value())
		path := strings.TrimSpace(p.inputs[2].Value())
		if id == "" || path == "" {
			p.errMsg = "folder id and path are required"
			return p, nil, false
		}
		intent := engine.Intent{
			Kind:   engine.AddFolder,
			Target: id,
			Payload: engine.Payload{
				Label: strings.TrimSpace(p.inputs[1].Value()),
				Path:  path,
			},
		}
		return p, submitCmd(p.ctx, p.eng, intent), true
	}

	var cmd tea.Cmd
	p.inputs[p.focus], cmd = p.inputs[p.focus].Update(msg)
	return p, cmd, false
}

func (p *folderPopup) setFocus(i int) {
	p.inputs[p.focus].Blur()
	p.focus = i
	p.inputs[p.focus].Focus()
}

func (p *folderPopup) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	labels := [3]string{"ID", "Label", "Path"}

	var b strings.Builder
	for i, in := range p.inputs {
		b.WriteString(styles.MutedText.Render(padRight(labels[i], 7)))
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	if p.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(styles.DangerText.Render(p.errMsg))
	}
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render("enter: add  tab: next field  esc: cancel"))

	return renderPopupBox(theme, width, height, "New Folder", b.String())
}

// acceptDevicePopup confirms a pending device, letting the operator name it.
type acceptDevicePopup struct {
	ctx    context.Context
	eng    *engine.Engine
	device engine.PendingDeviceRow
	name   textinput.Model
}

func newAcceptDevicePopup(ctx context.Context, eng *engine.Engine, device engine.PendingDeviceRow) Popup {
	p := &acceptDevicePopup{ctx: ctx, eng: eng, device: device}
	p.name = newInput("device name", device.Name)
	p.name.Focus()
	return p
}

func (p *acceptDevicePopup) Update(msg tea.KeyMsg, keys keyMap) (Popup, tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		return p, nil, true
	case "enter":
		intent := engine.Intent{
			Kind:    engine.AcceptDevice,
			Target:  p.device.DeviceID,
			Payload: engine.Payload{Name: strings.TrimSpace(p.name.Value())},
		}
		return p, submitCmd(p.ctx, p.eng, intent), true
	}

	var cmd tea.Cmd
	p.name, cmd = p.name.Update(msg)
	return p, cmd, false
}

func (p *acceptDevicePopup) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.MutedText.Render("ID     "))
	b.WriteString(styles.Text.Render(truncate(p.device.DeviceID, 36)))
	b.WriteString("\n")
	if p.device.Address != "" {
		b.WriteString(styles.MutedText.Render("Addr   "))
		b.WriteString(styles.Text.Render(p.device.Address))
		b.WriteString("\n")
	}
	b.WriteString(styles.MutedText.Render("Name   "))
	b.WriteString(p.name.View())
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render("enter: accept  esc: cancel"))

	return renderPopupBox(theme, width, height, "Accept Device", b.String())
}

// acceptFolderPopup confirms a folder offer, collecting the local path.
type acceptFolderPopup struct {
	ctx   context.Context
	eng   *engine.Engine
	offer engine.PendingFolderRow
	path  textinput.Model
}

func newAcceptFolderPopup(ctx context.Context, eng *engine.Engine, offer engine.PendingFolderRow) Popup {
	p := &acceptFolderPopup{ctx: ctx, eng: eng, offer: offer}
	p.path = newInput("local path", "")
	p.path.Focus()
	return p
}

func (p *acceptFolderPopup) Update(msg tea.KeyMsg, keys keyMap) (Popup, tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		return p, nil, true
	case "enter":
		path := strings.TrimSpace(p.path.Value())
		if path == "" {
			return p, nil, false
		}
		intent := engine.Intent{
			Kind:   engine.AcceptFolder,
			Target: p.offer.FolderID,
			Payload: engine.Payload{
				Device: p.offer.OfferedBy,
				Label:  p.offer.Label,
				Path:   path,
			},
		}
		return p, submitCmd(p.ctx, p.eng, intent), true
	}

	var cmd tea.Cmd
	p.path, cmd = p.path.Update(msg)
	return p, cmd, false
}

func (p *acceptFolderPopup) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	name := p.offer.Label
	if name == "" {
		name = p.offer.FolderID
	}
	from := p.offer.OfferedByName
	if from == "" {
		from = shortID(p.offer.OfferedBy)
	}

	var b strings.Builder
	b.WriteString(styles.MutedText.Render("Folder "))
	b.WriteString(styles.Text.Render(fmt.Sprintf("%s (%s)", name, p.offer.FolderID)))
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render("From   "))
	b.WriteString(styles.Text.Render(from))
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render("Path   "))
	b.WriteString(p.path.View())
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render("enter: accept  esc: cancel"))

	return renderPopupBox(theme, width, height, "Accept Folder", b.String())
}

// sharePopup picks a device to share a folder with.
type sharePopup struct {
	ctx        context.Context
	eng        *engine.Engine
	folder     engine.FolderRow
	candidates []engine.DeviceRow
	cursor     int
}

func newSharePopup(ctx context.Context, eng *engine.Engine, folder engine.FolderRow, candidates []engine.DeviceRow) Popup {
	return &sharePopup{ctx: ctx, eng: eng, folder: folder, candidates: candidates}
}

func (p *sharePopup) Update(msg tea.KeyMsg, keys keyMap) (Popup, tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		return p, nil, true
	case "j", "down":
		if p.cursor < len(p.candidates)-1 {
			p.cursor++
		}
	case "k", "up":
		if p.cursor > 0 {
			p.cursor--
		}
	case "enter":
		device := p.candidates[p.cursor]
		intent := engine.Intent{
			Kind:    engine.ShareFolder,
			Target:  p.folder.ID,
			Payload: engine.Payload{Device: device.ID},
		}
		return p, submitCmd(p.ctx, p.eng, intent), true
	}
	return p, nil, false
}

func (p *sharePopup) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.MutedText.Render("Share "))
	b.WriteString(styles.Text.Render(p.folder.DisplayName()))
	b.WriteString(styles.MutedText.Render(" with:"))
	b.WriteString("\n\n")

	for i, d := range p.candidates {
		name := d.Name
		if name == "" {
			name = shortID(d.ID)
		}
		line := fmt.Sprintf("%s %s", padRight(truncate(name, 24), 24), shortID(d.ID))
		if i == p.cursor {
			b.WriteString(styles.Selected.Render("> " + line))
		} else {
			b.WriteString(styles.Text.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render("enter: share  j/k: select  esc: cancel"))

	return renderPopupBox(theme, width, height, "Share Folder", b.String())
}

// confirmPopup asks before a destructive action.
type confirmPopup struct {
	ctx     context.Context
	eng     *engine.Engine
	message string
	intent  engine.Intent
}

func newConfirmPopup(ctx context.Context, eng *engine.Engine, message string, intent engine.Intent) Popup {
	return &confirmPopup{ctx: ctx, eng: eng, message: message, intent: intent}
}

func (p *confirmPopup) Update(msg tea.KeyMsg, keys keyMap) (Popup, tea.Cmd, bool) {
	switch msg.String() {
	case "y", "enter":
		return p, submitCmd(p.ctx, p.eng, p.intent), true
	case "n", "esc":
		return p, nil, true
	}
	return p, nil, false
}

func (p *confirmPopup) View(theme Theme, width, height int) string {
	styles := theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Render(p.message))
	b.WriteString("\n\n")
	b.WriteString(styles.FaintText.Render("y/enter: confirm  n/esc: cancel"))

	return renderPopupBox(theme, width, height, "Confirm", b.String())
}
