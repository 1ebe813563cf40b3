package engine

import (
	"slices"
	"strings"
	"time"

	"github.com/synctui/synctui/internal/state"
)

// NoticeLevel classifies a notice for rendering.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

// Notice is a user-facing message surfaced by the engine.
type Notice struct {
	Time  time.Time
	Level NoticeLevel
	Text  string
}

// DeviceRow is one device as the presentation layer should show it,
// optimistic overlays already applied.
type DeviceRow struct {
	ID       string
	Name     string
	Conn     state.ConnState
	LastSeen time.Time
	// Badge names the in-flight mutation ("accepting", "deleting"), empty
	// when the row is pure confirmed state.
	Badge   string
	Stalled bool
}

// FolderRow is one folder, overlays applied.
type FolderRow struct {
	ID         string
	Label      string
	Path       string
	SharedWith []string
	Share      state.ShareState
	Sync       state.SyncState
	ErrMsg     string
	Badge      string
	Stalled    bool
}

// DisplayName returns the label, falling back to the ID.
func (f FolderRow) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// PendingDeviceRow is an unaccepted device introduction.
type PendingDeviceRow struct {
	DeviceID string
	Name     string
	Address  string
	Time     time.Time
}

// PendingFolderRow is an unaccepted folder offer.
type PendingFolderRow struct {
	FolderID      string
	Label         string
	OfferedBy     string
	OfferedByName string
	Time          time.Time
}

// Projection is the read-only render model: a single consistent snapshot of
// confirmed state with queued-action overlays. It is regenerated wholesale
// after every engine message and never mutated afterwards.
type Projection struct {
	LocalID     string
	Seq         uint64
	Connected   bool
	Refreshing  bool
	GeneratedAt time.Time

	Devices        []DeviceRow
	Folders        []FolderRow
	PendingDevices []PendingDeviceRow
	PendingFolders []PendingFolderRow
	Notices        []Notice

	// confirmed holds the device IDs known to the daemon, free of any
	// overlay; DeviceIDPayload answers from it.
	confirmed map[string]struct{}
}

// LastNotice returns the newest notice, if any.
func (p *Projection) LastNotice() (Notice, bool) {
	if len(p.Notices) == 0 {
		return Notice{}, false
	}
	return p.Notices[0], true
}

// rebuildProjection derives a fresh projection from the model snapshot and
// the action queue and publishes it atomically. Runs on the engine goroutine
// after every message.
func (e *Engine) rebuildProjection() {
	view := e.model.Snapshot()
	now := e.now()

	p := &Projection{
		LocalID:     view.LocalID,
		Seq:         view.Seq,
		Connected:   e.connected,
		Refreshing:  e.refreshing,
		GeneratedAt: now,
		Notices:     slices.Clone(e.notices),
		confirmed:   make(map[string]struct{}, len(view.Devices)),
	}

	devices := make(map[string]*DeviceRow, len(view.Devices))
	for _, d := range view.Devices {
		p.confirmed[d.ID] = struct{}{}
		devices[d.ID] = &DeviceRow{
			ID:       d.ID,
			Name:     d.Name,
			Conn:     d.Conn,
			LastSeen: d.LastSeen,
		}
	}

	folders := make(map[string]*FolderRow, len(view.Folders))
	for _, f := range view.Folders {
		folders[f.ID] = &FolderRow{
			ID:         f.ID,
			Label:      f.Label,
			Path:       f.Path,
			SharedWith: slices.Clone(f.SharedWith),
			Share:      f.Share,
			Sync:       f.Sync,
			ErrMsg:     f.ErrMsg,
		}
	}

	pendingDevices := make(map[string]PendingDeviceRow, len(view.PendingDevices))
	for _, pd := range view.PendingDevices {
		pendingDevices[pd.DeviceID] = PendingDeviceRow{
			DeviceID: pd.DeviceID,
			Name:     pd.Name,
			Address:  pd.Address,
			Time:     pd.Time,
		}
	}

	type offerID struct{ folder, device string }
	pendingFolders := make(map[offerID]PendingFolderRow, len(view.PendingFolders))
	for _, pf := range view.PendingFolders {
		row := PendingFolderRow{
			FolderID:  pf.FolderID,
			Label:     pf.Label,
			OfferedBy: pf.OfferedBy,
			Time:      pf.Time,
		}
		if d, ok := devices[pf.OfferedBy]; ok {
			row.OfferedByName = d.Name
		}
		pendingFolders[offerID{pf.FolderID, pf.OfferedBy}] = row
	}

	// Overlay queued actions on the confirmed baseline: the UI sees the
	// optimistic post-action state immediately, while the model underneath
	// stays whatever the daemon last confirmed.
	for _, a := range e.queue.all() {
		stalled := e.stallAfter > 0 && now.Sub(a.SubmittedAt) > e.stallAfter
		switch a.Kind {
		case AcceptDevice:
			name := a.Payload.Name
			if pd, ok := pendingDevices[a.Target]; ok && name == "" {
				name = pd.Name
			}
			delete(pendingDevices, a.Target)
			row, ok := devices[a.Target]
			if !ok {
				row = &DeviceRow{ID: a.Target, Conn: state.Connecting}
				devices[a.Target] = row
			}
			if name != "" {
				row.Name = name
			}
			row.Badge = "accepting"
			row.Stalled = stalled

		case RejectDevice:
			delete(pendingDevices, a.Target)

		case DeleteDevice:
			delete(devices, a.Target)

		case AcceptFolder:
			delete(pendingFolders, offerID{a.Target, a.Payload.Device})
			row, ok := folders[a.Target]
			if !ok {
				row = &FolderRow{ID: a.Target}
				folders[a.Target] = row
			}
			if a.Payload.Label != "" {
				row.Label = a.Payload.Label
			}
			if a.Payload.Path != "" {
				row.Path = a.Payload.Path
			}
			if !slices.Contains(row.SharedWith, a.Payload.Device) {
				row.SharedWith = append(row.SharedWith, a.Payload.Device)
				slices.Sort(row.SharedWith)
			}
			row.Share = state.Shared
			row.Badge = "accepting"
			row.Stalled = stalled

		case RejectFolder:
			delete(pendingFolders, offerID{a.Target, a.Payload.Device})

		case AddFolder, ModifyFolder:
			row, ok := folders[a.Target]
			if !ok {
				row = &FolderRow{ID: a.Target, Sync: state.SyncUnknown}
				folders[a.Target] = row
			}
			if a.Payload.Label != "" {
				row.Label = a.Payload.Label
			}
			if a.Payload.Path != "" {
				row.Path = a.Payload.Path
			}
			if a.Payload.Devices != nil {
				row.SharedWith = slices.Clone(a.Payload.Devices)
				slices.Sort(row.SharedWith)
			}
			if len(row.SharedWith) > 0 {
				row.Share = state.Shared
			}
			row.Badge = "saving"
			row.Stalled = stalled

		case ShareFolder:
			row, ok := folders[a.Target]
			if !ok {
				continue
			}
			if !slices.Contains(row.SharedWith, a.Payload.Device) {
				row.SharedWith = append(row.SharedWith, a.Payload.Device)
				slices.Sort(row.SharedWith)
			}
			row.Share = state.Shared
			row.Badge = "saving"
			row.Stalled = stalled

		case DeleteFolder:
			delete(folders, a.Target)
		}
	}

	p.Devices = make([]DeviceRow, 0, len(devices))
	for _, row := range devices {
		p.Devices = append(p.Devices, *row)
	}
	slices.SortFunc(p.Devices, func(a, b DeviceRow) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	p.Folders = make([]FolderRow, 0, len(folders))
	for _, row := range folders {
		p.Folders = append(p.Folders, *row)
	}
	slices.SortFunc(p.Folders, func(a, b FolderRow) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	p.PendingDevices = make([]PendingDeviceRow, 0, len(pendingDevices))
	for _, row := range pendingDevices {
		p.PendingDevices = append(p.PendingDevices, row)
	}
	slices.SortFunc(p.PendingDevices, func(a, b PendingDeviceRow) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.DeviceID, b.DeviceID)
	})

	p.PendingFolders = make([]PendingFolderRow, 0, len(pendingFolders))
	for _, row := range pendingFolders {
		p.PendingFolders = append(p.PendingFolders, row)
	}
	slices.SortFunc(p.PendingFolders, func(a, b PendingFolderRow) int {
		if c := strings.Compare(a.FolderID, b.FolderID); c != 0 {
			return c
		}
		return strings.Compare(a.OfferedBy, b.OfferedBy)
	})

	e.projection.Store(p)
}
