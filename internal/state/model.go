package state

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/synctui/synctui/internal/syncthing"
)

// ErrResyncRequired reports a gap in the daemon's event sequence. The model
// refuses the event untouched; the caller must refetch a full snapshot.
var ErrResyncRequired = errors.New("event sequence gap: resync required")

// ConnState is a device's transport connection status.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

// String returns the lowercase display form.
func (c ConnState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ShareState is a folder's sharing status.
type ShareState int

const (
	Unshared ShareState = iota
	PendingShare
	Shared
	ShareError
)

// SyncState summarizes a folder's synchronization activity.
type SyncState int

const (
	SyncUnknown SyncState = iota
	SyncIdle
	SyncSyncing
	SyncError
)

// String returns the lowercase display form.
func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncSyncing:
		return "syncing"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// Device is the canonical view of one device as last confirmed by the daemon.
type Device struct {
	ID        string
	Name      string
	Addresses []string
	Conn      ConnState
	LastSeen  time.Time
}

// Folder is the canonical view of one folder as last confirmed by the daemon.
type Folder struct {
	ID         string
	Label      string
	Path       string
	SharedWith []string // device IDs, sorted
	Share      ShareState
	Sync       SyncState
	ErrMsg     string
}

// DisplayName returns the label, falling back to the ID.
func (f Folder) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// PendingDevice is an unconfigured device that announced itself.
type PendingDevice struct {
	DeviceID string
	Name     string
	Address  string
	Time     time.Time
}

// PendingFolder is one device's unaccepted offer to share a folder.
type PendingFolder struct {
	FolderID  string
	OfferedBy string
	Label     string
	Time      time.Time
}

// offerKey uniquely identifies a pending folder offer.
type offerKey struct {
	folder string
	device string
}

// Delta reports which entity kinds an event touched.
type Delta struct {
	Devices bool
	Folders bool
	Pending bool
}

// Model is the canonical in-memory mirror of daemon state, versioned by the
// daemon's event sequence number. It is not goroutine safe: the reconciliation
// engine is its single owner.
type Model struct {
	localID string
	seq     uint64
	// After a snapshot the event cursor is unknown; the first event applied
	// afterwards re-bases the sequence instead of being checked for
	// contiguity.
	rebase bool

	devices        map[string]*Device
	folders        map[string]*Folder
	pendingDevices map[string]*PendingDevice
	pendingFolders map[offerKey]*PendingFolder
}

// NewModel returns an empty model awaiting its first snapshot.
func NewModel() *Model {
	return &Model{
		devices:        make(map[string]*Device),
		folders:        make(map[string]*Folder),
		pendingDevices: make(map[string]*PendingDevice),
		pendingFolders: make(map[offerKey]*PendingFolder),
	}
}

// Seq returns the last applied event sequence number.
func (m *Model) Seq() uint64 { return m.seq }

// LocalID returns the daemon's own device ID.
func (m *Model) LocalID() string { return m.localID }

// Device returns the confirmed device with the given ID.
func (m *Model) Device(id string) (Device, bool) {
	d, ok := m.devices[id]
	if !ok {
		return Device{}, false
	}
	return cloneDevice(d), true
}

// Folder returns the confirmed folder with the given ID.
func (m *Model) Folder(id string) (Folder, bool) {
	f, ok := m.folders[id]
	if !ok {
		return Folder{}, false
	}
	return cloneFolder(f), true
}

// PendingDevice returns the pending introduction for a device ID.
func (m *Model) PendingDevice(id string) (PendingDevice, bool) {
	p, ok := m.pendingDevices[id]
	if !ok {
		return PendingDevice{}, false
	}
	return *p, true
}

// PendingOffer returns the offer of folderID by deviceID. An empty deviceID
// matches any offering device, preferring none in particular.
func (m *Model) PendingOffer(folderID, deviceID string) (PendingFolder, bool) {
	if deviceID != "" {
		p, ok := m.pendingFolders[offerKey{folder: folderID, device: deviceID}]
		if !ok {
			return PendingFolder{}, false
		}
		return *p, true
	}
	for key, p := range m.pendingFolders {
		if key.folder == folderID {
			return *p, true
		}
	}
	return PendingFolder{}, false
}

// ApplySnapshot replaces the entire baseline state. Used on initial connect
// and after a detected sequence gap. The event cursor re-bases on the next
// applied event.
func (m *Model) ApplySnapshot(snap *syncthing.Snapshot) {
	m.localID = snap.LocalID
	m.rebase = true

	m.devices = make(map[string]*Device, len(snap.Config.Devices))
	for _, dc := range snap.Config.Devices {
		d := &Device{
			ID:        dc.DeviceID,
			Name:      dc.Name,
			Addresses: slices.Clone(dc.Addresses),
		}
		if info, ok := snap.Connections.Connections[dc.DeviceID]; ok {
			if info.Connected {
				d.Conn = Connected
			}
			d.LastSeen = info.ParsedAt()
		}
		m.devices[d.ID] = d
	}

	m.folders = make(map[string]*Folder, len(snap.Config.Folders))
	for _, fc := range snap.Config.Folders {
		m.folders[fc.ID] = folderFromConfig(fc, m.localID)
	}

	m.pendingDevices = make(map[string]*PendingDevice, len(snap.PendingDevices))
	for id, pd := range snap.PendingDevices {
		m.pendingDevices[id] = &PendingDevice{
			DeviceID: id,
			Name:     pd.Name,
			Address:  pd.Address,
			Time:     parseWireTime(pd.Time),
		}
	}

	m.pendingFolders = make(map[offerKey]*PendingFolder)
	for folderID, pf := range snap.PendingFolders {
		for deviceID, offer := range pf.OfferedBy {
			key := offerKey{folder: folderID, device: deviceID}
			m.pendingFolders[key] = &PendingFolder{
				FolderID:  folderID,
				OfferedBy: deviceID,
				Label:     offer.Label,
				Time:      parseWireTime(offer.Time),
			}
		}
	}
}

// ApplyEvent applies one incremental daemon event. The event's sequence
// number must be exactly one greater than the last applied, otherwise
// ErrResyncRequired is returned and the model is left untouched. The first
// event after ApplySnapshot re-bases the cursor instead.
func (m *Model) ApplyEvent(ev syncthing.Event) (Delta, error) {
	if !m.rebase && ev.ID != m.seq+1 {
		return Delta{}, fmt.Errorf("event %d after %d: %w", ev.ID, m.seq, ErrResyncRequired)
	}

	delta, err := m.applyPayload(ev)
	if err != nil {
		return Delta{}, err
	}
	m.seq = ev.ID
	m.rebase = false
	return delta, nil
}

func (m *Model) applyPayload(ev syncthing.Event) (Delta, error) {
	switch ev.Type {
	case syncthing.EventDeviceConnected:
		var data syncthing.DeviceConnectedData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		d, ok := m.devices[data.ID]
		if !ok {
			// The daemon can report a connection before the config
			// round-trips; observe the device anyway.
			d = &Device{ID: data.ID}
			m.devices[data.ID] = d
		}
		d.Conn = Connected
		d.LastSeen = ev.ParsedTime()
		if d.Name == "" {
			d.Name = data.DeviceName
		}
		return Delta{Devices: true}, nil

	case syncthing.EventDeviceDisconnected:
		var data syncthing.DeviceDisconnectedData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		if d, ok := m.devices[data.ID]; ok {
			d.Conn = Disconnected
			d.LastSeen = ev.ParsedTime()
		}
		return Delta{Devices: true}, nil

	case syncthing.EventConfigSaved:
		var data syncthing.ConfigSavedData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		m.applyConfig(data)
		return Delta{Devices: true, Folders: true, Pending: true}, nil

	case syncthing.EventFolderSummary:
		var data syncthing.FolderSummaryData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		f, ok := m.folders[data.Folder]
		if !ok {
			return Delta{}, nil
		}
		f.Sync = mapSyncState(data.Summary.State)
		if data.Summary.Errors > 0 {
			f.Sync = SyncError
			f.ErrMsg = fmt.Sprintf("%d items failed to sync", data.Summary.Errors)
		} else if f.Sync != SyncError {
			f.ErrMsg = ""
		}
		return Delta{Folders: true}, nil

	case syncthing.EventStateChanged:
		var data syncthing.StateChangedData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		if f, ok := m.folders[data.Folder]; ok {
			f.Sync = mapSyncState(data.To)
			if f.Sync != SyncError {
				f.ErrMsg = ""
			}
		}
		return Delta{Folders: true}, nil

	case syncthing.EventFolderErrors:
		var data syncthing.FolderErrorsData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		if f, ok := m.folders[data.Folder]; ok {
			f.Sync = SyncError
			if len(data.Errors) > 0 {
				f.ErrMsg = fmt.Sprintf("%s: %s", data.Errors[0].Path, data.Errors[0].Error)
			}
		}
		return Delta{Folders: true}, nil

	case syncthing.EventPendingDevicesChanged:
		var data syncthing.PendingDevicesChangedData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		// A later offer for the same device replaces the earlier one
		// entirely.
		for _, added := range data.Added {
			m.pendingDevices[added.DeviceID] = &PendingDevice{
				DeviceID: added.DeviceID,
				Name:     added.Name,
				Address:  added.Address,
				Time:     ev.ParsedTime(),
			}
		}
		for _, removed := range data.Removed {
			delete(m.pendingDevices, removed.DeviceID)
		}
		return Delta{Pending: true}, nil

	case syncthing.EventPendingFoldersChanged:
		var data syncthing.PendingFoldersChangedData
		if err := ev.DecodeData(&data); err != nil {
			return Delta{}, err
		}
		for _, added := range data.Added {
			key := offerKey{folder: added.FolderID, device: added.DeviceID}
			m.pendingFolders[key] = &PendingFolder{
				FolderID:  added.FolderID,
				OfferedBy: added.DeviceID,
				Label:     added.FolderLabel,
				Time:      ev.ParsedTime(),
			}
		}
		for _, removed := range data.Removed {
			if removed.DeviceID == "" {
				// No longer pending on any device.
				for key := range m.pendingFolders {
					if key.folder == removed.FolderID {
						delete(m.pendingFolders, key)
					}
				}
				continue
			}
			delete(m.pendingFolders, offerKey{folder: removed.FolderID, device: removed.DeviceID})
		}
		return Delta{Pending: true}, nil
	}

	// Unknown event types only advance the sequence cursor.
	return Delta{}, nil
}

// applyConfig replaces configured devices and folders while preserving the
// live fields (connection, sync status) of entries that survive. Pending
// introductions satisfied by the new config are dropped.
func (m *Model) applyConfig(cfg syncthing.Config) {
	devices := make(map[string]*Device, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		d := &Device{
			ID:        dc.DeviceID,
			Name:      dc.Name,
			Addresses: slices.Clone(dc.Addresses),
		}
		if prev, ok := m.devices[dc.DeviceID]; ok {
			d.Conn = prev.Conn
			d.LastSeen = prev.LastSeen
			if d.Name == "" {
				d.Name = prev.Name
			}
		}
		devices[d.ID] = d
		delete(m.pendingDevices, d.ID)
	}
	m.devices = devices

	folders := make(map[string]*Folder, len(cfg.Folders))
	for _, fc := range cfg.Folders {
		f := folderFromConfig(fc, m.localID)
		if prev, ok := m.folders[fc.ID]; ok {
			f.Sync = prev.Sync
			f.ErrMsg = prev.ErrMsg
		}
		folders[f.ID] = f
		for _, deviceID := range f.SharedWith {
			delete(m.pendingFolders, offerKey{folder: f.ID, device: deviceID})
		}
	}
	m.folders = folders
}

func folderFromConfig(fc syncthing.FolderConfig, localID string) *Folder {
	f := &Folder{
		ID:    fc.ID,
		Label: fc.Label,
		Path:  fc.Path,
		Share: Unshared,
		Sync:  SyncUnknown,
	}
	for _, fd := range fc.Devices {
		if fd.DeviceID == localID {
			continue
		}
		f.SharedWith = append(f.SharedWith, fd.DeviceID)
	}
	slices.Sort(f.SharedWith)
	if len(f.SharedWith) > 0 {
		f.Share = Shared
	}
	return f
}

// View is a deep, immutable copy of the model used for projection building.
type View struct {
	LocalID        string
	Seq            uint64
	Devices        []Device
	Folders        []Folder
	PendingDevices []PendingDevice
	PendingFolders []PendingFolder
}

// Snapshot returns a deep copy of the current state with entities sorted by
// display name (case-insensitive), then ID.
func (m *Model) Snapshot() View {
	view := View{LocalID: m.localID, Seq: m.seq}

	view.Devices = make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		view.Devices = append(view.Devices, cloneDevice(d))
	}
	slices.SortFunc(view.Devices, func(a, b Device) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	view.Folders = make([]Folder, 0, len(m.folders))
	for _, f := range m.folders {
		view.Folders = append(view.Folders, cloneFolder(f))
	}
	slices.SortFunc(view.Folders, func(a, b Folder) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	view.PendingDevices = make([]PendingDevice, 0, len(m.pendingDevices))
	for _, p := range m.pendingDevices {
		view.PendingDevices = append(view.PendingDevices, *p)
	}
	slices.SortFunc(view.PendingDevices, func(a, b PendingDevice) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.DeviceID, b.DeviceID)
	})

	view.PendingFolders = make([]PendingFolder, 0, len(m.pendingFolders))
	for _, p := range m.pendingFolders {
		view.PendingFolders = append(view.PendingFolders, *p)
	}
	slices.SortFunc(view.PendingFolders, func(a, b PendingFolder) int {
		if c := strings.Compare(a.FolderID, b.FolderID); c != 0 {
			return c
		}
		return strings.Compare(a.OfferedBy, b.OfferedBy)
	})

	return view
}

func cloneDevice(d *Device) Device {
	dup := *d
	dup.Addresses = slices.Clone(d.Addresses)
	return dup
}

func cloneFolder(f *Folder) Folder {
	dup := *f
	dup.SharedWith = slices.Clone(f.SharedWith)
	return dup
}

// mapSyncState folds the daemon's folder state strings into the summary
// statuses synctui displays.
func mapSyncState(s string) SyncState {
	switch s {
	case "idle":
		return SyncIdle
	case "scanning", "scan-waiting", "syncing", "sync-preparing", "sync-waiting", "cleaning", "clean-waiting":
		return SyncSyncing
	case "error", "outofsync":
		return SyncError
	default:
		return SyncUnknown
	}
}

func parseWireTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
