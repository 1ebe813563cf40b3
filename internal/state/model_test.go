package state

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/synctui/synctui/internal/syncthing"
)

func event(t *testing.T, id uint64, typ string, data any) syncthing.Event {
	t.Helper()
	ev := syncthing.Event{ID: id, GlobalID: id, Type: typ, Time: "2024-05-01T10:00:00Z"}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal event data: %v", err)
		}
		ev.Data = raw
	}
	return ev
}

func baseSnapshot() *syncthing.Snapshot {
	return &syncthing.Snapshot{
		LocalID: "LOCAL",
		Config: syncthing.Config{
			Version: 1,
			Devices: []syncthing.DeviceConfig{
				{DeviceID: "LOCAL", Name: "me"},
				{DeviceID: "DEV-A", Name: "alpha"},
			},
			Folders: []syncthing.FolderConfig{
				{
					ID: "docs", Label: "Documents", Path: "/srv/docs",
					Devices: []syncthing.FolderDevice{{DeviceID: "LOCAL"}, {DeviceID: "DEV-A"}},
				},
				{ID: "scratch", Path: "/srv/scratch", Devices: []syncthing.FolderDevice{{DeviceID: "LOCAL"}}},
			},
		},
		Connections: syncthing.Connections{
			Connections: map[string]syncthing.ConnectionInfo{
				"DEV-A": {Connected: true, At: "2024-05-01T09:00:00Z"},
			},
		},
		PendingDevices: syncthing.PendingDevices{
			"DEV-B": {Name: "beta", Address: "10.0.0.2:22000", Time: "2024-05-01T08:00:00Z"},
		},
		PendingFolders: syncthing.PendingFolders{
			"music": {OfferedBy: map[string]syncthing.PendingFolderOffer{
				"DEV-A": {Label: "Music", Time: "2024-05-01T08:30:00Z"},
			}},
		},
	}
}

func TestModel_ApplySnapshotBuildsBaseline(t *testing.T) {
	m := NewModel()
	m.ApplySnapshot(baseSnapshot())

	if m.LocalID() != "LOCAL" {
		t.Fatalf("LocalID = %q, want LOCAL", m.LocalID())
	}
	d, ok := m.Device("DEV-A")
	if !ok || d.Conn != Connected {
		t.Fatalf("DEV-A = %#v ok=%v, want connected device", d, ok)
	}
	f, ok := m.Folder("docs")
	if !ok || f.Share != Shared || len(f.SharedWith) != 1 || f.SharedWith[0] != "DEV-A" {
		t.Fatalf("docs = %#v, want shared with DEV-A only (local excluded)", f)
	}
	if f.Sync != SyncUnknown {
		t.Fatalf("docs sync = %v, want unknown before any status event", f.Sync)
	}
	scratch, _ := m.Folder("scratch")
	if scratch.Share != Unshared {
		t.Fatalf("scratch share = %v, want unshared", scratch.Share)
	}
	if _, ok := m.PendingDevice("DEV-B"); !ok {
		t.Fatal("pending device DEV-B missing")
	}
	if _, ok := m.PendingOffer("music", "DEV-A"); !ok {
		t.Fatal("pending offer music/DEV-A missing")
	}
}

func TestModel_SequenceContiguityAndRebase(t *testing.T) {
	m := NewModel()
	m.ApplySnapshot(baseSnapshot())

	// First event after a snapshot re-bases the cursor at any ID.
	if _, err := m.ApplyEvent(event(t, 41, syncthing.EventStateChanged, syncthing.StateChangedData{Folder: "docs", To: "syncing"})); err != nil {
		t.Fatalf("rebase event returned error: %v", err)
	}
	if m.Seq() != 41 {
		t.Fatalf("Seq = %d, want 41", m.Seq())
	}

	// Strictly consecutive IDs apply cleanly.
	for id := uint64(42); id <= 45; id++ {
		if _, err := m.ApplyEvent(event(t, id, syncthing.EventStateChanged, syncthing.StateChangedData{Folder: "docs", To: "idle"})); err != nil {
			t.Fatalf("event %d returned error: %v", id, err)
		}
	}

	// A skipped ID is refused and the model stays put.
	f, _ := m.Folder("docs")
	syncBefore := f.Sync
	_, err := m.ApplyEvent(event(t, 47, syncthing.EventStateChanged, syncthing.StateChangedData{Folder: "docs", To: "error"}))
	if !errors.Is(err, ErrResyncRequired) {
		t.Fatalf("gap error = %v, want ErrResyncRequired", err)
	}
	if m.Seq() != 45 {
		t.Fatalf("Seq after refused event = %d, want 45", m.Seq())
	}
	f, _ = m.Folder("docs")
	if f.Sync != syncBefore {
		t.Fatalf("folder mutated by refused event: %v, want %v", f.Sync, syncBefore)
	}

	// A regressed ID is refused too.
	if _, err := m.ApplyEvent(event(t, 45, syncthing.EventStateChanged, nil)); !errors.Is(err, ErrResyncRequired) {
		t.Fatalf("regression error = %v, want ErrResyncRequired", err)
	}

	// Snapshot recovery restores full consistency and re-opens the rebase
	// window.
	m.ApplySnapshot(baseSnapshot())
	if _, err := m.ApplyEvent(event(t, 90, syncthing.EventStateChanged, syncthing.StateChangedData{Folder: "docs", To: "idle"})); err != nil {
		t.Fatalf("post-resync rebase returned error: %v", err)
	}
	if m.Seq() != 90 {
		t.Fatalf("Seq after resync = %d, want 90", m.Seq())
	}
}

func TestModel_DeviceConnectionEvents(t *testing.T) {
	m := NewModel()
	m.ApplySnapshot(baseSnapshot())

	if _, err := m.ApplyEvent(event(t, 1, syncthing.EventDeviceDisconnected, syncthing.DeviceDisconnectedData{ID: "DEV-A", Error: "closed"})); err != nil {
		t.Fatalf("disconnect returned error: %v", err)
	}
	d, _ := m.Device("DEV-A")
	if d.Conn != Disconnected {
		t.Fatalf("DEV-A conn = %v, want disconnected", d.Conn)
	}

	// Connection for a device the config does not know yet creates it.
	if _, err := m.ApplyEvent(event(t, 2, syncthing.EventDeviceConnected, syncthing.DeviceConnectedData{ID: "DEV-C", DeviceName: "gamma"})); err != nil {
		t.Fatalf("connect returned error: %v", err)
	}
	d, ok := m.Device("DEV-C")
	if !ok || d.Conn != Connected || d.Name != "gamma" {
		t.Fatalf("DEV-C = %#v ok=%v, want connected gamma", d, ok)
	}
}

func TestModel_PendingOffersReplaceByKey(t *testing.T) {
	m := NewModel()
	m.ApplySnapshot(baseSnapshot())

	// A later offer for the same device replaces the earlier one entirely.
	if _, err := m.ApplyEvent(event(t, 1, syncthing.EventPendingDevicesChanged, syncthing.PendingDevicesChangedData{
		Added: []syncthing.AddedPendingDevice{{DeviceID: "DEV-B", Name: "beta-renamed", Address: "10.0.0.9:22000"}},
	})); err != nil {
		t.Fatalf("pending devices changed returned error: %v", err)
	}
	pd, ok := m.PendingDevice("DEV-B")
	if !ok || pd.Name != "beta-renamed" || pd.Address != "10.0.0.9:22000" {
		t.Fatalf("DEV-B = %#v, want replaced entry", pd)
	}
	view := m.Snapshot()
	if len(view.PendingDevices) != 1 {
		t.Fatalf("pending devices = %d rows, want 1 (no duplicates)", len(view.PendingDevices))
	}

	// Same for folder offers, keyed by (folder, offering device).
	if _, err := m.ApplyEvent(event(t, 2, syncthing.EventPendingFoldersChanged, syncthing.PendingFoldersChangedData{
		Added: []syncthing.AddedPendingFolder{{FolderID: "music", DeviceID: "DEV-A", FolderLabel: "Tunes"}},
	})); err != nil {
		t.Fatalf("pending folders changed returned error: %v", err)
	}
	offer, _ := m.PendingOffer("music", "DEV-A")
	if offer.Label != "Tunes" {
		t.Fatalf("offer label = %q, want Tunes", offer.Label)
	}
	if got := len(m.Snapshot().PendingFolders); got != 1 {
		t.Fatalf("pending folders = %d rows, want 1", got)
	}

	// A removal without a device ID clears the offer everywhere.
	if _, err := m.ApplyEvent(event(t, 3, syncthing.EventPendingFoldersChanged, syncthing.PendingFoldersChangedData{
		Removed: []syncthing.RemovedPendingFolder{{FolderID: "music"}},
	})); err != nil {
		t.Fatalf("pending folder removal returned error: %v", err)
	}
	if _, ok := m.PendingOffer("music", ""); ok {
		t.Fatal("music offer survived blanket removal")
	}
}

func TestModel_ConfigSavedPreservesLiveFieldsAndClearsPending(t *testing.T) {
	m := NewModel()
	m.ApplySnapshot(baseSnapshot())

	if _, err := m.ApplyEvent(event(t, 1, syncthing.EventStateChanged, syncthing.StateChangedData{Folder: "docs", To: "syncing"})); err != nil {
		t.Fatalf("state change returned error: %v", err)
	}

	// New config accepts DEV-B and shares music with DEV-A.
	newCfg := syncthing.Config{
		Version: 2,
		Devices: []syncthing.DeviceConfig{
			{DeviceID: "LOCAL", Name: "me"},
			{DeviceID: "DEV-A", Name: "alpha"},
			{DeviceID: "DEV-B", Name: "beta"},
		},
		Folders: []syncthing.FolderConfig{
			{ID: "docs", Label: "Documents", Path: "/srv/docs",
				Devices: []syncthing.FolderDevice{{DeviceID: "LOCAL"}, {DeviceID: "DEV-A"}}},
			{ID: "music", Label: "Music", Path: "/srv/music",
				Devices: []syncthing.FolderDevice{{DeviceID: "LOCAL"}, {DeviceID: "DEV-A"}}},
		},
	}
	if _, err := m.ApplyEvent(event(t, 2, syncthing.EventConfigSaved, newCfg)); err != nil {
		t.Fatalf("config saved returned error: %v", err)
	}

	docs, _ := m.Folder("docs")
	if docs.Sync != SyncSyncing {
		t.Fatalf("docs sync = %v, want syncing carried across config replace", docs.Sync)
	}
	devA, _ := m.Device("DEV-A")
	if devA.Conn != Connected {
		t.Fatalf("DEV-A conn = %v, want connected carried across config replace", devA.Conn)
	}
	if _, ok := m.PendingDevice("DEV-B"); ok {
		t.Fatal("DEV-B still pending after being configured")
	}
	if _, ok := m.PendingOffer("music", "DEV-A"); ok {
		t.Fatal("music offer still pending after being shared")
	}
	if _, ok := m.Folder("scratch"); ok {
		t.Fatal("scratch survived a config that dropped it")
	}
}

func TestModel_SnapshotIsDeepAndSorted(t *testing.T) {
	m := NewModel()
	m.ApplySnapshot(baseSnapshot())

	view := m.Snapshot()
	if len(view.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(view.Devices))
	}
	// "alpha" sorts before "me".
	if view.Devices[0].Name != "alpha" {
		t.Fatalf("devices[0] = %q, want alpha first", view.Devices[0].Name)
	}
	// "Documents" sorts before "scratch" case-insensitively.
	if view.Folders[0].ID != "docs" {
		t.Fatalf("folders[0] = %q, want docs first", view.Folders[0].ID)
	}

	// Mutating the view must not reach the model.
	view.Folders[0].SharedWith[0] = "HACKED"
	f, _ := m.Folder("docs")
	if f.SharedWith[0] != "DEV-A" {
		t.Fatalf("model folder mutated through view: %v", f.SharedWith)
	}
}

func TestMapSyncState(t *testing.T) {
	cases := map[string]SyncState{
		"idle":         SyncIdle,
		"scanning":     SyncSyncing,
		"syncing":      SyncSyncing,
		"sync-waiting": SyncSyncing,
		"error":        SyncError,
		"outofsync":    SyncError,
		"":             SyncUnknown,
		"mystery":      SyncUnknown,
	}
	for in, want := range cases {
		if got := mapSyncState(in); got != want {
			t.Fatalf("mapSyncState(%q) = %v, want %v", in, got, want)
		}
	}
}
