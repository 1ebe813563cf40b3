package syncthing

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config mirrors the payload returned by /rest/config, reduced to the fields
// synctui cares about.
type Config struct {
	Version int            `json:"version"`
	Devices []DeviceConfig `json:"devices"`
	Folders []FolderConfig `json:"folders"`
}

// DeviceConfig describes a configured device.
type DeviceConfig struct {
	DeviceID  string   `json:"deviceID"`
	Name      string   `json:"name"`
	Addresses []string `json:"addresses,omitempty"`
}

// FolderConfig describes a configured folder.
type FolderConfig struct {
	ID      string         `json:"id"`
	Label   string         `json:"label"`
	Path    string         `json:"path"`
	Devices []FolderDevice `json:"devices"`
}

// FolderDevice names a device a folder is shared with.
type FolderDevice struct {
	DeviceID           string `json:"deviceID"`
	IntroducedBy       string `json:"introducedBy"`
	EncryptionPassword string `json:"encryptionPassword"`
}

// ConnectionInfo reports a device's transport connection from
// /rest/system/connections.
type ConnectionInfo struct {
	Connected bool   `json:"connected"`
	At        string `json:"at"`
	Address   string `json:"address"`
}

// ParsedAt returns the connection timestamp as time.Time when possible.
func (c ConnectionInfo) ParsedAt() time.Time {
	return parseTime(c.At)
}

// Connections mirrors /rest/system/connections.
type Connections struct {
	Connections map[string]ConnectionInfo `json:"connections"`
}

// PendingDevice describes an unconfigured device that tried to connect,
// keyed by device ID in PendingDevices.
type PendingDevice struct {
	Time    string `json:"time"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// PendingDevices mirrors /rest/cluster/pending/devices.
type PendingDevices map[string]PendingDevice

// PendingFolderOffer describes one device's offer of a folder.
type PendingFolderOffer struct {
	Time             string `json:"time"`
	Label            string `json:"label"`
	ReceiveEncrypted bool   `json:"receiveEncrypted"`
	RemoteEncrypted  bool   `json:"remoteEncrypted"`
}

// PendingFolder groups offers for one folder ID by the offering device.
type PendingFolder struct {
	OfferedBy map[string]PendingFolderOffer `json:"offeredBy"`
}

// PendingFolders mirrors /rest/cluster/pending/folders.
type PendingFolders map[string]PendingFolder

// Snapshot bundles everything a full resync fetches in one shot.
type Snapshot struct {
	LocalID        string
	Config         Config
	Connections    Connections
	PendingDevices PendingDevices
	PendingFolders PendingFolders
}

// Event type names as emitted by /rest/events.
const (
	EventConfigSaved           = "ConfigSaved"
	EventDeviceConnected       = "DeviceConnected"
	EventDeviceDisconnected    = "DeviceDisconnected"
	EventFolderSummary         = "FolderSummary"
	EventStateChanged          = "StateChanged"
	EventFolderErrors          = "FolderErrors"
	EventPendingDevicesChanged = "PendingDevicesChanged"
	EventPendingFoldersChanged = "PendingFoldersChanged"
)

// Event is one entry from the daemon's event feed. ID is the daemon-assigned
// sequence number, increasing by exactly one per event. Data stays raw until
// a typed decode is requested.
type Event struct {
	ID       uint64          `json:"id"`
	GlobalID uint64          `json:"globalID"`
	Time     string          `json:"time"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// ParsedTime returns the event timestamp as time.Time when possible.
func (e Event) ParsedTime() time.Time {
	return parseTime(e.Time)
}

// DeviceConnectedData is the payload of a DeviceConnected event.
type DeviceConnectedData struct {
	ID         string `json:"id"`
	DeviceName string `json:"deviceName"`
	Addr       string `json:"addr"`
	ClientName string `json:"clientName"`
}

// DeviceDisconnectedData is the payload of a DeviceDisconnected event.
type DeviceDisconnectedData struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// ConfigSavedData carries the full new configuration after any config change.
type ConfigSavedData = Config

// FolderSummaryData is the payload of a FolderSummary event.
type FolderSummaryData struct {
	Folder  string        `json:"folder"`
	Summary FolderSummary `json:"summary"`
}

// FolderSummary reports a folder's sync state.
type FolderSummary struct {
	State  string `json:"state"`
	Errors int    `json:"errors"`
}

// StateChangedData is the payload of a StateChanged event.
type StateChangedData struct {
	Folder string `json:"folder"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// FolderErrorsData is the payload of a FolderErrors event.
type FolderErrorsData struct {
	Folder string        `json:"folder"`
	Errors []FolderError `json:"errors"`
}

// FolderError is one file-level error inside a FolderErrors event.
type FolderError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// AddedPendingDevice is one entry in PendingDevicesChanged.added.
type AddedPendingDevice struct {
	DeviceID string `json:"deviceID"`
	Name     string `json:"name"`
	Address  string `json:"address"`
}

// RemovedPendingDevice is one entry in PendingDevicesChanged.removed.
type RemovedPendingDevice struct {
	DeviceID string `json:"deviceID"`
}

// PendingDevicesChangedData is the payload of a PendingDevicesChanged event.
type PendingDevicesChangedData struct {
	Added   []AddedPendingDevice   `json:"added"`
	Removed []RemovedPendingDevice `json:"removed"`
}

// AddedPendingFolder is one entry in PendingFoldersChanged.added.
type AddedPendingFolder struct {
	DeviceID         string `json:"deviceID"`
	FolderID         string `json:"folderID"`
	FolderLabel      string `json:"folderLabel"`
	ReceiveEncrypted bool   `json:"receiveEncrypted"`
}

// RemovedPendingFolder is one entry in PendingFoldersChanged.removed. An
// entry without a device ID means the folder is no longer pending on any
// device.
type RemovedPendingFolder struct {
	DeviceID string `json:"deviceID"`
	FolderID string `json:"folderID"`
}

// PendingFoldersChangedData is the payload of a PendingFoldersChanged event.
type PendingFoldersChangedData struct {
	Added   []AddedPendingFolder   `json:"added"`
	Removed []RemovedPendingFolder `json:"removed"`
}

// DecodeData unmarshals the event payload into dest.
func (e Event) DecodeData(dest any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("decode %s event %d: %w", e.Type, e.ID, err)
	}
	return nil
}

func parseTime(value string) time.Time {
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
