package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/synctui/synctui/internal/syncthing"
)

// fakeAPI records mutations and returns a configurable error.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []string
	sendErr error
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.sendErr
}

func (f *fakeAPI) Connect(context.Context) (*syncthing.Snapshot, error) {
	return nil, errors.New("not used")
}
func (f *fakeAPI) FetchEvents(context.Context, uint64) ([]syncthing.Event, error) {
	return nil, errors.New("not used")
}
func (f *fakeAPI) PutDevice(_ context.Context, d syncthing.DeviceConfig) error {
	return f.record("put-device " + d.DeviceID)
}
func (f *fakeAPI) PutFolder(_ context.Context, fc syncthing.FolderConfig) error {
	return f.record("put-folder " + fc.ID)
}
func (f *fakeAPI) DeleteDevice(_ context.Context, id string) error {
	return f.record("delete-device " + id)
}
func (f *fakeAPI) DeleteFolder(_ context.Context, id string) error {
	return f.record("delete-folder " + id)
}
func (f *fakeAPI) DismissPendingDevice(_ context.Context, id string) error {
	return f.record("dismiss-device " + id)
}
func (f *fakeAPI) DismissPendingFolder(_ context.Context, folderID, deviceID string) error {
	return f.record("dismiss-folder " + folderID + "/" + deviceID)
}

var _ syncthing.API = (*fakeAPI)(nil)

func testSnapshot() *syncthing.Snapshot {
	return &syncthing.Snapshot{
		LocalID: "LOCAL",
		Config: syncthing.Config{
			Devices: []syncthing.DeviceConfig{
				{DeviceID: "LOCAL", Name: "me"},
				{DeviceID: "DEV-A", Name: "alpha"},
			},
			Folders: []syncthing.FolderConfig{
				{ID: "docs", Label: "Documents", Path: "/srv/docs",
					Devices: []syncthing.FolderDevice{{DeviceID: "LOCAL"}, {DeviceID: "DEV-A"}}},
			},
		},
		PendingDevices: syncthing.PendingDevices{
			"DEV-B": {Name: "beta", Address: "10.0.0.2:22000"},
		},
		PendingFolders: syncthing.PendingFolders{
			"music": {OfferedBy: map[string]syncthing.PendingFolderOffer{
				"DEV-A": {Label: "Music"},
			}},
		},
	}
}

// newTestEngine builds an engine and seeds it with the base snapshot. Tests
// drive the intake handlers directly; nothing runs concurrently.
func newTestEngine(t *testing.T, api *fakeAPI, opts ...Option) *Engine {
	t.Helper()
	e := New(api, opts...)
	e.handle(snapshotMsg{snap: testSnapshot()})
	return e
}

func submit(t *testing.T, e *Engine, intent Intent) (*Handle, error) {
	t.Helper()
	reply := make(chan submitReply, 1)
	e.handle(submitMsg{intent: intent, reply: reply})
	r := <-reply
	return r.handle, r.err
}

// drainSendResult waits for the dispatch goroutine's result and feeds it
// through the engine.
func drainSendResult(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case msg := <-e.intake:
		e.handle(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch result")
	}
}

func mkEvent(t *testing.T, id uint64, typ string, data any) syncthing.Event {
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

func resolved(t *testing.T, h *Handle) Outcome {
	t.Helper()
	select {
	case <-h.Done():
		return h.Outcome()
	case <-time.After(2 * time.Second):
		t.Fatal("handle never resolved")
		return Outcome{}
	}
}

func findDevice(p *Projection, id string) (DeviceRow, bool) {
	for _, d := range p.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceRow{}, false
}

func findFolder(p *Projection, id string) (FolderRow, bool) {
	for _, f := range p.Folders {
		if f.ID == id {
			return f, true
		}
	}
	return FolderRow{}, false
}

func TestSubmit_AcceptDeviceIsOptimisticThenConfirmed(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)

	h, err := submit(t, e, Intent{Kind: AcceptDevice, Target: "DEV-B"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	// The projection reflects the accept immediately, before any daemon
	// confirmation.
	p := e.Projection()
	row, ok := findDevice(p, "DEV-B")
	if !ok {
		t.Fatal("DEV-B not shown as device after optimistic accept")
	}
	if row.Badge != "accepting" || row.Name != "beta" {
		t.Fatalf("DEV-B row = %#v, want accepting badge and pending name", row)
	}
	if len(p.PendingDevices) != 0 {
		t.Fatalf("pending devices = %v, want none while accept queued", p.PendingDevices)
	}

	drainSendResult(t, e) // transport 2xx: still unconfirmed
	select {
	case <-h.Done():
		t.Fatal("action resolved by transport response alone")
	default:
	}

	// The confirming ConfigSaved event resolves the action.
	cfg := testSnapshot().Config
	cfg.Devices = append(cfg.Devices, syncthing.DeviceConfig{DeviceID: "DEV-B", Name: "beta"})
	e.handle(eventMsg{ev: mkEvent(t, 1, syncthing.EventConfigSaved, cfg)})

	out := resolved(t, h)
	if out.State != Confirmed || out.Err != nil {
		t.Fatalf("outcome = %#v, want confirmed", out)
	}
	row, _ = findDevice(e.Projection(), "DEV-B")
	if row.Badge != "" {
		t.Fatalf("badge = %q after confirmation, want none", row.Badge)
	}
}

func TestSubmit_UnknownTargetAndConflicts(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)

	if _, err := submit(t, e, Intent{Kind: AcceptDevice, Target: "DEV-NOPE"}); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("accept unknown device error = %v, want ErrUnknownTarget", err)
	}

	h1, err := submit(t, e, Intent{Kind: DeleteFolder, Target: "docs"})
	if err != nil {
		t.Fatalf("first delete returned error: %v", err)
	}
	// Repeated delete merges instead of queueing a duplicate.
	h2, err := submit(t, e, Intent{Kind: DeleteFolder, Target: "docs"})
	if err != nil {
		t.Fatalf("second delete returned error: %v", err)
	}
	if h1 != h2 {
		t.Fatal("second delete produced a new action, want merged handle")
	}
	if got := len(e.queue.all()); got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}

	// Any other mutation on a target queued for delete conflicts.
	if _, err := submit(t, e, Intent{Kind: ModifyFolder, Target: "docs", Payload: Payload{Label: "X"}}); !errors.Is(err, ErrConflict) {
		t.Fatalf("modify during delete error = %v, want ErrConflict", err)
	}

	// The optimistic overlay hides the folder entirely.
	if _, ok := findFolder(e.Projection(), "docs"); ok {
		t.Fatal("docs still visible while delete queued")
	}
}

func TestSubmit_DaemonRejectionRevertsOverlay(t *testing.T) {
	api := &fakeAPI{sendErr: &syncthing.MutationError{Status: http.StatusBadRequest, Reason: "no such device"}}
	e := newTestEngine(t, api)

	h, err := submit(t, e, Intent{Kind: AcceptDevice, Target: "DEV-B"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	drainSendResult(t, e)

	out := resolved(t, h)
	if out.State != Failed {
		t.Fatalf("outcome = %#v, want failed", out)
	}
	var mutErr *syncthing.MutationError
	if !errors.As(out.Err, &mutErr) {
		t.Fatalf("outcome err = %v, want MutationError", out.Err)
	}

	// Overlay reverted: DEV-B is a pending introduction again, not a device.
	p := e.Projection()
	if _, ok := findDevice(p, "DEV-B"); ok {
		t.Fatal("DEV-B still shown as device after rejection")
	}
	if len(p.PendingDevices) != 1 || p.PendingDevices[0].DeviceID != "DEV-B" {
		t.Fatalf("pending devices = %v, want DEV-B restored", p.PendingDevices)
	}
	if n, ok := p.LastNotice(); !ok || n.Level != NoticeError {
		t.Fatalf("notice = %#v ok=%v, want error notice", n, ok)
	}
}

func TestEvent_NewerOfferSupersedesQueuedAccept(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)

	h, err := submit(t, e, Intent{Kind: AcceptFolder, Target: "music", Payload: Payload{Path: "/srv/music"}})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	p := e.Projection()
	if _, ok := findFolder(p, "music"); !ok {
		t.Fatal("music not shown optimistically after accept")
	}
	if len(p.PendingFolders) != 0 {
		t.Fatalf("pending folders = %v, want hidden while accept queued", p.PendingFolders)
	}

	// A newer offer for the same (folder, device) key wins over the queued
	// local action.
	e.handle(eventMsg{ev: mkEvent(t, 1, syncthing.EventPendingFoldersChanged, syncthing.PendingFoldersChangedData{
		Added: []syncthing.AddedPendingFolder{{FolderID: "music", DeviceID: "DEV-A", FolderLabel: "Tunes"}},
	})})

	out := resolved(t, h)
	if out.State != Failed || !errors.Is(out.Err, ErrSuperseded) {
		t.Fatalf("outcome = %#v, want failed superseded", out)
	}
	p = e.Projection()
	if _, ok := findFolder(p, "music"); ok {
		t.Fatal("optimistic folder persisted past supersession")
	}
	if len(p.PendingFolders) != 1 || p.PendingFolders[0].Label != "Tunes" {
		t.Fatalf("pending folders = %v, want the newer Tunes offer", p.PendingFolders)
	}
}

func TestEvent_ConfigChangeSupersedesQueuedDelete(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)

	h, err := submit(t, e, Intent{Kind: DeleteFolder, Target: "docs"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if _, ok := findFolder(e.Projection(), "docs"); ok {
		t.Fatal("docs still visible while delete queued")
	}

	// The daemon saves a config that shares the doomed folder with another
	// device: the newer remote edit wins over the queued delete.
	cfg := testSnapshot().Config
	cfg.Devices = append(cfg.Devices, syncthing.DeviceConfig{DeviceID: "DEV-B", Name: "beta"})
	cfg.Folders[0].Devices = append(cfg.Folders[0].Devices, syncthing.FolderDevice{DeviceID: "DEV-B"})
	e.handle(eventMsg{ev: mkEvent(t, 1, syncthing.EventConfigSaved, cfg)})

	out := resolved(t, h)
	if out.State != Failed || !errors.Is(out.Err, ErrSuperseded) {
		t.Fatalf("outcome = %#v, want failed superseded", out)
	}
	if got := len(e.queue.all()); got != 0 {
		t.Fatalf("queue length = %d, want 0", got)
	}

	// The overlay is dropped: the folder shows again, with the new share.
	f, ok := findFolder(e.Projection(), "docs")
	if !ok {
		t.Fatal("docs hidden after supersession, want folder restored")
	}
	if !slices.Contains(f.SharedWith, "DEV-B") {
		t.Fatalf("docs shared with %v, want DEV-B included", f.SharedWith)
	}
}

func TestEvent_RepeatedOfferKeepsQueuedAccept(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)

	h, err := submit(t, e, Intent{Kind: AcceptDevice, Target: "DEV-B"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	drainSendResult(t, e)

	// The daemon re-announces pending introductions on every reconnect. An
	// offer identical to the one being accepted is no contradiction.
	e.handle(eventMsg{ev: mkEvent(t, 1, syncthing.EventPendingDevicesChanged, syncthing.PendingDevicesChangedData{
		Added: []syncthing.AddedPendingDevice{{DeviceID: "DEV-B", Name: "beta", Address: "10.0.0.2:22000"}},
	})})

	select {
	case <-h.Done():
		t.Fatalf("identical re-offer resolved the action: %#v", h.Outcome())
	default:
	}
	if got := len(e.queue.all()); got != 1 {
		t.Fatalf("queue length = %d, want the accept still queued", got)
	}

	// The eventual config confirmation resolves it as usual.
	cfg := testSnapshot().Config
	cfg.Devices = append(cfg.Devices, syncthing.DeviceConfig{DeviceID: "DEV-B", Name: "beta"})
	e.handle(eventMsg{ev: mkEvent(t, 2, syncthing.EventConfigSaved, cfg)})

	out := resolved(t, h)
	if out.State != Confirmed || out.Err != nil {
		t.Fatalf("outcome = %#v, want confirmed", out)
	}
}

func TestEvent_GapTriggersResyncAndKeepsActions(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)
	e.handle(eventMsg{ev: mkEvent(t, 10, syncthing.EventStateChanged, syncthing.StateChangedData{Folder: "docs", To: "idle"})})

	h, err := submit(t, e, Intent{Kind: DeleteFolder, Target: "docs"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	// Sequence gap: 10 -> 12.
	e.handle(eventMsg{ev: mkEvent(t, 12, syncthing.EventStateChanged, syncthing.StateChangedData{Folder: "docs", To: "idle"})})

	if !e.Projection().Refreshing {
		t.Fatal("projection not marked refreshing after gap")
	}
	select {
	case <-e.ResyncRequests():
	default:
		t.Fatal("no resync requested after gap")
	}
	if len(e.queue.all()) != 1 {
		t.Fatalf("queue = %d actions after gap, want the delete kept", len(e.queue.all()))
	}

	// Fresh snapshot no longer contains docs: the queued delete is
	// satisfied and confirms.
	snap := testSnapshot()
	snap.Config.Folders = nil
	e.handle(snapshotMsg{snap: snap})

	out := resolved(t, h)
	if out.State != Confirmed {
		t.Fatalf("outcome = %#v, want confirmed by snapshot", out)
	}
	if e.Projection().Refreshing {
		t.Fatal("refreshing flag survived the snapshot")
	}
}

func TestSnapshot_VanishedOfferSupersedesQueuedAccept(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)

	h, err := submit(t, e, Intent{Kind: AcceptDevice, Target: "DEV-B"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	// Resync returns a world where DEV-B neither pends nor exists.
	snap := testSnapshot()
	snap.PendingDevices = syncthing.PendingDevices{}
	e.handle(snapshotMsg{snap: snap})

	out := resolved(t, h)
	if out.State != Failed || !errors.Is(out.Err, ErrSuperseded) {
		t.Fatalf("outcome = %#v, want failed superseded", out)
	}
}

func TestProjection_StallBadgeIsAdvisory(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	api := &fakeAPI{}
	e := newTestEngine(t, api, WithClock(clock), WithStallAfter(5*time.Second))

	_, err := submit(t, e, Intent{Kind: AcceptDevice, Target: "DEV-B"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	row, _ := findDevice(e.Projection(), "DEV-B")
	if row.Stalled {
		t.Fatal("fresh action already stalled")
	}

	now = now.Add(6 * time.Second)
	e.handle(tickMsg{})

	row, _ = findDevice(e.Projection(), "DEV-B")
	if !row.Stalled {
		t.Fatal("action not marked stalled after window")
	}
	if got := e.queue.all()[0].State; got != Sent {
		t.Fatalf("action state = %v, want untouched Sent (stall is advisory)", got)
	}
}

func TestDeviceIDPayload_PureFunctionOfConfirmedState(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(t, api)

	first := e.DeviceIDPayload("DEV-A")
	if first != "DEV-A" {
		t.Fatalf("payload = %q, want DEV-A verbatim", first)
	}
	if got := e.DeviceIDPayload("LOCAL"); got != "LOCAL" {
		t.Fatalf("local payload = %q, want LOCAL", got)
	}
	if got := e.DeviceIDPayload("DEV-NOPE"); got != "" {
		t.Fatalf("unknown payload = %q, want empty", got)
	}

	// Queued mutations never influence the payload.
	if _, err := submit(t, e, Intent{Kind: DeleteDevice, Target: "DEV-A"}); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if got := e.DeviceIDPayload("DEV-A"); got != first {
		t.Fatalf("payload changed to %q with queued delete, want %q", got, first)
	}
}

func TestEngine_RunIntegration(t *testing.T) {
	api := &fakeAPI{}
	e := New(api, WithStallAfter(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.PushSnapshot(testSnapshot())
	e.StreamUp()

	h, err := e.Submit(ctx, Intent{Kind: RejectDevice, Target: "DEV-B"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	e.PushEvent(mkEvent(t, 1, syncthing.EventPendingDevicesChanged, syncthing.PendingDevicesChangedData{
		Removed: []syncthing.RemovedPendingDevice{{DeviceID: "DEV-B"}},
	}))

	out := resolved(t, h)
	if out.State != Confirmed {
		t.Fatalf("outcome = %#v, want confirmed", out)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		p := e.Projection()
		if p.Connected && len(p.PendingDevices) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("projection never converged: %#v", p)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
