package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/synctui/synctui/internal/state"
	"github.com/synctui/synctui/internal/syncthing"
)

var (
	// ErrConflict reports an intent colliding with an incompatible queued
	// action on the same target.
	ErrConflict = errors.New("conflicting action already queued for target")
	// ErrSuperseded reports a queued action invalidated by a newer remote
	// change.
	ErrSuperseded = errors.New("action superseded by newer remote change")
	// ErrUnknownTarget reports an intent against an entity the daemon does
	// not know.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrStopped reports a submission against an engine whose Run loop has
	// exited.
	ErrStopped = errors.New("engine stopped")
)

// message is one unit of work for the engine's single intake point.
type message interface{ isMessage() }

type eventMsg struct{ ev syncthing.Event }
type snapshotMsg struct{ snap *syncthing.Snapshot }
type streamUpMsg struct{}
type streamDownMsg struct{ err error }
type tickMsg struct{}

type submitReply struct {
	handle *Handle
	err    error
}

type submitMsg struct {
	intent Intent
	reply  chan submitReply
}

type sendResultMsg struct {
	actionID uint64
	err      error
}

func (eventMsg) isMessage()      {}
func (snapshotMsg) isMessage()   {}
func (streamUpMsg) isMessage()   {}
func (streamDownMsg) isMessage() {}
func (tickMsg) isMessage()       {}
func (submitMsg) isMessage()     {}
func (sendResultMsg) isMessage() {}

const (
	intakeBuffer      = 64
	defaultStallAfter = 10 * time.Second
	defaultTick       = time.Second
	maxNotices        = 20
)

// Engine is the single authority over the remote state model and the action
// queue. All transport events and operator intents funnel through one intake
// channel and are processed sequentially by Run; the rendering layer only
// ever sees immutable projections.
type Engine struct {
	api syncthing.API

	model *state.Model
	queue *actionQueue

	intake chan message
	resync chan struct{}
	done   chan struct{}

	projection atomic.Pointer[Projection]

	notices    []Notice
	connected  bool
	refreshing bool
	// gen counts applied snapshots; together with the event sequence it
	// orders remote changes against action submission versions across
	// resyncs.
	gen uint64

	ctx        context.Context
	stallAfter time.Duration
	tickEvery  time.Duration
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStallAfter overrides how long an unresolved action may wait before the
// projection marks it stalled.
func WithStallAfter(d time.Duration) Option {
	return func(e *Engine) { e.stallAfter = d }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine around the given daemon API.
func New(api syncthing.API, opts ...Option) *Engine {
	e := &Engine{
		api:        api,
		model:      state.NewModel(),
		queue:      &actionQueue{},
		intake:     make(chan message, intakeBuffer),
		resync:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		ctx:        context.Background(),
		stallAfter: defaultStallAfter,
		tickEvery:  defaultTick,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rebuildProjection()
	return e
}

// Run processes intake messages until the context is cancelled. Everything
// that mutates the model or the queue happens on this goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.ctx = ctx
	defer close(e.done)

	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.intake:
			e.handle(msg)
		case <-ticker.C:
			e.handle(tickMsg{})
		}
	}
}

// Projection returns the current render-ready snapshot. Non-blocking, always
// complete, never nil.
func (e *Engine) Projection() *Projection {
	return e.projection.Load()
}

// DeviceIDPayload returns the exact text to encode as a scannable code for
// the given device: the confirmed device ID verbatim, or the empty string for
// unknown devices. Queued mutations never influence the payload.
func (e *Engine) DeviceIDPayload(deviceID string) string {
	p := e.Projection()
	if deviceID == p.LocalID && deviceID != "" {
		return deviceID
	}
	if _, ok := p.confirmed[deviceID]; ok {
		return deviceID
	}
	return ""
}

// Submit validates and enqueues an operator intent. It returns a handle for
// tracking completion, ErrConflict when an incompatible action is already
// queued for the target, or ErrUnknownTarget. Repeated deletes of the same
// target merge into the already-queued action.
func (e *Engine) Submit(ctx context.Context, intent Intent) (*Handle, error) {
	reply := make(chan submitReply, 1)
	select {
	case e.intake <- submitMsg{intent: intent, reply: reply}:
	case <-e.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.handle, r.err
	case <-e.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PushEvent hands one daemon event to the engine.
func (e *Engine) PushEvent(ev syncthing.Event) { e.push(eventMsg{ev: ev}) }

// PushSnapshot hands a full resync snapshot to the engine.
func (e *Engine) PushSnapshot(snap *syncthing.Snapshot) { e.push(snapshotMsg{snap: snap}) }

// StreamUp reports that the transport's event stream is connected.
func (e *Engine) StreamUp() { e.push(streamUpMsg{}) }

// StreamDown reports that the transport lost the daemon.
func (e *Engine) StreamDown(err error) { e.push(streamDownMsg{err: err}) }

// ResyncRequests signals when the engine needs a full snapshot refetch. The
// stream pump drains this and answers with PushSnapshot.
func (e *Engine) ResyncRequests() <-chan struct{} { return e.resync }

// Refresh asks the stream pump for a fresh snapshot on demand.
func (e *Engine) Refresh() { e.requestResync() }

func (e *Engine) push(msg message) {
	select {
	case e.intake <- msg:
	case <-e.done:
	}
}

func (e *Engine) requestResync() {
	select {
	case e.resync <- struct{}{}:
	default:
	}
}

// handle processes one intake message and rebuilds the projection. The
// projection is regenerated after every message, so readers always observe a
// fully reconciled snapshot.
func (e *Engine) handle(msg message) {
	switch m := msg.(type) {
	case submitMsg:
		handle, err := e.handleSubmit(m.intent)
		m.reply <- submitReply{handle: handle, err: err}
	case eventMsg:
		e.handleEvent(m.ev)
	case snapshotMsg:
		e.handleSnapshot(m.snap)
	case sendResultMsg:
		e.handleSendResult(m.actionID, m.err)
	case streamUpMsg:
		e.connected = true
	case streamDownMsg:
		if e.connected {
			e.notice(NoticeWarn, fmt.Sprintf("daemon unreachable: %v", m.err))
		}
		e.connected = false
	case tickMsg:
		// Stall badges depend on wall time only; the rebuild below
		// refreshes them.
	}
	e.rebuildProjection()
}

func (e *Engine) handleSubmit(intent Intent) (*Handle, error) {
	intent, err := e.validate(intent)
	if err != nil {
		return nil, err
	}

	if c := e.queue.conflicting(intent.Target, intent.Kind.Class()); c != nil {
		// Repeated delete is idempotent: hand back the queued action.
		if c.Kind == intent.Kind && intent.Kind.Class() == ClassDelete {
			return c.handle, nil
		}
		return nil, fmt.Errorf("%s blocked by queued %s: %w", intent.Kind, c.Kind, ErrConflict)
	}

	call, err := e.buildCall(intent)
	if err != nil {
		return nil, err
	}

	a := &Action{
		Kind:        intent.Kind,
		Target:      intent.Target,
		Payload:     intent.Payload,
		State:       Queued,
		SubmittedAt: e.now(),
		Seq:         e.model.Seq(),
		gen:         e.gen,
		observed:    e.observe(intent),
	}
	e.queue.enqueue(a)
	a.handle = newHandle(a.ID, a.Kind, a.Target)

	a.State = Sent
	ctx := e.ctx
	id := a.ID
	go func() {
		err := call(ctx)
		e.push(sendResultMsg{actionID: id, err: err})
	}()

	return a.handle, nil
}

// validate checks an intent against current confirmed state and normalizes
// it (resolving which device offered a folder when the caller left it open).
func (e *Engine) validate(intent Intent) (Intent, error) {
	if intent.Target == "" {
		return intent, fmt.Errorf("intent target required")
	}
	switch intent.Kind {
	case AcceptDevice, RejectDevice:
		if _, ok := e.model.PendingDevice(intent.Target); !ok {
			return intent, fmt.Errorf("no pending device %s: %w", intent.Target, ErrUnknownTarget)
		}
	case DeleteDevice:
		if _, ok := e.model.Device(intent.Target); !ok {
			return intent, fmt.Errorf("no device %s: %w", intent.Target, ErrUnknownTarget)
		}
	case AcceptFolder, RejectFolder:
		offer, ok := e.model.PendingOffer(intent.Target, intent.Payload.Device)
		if !ok {
			return intent, fmt.Errorf("no pending offer for folder %s: %w", intent.Target, ErrUnknownTarget)
		}
		intent.Payload.Device = offer.OfferedBy
		if intent.Kind == AcceptFolder && intent.Payload.Path == "" {
			return intent, fmt.Errorf("accept-folder requires a local path")
		}
	case AddFolder:
		if intent.Payload.Path == "" {
			return intent, fmt.Errorf("add-folder requires a local path")
		}
		if _, ok := e.model.Folder(intent.Target); ok {
			return intent, fmt.Errorf("folder %s already exists: %w", intent.Target, ErrConflict)
		}
	case ModifyFolder, DeleteFolder:
		if _, ok := e.model.Folder(intent.Target); !ok {
			return intent, fmt.Errorf("no folder %s: %w", intent.Target, ErrUnknownTarget)
		}
	case ShareFolder:
		if _, ok := e.model.Folder(intent.Target); !ok {
			return intent, fmt.Errorf("no folder %s: %w", intent.Target, ErrUnknownTarget)
		}
		if _, ok := e.model.Device(intent.Payload.Device); !ok {
			return intent, fmt.Errorf("no device %s to share with: %w", intent.Payload.Device, ErrUnknownTarget)
		}
	}
	return intent, nil
}

// observe captures the shape of the intent's target as the model confirms it
// right now. Supersession checks compare remote changes against this instead
// of mere presence, so the daemon replaying an unchanged introduction or
// config does not count as a contradiction.
func (e *Engine) observe(intent Intent) observedState {
	switch intent.Kind {
	case AcceptDevice, RejectDevice:
		if pd, ok := e.model.PendingDevice(intent.Target); ok {
			return observedState{label: pd.Name, path: pd.Address}
		}
	case DeleteDevice:
		if d, ok := e.model.Device(intent.Target); ok {
			return observedState{label: d.Name}
		}
	case AcceptFolder, RejectFolder:
		if offer, ok := e.model.PendingOffer(intent.Target, intent.Payload.Device); ok {
			return observedState{label: offer.Label}
		}
	case ModifyFolder, ShareFolder, DeleteFolder:
		if f, ok := e.model.Folder(intent.Target); ok {
			return folderShape(f)
		}
	}
	return observedState{}
}

func folderShape(f state.Folder) observedState {
	return observedState{label: f.Label, path: f.Path, shared: strings.Join(f.SharedWith, " ")}
}

// buildCall captures the transport request for an intent against the current
// confirmed state, so the dispatch goroutine touches neither model nor queue.
func (e *Engine) buildCall(intent Intent) (func(context.Context) error, error) {
	api := e.api
	target := intent.Target
	switch intent.Kind {
	case AcceptDevice:
		name := intent.Payload.Name
		if name == "" {
			if pd, ok := e.model.PendingDevice(target); ok {
				name = pd.Name
			}
		}
		device := syncthing.DeviceConfig{DeviceID: target, Name: name}
		return func(ctx context.Context) error { return api.PutDevice(ctx, device) }, nil

	case RejectDevice:
		return func(ctx context.Context) error { return api.DismissPendingDevice(ctx, target) }, nil

	case DeleteDevice:
		return func(ctx context.Context) error { return api.DeleteDevice(ctx, target) }, nil

	case AcceptFolder:
		label := intent.Payload.Label
		if label == "" {
			if offer, ok := e.model.PendingOffer(target, intent.Payload.Device); ok {
				label = offer.Label
			}
		}
		folder := syncthing.FolderConfig{
			ID:    target,
			Label: label,
			Path:  intent.Payload.Path,
			Devices: []syncthing.FolderDevice{
				{DeviceID: e.model.LocalID()},
				{DeviceID: intent.Payload.Device},
			},
		}
		return func(ctx context.Context) error { return api.PutFolder(ctx, folder) }, nil

	case RejectFolder:
		device := intent.Payload.Device
		return func(ctx context.Context) error { return api.DismissPendingFolder(ctx, target, device) }, nil

	case AddFolder, ModifyFolder, ShareFolder:
		folder := e.folderConfig(intent)
		return func(ctx context.Context) error { return api.PutFolder(ctx, folder) }, nil

	case DeleteFolder:
		return func(ctx context.Context) error { return api.DeleteFolder(ctx, target) }, nil
	}
	return nil, fmt.Errorf("unsupported intent kind %v", intent.Kind)
}

// folderConfig assembles the upsert payload for add/modify/share, merging the
// intent with the existing folder.
func (e *Engine) folderConfig(intent Intent) syncthing.FolderConfig {
	existing, _ := e.model.Folder(intent.Target)

	label := intent.Payload.Label
	if label == "" {
		label = existing.Label
	}
	path := intent.Payload.Path
	if path == "" {
		path = existing.Path
	}

	shared := intent.Payload.Devices
	if shared == nil {
		shared = existing.SharedWith
	}
	if intent.Kind == ShareFolder && !slices.Contains(shared, intent.Payload.Device) {
		shared = append(slices.Clone(shared), intent.Payload.Device)
	}

	devices := []syncthing.FolderDevice{{DeviceID: e.model.LocalID()}}
	for _, id := range shared {
		if id == e.model.LocalID() {
			continue
		}
		devices = append(devices, syncthing.FolderDevice{DeviceID: id})
	}
	return syncthing.FolderConfig{ID: intent.Target, Label: label, Path: path, Devices: devices}
}

func (e *Engine) handleEvent(ev syncthing.Event) {
	delta, err := e.model.ApplyEvent(ev)
	if err != nil {
		if errors.Is(err, state.ErrResyncRequired) {
			e.refreshing = true
			e.requestResync()
			e.notice(NoticeInfo, "event stream gap detected, refreshing")
		} else {
			// Undecodable payload: state is untouched; the only safe
			// recovery is the same full refetch.
			log.Printf("apply event %d: %v", ev.ID, err)
			e.refreshing = true
			e.requestResync()
		}
		return
	}

	for _, a := range slices.Clone(e.queue.all()) {
		if !relevant(delta, a.Kind) {
			continue
		}
		// Satisfaction wins: an action's own confirming config save always
		// differs from what it observed at submit.
		switch {
		case e.satisfied(a):
			e.confirm(a)
		case e.supersededBy(ev, a):
			e.fail(a, fmt.Errorf("%s %s: %w", a.Kind, a.Target, ErrSuperseded))
		}
	}
}

// relevant reports whether the delta covers the entities the action's
// resolution depends on.
func relevant(d state.Delta, k Kind) bool {
	switch k {
	case AcceptDevice, RejectDevice:
		return d.Devices || d.Pending
	case DeleteDevice:
		return d.Devices
	case AcceptFolder, RejectFolder:
		return d.Folders || d.Pending
	default:
		return d.Folders
	}
}

func (e *Engine) handleSnapshot(snap *syncthing.Snapshot) {
	e.model.ApplySnapshot(snap)
	e.gen++
	e.refreshing = false
	e.connected = true

	// Pending actions survive a resync; re-validate them against the fresh
	// baseline.
	for _, a := range slices.Clone(e.queue.all()) {
		switch {
		case e.satisfied(a):
			e.confirm(a)
		case e.invalidated(a):
			e.fail(a, fmt.Errorf("%s %s: %w", a.Kind, a.Target, ErrSuperseded))
		}
	}
}

func (e *Engine) handleSendResult(actionID uint64, err error) {
	a := e.queue.byID(actionID)
	if a == nil {
		// Already resolved by an event or snapshot; the late response is
		// reconciled against current state, which needed nothing.
		return
	}
	if err == nil {
		// Accepted by the daemon; confirmation arrives via the event
		// stream.
		return
	}
	e.fail(a, err)
}

// supersededBy reports whether a remote event invalidates a queued action: a
// change to the action's key, carried by an event newer than the action's
// submission version, that no longer matches what the action observed at
// submit. The daemon replays pending introductions on every reconnect and
// rebroadcasts unchanged configs, so an identical shape never supersedes.
func (e *Engine) supersededBy(ev syncthing.Event, a *Action) bool {
	// Within one snapshot generation sequence numbers order directly; a
	// later generation is newer by construction.
	if a.gen == e.gen && ev.ID <= a.Seq {
		return false
	}
	switch ev.Type {
	case syncthing.EventPendingDevicesChanged:
		if a.Kind != AcceptDevice && a.Kind != RejectDevice {
			return false
		}
		var data syncthing.PendingDevicesChangedData
		if ev.DecodeData(&data) != nil {
			return false
		}
		for _, added := range data.Added {
			if added.DeviceID == a.Target {
				offer := observedState{label: added.Name, path: added.Address}
				return offer != a.observed
			}
		}
	case syncthing.EventPendingFoldersChanged:
		if a.Kind != AcceptFolder && a.Kind != RejectFolder {
			return false
		}
		var data syncthing.PendingFoldersChangedData
		if ev.DecodeData(&data) != nil {
			return false
		}
		for _, added := range data.Added {
			if added.FolderID == a.Target && added.DeviceID == a.Payload.Device {
				return added.FolderLabel != a.observed.label
			}
		}
	case syncthing.EventConfigSaved:
		// The event already replaced the model's config; compare the
		// target's fresh shape against the one the action was built on. A
		// config re-adding or reworking a folder queued for delete fails
		// the delete rather than letting the overlay hide the daemon's
		// newer truth.
		switch a.Kind {
		case DeleteFolder, ModifyFolder, ShareFolder:
			f, ok := e.model.Folder(a.Target)
			return ok && folderShape(f) != a.observed
		case DeleteDevice:
			d, ok := e.model.Device(a.Target)
			return ok && d.Name != a.observed.label
		}
	}
	return false
}

// satisfied reports whether the confirmed state now reflects the action's
// intent. This is the only thing that confirms an action: transport 2xx alone
// never does.
func (e *Engine) satisfied(a *Action) bool {
	switch a.Kind {
	case AcceptDevice:
		_, configured := e.model.Device(a.Target)
		_, pending := e.model.PendingDevice(a.Target)
		return configured && !pending
	case RejectDevice:
		_, pending := e.model.PendingDevice(a.Target)
		return !pending
	case DeleteDevice:
		_, configured := e.model.Device(a.Target)
		return !configured
	case AcceptFolder:
		f, ok := e.model.Folder(a.Target)
		return ok && slices.Contains(f.SharedWith, a.Payload.Device)
	case RejectFolder:
		_, pending := e.model.PendingOffer(a.Target, a.Payload.Device)
		return !pending
	case AddFolder, ModifyFolder:
		f, ok := e.model.Folder(a.Target)
		if !ok {
			return false
		}
		if a.Payload.Path != "" && f.Path != a.Payload.Path {
			return false
		}
		if a.Payload.Label != "" && f.Label != a.Payload.Label {
			return false
		}
		return true
	case ShareFolder:
		f, ok := e.model.Folder(a.Target)
		return ok && slices.Contains(f.SharedWith, a.Payload.Device)
	case DeleteFolder:
		_, ok := e.model.Folder(a.Target)
		return !ok
	}
	return false
}

// invalidated reports whether a fresh snapshot leaves the action nothing to
// act on: its introduction vanished without the intent taking effect.
func (e *Engine) invalidated(a *Action) bool {
	switch a.Kind {
	case AcceptDevice:
		_, configured := e.model.Device(a.Target)
		_, pending := e.model.PendingDevice(a.Target)
		return !configured && !pending
	case AcceptFolder:
		_, pending := e.model.PendingOffer(a.Target, a.Payload.Device)
		if pending {
			return false
		}
		f, ok := e.model.Folder(a.Target)
		return !ok || !slices.Contains(f.SharedWith, a.Payload.Device)
	case ModifyFolder, ShareFolder:
		_, ok := e.model.Folder(a.Target)
		return !ok
	}
	return false
}

func (e *Engine) confirm(a *Action) {
	a.State = Confirmed
	e.queue.remove(a.ID)
	a.handle.resolve(Outcome{State: Confirmed})
	e.notice(NoticeInfo, fmt.Sprintf("%s %s confirmed", a.Kind, a.Target))
}

// fail resolves an action as failed and drops its optimistic overlay. The
// projection rebuilt right after restores the target's last confirmed state,
// so no failure can leave an entity stuck showing optimistic data.
func (e *Engine) fail(a *Action, err error) {
	a.State = Failed
	a.Reason = err.Error()
	e.queue.remove(a.ID)
	a.handle.resolve(Outcome{State: Failed, Err: err})
	level := NoticeError
	if errors.Is(err, ErrSuperseded) {
		level = NoticeWarn
	}
	e.notice(level, fmt.Sprintf("%s %s failed: %v", a.Kind, a.Target, err))
}

func (e *Engine) notice(level NoticeLevel, text string) {
	n := Notice{Time: e.now(), Level: level, Text: text}
	e.notices = append([]Notice{n}, e.notices...)
	if len(e.notices) > maxNotices {
		e.notices = e.notices[:maxNotices]
	}
}
