package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/synctui/synctui/internal/engine"
	"github.com/synctui/synctui/internal/syncthing"
)

const (
	backoffMin = 500 * time.Millisecond
	backoffMax = 15 * time.Second
)

var errResyncRequested = errors.New("resync requested")

// StartStream launches the daemon stream pump in its own goroutine. The
// pump connects, hands the engine a snapshot, then forwards the event
// feed until the connection drops; it reconnects with exponential
// backoff and fetches a fresh snapshot whenever the engine asks for a
// resync.
func StartStream(ctx context.Context, eng *engine.Engine, api syncthing.API) {
	go streamLoop(ctx, eng, api)
}

func streamLoop(ctx context.Context, eng *engine.Engine, api syncthing.API) {
	backoff := backoffMin
	for ctx.Err() == nil {
		snap, err := api.Connect(ctx)
		if err != nil {
			eng.StreamDown(err)
			log.Printf("daemon connect failed: %v", err)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff *= 2; backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		backoff = backoffMin
		eng.PushSnapshot(snap)
		eng.StreamUp()

		err = pumpEvents(ctx, eng, api)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		case errors.Is(err, errResyncRequested):
			// Reconnect immediately; the fresh snapshot rebases the
			// engine past whatever it missed.
		default:
			eng.StreamDown(err)
			log.Printf("event stream down: %v", err)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff *= 2; backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}
}

type fetchResult struct {
	events []syncthing.Event
	err    error
}

// pumpEvents long-polls the event feed and forwards each event to the
// engine. The first batch only advances the cursor: those events
// predate the snapshot the engine was just handed.
func pumpEvents(ctx context.Context, eng *engine.Engine, api syncthing.API) error {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var since uint64
	skipOld := true
	for {
		res := make(chan fetchResult, 1)
		go func(cursor uint64) {
			events, err := api.FetchEvents(fetchCtx, cursor)
			res <- fetchResult{events, err}
		}(since)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-eng.ResyncRequests():
			return errResyncRequested
		case r := <-res:
			if r.err != nil {
				return r.err
			}
			for _, ev := range r.events {
				since = ev.ID
				if !skipOld {
					eng.PushEvent(ev)
				}
			}
			skipOld = false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
