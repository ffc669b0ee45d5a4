package bridge

import (
	"context"
	"testing"
	"time"
)

func TestStatusWatchSendsCurrentValueOnSubscribe(t *testing.T) {
	w := NewStatusWatch(SysStatus{Version: "1.0", Aria2Alive: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := w.Watch(ctx)
	select {
	case got := <-ch:
		if !got.Aria2Alive || got.Version != "1.0" {
			t.Fatalf("got %+v, want initial value", got)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive the initial value")
	}
}

func TestStatusWatchNotifiesOnChange(t *testing.T) {
	w := NewStatusWatch(SysStatus{Aria2Alive: false})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := w.Watch(ctx)
	<-ch // initial value

	w.SetAlive(true)

	select {
	case got := <-ch:
		if !got.Aria2Alive {
			t.Fatalf("got Aria2Alive=false after SetAlive(true)")
		}
	case <-time.After(time.Second):
		t.Fatal("did not observe the change")
	}
}

func TestStatusWatchCoalescesBurstsIntoLatest(t *testing.T) {
	w := NewStatusWatch(SysStatus{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := w.Watch(ctx)
	<-ch // initial value, not consumed by the subscriber loop below

	// Flip the value several times before the subscriber has a chance to
	// drain — it must still end up seeing the latest value, not hang or
	// see every intermediate one queued.
	w.SetAlive(true)
	w.SetAlive(false)
	w.SetAlive(true)

	select {
	case got := <-ch:
		if !got.Aria2Alive {
			t.Fatalf("got Aria2Alive=false, want the latest value true")
		}
	case <-time.After(time.Second):
		t.Fatal("did not observe a change after a burst of writes")
	}
}
