package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanoutObserver_DeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	obs := NewFanoutObserver(testLogger())
	_, ch1 := obs.Subscribe(1)
	_, ch2 := obs.Subscribe(1)

	obs.Emit(context.Background(), UpdatesChannel, Event{Verdict: "DUNNO"})

	select {
	case e := <-ch1:
		if e.Verdict != "DUNNO" {
			t.Errorf("ch1 verdict = %q", e.Verdict)
		}
	case <-time.After(time.Second):
		t.Fatal("ch1 never received event")
	}
	select {
	case e := <-ch2:
		if e.Verdict != "DUNNO" {
			t.Errorf("ch2 verdict = %q", e.Verdict)
		}
	case <-time.After(time.Second):
		t.Fatal("ch2 never received event")
	}
}

func TestFanoutObserver_IgnoresOtherChannels(t *testing.T) {
	t.Parallel()

	obs := NewFanoutObserver(testLogger())
	_, ch := obs.Subscribe(1)

	obs.Emit(context.Background(), "something-else", Event{Verdict: "DUNNO"})

	select {
	case e := <-ch:
		t.Fatalf("unexpected event on unrelated channel: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanoutObserver_DropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	obs := NewFanoutObserver(testLogger())
	_, ch := obs.Subscribe(1)

	obs.Emit(context.Background(), UpdatesChannel, Event{Verdict: "first"})
	obs.Emit(context.Background(), UpdatesChannel, Event{Verdict: "second"})

	e := <-ch
	if e.Verdict != "first" {
		t.Errorf("expected the first event to have been buffered, got %q", e.Verdict)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected the second event to have been dropped, got %+v", e)
	default:
	}
}

func TestFanoutObserver_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	obs := NewFanoutObserver(testLogger())
	id, ch := obs.Subscribe(1)
	obs.Unsubscribe(id)

	_, open := <-ch
	if open {
		t.Error("expected channel to be closed after Unsubscribe")
	}

	obs.Emit(context.Background(), UpdatesChannel, Event{Verdict: "DUNNO"})
}

func TestNopObserver_DoesNothing(t *testing.T) {
	t.Parallel()
	var obs Observer = NopObserver{}
	obs.Emit(context.Background(), UpdatesChannel, Event{Verdict: "DUNNO"})
}
