package events

import "testing"

func TestBusRoutesByTopic(t *testing.T) {
	b := NewBus()
	sig, unsubSig := b.Subscribe(EventSignal, 4)
	defer unsubSig()
	rej, unsubRej := b.Subscribe(EventRejection, 4)
	defer unsubRej()

	b.Publish(EventSignal, "breakout")

	select {
	case got := <-sig:
		if got != "breakout" {
			t.Fatalf("payload=%v", got)
		}
	default:
		t.Fatal("signal subscriber got nothing")
	}
	select {
	case got := <-rej:
		t.Fatalf("rejection subscriber leaked %v from another topic", got)
	default:
	}
}

func TestBusPublishDropsWhenBufferFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventScanReport, 1)
	defer unsub()

	// Second publish must not block even though nobody is draining.
	b.Publish(EventScanReport, 1)
	b.Publish(EventScanReport, 2)

	if got := <-ch; got != 1 {
		t.Fatalf("kept payload=%v, expected the first", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("overflow payload %v should have been dropped", got)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventPositionClose, 1)

	unsub()
	unsub() // second call is a no-op

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must not reach the closed channel.
	b.Publish(EventPositionClose, "late")
}
