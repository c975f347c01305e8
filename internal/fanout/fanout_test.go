package fanout

import "testing"

func TestHub_PublishDeliversToSubscriber(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicPulse)
	defer sub.Unsubscribe()

	h.Publish(Event{Topic: TopicPulse, Type: EventNewPair, Payload: "abc"})

	select {
	case ev := <-sub.C():
		if ev.Type != EventNewPair || ev.Payload != "abc" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestHub_PublishIgnoresOtherTopics(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicPulse)
	defer sub.Unsubscribe()

	h.Publish(Event{Topic: TopicDashboard, Type: EventTokenUpdate})

	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event delivered for other topic: %+v", ev)
	default:
	}
}

func TestHub_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicPulse)
	defer sub.Unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(Event{Topic: TopicPulse, Type: EventOHLCVUpdate})
	}

	if got := len(sub.C()); got != subscriberBuffer {
		t.Fatalf("expected buffer to cap at %d, got %d", subscriberBuffer, got)
	}
}

func TestHub_SubscriberCount(t *testing.T) {
	h := New()
	if got := h.SubscriberCount(TopicPulse); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}

	sub1 := h.Subscribe(TopicPulse)
	sub2 := h.Subscribe(TopicPulse)
	if got := h.SubscriberCount(TopicPulse); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}

	sub1.Unsubscribe()
	if got := h.SubscriberCount(TopicPulse); got != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", got)
	}
	sub2.Unsubscribe()
	if got := h.SubscriberCount(TopicPulse); got != 0 {
		t.Fatalf("expected 0 subscribers after all unsubscribed, got %d", got)
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicPulse)
	sub.Unsubscribe()

	_, ok := <-sub.C()
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestTopicConstructors(t *testing.T) {
	if got := TopicToken("So1ana"); got != "token:So1ana" {
		t.Fatalf("unexpected token topic: %s", got)
	}
	if got := TopicOHLCV("SOL", "USDC", "1h"); got != "ohlcv:SOL:USDC:1h" {
		t.Fatalf("unexpected ohlcv topic: %s", got)
	}
	if got := TopicTrades("SOL", "USDC"); got != "trades:SOL:USDC" {
		t.Fatalf("unexpected trades topic: %s", got)
	}
}
