package live

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestPublishDelivers(t *testing.T) {
	b := NewBroker()
	ch := MessageChannel(uuid.New())

	var got []Event
	cancel := b.Subscribe(ch, func(ev Event) {
		got = append(got, ev)
	})
	defer cancel()

	ev := Event{Channel: ch, Table: "messages", Type: EventInsert, RowID: "m1"}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].RowID != "m1" {
		t.Fatalf("expected row m1, got %s", got[0].RowID)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch := MessageChannel(uuid.New())

	count := 0
	cancel := b.Subscribe(ch, func(Event) { count++ })

	b.Publish(context.Background(), Event{Channel: ch, RowID: "m1"})
	cancel()
	b.Publish(context.Background(), Event{Channel: ch, RowID: "m2"})

	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
	if b.SubscriberCount(ch) != 0 {
		t.Fatal("subscription not released")
	}
}

func TestCancelIsIndependent(t *testing.T) {
	b := NewBroker()
	ch := MessageChannel(uuid.New())

	var first, second int
	cancel1 := b.Subscribe(ch, func(Event) { first++ })
	cancel2 := b.Subscribe(ch, func(Event) { second++ })
	defer cancel2()

	cancel1()
	b.Publish(context.Background(), Event{Channel: ch, RowID: "m1"})

	if first != 0 {
		t.Fatal("cancelled handler fired")
	}
	if second != 1 {
		t.Fatalf("surviving handler expected 1 delivery, got %d", second)
	}
}

func TestChannelIsolation(t *testing.T) {
	b := NewBroker()
	convA := MessageChannel(uuid.New())
	convB := MessageChannel(uuid.New())

	var gotA, gotB int
	defer b.Subscribe(convA, func(Event) { gotA++ })()
	defer b.Subscribe(convB, func(Event) { gotB++ })()

	b.Publish(context.Background(), Event{Channel: convA, RowID: "m1"})

	if gotA != 1 || gotB != 0 {
		t.Fatalf("expected delivery only on channel A, got A=%d B=%d", gotA, gotB)
	}
}

func TestCancelTwiceIsSafe(t *testing.T) {
	b := NewBroker()
	ch := ConversationChannel(uuid.New())

	cancel := b.Subscribe(ch, func(Event) {})
	cancel()
	cancel()

	if b.SubscriberCount(ch) != 0 {
		t.Fatal("expected zero subscribers")
	}
}
