package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestNormalizePair(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	p1, p2 := NormalizePair(a, b)
	q1, q2 := NormalizePair(b, a)

	if p1 != q1 || p2 != q2 {
		t.Fatal("pair order should not depend on argument order")
	}
	if p1.String() >= p2.String() {
		t.Fatalf("pair not ordered: %s >= %s", p1, p2)
	}
}

func TestConversationOther(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	p1, p2 := NormalizePair(a, b)

	conv := &Conversation{
		Participant1ID: p1,
		Participant2ID: p2,
		Participant1:   &Profile{ID: p1, Username: "one"},
		Participant2:   &Profile{ID: p2, Username: "two"},
	}

	if got := conv.Other(p1); got.ID != p2 {
		t.Fatal("Other returned the caller's own profile")
	}
	if got := conv.Other(p2); got.ID != p1 {
		t.Fatal("Other returned the caller's own profile")
	}
	if !conv.HasParticipant(a) || !conv.HasParticipant(b) {
		t.Fatal("both users should be participants")
	}
	if conv.HasParticipant(uuid.New()) {
		t.Fatal("stranger reported as participant")
	}
}
