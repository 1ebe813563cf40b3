package engine

import "testing"

func TestQueue_ConflictRules(t *testing.T) {
	q := &actionQueue{}
	q.enqueue(&Action{Kind: AcceptFolder, Target: "docs"})

	if c := q.conflicting("docs", ClassAccept); c == nil {
		t.Fatal("same class on same target should conflict")
	}
	if c := q.conflicting("docs", ClassDelete); c == nil {
		t.Fatal("delete should conflict with any queued action on the target")
	}
	if c := q.conflicting("docs", ClassModify); c != nil {
		t.Fatalf("modify vs accept on same target = %v, want no conflict", c.Kind)
	}
	if c := q.conflicting("music", ClassAccept); c != nil {
		t.Fatalf("different target = %v, want no conflict", c.Kind)
	}

	q.enqueue(&Action{Kind: DeleteFolder, Target: "music"})
	if c := q.conflicting("music", ClassModify); c == nil {
		t.Fatal("queued delete should block every class on the target")
	}
}

func TestQueue_OrderAndRemoval(t *testing.T) {
	q := &actionQueue{}
	a1 := &Action{Kind: AcceptDevice, Target: "DEV-A"}
	a2 := &Action{Kind: DeleteFolder, Target: "docs"}
	a3 := &Action{Kind: ModifyFolder, Target: "docs"}
	q.enqueue(a1)
	q.enqueue(a2)
	q.enqueue(a3)

	if a1.ID == 0 || a2.ID <= a1.ID || a3.ID <= a2.ID {
		t.Fatalf("IDs not increasing: %d %d %d", a1.ID, a2.ID, a3.ID)
	}
	if got := q.pendingFor("docs"); len(got) != 2 || got[0] != a2 || got[1] != a3 {
		t.Fatalf("pendingFor(docs) = %v, want [a2 a3] in submission order", got)
	}

	q.remove(a2.ID)
	if q.byID(a2.ID) != nil {
		t.Fatal("removed action still findable")
	}
	if got := q.all(); len(got) != 2 || got[0] != a1 || got[1] != a3 {
		t.Fatalf("all() = %v, want [a1 a3]", got)
	}
}
