package context

import "testing"

func TestAddEventAndGetLatest(t *testing.T) {
	b := NewBuilder(5)
	b.AddEvent("hello", "App", "Win", 1.0, false, false)
	snap, ok := b.GetLatest()
	if !ok {
		t.Fatal("expected a latest snapshot")
	}
	if snap.State.App != "App" {
		t.Errorf("App = %q, want App", snap.State.App)
	}
}

func TestHistoryBoundedAtMax(t *testing.T) {
	b := NewBuilder(3)
	for i := 0; i < 10; i++ {
		b.AddEvent("text", "App", "Win", 1.0, false, false)
	}
	if len(b.history) != 3 {
		t.Fatalf("history length = %d, want 3 (bounded)", len(b.history))
	}
}

func TestEventsChannelNonBlocking(t *testing.T) {
	b := NewBuilder(1) // tiny channel buffer
	for i := 0; i < 5; i++ {
		b.AddEvent("text", "App", "Win", 1.0, false, false) // should never block
	}
}

func TestQueryRespectsSinceTs(t *testing.T) {
	b := NewBuilder(10)
	first := b.AddEvent("a", "App", "Win", 1.0, false, false)
	b.AddEvent("b", "App", "Win", 1.0, false, false)

	res := b.Query(QueryParams{SinceTs: first.State.TsMs - 1, Limit: 10})
	if len(res.Events) == 0 {
		t.Error("expected events newer than sinceTs")
	}

	res2 := b.Query(QueryParams{SinceTs: first.State.TsMs + 1_000_000, Limit: 10})
	if len(res2.Events) != 0 {
		t.Errorf("expected no events far in the future of sinceTs, got %d", len(res2.Events))
	}
}

func TestQueryStripsDeltasUnlessRequested(t *testing.T) {
	b := NewBuilder(10)
	b.AddEvent("first text", "App", "Win", 1.0, false, false)
	res := b.Query(QueryParams{Limit: 10, IncludeDeltas: false})
	for _, e := range res.Events {
		if e.State.TextDeltas != nil {
			t.Error("deltas should be stripped when IncludeDeltas is false")
		}
	}
}

func TestGetAppHistoryDedups(t *testing.T) {
	b := NewBuilder(10)
	b.AddEvent("x", "AppA", "Win1", 1.0, false, false)
	b.AddEvent("x", "AppA", "Win1", 1.0, false, false)
	b.AddEvent("x", "AppB", "Win2", 1.0, true, true)
	hist := b.GetAppHistory(5)
	if len(hist) != 2 {
		t.Errorf("expected 2 distinct app/window entries, got %d: %v", len(hist), hist)
	}
}
