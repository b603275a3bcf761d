package orchestration

import (
	"testing"
)

func TestFeedSnapshotCachesBetweenInvalidations(t *testing.T) {
	computes := 0
	feed := newFeed(func() int {
		computes++
		return computes
	})

	first := feed.Snapshot()
	second := feed.Snapshot()
	if first != second {
		t.Fatalf("expected repeated snapshots to return the cached value, got %d then %d", first, second)
	}
	if computes != 1 {
		t.Fatalf("expected one compute for repeated reads, got %d", computes)
	}

	feed.invalidate()

	if got := feed.Snapshot(); got != 2 {
		t.Fatalf("expected invalidation to trigger a recompute, got %d", got)
	}
	if computes != 2 {
		t.Fatalf("expected two computes after invalidation, got %d", computes)
	}
}

func TestFeedNotifiesListenersInSubscriptionOrder(t *testing.T) {
	feed := newFeed(func() int { return 0 })

	notified := []int{}
	unsubscribeFirst := feed.Subscribe(func() { notified = append(notified, 1) })
	feed.Subscribe(func() { notified = append(notified, 2) })

	feed.invalidate()
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Fatalf("expected listeners to run in subscription order, got %v", notified)
	}

	unsubscribeFirst()
	feed.invalidate()
	if len(notified) != 3 || notified[2] != 2 {
		t.Fatalf("expected only the remaining listener to run, got %v", notified)
	}
}

func TestFeedListenerPanicDoesNotStopOthers(t *testing.T) {
	feed := newFeed(func() int { return 0 })

	secondRan := false
	feed.Subscribe(func() { panic("listener exploded") })
	feed.Subscribe(func() { secondRan = true })

	feed.invalidate()

	if !secondRan {
		t.Fatalf("expected the second listener to run despite the first panicking")
	}
}

func TestFeedListenerCanReadSnapshot(t *testing.T) {
	value := 0
	feed := newFeed(func() int { return value })

	observed := []int{}
	feed.Subscribe(func() { observed = append(observed, feed.Snapshot()) })

	value = 7
	feed.invalidate()
	value = 9
	feed.invalidate()

	if len(observed) != 2 || observed[0] != 7 || observed[1] != 9 {
		t.Fatalf("expected listeners to observe fresh snapshots, got %v", observed)
	}
}
