package app

import (
	"sync"
	"testing"
	"time"

	"trivia-scoring-service/internal/domain"
)

func TestFeedKeepsNewestSnapshotForSlowSubscriber(t *testing.T) {
	feed := NewLeaderboardFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 20; i++ {
		feed.Publish(domain.Leaderboard{UpdatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	var last domain.Leaderboard
	for len(ch) > 0 {
		last = <-ch
	}
	if !last.UpdatedAt.Equal(base.Add(19 * time.Second)) {
		t.Fatalf("expected newest snapshot last, got %v", last.UpdatedAt)
	}
}

func TestFeedCancelUnsubscribes(t *testing.T) {
	feed := NewLeaderboardFeed()
	ch, cancel := feed.Subscribe()
	if feed.Subscribers() != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	<-ch // initial snapshot
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestFeedPublishAndSubscribeDoNotDeadlock(t *testing.T) {
	feed := NewLeaderboardFeed()
	done := make(chan struct{})

	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 500; i++ {
					feed.Publish(domain.Leaderboard{UpdatedAt: time.Unix(int64(i), 0)})
				}
			}()
		}
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					_, cancel := feed.Subscribe()
					cancel()
				}
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("publish and subscribe did not finish")
	}
	if feed.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", feed.Subscribers())
	}
}
