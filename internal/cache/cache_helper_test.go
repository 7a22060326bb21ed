package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCacheHelper(client, "quiz:"), mr
}

type cachedQuiz struct {
	PublicID string `json:"public_id"`
	Title    string `json:"title"`
}

func TestCacheHelper_SetGet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	original := cachedQuiz{PublicID: "quiz-1", Title: "Algebra Basics"}
	if err := helper.Set(ctx, "quiz-1", original, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got cachedQuiz
	if err := helper.Get(ctx, "quiz-1", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != original {
		t.Errorf("expected %+v, got %+v", original, got)
	}
}

func TestCacheHelper_GetMiss(t *testing.T) {
	helper, _ := newTestHelper(t)

	var got cachedQuiz
	if err := helper.Get(context.Background(), "absent", &got); err != ErrCacheNotFound {
		t.Errorf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	helper.Set(ctx, "a", cachedQuiz{PublicID: "a"}, time.Minute)
	helper.Set(ctx, "b", cachedQuiz{PublicID: "b"}, time.Minute)

	if err := helper.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var got cachedQuiz
	if err := helper.Get(ctx, "a", &got); err != ErrCacheNotFound {
		t.Errorf("key should be gone after delete, got %v", err)
	}
	if err := helper.Get(ctx, "b", &got); err != ErrCacheNotFound {
		t.Errorf("key should be gone after delete, got %v", err)
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "quiz:")
	ctx := context.Background()

	if err := helper.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Errorf("Set with nil client should be a no-op, got %v", err)
	}
	var dest string
	if err := helper.Get(ctx, "k", &dest); err != ErrCacheNotAvailable {
		t.Errorf("expected ErrCacheNotAvailable, got %v", err)
	}

	// CacheOrExecute must still serve from the fetch function.
	var got cachedQuiz
	err := helper.CacheOrExecute(ctx, "quiz-1", &got, time.Minute, func() (interface{}, error) {
		return cachedQuiz{PublicID: "quiz-1", Title: "Fetched"}, nil
	})
	if err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if got.Title != "Fetched" {
		t.Errorf("fetch result not delivered: %+v", got)
	}
}

func TestCacheOrExecute_ServesFromCacheSecondTime(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return cachedQuiz{PublicID: "quiz-1", Title: "Algebra"}, nil
	}

	var first cachedQuiz
	if err := helper.CacheOrExecute(ctx, "quiz-1", &first, time.Minute, fetch); err != nil {
		t.Fatalf("first CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}

	// The write-behind goroutine needs a moment to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if mr.Exists("quiz:quiz-1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache write never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var second cachedQuiz
	if err := helper.CacheOrExecute(ctx, "quiz-1", &second, time.Minute, fetch); err != nil {
		t.Fatalf("second CacheOrExecute failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("second call should hit the cache, fetch ran %d times", calls)
	}
}
