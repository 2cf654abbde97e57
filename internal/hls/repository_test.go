package hls

import (
	"errors"
	"sync"
	"testing"
)

func TestInMemoryRepository_RegisterSegment(t *testing.T) {
	repo := NewInMemoryRepository()
	seg := Segment{Sequence: 1, Duration: 2.0, Path: "/segments/1.ts"}

	t.Run("creates_stream_and_rendition", func(t *testing.T) {
		if err := repo.RegisterSegment("s1", "720p", seg); err != nil {
			t.Fatalf("RegisterSegment: %v", err)
		}
		snap, ok := repo.GetRenditionSnapshot("s1", "720p")
		if !ok || snap.Ended {
			t.Fatalf("snapshot: ok=%v ended=%v", ok, snap.Ended)
		}
		if len(snap.Segments) != 1 || snap.Segments[0].Path != seg.Path {
			t.Errorf("segments: %v", snap.Segments)
		}
		if snap.Segments[0].ReceivedAt.IsZero() {
			t.Error("ReceivedAt should be stamped")
		}
	})

	t.Run("duplicate_sequence_ignored", func(t *testing.T) {
		dup := seg
		dup.Path = "/segments/other.ts"
		if err := repo.RegisterSegment("s1", "720p", dup); err != nil {
			t.Fatalf("duplicate RegisterSegment: %v", err)
		}
		snap, _ := repo.GetRenditionSnapshot("s1", "720p")
		if len(snap.Segments) != 1 || snap.Segments[0].Path != seg.Path {
			t.Errorf("duplicate must not replace the original: %v", snap.Segments)
		}
	})

	t.Run("sorted_by_sequence", func(t *testing.T) {
		_ = repo.RegisterSegment("s1", "720p", Segment{Sequence: 3, Duration: 2.0, Path: "/3.ts"})
		_ = repo.RegisterSegment("s1", "720p", Segment{Sequence: 2, Duration: 2.0, Path: "/2.ts"})
		snap, _ := repo.GetRenditionSnapshot("s1", "720p")
		if len(snap.Segments) != 3 {
			t.Fatalf("expected 3 segments, got %d", len(snap.Segments))
		}
		for i, s := range snap.Segments {
			if s.Sequence != int64(i+1) {
				t.Errorf("segment %d has sequence %d", i, s.Sequence)
			}
		}
	})
}

func TestInMemoryRepository_rejects_after_end(t *testing.T) {
	repo := NewInMemoryRepository()
	_ = repo.RegisterSegment("s2", "720p", Segment{Sequence: 1, Duration: 2.0, Path: "/a.ts"})
	if err := repo.EndStream("s2"); err != nil {
		t.Fatal(err)
	}

	if err := repo.RegisterSegment("s2", "720p", Segment{Sequence: 2, Duration: 2.0, Path: "/b.ts"}); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("RegisterSegment after end: %v", err)
	}
	if err := repo.SetInitSegment("s2", "720p", "init.mp4"); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("SetInitSegment after end: %v", err)
	}
	if err := repo.OpenRendition("s2", "480p"); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("OpenRendition after end: %v", err)
	}

	snap, _ := repo.GetRenditionSnapshot("s2", "720p")
	if len(snap.Segments) != 1 || snap.InitPath != "" {
		t.Errorf("ended rendition changed: %+v", snap)
	}
}

func TestInMemoryRepository_OpenRendition(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.OpenRendition("s1", "audio"); err != nil {
		t.Fatal(err)
	}

	snap, ok := repo.GetRenditionSnapshot("s1", "audio")
	if !ok || len(snap.Segments) != 0 || snap.Ended {
		t.Errorf("open rendition: ok=%v snap=%+v", ok, snap)
	}
	if n := repo.ActiveStreamCount(); n != 1 {
		t.Errorf("ActiveStreamCount = %d, want 1", n)
	}
}

func TestInMemoryRepository_SetInitSegment(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.SetInitSegment("s1", "audio", "init.mp4"); err != nil {
		t.Fatal(err)
	}
	snap, ok := repo.GetRenditionSnapshot("s1", "audio")
	if !ok || snap.InitPath != "init.mp4" {
		t.Errorf("init path: ok=%v snap=%+v", ok, snap)
	}
}

func TestInMemoryRepository_GetRenditionSnapshot_missing(t *testing.T) {
	repo := NewInMemoryRepository()
	if _, ok := repo.GetRenditionSnapshot("missing", "720p"); ok {
		t.Error("expected ok false for missing stream")
	}

	_ = repo.RegisterSegment("s3", "720p", Segment{Sequence: 1, Duration: 2.0, Path: "/x.ts"})
	if _, ok := repo.GetRenditionSnapshot("s3", "480p"); ok {
		t.Error("expected ok false for missing rendition")
	}
}

func TestInMemoryRepository_EndStream(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := repo.EndStream("s5"); err != nil {
		t.Errorf("ending an unknown stream should be a no-op: %v", err)
	}

	_ = repo.RegisterSegment("s5", "720p", Segment{Sequence: 1, Duration: 2.0, Path: "/a.ts"})
	_ = repo.RegisterSegment("s5", "480p", Segment{Sequence: 1, Duration: 2.0, Path: "/a.ts"})
	_ = repo.RegisterSegment("s6", "720p", Segment{Sequence: 1, Duration: 2.0, Path: "/a.ts"})
	if n := repo.ActiveStreamCount(); n != 2 {
		t.Errorf("ActiveStreamCount = %d, want 2", n)
	}

	if err := repo.EndStream("s5"); err != nil {
		t.Fatal(err)
	}
	for _, r := range []RenditionID{"720p", "480p"} {
		if snap, ok := repo.GetRenditionSnapshot("s5", r); !ok || !snap.Ended {
			t.Errorf("rendition %s: ok=%v ended=%v", r, ok, snap.Ended)
		}
	}
	if n := repo.ActiveStreamCount(); n != 1 {
		t.Errorf("ActiveStreamCount after end = %d, want 1", n)
	}

	if err := repo.EndStream("s5"); err != nil {
		t.Errorf("second EndStream should be a no-op: %v", err)
	}
}

func TestInMemoryRepository_concurrent_register(t *testing.T) {
	repo := NewInMemoryRepository()

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			_ = repo.RegisterSegment("s1", "audio", Segment{Sequence: seq, Duration: 1, Path: "/x"})
			_, _ = repo.GetRenditionSnapshot("s1", "audio")
		}(i % 25)
	}
	wg.Wait()

	snap, _ := repo.GetRenditionSnapshot("s1", "audio")
	if len(snap.Segments) != 25 {
		t.Errorf("expected 25 distinct segments, got %d", len(snap.Segments))
	}
}

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	if _, ok := store.GetStream("s1"); ok {
		t.Error("expected not found for empty store")
	}

	st1 := &StreamState{ID: "s1", Renditions: make(map[RenditionID]*RenditionState)}
	st2 := &StreamState{ID: "s1", Renditions: make(map[RenditionID]*RenditionState)}
	store.SetStream(st1)
	store.SetStream(st2)

	got, ok := store.GetStream("s1")
	if !ok || got != st2 {
		t.Errorf("SetStream should replace: got %p want %p", got, st2)
	}
	if ids := store.ListStreamIDs(); len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("ListStreamIDs = %v", ids)
	}
}

func TestNewInMemoryRepositoryWithStore(t *testing.T) {
	store := NewInMemoryStore()
	repo := NewInMemoryRepositoryWithStore(store)

	if err := repo.RegisterSegment("s1", "720p", Segment{Sequence: 1, Duration: 2.0, Path: "/1.ts"}); err != nil {
		t.Fatalf("RegisterSegment: %v", err)
	}

	st, ok := store.GetStream("s1")
	if !ok || st.CreatedAt.IsZero() {
		t.Errorf("injected store should hold the new stream: ok=%v", ok)
	}
}
