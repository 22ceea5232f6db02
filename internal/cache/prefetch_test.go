package cache

import (
	"fmt"
	"testing"
)

func TestPrefetchAdvisor_CoAccess(t *testing.T) {
	t.Parallel()

	advisor := NewPrefetchAdvisor(10, 5)
	list := SearchKey("tenders")
	detail := MetadataKey("tender-7")
	docs := MetadataKey("tender-7-docs")

	advisor.RecordHit(list)
	advisor.RecordHit(detail)
	advisor.RecordHit(docs)

	got := advisor.Suggest(docs)
	want := []Key{detail, list}
	if len(got) != len(want) {
		t.Fatalf("Suggest(docs) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Suggest(docs)[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// relations are symmetric, most recent first
	got = advisor.Suggest(list)
	if len(got) != 2 || got[0] != docs || got[1] != detail {
		t.Errorf("Suggest(list) = %v", got)
	}

	if s := advisor.Suggest(UserKey("nobody")); len(s) != 0 {
		t.Errorf("Suggest(unknown) = %v, want empty", s)
	}
}

func TestPrefetchAdvisor_Bounds(t *testing.T) {
	t.Parallel()

	advisor := NewPrefetchAdvisor(10, 5)
	for i := 0; i < 30; i++ {
		advisor.RecordHit(SearchKey(fmt.Sprintf("q%d", i)))
	}

	last := SearchKey("q29")
	got := advisor.Suggest(last)
	if len(got) != 5 {
		t.Fatalf("Suggest returned %d keys, want 5", len(got))
	}
	if got[0] != SearchKey("q28") {
		t.Errorf("most recent companion = %v, want q28", got[0])
	}

	advisor.mu.Lock()
	for key, related := range advisor.coAccess {
		if len(related) > 10 {
			t.Errorf("%v has %d co-access keys, want at most 10", key, len(related))
		}
	}
	if len(advisor.recent) > 11 {
		t.Errorf("recent window holds %d keys", len(advisor.recent))
	}
	advisor.mu.Unlock()

	// a repeated hit does not relate a key to itself
	advisor.RecordHit(last)
	for _, k := range advisor.Suggest(last) {
		if k == last {
			t.Error("key suggested as its own companion")
		}
	}

	advisor.Clear()
	if advisor.Len() != 0 {
		t.Errorf("Len() after Clear = %d", advisor.Len())
	}
}

func TestPrefetchAdvisor_RepeatHitKeepsFullWindow(t *testing.T) {
	t.Parallel()

	advisor := NewPrefetchAdvisor(10, 5)
	for i := 0; i < 10; i++ {
		advisor.RecordHit(SearchKey(fmt.Sprintf("q%d", i)))
	}
	advisor.RecordHit(SearchKey("x"))

	// q9 is still in the recent window; hitting it again relates it to
	// x and q8..q0, not just the nine keys that fit beside it.
	repeat := SearchKey("q9")
	advisor.RecordHit(repeat)

	advisor.mu.Lock()
	related := append([]Key(nil), advisor.coAccess[repeat]...)
	advisor.mu.Unlock()

	if len(related) != 10 {
		t.Fatalf("q9 relates %d keys, want 10: %v", len(related), related)
	}
	seen := make(map[Key]bool, len(related))
	for _, k := range related {
		if k == repeat {
			t.Error("q9 related to itself")
		}
		seen[k] = true
	}
	if !seen[SearchKey("x")] || !seen[SearchKey("q0")] {
		t.Errorf("co-access set %v misses x or q0", related)
	}
}
