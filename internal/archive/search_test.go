package archive

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/yacinebz/relay/internal/stream"
)

func newTestIndex(t *testing.T) *SearchIndex {
	t.Helper()
	idx, err := OpenSearchIndex(filepath.Join(t.TempDir(), "archive.bleve"))
	if err != nil {
		t.Fatalf("OpenSearchIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSearchIndexFindsByContent(t *testing.T) {
	idx := newTestIndex(t)

	sessions := []stream.Snapshot{
		{
			ID:                 "00000000-0000-0000-0000-00000000000a",
			Prompt:             "explain raft consensus",
			AccumulatedContent: "Raft elects a single leader per term.",
			Status:             stream.StatusSucceeded,
		},
		{
			ID:                 "00000000-0000-0000-0000-00000000000b",
			Prompt:             "write a haiku about autumn",
			AccumulatedContent: "Leaves drift on cold wind.",
			Status:             stream.StatusSucceeded,
		},
	}
	for _, s := range sessions {
		if err := idx.Index(s); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	results, err := idx.Search("raft leader", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results for indexed content")
	}
	if results[0].SessionID != sessions[0].ID {
		t.Errorf("top hit = %s, want %s", results[0].SessionID, sessions[0].ID)
	}

	results, err = idx.Search("autumn haiku", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].SessionID != sessions[1].ID {
		t.Errorf("prompt search results = %+v", results)
	}
}

func TestSearchIndexReplacesDocument(t *testing.T) {
	idx := newTestIndex(t)

	snap := stream.Snapshot{
		ID:                 "00000000-0000-0000-0000-00000000000c",
		Prompt:             "p",
		AccumulatedContent: "original wording here",
		Status:             stream.StatusSucceeded,
		Timing:             stream.Timing{StartedAt: time.Now()},
	}
	if err := idx.Index(snap); err != nil {
		t.Fatalf("Index: %v", err)
	}

	snap.AccumulatedContent = "completely different phrasing"
	if err := idx.Index(snap); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	results, err := idx.Search("original wording", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("stale document still matches: %+v", results)
	}

	results, err = idx.Search("different phrasing", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("replacement not searchable: %+v", results)
	}
}

func TestSearchIndexNoMatches(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search("anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}
