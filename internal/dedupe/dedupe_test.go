package dedupe

import (
	"reflect"
	"testing"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

func TestDedupeCaseInsensitiveTitles(t *testing.T) {
	in := []*news.Article{
		{Title: "Gang violence in Haiti", Link: "https://a.example/1"},
		{Title: "GANG VIOLENCE IN HAITI", Link: "https://b.example/2"},
		{Title: "Other story"},
	}
	got := Dedupe(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(got))
	}
	if got[0].Title != "Gang violence in Haiti" {
		t.Errorf("expected first-seen casing kept, got %q", got[0].Title)
	}
	if got[1].Title != "Other story" {
		t.Errorf("expected 'Other story', got %q", got[1].Title)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	in := []*news.Article{
		{Title: "A"}, {Title: "b"}, {Title: "a"}, {Title: ""}, {Title: "B"}, {Title: ""}, {Title: "c"},
	}
	once := Dedupe(in)
	twice := Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("expected idempotence, got %d then %d articles", len(once), len(twice))
	}
	if len(once) != 4 {
		t.Errorf("expected 4 unique articles, got %d", len(once))
	}
}

func TestDedupeMissingTitleIsOwnBucket(t *testing.T) {
	in := []*news.Article{{Summary: "first"}, {Summary: "second"}, {Title: "Titled"}}
	got := Dedupe(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(got))
	}
	if got[0].Summary != "first" {
		t.Errorf("expected first untitled article kept, got %q", got[0].Summary)
	}
}

func TestDedupeEmpty(t *testing.T) {
	if got := Dedupe(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestDedupeDoesNotMutateInput(t *testing.T) {
	in := []*news.Article{{Title: "x"}, {Title: "X"}}
	Dedupe(in)
	if len(in) != 2 || in[1].Title != "X" {
		t.Error("expected input slice unchanged")
	}
}
