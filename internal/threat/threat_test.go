package threat

import (
	"testing"

	"github.com/TobiSchelling/intelbrief/internal/keywords"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

func bucket(titles ...string) *news.Bucket {
	b := news.NewBucket("Testland")
	for _, title := range titles {
		b.Add(&news.Article{Title: title})
	}
	return b
}

func TestClassifyEmptyBucket(t *testing.T) {
	c := NewDefault(keywords.Substring)
	if got := c.Classify(news.NewBucket("Nowhere")); got != news.Undetermined {
		t.Errorf("expected UNDETERMINED, got %s", got)
	}
	if got := c.Classify(nil); got != news.Undetermined {
		t.Errorf("expected UNDETERMINED for nil bucket, got %s", got)
	}
}

func TestClassifyScenarioKilledAndProtest(t *testing.T) {
	c := NewDefault(keywords.Substring)
	a := c.Assess(bucket("Three killed overnight", "Students protest fees"))
	if a.Mean != 2.5 {
		t.Errorf("expected mean 2.5, got %v", a.Mean)
	}
	if a.Level != news.High {
		t.Errorf("expected HIGH, got %s", a.Level)
	}
}

func TestSeverityTakesHighestTier(t *testing.T) {
	c := NewDefault(keywords.Substring)
	got := c.Severity(&news.Article{Title: "Protest turns deadly as police killed two"})
	if got != 4 {
		t.Errorf("expected severity 4, got %d", got)
	}
	if got := c.Severity(&news.Article{Title: "Quiet day at the harbour"}); got != 0 {
		t.Errorf("expected severity 0, got %d", got)
	}
}

func TestLevelForBoundaries(t *testing.T) {
	tests := []struct {
		mean float64
		want news.ThreatLevel
	}{
		{4.0, news.Critical},
		{3.0, news.Critical},
		{2.99, news.High},
		{2.0, news.High},
		{1.99, news.Moderate},
		{1.0, news.Moderate},
		{0.99, news.Low},
		{0.5, news.Low},
		{0.49, news.Minimal},
		{0, news.Minimal},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.mean); got != tt.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tt.mean, got, tt.want)
		}
	}
}

func TestClassifyExactMeans(t *testing.T) {
	c := NewDefault(keywords.Substring)
	tests := []struct {
		name   string
		titles []string
		want   news.ThreatLevel
	}{
		{"mean 3.0", []string{"Explosion at depot"}, news.Critical},
		{"mean 2.0", []string{"Armed men seen"}, news.High},
		{"mean 1.0", []string{"Trade dispute lingers"}, news.Moderate},
		{"mean 0.5", []string{"Trade dispute lingers", "Harbour reopens"}, news.Low},
		{"mean 0.0", []string{"Harbour reopens"}, news.Minimal},
	}
	for _, tt := range tests {
		if got := c.Classify(bucket(tt.titles...)); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewDefault(keywords.Substring)
	b := bucket("Missile strike on port", "Rebel advance", "Calm returns")
	first := c.Classify(b)
	for i := 0; i < 5; i++ {
		if got := c.Classify(b); got != first {
			t.Fatalf("expected %s, got %s", first, got)
		}
	}
}

func TestNewRejectsBadTiers(t *testing.T) {
	if _, err := New(nil, keywords.Substring); err == nil {
		t.Error("expected error for empty table")
	}
	if _, err := New([]Tier{{"x", 0, []string{"a"}}}, keywords.Substring); err == nil {
		t.Error("expected error for zero severity")
	}
}
