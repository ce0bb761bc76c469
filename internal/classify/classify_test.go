package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/signalwatch/internal/model"
)

func TestTheme(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		content    string
		sourceType string
		want       model.Theme
	}{
		{"court ruling", "Appeals court ruling on benefits denial", "", "news", model.ThemeLegal},
		{"bill", "Veterans Disability Benefits Improvement Act", "", "bill", model.ThemeLegislation},
		{"gao report", "GAO Report on Disability Benefits Processing Backlog", "", "gao", model.ThemeOversight},
		{"healthcare", "New clinic opens for rural patients", "", "press", model.ThemeHealthcare},
		{"content fallback", "Secretary statement", "Budget shortfall expected next fiscal year", "press", model.ThemeBudget},
		{"source fallback", "Quarterly update", "", "oig", model.ThemeOversight},
		{"word boundary", "Factory tour", "", "press", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Theme(tt.title, tt.content, tt.sourceType)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected no theme, got %q", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("Theme() = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"GAO Report on Disability Benefits Processing Backlog", []string{"claims_backlog", "disability_benefits"}},
		{"Veterans Disability Benefits Improvement Act", []string{"disability_benefits"}},
		{"Burn pit registry expands under PACT Act", []string{"toxic_exposure"}},
		{"Ceremony honors volunteers", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Topics(tt.text)); diff != "" {
			t.Errorf("Topics(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestTopicNames(t *testing.T) {
	names := TopicNames()
	if len(names) != 16 {
		t.Errorf("expected 16 buckets, got %d", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
