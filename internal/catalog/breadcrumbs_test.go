package catalog

import "testing"

func TestBuildCategoryBreadcrumbs(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		labels   []string
	}{
		{name: "root only", segments: nil, labels: []string{"Women"}},
		{name: "one level", segments: []string{"clothing"}, labels: []string{"Women", "Clothing"}},
		{name: "two levels", segments: []string{"clothing", "shorts"}, labels: []string{"Women", "Clothing", "Shorts"}},
		{name: "three levels", segments: []string{"clothing", "shorts", "running-shorts"}, labels: []string{"Women", "Clothing", "Shorts", "Running Shorts"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			crumbs := BuildCategoryBreadcrumbs("women", tc.segments)
			if len(crumbs) != len(tc.segments)+1 {
				t.Fatalf("expected %d crumbs, got %d", len(tc.segments)+1, len(crumbs))
			}
			if crumbs[0].Href != "/women" {
				t.Fatalf("unexpected root href %q", crumbs[0].Href)
			}
			for i := 1; i < len(crumbs); i++ {
				if want := crumbs[i-1].Href + "/" + tc.segments[i-1]; crumbs[i].Href != want {
					t.Fatalf("crumb %d href %q, want %q", i, crumbs[i].Href, want)
				}
			}
			for i, label := range tc.labels {
				if crumbs[i].Label != label {
					t.Fatalf("crumb %d label %q, want %q", i, crumbs[i].Label, label)
				}
			}
		})
	}
}

func TestHumanize(t *testing.T) {
	if got := Humanize("trail-running-shoes"); got != "Trail Running Shoes" {
		t.Fatalf("unexpected label %q", got)
	}
}
