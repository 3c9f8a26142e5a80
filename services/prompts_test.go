package services

import (
	"strings"
	"testing"
)

func TestDefaultPromptCatalog(t *testing.T) {
	c, err := DefaultPromptCatalog()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	out, err := c.Render("job_tips", map[string]any{
		"Audience": "client",
		"Job":      jobPromptView{Title: "Hang shelves", Category: "Handyman", Budget: "50.00 USD - 80.00 USD"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "Job: Hang shelves") || strings.Contains(out, "Description:") {
		t.Fatalf("unexpected prompt:\n%s", out)
	}

	if _, err := c.Render("job_tips", map[string]any{"Job": jobPromptView{}}); err == nil {
		t.Fatal("expected an error for a missing key")
	}
	if _, err := c.Render("nope", nil); err == nil {
		t.Fatal("expected an error for an unknown prompt")
	}
}

func TestLoadPromptCatalogErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "rank: [",
		"empty template": "rank:\n  template: \"  \"\n",
		"bad template":   "rank:\n  template: \"{{ .Job \"\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadPromptCatalog([]byte(data)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
