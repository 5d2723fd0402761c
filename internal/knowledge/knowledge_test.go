package knowledge

import (
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestDefaultBaseAndPrompt(t *testing.T) {
	m := newTestManager(t)

	base := m.Current()
	if base.CompanyName == "" {
		t.Fatal("default base has no company name")
	}

	prompt := m.SystemPrompt()
	if !strings.Contains(prompt, base.CompanyName) {
		t.Fatalf("prompt %q does not mention company", prompt)
	}
	if !strings.Contains(prompt, "Q: ") {
		t.Fatal("prompt does not include FAQ answers")
	}
}

func TestTemplateLifecyclePersists(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	tpl, err := m.SaveTemplate(Template{
		Name:     "Dental Clinic",
		Industry: "healthcare",
		Base: Base{
			CompanyName: "BrightSmile Dental",
			Industry:    "healthcare",
			FAQs:        []FAQ{{Question: "Do you take walk-ins?", Answer: "Yes, before noon.", Keywords: []string{"walk-in"}}},
		},
	})
	if err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if tpl.ID == "" {
		t.Fatal("template id not assigned")
	}

	if err := m.ApplyTemplate(tpl.ID); err != nil {
		t.Fatalf("ApplyTemplate: %v", err)
	}
	if got := m.Current().CompanyName; got != "BrightSmile Dental" {
		t.Fatalf("applied base company = %q", got)
	}

	// Reload from disk: template and applied base both survive.
	m2, err := NewManager(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := m2.Template(tpl.ID); !ok {
		t.Fatal("template lost on reload")
	}
	if got := m2.Current().CompanyName; got != "BrightSmile Dental" {
		t.Fatalf("base after reload = %q", got)
	}

	if err := m2.DeleteTemplate(tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if err := m2.DeleteTemplate(tpl.ID); err == nil {
		t.Fatal("second delete succeeded")
	}
}

func TestSearchFAQ(t *testing.T) {
	m := newTestManager(t)
	err := m.UpdateBase(Base{
		CompanyName: "Acme",
		FAQs: []FAQ{
			{Question: "What time is check-in?", Answer: "3 PM.", Keywords: []string{"check-in", "time"}},
			{Question: "Is parking available?", Answer: "Yes, valet only.", Keywords: []string{"parking", "valet"}},
		},
	})
	if err != nil {
		t.Fatalf("UpdateBase: %v", err)
	}

	hits, gap := m.SearchFAQ("do you have parking?")
	if gap {
		t.Fatal("parking query reported as gap")
	}
	if len(hits) == 0 || hits[0].Answer != "Yes, valet only." {
		t.Fatalf("hits = %+v", hits)
	}

	hits, gap = m.SearchFAQ("can I bring my alpaca")
	if !gap || len(hits) != 0 {
		t.Fatalf("expected gap, got hits=%v gap=%v", hits, gap)
	}
}
