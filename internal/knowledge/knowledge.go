// Package knowledge holds the assistant's knowledge base: company profile,
// FAQ entries, and industry templates that can be applied to swap the whole
// profile at once. State is persisted as JSON files under a data directory.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type FAQ struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords,omitempty"`
}

type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Base is the live knowledge profile rendered into the system prompt.
type Base struct {
	CompanyName string    `json:"company_name"`
	Industry    string    `json:"industry"`
	Description string    `json:"description"`
	Tone        string    `json:"tone,omitempty"`
	Products    []Product `json:"products,omitempty"`
	FAQs        []FAQ     `json:"faqs,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Template is a named, reusable Base for one industry vertical.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Base     Base   `json:"base"`
}

const (
	baseFile      = "knowledge.json"
	templatesFile = "templates.json"
)

// Manager owns the on-disk knowledge state.
type Manager struct {
	mu        sync.RWMutex
	dir       string
	base      Base
	templates map[string]Template
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	m := &Manager{
		dir:       dir,
		base:      defaultBase(),
		templates: make(map[string]Template),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func defaultBase() Base {
	return Base{
		CompanyName: "Acme Hospitality",
		Industry:    "hospitality",
		Description: "A hotel group taking reservations by voice.",
		Tone:        "warm, concise, professional",
		FAQs: []FAQ{
			{
				Question: "What time is check-in?",
				Answer:   "Check-in starts at 3 PM and check-out is at 11 AM.",
				Keywords: []string{"check-in", "check-out", "time"},
			},
		},
		UpdatedAt: time.Now().UTC(),
	}
}

func (m *Manager) load() error {
	if err := readJSON(filepath.Join(m.dir, baseFile), &m.base); err != nil {
		return err
	}
	var list []Template
	if err := readJSON(filepath.Join(m.dir, templatesFile), &list); err != nil {
		return err
	}
	for _, t := range list {
		m.templates[t.ID] = t
	}
	return nil
}

// readJSON fills out from path if the file exists; a missing file keeps the
// default value.
func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func (m *Manager) persistBase() error {
	return writeJSON(filepath.Join(m.dir, baseFile), m.base)
}

func (m *Manager) persistTemplates() error {
	list := make([]Template, 0, len(m.templates))
	for _, t := range m.templates {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return writeJSON(filepath.Join(m.dir, templatesFile), list)
}

func (m *Manager) Current() Base {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.base
}

func (m *Manager) UpdateBase(b Base) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.UpdatedAt = time.Now().UTC()
	m.base = b
	return m.persistBase()
}

func (m *Manager) Templates() []Template {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Template, 0, len(m.templates))
	for _, t := range m.templates {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func (m *Manager) Template(id string) (Template, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	return t, ok
}

// SaveTemplate inserts or replaces; an empty id gets a fresh UUID.
func (m *Manager) SaveTemplate(t Template) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.templates[t.ID] = t
	return t, m.persistTemplates()
}

func (m *Manager) DeleteTemplate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return fmt.Errorf("template %q not found", id)
	}
	delete(m.templates, id)
	return m.persistTemplates()
}

// ApplyTemplate replaces the live base with the template's.
func (m *Manager) ApplyTemplate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return fmt.Errorf("template %q not found", id)
	}
	m.base = t.Base
	m.base.UpdatedAt = time.Now().UTC()
	return m.persistBase()
}

// SearchFAQ scores FAQ entries by keyword and question-word overlap with the
// query. A miss (no entry scores) signals a knowledge gap to the caller.
func (m *Manager) SearchFAQ(query string) ([]FAQ, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, false
	}

	type scored struct {
		faq   FAQ
		score int
	}
	var hits []scored
	for _, faq := range m.base.FAQs {
		score := 0
		for _, term := range terms {
			for _, kw := range faq.Keywords {
				if strings.Contains(strings.ToLower(kw), term) {
					score += 2
				}
			}
			if strings.Contains(strings.ToLower(faq.Question), term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{faq, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]FAQ, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.faq)
	}
	return out, len(out) == 0
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'")
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// SystemPrompt renders the live base into the instruction text sent as the
// session's system content segment.
func (m *Manager) SystemPrompt() string {
	m.mu.RLock()
	base := m.base
	m.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "You are a voice assistant for %s", base.CompanyName)
	if base.Industry != "" {
		fmt.Fprintf(&b, ", a company in the %s industry", base.Industry)
	}
	b.WriteString(". ")
	if base.Description != "" {
		b.WriteString(base.Description)
		b.WriteString(" ")
	}
	if base.Tone != "" {
		fmt.Fprintf(&b, "Keep your tone %s. ", base.Tone)
	}
	b.WriteString("Keep responses short, generally two or three sentences for chatty scenarios.")

	if len(base.Products) > 0 {
		b.WriteString("\n\nProducts and services:")
		for _, p := range base.Products {
			fmt.Fprintf(&b, "\n- %s: %s", p.Name, p.Description)
		}
	}
	if len(base.FAQs) > 0 {
		b.WriteString("\n\nKnown answers:")
		for _, f := range base.FAQs {
			fmt.Fprintf(&b, "\nQ: %s\nA: %s", f.Question, f.Answer)
		}
	}
	return b.String()
}
