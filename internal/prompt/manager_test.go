package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "criteria.json"))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestManagerAddListRoundTrip(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Add("Always archive newsletters from vendor X")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.ID == "" || !first.Enabled {
		t.Fatalf("criterion = %+v", first)
	}
	if _, err := m.Add("Alert on anything from the bank"); err != nil {
		t.Fatalf("add second: %v", err)
	}

	got, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list = %d entries, want 2", len(got))
	}
	if got[0].ID != first.ID {
		t.Fatalf("creation order not preserved")
	}
}

func TestManagerRejectsEmptyText(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Add("   "); err == nil {
		t.Fatalf("expected error for blank criterion")
	}
	c, _ := m.Add("keep me")
	if _, err := m.Update(c.ID, ""); err == nil {
		t.Fatalf("expected error for blank update")
	}
}

func TestManagerUpdateAndToggle(t *testing.T) {
	m := newTestManager(t)
	c, _ := m.Add("original text")

	updated, err := m.Update(c.ID, "revised text")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Text != "revised text" {
		t.Fatalf("text = %q", updated.Text)
	}

	toggled, err := m.Toggle(c.ID, false)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.Enabled {
		t.Fatalf("criterion still enabled")
	}

	got, _ := m.List()
	if got[0].Enabled || got[0].Text != "revised text" {
		t.Fatalf("persisted state: %+v", got[0])
	}
}

func TestManagerUnknownIDs(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Update("nope", "text"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update error = %v", err)
	}
	if _, err := m.Toggle("nope", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("toggle error = %v", err)
	}
	if err := m.Delete("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete error = %v", err)
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Add("keep")
	b, _ := m.Add("drop")

	if err := m.Delete(b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := m.List()
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("remaining = %+v", got)
	}
}

func TestManagerAugment(t *testing.T) {
	m := newTestManager(t)

	base := "Base prompt."
	got, err := m.Augment(base)
	if err != nil {
		t.Fatalf("augment: %v", err)
	}
	if got != base {
		t.Fatalf("empty criteria must leave the base untouched, got %q", got)
	}

	m.Add("rule one")
	disabled, _ := m.Add("rule two")
	m.Toggle(disabled.ID, false)

	got, err = m.Augment(base)
	if err != nil {
		t.Fatalf("augment: %v", err)
	}
	if !strings.Contains(got, "Additional user-specified criteria:\n- rule one") {
		t.Fatalf("augmented prompt:\n%s", got)
	}
	if strings.Contains(got, "rule two") {
		t.Fatalf("disabled criterion leaked into the prompt:\n%s", got)
	}
}

func TestManagerToleratesCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "criteria.json")
	if err := os.WriteFile(path, []byte("{{{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	got, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("corrupted file must read as empty, got %+v", got)
	}
	// Writing after corruption starts a fresh list.
	if _, err := m.Add("fresh start"); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ = m.List()
	if len(got) != 1 {
		t.Fatalf("list after recovery = %d", len(got))
	}
}
