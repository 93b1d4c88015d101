// Package prompt manages user-editable triage criteria that are appended to
// the base classification prompt. Criteria live in a JSON file so they survive
// restarts and can be edited out of band.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a criterion ID does not exist.
var ErrNotFound = errors.New("criterion not found")

// Criterion is one user-defined refinement.
type Criterion struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Enabled   bool   `json:"enabled"`
}

// Manager reads and writes the criteria file. All methods are safe for
// concurrent use; the file is reloaded on every call so external edits are
// picked up.
type Manager struct {
	path string
	mu   sync.Mutex
}

func NewManager(path string) (*Manager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("prompt: criteria path is required")
	}
	return &Manager{path: path}, nil
}

// List returns all criteria ordered by creation time.
func (m *Manager) List() ([]Criterion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

// Add appends a new enabled criterion.
func (m *Manager) Add(text string) (Criterion, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return Criterion{}, errors.New("prompt: criterion text must be non-empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.load()
	if err != nil {
		return Criterion{}, err
	}
	now := utcNow()
	c := Criterion{
		ID:        strings.ReplaceAll(uuid.NewString(), "-", ""),
		Text:      cleaned,
		CreatedAt: now,
		UpdatedAt: now,
		Enabled:   true,
	}
	records = append(records, c)
	if err := m.save(records); err != nil {
		return Criterion{}, err
	}
	return c, nil
}

// Update replaces the text of an existing criterion.
func (m *Manager) Update(id, text string) (Criterion, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return Criterion{}, errors.New("prompt: criterion text must be non-empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.load()
	if err != nil {
		return Criterion{}, err
	}
	for i := range records {
		if records[i].ID != id {
			continue
		}
		records[i].Text = cleaned
		records[i].UpdatedAt = utcNow()
		if err := m.save(records); err != nil {
			return Criterion{}, err
		}
		return records[i], nil
	}
	return Criterion{}, fmt.Errorf("prompt: %w: %s", ErrNotFound, id)
}

// Delete removes a criterion.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.load()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return fmt.Errorf("prompt: %w: %s", ErrNotFound, id)
	}
	return m.save(kept)
}

// Toggle enables or disables a criterion without touching its text.
func (m *Manager) Toggle(id string, enabled bool) (Criterion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.load()
	if err != nil {
		return Criterion{}, err
	}
	for i := range records {
		if records[i].ID != id {
			continue
		}
		records[i].Enabled = enabled
		records[i].UpdatedAt = utcNow()
		if err := m.save(records); err != nil {
			return Criterion{}, err
		}
		return records[i], nil
	}
	return Criterion{}, fmt.Errorf("prompt: %w: %s", ErrNotFound, id)
}

// Augment appends the enabled criteria to base as a bulleted section. Base is
// returned unchanged when no criteria are enabled.
func (m *Manager) Augment(base string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.load()
	if err != nil {
		return "", err
	}
	var lines []string
	for _, r := range records {
		if r.Enabled {
			lines = append(lines, "- "+r.Text)
		}
	}
	if len(lines) == 0 {
		return base, nil
	}
	return base + "\n\nAdditional user-specified criteria:\n" + strings.Join(lines, "\n"), nil
}

// load tolerates a missing or corrupted criteria file by returning an empty
// list; the file itself is left in place for inspection.
func (m *Manager) load() ([]Criterion, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("prompt: read criteria: %w", err)
	}
	var records []Criterion
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil
	}
	kept := records[:0]
	for _, r := range records {
		if r.ID != "" && r.Text != "" {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].CreatedAt < kept[j].CreatedAt })
	return kept, nil
}

func (m *Manager) save(records []Criterion) error {
	if records == nil {
		records = []Criterion{}
	}
	doc, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("prompt: encode criteria: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prompt: create criteria directory: %w", err)
		}
	}
	if err := os.WriteFile(m.path, doc, 0o644); err != nil {
		return fmt.Errorf("prompt: write criteria: %w", err)
	}
	return nil
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
