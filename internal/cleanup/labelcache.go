package cleanup

import (
	"context"
	"fmt"
	"strings"

	"github.com/inboxvalet/inboxvalet/internal/gmail"
)

// LabelCache memoizes name→id label lookups for a single run of one mailbox.
// Lookups are case-insensitive. The cache is filled lazily on first use and
// refreshed at most once more when a lookup misses, so a label created out of
// band is still found without a second network round trip per message.
type LabelCache struct {
	client    gmail.Client
	byName    map[string]gmail.Label
	loaded    bool
	refreshed bool
}

func NewLabelCache(client gmail.Client) *LabelCache {
	return &LabelCache{client: client, byName: map[string]gmail.Label{}}
}

// Ensure resolves the label name to its provider id. With create set, a
// missing label is created with default visibility and cached under its
// canonical provider-returned name.
func (c *LabelCache) Ensure(ctx context.Context, name string, create bool) (gmail.LabelID, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: label name must be non-empty", ErrInvalidArgument)
	}
	if err := c.load(ctx); err != nil {
		return "", err
	}
	key := strings.ToLower(trimmed)
	if l, ok := c.byName[key]; ok {
		return l.ID, nil
	}
	if !c.refreshed {
		if err := c.refresh(ctx); err != nil {
			return "", err
		}
		c.refreshed = true
		if l, ok := c.byName[key]; ok {
			return l.ID, nil
		}
	}
	if !create {
		return "", fmt.Errorf("%w: %q", ErrLabelNotFound, trimmed)
	}
	created, err := c.client.CreateLabel(ctx, trimmed)
	if err != nil {
		return "", err
	}
	c.byName[strings.ToLower(created.Name)] = created
	return created.ID, nil
}

// UserLabelNames returns the names of user-type labels, used to steer the
// classifier toward reusing labels instead of inventing near-duplicates.
func (c *LabelCache) UserLabelNames(ctx context.Context) ([]string, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.byName))
	for _, l := range c.byName {
		if l.Type == "user" && l.Name != "" {
			names = append(names, l.Name)
		}
	}
	return names, nil
}

func (c *LabelCache) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	c.loaded = true
	return nil
}

func (c *LabelCache) refresh(ctx context.Context) error {
	labels, err := c.client.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	c.byName = make(map[string]gmail.Label, len(labels))
	for _, l := range labels {
		c.byName[strings.ToLower(l.Name)] = l
	}
	return nil
}
