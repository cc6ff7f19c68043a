// Package catalog loads the gear and boost definitions a loadout is built
// from. A default catalog is compiled in; an optional YAML file overrides or
// extends it by id.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/raid-extract/internal/raid"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrUnknownItem is returned by Resolve for an id missing from the catalog.
var ErrUnknownItem = errors.New("unknown catalog item")

// ErrDuplicateItem is returned by Resolve when a loadout names an id twice.
var ErrDuplicateItem = errors.New("duplicate catalog item")

// Catalog is the set of purchasable gear and boosts.
type Catalog struct {
	Version string       `yaml:"version" json:"version"`
	Gear    []raid.Gear  `yaml:"gear" json:"gear"`
	Boosts  []raid.Boost `yaml:"boosts" json:"boosts"`
}

// Default returns the compiled-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Parse decodes and checks a catalog document.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load returns the default catalog merged with the file at path. An empty
// path or a missing file yields the default.
func Load(path string) (*Catalog, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	override, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return merge(base, override), nil
}

// Validate checks ids are present and unique and boost types are known.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool)
	for _, g := range c.Gear {
		if g.ID == "" {
			return errors.New("gear item without id")
		}
		if seen[g.ID] {
			return fmt.Errorf("duplicate gear id %q", g.ID)
		}
		seen[g.ID] = true
	}

	seen = make(map[string]bool)
	for _, b := range c.Boosts {
		if b.ID == "" {
			return errors.New("boost without id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate boost id %q", b.ID)
		}
		seen[b.ID] = true
		switch b.Type {
		case raid.BoostRisk:
			if b.DriftMultiplier <= 0 {
				return fmt.Errorf("risk boost %q needs a positive drift_multiplier", b.ID)
			}
		case raid.BoostMultiplier:
		default:
			return fmt.Errorf("boost %q has unknown type %q", b.ID, b.Type)
		}
	}
	return nil
}

// Resolve looks up a loadout by id, preserving the requested order. Each
// item may be equipped once.
func (c *Catalog) Resolve(gearIDs, boostIDs []string) ([]raid.Gear, []raid.Boost, error) {
	if id, ok := firstRepeat(gearIDs); ok {
		return nil, nil, fmt.Errorf("%w: gear %q", ErrDuplicateItem, id)
	}
	if id, ok := firstRepeat(boostIDs); ok {
		return nil, nil, fmt.Errorf("%w: boost %q", ErrDuplicateItem, id)
	}

	gear := make([]raid.Gear, 0, len(gearIDs))
	for _, id := range gearIDs {
		g, ok := c.gear(id)
		if !ok {
			return nil, nil, fmt.Errorf("%w: gear %q", ErrUnknownItem, id)
		}
		gear = append(gear, g)
	}

	boosts := make([]raid.Boost, 0, len(boostIDs))
	for _, id := range boostIDs {
		b, ok := c.boost(id)
		if !ok {
			return nil, nil, fmt.Errorf("%w: boost %q", ErrUnknownItem, id)
		}
		boosts = append(boosts, b)
	}
	return gear, boosts, nil
}

func firstRepeat(ids []string) (string, bool) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return "", false
}

func (c *Catalog) gear(id string) (raid.Gear, bool) {
	for _, g := range c.Gear {
		if g.ID == id {
			return g, true
		}
	}
	return raid.Gear{}, false
}

func (c *Catalog) boost(id string) (raid.Boost, bool) {
	for _, b := range c.Boosts {
		if b.ID == id {
			return b, true
		}
	}
	return raid.Boost{}, false
}

// merge overlays b onto a: items with a known id are replaced in place,
// new ids are appended.
func merge(a, b *Catalog) *Catalog {
	out := &Catalog{
		Version: a.Version,
		Gear:    append([]raid.Gear(nil), a.Gear...),
		Boosts:  append([]raid.Boost(nil), a.Boosts...),
	}
	if b.Version != "" {
		out.Version = b.Version
	}

	for _, g := range b.Gear {
		replaced := false
		for i := range out.Gear {
			if out.Gear[i].ID == g.ID {
				out.Gear[i] = g
				replaced = true
				break
			}
		}
		if !replaced {
			out.Gear = append(out.Gear, g)
		}
	}

	for _, bo := range b.Boosts {
		replaced := false
		for i := range out.Boosts {
			if out.Boosts[i].ID == bo.ID {
				out.Boosts[i] = bo
				replaced = true
				break
			}
		}
		if !replaced {
			out.Boosts = append(out.Boosts, bo)
		}
	}
	return out
}
