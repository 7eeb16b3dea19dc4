// Package catalog loads the units and items a deployment reviews from a
// versioned YAML file and writes them to the store.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/reviewlog"
	"github.com/abhisek/mnemo/internal/store"
	"github.com/abhisek/mnemo/internal/validate"
)

// FormatVersion is the newest catalog format this build reads. Files with
// the same major version are accepted.
const FormatVersion = "v1.1.0"

// ErrInvalid is returned for a catalog that parses but is inconsistent.
var ErrInvalid = errors.New("catalog: invalid")

//go:embed schema.json
var schemaJSON []byte

var fileSchema = validate.MustCompile("catalog", schemaJSON)

// Catalog is the parsed content of a catalog file.
type Catalog struct {
	Version string `yaml:"version"`
	Units   []Unit `yaml:"units"`
	Items   []Item `yaml:"items"`
}

// Unit is a knowledge unit. Params left out seed mastery with the
// configured defaults.
type Unit struct {
	ID     string          `yaml:"id"`
	Name   string          `yaml:"name"`
	Params *mastery.Params `yaml:"params"`
}

// Item is a flashcard or quiz question, optionally linked to a unit.
type Item struct {
	ID    string             `yaml:"id"`
	Kind  reviewlog.ItemKind `yaml:"kind"`
	Front string             `yaml:"front"`
	Back  string             `yaml:"back"`
	Unit  string             `yaml:"unit"`
}

// Load reads and parses the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the catalog schema, checks its version and
// cross references, and decodes it.
func Parse(data []byte) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := fileSchema.Validate(doc); err != nil {
		return nil, err
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) check() error {
	if !semver.IsValid(c.Version) {
		return fmt.Errorf("%w: version %q is not a semantic version", ErrInvalid, c.Version)
	}
	if semver.Major(c.Version) != semver.Major(FormatVersion) || semver.Compare(c.Version, FormatVersion) > 0 {
		return fmt.Errorf("%w: version %s is not supported (max %s)", ErrInvalid, c.Version, FormatVersion)
	}

	units := make(map[string]bool, len(c.Units))
	for _, u := range c.Units {
		if units[u.ID] {
			return fmt.Errorf("%w: duplicate unit %q", ErrInvalid, u.ID)
		}
		units[u.ID] = true
		if u.Params != nil {
			if err := u.Params.Validate(); err != nil {
				return fmt.Errorf("%w: unit %q: %w", ErrInvalid, u.ID, err)
			}
		}
	}

	items := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if items[it.ID] {
			return fmt.Errorf("%w: duplicate item %q", ErrInvalid, it.ID)
		}
		items[it.ID] = true
		if it.Unit != "" && !units[it.Unit] {
			return fmt.Errorf("%w: item %q references unknown unit %q", ErrInvalid, it.ID, it.Unit)
		}
	}
	return nil
}

// Writer is the part of the store an import needs. Both *store.Store and
// *store.Tx satisfy it.
type Writer interface {
	UpsertUnit(ctx context.Context, u *store.Unit) error
	UpsertItem(ctx context.Context, it *store.Item) error
}

// Result counts what an import wrote.
type Result struct {
	Units int `json:"units"`
	Items int `json:"items"`
}

// Import upserts every unit, then every item. Existing rows keep their
// creation time; their content is replaced.
func (c *Catalog) Import(ctx context.Context, w Writer, now time.Time) (Result, error) {
	var res Result
	for _, u := range c.Units {
		su := &store.Unit{ID: u.ID, Name: u.Name, CreatedAt: now}
		if u.Params != nil {
			su.Params = *u.Params
		}
		if err := w.UpsertUnit(ctx, su); err != nil {
			return res, err
		}
		res.Units++
	}
	for _, it := range c.Items {
		si := &store.Item{ID: it.ID, Kind: it.Kind, Front: it.Front, Back: it.Back, UnitID: it.Unit, CreatedAt: now}
		if err := w.UpsertItem(ctx, si); err != nil {
			return res, err
		}
		res.Items++
	}
	return res, nil
}
