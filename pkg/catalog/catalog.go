// Package catalog loads and validates the on-disk POI records for a city and
// exposes a read-only in-memory view enriched with combo-ticket groups.
//
// Layout: data/pois/<city>/<slug>.yaml per POI, plus an optional
// data/pois/<city>/combo_tickets.yaml holding the city's combo groups.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"wayfarer/pkg/fault"
	"wayfarer/pkg/model"
)

const comboFileName = "combo_tickets.yaml"

// Issue is one validation finding, tagged error or warning.
type Issue struct {
	Severity string `json:"severity"` // "error" or "warning"
	POI      string `json:"poi,omitempty"`
	Group    string `json:"group,omitempty"`
	Message  string `json:"message"`
}

// Catalog is the loaded, enriched view of one city.
type Catalog struct {
	City string

	pois   map[string]*model.POI // by slug
	byName map[string]*model.POI // by lowercase name
	groups map[string]*model.ComboGroup
	order  []string // slugs in load order (sorted)
}

// Store resolves city directories under a data root.
type Store struct {
	root string
}

// NewStore creates a catalog store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{root: filepath.Join(dataDir, "pois")}
}

func (s *Store) cityDir(city string) string {
	return filepath.Join(s.root, model.Slugify(city))
}

// LoadCity reads every record for a city. A missing city directory is
// CITY_NOT_FOUND; an empty directory yields an empty catalog. Malformed
// records are skipped with a warning.
func (s *Store) LoadCity(city string) (*Catalog, error) {
	dir := s.cityDir(city)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.New(fault.NotFound, fault.CodeCityNotFound,
				"no POI records for city %q", city)
		}
		return nil, fault.Wrap(fault.IO, fault.CodeIO, err,
			"failed to read city directory %s", dir)
	}

	c := &Catalog{
		City:   model.Slugify(city),
		pois:   make(map[string]*model.POI),
		byName: make(map[string]*model.POI),
		groups: make(map[string]*model.ComboGroup),
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") || name == comboFileName {
			continue
		}
		p, err := loadPOI(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("skipping malformed POI record", "city", city, "file", name, "error", err)
			continue
		}
		if p.City == "" {
			p.City = city
		}
		c.pois[p.Slug] = p
		c.byName[strings.ToLower(p.Name)] = p
	}

	if err := s.loadCombos(dir, c); err != nil {
		return nil, err
	}
	c.enrich()

	c.order = make([]string, 0, len(c.pois))
	for slug := range c.pois {
		c.order = append(c.order, slug)
	}
	sort.Strings(c.order)

	slog.Info("catalog loaded", "city", c.City, "pois", len(c.pois), "combo_groups", len(c.groups))
	return c, nil
}

func loadPOI(path string) (*model.POI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p model.POI
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("record has no name")
	}
	if p.Slug == "" {
		p.Slug = model.Slugify(p.Name)
	}
	return &p, nil
}

func (s *Store) loadCombos(dir string, c *Catalog) error {
	path := filepath.Join(dir, comboFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fault.Wrap(fault.IO, fault.CodeIO, err, "failed to read combo tickets for %s", c.City)
	}
	var doc struct {
		Groups []*model.ComboGroup `yaml:"combo_tickets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping malformed combo ticket file", "city", c.City, "error", err)
		return nil
	}
	for _, g := range doc.Groups {
		if g.ID == "" {
			slog.Warn("skipping combo group without id", "city", c.City)
			continue
		}
		if g.City == "" {
			g.City = c.City
		}
		c.groups[g.ID] = g
	}
	return nil
}

// enrich attaches resolved combo groups to each POI. Unknown group IDs are
// dropped from the attached view with a warning.
func (c *Catalog) enrich() {
	for _, p := range c.pois {
		p.Combos = nil
		for _, id := range p.ComboTicketIDs {
			g, ok := c.groups[id]
			if !ok {
				slog.Warn("unknown combo group on POI", "poi", p.Slug, "group", id)
				continue
			}
			p.Combos = append(p.Combos, g)
		}
	}
}

// List returns all POIs in stable slug order.
func (c *Catalog) List() []*model.POI {
	out := make([]*model.POI, 0, len(c.order))
	for _, slug := range c.order {
		out = append(out, c.pois[slug])
	}
	return out
}

// Get resolves a POI by slug.
func (c *Catalog) Get(slug string) (*model.POI, error) {
	p, ok := c.pois[slug]
	if !ok {
		return nil, fault.New(fault.NotFound, fault.CodePOINotFound,
			"poi %q not in catalog for %s", slug, c.City)
	}
	return p, nil
}

// GetByName resolves a POI by display name (case-insensitive), falling back
// to slug matching. Selector output uses display names.
func (c *Catalog) GetByName(name string) (*model.POI, bool) {
	if p, ok := c.byName[strings.ToLower(name)]; ok {
		return p, true
	}
	p, ok := c.pois[model.Slugify(name)]
	return p, ok
}

// Len returns the number of loaded POIs.
func (c *Catalog) Len() int { return len(c.pois) }

// ComboGroups returns the city's combo groups in stable ID order.
func (c *Catalog) ComboGroups() []*model.ComboGroup {
	ids := make([]string, 0, len(c.groups))
	for id := range c.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*model.ComboGroup, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.groups[id])
	}
	return out
}

// Validate checks the bidirectional combo invariant and record hygiene.
// Invariant breaks are errors; everything else is a warning.
func (c *Catalog) Validate() []Issue {
	var issues []Issue

	for _, g := range c.ComboGroups() {
		if len(g.Members) < 2 || len(g.Members) > 10 {
			issues = append(issues, Issue{
				Severity: "warning", Group: g.ID,
				Message: fmt.Sprintf("combo group has %d members, expected 2..10", len(g.Members)),
			})
		}
		// Every member must list the group back.
		for _, member := range g.Members {
			p, ok := c.GetByName(member)
			if !ok {
				issues = append(issues, Issue{
					Severity: "error", Group: g.ID, POI: member,
					Message: "combo member not found in catalog",
				})
				continue
			}
			if !containsID(p.ComboTicketIDs, g.ID) {
				issues = append(issues, Issue{
					Severity: "error", Group: g.ID, POI: p.Slug,
					Message: "poi does not list combo group it belongs to",
				})
			}
		}
	}

	for _, slug := range c.order {
		p := c.pois[slug]
		// Every listed group must exist and list the POI.
		for _, id := range p.ComboTicketIDs {
			g, ok := c.groups[id]
			if !ok {
				issues = append(issues, Issue{
					Severity: "error", POI: slug, Group: id,
					Message: "poi lists unknown combo group",
				})
				continue
			}
			if !g.HasMember(p.Name) {
				issues = append(issues, Issue{
					Severity: "error", POI: slug, Group: id,
					Message: "combo group does not list poi as member",
				})
			}
		}
		if p.Location == nil || !p.Location.Valid() {
			issues = append(issues, Issue{
				Severity: "warning", POI: slug,
				Message: "poi has no valid coordinates",
			})
		}
	}
	return issues
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
