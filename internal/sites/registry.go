package sites

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/parser"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

//go:embed profiles.yaml
var builtinProfiles []byte

// profileFile is the on-disk format:
//
//	sites:
//	  - site_id: carrefour
//	    search_url: https://www.carrefoursa.com
//	    name_selectors: ["h3.item-name"]
//	    ...
type profileFile struct {
	Sites []models.SiteProfile `yaml:"sites"`
}

// Registry holds loaded site profiles keyed by site id. It is read-only
// after construction and safe for concurrent use.
type Registry struct {
	profiles map[string]*models.SiteProfile
	order    []string
}

// Builtin returns the profiles shipped with the binary.
func Builtin() (*Registry, error) {
	return Parse(builtinProfiles)
}

// Load reads profiles from path. An empty path yields the built-in set.
func Load(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Builtin()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML profiles, fills language defaults and validates each.
func Parse(data []byte) (*Registry, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles YAML: %w", err)
	}
	if len(file.Sites) == 0 {
		return nil, fmt.Errorf("profiles file defines no sites")
	}

	r := &Registry{profiles: make(map[string]*models.SiteProfile, len(file.Sites))}
	for i := range file.Sites {
		profile := file.Sites[i]
		profile.ID = strings.ToLower(strings.TrimSpace(profile.ID))

		if errs := profile.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("site %d (%s): %s", i, profile.ID, strings.Join(errs, "; "))
		}
		if _, dup := r.profiles[profile.ID]; dup {
			return nil, fmt.Errorf("duplicate site_id %q", profile.ID)
		}
		if profile.QuantityRules.IsEmpty() {
			profile.QuantityRules = parser.RulesForLanguage(profile.Language)
		}

		r.profiles[profile.ID] = &profile
		r.order = append(r.order, profile.ID)
	}

	return r, nil
}

// Get resolves a site id case-insensitively.
func (r *Registry) Get(siteID string) (*models.SiteProfile, error) {
	profile, ok := r.profiles[strings.ToLower(strings.TrimSpace(siteID))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", scraper.ErrUnknownSite, siteID)
	}
	return profile, nil
}

// List returns profiles in file order.
func (r *Registry) List() []*models.SiteProfile {
	out := make([]*models.SiteProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}

// IDs returns the site ids sorted alphabetically.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}
