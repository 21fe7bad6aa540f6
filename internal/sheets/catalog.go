package sheets

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

// CatalogCourse is one course entry as written in the YAML catalog.
type CatalogCourse struct {
	CourseType string  `yaml:"course_type"`
	TotalMax   float64 `yaml:"total_max"`
	ESEMax     float64 `yaml:"ese_max,omitempty"`
	Credits    float64 `yaml:"credits,omitempty"`
}

// Catalog maps subject codes to course configs, for sheets that do not carry them per row.
//
//	protocol: exclusive
//	moderation: cap
//	courses:
//	  MA101: {course_type: Theory, total_max: 100, ese_max: 60, credits: 4}
type Catalog struct {
	Protocol   string                   `yaml:"protocol,omitempty"`
	Moderation string                   `yaml:"moderation,omitempty"`
	Courses    map[string]CatalogCourse `yaml:"courses"`

	resolved map[string]grading.CourseConfig
}

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes a catalog. Course types must be known; range checks are left to the
// engine so one bad course rejects only its own subject.
func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c.resolved = make(map[string]grading.CourseConfig, len(c.Courses))
	for code, cc := range c.Courses {
		typ, err := grading.ParseCourseType(cc.CourseType)
		if err != nil {
			return nil, fmt.Errorf("catalog course %s: %w", code, err)
		}
		cfg := grading.CourseConfig{TotalMax: cc.TotalMax, ESEMax: cc.ESEMax, Type: typ}
		if cfg.ESEMax == 0 {
			cfg.ESEMax = grading.DefaultESEMax(cfg.TotalMax)
		}
		c.resolved[code] = cfg
	}
	return &c, nil
}

// Course implements grading.CourseLookup.
func (c *Catalog) Course(subject string) (grading.CourseConfig, bool) {
	if c == nil {
		return grading.CourseConfig{}, false
	}
	cfg, ok := c.resolved[subject]
	return cfg, ok
}

// Credits returns the catalog credit count for subject, or 0.
func (c *Catalog) Credits(subject string) float64 {
	if c == nil {
		return 0
	}
	return c.Courses[subject].Credits
}

// Policy overlays the catalog's protocol and moderation on base.
func (c *Catalog) Policy(base grading.Policy) (grading.Policy, error) {
	if c == nil {
		return base, nil
	}
	if c.Protocol != "" {
		p, err := grading.ParseProtocol(c.Protocol)
		if err != nil {
			return base, err
		}
		base.Protocol = p
	}
	if c.Moderation != "" {
		m, err := grading.ParseModeration(c.Moderation)
		if err != nil {
			return base, err
		}
		base.Moderation = m
	}
	return base, nil
}

// Subjects lists the catalog's subject codes in sorted order.
func (c *Catalog) Subjects() []string {
	out := make([]string, 0, len(c.Courses))
	for k := range c.Courses {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FillCredits sets credits from the catalog on records that have none.
func (c *Catalog) FillCredits(recs []grading.Record) {
	for i := range recs {
		if recs[i].Credits == 0 {
			recs[i].Credits = c.Credits(recs[i].SubjectCode)
		}
	}
}
