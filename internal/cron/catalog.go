package cron

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog task names recognized by the Cron Scheduler (spec.md §4.5).
const (
	TaskCleanCode            = "clean_code"
	TaskRunTests             = "run_tests"
	TaskCodeReview           = "code_review"
	TaskUpdateDeps           = "update_deps"
	TaskSecurityScan         = "security_scan"
	TaskPerformanceCheck     = "performance_check"
	TaskDocumentationUpdate  = "documentation_update"
)

// defaultDescriptions gives each catalog name its canonical,
// constant-per-name task description.
var defaultDescriptions = map[string]string{
	TaskCleanCode:           "Run the project's linter and formatter, then fix any issues they report.",
	TaskRunTests:            "Run the project's full test suite and report failures.",
	TaskCodeReview:          "Review recent changes for correctness, style, and missed edge cases.",
	TaskUpdateDeps:          "Check for outdated dependencies and update them within semver constraints.",
	TaskSecurityScan:        "Scan the project for known vulnerabilities in dependencies and code.",
	TaskPerformanceCheck:    "Profile the project's hot paths and report performance regressions.",
	TaskDocumentationUpdate: "Update documentation to reflect recent code changes.",
}

// Catalog resolves a catalog task name to its canonical description. A
// YAML file at the configured path may override or extend the
// defaults; its absence is not an error.
type Catalog struct {
	descriptions map[string]string
}

// LoadCatalog builds a Catalog from the built-in defaults, optionally
// overridden by a YAML file of name -> description pairs.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{descriptions: make(map[string]string, len(defaultDescriptions))}
	for k, v := range defaultDescriptions {
		c.descriptions[k] = v
	}

	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	for k, v := range overrides {
		c.descriptions[k] = v
	}
	return c, nil
}

// Resolve returns the description for name and whether it is known.
func (c *Catalog) Resolve(name string) (string, bool) {
	d, ok := c.descriptions[name]
	return d, ok
}

// Names returns every recognized catalog task name.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.descriptions))
	for n := range c.descriptions {
		names = append(names, n)
	}
	return names
}
