package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the configuration for the given command mode.
// Modes: "link", "serve", "migrate", "intervention".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "link":
		problems = append(problems, c.validateStore()...)
		problems = append(problems, c.validateThresholds()...)
		if c.Linkage.ReportPath == "" {
			problems = append(problems, "linkage.report_path is required")
		}
		if c.Linkage.WritesPerSecond < 0 {
			problems = append(problems, "linkage.writes_per_second must be >= 0")
		}
	case "serve":
		problems = append(problems, c.validateStore()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "migrate", "intervention":
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var problems []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	return problems
}

func (c *Config) validateThresholds() []string {
	t := c.Linkage.Thresholds
	checks := []struct {
		name string
		v    float64
	}{
		{"org_accept", t.OrgAccept},
		{"org_margin", t.OrgMargin},
		{"org_core_overlap", t.OrgCoreOverlap},
		{"name_overlap", t.NameOverlap},
		{"link_min_confidence", t.LinkMinConfidence},
	}

	var problems []string
	for _, ch := range checks {
		if ch.v < 0 || ch.v > 1 {
			problems = append(problems, fmt.Sprintf("linkage.thresholds.%s must be between 0 and 1", ch.name))
		}
	}
	if t.LinkMinConfidence < LinkConfidenceFloor {
		problems = append(problems, fmt.Sprintf("linkage.thresholds.link_min_confidence must be >= %.2f", LinkConfidenceFloor))
	}
	return problems
}
