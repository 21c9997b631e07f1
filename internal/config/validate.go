package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var driveLetterRegex = regexp.MustCompile(`^[A-Za-z]$`)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Mapping-level problems are reported here but individual bad records are
// skipped at load time by the mapper, not treated as fatal.
func (c *Config) Validate() []error {
	var errs []error

	if c.Graph.Endpoint != "" {
		u, err := url.Parse(c.Graph.Endpoint)
		if err != nil {
			errs = append(errs, fmt.Errorf("graph.endpoint %q is not a valid URL: %w", c.Graph.Endpoint, err))
		} else if u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("graph.endpoint scheme must be https, got %q", u.Scheme))
		}
	}

	if v := c.Graph.APIVersion; v != "" && v != "beta" && v != "v1.0" {
		errs = append(errs, fmt.Errorf("graph.api_version must be \"beta\" or \"v1.0\", got %q", v))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug/info/warn/error", c.LogLevel))
	}

	for _, r := range c.CategoryRules {
		if r.Group == "" || r.Category == "" {
			errs = append(errs, fmt.Errorf("category rule %+v must set both group and category", r))
		}
	}

	for _, m := range c.DriveMappings {
		if !driveLetterRegex.MatchString(m.DriveLetter) {
			errs = append(errs, fmt.Errorf("drive mapping %d: drive_letter %q must be a single letter", m.ID, m.DriveLetter))
		}
		if !strings.HasPrefix(m.Path, `\\`) {
			errs = append(errs, fmt.Errorf("drive mapping %d: path %q is not a UNC path", m.ID, m.Path))
		}
	}

	return errs
}
