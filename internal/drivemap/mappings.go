package drivemap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fleetline/agent/internal/config"
	"github.com/fleetline/agent/internal/logging"
)

var (
	usernameToken = regexp.MustCompile(`(?i)%username%`)
	letterPattern = regexp.MustCompile(`^[A-Za-z]$`)
)

// ParseMappings turns raw config records into mappings: %USERNAME%
// placeholders are substituted, the comma-separated group filter is split,
// and the drive letter is normalized to upper case. Malformed records are
// logged and dropped; the run proceeds with the remainder.
func ParseMappings(records []config.DriveMappingRecord, username string) []Mapping {
	mappings := make([]Mapping, 0, len(records))

	for _, rec := range records {
		m, err := parseRecord(rec, username)
		if err != nil {
			log.Warn("skipping malformed drive mapping", "id", rec.ID, logging.KeyError, err)
			continue
		}
		mappings = append(mappings, m)
	}
	return mappings
}

func parseRecord(rec config.DriveMappingRecord, username string) (Mapping, error) {
	if !letterPattern.MatchString(rec.DriveLetter) {
		return Mapping{}, fmt.Errorf("drive letter %q must be a single letter", rec.DriveLetter)
	}

	path := usernameToken.ReplaceAllString(rec.Path, username)
	if !strings.HasPrefix(path, `\\`) {
		return Mapping{}, fmt.Errorf("path %q is not a UNC path", path)
	}

	var filter []string
	for _, part := range strings.Split(rec.GroupFilter, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter = append(filter, part)
		}
	}

	return Mapping{
		ID:          rec.ID,
		Path:        path,
		DriveLetter: strings.ToUpper(rec.DriveLetter),
		Label:       usernameToken.ReplaceAllString(rec.Label, username),
		GroupFilter: filter,
	}, nil
}

// Filter keeps every mapping whose group filter is empty, and a filtered
// mapping iff at least one filter entry matches a group the user belongs to.
// Matching is case-insensitive.
func Filter(mappings []Mapping, memberships []string) []Mapping {
	memberSet := make(map[string]bool, len(memberships))
	for _, g := range memberships {
		memberSet[strings.ToLower(g)] = true
	}

	kept := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		if len(m.GroupFilter) == 0 {
			kept = append(kept, m)
			continue
		}
		for _, want := range m.GroupFilter {
			if memberSet[strings.ToLower(want)] {
				kept = append(kept, m)
				break
			}
		}
	}
	return kept
}
