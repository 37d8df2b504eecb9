package domain

import (
	"fmt"
	"sort"
	"strings"
)

// AccountSelection narrows the loaded account population for one batch.
type AccountSelection struct {
	Include []string
	Exclude []string
	Limit   int
}

func (s AccountSelection) Validate() error {
	if s.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	include := normalizeNames(s.Include)
	for _, excluded := range normalizeNames(s.Exclude) {
		for _, included := range include {
			if included == excluded {
				return fmt.Errorf("account %q is both included and excluded", excluded)
			}
		}
	}

	return nil
}

// Apply returns the selected names in a stable order: the include list order
// when one is given, otherwise sorted loaded names.
func (s AccountSelection) Apply(loaded []string) []string {
	known := make(map[string]struct{}, len(loaded))
	for _, name := range loaded {
		known[name] = struct{}{}
	}

	var selected []string
	if include := normalizeNames(s.Include); len(include) > 0 {
		selected = include
	} else {
		selected = normalizeNames(loaded)
		sort.Strings(selected)
	}

	excluded := make(map[string]struct{}, len(s.Exclude))
	for _, name := range normalizeNames(s.Exclude) {
		excluded[name] = struct{}{}
	}

	result := make([]string, 0, len(selected))
	for _, name := range selected {
		if _, ok := excluded[name]; ok {
			continue
		}
		if _, ok := known[name]; !ok {
			continue
		}
		result = append(result, name)
		if s.Limit > 0 && len(result) == s.Limit {
			break
		}
	}

	return result
}

func normalizeNames(names []string) []string {
	result := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}

	return result
}
