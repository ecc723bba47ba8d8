package sysfs

import (
	"fmt"
	"strings"

	"k8s.io/utils/cpuset"
)

// ParseRangeList expands a kernel CPU list such as "0-3,5,7-9" into its
// sorted members. Empty input yields an empty, non-nil slice.
func ParseRangeList(text string) ([]int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []int{}, nil
	}

	set, err := cpuset.Parse(strings.TrimSuffix(trimmed, ","))
	if err != nil {
		return []int{}, fmt.Errorf("parsing cpu list %q: %w", trimmed, err)
	}
	return set.List(), nil
}

// FormatRangeList renders cpus in kernel CPU list notation ("0-3,5").
func FormatRangeList(cpus []int) string {
	return cpuset.New(cpus...).String()
}

// ParseWhitespaceList splits text on runs of whitespace, keeping order.
func ParseWhitespaceList(text string) []string {
	fields := strings.Fields(text)
	if fields == nil {
		return []string{}
	}
	return fields
}
