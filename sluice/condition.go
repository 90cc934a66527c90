package sluice

import (
	"fmt"
	"sort"
	"strings"
)

// -----------------------------------------------------------------------------
// Exact Condition
// -----------------------------------------------------------------------------

// exactCondition matches a single value.
type exactCondition struct {
	value string
}

// Exact creates a condition that matches exactly the given value.
func Exact(value string) Condition {
	return &exactCondition{value: value}
}

func (c *exactCondition) Match(value string) bool {
	return value == c.value
}

func (c *exactCondition) String() string {
	return fmt.Sprintf("= %q", c.value)
}

// -----------------------------------------------------------------------------
// Set Condition
// -----------------------------------------------------------------------------

// inCondition matches any value in a set.
type inCondition struct {
	values map[string]struct{}
}

// In creates a condition that matches any of the given values.
func In(values ...string) Condition {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return &inCondition{values: set}
}

func (c *inCondition) Match(value string) bool {
	_, ok := c.values[value]
	return ok
}

func (c *inCondition) String() string {
	values := make([]string, 0, len(c.values))
	for v := range c.values {
		values = append(values, fmt.Sprintf("%q", v))
	}
	sort.Strings(values)
	return "in {" + strings.Join(values, ", ") + "}"
}

// -----------------------------------------------------------------------------
// Range Condition
// -----------------------------------------------------------------------------

// betweenCondition matches values in a lexicographic range.
type betweenCondition struct {
	lo string
	hi string
}

// Between creates a condition that matches values v with lo <= v <= hi in
// lexicographic order. Telemetry layouts encode dates and build IDs so that
// lexicographic order is chronological order.
func Between(lo, hi string) Condition {
	return &betweenCondition{lo: lo, hi: hi}
}

func (c *betweenCondition) Match(value string) bool {
	return c.lo <= value && value <= c.hi
}

func (c *betweenCondition) String() string {
	return fmt.Sprintf("between [%q, %q]", c.lo, c.hi)
}

// -----------------------------------------------------------------------------
// Function Condition
// -----------------------------------------------------------------------------

// funcCondition matches via an arbitrary predicate function.
type funcCondition struct {
	fn func(value string) bool
}

// MatchFunc creates a condition from an arbitrary predicate function.
// The function must be safe for concurrent use.
func MatchFunc(fn func(value string) bool) Condition {
	return &funcCondition{fn: fn}
}

func (c *funcCondition) Match(value string) bool {
	return c.fn(value)
}

func (c *funcCondition) String() string {
	return "func"
}
