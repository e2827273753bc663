package core

import (
	"strings"
	"time"
)

// Context captures the situation a memory item was created in, or the
// situation a query is issued from. All fields are optional; an empty
// field means "unknown" and is excluded from similarity comparisons.
type Context struct {
	Project     string            `json:"project,omitempty"`
	Session     string            `json:"session,omitempty"`
	User        string            `json:"user,omitempty"`
	Application string            `json:"application,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Location    string            `json:"location,omitempty"`
	Timestamp   time.Time         `json:"timestamp,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsZero reports whether no context field is set.
func (c Context) IsZero() bool {
	return c.Project == "" && c.Session == "" && c.User == "" &&
		c.Application == "" && c.Environment == "" && c.Location == "" &&
		c.Timestamp.IsZero() && len(c.Metadata) == 0
}

// Key returns the canonical association key for this context, built
// from the project, user, application, and environment dimensions in
// that order. Contexts with none of those set share the "default" key.
func (c Context) Key() string {
	var parts []string
	if c.Project != "" {
		parts = append(parts, "project:"+c.Project)
	}
	if c.User != "" {
		parts = append(parts, "user:"+c.User)
	}
	if c.Application != "" {
		parts = append(parts, "app:"+c.Application)
	}
	if c.Environment != "" {
		parts = append(parts, "env:"+c.Environment)
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, "|")
}

// Similarity scores how closely two contexts match, in [0, 1].
// Each dimension contributes a fixed weight when both sides set it and
// the values are equal; the sum is divided by the number of comparable
// dimensions, so a single exact project match between otherwise-empty
// contexts scores 1.0.
func (c Context) Similarity(other Context) float64 {
	if c.IsZero() || other.IsZero() {
		return 0.0
	}

	score := 0.0
	factors := 0

	if c.Project != "" && other.Project != "" {
		if c.Project == other.Project {
			score += 1.0
		}
		factors++
	}
	if c.User != "" && other.User != "" {
		if c.User == other.User {
			score += 0.8
		}
		factors++
	}
	if c.Session != "" && other.Session != "" {
		if c.Session == other.Session {
			score += 0.6
		}
		factors++
	}
	if c.Application != "" && other.Application != "" {
		if c.Application == other.Application {
			score += 0.4
		}
		factors++
	}
	if c.Environment != "" && other.Environment != "" {
		if c.Environment == other.Environment {
			score += 0.3
		}
		factors++
	}

	if factors == 0 {
		return 0.0
	}
	return score / float64(factors)
}

// Collaborative reports whether the context metadata marks this as
// shared or team work.
func (c Context) Collaborative() bool {
	if len(c.Metadata) == 0 {
		return false
	}
	for _, key := range []string{"team", "shared", "collaboration"} {
		if _, ok := c.Metadata[key]; ok {
			return true
		}
	}
	return false
}
