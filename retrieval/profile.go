package retrieval

import (
	"sync"
	"time"

	"github.com/contextware/recall/core"
)

// UserProfile accumulates what retrieval has learned about one user:
// preference weights for memory types, tags, and context keys, plus
// the users whose access patterns resemble theirs.
type UserProfile struct {
	UserID             string                     `json:"user_id"`
	TagPreferences     map[string]float64         `json:"tag_preferences"`
	TypePreferences    map[core.MemoryType]float64 `json:"type_preferences"`
	ContextPreferences map[string]float64         `json:"context_preferences"`
	SimilarUsers       []string                   `json:"similar_users,omitempty"`
	LastUpdated        time.Time                  `json:"last_updated"`
}

func newProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:             userID,
		TagPreferences:     make(map[string]float64),
		TypePreferences:    make(map[core.MemoryType]float64),
		ContextPreferences: make(map[string]float64),
	}
}

// Profiles is the concurrency-safe profile registry. Queries without a
// user get a throwaway anonymous profile that is never stored.
type Profiles struct {
	mu       sync.Mutex
	profiles map[string]*UserProfile
}

// NewProfiles creates an empty registry.
func NewProfiles() *Profiles {
	return &Profiles{profiles: make(map[string]*UserProfile)}
}

// Get returns a copy of the profile for a user, creating the stored
// profile on first sight. An empty user id yields a fresh anonymous
// profile. The copy is safe to score against while concurrent
// retrievals keep learning into the registry.
func (p *Profiles) Get(userID string) *UserProfile {
	if userID == "" {
		return newProfile("anonymous")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[userID]
	if !ok {
		prof = newProfile(userID)
		p.profiles[userID] = prof
	}
	return cloneProfileLocked(prof)
}

// Snapshot returns a copy of a stored profile, or nil when the user is
// unknown.
func (p *Profiles) Snapshot(userID string) *UserProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[userID]
	if !ok {
		return nil
	}
	return cloneProfileLocked(prof)
}

// cloneProfileLocked copies a profile's maps and slices. Callers hold
// the registry mutex.
func cloneProfileLocked(prof *UserProfile) *UserProfile {
	out := newProfile(prof.UserID)
	out.LastUpdated = prof.LastUpdated
	out.SimilarUsers = append([]string(nil), prof.SimilarUsers...)
	for k, v := range prof.TagPreferences {
		out.TagPreferences[k] = v
	}
	for k, v := range prof.TypePreferences {
		out.TypePreferences[k] = v
	}
	for k, v := range prof.ContextPreferences {
		out.ContextPreferences[k] = v
	}
	return out
}

// SetSimilarUsers replaces the similar-user list for a user.
func (p *Profiles) SetSimilarUsers(userID string, similar []string) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[userID]
	if !ok {
		prof = newProfile(userID)
		p.profiles[userID] = prof
	}
	prof.SimilarUsers = append([]string(nil), similar...)
}

// learn nudges preference weights toward the items a retrieval
// returned. New preferences start at 0.5; type hits add 0.05 and tag
// hits add 0.02, both capped at 1.0.
func (p *Profiles) learn(userID string, results []Result, now time.Time) {
	if userID == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[userID]
	if !ok {
		prof = newProfile(userID)
		p.profiles[userID] = prof
	}

	for _, res := range results {
		t := res.Item.Type
		if _, ok := prof.TypePreferences[t]; !ok {
			prof.TypePreferences[t] = 0.5
		}
		prof.TypePreferences[t] = min(1.0, prof.TypePreferences[t]+0.05)

		for _, tag := range res.Item.Tags {
			if _, ok := prof.TagPreferences[tag]; !ok {
				prof.TagPreferences[tag] = 0.5
			}
			prof.TagPreferences[tag] = min(1.0, prof.TagPreferences[tag]+0.02)
		}
	}
	prof.LastUpdated = now
}
