// Package profile turns upstream data into immutable Profile snapshots and
// keeps the raw upstream payloads in a TTL cache so the upstream API is hit
// at most once per user per TTL window.
package profile

import (
	"regexp"
	"strings"

	"github.com/leonardcser/retro-badge/internal/retro"
)

const (
	unknownTitle = "Unknown"
	notAvailable = "N/A"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

// ValidUsername reports whether name can be looked up upstream.
func ValidUsername(name string) bool { return usernamePattern.MatchString(name) }

type Stats struct {
	HardcorePoints int64 `json:"hardcore_points"`
	SoftcorePoints int64 `json:"softcore_points"`
	MasteryCount   int64 `json:"mastery_count"`
}

// Activity is what the user is playing right now.
type Activity struct {
	Title        string `json:"title"`
	Platform     string `json:"platform"`
	RichPresence string `json:"rich_presence"`
}

// Profile is a snapshot of one user. A nil Activity means the user is not
// currently playing anything we could resolve.
type Profile struct {
	Username string    `json:"username"`
	Stats    Stats     `json:"stats"`
	Activity *Activity `json:"activity,omitempty"`
}

// FromRaw builds a Profile, filling every missing field with its default.
func FromRaw(username string, raw *retro.RawProfile) Profile {
	p := Profile{Username: username}
	if raw == nil {
		return p
	}
	p.Stats = Stats{
		HardcorePoints: int64(raw.Profile.TotalPoints),
		SoftcorePoints: int64(raw.Profile.TotalSoftcorePoints),
		MasteryCount:   int64(raw.Awards.MasteryAwardsCount),
	}
	if raw.Game != nil {
		p.Activity = &Activity{
			Title:        orDefault(raw.Game.Title, unknownTitle),
			Platform:     orDefault(raw.Game.ConsoleName, notAvailable),
			RichPresence: orDefault(raw.Profile.RichPresenceMsg, notAvailable),
		}
	}
	return p
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
