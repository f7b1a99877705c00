package retro

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Int is a non-negative count as the upstream reports it. The API sends the
// same field as a number, a numeric string or null depending on the endpoint,
// so anything that is not a usable non-negative number decodes to 0.
type Int int64

func (n *Int) UnmarshalJSON(b []byte) error {
	*n = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v > 0 {
			*n = Int(v)
		}
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f < math.MaxInt64 {
		*n = Int(f)
	}
	return nil
}

type UserProfile struct {
	User                string `json:"User"`
	TotalPoints         Int    `json:"TotalPoints"`
	TotalSoftcorePoints Int    `json:"TotalSoftcorePoints"`
	LastGameID          Int    `json:"LastGameID"`
	RichPresenceMsg     string `json:"RichPresenceMsg"`
}

type UserAwards struct {
	MasteryAwardsCount Int `json:"MasteryAwardsCount"`
}

type GameProgress struct {
	Title       string `json:"Title"`
	ConsoleName string `json:"ConsoleName"`
}

// RawProfile is everything the upstream said about one user. Game is nil when
// the user has no recent game or the game lookup failed.
type RawProfile struct {
	Profile UserProfile   `json:"profile"`
	Awards  UserAwards    `json:"awards"`
	Game    *GameProgress `json:"game,omitempty"`
}
