package leaderboard

import (
	"sort"
	"time"

	"github.com/DoyleJ11/codearena/pkg/types"
)

const anonymous = "Anonymous"

// Entry is one ranked submission. The embedded code is the replay payload.
type Entry struct {
	ID             string    `json:"_id"`
	Username       *string   `json:"username"`
	Score          int       `json:"score"`
	HighestStreak  *int      `json:"highestStreak"`
	ChallengeTitle string    `json:"challengeTitle,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
	types.Code
}

func (e Entry) DisplayName() string {
	if e.Username == nil || *e.Username == "" {
		return anonymous
	}
	return *e.Username
}

func (e Entry) Streak() int {
	if e.HighestStreak == nil {
		return 0
	}
	return *e.HighestStreak
}

func (e Entry) ReplayCode() types.Code { return e.Code }
func (e Entry) ReplayTitle() string    { return e.ChallengeTitle }
func (e Entry) ReplayUsername() string { return e.DisplayName() }
func (e Entry) ReplayScore() int       { return e.Score }

// Rank orders entries by score, then highest streak, both descending. Entries
// equal on both keep their incoming order. The input slice is not modified.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Streak() > out[j].Streak()
	})
	return out
}
