package drafts

import (
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/codearena/pkg/types"
)

var ErrNoChallenge = errors.New("draft without challenge id")

// Draft is the in-progress code for one challenge. Last local write wins.
type Draft struct {
	ChallengeID string    `json:"challengeId"`
	HTML        string    `json:"html"`
	CSS         string    `json:"css"`
	JS          string    `json:"js"`
	SavedAt     time.Time `json:"savedAt"`
}

func (d Draft) Code() types.Code {
	return types.Code{HTML: d.HTML, CSS: d.CSS, JS: d.JS}
}

func FromCode(challengeID string, c types.Code, at time.Time) Draft {
	return Draft{ChallengeID: challengeID, HTML: c.HTML, CSS: c.CSS, JS: c.JS, SavedAt: at}
}

// Store is synchronous keyed storage. Load reports ok=false on a first visit.
type Store interface {
	Save(challengeID string, d Draft) error
	Load(challengeID string) (Draft, bool, error)
}

// Key namespaces a draft per challenge.
func Key(challengeID string) string {
	return "challenge-code-" + challengeID
}

type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Draft)}
}

func (m *MemoryStore) Save(challengeID string, d Draft) error {
	if challengeID == "" {
		return ErrNoChallenge
	}
	d.ChallengeID = challengeID
	m.mu.Lock()
	m.drafts[Key(challengeID)] = d
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(challengeID string) (Draft, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[Key(challengeID)]
	return d, ok, nil
}
