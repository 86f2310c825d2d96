package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/codearena/pkg/types"
)

var ErrNotFound = errors.New("not found")

// RejectedError means the service answered but refused the request.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rejected with status %d", e.Status)
	}
	return fmt.Sprintf("rejected with status %d: %s", e.Status, e.Message)
}

// TransportError means the service could not be reached or answered garbage.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

type Challenge struct {
	ID          string      `json:"_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Difficulty  string      `json:"difficulty"`
	Image       string      `json:"image,omitempty"`
	StarterCode *types.Code `json:"starterCode,omitempty"`
	HTMLStarter string      `json:"htmlStarter,omitempty"`
	CSSStarter  string      `json:"cssStarter,omitempty"`
	JSStarter   string      `json:"jsStarter,omitempty"`
}

// Starter returns the template code, accepting either wire shape.
func (c Challenge) Starter() types.Code {
	if c.StarterCode != nil {
		return *c.StarterCode
	}
	return types.Code{HTML: c.HTMLStarter, CSS: c.CSSStarter, JS: c.JSStarter}
}

type SubmitRequest struct {
	ChallengeID string `json:"challengeId"`
	types.Code
}

type SubmitResult struct {
	Success  bool   `json:"success"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Submission is a past attempt from the user's history.
type Submission struct {
	ID             string    `json:"_id"`
	ChallengeID    string    `json:"challengeId"`
	ChallengeTitle string    `json:"challengeTitle"`
	Username       string    `json:"username,omitempty"`
	Score          int       `json:"score"`
	Passed         bool      `json:"passed"`
	Feedback       string    `json:"feedback"`
	SubmittedAt    time.Time `json:"submittedAt"`
	types.Code
}

func (s Submission) ReplayCode() types.Code { return s.Code }
func (s Submission) ReplayTitle() string    { return s.ChallengeTitle }
func (s Submission) ReplayScore() int       { return s.Score }

func (s Submission) ReplayUsername() string {
	if s.Username == "" {
		return "Anonymous"
	}
	return s.Username
}

type WeeklyStat struct {
	Label       string `json:"label"`
	Score       int    `json:"score"`
	Submissions int    `json:"submissions"`
}

// BestScore is one row of the per-user board: each player's top score.
type BestScore struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	BestScore int    `json:"bestScore"`
}

// Name falls back to the user id, as the board shows it.
func (b BestScore) Name() string {
	if b.Username == "" {
		return b.UserID
	}
	return b.Username
}
