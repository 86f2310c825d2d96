// Package replay reconstructs a past submission as a read-only preview.
package replay

import (
	"fmt"

	"github.com/DoyleJ11/codearena/internal/editor"
	"github.com/DoyleJ11/codearena/internal/sandbox"
	"github.com/DoyleJ11/codearena/pkg/types"
)

// Payload is anything carrying a stored submission: dashboard history rows
// and leaderboard entries both qualify.
type Payload interface {
	ReplayCode() types.Code
	ReplayTitle() string
	ReplayUsername() string
	ReplayScore() int
}

// Replay is immutable; it has no setters and the document is rendered once.
type Replay struct {
	title    string
	username string
	score    int
	code     types.Code
	document string
}

func Open(p Payload) Replay {
	code := p.ReplayCode()
	return Replay{
		title:    p.ReplayTitle(),
		username: p.ReplayUsername(),
		score:    p.ReplayScore(),
		code:     code,
		document: sandbox.Render(code),
	}
}

func (r Replay) Heading() string {
	return fmt.Sprintf("Replay: %s - Score: %d", r.username, r.score)
}

func (r Replay) Title() string    { return r.title }
func (r Replay) Username() string { return r.username }
func (r Replay) Score() int       { return r.score }
func (r Replay) Code() types.Code { return r.code }
func (r Replay) Document() string { return r.document }
func (r Replay) Frame() string    { return sandbox.Frame(r.document, "Replay Preview") }

// Tab returns the source shown in one editor tab.
func (r Replay) Tab(f editor.Field) string {
	return editor.Get(r.code, f)
}
