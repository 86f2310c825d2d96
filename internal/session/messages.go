package session

import (
	"github.com/DoyleJ11/codearena/internal/api"
	"github.com/DoyleJ11/codearena/internal/drafts"
	"github.com/DoyleJ11/codearena/internal/editor"
	"github.com/DoyleJ11/codearena/pkg/types"
)

type Msg interface{ isSessionMsg() }

// Loaded carries the result of the concurrent challenge + draft lookups.
type Loaded struct {
	Challenge api.Challenge
	Draft     drafts.Draft
	HasDraft  bool
	Err       error
}

type LocalEdit struct {
	Field editor.Field
	Value string
	Reply chan error
}

type RemoteDelta struct {
	Room  string
	Delta types.CodeDelta
}

// SaveDue is posted by the debounce timer; Gen drops stale fires.
type SaveDue struct{ Gen int }

type Reset struct{ Reply chan error }

type GetView struct{ Reply chan View }

type Close struct{}

func (Loaded) isSessionMsg()      {}
func (LocalEdit) isSessionMsg()   {}
func (RemoteDelta) isSessionMsg() {}
func (SaveDue) isSessionMsg()     {}
func (Reset) isSessionMsg()       {}
func (GetView) isSessionMsg()     {}
func (Close) isSessionMsg()       {}
