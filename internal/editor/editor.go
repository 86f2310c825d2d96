package editor

import (
	"errors"

	"github.com/DoyleJ11/codearena/pkg/types"
)

var ErrUnknownField = errors.New("unknown field")
var ErrEmptyDelta = errors.New("empty delta")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Field string

const (
	FieldHTML Field = "html"
	FieldCSS  Field = "css"
	FieldJS   Field = "js"
)

// Fields lists every editable field in tab order.
var Fields = []Field{FieldHTML, FieldCSS, FieldJS}

// Origin records which of the allowed sources produced the current content.
type Origin string

const (
	OriginStarter Origin = "starter"
	OriginDraft   Origin = "draft"
	OriginLocal   Origin = "local"
	OriginRemote  Origin = "remote"
)

type State struct {
	Code   types.Code
	Origin Origin
}

type CommandType string

const (
	CmdLoad        CommandType = "Load"
	CmdLocalEdit   CommandType = "LocalEdit"
	CmdRemoteDelta CommandType = "RemoteDelta"
	CmdReset       CommandType = "Reset"
)

/*
	CmdLoad        -> EvtLoaded
	CmdLocalEdit   -> EvtFieldEdited           (save later, broadcast that one field now)
	CmdRemoteDelta -> EvtFieldApplied per field (save later, never re-broadcast)
	CmdReset       -> EvtReset                 (save now, broadcast all three fields)
*/

type Command struct {
	Type   CommandType
	Field  Field
	Value  string
	Delta  types.CodeDelta
	Code   types.Code
	Origin Origin // CmdLoad only
}

type EventType string

const (
	EvtLoaded       EventType = "Loaded"
	EvtFieldEdited  EventType = "FieldEdited"
	EvtFieldApplied EventType = "FieldApplied"
	EvtReset        EventType = "Reset"
)

type Event struct {
	Type  EventType
	Field Field
	Value string
}

// Apply is the only way editor content changes. It never mixes values from
// two sources inside one field: every field is replaced whole.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s

	switch cmd.Type {
	case CmdLoad:
		newState.Code = cmd.Code
		newState.Origin = cmd.Origin
		return []Event{{Type: EvtLoaded}}, newState, nil

	case CmdLocalEdit:
		code, err := Set(s.Code, cmd.Field, cmd.Value)
		if err != nil {
			return nil, s, err
		}
		newState.Code = code
		newState.Origin = OriginLocal
		return []Event{{Type: EvtFieldEdited, Field: cmd.Field, Value: cmd.Value}}, newState, nil

	case CmdRemoteDelta:
		if cmd.Delta.Empty() {
			return nil, s, ErrEmptyDelta
		}
		var events []Event
		for _, f := range Fields {
			v, ok := DeltaValue(cmd.Delta, f)
			if !ok {
				continue
			}
			newState.Code, _ = Set(newState.Code, f, v)
			events = append(events, Event{Type: EvtFieldApplied, Field: f, Value: v})
		}
		newState.Origin = OriginRemote
		return events, newState, nil

	case CmdReset:
		newState.Code = cmd.Code
		newState.Origin = OriginStarter
		return []Event{{Type: EvtReset}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}
