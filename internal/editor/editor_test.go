package editor

import (
	"errors"
	"testing"

	"github.com/DoyleJ11/codearena/pkg/types"
)

func str(s string) *string { return &s }

func TestRemoteDelta_LeavesAbsentFieldsUntouched(t *testing.T) {
	base := State{
		Code:   types.Code{HTML: "<p>mine</p>", CSS: "p{}", JS: "let a = 1"},
		Origin: OriginLocal,
	}

	cases := []struct {
		name  string
		delta types.CodeDelta
		want  types.Code
	}{
		{
			name:  "css only",
			delta: types.CodeDelta{RoomID: "c1", CSS: str("body{color:red}")},
			want:  types.Code{HTML: "<p>mine</p>", CSS: "body{color:red}", JS: "let a = 1"},
		},
		{
			name:  "html and js",
			delta: types.CodeDelta{RoomID: "c1", HTML: str("<b>x</b>"), JS: str("")},
			want:  types.Code{HTML: "<b>x</b>", CSS: "p{}", JS: ""},
		},
		{
			name:  "explicit empty string is a value",
			delta: types.CodeDelta{RoomID: "c1", HTML: str("")},
			want:  types.Code{HTML: "", CSS: "p{}", JS: "let a = 1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, got, err := Apply(base, Command{Type: CmdRemoteDelta, Delta: tc.delta})
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Code != tc.want {
				t.Fatalf("got %+v, want %+v", got.Code, tc.want)
			}
			if got.Origin != OriginRemote {
				t.Fatalf("origin: got %s, want %s", got.Origin, OriginRemote)
			}
			if !ContainsEvent(events, EvtFieldApplied) {
				t.Fatalf("expected EvtFieldApplied")
			}
		})
	}
}

func TestRemoteDelta_RejectsEmpty(t *testing.T) {
	s := State{Code: types.Code{HTML: "a"}}
	_, got, err := Apply(s, Command{Type: CmdRemoteDelta, Delta: types.CodeDelta{RoomID: "c1"}})
	if !errors.Is(err, ErrEmptyDelta) {
		t.Fatalf("want ErrEmptyDelta, got %v", err)
	}
	if got != s {
		t.Fatalf("state changed on error: %+v", got)
	}
}

func TestLocalEdit_ReplacesOneField(t *testing.T) {
	s := State{Code: types.Code{HTML: "<div>Hi</div>"}, Origin: OriginStarter}
	events, got, err := Apply(s, Command{Type: CmdLocalEdit, Field: FieldHTML, Value: "<p>Edited</p>"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Code != (types.Code{HTML: "<p>Edited</p>"}) {
		t.Fatalf("got %+v", got.Code)
	}
	if len(events) != 1 || events[0].Type != EvtFieldEdited || events[0].Field != FieldHTML {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestLocalEdit_UnknownField(t *testing.T) {
	_, _, err := Apply(State{}, Command{Type: CmdLocalEdit, Field: "ts", Value: "x"})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("want ErrUnknownField, got %v", err)
	}
}

func TestReset_RestoresStarter(t *testing.T) {
	starter := types.Code{HTML: "<div>Hi</div>"}
	s := State{Code: types.Code{HTML: "x", CSS: "y", JS: "z"}, Origin: OriginRemote}
	events, got, err := Apply(s, Command{Type: CmdReset, Code: starter})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Code != starter || got.Origin != OriginStarter {
		t.Fatalf("got %+v", got)
	}
	if !ContainsEvent(events, EvtReset) {
		t.Fatalf("expected EvtReset")
	}
}

func TestUnsupportedCommand(t *testing.T) {
	_, _, err := Apply(State{}, Command{Type: "Undo"})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("want ErrUnsupportedCommand, got %v", err)
	}
}

func TestFieldDelta_CarriesOnlyOneField(t *testing.T) {
	d := FieldDelta("c1", FieldCSS, "a{}")
	if d.HTML != nil || d.JS != nil || d.CSS == nil || *d.CSS != "a{}" {
		t.Fatalf("unexpected delta %+v", d)
	}
	full := FullDelta("c1", types.Code{HTML: "h", CSS: "c", JS: "j"})
	for _, f := range Fields {
		if _, ok := DeltaValue(full, f); !ok {
			t.Fatalf("full delta missing %s", f)
		}
	}
}

func TestParseField(t *testing.T) {
	for _, s := range []string{"html", "css", "js"} {
		if _, err := ParseField(s); err != nil {
			t.Fatalf("ParseField(%q): %v", s, err)
		}
	}
	if _, err := ParseField("HTML"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("want ErrUnknownField, got %v", err)
	}
}
