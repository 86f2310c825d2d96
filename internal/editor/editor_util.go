package editor

import (
	"fmt"

	"github.com/DoyleJ11/codearena/pkg/types"
)

func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldHTML, FieldCSS, FieldJS:
		return Field(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
}

func Get(c types.Code, f Field) string {
	switch f {
	case FieldHTML:
		return c.HTML
	case FieldCSS:
		return c.CSS
	case FieldJS:
		return c.JS
	}
	return ""
}

func Set(c types.Code, f Field, v string) (types.Code, error) {
	switch f {
	case FieldHTML:
		c.HTML = v
	case FieldCSS:
		c.CSS = v
	case FieldJS:
		c.JS = v
	default:
		return c, fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	return c, nil
}

// DeltaValue returns the value a delta carries for f, if any.
func DeltaValue(d types.CodeDelta, f Field) (string, bool) {
	var p *string
	switch f {
	case FieldHTML:
		p = d.HTML
	case FieldCSS:
		p = d.CSS
	case FieldJS:
		p = d.JS
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

// FieldDelta builds a delta carrying only f.
func FieldDelta(roomID string, f Field, v string) types.CodeDelta {
	d := types.CodeDelta{RoomID: roomID}
	switch f {
	case FieldHTML:
		d.HTML = &v
	case FieldCSS:
		d.CSS = &v
	case FieldJS:
		d.JS = &v
	}
	return d
}

// FullDelta builds a delta carrying all three fields, used to converge viewers.
func FullDelta(roomID string, c types.Code) types.CodeDelta {
	html, css, js := c.HTML, c.CSS, c.JS
	return types.CodeDelta{RoomID: roomID, HTML: &html, CSS: &css, JS: &js}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
