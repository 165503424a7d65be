package telemetry

import "strings"

// maxElementText bounds the visible text captured from a click target.
const maxElementText = 200

// interactiveTags are elements that respond to clicks without any script.
var interactiveTags = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"select":   true,
	"textarea": true,
}

// Element describes the target of a click as reported by the host.
type Element struct {
	Tag             string `json:"tag" yaml:"tag"`
	ID              string `json:"id,omitempty" yaml:"id"`
	Class           string `json:"class,omitempty" yaml:"class"`
	Text            string `json:"text,omitempty" yaml:"text"`
	HasClickHandler bool   `json:"hasClickHandler,omitempty" yaml:"hasClickHandler"`
	Cursor          string `json:"cursor,omitempty" yaml:"cursor"`
}

// TagName returns the lower-cased tag.
func (e Element) TagName() string {
	return strings.ToLower(strings.TrimSpace(e.Tag))
}

// Selector returns a short CSS-like selector: #id, then .firstClass, then
// the tag name.
func (e Element) Selector() string {
	if e.ID != "" {
		return "#" + e.ID
	}
	if classes := strings.Fields(e.Class); len(classes) > 0 {
		return "." + classes[0]
	}
	return e.TagName()
}

// IsInteractive reports whether a click on e has an apparent effect: a
// natively interactive tag, an attached click handler, or a pointer cursor.
func (e Element) IsInteractive() bool {
	if interactiveTags[e.TagName()] {
		return true
	}
	if e.HasClickHandler {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(e.Cursor), "pointer")
}

// TruncatedText returns at most 200 runes of the element's visible text.
func (e Element) TruncatedText() string {
	runes := []rune(e.Text)
	if len(runes) <= maxElementText {
		return e.Text
	}
	return string(runes[:maxElementText])
}
