package chat

import "strings"

// Markers used to serialize the conversation for the model. StopMarker is
// how the end of an assistant turn is detected since the model has no
// explicit end of turn signal.
const (
	HumanMarker     = "###Human: "
	AssistantMarker = "###Assistant: "
	StopMarker      = "###"
)

// Serialize produces the transcript for the specified turns. Notices are
// skipped.
func Serialize(turns []Turn) string {
	var b strings.Builder

	for _, t := range turns {
		writeTurn(&b, t)
	}

	return b.String()
}

func writeTurn(b *strings.Builder, t Turn) {
	if t.Notice {
		return
	}

	switch t.Role {
	case RoleUser:
		b.WriteString(HumanMarker)
	case RoleAssistant:
		b.WriteString(AssistantMarker)
	default:
		return
	}

	b.WriteString(t.Text)
	b.WriteString(" ")
}

// cutAtStop appends the fragment to the response and reports whether the
// stop marker was found. A marker inside the fragment keeps only the trimmed
// text before it. A marker that starts at the end of the response and
// finishes in the fragment is cut from the joined text; the tokenizer can
// emit "###" as separate pieces.
func cutAtStop(response string, fragment string) (string, bool) {
	if before, _, found := strings.Cut(fragment, StopMarker); found {
		return response + strings.TrimSpace(before), true
	}

	joined := response + fragment

	if before, _, found := strings.Cut(joined, StopMarker); found {
		return before, true
	}

	return joined, false
}
