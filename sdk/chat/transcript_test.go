package chat

import (
	"testing"
)

func Test_Serialize(t *testing.T) {
	tt := []struct {
		name  string
		turns []Turn
		want  string
	}{
		{
			name: "empty",
			want: "",
		},
		{
			name: "exchange",
			turns: []Turn{
				newTurn(RoleUser, "Hello", nil),
				newTurn(RoleAssistant, "Hi there", nil),
			},
			want: "###Human: Hello ###Assistant: Hi there ",
		},
		{
			name: "image turn keeps text only",
			turns: []Turn{
				newTurn(RoleUser, " ", []byte("img")),
			},
			want: "###Human:   ",
		},
		{
			name: "notices skipped",
			turns: []Turn{
				newNotice("Model loading failed: boom"),
				newTurn(RoleUser, "again", nil),
				newTurn(RoleAssistant, "", nil),
				newNotice("Response generation failed: boom"),
			},
			want: "###Human: again ###Assistant:  ",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := Serialize(tc.turns); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func Test_CutAtStop(t *testing.T) {
	tt := []struct {
		name     string
		response string
		fragment string
		want     string
		stop     bool
	}{
		{"plain", "Hi", " there", "Hi there", false},
		{"in-fragment", "Hi", " there ###Human:", "Hithere", true},
		{"marker-only", "answer", "###", "answer", true},
		{"leading-space", "", "  padded ###", "padded", true},
		{"hashes", "one # two", " ## three", "one # two ## three", false},
		{"split-two", "split #", "##Human: no", "split ", true},
		{"split-one", "split ##", "#Human: no", "split ", true},
		{"double", "a", "####b", "a", true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, stop := cutAtStop(tc.response, tc.fragment)
			if got != tc.want || stop != tc.stop {
				t.Errorf("cutAtStop(%q, %q) = %q, %v; want %q, %v", tc.response, tc.fragment, got, stop, tc.want, tc.stop)
			}
		})
	}
}

func Test_PhaseString(t *testing.T) {
	tt := map[Phase]string{
		PhaseIdle:               "idle",
		PhaseEmbeddingImage:     "embedding-image",
		PhaseGeneratingResponse: "generating-response",
		PhaseReloadingModel:     "reloading-model",
		Phase(99):               "unknown",
	}

	for p, want := range tt {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}
