package metrics_test

import (
	"encoding/json"
	"expvar"
	"testing"
	"time"

	"github.com/ardanlabs/llava/sdk/llava/observ/metrics"
)

func Test_Averages(t *testing.T) {
	for _, d := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		metrics.AddImageEmbedTime(d)
	}

	s := metrics.Snapshot().ImageEmbed

	if s.Count != 3 {
		t.Fatalf("got count %d, want 3", s.Count)
	}

	if s.Min != 1 || s.Max != 3 || s.Avg != 2 {
		t.Errorf("got min %v max %v avg %v, want 1 3 2", s.Min, s.Max, s.Avg)
	}

	v := expvar.Get("llava_image_embed")
	if v == nil {
		t.Fatal("expected the image embed metric to be published")
	}

	var published struct {
		Count int64   `json:"count"`
		Avg   float64 `json:"avg"`
	}
	if err := json.Unmarshal([]byte(v.String()), &published); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if published.Count != 3 || published.Avg != 2 {
		t.Errorf("got published %+v, want count 3 avg 2", published)
	}
}

func Test_Counters(t *testing.T) {
	before := metrics.Snapshot()

	metrics.AddTurns()
	metrics.AddTurns()
	metrics.AddErrors()

	after := metrics.Snapshot()

	if after.Turns-before.Turns != 2 {
		t.Errorf("got %d new turns, want 2", after.Turns-before.Turns)
	}

	if after.Errors-before.Errors != 1 {
		t.Errorf("got %d new errors, want 1", after.Errors-before.Errors)
	}
}

func Test_TurnUsage(t *testing.T) {
	metrics.AddTurnUsage(10, 2*time.Second)
	metrics.AddTurnUsage(5, 0)

	s := metrics.Snapshot()

	if s.TurnTokens.Count != 2 || s.TurnTokens.Max != 10 {
		t.Errorf("unexpected turn tokens %+v", s.TurnTokens)
	}

	if s.TokensPerSecond.Count != 1 || s.TokensPerSecond.Avg != 5 {
		t.Errorf("unexpected tokens per second %+v", s.TokensPerSecond)
	}
}
