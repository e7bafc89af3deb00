// Package metrics constructs the metrics the engine will track.
package metrics

import (
	"expvar"
	"time"
)

var m metrics

type metrics struct {
	turns            *expvar.Int
	errors           *expvar.Int
	panics           *expvar.Int
	modelLoadTime    *avgMetric
	projLoadTime     *avgMetric
	imageEmbedTime   *avgMetric
	prefillTime      *avgMetric
	timeToFirstToken *avgMetric
	turnTokens       *avgMetric
	tokensPerSecond  *avgMetric
}

func init() {
	m = metrics{
		turns:            expvar.NewInt("llava_turns"),
		errors:           expvar.NewInt("llava_errors"),
		panics:           expvar.NewInt("llava_panics"),
		modelLoadTime:    newAvgMetric("llava_model_load"),
		projLoadTime:     newAvgMetric("llava_model_load_proj"),
		imageEmbedTime:   newAvgMetric("llava_image_embed"),
		prefillTime:      newAvgMetric("llava_prefill"),
		timeToFirstToken: newAvgMetric("llava_ttft"),
		turnTokens:       newAvgMetric("llava_turn_tkns"),
		tokensPerSecond:  newAvgMetric("llava_turn_tkns_persecond"),
	}
}

// AddTurns increments the turn metric by 1.
func AddTurns() int64 {
	m.turns.Add(1)
	return m.turns.Value()
}

// AddErrors increments the errors metric by 1.
func AddErrors() int64 {
	m.errors.Add(1)
	return m.errors.Value()
}

// AddPanics increments the panics metric by 1.
func AddPanics() int64 {
	m.panics.Add(1)
	return m.panics.Value()
}

// AddModelFileLoadTime captures the specified duration for loading a model file.
func AddModelFileLoadTime(duration time.Duration) {
	m.modelLoadTime.add(duration.Seconds())
}

// AddProjFileLoadTime captures the specified duration for loading a proj file.
func AddProjFileLoadTime(duration time.Duration) {
	m.projLoadTime.add(duration.Seconds())
}

// AddImageEmbedTime captures the specified duration for embedding an image.
func AddImageEmbedTime(duration time.Duration) {
	m.imageEmbedTime.add(duration.Seconds())
}

// AddPrefillTime captures the specified duration for evaluating a transcript.
func AddPrefillTime(duration time.Duration) {
	m.prefillTime.add(duration.Seconds())
}

// AddTimeToFirstToken captures the specified duration for ttft.
func AddTimeToFirstToken(duration time.Duration) {
	m.timeToFirstToken.add(duration.Seconds())
}

// AddTurnUsage captures the tokens produced by a turn and the rate they were
// produced at.
func AddTurnUsage(tokens int, duration time.Duration) {
	m.turnTokens.add(float64(tokens))

	if duration > 0 {
		m.tokensPerSecond.add(float64(tokens) / duration.Seconds())
	}
}

// =============================================================================

// Stat is a summary of an averaged metric.
type Stat struct {
	Count int64
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
}

// Stats is a point in time copy of the engine metrics. Durations are in
// seconds.
type Stats struct {
	Turns            int64
	Errors           int64
	Panics           int64
	ModelLoad        Stat
	ProjLoad         Stat
	ImageEmbed       Stat
	Prefill          Stat
	TimeToFirstToken Stat
	TurnTokens       Stat
	TokensPerSecond  Stat
}

// Snapshot returns the current values of the engine metrics.
func Snapshot() Stats {
	return Stats{
		Turns:            m.turns.Value(),
		Errors:           m.errors.Value(),
		Panics:           m.panics.Value(),
		ModelLoad:        m.modelLoadTime.stat(),
		ProjLoad:         m.projLoadTime.stat(),
		ImageEmbed:       m.imageEmbedTime.stat(),
		Prefill:          m.prefillTime.stat(),
		TimeToFirstToken: m.timeToFirstToken.stat(),
		TurnTokens:       m.turnTokens.stat(),
		TokensPerSecond:  m.tokensPerSecond.stat(),
	}
}
