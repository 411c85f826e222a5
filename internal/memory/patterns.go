package memory

import (
	"fmt"
	"math"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

func patternTypes(patterns []models.FlowPattern) map[models.PatternType]bool {
	out := make(map[models.PatternType]bool, len(patterns))
	for _, p := range patterns {
		out[p.Type] = true
	}
	return out
}

// recent returns at most n of the last records.
func recent(history []models.FlowRecord, n int) []models.FlowRecord {
	if n > 0 && len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

// detectPatterns recomputes every pattern over the lookback window, in a fixed order.
func (m *FlowMemory) detectPatterns(history []models.FlowRecord) []models.FlowPattern {
	records := recent(history, m.cfg.PatternLookback)
	var out []models.FlowPattern

	out = append(out, m.trendPatterns(records)...)
	if p, ok := m.stuckPattern(records); ok {
		out = append(out, p)
	}
	if p, ok := m.crisisPattern(records); ok {
		out = append(out, p)
	}
	if p, ok := m.dailyRhythm(records); ok {
		out = append(out, p)
	}
	return out
}

// trendPatterns slides a fixed window across the records and counts windows whose
// flow intensities only rise (escalating) or only fall (deescalating).
func (m *FlowMemory) trendPatterns(records []models.FlowRecord) []models.FlowPattern {
	size := m.cfg.PatternWindow
	if size < 2 || len(records) < size {
		return nil
	}
	windows := len(records) - size + 1

	var up, down int
	var lastUp, lastDown []models.FlowType
	for i := 0; i < windows; i++ {
		w := records[i : i+size]
		rising, falling := true, true
		for j := 1; j < len(w); j++ {
			prev, cur := w[j-1].FlowType.Intensity(), w[j].FlowType.Intensity()
			if cur < prev {
				rising = false
			}
			if cur > prev {
				falling = false
			}
		}
		first, last := w[0].FlowType.Intensity(), w[len(w)-1].FlowType.Intensity()
		switch {
		case rising && last > first:
			up++
			lastUp = windowFlows(w)
		case falling && last < first:
			down++
			lastDown = windowFlows(w)
		}
	}

	var out []models.FlowPattern
	if up > 0 {
		out = append(out, models.FlowPattern{
			Type:        models.PatternEscalating,
			Flows:       lastUp,
			Occurrences: up,
			Confidence:  float64(up) / float64(windows),
			Description: fmt.Sprintf("Sessions stepped up in intensity %d times", up),
		})
	}
	if down > 0 {
		out = append(out, models.FlowPattern{
			Type:        models.PatternDeescalating,
			Flows:       lastDown,
			Occurrences: down,
			Confidence:  float64(down) / float64(windows),
			Description: fmt.Sprintf("Sessions eased down in intensity %d times", down),
		})
	}
	return out
}

// stuckPattern fires when the latest records repeat one flow with nearly constant effectiveness.
func (m *FlowMemory) stuckPattern(records []models.FlowRecord) (models.FlowPattern, bool) {
	n := m.cfg.StuckWindow
	if n < 2 || len(records) < n {
		return models.FlowPattern{}, false
	}
	tail := records[len(records)-n:]
	ft := tail[0].FlowType
	values := make([]float64, 0, n)
	for _, r := range tail {
		if r.FlowType != ft {
			return models.FlowPattern{}, false
		}
		values = append(values, r.Effectiveness)
	}
	v := variance(values)
	if v >= m.cfg.StuckVariance {
		return models.FlowPattern{}, false
	}
	confidence := 1.0
	if m.cfg.StuckVariance > 0 {
		confidence = clamp(1-v/m.cfg.StuckVariance, 0, 1)
	}
	return models.FlowPattern{
		Type:        models.PatternStuck,
		Flows:       []models.FlowType{ft},
		Occurrences: n,
		Confidence:  confidence,
		Description: fmt.Sprintf("%s repeated %d times without change", ft, n),
	}, true
}

// crisisPattern fires on repeated crisis support and captures what followed each occurrence.
func (m *FlowMemory) crisisPattern(records []models.FlowRecord) (models.FlowPattern, bool) {
	count := 0
	var following []models.FlowType
	for i, r := range records {
		if r.FlowType != models.FlowCrisisSupport {
			continue
		}
		count++
		if i+1 < len(records) {
			next := records[i+1].FlowType
			if next != models.FlowCrisisSupport && !containsFlow(following, next) {
				following = append(following, next)
			}
		}
	}
	if count < m.cfg.CrisisPatternMin || count == 0 {
		return models.FlowPattern{}, false
	}
	return models.FlowPattern{
		Type:        models.PatternCrisis,
		Flows:       following,
		Occurrences: count,
		Confidence:  clamp(float64(count)/float64(len(records)), 0, 1),
		Description: fmt.Sprintf("Crisis support needed %d times recently", count),
	}, true
}

// dailyRhythm finds the flow used most often in the morning window.
func (m *FlowMemory) dailyRhythm(records []models.FlowRecord) (models.FlowPattern, bool) {
	counts := make(map[models.FlowType]int)
	total := 0
	for _, r := range records {
		h := r.Timestamp.In(m.loc).Hour()
		if h >= m.cfg.MorningStartHour && h < m.cfg.MorningEndHour {
			counts[r.FlowType]++
			total++
		}
	}
	var best models.FlowType
	bestCount := 0
	for _, ft := range models.AllFlowTypes {
		if counts[ft] > bestCount {
			best, bestCount = ft, counts[ft]
		}
	}
	if bestCount == 0 || bestCount < m.cfg.RhythmMinSamples {
		return models.FlowPattern{}, false
	}
	return models.FlowPattern{
		Type:        models.PatternDailyRhythm,
		Flows:       []models.FlowType{best},
		Occurrences: bestCount,
		Confidence:  float64(bestCount) / float64(total),
		Description: fmt.Sprintf("Mornings usually start with %s", best),
	}, true
}

func windowFlows(w []models.FlowRecord) []models.FlowType {
	out := make([]models.FlowType, len(w))
	for i, r := range w {
		out[i] = r.FlowType
	}
	return out
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += math.Pow(v-mean, 2)
	}
	return sq / float64(len(values))
}

func containsFlow(flows []models.FlowType, ft models.FlowType) bool {
	for _, f := range flows {
		if f == ft {
			return true
		}
	}
	return false
}
