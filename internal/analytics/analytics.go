// Package analytics aggregates run-history records into the summaries
// shown by the history command. All functions are pure so they can be
// tested without a live database.
package analytics

import (
	"math"
	"sort"

	"github.com/lucasnoah/devloop/internal/db"
)

// RunSummary holds convergence and duration stats across runs.
type RunSummary struct {
	Total         int     `json:"total"`
	Converged     int     `json:"converged"`
	ConvergedPct  float64 `json:"converged_pct"`
	AvgIterations float64 `json:"avg_iterations"`
	AvgDurationS  float64 `json:"avg_duration_s"`
	P50DurationS  float64 `json:"p50_duration_s"`
	P95DurationS  float64 `json:"p95_duration_s"`
}

// Summarize computes aggregate stats over a set of runs.
func Summarize(runs []db.RunRecord) RunSummary {
	s := RunSummary{Total: len(runs)}
	if len(runs) == 0 {
		return s
	}

	var durations []float64
	var iterSum int
	for _, r := range runs {
		if r.Converged {
			s.Converged++
		}
		iterSum += r.Iterations
		durations = append(durations, r.DurationS)
	}
	sort.Float64s(durations)

	s.ConvergedPct = pct(s.Converged, s.Total)
	s.AvgIterations = math.Round(float64(iterSum)/float64(s.Total)*10) / 10
	s.AvgDurationS = avg(durations)
	s.P50DurationS = percentile(durations, 50)
	s.P95DurationS = percentile(durations, 95)
	return s
}

// GateStats holds pass/fail stats for one named gate.
type GateStats struct {
	Name         string  `json:"name"`
	Total        int     `json:"total"`
	FailPct      float64 `json:"fail_pct"`
	BlockedPct   float64 `json:"blocked_pct"`
	AvgDurationS float64 `json:"avg_duration_s"`
}

// GateBreakdown groups gate records by name and computes failure rates,
// sorted by failure rate descending then name.
func GateBreakdown(records []db.GateRecord) []GateStats {
	type tally struct {
		total, failed, blocked int
		durations              []float64
	}
	byName := make(map[string]*tally)
	for _, g := range records {
		t, ok := byName[g.Name]
		if !ok {
			t = &tally{}
			byName[g.Name] = t
		}
		t.total++
		switch g.Status {
		case "fail":
			t.failed++
		case "blocked":
			t.blocked++
		}
		t.durations = append(t.durations, g.DurationS)
	}

	var results []GateStats
	for name, t := range byName {
		sort.Float64s(t.durations)
		results = append(results, GateStats{
			Name:         name,
			Total:        t.total,
			FailPct:      pct(t.failed, t.total),
			BlockedPct:   pct(t.blocked, t.total),
			AvgDurationS: avg(t.durations),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FailPct != results[j].FailPct {
			return results[i].FailPct > results[j].FailPct
		}
		return results[i].Name < results[j].Name
	})
	return results
}

// OutcomeDist holds the distribution of iteration outcomes.
type OutcomeDist struct {
	Total         int     `json:"total"`
	PassPct       float64 `json:"pass_pct"`
	GateFailPct   float64 `json:"gate_fail_pct"`
	VerifyFailPct float64 `json:"verify_fail_pct"`
}

// OutcomeDistribution computes how iterations terminated across runs.
func OutcomeDistribution(iters []db.IterationRecord) OutcomeDist {
	d := OutcomeDist{Total: len(iters)}
	if len(iters) == 0 {
		return d
	}
	var pass, gateFail, verifyFail int
	for _, it := range iters {
		switch it.Outcome {
		case "pass":
			pass++
		case "gate_fail":
			gateFail++
		case "verify_fail":
			verifyFail++
		}
	}
	d.PassPct = pct(pass, d.Total)
	d.GateFailPct = pct(gateFail, d.Total)
	d.VerifyFailPct = pct(verifyFail, d.Total)
	return d
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
