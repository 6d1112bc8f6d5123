package metrics

// Wrapper adapts Metrics to the narrow interfaces of the ranker and the
// server.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) RankingRunsInc() {
	w.m.RankingRuns.Inc()
}

func (w *Wrapper) RankingFailuresInc() {
	w.m.RankingFailures.Inc()
}

func (w *Wrapper) CandidatesEvaluatedAdd(n int) {
	w.m.CandidatesEvaluated.Add(float64(n))
}

func (w *Wrapper) CandidatesSkippedAdd(n int) {
	w.m.CandidatesSkipped.Add(float64(n))
}

func (w *Wrapper) CandidatesDegenerateAdd(n int) {
	w.m.CandidatesDegenerate.Add(float64(n))
}

func (w *Wrapper) RankingLatencyObserve(v float64) {
	w.m.RankingLatency.Observe(v)
}

// RequestObserve counts one request to endpoint with the given outcome:
// "ok", "invalid" for rejected input, "error" for failed measurements, or
// "aborted" when a websocket client leaves mid-stream.
func (w *Wrapper) RequestObserve(endpoint, outcome string) {
	w.m.Requests.WithLabelValues(endpoint, outcome).Inc()
}

func (w *Wrapper) RunsStoredInc() {
	w.m.RunsStored.Inc()
}

func (w *Wrapper) DatasetsLoadedInc() {
	w.m.DatasetsLoaded.Inc()
}
