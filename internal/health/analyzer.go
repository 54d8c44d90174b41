package health

import (
	"strings"

	"subscription-verifier/internal/logs"
	"subscription-verifier/internal/metrics"
)

// logWindow is how many recent log entries are scanned.
const logWindow = 100

// Analyzer converts metrics + logs into a health report.
type Analyzer struct {
	metrics *metrics.Registry
	logger  *logs.Logger
	rules   []Rule
}

// NewAnalyzer creates a new analyzer with the default rule set.
func NewAnalyzer(reg *metrics.Registry, logger *logs.Logger) *Analyzer {
	return &Analyzer{
		metrics: reg,
		logger:  logger,
		rules: []Rule{
			ProviderAuthRule,
			LookupFailureRule,
			ProviderRetryRule,
		},
	}
}

// Analyze evaluates metrics and logs and returns a health report.
func (a *Analyzer) Analyze() Report {
	snapshot := a.metrics.Snapshot()

	var (
		signals         = []string{}
		recommendations = []string{}
		status          = StatusOK
	)

	for _, rule := range a.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}

		signals = append(signals, result.Signal)
		recommendations = append(recommendations, result.Recommendation)
		status = escalate(status, result.Severity)
	}

	lookupFailures := 0
	panicCount := 0

	for _, entry := range a.logger.GetLast(logWindow) {
		if entry.Level == logs.WARN && strings.Contains(entry.Message, "lookup failed") {
			lookupFailures++
		}
		if entry.Level == logs.ERROR && strings.Contains(entry.Message, "panic") {
			panicCount++
		}
	}

	if lookupFailures >= 3 {
		signals = append(signals, "Repeated lookup failures in recent logs")
		recommendations = append(recommendations, "Inspect recent provider errors at /admin/logs")
		status = escalate(status, StatusDegraded)
	}

	if panicCount > 0 {
		signals = append(signals, "Application panics detected in logs")
		recommendations = append(recommendations, "Inspect stack traces and stabilize error handling")
		status = StatusCritical
	}

	summary := "Service is healthy"
	if status != StatusOK {
		summary = "Service health issues detected"
	}

	return Report{
		OverallStatus:   status,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}

func escalate(current, next Status) Status {
	switch {
	case next == StatusCritical:
		return StatusCritical
	case next == StatusDegraded && current == StatusOK:
		return StatusDegraded
	}
	return current
}
