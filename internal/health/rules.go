package health

import "subscription-verifier/internal/metrics"

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       Status
}

// Rule evaluates a metrics snapshot.
type Rule func(snapshot map[string]int64) RuleResult

// The provider rejected our API key at least once.
func ProviderAuthRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.ProviderAuthFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Billing provider rejected the API key",
			Recommendation: "Rotate or fix STRIPE_API_KEY",
			Severity:       StatusCritical,
		}
	}
	return RuleResult{}
}

// Lookups that ended in an error rather than a verdict.
func LookupFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.LookupFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Verdict lookups failed",
			Recommendation: "Check billing provider availability and network egress",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Throttled or failing provider requests that needed a retry.
func ProviderRetryRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.ProviderRetriesTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Billing provider requests were retried",
			Recommendation: "Look for provider rate limiting or 5xx responses",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}
