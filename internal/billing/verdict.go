package billing

// Outcome tags the variant held by a Verdict.
type Outcome string

const (
	OutcomeVerified             Outcome = "verified"
	OutcomeNotFound             Outcome = "customer_not_found"
	OutcomeNoActiveSubscription Outcome = "no_active_subscription"
)

// Verdict is the final decision for one email.
//
// DisplayName and Status are only set when Outcome is OutcomeVerified.
// There is no error variant: failures are returned as errors and never
// become a Verdict.
type Verdict struct {
	Outcome     Outcome
	DisplayName string
	Status      string
}

// Verified builds the positive verdict.
func Verified(displayName, status string) Verdict {
	return Verdict{
		Outcome:     OutcomeVerified,
		DisplayName: displayName,
		Status:      status,
	}
}

// NotFound is returned when no customer matches the email.
func NotFound() Verdict {
	return Verdict{Outcome: OutcomeNotFound}
}

// NoActiveSubscription is returned when customers exist but none of their
// subscriptions is in an allowed status.
func NoActiveSubscription() Verdict {
	return Verdict{Outcome: OutcomeNoActiveSubscription}
}

// OK reports whether the verdict grants access.
func (v Verdict) OK() bool {
	return v.Outcome == OutcomeVerified
}
