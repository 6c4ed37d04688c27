package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanGranted = "plan.granted"
	ActionPlanExpired = "plan.expired"

	// Credit actions
	ActionCreditsConsumed = "credits.consumed"
	ActionCreditsDenied   = "credits.denied"

	// Subscription actions
	ActionSubscriptionCreated = "subscription.created"
	ActionCancelRequested     = "subscription.cancel_requested"

	// Provider actions
	ActionProviderEventApplied = "provider.event_applied"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceCredits      = "credits"
	ResourceSubscription = "subscription"
	ResourceProvider     = "provider"
)

// Category constants for audit events.
const (
	CategoryEntitlement  = "entitlement"
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
