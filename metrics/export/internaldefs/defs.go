package internaldefs

import (
	peerbonus "github.com/peerbonus/peerbonus-go"
)

// CounterDef names one session counter.
type CounterDef struct {
	ID   peerbonus.MetricID
	Name string
	Help string
}

// HistogramDef names one session histogram.
type HistogramDef struct {
	ID   peerbonus.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: peerbonus.MetricHydrateAuthenticated, Name: "peerbonus_hydrate_authenticated_total", Help: "Hydrations that restored a session."},
	{ID: peerbonus.MetricHydrateAnonymous, Name: "peerbonus_hydrate_anonymous_total", Help: "Hydrations without a stored token."},
	{ID: peerbonus.MetricHydrateInvalidToken, Name: "peerbonus_hydrate_invalid_token_total", Help: "Hydrations whose stored token was rejected."},
	{ID: peerbonus.MetricHydrateTokenExpired, Name: "peerbonus_hydrate_token_expired_total", Help: "Stored tokens dropped locally as expired."},
	{ID: peerbonus.MetricLoginSuccess, Name: "peerbonus_login_success_total", Help: "Successful logins."},
	{ID: peerbonus.MetricLoginFailure, Name: "peerbonus_login_failure_total", Help: "Failed logins."},
	{ID: peerbonus.MetricRegisterSuccess, Name: "peerbonus_register_success_total", Help: "Successful registrations including auto-login."},
	{ID: peerbonus.MetricRegisterFailure, Name: "peerbonus_register_failure_total", Help: "Failed registrations."},
	{ID: peerbonus.MetricProfileResolutionFailure, Name: "peerbonus_profile_resolution_failure_total", Help: "Tokens that could not resolve a profile."},
	{ID: peerbonus.MetricLogout, Name: "peerbonus_logout_total", Help: "Logout operations."},
	{ID: peerbonus.MetricOperationRejected, Name: "peerbonus_operation_rejected_total", Help: "Operations rejected while another was in flight."},
	{ID: peerbonus.MetricSessionSuperseded, Name: "peerbonus_session_superseded_total", Help: "Operations overtaken by logout or close."},
	{ID: peerbonus.MetricUnauthorizedResponse, Name: "peerbonus_unauthorized_response_total", Help: "Sessions cleared after a 401 from the backend."},
	{ID: peerbonus.MetricStorageFailure, Name: "peerbonus_storage_failure_total", Help: "Session storage read or write failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: peerbonus.MetricAuthLatency, Name: "peerbonus_auth_latency_seconds", Help: "Auth API round-trip latency."},
}

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
