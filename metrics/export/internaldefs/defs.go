package internaldefs

import (
	"github.com/authcore-io/authcore"
)

// CounterDef binds a MetricID to its exported name and help text. Shared
// by the Prometheus and OTel exporters so both expose identical series.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Successful registrations."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected for an already-taken email."},
	{ID: authcore.MetricRegisterFailure, Name: "authcore_register_failure_total", Help: "Registrations that failed on the backend."},
	{ID: authcore.MetricRegisterRateLimited, Name: "authcore_register_rate_limited_total", Help: "Rate-limited registration attempts."},
	{ID: authcore.MetricEmailVerifySuccess, Name: "authcore_email_verification_success_total", Help: "Successful email verifications."},
	{ID: authcore.MetricEmailVerifyFailure, Name: "authcore_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: authcore.MetricLoginCodeIssued, Name: "authcore_login_code_issued_total", Help: "One-time login codes issued after a password check."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed password login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Fully completed logins (password plus code)."},
	{ID: authcore.MetricLoginVerifyFailure, Name: "authcore_login_verify_failure_total", Help: "Failed one-time code verifications."},
	{ID: authcore.MetricCodeRateLimited, Name: "authcore_code_rate_limited_total", Help: "Rate-limited code verification attempts."},
	{ID: authcore.MetricMailDeliveryFailure, Name: "authcore_mail_delivery_failure_total", Help: "Outbound mail deliveries that failed."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricTokenValidateLatency, Name: "authcore_token_validate_latency_seconds", Help: "Session token validation latency histogram."},
}

// HistogramBoundSuffix mirrors the engine's fixed bucket layout.
var HistogramBoundSuffix = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"inf",
}
