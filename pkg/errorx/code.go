package errorx

type Code string

const (
	// Caller codes. Never retried, surfaced verbatim.
	BadRequest      Code = "bad_request"
	NotFound        Code = "not_found"
	Unauthenticated Code = "unauthenticated"

	// Authentication codes. The user must restart the authorization flow.
	ReconnectionRequired Code = "reconnection_required"

	// Transient codes. Safe to retry after a short delay.
	ProviderUnavailable Code = "provider_unavailable"
	RateLimited         Code = "rate_limited"

	Internal Code = "internal_error"
)

var Unknown = Error{Code: Internal, Message: "Request failed"}
