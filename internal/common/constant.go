package common

const (
	// SessionCookieName carries the short-lived access token for browser clients.
	SessionCookieName = "ts_session"
	// RefreshCookieName carries the long-lived refresh token.
	RefreshCookieName = "ts_refresh"
)
