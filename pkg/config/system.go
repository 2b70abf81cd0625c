package config

import "time"

// JWTConfig holds resolved bearer-token verification settings.
// Minting tokens is out of scope; this module only verifies.
type JWTConfig struct {
	SigningKeyEnv string        // env var holding the HMAC verification key
	Issuer        string        // expected "iss" claim
	Audience      string        // expected "aud" claim
	ClockSkew     time.Duration // leeway applied to exp/nbf checks
}

// CORSConfig holds resolved CORS settings for the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string
}

// SlackConfig holds resolved Slack notification settings, used by
// pkg/notify for DLQ quarantine, auto-rollback, and blocker escalation
// alerts.
type SlackConfig struct {
	Enabled  bool
	TokenEnv string
	Channel  string
}
