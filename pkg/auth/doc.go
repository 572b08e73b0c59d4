// Package auth issues and verifies the bearer tokens that identify users
// on the real-time connection and the REST API.
//
// Tokens are compact HMAC-SHA256 signed JWTs carrying the user id as the
// subject claim. The TokenService satisfies gate.Authenticator, so it plugs
// straight into the pipeline's connection gate.
package auth
