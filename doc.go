// Package credentials implements the credential lifecycle of a service with
// two principal kinds (users and admins) and third-party relying parties.
//
// Secrets:
//   - Every pending secret lives in a slot on the Principal: a stored value
//     plus an expiry, set and cleared together. Opaque link tokens are stored
//     as SHA-256 fingerprints so they can be looked up by value, OTP codes and
//     passwords are stored as bcrypt hashes.
//   - VerificationMachine implements the request/confirm protocol for email
//     verification, password reset, two-factor OTP and login OTP. Confirm
//     clears the slot and applies its side effect with one conditional write,
//     so a secret is consumed at most once even under concurrent submissions.
//
// Tokens:
//   - TokenService signs HS256 bearer tokens with a key per principal kind. A
//     token minted for a user never validates as an admin token.
//   - AuthorizationBroker issues single-use authorization codes (60s) to
//     registered clients and exchanges them for access tokens.
//
// Sessions:
//   - SessionManager stores an audit row for every bearer token handed out
//     after a login. Rows are never consulted for authorization.
package credentials
