// Package credentials implements credential and session lifecycle management
// for a multi-tenant loan-referral platform: signed access/refresh token
// pairs, one-time two-factor codes, single-use password-reset tokens, and
// organisation-invitation tokens.
//
// Token families:
//   - Access and refresh tokens are stateless JWTs signed with distinct keys.
//     There is no server-side session table and no revocation list; rotation
//     re-derives claims from the live user record, so deactivating a user is
//     the only way to invalidate an outstanding refresh token. This is a
//     deliberate trade-off, not an oversight.
//   - One-time codes, reset tokens, and invitations are persisted single-use
//     records. Consumption is a conditional update at the persistence
//     boundary, so two concurrent attempts on the same record yield exactly
//     one success.
//
// Rejections:
//   - Every failure is a typed *errors.Error carrying a category and a
//     machine-readable text code (TOKEN_EXPIRED, CODE_ALREADY_CONSUMED, ...)
//     so handlers can map outcomes to HTTP responses deterministically while
//     keeping user-facing messages intentionally vague.
//
// Activity sinks:
//   - ActivitySink is a best-effort audit emitter used by every service.
//     Sink and notifier failures are logged and never roll back the primary
//     security action they describe.
package credentials
