// Package auth provides the session and permission layer for a hosted
// learning platform: JWT issuance, refresh token rotation, approval
// gating, and table driven role checks.
//
// Account lifecycle:
//   - Registration always lands accounts in the pending approval state.
//     Pending and rejected accounts can never authenticate, the gate runs
//     after the password check so probes learn nothing from the response.
//   - ApprovalMachine centralizes the transition graph (pending to
//     approved or rejected, rejected is terminal), stamps the deciding
//     admin and time, and emits audit events. Use Users.Approve and
//     Users.Reject with an ActorRef for admin decisions.
//
// Tokens:
//   - TokenIssuer mints short lived access tokens paired with single use
//     refresh tokens. Refresh consumes the presented token atomically and
//     issues a replacement in the same rotation chain. Presenting an
//     already consumed token revokes the whole chain, which is how stolen
//     token replay is contained.
//   - Access tokens embed the role and approval status; middleware
//     re-checks approval against the store within a bounded window so a
//     rejection takes effect before the token expires.
//
// Permissions:
//   - Engine holds the static role/resource/action table. Checks fail
//     closed: unknown roles, resources, or actions deny. Authorize returns
//     errors that map to 401 when the caller is unauthenticated and 403
//     when the caller is known but lacks the permission.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the
//     issuer, and the approval machine to describe registration, login,
//     refresh, reuse, and approval events. Sinks run best-effort (errors
//     are logged) so you can forward to a database or queue without
//     blocking authentication.
package auth
