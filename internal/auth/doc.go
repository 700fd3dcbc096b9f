// Package auth implements the authentication service of gendoc.
//
// Credentials are verified against one of two backends selected per login
// attempt: the local credential store (Argon2id password hashes in the users
// table) or the external directory service (search then bind-as-user over
// LDAP). Directory logins upsert a local mirror row matched on the stable
// directory identifier.
//
// Before any backend is consulted the service asks the lockout tracker
// whether the account is throttled; every outcome is written to the audit
// trail. All failure classes collapse to one generic user-facing message,
// the distinct error values exist for logs and diagnostics only.
package auth
