// Package abuse throttles credential guessing at the login boundary with a
// Redis-backed sliding window, exponential backoff, and a sticky captcha
// escalation.
//
// The gate is deliberately fail-open: when Redis is unreachable, logins
// proceed unthrottled rather than locking every user out. Captcha
// verification itself lives with the caller and fails closed there.
package abuse
