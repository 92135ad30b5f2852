// Package observability records loop events in an append-only JSON Lines
// log and derives metrics and alerts from it on demand. Alerts can be
// forwarded to a Slack webhook.
package observability
