// Package mail provides the mail-client capability used by the mail log
// transport: SMTP delivery through gomail, well-known service presets, a
// Postmark API client, and a factory choosing between service and direct
// connection modes.
package mail
