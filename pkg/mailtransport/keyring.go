package mailtransport

import "github.com/zalando/go-keyring"

// keyringPassword reads an SMTP password stored with e.g.
// `secret-tool store --label=logmail service <service> username <user>`.
func keyringPassword(service, user string) (string, error) {
	return keyring.Get(service, user)
}
