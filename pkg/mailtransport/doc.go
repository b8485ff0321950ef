// Package mailtransport implements a log transport that delivers each log
// record as a plain-text email. It plugs into zap through the transport
// package and sends through a mail.Client built once at construction, either
// from a well-known service preset or from explicit SMTP host settings.
//
// Register the "mail" transport type explicitly during startup:
//
//	reg := transport.NewRegistry()
//	if err := mailtransport.Register(reg); err != nil {
//		return err
//	}
//
// or construct one directly:
//
//	t, err := mailtransport.New(mailtransport.Options{To: "ops@example.com", Service: "Gmail"})
//	logger := transport.NewLogger(baseCore, []transport.Transport{t})
package mailtransport
