package mailtransport

import (
	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/transport"
)

// TypeName is the registry name of the mail transport type.
const TypeName = "mail"

// Register adds the mail transport type to reg. Extra options apply to every
// transport the registry builds.
func Register(reg *transport.Registry, options ...Option) error {
	return reg.Register(TypeName, func(decode transport.DecodeFunc, diag *zap.SugaredLogger) (transport.Transport, error) {
		var opts Options
		if decode != nil {
			if err := decode(&opts); err != nil {
				return nil, err
			}
		}
		all := append([]Option{WithLogger(diag)}, options...)
		return New(opts, all...)
	})
}
