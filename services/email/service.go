package emailsvc

import (
	"github.com/klunity/klunity/core"
)

// Mail providers
const (
	ProviderConsole  = "console"
	ProviderSMTP     = "smtp"
	ProviderSendgrid = "sendgrid"
)

// NewService returns the email service of the configured provider.
// Test mode always gets the synchronous console mock.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.TestMode {
		return NewConsoleServiceMock(conf, logger)
	}
	switch conf.MailProvider {
	case ProviderSMTP:
		return NewSMTPService(conf, logger)
	case ProviderSendgrid:
		return NewSendgridService(conf, logger)
	default:
		return NewConsoleService(conf, logger)
	}
}
