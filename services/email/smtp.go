package emailsvc

import (
	"fmt"
	"net"
	"net/mail"
	"net/smtp"

	"github.com/klunity/klunity/core"
)

var smtpSendFunc = smtp.SendMail // mockable

type smtpService struct {
	addr       string
	auth       smtp.Auth
	from       mail.Address
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

// NewSMTPService sends through an SMTP relay using STARTTLS and PLAIN auth.
func NewSMTPService(conf *core.Config, logger core.Logger) core.EmailService {
	svc := &smtpService{
		addr:       net.JoinHostPort(conf.SMTP.Host, conf.SMTP.Port),
		from:       conf.DefaultFromEmail(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
	if conf.SMTP.User != "" {
		svc.auth = smtp.PlainAuth("", conf.SMTP.User, conf.SMTP.Password, conf.SMTP.Host)
	}
	return svc
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				svc.send(*msg)
			}
		}()
	}
}

func (svc smtpService) send(msg core.EmailMessage) {
	body, err := buildMIME(svc.from, svc.subjPrefix+msg.Subject, msg)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("building email: %v", err), err)
		return
	}
	if err = smtpSendFunc(svc.addr, svc.auth, svc.from.Address, recipients(msg), []byte(body)); err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err, map[string]interface{}{"to": joinAddresses(msg.To)})
	}
}
