package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/klunity/klunity/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
	sendgridAttempts = 3
	sendgridCategory = "klunity"
)

var (
	sendgridAPIFunc = sendgrid.API // mockable
	sendgridBackoff = time.Second
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

// NewSendgridService sends through the SendGrid v3 mail API.
// Mails go out under the app name whatever display name defaultFromEmail carries.
func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		key:        conf.SendgridAPIKey,
		from:       sgmail.NewEmail(conf.AppName, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
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

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(sgEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddCategories(sendgridCategory)
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}
	// verification codes are copied by hand; rewritten links only add noise
	m.SetTrackingSettings(sgmail.NewTrackingSettings().SetClickTracking(
		sgmail.NewClickTrackingSetting().SetEnable(false),
	))

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, a := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     a.Content.String(),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return m
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

// retryable reports whether SendGrid asked to try again later.
func retryable(res *rest.Response) bool {
	return res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError
}

func (svc sendgridService) send(msg core.EmailMessage) {
	body := sgmail.GetRequestBody(svc.prepare(msg))
	fields := map[string]interface{}{"to": joinAddresses(msg.To), "template": msg.TemplateName}

	wait := sendgridBackoff
	for attempt := 1; ; attempt++ {
		req := sendgrid.GetRequest(svc.key, sendgridEndpoint, sendgridHost)
		req.Method = http.MethodPost
		req.Body = body

		res, err := sendgridAPIFunc(req)
		switch {
		case err != nil:
			svc.logger.Error(fmt.Sprintf("sending email: %v", err), err, fields)
			return
		case res.StatusCode < http.StatusBadRequest:
			return
		case !retryable(res) || attempt == sendgridAttempts:
			svc.logger.Error(fmt.Sprintf("sending email - status: %d - body: %s", res.StatusCode, res.Body), fields)
			return
		}
		svc.logger.Warn(fmt.Sprintf("sendgrid status %d, retrying in %s", res.StatusCode, wait), fields)
		time.Sleep(wait)
		wait *= 2
	}
}
