package emailsvc

import (
	"net/http"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

type nopLogger struct{ errors []string }

func (l *nopLogger) Debug(string, ...interface{})       {}
func (l *nopLogger) Info(string, ...interface{})        {}
func (l *nopLogger) Warn(string, ...interface{})        {}
func (l *nopLogger) Error(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }
func (l *nopLogger) Fatal(string, ...interface{})       {}

func otpMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Jane", Address: "2100030001@kluniversity.in"}},
		Subject:      "Verify your email",
		TemplateName: "otp_verification",
		TemplateData: user.OTPMailData{Name: "Jane", Code: "123456", ExpiresIn: "10 minutes"},
	}
}

func TestConsoleServiceMock(t *testing.T) {
	ResetSentMessages()
	conf := core.NewTestConfig()
	svc := NewService(conf, &nopLogger{})

	svc.SendMessages(otpMessage())

	msg, ok := LastSentMessage()
	require.True(t, ok)
	assert.Contains(t, msg.TextContent, "123456")
	assert.Contains(t, msg.HTMLContent, "123456")
	assert.Contains(t, msg.TextContent, "10 minutes")

	ResetSentMessages()
	_, ok = LastSentMessage()
	assert.False(t, ok)
}

func TestBuildMIME(t *testing.T) {
	msg := otpMessage()
	require.NoError(t, msg.Render())
	require.NoError(t, msg.Attach(strings.NewReader("hello"), "hello.txt", "text/plain"))

	body, err := buildMIME(mail.Address{Name: "KL Unity", Address: "noreply@kluniversity.in"}, "[KL Unity] Verify", *msg)
	require.NoError(t, err)
	assert.Contains(t, body, "From: \"KL Unity\" <noreply@kluniversity.in>")
	assert.Contains(t, body, "To: \"Jane\" <2100030001@kluniversity.in>")
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "text/html")
	assert.Contains(t, body, "filename=hello.txt")
}

func TestSMTPService(t *testing.T) {
	conf := core.NewTestConfig()
	conf.SMTP = core.SMTPConfig{Host: "smtp.example.com", Port: "587", User: "mailer", Password: "pwd"}
	logger := &nopLogger{}
	svc := NewSMTPService(conf, logger).(*smtpService)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	smtpSendFunc = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	defer func() { smtpSendFunc = smtp.SendMail }()

	msg := otpMessage()
	msg.Bcc = []mail.Address{{Address: "audit@kluniversity.in"}}
	require.NoError(t, msg.Render())
	svc.send(*msg)

	assert.Empty(t, logger.errors)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"2100030001@kluniversity.in", "audit@kluniversity.in"}, gotTo)
	assert.Contains(t, gotMsg, "123456")
	assert.NotContains(t, gotMsg, "audit@kluniversity.in")
}

func TestSendgridPrepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, &nopLogger{}).(*sendgridService)

	msg := otpMessage()
	require.NoError(t, msg.Render())
	m := svc.prepare(*msg)

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[KL Unity] Verify your email", m.Personalizations[0].Subject)
	assert.Equal(t, "2100030001@kluniversity.in", m.Personalizations[0].To[0].Address)
	assert.Len(t, m.Content, 2)
	assert.Equal(t, "KL Unity", m.From.Name)
	assert.Equal(t, []string{"klunity", "otp_verification"}, m.Categories)
	require.NotNil(t, m.TrackingSettings.ClickTracking.Enable)
	assert.False(t, *m.TrackingSettings.ClickTracking.Enable)
}

func TestSendgridSend(t *testing.T) {
	sendgridBackoff = time.Millisecond
	defer func() {
		sendgridAPIFunc = sendgrid.API
		sendgridBackoff = time.Second
	}()

	msg := otpMessage()
	require.NoError(t, msg.Render())

	tests := []struct {
		name      string
		statuses  []int
		wantCalls int
		wantErr   bool
	}{
		{name: "accepted", statuses: []int{http.StatusAccepted}, wantCalls: 1},
		{name: "retried after outage", statuses: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusAccepted}, wantCalls: 3},
		{name: "rejected", statuses: []int{http.StatusBadRequest}, wantCalls: 1, wantErr: true},
		{name: "gives up", statuses: []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway, http.StatusAccepted}, wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
				assert.Equal(t, "Bearer sg-key", req.Headers["Authorization"])
				status := tt.statuses[calls]
				calls++
				return &rest.Response{StatusCode: status}, nil
			}

			conf := core.NewTestConfig()
			conf.SendgridAPIKey = "sg-key"
			logger := &nopLogger{}
			svc := NewSendgridService(conf, logger).(*sendgridService)
			svc.send(*msg)

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, len(logger.errors) > 0, logger.errors)
		})
	}
}
