// Package notify delivers one-time codes to users.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
)

// Recipient identifies who a message goes to.
type Recipient struct {
	UserID   int64
	Username string
	Email    string
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message. A nil error means the channel accepted it.
type Sender interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}

// Module provides the configured Sender to Fx.
var Module = fx.Provide(NewSender)

// NewSender picks the driver named by NOTIFY_DRIVER.
func NewSender(cfg config.Config, logger *zap.Logger) (Sender, error) {
	switch cfg.Notify.Driver {
	case "log":
		return NewLogSender(logger), nil
	case "ses":
		return NewSESSender(context.Background(), cfg.Notify)
	default:
		return nil, fmt.Errorf("unsupported notify driver: %s", cfg.Notify.Driver)
	}
}

// LogSender writes messages to the log. For development only: codes end
// up in log output.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("notify")}
}

func (s *LogSender) Send(_ context.Context, to Recipient, msg Message) error {
	if to.Email == "" {
		return errors.New("recipient has no email address")
	}
	s.logger.Info("notification",
		zap.Int64("user_id", to.UserID),
		zap.String("to", to.Email),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

var (
	otpText = template.Must(template.New("otp.txt").Parse(
		`Hello {{.Username}},

Your fulfillment confirmation code is {{.Code}}.
It expires in {{.Minutes}} minutes. Give it only to the agent handing over your order.
`))
	otpHTML = htmltemplate.Must(htmltemplate.New("otp.html").Parse(
		`<p>Hello {{.Username}},</p>
<p>Your fulfillment confirmation code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.Minutes}} minutes. Give it only to the agent handing over your order.</p>
`))
)

// OTPMessage renders the fulfillment confirmation email.
func OTPMessage(username, code string, ttl time.Duration) (Message, error) {
	data := struct {
		Username string
		Code     string
		Minutes  int
	}{username, code, int(ttl.Round(time.Minute) / time.Minute)}

	var text, html bytes.Buffer
	if err := otpText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := otpHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}
	return Message{
		Subject: "Your order confirmation code",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
