package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/Additional-Code/handoff/internal/config"
)

// SESAPI is the slice of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers email through Amazon SES v2.
type SESSender struct {
	client SESAPI
	from   string
}

// NewSESSender loads AWS credentials from the default chain.
func NewSESSender(ctx context.Context, cfg config.Notify) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESSenderWithClient(sesv2.NewFromConfig(awsCfg), cfg.From), nil
}

// NewSESSenderWithClient builds a sender around an existing client.
func NewSESSenderWithClient(client SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

func (s *SESSender) Send(ctx context.Context, to Recipient, msg Message) error {
	if to.Email == "" {
		return errors.New("recipient has no email address")
	}

	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
