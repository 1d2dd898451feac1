package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SESv2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends through Amazon SES. Messages with attachments go out as
// raw MIME.
type SESMailer struct {
	Client  SESAPI
	From    From
	ReplyTo string
}

// NewSESMailer creates an SESMailer from a loaded AWS config.
func NewSESMailer(cfg aws.Config, from From, replyTo string) *SESMailer {
	return &SESMailer{Client: sesv2.NewFromConfig(cfg), From: from, ReplyTo: replyTo}
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.From.Address),
		Destination:      &sestypes.Destination{ToAddresses: []string{msg.To}},
	}
	if m.ReplyTo != "" {
		in.ReplyToAddresses = []string{m.ReplyTo}
	}
	if len(msg.Attachments) > 0 {
		raw, err := BuildMIME(m.From, msg)
		if err != nil {
			return err
		}
		in.Content = &sestypes.EmailContent{Raw: &sestypes.RawMessage{Data: raw}}
	} else {
		in.Content = &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &sestypes.Body{Html: &sestypes.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}},
			},
		}
	}
	if _, err := m.Client.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
