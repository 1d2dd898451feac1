package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ChannelSender delivers a short text message over a non-email channel.
type ChannelSender interface {
	SendChannelMessage(ctx context.Context, channel, recipient, payload string) error
}

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender sends SMS through Amazon SNS. Recipients must be E.164 numbers.
type SNSSender struct {
	Client   SNSAPI
	SenderID string
}

func NewSNSSender(cfg aws.Config, senderID string) *SNSSender {
	return &SNSSender{Client: sns.NewFromConfig(cfg), SenderID: senderID}
}

func (s *SNSSender) SendChannelMessage(ctx context.Context, channel, recipient, payload string) error {
	if channel != models.ChannelSMS {
		return fmt.Errorf("sns: unsupported channel %q", channel)
	}
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.SenderID)}
	}
	out, err := s.Client.Publish(ctx, &sns.PublishInput{
		Message:           aws.String(payload),
		PhoneNumber:       aws.String(recipient),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	if out.MessageId != nil {
		log.Printf("notify: sms sent to %s (message id %s)", recipient, *out.MessageId)
	}
	return nil
}

// LogSender accepts any channel and only logs the payload. WhatsApp has no
// transport yet and always goes here.
type LogSender struct{}

func (LogSender) SendChannelMessage(_ context.Context, channel, recipient, payload string) error {
	log.Printf("notify: [%s] to=%s %q", channel, recipient, payload)
	return nil
}

// Channels routes messages to a sender per channel and records each attempt
// in channel_log.
type Channels struct {
	DB      *sql.DB
	Senders map[string]ChannelSender
	// Fallback handles channels with no registered sender.
	Fallback ChannelSender
}

func (c *Channels) SendChannelMessage(ctx context.Context, channel, recipient, payload string) error {
	sender := c.Senders[channel]
	if sender == nil {
		sender = c.Fallback
	}
	var sendErr error
	if sender == nil {
		sendErr = fmt.Errorf("no sender for channel %q", channel)
	} else if recipient == "" {
		sendErr = fmt.Errorf("no %s recipient", channel)
	} else {
		sendErr = sender.SendChannelMessage(ctx, channel, recipient, payload)
	}

	status, errStr := "sent", ""
	if sendErr != nil {
		status, errStr = "failed", sendErr.Error()
	}
	if c.DB != nil {
		if _, err := c.DB.ExecContext(ctx, "INSERT INTO channel_log (channel, recipient, payload, status, error, sent_at) VALUES (?, ?, ?, ?, ?, ?)",
			channel, recipient, payload, status, errStr, database.FormatTime(time.Now())); err != nil {
			log.Printf("notify: channel_log insert failed: %v", err)
		}
	}
	return sendErr
}
