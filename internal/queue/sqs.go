// Package queue provides message-broker sinks that forward alert payloads to
// downstream consumers: an SQS queue and a Kafka topic.
package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"delaywatch/internal/notifications"
	"delaywatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ notifications.Sink = (*SQSSink)(nil)

// SQSSink publishes each alert payload as one SQS message. Alert type and
// severity travel as message attributes so subscribers can filter without
// decoding the body.
type SQSSink struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewSQSSink creates an SQSSink targeting queueURL.
func NewSQSSink(client SQSSender, queueURL string, logger types.Logger) *SQSSink {
	return &SQSSink{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Name identifies the sink in logs and metrics.
func (s *SQSSink) Name() string { return "sqs" }

// Send serializes p and enqueues it.
func (s *SQSSink) Send(ctx context.Context, p *notifications.Payload) error {
	body, err := p.Marshal()
	if err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed, "sqs sink: failed to marshal payload", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"alert_type": stringAttribute(string(p.AlertType)),
			"severity":   stringAttribute(string(p.Severity)),
			"site_id":    stringAttribute(p.SiteID),
		},
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed,
			fmt.Sprintf("sqs sink: failed to send message to %s", s.queueURL), err)
	}

	messageID := ""
	if out != nil && out.MessageId != nil {
		messageID = *out.MessageId
	}
	s.logger.Info("alert enqueued",
		"queue_url", s.queueURL,
		"alert_id", p.AlertID,
		"site_id", p.SiteID,
		"alert_type", string(p.AlertType),
		"message_id", messageID,
	)
	return nil
}

func stringAttribute(v string) sqsTypes.MessageAttributeValue {
	return sqsTypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
