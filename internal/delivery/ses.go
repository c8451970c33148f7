package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/giftly/metrics-reporter/internal/pkg/logger"
)

// SESDeliverer delivers reports via AWS SES using the SDK v2.
type SESDeliverer struct {
	client   *sesv2.Client
	from     string
	fromName string
}

// NewSESDeliverer creates an SES-backed deliverer. With empty credentials
// the default AWS credential chain is used (IAM role on ECS).
func NewSESDeliverer(ctx context.Context, accessKey, secretKey, region, from, fromName string) (*SESDeliverer, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESDeliverer{
		client:   sesv2.NewFromConfig(cfg),
		from:     from,
		fromName: fromName,
	}, nil
}

// Deliver sends one report email.
func (s *SESDeliverer) Deliver(ctx context.Context, destination, subject, body string) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.from)),
		Destination:      &types.Destination{ToAddresses: []string{destination}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", logger.RedactEmail(destination), err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Info("report delivered", "destination", destination, "message_id", messageID)
	return nil
}
