// internal/common/aws/ses.go
package aws

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the part of the SES client used for sending; tests replace it.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESClient struct {
	client    SESAPI
	fromEmail string
}

func NewSESClient(ctx context.Context, region, fromEmail string) (*SESClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSESClientWithAPI(ses.NewFromConfig(cfg), fromEmail), nil
}

func NewSESClientWithAPI(api SESAPI, fromEmail string) *SESClient {
	return &SESClient{client: api, fromEmail: fromEmail}
}

// SendEmail sends a plain text and HTML message and returns the SES message id.
func (s *SESClient) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	if to == "" {
		return "", errors.New("ses: empty recipient")
	}
	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.fromEmail),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
