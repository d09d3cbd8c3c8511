package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/estatehub/realtime/internal/domain"
)

// PublishAPI is the subset of *sns.Client used by Forwarder.
type PublishAPI interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// Forwarder publishes notifications for offline recipients to an SNS topic,
// where push and email workers subscribe with filter policies on the
// recipient_id and type attributes.
type Forwarder struct {
	client   PublishAPI
	topicARN string
}

// NewClient creates an SNS client. A non-nil endpoint (LocalStack) sends all
// traffic to that instance.
func NewClient(awsCfg aws.Config, endpoint *string) *awssns.Client {
	return awssns.NewFromConfig(awsCfg, func(o *awssns.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

func NewForwarder(client PublishAPI, topicARN string) *Forwarder {
	return &Forwarder{client: client, topicARN: topicARN}
}

// Forward publishes the notification's client-facing event as the message body.
func (f *Forwarder) Forward(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(n.Event())
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = f.client.Publish(ctx, &awssns.PublishInput{
		TopicArn: aws.String(f.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient_id": stringAttr(n.RecipientID),
			"type":         stringAttr(string(n.Type)),
		},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", f.topicARN, err)
	}
	return nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
