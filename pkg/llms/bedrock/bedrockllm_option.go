package bedrock

import (
	"github.com/effective-security/mcpbridge/pkg/llms/bedrock/internal/bedrockclient"
)

type options struct {
	modelID  string
	region   string
	endpoint string
	client   bedrockclient.InvokeModelAPI

	accessKeyID     string
	secretAccessKey string
	sessionToken    string
}

// Option is an option for the Bedrock LLM.
type Option func(*options)

// WithModel sets the model ID or the inference profile to use.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithEndpoint overrides the Bedrock runtime endpoint.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithCredentials sets static AWS credentials,
// the default credential chain is used otherwise.
func WithCredentials(accessKeyID, secretAccessKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKeyID = accessKeyID
		o.secretAccessKey = secretAccessKey
		o.sessionToken = sessionToken
	}
}

// WithClient sets the Bedrock runtime client, such as *bedrockruntime.Client.
func WithClient(client bedrockclient.InvokeModelAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
