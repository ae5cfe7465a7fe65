package secrets

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultAWSTimeout = 10 * time.Second

// AWSConfig is the "aws" section of a providers file. Without static credentials the
// default credential chain is used. Endpoint points the client at LocalStack or a
// private endpoint.
type AWSConfig struct {
	Region          string        `yaml:"region"`
	SecretName      string        `yaml:"secret_name"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	SessionToken    string        `yaml:"session_token"`
	Endpoint        string        `yaml:"endpoint"`
	Timeout         time.Duration `yaml:"timeout"`
}

func (a AWSConfig) Validate() error {
	switch {
	case a.Region == "":
		return errors.New("AWS region is required")
	case a.SecretName == "":
		return errors.New("AWS secret name is required")
	case (a.AccessKeyID == "") != (a.SecretAccessKey == ""):
		return errors.New("access_key_id and secret_access_key must be set together")
	}
	return nil
}

// CreateClient returns a Secrets Manager client for the configured region.
func (a AWSConfig) CreateClient() (*secretsmanager.Client, error) {
	if err := a.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AWS configuration")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(a.Region)}
	if a.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(a.Endpoint))
	}
	if a.AccessKeyID != "" {
		static := credentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, a.SessionToken)
		opts = append(opts, config.WithCredentialsProvider(static))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS configuration")
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// SecretValueGetter is the part of *secretsmanager.Client used by AWSSecretLoader.
type SecretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretLoader serves "@aws.KEY" targets from a single Secrets Manager secret. A
// secret holding a JSON object is indexed by KEY. Any other secret is returned whole.
type AWSSecretLoader struct {
	client     SecretValueGetter
	secretName string
	timeout    time.Duration
}

func NewAWSSecretLoader(client SecretValueGetter, secretName string) *AWSSecretLoader {
	return &AWSSecretLoader{client: client, secretName: secretName, timeout: defaultAWSTimeout}
}

func (a *AWSSecretLoader) Resolve(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretName),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to read secret from AWS Secrets Manager: %q", a.secretName)
	}
	if result.SecretString == nil {
		return "", errors.Errorf("secret %q has no string value", a.secretName)
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*result.SecretString), &members); err != nil {
		log.Debug().Str("secret_name", a.secretName).Msg("Retrieved plain text secret from AWS Secrets Manager")
		return *result.SecretString, nil
	}
	return a.member(members, key)
}

func (a *AWSSecretLoader) member(members map[string]json.RawMessage, key string) (string, error) {
	raw, ok := members[key]
	if !ok {
		return "", errors.Wrapf(ErrSecretNotFound, "key %q not found in AWS secret %q", key, a.secretName)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", errors.Errorf("key %q in AWS secret %q is not a string", key, a.secretName)
	}
	log.Debug().Str("secret_name", a.secretName).Str("key", key).Msg("Retrieved secret from AWS Secrets Manager")
	return value, nil
}

func (a *AWSSecretLoader) Name() string {
	return "AWS Secrets Manager"
}

// WithTimeout bounds each Secrets Manager call. Zero keeps the default of ten seconds.
func (a *AWSSecretLoader) WithTimeout(timeout time.Duration) *AWSSecretLoader {
	if timeout > 0 {
		a.timeout = timeout
	}
	return a
}
