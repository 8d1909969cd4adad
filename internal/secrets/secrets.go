// Package secrets resolves the access-gate secret and chat API key from
// exactly one configured source at startup.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/config"
)

var (
	ErrSourceUnavailable = errors.New("secrets source unavailable")
	ErrMissingAccessKey  = errors.New("magic string or magic string hash is required")
)

// Secrets are the values that must never be embedded in source.
type Secrets struct {
	MagicString     string `yaml:"magic_string" json:"magic_string"`
	MagicStringHash string `yaml:"magic_string_hash" json:"magic_string_hash"`
	OpenAIAPIKey    string `yaml:"openai_api_key" json:"openai_api_key"`
}

// document accepts values at the top level or under a "general" section.
type document struct {
	Secrets `yaml:",inline"`
	General *Secrets `yaml:"general" json:"general"`
}

func (d document) resolve() Secrets {
	if d.General != nil && d.MagicString == "" && d.MagicStringHash == "" {
		return *d.General
	}
	return d.Secrets
}

func (s Secrets) Validate() error {
	if strings.TrimSpace(s.MagicString) == "" && strings.TrimSpace(s.MagicStringHash) == "" {
		return ErrMissingAccessKey
	}
	return nil
}

type Source interface {
	Name() string
	Load(ctx context.Context) (Secrets, error)
}

// FileSource reads a local YAML secrets file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return config.SecretsSourceFile }

func (s FileSource) Load(ctx context.Context) (Secrets, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, fmt.Errorf("%w: %s not found", ErrSourceUnavailable, s.Path)
		}
		return Secrets{}, fmt.Errorf("read secrets file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Secrets{}, fmt.Errorf("parse secrets file: %w", err)
	}
	return doc.resolve(), nil
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSource reads a JSON secret from AWS Secrets Manager.
type AWSSource struct {
	client   secretsManagerAPI
	secretID string
}

// NewAWSSource loads AWS configuration, preferring static credentials when
// both halves are configured.
func NewAWSSource(ctx context.Context, cfg config.AWSSecretsConfig) (*AWSSource, error) {
	if cfg.SecretID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("aws secret id and region are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &AWSSource{client: client, secretID: cfg.SecretID}, nil
}

func (s *AWSSource) Name() string { return config.SecretsSourceAWS }

func (s *AWSSource) Load(ctx context.Context) (Secrets, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return Secrets{}, fmt.Errorf("get secret %s: %w", s.secretID, err)
	}
	if out.SecretString == nil {
		return Secrets{}, fmt.Errorf("secret %s has no string value", s.secretID)
	}

	var doc document
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &doc); err != nil {
		return Secrets{}, fmt.Errorf("parse secret %s: %w", s.secretID, err)
	}
	return doc.resolve(), nil
}

// Resolve loads secrets from the configured source. The auto source reads the
// local file and only falls back to AWS when that file does not exist.
func Resolve(ctx context.Context, cfg config.SecretsConfig) (Secrets, string, error) {
	switch cfg.Source {
	case config.SecretsSourceFile:
		return loadFrom(ctx, FileSource{Path: cfg.File})
	case config.SecretsSourceAWS:
		source, err := NewAWSSource(ctx, cfg.AWS)
		if err != nil {
			return Secrets{}, "", err
		}
		return loadFrom(ctx, source)
	case config.SecretsSourceAuto:
		if cfg.File != "" {
			secrets, name, err := loadFrom(ctx, FileSource{Path: cfg.File})
			if err == nil || !errors.Is(err, ErrSourceUnavailable) || cfg.AWS.SecretID == "" {
				return secrets, name, err
			}
			log.Ctx(ctx).Info().Str("file", cfg.File).Msg("Secrets file not found, using AWS Secrets Manager")
		}
		source, err := NewAWSSource(ctx, cfg.AWS)
		if err != nil {
			return Secrets{}, "", err
		}
		return loadFrom(ctx, source)
	default:
		return Secrets{}, "", fmt.Errorf("unsupported secrets source: %s", cfg.Source)
	}
}

func loadFrom(ctx context.Context, source Source) (Secrets, string, error) {
	secrets, err := source.Load(ctx)
	if err != nil {
		return Secrets{}, source.Name(), err
	}
	if err := secrets.Validate(); err != nil {
		return Secrets{}, source.Name(), fmt.Errorf("%s secrets: %w", source.Name(), err)
	}
	return secrets, source.Name(), nil
}
