package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/config"
)

type fakeSecretsManager struct {
	value    *string
	err      error
	lastID   string
	requests int
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.requests++
	f.lastID = aws.ToString(params.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func writeSecrets(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	return path
}

func TestFileSource(t *testing.T) {
	path := writeSecrets(t, "magic_string: open-sesame\nopenai_api_key: sk-test\n")

	secrets, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if secrets.MagicString != "open-sesame" || secrets.OpenAIAPIKey != "sk-test" {
		t.Fatalf("unexpected secrets %+v", secrets)
	}
}

func TestFileSourceGeneralSection(t *testing.T) {
	path := writeSecrets(t, "general:\n  magic_string: dink\n  openai_api_key: sk-general\n")

	secrets, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if secrets.MagicString != "dink" || secrets.OpenAIAPIKey != "sk-general" {
		t.Fatalf("unexpected secrets %+v", secrets)
	}
}

func TestFileSourceMissing(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "absent.yaml")}.Load(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected unavailable source, got %v", err)
	}
}

func TestAWSSource(t *testing.T) {
	fake := &fakeSecretsManager{value: aws.String(`{"magic_string_hash":"$2a$10$abc","openai_api_key":"sk-aws"}`)}
	source := &AWSSource{client: fake, secretID: "insights/prod"}

	secrets, name, err := loadFrom(context.Background(), source)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if name != config.SecretsSourceAWS {
		t.Fatalf("expected aws source, got %s", name)
	}
	if fake.lastID != "insights/prod" {
		t.Fatalf("expected secret id insights/prod, got %s", fake.lastID)
	}
	if secrets.MagicStringHash != "$2a$10$abc" || secrets.OpenAIAPIKey != "sk-aws" {
		t.Fatalf("unexpected secrets %+v", secrets)
	}
}

func TestAWSSourceErrors(t *testing.T) {
	source := &AWSSource{client: &fakeSecretsManager{err: errors.New("access denied")}, secretID: "x"}
	if _, err := source.Load(context.Background()); err == nil {
		t.Fatal("expected error from secrets manager")
	}

	source = &AWSSource{client: &fakeSecretsManager{}, secretID: "x"}
	if _, err := source.Load(context.Background()); err == nil {
		t.Fatal("expected error for binary-only secret")
	}

	source = &AWSSource{client: &fakeSecretsManager{value: aws.String(`{"openai_api_key":"sk"}`)}, secretID: "x"}
	if _, _, err := loadFrom(context.Background(), source); !errors.Is(err, ErrMissingAccessKey) {
		t.Fatalf("expected missing access key, got %v", err)
	}
}

func TestResolveFileSource(t *testing.T) {
	path := writeSecrets(t, "magic_string: open-sesame\n")

	secrets, name, err := Resolve(context.Background(), config.SecretsConfig{Source: config.SecretsSourceAuto, File: path})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != config.SecretsSourceFile || secrets.MagicString != "open-sesame" {
		t.Fatalf("unexpected resolution %s %+v", name, secrets)
	}
}

func TestResolveAutoDoesNotFallBackOnInvalidFile(t *testing.T) {
	path := writeSecrets(t, "openai_api_key: sk-only\n")

	_, name, err := Resolve(context.Background(), config.SecretsConfig{
		Source: config.SecretsSourceAuto,
		File:   path,
		AWS:    config.AWSSecretsConfig{SecretID: "insights/prod", Region: "us-east-1"},
	})
	if !errors.Is(err, ErrMissingAccessKey) {
		t.Fatalf("expected missing access key, got %v", err)
	}
	if name != config.SecretsSourceFile {
		t.Fatalf("expected file source to be reported, got %s", name)
	}
}

func TestResolveUnknownSource(t *testing.T) {
	if _, _, err := Resolve(context.Background(), config.SecretsConfig{Source: "vault"}); err == nil {
		t.Fatal("expected unsupported source error")
	}
}
