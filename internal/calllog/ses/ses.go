// Package ses implements a call log Sink that emails failed lifecycle calls
// to operators via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/websavers/mailcow-provision/internal/calllog"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating an alert Sink.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
	Recipients      []string
}

// Sink sends one alert email per failed call. Successful calls are skipped.
type Sink struct {
	sender     string
	recipients []string
	client     SendEmailAPI
	baseDelay  time.Duration
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a Sink with credentials resolved the standard AWS way, using
// static keys when both are given.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, cfg.Recipients, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a Sink with a custom client, used for testing.
func NewWithClient(sender string, recipients []string, client SendEmailAPI) *Sink {
	return &Sink{
		sender:     sender,
		recipients: recipients,
		client:     client,
		baseDelay:  baseRetryDelay,
	}
}

// Record emails the entry when it describes a failed call.
func (s *Sink) Record(ctx context.Context, e *calllog.Entry) error {
	if !e.Failed() || len(s.recipients) == 0 {
		return nil
	}

	input := buildAlertInput(s.sender, s.recipients, e)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES alert",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, s.backoffDelay(attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := s.client.SendEmail(ctx, input)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES alert failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "ses"
}

// buildAlertInput creates a plain-text SES message describing a failed call.
func buildAlertInput(sender string, recipients []string, e *calllog.Entry) *sesv2.SendEmailInput {
	subject := fmt.Sprintf("[%s] %s failed", e.Module, e.Action)
	if d, ok := e.Request["domain"].(string); ok && d != "" {
		subject += " for " + d
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(alertBody(e)),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
}

func alertBody(e *calllog.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Call ID: %s\n", e.ID)
	fmt.Fprintf(&b, "Time: %s\n", e.Time.Format(time.RFC3339))
	fmt.Fprintf(&b, "Action: %s\n", e.Action)
	fmt.Fprintf(&b, "Error: %s\n", e.Error)
	if e.ErrorKind != "" {
		fmt.Fprintf(&b, "Kind: %s\n", e.ErrorKind)
	}
	if e.ErrorCode != 0 {
		fmt.Fprintf(&b, "Code: %d\n", e.ErrorCode)
	}

	keys := make([]string, 0, len(e.Request))
	for k := range e.Request {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\nParameters:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, e.Request[k])
		}
	}

	if e.Trace != "" {
		b.WriteString("\nTrace:\n")
		b.WriteString(e.Trace)
		b.WriteString("\n")
	}
	return b.String()
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func (s *Sink) backoffDelay(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
