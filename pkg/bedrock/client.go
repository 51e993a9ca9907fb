// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bedrock translates Messages API requests onto the AWS Bedrock
// Converse and InvokeModel APIs and bridges their responses and event
// streams back into the Messages shape.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teradata-labs/relay/pkg/anthropic"
	relayconfig "github.com/teradata-labs/relay/pkg/config"
)

// Invoker is the backend call surface the handlers and the PTC
// orchestrator depend on.
type Invoker interface {
	Invoke(ctx context.Context, prep *PreparedRequest, messageID string) (*anthropic.Response, error)
	Stream(ctx context.Context, prep *PreparedRequest, messageID string) (<-chan StreamItem, error)
	CountTokens(ctx context.Context, req *anthropic.Request, modelID string) (int, error)
}

// Client calls AWS Bedrock. All calls pass through a weighted semaphore so
// at most cfg.Workers backend calls are in flight per process.
type Client struct {
	client *bedrockruntime.Client
	sem    *semaphore.Weighted
	cfg    relayconfig.BedrockConfig
	logger *zap.Logger
}

var _ Invoker = (*Client)(nil)

// NewClient creates a Bedrock client. Credentials resolve in order:
// explicit static keys, a named profile, then the default AWS chain.
// Region falls back to the AWS_REGION environment variable.
func NewClient(ctx context.Context, cfg relayconfig.BedrockConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		return nil, fmt.Errorf("bedrock region is required (set bedrock.region or AWS_REGION)")
	}

	httpClient := &http.Client{Timeout: cfg.ReadTimeout}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		logger.Info("using static AWS credentials")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	case cfg.Profile != "":
		logger.Info("using AWS profile", zap.String("profile", cfg.Profile))
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	default:
		logger.Info("using default AWS credential chain")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = relayconfig.DefaultWorkers
	}

	logger.Info("bedrock client created",
		zap.String("region", region),
		zap.Int("workers", workers),
	)

	return &Client{
		client: bedrockruntime.NewFromConfig(awsCfg),
		sem:    semaphore.NewWeighted(int64(workers)),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Invoke runs a non-streaming backend call. On a service-tier rejection
// the call retries exactly once with the tier removed; a second failure
// surfaces the retry error.
func (c *Client) Invoke(ctx context.Context, prep *PreparedRequest, messageID string) (*anthropic.Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire backend slot: %w", err)
	}
	defer c.sem.Release(1)

	resp, err := c.invokeOnce(ctx, prep, messageID)
	if err != nil && isServiceTierError(err, prep.ServiceTier) {
		c.logger.Warn("service tier not supported, retrying with default",
			zap.String("tier", prep.ServiceTier),
			zap.String("model", prep.ModelID),
		)
		prep.StripServiceTier()
		resp, err = c.invokeOnce(ctx, prep, messageID)
	}
	if err != nil {
		return nil, TranslateError(err)
	}
	return resp, nil
}

func (c *Client) invokeOnce(ctx context.Context, prep *PreparedRequest, messageID string) (*anthropic.Response, error) {
	start := time.Now()
	if prep.UseNative {
		body, err := marshalNativeBody(prep.NativeBody)
		if err != nil {
			return nil, err
		}
		output, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(prep.ModelID),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			return nil, err
		}
		c.logger.Debug("invoke model completed",
			zap.String("model", prep.ModelID),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
		return ParseNativeResponse(output.Body, prep.ModelID, messageID)
	}

	output, err := c.client.Converse(ctx, prep.Converse)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("converse completed",
		zap.String("model", prep.ModelID),
		zap.String("stop_reason", string(output.StopReason)),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	return ConvertConverseResponse(output, prep.ModelID, messageID)
}

// Stream runs a streaming backend call and returns a FIFO channel of
// Messages SSE events. The channel closes when the backend stream ends;
// an item with Err set is the final item. The semaphore permit is held
// for the lifetime of the stream.
func (c *Client) Stream(ctx context.Context, prep *PreparedRequest, messageID string) (<-chan StreamItem, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire backend slot: %w", err)
	}

	out := make(chan StreamItem, 16)

	if prep.UseNative {
		body, err := marshalNativeBody(prep.NativeBody)
		if err != nil {
			c.sem.Release(1)
			return nil, err
		}
		output, err := c.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(prep.ModelID),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			if retryOutput, retryErr := c.retryStreamWithoutTier(ctx, prep, err); retryErr == nil && retryOutput != nil {
				output = retryOutput
			} else {
				c.sem.Release(1)
				return nil, TranslateError(err)
			}
		}
		stream := output.GetStream()
		go func() {
			defer c.sem.Release(1)
			defer stream.Close()
			bridgeNativeStream(ctx, stream, c.logger, out)
		}()
		return out, nil
	}

	output, err := c.client.ConverseStream(ctx, toConverseStreamInput(prep.Converse))
	if err != nil {
		if isServiceTierError(err, prep.ServiceTier) {
			prep.StripServiceTier()
			output, err = c.client.ConverseStream(ctx, toConverseStreamInput(prep.Converse))
		}
		if err != nil {
			c.sem.Release(1)
			return nil, TranslateError(err)
		}
	}
	stream := output.GetStream()
	go func() {
		defer c.sem.Release(1)
		defer stream.Close()
		bridgeConverseStream(ctx, stream, prep.ModelID, messageID, c.logger, out)
	}()
	return out, nil
}

// retryStreamWithoutTier retries a failed native stream start once with
// the service tier removed.
func (c *Client) retryStreamWithoutTier(ctx context.Context, prep *PreparedRequest, cause error) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	if !isServiceTierError(cause, prep.ServiceTier) {
		return nil, cause
	}
	c.logger.Warn("service tier not supported on stream, retrying with default",
		zap.String("tier", prep.ServiceTier))
	prep.StripServiceTier()
	body, err := marshalNativeBody(prep.NativeBody)
	if err != nil {
		return nil, err
	}
	return c.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(prep.ModelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
}

// isServiceTierError matches the backend rejection of an unsupported
// service tier.
func isServiceTierError(err error, tier string) bool {
	if err == nil || tier == "" || tier == "default" {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "servicetier") ||
		strings.Contains(msg, "service tier") ||
		strings.Contains(msg, "does not support")
}

// TranslateError maps a backend error onto the gateway error taxonomy.
// Translation happens exactly once, here; callers must not re-wrap.
func TranslateError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var smithyErr smithy.APIError
	if errors.As(err, &smithyErr) {
		msg := smithyErr.ErrorMessage()
		switch smithyErr.ErrorCode() {
		case "ValidationException":
			return anthropic.NewError(anthropic.ErrInvalidRequest, msg)
		case "ThrottlingException", "TooManyRequestsException":
			return anthropic.NewError(anthropic.ErrRateLimit, msg)
		case "ResourceNotFoundException":
			return anthropic.NewError(anthropic.ErrNotFound, msg)
		case "AccessDeniedException", "UnauthorizedException":
			return anthropic.NewError(anthropic.ErrPermission, msg)
		case "ServiceUnavailableException", "ModelNotReadyException", "ServiceQuotaExceededException":
			return anthropic.NewError(anthropic.ErrServiceUnavailable, msg)
		default:
			return anthropic.NewError(anthropic.ErrAPI, msg)
		}
	}
	return anthropic.NewError(anthropic.ErrAPI, err.Error())
}

// toConverseStreamInput copies a ConverseInput into the identically shaped
// ConverseStreamInput required by the streaming API.
func toConverseStreamInput(in *bedrockruntime.ConverseInput) *bedrockruntime.ConverseStreamInput {
	if in == nil {
		return nil
	}
	return &bedrockruntime.ConverseStreamInput{
		ModelId:                           in.ModelId,
		AdditionalModelRequestFields:      in.AdditionalModelRequestFields,
		AdditionalModelResponseFieldPaths: in.AdditionalModelResponseFieldPaths,
		InferenceConfig:                   in.InferenceConfig,
		Messages:                          in.Messages,
		PerformanceConfig:                 in.PerformanceConfig,
		PromptVariables:                   in.PromptVariables,
		RequestMetadata:                   in.RequestMetadata,
		System:                            in.System,
		ToolConfig:                        in.ToolConfig,
	}
}
