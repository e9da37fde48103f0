package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tchap/cdn/ipanon/internal/ipanon"
)

// MappingPusher posts the address mapping dump to a record-keeping endpoint.
type MappingPusher struct {
	logger       *zap.Logger
	url          string
	retryCount   int
	retryMaxWait time.Duration
}

func NewMappingPusher(
	logger *zap.Logger,
	url string,
	retryCount int,
	retryMaxWait time.Duration,
) *MappingPusher {
	return &MappingPusher{
		logger:       logger,
		url:          url,
		retryCount:   retryCount,
		retryMaxWait: retryMaxWait,
	}
}

func (pusher *MappingPusher) Push(ctx context.Context, body *bytes.Buffer, mappingCount int) error {
	// Init HTTP client supporting retries.
	client := retryablehttp.NewClient()
	client.RetryMax = pusher.retryCount
	client.RetryWaitMax = pusher.retryMaxWait
	client.Logger = log.New(io.Discard, "", 0)
	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if !isSuccess(resp.StatusCode) {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			pusher.logger.Warn(
				"Destination server returned an unexpected status code.",
				zap.String("destination_url", pusher.url),
				zap.Int("response_status_code", resp.StatusCode),
				zap.ByteString("response_body", body),
			)
		}
	}

	// Push to the destination URL.
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, pusher.url, body)
	if err != nil {
		pusher.logger.Error("Failed to init HTTP request.", zap.Error(err))
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		pusher.logger.Error(
			"Failed to post address mapping.",
			zap.String("destination_url", pusher.url),
			zap.Error(err),
		)
		return errors.Wrap(err, "failed to post address mapping")
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("mapping pusher: unexpected status code: %d", resp.StatusCode)
	}

	pusher.logger.Info(
		"Address mapping pushed successfully.",
		zap.String("destination_url", pusher.url),
		zap.Int("mapping_count", mappingCount),
	)
	return nil
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// MappingExporter dumps the mapping of all the engines into a file
// and/or posts it using a MappingPusher.
type MappingExporter struct {
	logger  *zap.Logger
	engines []*ipanon.Anonymizer
	path    string
	pusher  *MappingPusher
}

func NewMappingExporter(
	logger *zap.Logger,
	engines []*ipanon.Anonymizer,
	path string,
	pusher *MappingPusher,
) *MappingExporter {
	return &MappingExporter{
		logger:  logger,
		engines: engines,
		path:    path,
		pusher:  pusher,
	}
}

// Enabled reports whether there is any destination configured.
func (exp *MappingExporter) Enabled() bool {
	return exp.path != "" || exp.pusher != nil
}

// Export writes the sorted mapping, IPv4 engines first when passed first.
func (exp *MappingExporter) Export(ctx context.Context) error {
	if !exp.Enabled() {
		return nil
	}

	var (
		buf   bytes.Buffer
		count int
	)
	for _, engine := range exp.engines {
		if err := engine.Dump(&buf); err != nil {
			return err
		}
		count += engine.MappingCount()
	}

	if exp.path != "" {
		if err := os.WriteFile(exp.path, buf.Bytes(), 0o600); err != nil {
			exp.logger.Error(
				"Failed to write address mapping.",
				zap.String("mapping_path", exp.path),
				zap.Error(err),
			)
			return errors.Wrap(err, "failed to write address mapping")
		}
		exp.logger.Info(
			"Address mapping written.",
			zap.String("mapping_path", exp.path),
			zap.Int("mapping_count", count),
		)
	}

	if exp.pusher != nil {
		if err := exp.pusher.Push(ctx, bytes.NewBuffer(buf.Bytes()), count); err != nil {
			return err
		}
	}
	return nil
}
