package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Exporter uploads run reports to an S3 bucket as JSON documents.
// Credentials come from the default AWS chain (env, shared config, IAM role).
type S3Exporter struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Exporter creates an exporter for the given bucket and key prefix.
func NewS3Exporter(ctx context.Context, bucket, prefix string, log zerolog.Logger) (*S3Exporter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Exporter{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("component", "s3_exporter").Logger(),
	}, nil
}

// Export uploads one run as <prefix>/<run-id>.json and returns the key.
func (e *S3Exporter) Export(ctx context.Context, run Run) (string, error) {
	body, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize run %s: %w", run.ID, err)
	}

	key := path.Join(e.prefix, run.ID+".json")
	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload run %s: %w", run.ID, err)
	}

	e.log.Info().Str("run_id", run.ID).Str("key", key).Msg("Exported run to S3")
	return key, nil
}
