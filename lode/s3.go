package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config places the pool mirror in a bucket. Endpoint and UsePathStyle
// serve S3-compatible stores such as MinIO; credentials come from the AWS
// default chain.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// ParseS3Location reads a --mirror-path of the form [s3://]bucket[/prefix].
// Surrounding slashes on the prefix are dropped.
func ParseS3Location(path string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(path, "s3://")
	bucket, prefix, _ = strings.Cut(rest, "/")
	prefix = strings.Trim(prefix, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 mirror path %q has no bucket", path)
	}
	return bucket, prefix, nil
}

// clientOptions turns the endpoint settings into s3 client options.
func (c S3Config) clientOptions() []func(*s3.Options) {
	if c.Endpoint == "" && !c.UsePathStyle {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = &c.Endpoint
		}
		o.UsePathStyle = c.UsePathStyle
	}}
}

// NewS3Mirror creates a mirror that puts each run's pool into the bucket.
// AWS configuration is resolved up front so a bad region or profile fails
// before the server is dialed.
func NewS3Mirror(ctx context.Context, cfg Config, s3cfg S3Config) (*PoolMirror, error) {
	if s3cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}

	var load []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		load = append(load, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, WrapError("init", s3cfg.Bucket, fmt.Errorf("load AWS config: %w", err))
	}
	client := s3.NewFromConfig(awsConfig, s3cfg.clientOptions()...)

	return NewMirrorWithFactory(cfg, func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix})
	})
}
