package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ ArtifactStore = (*S3)(nil)

// S3Config configures the S3-backed ArtifactStore, which the distribution
// planner treats as a single "network" DriveInfo.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	// TotalBytes and AvailableBytes feed DriveInfo for this bucket, since S3
	// exposes no quota API the planner can enumerate generically.
	TotalBytes     int64
	AvailableBytes int64
}

// S3 is an ArtifactStore backed by an S3-compatible bucket, exposed to the
// Storage Planner as a network-type drive.
type S3 struct {
	client   *s3.Client
	uploader *transfermanager.Client
	bucket   string
	prefix   string
	cfg      S3Config
}

// NewS3 constructs an S3-backed ArtifactStore.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3{
		client:   client,
		uploader: transfermanager.New(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		cfg:      cfg,
	}, nil
}

func (s *S3) key(name string) string { return filepath.Join(s.prefix, name) }

func (s *S3) Stat(ctx context.Context, name string) (int64, bool, error) {
	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if output.ContentLength == nil {
		return 0, true, nil
	}
	return *output.ContentLength, true, nil
}

func (s *S3) Get(ctx context.Context, name string) (io.ReadCloser, bool, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return output.Body, true, nil
}

func (s *S3) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()

	go func() {
		_, err := s.uploader.UploadObject(ctx, &transfermanager.UploadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(name)),
			Body:   pr,
		})
		if err != nil {
			pr.CloseWithError(fmt.Errorf("storage: uploading to S3: %w", err))
			return
		}
		pr.Close()
	}()

	return pw, nil
}

func (s *S3) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

// DriveInfo reports this bucket as a single network drive, per the
// multi-drive distribution plan's handling of remote storage targets.
func (s *S3) DriveInfo() DriveInfo {
	used := s.cfg.TotalBytes - s.cfg.AvailableBytes
	if used < 0 {
		used = 0
	}
	return DriveInfo{
		Mount:             fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix),
		TotalBytes:        s.cfg.TotalBytes,
		AvailableBytes:    s.cfg.AvailableBytes,
		UsedBytes:         used,
		Filesystem:        "s3",
		DriveType:         DriveNetwork,
		IsSystemDrive:     false,
		PerformanceScore:  scorePerformance(driveScoreInputs{isSystemDrive: false, freeFraction: freeFraction(s.cfg.AvailableBytes, s.cfg.TotalBytes), isSSD: false, isRemovable: false, isModernFilesystem: true}),
	}
}
