package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/logging"
	sc "github.com/dmitrijs2005/marksync/internal/server/config"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Collection is the part of SyncService an export needs.
type Collection interface {
	All(ctx context.Context, owner uuid.UUID) ([]bookmark.Bookmark, error)
}

// Export describes an uploaded archive.
type Export struct {
	Key     string
	URL     string
	Count   int
	Expires time.Time
}

// ExportService writes a user's collection as gzipped NDJSON to object
// storage and hands back a presigned download link.
type ExportService struct {
	bookmarks Collection
	config    *sc.Config
	logger    logging.Logger
}

func NewExportService(bookmarks Collection, config *sc.Config, logger logging.Logger) *ExportService {
	return &ExportService{bookmarks: bookmarks, config: config, logger: logger.With("module", "export_service")}
}

// ExportKey is the object key of an export made at t.
func ExportKey(owner uuid.UUID, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("exports/%s/%d/%02d/%02d/%s.ndjson.gz", owner, t.Year(), t.Month(), t.Day(), uuid.New())
}

func (s *ExportService) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Archive renders bookmarks as gzipped NDJSON.
func Archive(bookmarks []bookmark.Bookmark) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := bookmark.EncodeBatch(zw, bookmark.FramingNDJSON, bookmarks); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *ExportService) Export(ctx context.Context, owner uuid.UUID) (*Export, error) {
	all, err := s.bookmarks.All(ctx, owner)
	if err != nil {
		return nil, err
	}
	body, err := Archive(all)
	if err != nil {
		return nil, fmt.Errorf("error building archive: %w", err)
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error configuring s3: %w", err)
	}

	bucket := s.config.S3Bucket
	key := ExportKey(owner, time.Now())

	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:          &bucket,
		Key:             &key,
		Body:            bytes.NewReader(body),
		ContentType:     aws.String(bookmark.ContentTypeNDJSON),
		ContentEncoding: aws.String("gzip"),
	}); err != nil {
		return nil, fmt.Errorf("error uploading export: %w", err)
	}

	validity := s.config.ExportURLValidityDuration
	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(validity))
	if err != nil {
		return nil, fmt.Errorf("error presigning export: %w", err)
	}

	s.logger.Info(ctx, "export uploaded", "user", owner, "key", key, "count", len(all), "bytes", len(body))
	return &Export{Key: key, URL: req.URL, Count: len(all), Expires: time.Now().Add(validity)}, nil
}
