package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	conf "github.com/isntfunny/kitchenpace-sub002/internal/config"
	"github.com/isntfunny/kitchenpace-sub002/internal/logging"
	"github.com/isntfunny/kitchenpace-sub002/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("upload queue is full")
	ErrNotFound  = errors.New("object not found")
)

type uploadReq struct {
	ctx      context.Context
	key      string
	fileType string
	payload  []byte

	onSuccess func()
}

type S3 struct {
	AccountID          string
	Bucket             string
	Region             string // usually "auto" for R2
	Endpoint           string
	AwsAccessKeyId     string
	AwsSecretAccessKey string

	Workers        int
	QueueSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration

	queue chan uploadReq
	wg    sync.WaitGroup

	S3Client *s3.Client
	Uploader *manager.Uploader
}

func NewStorage(ctx context.Context, cfg *conf.R2Config) (*S3, error) {
	r2c := &S3{
		AccountID:          cfg.AccountID,
		Bucket:             cfg.BucketName,
		Region:             cfg.Region,
		Endpoint:           cfg.Endpoint,
		AwsAccessKeyId:     cfg.AccessKeyID,
		AwsSecretAccessKey: cfg.SecretKey,
		Workers:            cfg.Workers,
		QueueSize:          cfg.QueueSize,
		MaxRetries:         cfg.MaxRetries,
		RetryBaseDelay:     300 * time.Millisecond,
	}
	if r2c.Region == "" {
		r2c.Region = "auto"
	}
	if r2c.Workers <= 0 {
		r2c.Workers = 1
	}
	if err := r2c.Run(ctx); err != nil {
		return nil, err
	}

	return r2c, nil
}

func (s *S3) Run(ctx context.Context) error {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AwsAccessKeyId, s.AwsSecretAccessKey, "",
		)),
		config.WithRegion(s.Region),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.AccountID)
	}

	s.S3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	s.Uploader = manager.NewUploader(s.S3Client)

	s.queue = make(chan uploadReq, s.QueueSize)
	for i := 0; i < s.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	logging.L().Info("object storage client initialized",
		zap.String("bucket", s.Bucket),
		zap.String("endpoint", endpoint),
		zap.Int("upload_workers", s.Workers),
	)
	return nil
}

// Close waits for all queued uploads to be processed.
func (s *S3) Close() {
	close(s.queue)
	s.wg.Wait()
}

// UploadWithHook puts an upload on the queue without blocking.
// If the queue is full, it returns ErrQueueFull immediately.
// onSuccess runs on the worker goroutine once the object is stored.
func (s *S3) UploadWithHook(ctx context.Context, key string, fileType string, payload []byte, onSuccess func()) error {
	req := uploadReq{ctx: ctx, key: key, fileType: fileType, payload: payload, onSuccess: onSuccess}
	select {
	case s.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (s *S3) worker() {
	defer s.wg.Done()
	for req := range s.queue {
		var err error
		attempt := 0

		for {
			attempt++
			start := time.Now()
			_, err = s.Uploader.Upload(req.ctx, &s3.PutObjectInput{
				Bucket:      aws.String(s.Bucket),
				Key:         aws.String(req.key),
				Body:        bytes.NewReader(req.payload),
				ContentType: aws.String(req.fileType),
			})
			metrics.RecordStorageOperation("upload", time.Since(start), operationResult(err))
			if err == nil {
				if req.onSuccess != nil {
					req.onSuccess()
				}
				break
			}

			if attempt > s.MaxRetries {
				break
			}

			timer := time.NewTimer(backoffDelay(s.RetryBaseDelay, attempt))
			select {
			case <-timer.C:
			case <-req.ctx.Done():
				timer.Stop()
			}
			if req.ctx.Err() != nil {
				break
			}
		}

		if err != nil {
			logging.L().Error("upload failed",
				zap.String("key", req.key),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
		}
	}
}

// backoffDelay doubles base per attempt and spreads it by +-5%.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	jitter := int64(delay) / 10
	if jitter <= 0 {
		return delay
	}
	return delay - time.Duration(jitter/2) + time.Duration(rand.Int64N(jitter))
}

// GetObject returns the full body of key, or ErrNotFound.
func (s *S3) GetObject(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordStorageOperation("get_object", time.Since(start), operationResult(err))
		if isNotFound(err) {
			return nil, fmt.Errorf("failed to download %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		metrics.RecordStorageOperation("get_object", time.Since(start), metrics.ResultError)
		return nil, fmt.Errorf("failed to read body for %q: %w", key, err)
	}
	metrics.RecordStorageOperation("get_object", time.Since(start), metrics.ResultSuccess)

	return buf.Bytes(), nil
}

// PutObject stores payload synchronously.
func (s *S3) PutObject(ctx context.Context, key string, payload []byte, contentType, cacheControl string) error {
	start := time.Now()
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	}
	if cacheControl != "" {
		input.CacheControl = aws.String(cacheControl)
	}

	_, err := s.S3Client.PutObject(ctx, input)
	metrics.RecordStorageOperation("put_object", time.Since(start), operationResult(err))
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}
	return nil
}

func operationResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case isNotFound(err):
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
