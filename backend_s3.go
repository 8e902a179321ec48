package strata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3SubstrateConfig configures the S3 substrate.
type S3SubstrateConfig struct {
	Bucket   string
	Region   string
	Endpoint string // for S3-compatible services (MinIO, etc.)

	// AccessKeyID and SecretAccessKey authenticate statically. Prefer IAM
	// roles or environment credentials; never commit these to source.
	AccessKeyID     string
	SecretAccessKey string

	Prefix       string // key prefix ahead of the tier name
	UsePathStyle bool
	CacheSize    int // read-cache capacity in objects (default: 100)
	MaxRetries   int // retry attempts per operation (default: 3)
}

// S3Substrate implements Substrate on S3 or S3-compatible object storage,
// with one key prefix per tier. Object stores have no rename primitive,
// so Move is a server-side copy followed by a delete; a crash between the
// two can briefly leave the object in both tiers, which the next
// migration pass re-converges.
type S3Substrate struct {
	client  *s3.Client
	config  S3SubstrateConfig
	cache   *lruCache
	retryer *Retryer
}

var _ Substrate = (*S3Substrate)(nil)

// NewS3Substrate creates an S3 substrate.
func NewS3Substrate(ctx context.Context, cfg S3SubstrateConfig) (*S3Substrate, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3Substrate{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		cache:  newLRUCache(cfg.CacheSize),
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
		}),
	}, nil
}

func (s *S3Substrate) objectKey(tier StorageTier, key string) string {
	return s.config.Prefix + tier.String() + "/" + key
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

func (s *S3Substrate) Read(ctx context.Context, tier StorageTier, key string) ([]byte, error) {
	objKey := s.objectKey(tier, key)
	if data, ok := s.cache.Get(objKey); ok {
		return data, nil
	}

	var data []byte
	err := s.retryer.Do(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(objKey),
		})
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", tier, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("s3 read %s: %w", objKey, err)
	}
	s.cache.Put(objKey, data)
	return data, nil
}

func (s *S3Substrate) Write(ctx context.Context, tier StorageTier, key string, data []byte) error {
	objKey := s.objectKey(tier, key)
	err := s.retryer.Do(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(objKey),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("s3 write %s: %w", objKey, err)
	}
	s.cache.Put(objKey, data)
	return nil
}

func (s *S3Substrate) Delete(ctx context.Context, tier StorageTier, key string) error {
	objKey := s.objectKey(tier, key)
	err := s.retryer.Do(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(objKey),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", objKey, err)
	}
	s.cache.Delete(objKey)
	return nil
}

func (s *S3Substrate) Move(ctx context.Context, key string, from, to StorageTier) error {
	srcKey := s.objectKey(from, key)
	dstKey := s.objectKey(to, key)

	err := s.retryer.Do(ctx, func() error {
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.config.Bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(s.config.Bucket + "/" + srcKey),
		})
		return err
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%s/%s: %w", from, key, ErrObjectNotFound)
		}
		return fmt.Errorf("s3 move %s -> %s: %w", srcKey, dstKey, err)
	}

	if err := s.Delete(ctx, from, key); err != nil {
		return fmt.Errorf("s3 move %s -> %s: source delete: %w", srcKey, dstKey, err)
	}
	s.cache.Delete(srcKey)
	return nil
}

func (s *S3Substrate) List(ctx context.Context, tier StorageTier) ([]string, error) {
	prefix := s.config.Prefix + tier.String() + "/"

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s tier: %w", tier, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(*obj.Key, prefix))
		}
	}
	return keys, nil
}

func (s *S3Substrate) Exists(ctx context.Context, tier StorageTier, key string) (bool, error) {
	objKey := s.objectKey(tier, key)
	if _, ok := s.cache.Get(objKey); ok {
		return true, nil
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", objKey, err)
	}
	return true, nil
}

func (s *S3Substrate) Close() error {
	return nil
}

// lruCache is a small LRU read cache for remote objects.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string][]byte
	order    []string
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		items:    make(map[string][]byte),
	}
}

func (c *lruCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.moveToEnd(key)
	return data, true
}

func (c *lruCache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		c.items[key] = data
		c.moveToEnd(key)
		return
	}
	for len(c.items) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
	c.items[key] = data
	c.order = append(c.order, key)
}

func (c *lruCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *lruCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			break
		}
	}
}
