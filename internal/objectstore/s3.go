package objectstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/embucket/embucket/internal/apperror"
)

// S3Client adapts aws-sdk-go-v2's s3.Client to the Client interface.
// Used for both the S3 and S3Tables volume variants (spec §4.3): an
// S3Tables volume resolves to a bucket derived from its ARN's region
// and is otherwise driven through the same S3 API surface.
type S3Client struct {
	api    *s3.Client
	bucket string
}

// NewS3Client builds an S3Client for the given bucket/region, using
// either static access-key credentials or a bearer token, falling back
// to the default AWS credential chain when neither is supplied.
func NewS3Client(ctx context.Context, bucket, region, accessKeyID, accessKeySecret, token, endpoint string) (*S3Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, accessKeySecret, token)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperror.New("objectstore.NewS3Client", apperror.KindObjectStore, err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = endpoint != ""
	})

	return &S3Client{api: api, bucket: bucket}, nil
}

func (c *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperror.New("objectstore.Get", apperror.KindObjectStore, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperror.New("objectstore.Get", apperror.KindObjectStore, err)
	}
	return data, nil
}

func (c *S3Client) Put(ctx context.Context, key string, data []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return apperror.New("objectstore.Put", apperror.KindObjectStore, err)
	}
	return nil
}

// Append on S3 has no native equivalent; it falls back to a
// read-modify-write, as documented on the Client interface.
func (c *S3Client) Append(ctx context.Context, key string, data []byte) error {
	existing, _ := c.Get(ctx, key) // absent object: treat as empty prefix
	return c.Put(ctx, key, append(existing, data...))
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperror.New("objectstore.Delete", apperror.KindObjectStore, err)
	}
	return nil
}

func (c *S3Client) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperror.New("objectstore.List", apperror.KindObjectStore, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				out = append(out, *obj.Key)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ Client = (*S3Client)(nil)

// stripCredentials returns scheme://host:port with any userinfo removed,
// used by the registry to derive its secondary cache key (spec §4.3).
func stripCredentials(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	idx := strings.Index(endpoint, "@")
	schemeIdx := strings.Index(endpoint, "://")
	if idx > 0 && schemeIdx > 0 && idx > schemeIdx {
		return endpoint[:schemeIdx+3] + endpoint[idx+1:]
	}
	return endpoint
}
