package spaces

import (
	"bytes"
	"context"
	"io"

	"github.com/DMarby/image-resizer/internal/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Config configures a Provider
type Config struct {
	Space          string // Bucket name
	Endpoint       string // Optional, for S3 compatible services such as digitalocean spaces
	Region         string
	AccessKey      string // Optional, falls back to the default AWS credential chain
	SecretKey      string
	ForcePathStyle bool
}

// Provider implements an S3 compatible blob storage
type Provider struct {
	spaces *s3.S3
	space  string
}

// New returns a new Provider instance, after checking that the space is reachable
func New(ctx context.Context, cfg Config) (*Provider, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}

	if cfg.Region == "" {
		awsConfig.Region = aws.String("us-east-1") // Needs to be us-east-1 for Spaces, or it'll fail
	}

	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	spacesSession, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}

	spaces := s3.New(spacesSession)

	_, err = spaces.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Space),
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		spaces: spaces,
		space:  cfg.Space,
	}, nil
}

// Get returns the contents of an object
func (p *Provider) Get(ctx context.Context, name string) ([]byte, error) {
	object := s3.GetObjectInput{
		Bucket: aws.String(p.space),
		Key:    aws.String(name),
	}

	output, err := p.spaces.GetObjectWithContext(ctx, &object)
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}
	defer output.Body.Close()

	buf := new(bytes.Buffer)
	_, err = io.Copy(buf, output.Body)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Put writes an object, replacing any existing object with the same key
func (p *Provider) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if name == "" {
		return storage.ErrInvalidName
	}

	_, err := p.spaces.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.space),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})

	return err
}
