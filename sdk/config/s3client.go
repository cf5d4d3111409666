// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objects up to this size are buffered and sent with a single PutObject
const putThreshold = 100 * 1024 * 1024

// S3Client wraps the object operations used by the s3 driver.
type S3Client struct {
	s3 *s3.Client
}

func NewS3Client(ctx context.Context, cfgCreds S3Config) (*S3Client, error) {
	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		cfgCreds.AccessKey,
		cfgCreds.SecretKey,
		cfgCreds.AccessToken,
	))

	region := cfgCreds.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(creds),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := func(o *s3.Options) {
		if cfgCreds.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfgCreds.EndpointURL)
			o.UsePathStyle = true
			// S3 compatible stores often reject aws-chunked trailers
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	}

	return &S3Client{
		s3: s3.NewFromConfig(cfg, s3Options),
	}, nil
}

// S3File is one listed object.
type S3File struct {
	Path         string
	Name         string
	Size         int64
	LastModified string
}

// S3Object is an opened object; Body is nil for HEAD requests.
type S3Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	ETag        string
}

/* -------------------- LIST -------------------- */

// ListFilesAll lists every object under prefix. Name is the key relative to
// prefix; zero sized "directory" placeholders are skipped.
func (c *S3Client) ListFilesAll(ctx context.Context, bucket string, prefix string) ([]S3File, error) {
	pages := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(o *s3.ListObjectsV2PaginatorOptions) {
		o.Limit = 1000
	})

	var files []S3File
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in S3: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") && aws.ToInt64(obj.Size) == 0 {
				continue
			}
			f := S3File{
				Path: key,
				Name: strings.TrimPrefix(key, prefix),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				f.LastModified = obj.LastModified.UTC().Format(time.RFC3339)
			}
			files = append(files, f)
		}
	}
	return files, nil
}

/* -------------------- DOWNLOAD -------------------- */

// OpenObject starts a GET; the caller closes Body.
func (c *S3Client) OpenObject(ctx context.Context, bucket, key string) (*S3Object, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return &S3Object{
		Body:        out.Body,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

func (c *S3Client) HeadObject(ctx context.Context, bucket, key string) (*S3Object, error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head object in S3: %w", err)
	}
	return &S3Object{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

/* -------------------- UPLOAD -------------------- */

// PutStream uploads r. Small objects of known size go through PutObject,
// everything else through the multipart uploader.
func (c *S3Client) PutStream(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if size >= 0 && size <= putThreshold {
		data, err := io.ReadAll(io.LimitReader(r, size))
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("failed to put object to S3: %w", err)
		}
		return nil
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := manager.NewUploader(c.s3).Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return nil
}
