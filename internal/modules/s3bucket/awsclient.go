// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package s3bucket

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// awsClient adapts the real S3 SDK client to APIClient, following the
// teacher's DigitalOcean provider's client.go boundary: the module
// depends only on this small interface, never on the SDK directly.
type awsClient struct {
	s3 *s3.Client
}

// NewAWSClient builds an APIClient from the process's default AWS
// credential chain (spec.md §4.2: roster.Auth/Connection carry whatever
// the underlying cloud SDK needs, resolved the same way
// aws-sdk-go-v2/config.LoadDefaultConfig resolves it for any AWS caller).
func NewAWSClient(ctx context.Context) (APIClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &awsClient{s3: s3.NewFromConfig(cfg)}, nil
}

func (c *awsClient) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	out, err := c.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	for _, b := range out.Buckets {
		if aws.ToString(b.Name) == name {
			return &Bucket{Name: name, ARN: bucketARN(name)}, nil
		}
	}
	return nil, ErrBucketNotFound
}

func (c *awsClient) CreateBucket(ctx context.Context, name, region string) (*Bucket, error) {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err := c.s3.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if !errors.As(err, &owned) && !errors.As(err, &exists) {
			return nil, fmt.Errorf("creating bucket %q: %w", name, err)
		}
	}

	return &Bucket{Name: name, Region: region, ARN: bucketARN(name)}, nil
}

func (c *awsClient) DeleteBucket(ctx context.Context, name string) error {
	_, err := c.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var noSuch *types.NoSuchBucket
		if errors.As(err, &noSuch) {
			return ErrBucketNotFound
		}
		return fmt.Errorf("deleting bucket %q: %w", name, err)
	}
	return nil
}

func bucketARN(name string) string {
	return "arn:aws:s3:::" + name
}
