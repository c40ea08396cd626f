// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package iamuser

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

type awsClient struct {
	iam *iam.Client
}

// NewAWSClient builds an APIClient backed by IAM from the process's
// default AWS credential chain, the same config.LoadDefaultConfig path
// karpenter's kwok operator uses to build its own IAM client.
func NewAWSClient(ctx context.Context) (APIClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &awsClient{iam: iam.NewFromConfig(cfg)}, nil
}

func (c *awsClient) GetUser(ctx context.Context, name string) (*User, error) {
	out, err := c.iam.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(name)})
	if err != nil {
		var nf *types.NoSuchEntityException
		if errors.As(err, &nf) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting IAM user %q: %w", name, err)
	}
	return &User{Name: aws.ToString(out.User.UserName), ARN: aws.ToString(out.User.Arn)}, nil
}

func (c *awsClient) CreateUser(ctx context.Context, name string, policyARNs []string) (*User, error) {
	out, err := c.iam.CreateUser(ctx, &iam.CreateUserInput{UserName: aws.String(name)})
	if err != nil {
		var exists *types.EntityAlreadyExistsException
		if errors.As(err, &exists) {
			return c.GetUser(ctx, name)
		}
		return nil, fmt.Errorf("creating IAM user %q: %w", name, err)
	}

	for _, policyARN := range policyARNs {
		_, err := c.iam.AttachUserPolicy(ctx, &iam.AttachUserPolicyInput{
			UserName:  aws.String(name),
			PolicyArn: aws.String(policyARN),
		})
		if err != nil {
			return nil, fmt.Errorf("attaching policy %q to user %q: %w", policyARN, name, err)
		}
	}

	return &User{Name: aws.ToString(out.User.UserName), ARN: aws.ToString(out.User.Arn)}, nil
}

func (c *awsClient) DeleteUser(ctx context.Context, name string, policyARNs []string) error {
	for _, policyARN := range policyARNs {
		_, err := c.iam.DetachUserPolicy(ctx, &iam.DetachUserPolicyInput{
			UserName:  aws.String(name),
			PolicyArn: aws.String(policyARN),
		})
		if err != nil {
			var nf *types.NoSuchEntityException
			if !errors.As(err, &nf) {
				return fmt.Errorf("detaching policy %q from user %q: %w", policyARN, name, err)
			}
		}
	}

	_, err := c.iam.DeleteUser(ctx, &iam.DeleteUserInput{UserName: aws.String(name)})
	if err != nil {
		var nf *types.NoSuchEntityException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("deleting IAM user %q: %w", name, err)
	}
	return nil
}
