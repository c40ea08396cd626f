// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package cdndistribution

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

type awsClient struct {
	cloudfront *cloudfront.Client
}

// NewAWSClient builds an APIClient backed by CloudFront from the process's
// default AWS credential chain.
func NewAWSClient(ctx context.Context) (APIClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &awsClient{cloudfront: cloudfront.NewFromConfig(cfg)}, nil
}

// comment tags a distribution with the duty it belongs to, since
// CloudFront has no native concept of a caller-supplied name.
func comment(dutyName string) string { return "g8r:" + dutyName }

func (c *awsClient) GetDistribution(ctx context.Context, dutyName string) (*Distribution, error) {
	want := comment(dutyName)
	paginator := cloudfront.NewListDistributionsPaginator(c.cloudfront, &cloudfront.ListDistributionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing distributions: %w", err)
		}
		if page.DistributionList == nil {
			continue
		}
		for _, item := range page.DistributionList.Items {
			if aws.ToString(item.Comment) != want {
				continue
			}
			return &Distribution{
				ID:         aws.ToString(item.Id),
				DomainName: aws.ToString(item.DomainName),
				Status:     aws.ToString(item.Status),
			}, nil
		}
	}
	return nil, ErrDistNotFound
}

func (c *awsClient) CreateDistribution(ctx context.Context, dutyName, originDomain string, aliases []string) (*Distribution, error) {
	originID := "origin-" + dutyName
	cfg := &types.DistributionConfig{
		CallerReference: aws.String(dutyName),
		Comment:         aws.String(comment(dutyName)),
		Enabled:         aws.Bool(true),
		DefaultCacheBehavior: &types.DefaultCacheBehavior{
			TargetOriginId:       aws.String(originID),
			ViewerProtocolPolicy: types.ViewerProtocolPolicyRedirectToHttps,
			ForwardedValues: &types.ForwardedValues{
				QueryString: aws.Bool(false),
				Cookies:     &types.CookiePreference{Forward: types.ItemSelectionNone},
			},
			MinTTL:         aws.Int64(0),
			TrustedSigners: &types.TrustedSigners{Enabled: aws.Bool(false), Quantity: aws.Int32(0)},
		},
		Origins: &types.Origins{
			Quantity: aws.Int32(1),
			Items: []types.Origin{
				{
					Id:         aws.String(originID),
					DomainName: aws.String(originDomain),
					S3OriginConfig: &types.S3OriginConfig{
						OriginAccessIdentity: aws.String(""),
					},
				},
			},
		},
	}
	if len(aliases) > 0 {
		cfg.Aliases = &types.Aliases{Quantity: aws.Int32(int32(len(aliases))), Items: aliases}
	}

	out, err := c.cloudfront.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{DistributionConfig: cfg})
	if err != nil {
		return nil, fmt.Errorf("creating distribution for duty %q: %w", dutyName, err)
	}
	return &Distribution{
		ID:         aws.ToString(out.Distribution.Id),
		DomainName: aws.ToString(out.Distribution.DomainName),
		Status:     aws.ToString(out.Distribution.Status),
	}, nil
}

func (c *awsClient) DeleteDistribution(ctx context.Context, id string) error {
	getOut, err := c.cloudfront.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(id)})
	if err != nil {
		return fmt.Errorf("fetching distribution %q before delete: %w", id, err)
	}

	disabled := *getOut.Distribution.DistributionConfig
	disabled.Enabled = aws.Bool(false)
	updateOut, err := c.cloudfront.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(id),
		IfMatch:            getOut.ETag,
		DistributionConfig: &disabled,
	})
	if err != nil {
		return fmt.Errorf("disabling distribution %q before delete: %w", id, err)
	}

	_, err = c.cloudfront.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      aws.String(id),
		IfMatch: updateOut.ETag,
	})
	if err != nil {
		return fmt.Errorf("deleting distribution %q: %w", id, err)
	}
	return nil
}
