// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package certificate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"
)

type awsClient struct {
	acm *acm.Client
}

// NewAWSClient builds an APIClient backed by ACM from the process's
// default AWS credential chain.
func NewAWSClient(ctx context.Context) (APIClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &awsClient{acm: acm.NewFromConfig(cfg)}, nil
}

func (c *awsClient) GetCertificate(ctx context.Context, domain string) (*Certificate, error) {
	out, err := c.acm.ListCertificates(ctx, &acm.ListCertificatesInput{})
	if err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}

	for _, summary := range out.CertificateSummaryList {
		if aws.ToString(summary.DomainName) != domain {
			continue
		}
		desc, err := c.acm.DescribeCertificate(ctx, &acm.DescribeCertificateInput{CertificateArn: summary.CertificateArn})
		if err != nil {
			return nil, fmt.Errorf("describing certificate %q: %w", aws.ToString(summary.CertificateArn), err)
		}
		return &Certificate{
			ARN:    aws.ToString(desc.Certificate.CertificateArn),
			Domain: domain,
			Status: string(desc.Certificate.Status),
		}, nil
	}
	return nil, ErrCertNotFound
}

func (c *awsClient) RequestCertificate(ctx context.Context, domain, validationMethod string) (*Certificate, error) {
	out, err := c.acm.RequestCertificate(ctx, &acm.RequestCertificateInput{
		DomainName:       aws.String(domain),
		ValidationMethod: types.ValidationMethod(validationMethod),
	})
	if err != nil {
		return nil, fmt.Errorf("requesting certificate for %q: %w", domain, err)
	}
	return &Certificate{ARN: aws.ToString(out.CertificateArn), Domain: domain, Status: string(types.CertificateStatusPendingValidation)}, nil
}

func (c *awsClient) DeleteCertificate(ctx context.Context, arn string) error {
	_, err := c.acm.DeleteCertificate(ctx, &acm.DeleteCertificateInput{CertificateArn: aws.String(arn)})
	if err != nil {
		return fmt.Errorf("deleting certificate %q: %w", arn, err)
	}
	return nil
}
