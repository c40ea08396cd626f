// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package dnsrecord

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

type awsClient struct {
	route53 *route53.Client
}

// NewAWSClient builds an APIClient backed by Route 53 from the process's
// default AWS credential chain.
func NewAWSClient(ctx context.Context) (APIClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &awsClient{route53: route53.NewFromConfig(cfg)}, nil
}

func (c *awsClient) GetRecord(ctx context.Context, zoneID, name, recordType string) (*Record, error) {
	out, err := c.route53.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: types.RRType(recordType),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("listing records in zone %q: %w", zoneID, err)
	}

	for _, rrset := range out.ResourceRecordSets {
		if trimDot(aws.ToString(rrset.Name)) == trimDot(name) && string(rrset.Type) == recordType {
			var value string
			if len(rrset.ResourceRecords) > 0 {
				value = aws.ToString(rrset.ResourceRecords[0].Value)
			}
			return &Record{Name: name, Type: recordType, Value: value, TTL: aws.ToInt64(rrset.TTL)}, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (c *awsClient) UpsertRecord(ctx context.Context, zoneID string, rec Record) error {
	return c.changeRecord(ctx, zoneID, rec, types.ChangeActionUpsert)
}

func (c *awsClient) DeleteRecord(ctx context.Context, zoneID string, rec Record) error {
	if _, err := c.GetRecord(ctx, zoneID, rec.Name, rec.Type); err != nil {
		return err
	}
	return c.changeRecord(ctx, zoneID, rec, types.ChangeActionDelete)
}

func (c *awsClient) changeRecord(ctx context.Context, zoneID string, rec Record, action types.ChangeAction) error {
	_, err := c.route53.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{
				{
					Action: action,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name:            aws.String(rec.Name),
						Type:            types.RRType(rec.Type),
						TTL:             aws.Int64(rec.TTL),
						ResourceRecords: []types.ResourceRecord{{Value: aws.String(rec.Value)}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%s record %q in zone %q: %w", strings.ToLower(string(action)), rec.Name, zoneID, err)
	}
	return nil
}

func trimDot(name string) string {
	return strings.TrimSuffix(name, ".")
}
