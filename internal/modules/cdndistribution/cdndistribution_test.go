// SPDX-License-Identifier: AGPL-3.0-or-later

package cdndistribution

import (
	"context"
	"errors"
	"testing"

	"g8r/pkg/model"
	"g8r/pkg/module"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	distributions map[string]*Distribution
	created       int
	deleted       int
}

func newFakeClient() *fakeClient {
	return &fakeClient{distributions: map[string]*Distribution{}}
}

func (c *fakeClient) GetDistribution(ctx context.Context, dutyName string) (*Distribution, error) {
	if d, ok := c.distributions[dutyName]; ok {
		return d, nil
	}
	return nil, ErrDistNotFound
}

func (c *fakeClient) CreateDistribution(ctx context.Context, dutyName, originDomain string, aliases []string) (*Distribution, error) {
	c.created++
	d := &Distribution{ID: "E" + dutyName, DomainName: dutyName + ".cloudfront.net", Status: "InProgress"}
	c.distributions[dutyName] = d
	return d, nil
}

func (c *fakeClient) DeleteDistribution(ctx context.Context, id string) error {
	for name, d := range c.distributions {
		if d.ID == id {
			c.deleted++
			delete(c.distributions, name)
			return nil
		}
	}
	return ErrDistNotFound
}

func testDuty(spec map[string]any) model.Duty {
	return model.Duty{Name: "assets-cdn", DutyType: "CDNDistribution", Spec: spec}
}

func TestApply_CreatesDistributionOnFirstCall(t *testing.T) {
	client := newFakeClient()
	m := New(client)

	result, err := m.Apply(context.Background(), model.Roster{}, testDuty(map[string]any{
		"origin_bucket_arn": "arn:aws:s3:::my-assets-bucket",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, client.created)
	assert.Equal(t, module.PhaseDeployed, result.Phase)
	assert.Equal(t, "assets-cdn.cloudfront.net", result.Outputs["distribution_domain"])
}

// Invariant 3 — a second Apply must not create a duplicate distribution.
func TestApply_IsIdempotent(t *testing.T) {
	client := newFakeClient()
	m := New(client)
	duty := testDuty(map[string]any{"origin_bucket_arn": "arn:aws:s3:::my-assets-bucket"})

	_, err := m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	_, err = m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	assert.Equal(t, 1, client.created)
}

// S3 — origin_bucket_arn is the kind of field the controller's runtime
// feedback loop resolves from an upstream S3Bucket duty's "bucket_arn"
// output before this module ever sees the duty; this module only needs to
// derive the right origin hostname from whatever ARN lands in its spec,
// regardless of whether it was authored literally or resolved at runtime.
func TestApply_DerivesOriginFromUpstreamResolvedBucketARN(t *testing.T) {
	client := newFakeClient()
	m := New(client)

	resolvedSpec := map[string]any{
		"origin_bucket_arn": "arn:aws:s3:::" + "bucket-from-upstream-output",
	}
	result, err := m.Apply(context.Background(), model.Roster{}, testDuty(resolvedSpec))
	require.NoError(t, err)

	created := client.distributions["assets-cdn"]
	require.NotNil(t, created)
	assert.Contains(t, result.Message, `"bucket-from-upstream-output.s3.amazonaws.com"`)
}

func TestApply_RejectsMissingOriginBucketARN(t *testing.T) {
	m := New(newFakeClient())
	_, err := m.Apply(context.Background(), model.Roster{}, testDuty(map[string]any{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpecInvalid))
}

func TestApply_RejectsMalformedBucketARN(t *testing.T) {
	m := New(newFakeClient())
	_, err := m.Apply(context.Background(), model.Roster{}, testDuty(map[string]any{"origin_bucket_arn": "not-an-arn"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpecInvalid))
}

func TestDestroy_IsIdempotentWhenAlreadyAbsent(t *testing.T) {
	m := New(newFakeClient())
	duty := testDuty(map[string]any{"origin_bucket_arn": "arn:aws:s3:::my-assets-bucket"})
	_, err := m.Destroy(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
}

func TestDestroy_RemovesExistingDistribution(t *testing.T) {
	client := newFakeClient()
	m := New(client)
	duty := testDuty(map[string]any{"origin_bucket_arn": "arn:aws:s3:::my-assets-bucket"})

	_, err := m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	_, err = m.Destroy(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	assert.Equal(t, 1, client.deleted)
}
