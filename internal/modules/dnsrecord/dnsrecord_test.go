// SPDX-License-Identifier: AGPL-3.0-or-later

package dnsrecord

import (
	"context"
	"errors"
	"testing"

	"g8r/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	records map[string]Record
	upserts int
	deletes int
}

func newFakeClient() *fakeClient {
	return &fakeClient{records: map[string]Record{}}
}

func key(name, recordType string) string { return name + "/" + recordType }

func (c *fakeClient) GetRecord(ctx context.Context, zoneID, name, recordType string) (*Record, error) {
	if r, ok := c.records[key(name, recordType)]; ok {
		return &r, nil
	}
	return nil, ErrRecordNotFound
}

func (c *fakeClient) UpsertRecord(ctx context.Context, zoneID string, rec Record) error {
	c.upserts++
	c.records[key(rec.Name, rec.Type)] = rec
	return nil
}

func (c *fakeClient) DeleteRecord(ctx context.Context, zoneID string, rec Record) error {
	k := key(rec.Name, rec.Type)
	if _, ok := c.records[k]; !ok {
		return ErrRecordNotFound
	}
	c.deletes++
	delete(c.records, k)
	return nil
}

func testDuty(spec map[string]any) model.Duty {
	return model.Duty{Name: "www", DutyType: "DNSRecord", Spec: spec}
}

func TestApply_UpsertsRecord(t *testing.T) {
	client := newFakeClient()
	m := New(client)

	result, err := m.Apply(context.Background(), model.Roster{}, testDuty(map[string]any{
		"zone_id": "Z1", "name": "www.example.com", "type": "A", "value": "203.0.113.10",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, client.upserts)
	assert.Equal(t, "www.example.com", result.Outputs["record_name"])
}

// Invariant 3 — repeated Apply on the same record stays idempotent at the
// caller's view, even though Route 53 upserts are naturally idempotent.
func TestApply_RepeatedUpsertSameRecord(t *testing.T) {
	client := newFakeClient()
	m := New(client)
	duty := testDuty(map[string]any{"zone_id": "Z1", "name": "www.example.com", "type": "A", "value": "203.0.113.10"})

	_, err := m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	_, err = m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	assert.Equal(t, 2, client.upserts, "route53 upsert is naturally idempotent server-side")
	assert.Len(t, client.records, 1)
}

func TestApply_DefaultsTTL(t *testing.T) {
	spec, err := decodeSpec(map[string]any{"zone_id": "Z1", "name": "a", "type": "A", "value": "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, int64(300), spec.TTL)
}

func TestApply_RejectsMissingFields(t *testing.T) {
	m := New(newFakeClient())
	_, err := m.Apply(context.Background(), model.Roster{}, testDuty(map[string]any{"zone_id": "Z1"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpecInvalid))
}

func TestDestroy_IsIdempotentWhenAlreadyAbsent(t *testing.T) {
	m := New(newFakeClient())
	duty := testDuty(map[string]any{"zone_id": "Z1", "name": "www.example.com", "type": "A", "value": "203.0.113.10"})
	_, err := m.Destroy(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
}
