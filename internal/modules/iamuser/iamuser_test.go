// SPDX-License-Identifier: AGPL-3.0-or-later

package iamuser

import (
	"context"
	"errors"
	"testing"

	"g8r/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	users    map[string]*User
	created  int
	deleted  int
	attached []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{users: map[string]*User{}}
}

func (c *fakeClient) GetUser(ctx context.Context, name string) (*User, error) {
	if u, ok := c.users[name]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (c *fakeClient) CreateUser(ctx context.Context, name string, policyARNs []string) (*User, error) {
	c.created++
	u := &User{Name: name, ARN: "arn:aws:iam::123456789012:user/" + name}
	c.users[name] = u
	c.attached = append(c.attached, policyARNs...)
	return u, nil
}

func (c *fakeClient) DeleteUser(ctx context.Context, name string, policyARNs []string) error {
	if _, ok := c.users[name]; !ok {
		return ErrUserNotFound
	}
	c.deleted++
	delete(c.users, name)
	return nil
}

func testDuty(spec map[string]any) model.Duty {
	return model.Duty{Name: "ci-deployer", DutyType: "IAMUser", Spec: spec}
}

func TestApply_CreatesUserOnFirstCall(t *testing.T) {
	client := newFakeClient()
	m := New(client)

	result, err := m.Apply(context.Background(), model.Roster{}, testDuty(map[string]any{
		"user_name":   "ci-deployer",
		"policy_arns": []string{"arn:aws:iam::aws:policy/ReadOnlyAccess"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, client.created)
	assert.Contains(t, client.attached, "arn:aws:iam::aws:policy/ReadOnlyAccess")
	assert.Equal(t, "ci-deployer", result.Outputs["user_name"])
}

// Invariant 3 — a second Apply must not create a duplicate user.
func TestApply_IsIdempotent(t *testing.T) {
	client := newFakeClient()
	m := New(client)
	duty := testDuty(map[string]any{"user_name": "ci-deployer"})

	_, err := m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	_, err = m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	assert.Equal(t, 1, client.created)
}

func TestApply_RejectsMissingUserName(t *testing.T) {
	m := New(newFakeClient())
	_, err := m.Apply(context.Background(), model.Roster{}, testDuty(map[string]any{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpecInvalid))
}

func TestDestroy_RemovesExistingUser(t *testing.T) {
	client := newFakeClient()
	m := New(client)
	duty := testDuty(map[string]any{"user_name": "ci-deployer"})

	_, err := m.Apply(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	_, err = m.Destroy(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
	assert.Equal(t, 1, client.deleted)
}

func TestDestroy_IsIdempotentWhenAlreadyAbsent(t *testing.T) {
	m := New(newFakeClient())
	duty := testDuty(map[string]any{"user_name": "ci-deployer"})
	_, err := m.Destroy(context.Background(), model.Roster{}, duty)
	require.NoError(t, err)
}
