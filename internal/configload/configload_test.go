// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package configload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"g8r/pkg/kv"
	"g8r/pkg/model"
)

const sampleDoc = `{
  "rosters": [
    {"name": "aws-prod", "roster_type": "aws", "traits": ["cloud-provider"]}
  ],
  "duties": [
    {"name": "bucket", "duty_type": "S3Bucket", "spec": {"bucket_name": "demo"}}
  ]
}`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.g8r.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

type fakeRosterStore struct {
	upserted []model.Roster
}

func (f *fakeRosterStore) UpsertRoster(ctx context.Context, r model.Roster) error {
	f.upserted = append(f.upserted, r)
	return nil
}

func TestLoad_PlainModeWhenRuntimeContextIsEmpty(t *testing.T) {
	path := writeTemp(t, sampleDoc)
	loader := New(kv.NewGlobalStore(nil), kv.NewGlobalStore(nil), nil)

	duties, variables, err := loader.Load(path, kv.RuntimeContext{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if variables == nil {
		t.Fatal("expected a non-nil VariableContext")
	}
	if len(duties) != 1 || duties[0].Name != "bucket" {
		t.Fatalf("unexpected duties: %+v", duties)
	}
}

func TestLoad_RuntimeContextModeWhenDutiesPresent(t *testing.T) {
	path := writeTemp(t, sampleDoc)
	loader := New(kv.NewGlobalStore(nil), kv.NewGlobalStore(nil), nil)

	rt := kv.RuntimeContext{
		Duties: map[string]kv.DutyRuntime{
			"bucket": {Outputs: map[string]any{"bucket_arn": "arn:aws:s3:::demo"}},
		},
	}

	duties, _, err := loader.Load(path, rt)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(duties) != 1 {
		t.Fatalf("expected 1 duty, got %d", len(duties))
	}
}

func TestLoad_UpsertsDeclaredRosters(t *testing.T) {
	path := writeTemp(t, sampleDoc)
	rosters := &fakeRosterStore{}
	loader := New(kv.NewGlobalStore(nil), kv.NewGlobalStore(nil), rosters)

	if _, _, err := loader.Load(path, kv.RuntimeContext{}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(rosters.upserted) != 1 || rosters.upserted[0].Name != "aws-prod" {
		t.Fatalf("expected aws-prod roster to be upserted, got %+v", rosters.upserted)
	}
}

func TestLoad_MissingFileReturnsSourceError(t *testing.T) {
	loader := New(kv.NewGlobalStore(nil), kv.NewGlobalStore(nil), nil)

	_, _, err := loader.Load(filepath.Join(t.TempDir(), "missing.g8r.json"), kv.RuntimeContext{})
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
