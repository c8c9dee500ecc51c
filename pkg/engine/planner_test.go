package engine

import (
	"context"
	"testing"
	"time"
)

func seedRecord(t *testing.T, store *memStore, rec *StateRecord) {
	t.Helper()
	rec.AppliedAt = time.Now().UTC()
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("seeding state: %v", err)
	}
}

func actionFor(t *testing.T, plan *Plan, identity string) *PlannedAction {
	t.Helper()
	for i := range plan.Actions {
		if plan.Actions[i].Identity == identity {
			return &plan.Actions[i]
		}
	}
	t.Fatalf("plan has no action for %s", identity)
	return nil
}

func TestPlanCreatesEverythingOnEmptyState(t *testing.T) {
	store := newMemStore()
	graph := mustBuild(
		decl("vpc", "aws.network", map[string]any{"cidr_block": "10.0.0.0/16"}),
		decl("cluster", "aws.cluster", map[string]any{"vpc_id": "${vpc.id}"}),
	)

	plan, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Summary.Create != 2 || plan.Summary.Update != 0 || plan.Summary.Delete != 0 {
		t.Fatalf("summary = %+v", plan.Summary)
	}
	if !plan.HasChanges() {
		t.Error("plan should report changes")
	}

	vpc := actionFor(t, plan, "vpc")
	if vpc.Op != ActionCreate || vpc.Level != 0 {
		t.Errorf("vpc action = %s level %d", vpc.Op, vpc.Level)
	}

	cluster := actionFor(t, plan, "cluster")
	if cluster.Op != ActionCreate || cluster.Level != 1 {
		t.Errorf("cluster action = %s level %d", cluster.Op, cluster.Level)
	}
	// The vpc does not exist yet, so its id can only be known after apply.
	if !IsUnknown(cluster.Planned["vpc_id"]) {
		t.Errorf("cluster vpc_id = %v, want unknown", cluster.Planned["vpc_id"])
	}
	if len(cluster.Dependencies) != 1 || cluster.Dependencies[0] != "vpc" {
		t.Errorf("cluster dependencies = %v", cluster.Dependencies)
	}
}

func TestPlanNoopWhenStateMatches(t *testing.T) {
	store := newMemStore()
	seedRecord(t, store, &StateRecord{
		Identity:   "vpc",
		Type:       "aws.network",
		ProviderID: "vpc-123",
		Attributes: map[string]any{"cidr_block": "10.0.0.0/16"},
		Outputs:    map[string]any{"id": "vpc-123"},
	})
	seedRecord(t, store, &StateRecord{
		Identity:     "cluster",
		Type:         "aws.cluster",
		ProviderID:   "cl-1",
		Attributes:   map[string]any{"vpc_id": "vpc-123"},
		Dependencies: []string{"vpc"},
	})

	graph := mustBuild(
		decl("vpc", "aws.network", map[string]any{"cidr_block": "10.0.0.0/16"}),
		decl("cluster", "aws.cluster", map[string]any{"vpc_id": "${vpc.id}"}),
	)
	plan, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.HasChanges() {
		t.Fatalf("expected no changes, summary = %+v", plan.Summary)
	}
	if plan.Summary.Noop != 2 {
		t.Errorf("noop count = %d", plan.Summary.Noop)
	}
	if a := actionFor(t, plan, "cluster"); a.ProviderID != "cl-1" {
		t.Errorf("noop action lost provider id: %q", a.ProviderID)
	}
}

func TestPlanUpdateOnAttributeChange(t *testing.T) {
	store := newMemStore()
	seedRecord(t, store, &StateRecord{
		Identity:   "repo",
		Type:       "aws.registry",
		ProviderID: "repo-1",
		Attributes: map[string]any{"image_tag_mutability": "MUTABLE", "scan_on_push": true},
	})

	graph := mustBuild(
		decl("repo", "aws.registry", map[string]any{
			"image_tag_mutability": "IMMUTABLE",
			"scan_on_push":         true,
		}),
	)
	plan, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	repo := actionFor(t, plan, "repo")
	if repo.Op != ActionUpdate {
		t.Fatalf("op = %s, want update", repo.Op)
	}
	if repo.ProviderID != "repo-1" {
		t.Errorf("provider id = %q", repo.ProviderID)
	}
	if len(repo.Diff) != 1 {
		t.Fatalf("diff = %+v, want exactly the changed attribute", repo.Diff)
	}
	change := repo.Diff[0]
	if change.Path != "image_tag_mutability" || change.Before != "MUTABLE" || change.After != "IMMUTABLE" {
		t.Errorf("unexpected change %+v", change)
	}
}

func TestPlanReplacesOnTypeChange(t *testing.T) {
	store := newMemStore()
	seedRecord(t, store, &StateRecord{
		Identity:   "store",
		Type:       "aws.registry",
		ProviderID: "repo-1",
		Attributes: map[string]any{"name": "images"},
	})

	graph := mustBuild(
		decl("store", "aws.cluster", map[string]any{"name": "images"}),
	)
	plan, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	action := actionFor(t, plan, "store")
	if action.Op != ActionCreate {
		t.Fatalf("op = %s, want create (replace)", action.Op)
	}
	if action.PriorType != "aws.registry" {
		t.Errorf("prior type = %q, want aws.registry", action.PriorType)
	}
	if action.ProviderID != "repo-1" {
		t.Errorf("provider id = %q, want the old resource's id", action.ProviderID)
	}
	if plan.Summary.Create != 1 || plan.Summary.Update != 0 {
		t.Errorf("summary = %+v, want one create", plan.Summary)
	}
}

func TestPlanUpdateWhenDependencyIsRecreated(t *testing.T) {
	store := newMemStore()
	// The cluster exists but its vpc does not: the vpc will be created and
	// its id is unknown, so the cluster must be updated.
	seedRecord(t, store, &StateRecord{
		Identity:   "cluster",
		Type:       "aws.cluster",
		ProviderID: "cl-1",
		Attributes: map[string]any{"vpc_id": "vpc-old"},
	})

	graph := mustBuild(
		decl("vpc", "aws.network", map[string]any{"cidr_block": "10.0.0.0/16"}),
		decl("cluster", "aws.cluster", map[string]any{"vpc_id": "${vpc.id}"}),
	)
	plan, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	cluster := actionFor(t, plan, "cluster")
	if cluster.Op != ActionUpdate {
		t.Fatalf("op = %s, want update", cluster.Op)
	}
	if !IsUnknown(cluster.Planned["vpc_id"]) {
		t.Errorf("vpc_id = %v, want unknown", cluster.Planned["vpc_id"])
	}
}

func TestPlanDeletesDependentsFirst(t *testing.T) {
	store := newMemStore()
	seedRecord(t, store, &StateRecord{
		Identity: "vpc", Type: "aws.network", ProviderID: "vpc-1",
		Attributes: map[string]any{"cidr_block": "10.0.0.0/16"},
	})
	seedRecord(t, store, &StateRecord{
		Identity: "cluster", Type: "aws.cluster", ProviderID: "cl-1",
		Attributes:   map[string]any{"vpc_id": "vpc-1"},
		Dependencies: []string{"vpc"},
	})
	seedRecord(t, store, &StateRecord{
		Identity: "service", Type: "aws.service", ProviderID: "svc-1",
		Attributes:   map[string]any{"cluster_arn": "cl-1"},
		Dependencies: []string{"cluster"},
	})

	graph := mustBuild()
	plan, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Summary.Delete != 3 {
		t.Fatalf("summary = %+v", plan.Summary)
	}
	service := actionFor(t, plan, "service")
	cluster := actionFor(t, plan, "cluster")
	vpc := actionFor(t, plan, "vpc")
	if service.Op != ActionDelete || cluster.Op != ActionDelete || vpc.Op != ActionDelete {
		t.Fatal("expected delete actions for all three")
	}
	if !(service.Level < cluster.Level && cluster.Level < vpc.Level) {
		t.Errorf("delete levels service=%d cluster=%d vpc=%d, want dependents first",
			service.Level, cluster.Level, vpc.Level)
	}
	if len(vpc.Dependencies) != 1 || vpc.Dependencies[0] != "cluster" {
		t.Errorf("vpc delete dependencies = %v, want [cluster]", vpc.Dependencies)
	}
}

func TestPlanDeleteAndCreateCoexist(t *testing.T) {
	store := newMemStore()
	seedRecord(t, store, &StateRecord{
		Identity: "old_repo", Type: "aws.registry", ProviderID: "repo-9",
		Attributes: map[string]any{"image_tag_mutability": "MUTABLE"},
	})

	graph := mustBuild(
		decl("vpc", "aws.network", map[string]any{"cidr_block": "10.0.0.0/16"}),
	)
	plan, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Summary.Create != 1 || plan.Summary.Delete != 1 {
		t.Fatalf("summary = %+v", plan.Summary)
	}
	del := actionFor(t, plan, "old_repo")
	if len(del.Dependencies) != 0 {
		t.Errorf("orphan delete has dependencies %v", del.Dependencies)
	}
	if del.ProviderID != "repo-9" {
		t.Errorf("delete lost provider id: %q", del.ProviderID)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	store := newMemStore()
	graph := mustBuild(
		decl("a", "aws.network", map[string]any{"cidr_block": "10.0.0.0/16"}),
		decl("b", "aws.cluster", map[string]any{"vpc_id": "${a.id}"}),
	)

	first, err := NewPlanner(store).Plan(context.Background(), graph)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := NewPlanner(store).Plan(context.Background(), graph)
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if len(next.Actions) != len(first.Actions) {
			t.Fatal("action count varies")
		}
		for j := range next.Actions {
			if next.Actions[j].Identity != first.Actions[j].Identity ||
				next.Actions[j].Op != first.Actions[j].Op ||
				next.Actions[j].Level != first.Actions[j].Level {
				t.Fatalf("action order varies at %d: %s/%s vs %s/%s",
					j, next.Actions[j].Identity, next.Actions[j].Op,
					first.Actions[j].Identity, first.Actions[j].Op)
			}
		}
	}
}

func TestValuesEqualNormalization(t *testing.T) {
	cases := []struct {
		a, b any
		want bool
	}{
		{int64(1), float64(1), true},
		{map[string]any{"a": 1, "b": 2}, map[string]any{"b": 2, "a": 1}, true},
		{[]any{"x", "y"}, []any{"y", "x"}, false},
		{"1", float64(1), false},
		{Unknown, Unknown, false},
		{"v", Unknown, false},
	}
	for _, tc := range cases {
		if got := valuesEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("valuesEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
