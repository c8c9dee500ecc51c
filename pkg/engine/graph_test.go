package engine

import (
	"strings"
	"testing"
)

func TestBuildEdgesAndLevels(t *testing.T) {
	graph := mustBuild(
		decl("vpc", "aws.network", map[string]any{"cidr_block": "10.0.0.0/16"}),
		decl("repo", "aws.registry", map[string]any{"image_tag_mutability": "IMMUTABLE"}),
		decl("cluster", "aws.cluster", map[string]any{"vpc_id": "${vpc.id}"}),
		decl("service", "aws.service", map[string]any{
			"cluster_arn": "${cluster.arn}",
			"image":       "${repo.repository_url}",
		}),
	)

	if len(graph.Edges) != 3 {
		t.Fatalf("expected 3 edges, got %d: %+v", len(graph.Edges), graph.Edges)
	}
	deps := graph.DependenciesOf("service")
	if len(deps) != 2 {
		t.Fatalf("service dependencies = %v", deps)
	}

	if len(graph.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(graph.Levels), graph.Levels)
	}
	if got := graph.Levels[0]; len(got) != 2 || got[0] != "vpc" || got[1] != "repo" {
		t.Errorf("level 0 = %v, want [vpc repo] in declaration order", got)
	}
	if got := graph.Levels[1]; len(got) != 1 || got[0] != "cluster" {
		t.Errorf("level 1 = %v", got)
	}
	if got := graph.Levels[2]; len(got) != 1 || got[0] != "service" {
		t.Errorf("level 2 = %v", got)
	}
}

func TestBuildDeterministic(t *testing.T) {
	build := func() *ResourceGraph {
		return mustBuild(
			decl("a", "aws.network", map[string]any{"cidr_block": "10.0.0.0/16"}),
			decl("b", "aws.cluster", map[string]any{
				"vpc_id": "${a.id}",
				"tags":   map[string]any{"x": "${a.arn}", "y": "${a.id}"},
			}),
		)
	}
	first := build()
	for i := 0; i < 20; i++ {
		next := build()
		if len(next.Edges) != len(first.Edges) {
			t.Fatalf("edge count varies across builds")
		}
		for j := range next.Edges {
			if next.Edges[j] != first.Edges[j] {
				t.Fatalf("edge order varies: %+v vs %+v", next.Edges[j], first.Edges[j])
			}
		}
	}
}

func TestBuildUnresolvedReference(t *testing.T) {
	_, err := NewGraphBuilder().Build([]Declaration{
		decl("cluster", "aws.cluster", map[string]any{"vpc_id": "${vpc.id}"}),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !HasCode(err, ErrCodeUnresolvedReference) {
		t.Errorf("error code = %v, want %s", err, ErrCodeUnresolvedReference)
	}
	if !IsInvalidInput(err) {
		t.Error("unresolved reference must classify as invalid input")
	}
	if !strings.Contains(err.Error(), "vpc") {
		t.Errorf("error should name the missing identity: %v", err)
	}
}

func TestBuildCycle(t *testing.T) {
	_, err := NewGraphBuilder().Build([]Declaration{
		decl("a", "aws.network", map[string]any{"peer": "${c.id}"}),
		decl("b", "aws.network", map[string]any{"peer": "${a.id}"}),
		decl("c", "aws.network", map[string]any{"peer": "${b.id}"}),
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !HasCode(err, ErrCodeCycle) {
		t.Errorf("error code = %v, want %s", err, ErrCodeCycle)
	}
	if !IsInvalidInput(err) {
		t.Error("cycle must classify as invalid input")
	}
	if !strings.Contains(err.Error(), "->") {
		t.Errorf("cycle error should show the path: %v", err)
	}
}

func TestBuildSelfReference(t *testing.T) {
	_, err := NewGraphBuilder().Build([]Declaration{
		decl("a", "aws.network", map[string]any{"peer": "${a.id}"}),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !HasCode(err, ErrCodeCycle) {
		t.Errorf("error code = %v, want %s", err, ErrCodeCycle)
	}
}

func TestBuildDuplicateIdentity(t *testing.T) {
	_, err := NewGraphBuilder().Build([]Declaration{
		decl("a", "aws.network", nil),
		decl("a", "aws.cluster", nil),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !HasCode(err, ErrCodeValidation) {
		t.Errorf("error code = %v, want %s", err, ErrCodeValidation)
	}
}

func TestToDOT(t *testing.T) {
	graph := mustBuild(
		decl("vpc", "aws.network", nil),
		decl("cluster", "aws.cluster", map[string]any{"vpc_id": "${vpc.id}"}),
	)
	dot := graph.ToDOT()
	for _, want := range []string{"digraph", `"vpc"`, `"cluster"`, `"cluster" -> "vpc"`} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}
