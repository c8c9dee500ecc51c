// Package policy provides Open Policy Agent (OPA) plan gating for Terrane.
//
// Policies are written in Rego and evaluated against an execution plan
// before any action runs. Violations at error severity deny the plan;
// warnings are logged and let the run proceed.
//
// # Usage
//
// Creating a policy engine and gating a plan:
//
//	gate, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	denials, err := gate.Evaluate(ctx, plan)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if len(denials) > 0 {
//	    // plan is blocked
//	}
//
// Loading custom policies from files or directories:
//
//	err = gate.LoadPolicies(ctx, []string{"/etc/terrane/policies"})
//
// # Plan Input
//
// Rego policies receive the plan under input.plan:
//
//	{
//	    "plan": {
//	        "id": "...",
//	        "actions": [
//	            {"identity": "core_vpc", "type": "aws.network",
//	             "op": "delete", "protect": true, "level": 0}
//	        ],
//	        "summary": {"create": 0, "update": 0, "delete": 1, "noop": 0}
//	    }
//	}
//
// A policy denies actions by contributing to a deny set:
//
//	package custom.policies.regions
//
//	import rego.v1
//
//	deny contains violation if {
//	    some action in input.plan.actions
//	    action.op == "create"
//	    action.type == "aws.network"
//	    violation := {
//	        "message": sprintf("network creation requires review: %s", [action.identity]),
//	        "severity": "error",
//	        "resource": action.identity,
//	    }
//	}
//
// # Built-in Policies
//
// Two policies ship with the binary: protected-resources blocks deletion
// of resources marked protect, and bulk-delete warns when a plan removes
// five or more resources.
//
// # Hot Reload
//
// The loader can watch policy files and recompile on change:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func([]policy.Policy) error {
//	    return gate.LoadPolicies(ctx, paths)
//	})
package policy
