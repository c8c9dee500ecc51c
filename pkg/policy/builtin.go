package policy

// BuiltinPolicies returns the policies compiled into the binary. They are
// always loaded; file-based policies are layered on top.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedResourcesPolicy(),
		bulkDeletePolicy(),
	}
}

// protectedResourcesPolicy blocks plans that destroy protected resources.
func protectedResourcesPolicy() Policy {
	return Policy{
		Name:        "protected-resources",
		Description: "Blocks deletion of resources marked protect",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety"},
		Rego: `package terrane.policies.protect

import rego.v1

deny contains violation if {
	some action in input.plan.actions
	action.op == "delete"
	action.protect == true
	violation := {
		"message": sprintf("resource %s is protected and cannot be deleted", [action.identity]),
		"severity": "error",
		"resource": action.identity,
	}
}
`,
	}
}

// bulkDeletePolicy warns when a single plan removes many resources at once,
// a common sign of a truncated or misloaded declaration set.
func bulkDeletePolicy() Policy {
	return Policy{
		Name:        "bulk-delete",
		Description: "Warns when a plan deletes five or more resources",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"safety"},
		Rego: `package terrane.policies.bulkdelete

import rego.v1

deny contains violation if {
	input.plan.summary.delete >= 5
	violation := {
		"message": sprintf("plan deletes %d resources", [input.plan.summary.delete]),
		"severity": "warning",
	}
}
`,
	}
}
