package config

// declarationSchema is the built-in CUE schema every declaration set is
// unified against before extraction. Unification surfaces shape errors with
// source positions, which beats decoding into Go structs and reporting a
// bare type mismatch.
const declarationSchema = `
#Identity: =~"^[A-Za-z_][A-Za-z0-9_-]*$"

#Resource: {
	type:        =~"^[a-z][a-z0-9]*\\.[a-z][a-z0-9_]*$"
	name?:       string
	attributes:  {...}
	labels?:     [string]: string
	protect?:    bool
}

#Workspace: {
	name:       string
	variables?: {...}
	scripts?:   [...string]
	backend?: {
		path?: string
	}
	policy?: {
		enabled: bool | *false
		paths?:  [...string]
	}
}

workspace?: #Workspace
resources?: [#Identity]: #Resource
`
