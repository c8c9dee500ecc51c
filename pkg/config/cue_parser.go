package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"

	"github.com/terrane-io/terrane/pkg/engine"
)

// CUEParser loads declaration sets from CUE sources.
type CUEParser struct {
	ctx       *cue.Context
	evaluator *StarlarkEvaluator
	validator *validator.Validate
}

// NewCUEParser creates a parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx:       cuecontext.New(),
		evaluator: NewStarlarkEvaluator(30 * time.Second),
		validator: validator.New(),
	}
}

// Load parses the given files and directories into a declaration set.
// Parse and validation problems are collected in the returned set's Errors
// rather than aborting at the first one; the error return is reserved for
// I/O failures.
func (p *CUEParser) Load(ctx context.Context, sources []string) (*ParsedSet, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var unified cue.Value
	var sourceFiles []string
	var loadErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		var files []string
		var errs []ValidationError
		if info.IsDir() {
			val, files, errs = p.loadDirectory(source)
		} else {
			val, errs = p.loadFile(source)
			files = []string{source}
		}
		loadErrors = append(loadErrors, errs...)
		if val.Exists() {
			if unified.Exists() {
				unified = unified.Unify(val)
			} else {
				unified = val
			}
		}
		sourceFiles = append(sourceFiles, files...)
	}

	set := &ParsedSet{SourceFiles: sourceFiles, ParsedAt: time.Now().UTC()}
	if len(loadErrors) > 0 {
		set.Errors = loadErrors
		return set, nil
	}

	schema := p.ctx.CompileString(declarationSchema)
	unified = unified.Unify(schema)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		set.Errors = convertCUEErrors(err)
		return set, nil
	}

	p.extractWorkspace(ctx, unified, set)
	p.extractDeclarations(unified, set)
	return set, nil
}

// LoadInline parses inline CUE content. Used by tests and the validate
// command's stdin mode.
func (p *CUEParser) LoadInline(ctx context.Context, content string) (*ParsedSet, error) {
	set := &ParsedSet{SourceFiles: []string{"inline"}, ParsedAt: time.Now().UTC()}

	val := p.ctx.CompileString(content, cue.Filename("inline.cue"))
	if err := val.Err(); err != nil {
		set.Errors = convertCUEErrors(err)
		return set, nil
	}

	val = val.Unify(p.ctx.CompileString(declarationSchema))
	if err := val.Validate(cue.Concrete(false)); err != nil {
		set.Errors = convertCUEErrors(err)
		return set, nil
	}

	p.extractWorkspace(ctx, val, set)
	p.extractDeclarations(val, set)
	return set, nil
}

// Declarations loads sources and returns the declarations, failing with a
// validation error when the set has problems. This is the entry point the
// CLI uses; its error classifies as invalid input.
func (p *CUEParser) Declarations(ctx context.Context, sources []string) ([]engine.Declaration, *ParsedSet, error) {
	set, err := p.Load(ctx, sources)
	if err != nil {
		return nil, nil, err
	}
	if len(set.Errors) > 0 {
		return nil, set, engine.NewPermanentError(
			fmt.Sprintf("declaration set has %d error(s): %s", len(set.Errors), set.Errors[0].String()), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return set.Declarations, set, nil
}

// loadDirectory loads a directory as a CUE package.
func (p *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{File: dir, Message: "no CUE files found"}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}
	return val, files, nil
}

// loadFile loads a single CUE file.
func (p *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}}
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

// extractWorkspace decodes the workspace block and runs its variable
// scripts.
func (p *CUEParser) extractWorkspace(ctx context.Context, val cue.Value, set *ParsedSet) {
	wsVal := val.LookupPath(cue.ParsePath("workspace"))
	if !wsVal.Exists() {
		return
	}
	if err := wsVal.Decode(&set.Workspace); err != nil {
		set.Errors = append(set.Errors, ValidationError{
			Path:    "workspace",
			Message: fmt.Sprintf("failed to decode workspace: %v", err),
		})
		return
	}

	if len(set.Workspace.Scripts) == 0 {
		return
	}
	if set.Workspace.Variables == nil {
		set.Workspace.Variables = make(map[string]any)
	}
	for i, script := range set.Workspace.Scripts {
		result, err := p.evaluator.Evaluate(ctx, script, map[string]any{
			"variables": set.Workspace.Variables,
		})
		if err != nil {
			set.Errors = append(set.Errors, ValidationError{
				Path:    fmt.Sprintf("workspace.scripts[%d]", i),
				Message: err.Error(),
			})
			continue
		}
		for k, v := range result.Output {
			set.Workspace.Variables[k] = v
		}
	}
}

// extractDeclarations converts the resources block into engine
// declarations. CUE preserves source order during field iteration, which
// fixes the declaration index used for ordering ties.
func (p *CUEParser) extractDeclarations(val cue.Value, set *ParsedSet) {
	resourcesVal := val.LookupPath(cue.ParsePath("resources"))
	if !resourcesVal.Exists() {
		return
	}

	iter, err := resourcesVal.Fields()
	if err != nil {
		set.Errors = append(set.Errors, ValidationError{
			Path:    "resources",
			Message: fmt.Sprintf("failed to iterate resources: %v", err),
		})
		return
	}

	index := 0
	for iter.Next() {
		identity := iter.Selector().Unquoted()
		decl, errs := p.extractDeclaration(identity, index, iter.Value())
		if len(errs) > 0 {
			set.Errors = append(set.Errors, errs...)
			index++
			continue
		}
		set.Declarations = append(set.Declarations, decl)
		index++
	}
}

func (p *CUEParser) extractDeclaration(identity string, index int, val cue.Value) (engine.Declaration, []ValidationError) {
	var rc resourceConfig
	if err := val.Decode(&rc); err != nil {
		return engine.Declaration{}, []ValidationError{{
			Path:    "resources." + identity,
			Message: fmt.Sprintf("failed to decode resource: %v", err),
		}}
	}
	if err := p.validator.Struct(rc); err != nil {
		return engine.Declaration{}, []ValidationError{{
			Path:    "resources." + identity,
			Message: fmt.Sprintf("validation failed: %v", err),
		}}
	}

	decl := engine.Declaration{
		Identity:   identity,
		Type:       rc.Type,
		Name:       rc.Name,
		Attributes: make(map[string]engine.Expr, len(rc.Attributes)),
		Labels:     rc.Labels,
		Protect:    rc.Protect,
		Index:      index,
	}
	if decl.Name == "" {
		decl.Name = identity
	}

	var errs []ValidationError
	for name, raw := range rc.Attributes {
		expr, err := engine.ParseExpr(raw)
		if err != nil {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("resources.%s.attributes.%s", identity, name),
				Message: err.Error(),
			})
			continue
		}
		decl.Attributes[name] = expr
	}
	if len(errs) > 0 {
		return engine.Declaration{}, errs
	}
	return decl, nil
}

// convertCUEErrors converts CUE errors into ValidationErrors with source
// positions.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: errors.Details(e, nil),
		})
	}
	return out
}
