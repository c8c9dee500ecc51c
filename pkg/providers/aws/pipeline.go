package aws

import (
	"context"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"

	"github.com/terrane-io/terrane/pkg/engine"
)

// CodeBuildClient defines the CodeBuild operations for project management.
type CodeBuildClient interface {
	CreateProject(ctx context.Context, params *codebuild.CreateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.CreateProjectOutput, error)
	UpdateProject(ctx context.Context, params *codebuild.UpdateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.UpdateProjectOutput, error)
	DeleteProject(ctx context.Context, params *codebuild.DeleteProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.DeleteProjectOutput, error)
}

// PipelineProvider manages CodeBuild projects as "aws.pipeline" resources.
//
// Attributes: name (defaults to the identity), service_role (required),
// source {type, location, buildspec}, environment {compute_type, image,
// type}.
type PipelineProvider struct {
	client CodeBuildClient
}

// NewPipelineProvider creates a provider using the SDK client.
func NewPipelineProvider(cfg awsv2.Config) *PipelineProvider {
	return &PipelineProvider{client: codebuild.NewFromConfig(cfg)}
}

// NewPipelineProviderWithClient creates a provider with a custom client.
func NewPipelineProviderWithClient(client CodeBuildClient) *PipelineProvider {
	return &PipelineProvider{client: client}
}

func (p *PipelineProvider) Type() string { return "aws.pipeline" }

func (p *PipelineProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	name := stringProp(attrs, "name", identity)
	role, err := requireString(attrs, "service_role")
	if err != nil {
		return "", nil, err
	}

	out, err := p.client.CreateProject(ctx, &codebuild.CreateProjectInput{
		Name:        awsv2.String(name),
		ServiceRole: awsv2.String(role),
		Source:      projectSource(attrs),
		Environment: projectEnvironment(attrs),
		Artifacts: &cbtypes.ProjectArtifacts{
			Type: cbtypes.ArtifactsTypeNoArtifacts,
		},
	})
	if err != nil {
		return "", nil, classifyAWSError("create build project", err)
	}

	return name, map[string]any{
		"id":   name,
		"arn":  awsv2.ToString(out.Project.Arn),
		"name": name,
	}, nil
}

func (p *PipelineProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	role, err := requireString(attrs, "service_role")
	if err != nil {
		return nil, err
	}

	out, err := p.client.UpdateProject(ctx, &codebuild.UpdateProjectInput{
		Name:        awsv2.String(providerID),
		ServiceRole: awsv2.String(role),
		Source:      projectSource(attrs),
		Environment: projectEnvironment(attrs),
	})
	if err != nil {
		return nil, classifyAWSError("update build project", err)
	}

	return map[string]any{
		"id":   providerID,
		"arn":  awsv2.ToString(out.Project.Arn),
		"name": providerID,
	}, nil
}

func (p *PipelineProvider) Delete(ctx context.Context, providerID string) error {
	_, err := p.client.DeleteProject(ctx, &codebuild.DeleteProjectInput{
		Name: awsv2.String(providerID),
	})
	if err != nil && !isNotFound(err, "ResourceNotFoundException") {
		return classifyAWSError("delete build project", err)
	}
	return nil
}

func projectSource(attrs map[string]any) *cbtypes.ProjectSource {
	src := mapProp(attrs, "source")
	source := &cbtypes.ProjectSource{
		Type: cbtypes.SourceType(stringProp(src, "type", "NO_SOURCE")),
	}
	if location := stringProp(src, "location", ""); location != "" {
		source.Location = awsv2.String(location)
	}
	if buildspec := stringProp(src, "buildspec", ""); buildspec != "" {
		source.Buildspec = awsv2.String(buildspec)
	}
	return source
}

func projectEnvironment(attrs map[string]any) *cbtypes.ProjectEnvironment {
	env := mapProp(attrs, "environment")
	return &cbtypes.ProjectEnvironment{
		ComputeType: cbtypes.ComputeType(stringProp(env, "compute_type", "BUILD_GENERAL1_SMALL")),
		Image:       awsv2.String(stringProp(env, "image", "aws/codebuild/standard:7.0")),
		Type:        cbtypes.EnvironmentType(stringProp(env, "type", "LINUX_CONTAINER")),
	}
}

var _ engine.Provider = (*PipelineProvider)(nil)
