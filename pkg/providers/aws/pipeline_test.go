package aws

import (
	"context"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/aws/smithy-go"

	"github.com/terrane-io/terrane/pkg/engine"
)

type mockCodeBuildClient struct {
	createFn func(ctx context.Context, params *codebuild.CreateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.CreateProjectOutput, error)
	updateFn func(ctx context.Context, params *codebuild.UpdateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.UpdateProjectOutput, error)
	deleteFn func(ctx context.Context, params *codebuild.DeleteProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.DeleteProjectOutput, error)
}

func (m *mockCodeBuildClient) CreateProject(ctx context.Context, params *codebuild.CreateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.CreateProjectOutput, error) {
	if m.createFn != nil {
		return m.createFn(ctx, params, optFns...)
	}
	return &codebuild.CreateProjectOutput{
		Project: &cbtypes.Project{
			Arn:  awsv2.String("arn:aws:codebuild:us-east-1:111122223333:project/" + awsv2.ToString(params.Name)),
			Name: params.Name,
		},
	}, nil
}

func (m *mockCodeBuildClient) UpdateProject(ctx context.Context, params *codebuild.UpdateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.UpdateProjectOutput, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, params, optFns...)
	}
	return &codebuild.UpdateProjectOutput{
		Project: &cbtypes.Project{
			Arn:  awsv2.String("arn:aws:codebuild:us-east-1:111122223333:project/" + awsv2.ToString(params.Name)),
			Name: params.Name,
		},
	}, nil
}

func (m *mockCodeBuildClient) DeleteProject(ctx context.Context, params *codebuild.DeleteProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.DeleteProjectOutput, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, params, optFns...)
	}
	return &codebuild.DeleteProjectOutput{}, nil
}

func TestPipelineProviderCreate(t *testing.T) {
	var captured *codebuild.CreateProjectInput
	client := &mockCodeBuildClient{
		createFn: func(ctx context.Context, params *codebuild.CreateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.CreateProjectOutput, error) {
			captured = params
			return &codebuild.CreateProjectOutput{
				Project: &cbtypes.Project{
					Arn:  awsv2.String("arn:aws:codebuild:us-east-1:111122223333:project/app-build"),
					Name: params.Name,
				},
			}, nil
		},
	}
	provider := NewPipelineProviderWithClient(client)

	providerID, outputs, err := provider.Create(context.Background(), "app_build", map[string]any{
		"name":         "app-build",
		"service_role": "arn:aws:iam::111122223333:role/build",
		"source": map[string]any{
			"type":     "GITHUB",
			"location": "https://github.com/example/app",
		},
		"environment": map[string]any{
			"compute_type": "BUILD_GENERAL1_MEDIUM",
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if providerID != "app-build" {
		t.Errorf("unexpected provider ID: %s", providerID)
	}
	if outputs["arn"] != "arn:aws:codebuild:us-east-1:111122223333:project/app-build" {
		t.Errorf("unexpected arn output: %v", outputs["arn"])
	}
	if captured.Source.Type != cbtypes.SourceTypeGithub {
		t.Errorf("source type = %s", captured.Source.Type)
	}
	if awsv2.ToString(captured.Source.Location) != "https://github.com/example/app" {
		t.Errorf("source location = %s", awsv2.ToString(captured.Source.Location))
	}
	if captured.Environment.ComputeType != cbtypes.ComputeTypeBuildGeneral1Medium {
		t.Errorf("compute type = %s", captured.Environment.ComputeType)
	}
	if awsv2.ToString(captured.Environment.Image) != "aws/codebuild/standard:7.0" {
		t.Errorf("expected the default image, got %s", awsv2.ToString(captured.Environment.Image))
	}
	if captured.Artifacts.Type != cbtypes.ArtifactsTypeNoArtifacts {
		t.Errorf("artifacts type = %s", captured.Artifacts.Type)
	}
}

func TestPipelineProviderCreateRequiresServiceRole(t *testing.T) {
	provider := NewPipelineProviderWithClient(&mockCodeBuildClient{})

	_, _, err := provider.Create(context.Background(), "app_build", map[string]any{
		"name": "app-build",
	})
	if err == nil {
		t.Fatal("expected an error for the missing service_role")
	}
	if !engine.HasCode(err, engine.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestPipelineProviderUpdate(t *testing.T) {
	var captured *codebuild.UpdateProjectInput
	client := &mockCodeBuildClient{
		updateFn: func(ctx context.Context, params *codebuild.UpdateProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.UpdateProjectOutput, error) {
			captured = params
			return &codebuild.UpdateProjectOutput{
				Project: &cbtypes.Project{
					Arn:  awsv2.String("arn:aws:codebuild:us-east-1:111122223333:project/app-build"),
					Name: params.Name,
				},
			}, nil
		},
	}
	provider := NewPipelineProviderWithClient(client)

	outputs, err := provider.Update(context.Background(), "app-build", map[string]any{
		"service_role": "arn:aws:iam::111122223333:role/build-v2",
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if awsv2.ToString(captured.ServiceRole) != "arn:aws:iam::111122223333:role/build-v2" {
		t.Errorf("service role = %s", awsv2.ToString(captured.ServiceRole))
	}
	if outputs["name"] != "app-build" {
		t.Errorf("expected name output, got %v", outputs["name"])
	}
}

func TestPipelineProviderDeleteIdempotent(t *testing.T) {
	client := &mockCodeBuildClient{
		deleteFn: func(ctx context.Context, params *codebuild.DeleteProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.DeleteProjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no such project"}
		},
	}
	provider := NewPipelineProviderWithClient(client)

	if err := provider.Delete(context.Background(), "gone"); err != nil {
		t.Errorf("deleting an absent project must succeed, got %v", err)
	}
}
