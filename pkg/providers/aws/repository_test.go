package aws

import (
	"context"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/smithy-go"
)

type mockECRClient struct {
	createFn        func(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	putMutabilityFn func(ctx context.Context, params *ecr.PutImageTagMutabilityInput, optFns ...func(*ecr.Options)) (*ecr.PutImageTagMutabilityOutput, error)
	putScanningFn   func(ctx context.Context, params *ecr.PutImageScanningConfigurationInput, optFns ...func(*ecr.Options)) (*ecr.PutImageScanningConfigurationOutput, error)
	describeFn      func(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	deleteFn        func(ctx context.Context, params *ecr.DeleteRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error)
}

func testRepository(name string) *ecrtypes.Repository {
	return &ecrtypes.Repository{
		RepositoryName: awsv2.String(name),
		RepositoryArn:  awsv2.String("arn:aws:ecr:us-east-1:111122223333:repository/" + name),
		RepositoryUri:  awsv2.String("111122223333.dkr.ecr.us-east-1.amazonaws.com/" + name),
		RegistryId:     awsv2.String("111122223333"),
	}
}

func (m *mockECRClient) CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error) {
	if m.createFn != nil {
		return m.createFn(ctx, params, optFns...)
	}
	return &ecr.CreateRepositoryOutput{
		Repository: testRepository(awsv2.ToString(params.RepositoryName)),
	}, nil
}

func (m *mockECRClient) PutImageTagMutability(ctx context.Context, params *ecr.PutImageTagMutabilityInput, optFns ...func(*ecr.Options)) (*ecr.PutImageTagMutabilityOutput, error) {
	if m.putMutabilityFn != nil {
		return m.putMutabilityFn(ctx, params, optFns...)
	}
	return &ecr.PutImageTagMutabilityOutput{}, nil
}

func (m *mockECRClient) PutImageScanningConfiguration(ctx context.Context, params *ecr.PutImageScanningConfigurationInput, optFns ...func(*ecr.Options)) (*ecr.PutImageScanningConfigurationOutput, error) {
	if m.putScanningFn != nil {
		return m.putScanningFn(ctx, params, optFns...)
	}
	return &ecr.PutImageScanningConfigurationOutput{}, nil
}

func (m *mockECRClient) DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	if m.describeFn != nil {
		return m.describeFn(ctx, params, optFns...)
	}
	return &ecr.DescribeRepositoriesOutput{
		Repositories: []ecrtypes.Repository{*testRepository(params.RepositoryNames[0])},
	}, nil
}

func (m *mockECRClient) DeleteRepository(ctx context.Context, params *ecr.DeleteRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, params, optFns...)
	}
	return &ecr.DeleteRepositoryOutput{}, nil
}

func TestRegistryProviderCreate(t *testing.T) {
	var captured *ecr.CreateRepositoryInput
	client := &mockECRClient{
		createFn: func(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error) {
			captured = params
			return &ecr.CreateRepositoryOutput{
				Repository: testRepository(awsv2.ToString(params.RepositoryName)),
			}, nil
		},
	}
	provider := NewRegistryProviderWithClient(client)

	providerID, outputs, err := provider.Create(context.Background(), "app_images", map[string]any{
		"name":                 "app-images",
		"image_tag_mutability": "IMMUTABLE",
		"scan_on_push":         true,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if providerID != "app-images" {
		t.Errorf("expected provider ID app-images, got %s", providerID)
	}
	if captured.ImageTagMutability != ecrtypes.ImageTagMutabilityImmutable {
		t.Errorf("expected IMMUTABLE, got %s", captured.ImageTagMutability)
	}
	if !captured.ImageScanningConfiguration.ScanOnPush {
		t.Error("expected scan on push enabled")
	}
	if outputs["repository_url"] != "111122223333.dkr.ecr.us-east-1.amazonaws.com/app-images" {
		t.Errorf("unexpected repository_url: %v", outputs["repository_url"])
	}
	if outputs["registry_id"] != "111122223333" {
		t.Errorf("unexpected registry_id: %v", outputs["registry_id"])
	}
}

func TestRegistryProviderCreateDefaultsNameToIdentity(t *testing.T) {
	var captured *ecr.CreateRepositoryInput
	client := &mockECRClient{
		createFn: func(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error) {
			captured = params
			return &ecr.CreateRepositoryOutput{
				Repository: testRepository(awsv2.ToString(params.RepositoryName)),
			}, nil
		},
	}
	provider := NewRegistryProviderWithClient(client)

	providerID, _, err := provider.Create(context.Background(), "images", map[string]any{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if providerID != "images" {
		t.Errorf("expected provider ID images, got %s", providerID)
	}
	if captured.ImageTagMutability != ecrtypes.ImageTagMutabilityMutable {
		t.Errorf("expected MUTABLE default, got %s", captured.ImageTagMutability)
	}
}

func TestRegistryProviderUpdate(t *testing.T) {
	var mutability *ecr.PutImageTagMutabilityInput
	var scanning *ecr.PutImageScanningConfigurationInput
	client := &mockECRClient{
		putMutabilityFn: func(ctx context.Context, params *ecr.PutImageTagMutabilityInput, optFns ...func(*ecr.Options)) (*ecr.PutImageTagMutabilityOutput, error) {
			mutability = params
			return &ecr.PutImageTagMutabilityOutput{}, nil
		},
		putScanningFn: func(ctx context.Context, params *ecr.PutImageScanningConfigurationInput, optFns ...func(*ecr.Options)) (*ecr.PutImageScanningConfigurationOutput, error) {
			scanning = params
			return &ecr.PutImageScanningConfigurationOutput{}, nil
		},
	}
	provider := NewRegistryProviderWithClient(client)

	outputs, err := provider.Update(context.Background(), "app-images", map[string]any{
		"image_tag_mutability": "IMMUTABLE",
		"scan_on_push":         true,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if mutability.ImageTagMutability != ecrtypes.ImageTagMutabilityImmutable {
		t.Errorf("expected IMMUTABLE, got %s", mutability.ImageTagMutability)
	}
	if !scanning.ImageScanningConfiguration.ScanOnPush {
		t.Error("expected scan on push enabled")
	}
	if outputs["id"] != "app-images" {
		t.Errorf("expected id output app-images, got %v", outputs["id"])
	}
}

func TestRegistryProviderDeleteIdempotent(t *testing.T) {
	client := &mockECRClient{
		deleteFn: func(ctx context.Context, params *ecr.DeleteRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "RepositoryNotFoundException", Message: "not found"}
		},
	}
	provider := NewRegistryProviderWithClient(client)

	if err := provider.Delete(context.Background(), "app-images"); err != nil {
		t.Errorf("expected nil for already-deleted repository, got %v", err)
	}
}
