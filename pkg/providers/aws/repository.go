package aws

import (
	"context"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/terrane-io/terrane/pkg/engine"
)

// ECRClient defines the ECR operations for repository management.
type ECRClient interface {
	CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	PutImageTagMutability(ctx context.Context, params *ecr.PutImageTagMutabilityInput, optFns ...func(*ecr.Options)) (*ecr.PutImageTagMutabilityOutput, error)
	PutImageScanningConfiguration(ctx context.Context, params *ecr.PutImageScanningConfigurationInput, optFns ...func(*ecr.Options)) (*ecr.PutImageScanningConfigurationOutput, error)
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DeleteRepository(ctx context.Context, params *ecr.DeleteRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error)
}

// RegistryProvider manages ECR repositories as "aws.registry" resources.
//
// Attributes: name (defaults to the identity), image_tag_mutability
// (MUTABLE or IMMUTABLE), scan_on_push.
type RegistryProvider struct {
	client ECRClient
}

// NewRegistryProvider creates a provider using the SDK client.
func NewRegistryProvider(cfg awsv2.Config) *RegistryProvider {
	return &RegistryProvider{client: ecr.NewFromConfig(cfg)}
}

// NewRegistryProviderWithClient creates a provider with a custom client.
func NewRegistryProviderWithClient(client ECRClient) *RegistryProvider {
	return &RegistryProvider{client: client}
}

func (p *RegistryProvider) Type() string { return "aws.registry" }

func (p *RegistryProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	name := stringProp(attrs, "name", identity)

	out, err := p.client.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName:     awsv2.String(name),
		ImageTagMutability: ecrtypes.ImageTagMutability(stringProp(attrs, "image_tag_mutability", "MUTABLE")),
		ImageScanningConfiguration: &ecrtypes.ImageScanningConfiguration{
			ScanOnPush: boolProp(attrs, "scan_on_push", false),
		},
	})
	if err != nil {
		return "", nil, classifyAWSError("create repository", err)
	}

	return name, repositoryOutputs(out.Repository), nil
}

func (p *RegistryProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	_, err := p.client.PutImageTagMutability(ctx, &ecr.PutImageTagMutabilityInput{
		RepositoryName:     awsv2.String(providerID),
		ImageTagMutability: ecrtypes.ImageTagMutability(stringProp(attrs, "image_tag_mutability", "MUTABLE")),
	})
	if err != nil {
		return nil, classifyAWSError("update repository tag mutability", err)
	}

	_, err = p.client.PutImageScanningConfiguration(ctx, &ecr.PutImageScanningConfigurationInput{
		RepositoryName: awsv2.String(providerID),
		ImageScanningConfiguration: &ecrtypes.ImageScanningConfiguration{
			ScanOnPush: boolProp(attrs, "scan_on_push", false),
		},
	})
	if err != nil {
		return nil, classifyAWSError("update repository scanning", err)
	}

	desc, err := p.client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{providerID},
	})
	if err != nil {
		return nil, classifyAWSError("describe repository", err)
	}
	if len(desc.Repositories) == 0 {
		return nil, engine.NewConflictError("repository vanished during update", nil).
			WithCode(engine.ErrCodeProviderFailed)
	}
	return repositoryOutputs(&desc.Repositories[0]), nil
}

func (p *RegistryProvider) Delete(ctx context.Context, providerID string) error {
	_, err := p.client.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: awsv2.String(providerID),
		Force:          true,
	})
	if err != nil && !isNotFound(err, "RepositoryNotFoundException") {
		return classifyAWSError("delete repository", err)
	}
	return nil
}

func repositoryOutputs(repo *ecrtypes.Repository) map[string]any {
	if repo == nil {
		return nil
	}
	return map[string]any{
		"id":             awsv2.ToString(repo.RepositoryName),
		"arn":            awsv2.ToString(repo.RepositoryArn),
		"repository_url": awsv2.ToString(repo.RepositoryUri),
		"registry_id":    awsv2.ToString(repo.RegistryId),
	}
}

var _ engine.Provider = (*RegistryProvider)(nil)
