package aws

import (
	"context"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/terrane-io/terrane/pkg/engine"
)

// ECSClusterClient defines the ECS operations for cluster management.
type ECSClusterClient interface {
	CreateCluster(ctx context.Context, params *ecs.CreateClusterInput, optFns ...func(*ecs.Options)) (*ecs.CreateClusterOutput, error)
	UpdateCluster(ctx context.Context, params *ecs.UpdateClusterInput, optFns ...func(*ecs.Options)) (*ecs.UpdateClusterOutput, error)
	DeleteCluster(ctx context.Context, params *ecs.DeleteClusterInput, optFns ...func(*ecs.Options)) (*ecs.DeleteClusterOutput, error)
}

// ClusterProvider manages ECS clusters as "aws.cluster" resources.
//
// Attributes: name (defaults to the identity), capacity_providers,
// container_insights.
type ClusterProvider struct {
	client ECSClusterClient
}

// NewClusterProvider creates a provider using the SDK client.
func NewClusterProvider(cfg awsv2.Config) *ClusterProvider {
	return &ClusterProvider{client: ecs.NewFromConfig(cfg)}
}

// NewClusterProviderWithClient creates a provider with a custom client.
func NewClusterProviderWithClient(client ECSClusterClient) *ClusterProvider {
	return &ClusterProvider{client: client}
}

func (p *ClusterProvider) Type() string { return "aws.cluster" }

func (p *ClusterProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	name := stringProp(attrs, "name", identity)

	out, err := p.client.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName:       awsv2.String(name),
		CapacityProviders: stringSliceProp(attrs, "capacity_providers"),
		Settings:          clusterSettings(attrs),
	})
	if err != nil {
		return "", nil, classifyAWSError("create cluster", err)
	}

	arn := awsv2.ToString(out.Cluster.ClusterArn)
	return arn, map[string]any{
		"id":   arn,
		"arn":  arn,
		"name": name,
	}, nil
}

func (p *ClusterProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	out, err := p.client.UpdateCluster(ctx, &ecs.UpdateClusterInput{
		Cluster:  awsv2.String(providerID),
		Settings: clusterSettings(attrs),
	})
	if err != nil {
		return nil, classifyAWSError("update cluster", err)
	}

	arn := awsv2.ToString(out.Cluster.ClusterArn)
	return map[string]any{
		"id":   arn,
		"arn":  arn,
		"name": awsv2.ToString(out.Cluster.ClusterName),
	}, nil
}

func (p *ClusterProvider) Delete(ctx context.Context, providerID string) error {
	_, err := p.client.DeleteCluster(ctx, &ecs.DeleteClusterInput{
		Cluster: awsv2.String(providerID),
	})
	if err != nil && !isNotFound(err, "ClusterNotFoundException") {
		return classifyAWSError("delete cluster", err)
	}
	return nil
}

func clusterSettings(attrs map[string]any) []ecstypes.ClusterSetting {
	value := "disabled"
	if boolProp(attrs, "container_insights", false) {
		value = "enabled"
	}
	return []ecstypes.ClusterSetting{{
		Name:  ecstypes.ClusterSettingNameContainerInsights,
		Value: awsv2.String(value),
	}}
}

var _ engine.Provider = (*ClusterProvider)(nil)
