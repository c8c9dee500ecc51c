package aws

import (
	"context"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/terrane-io/terrane/pkg/engine"
)

// ECSServiceClient defines the ECS operations for service management.
type ECSServiceClient interface {
	CreateService(ctx context.Context, params *ecs.CreateServiceInput, optFns ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
	DeleteService(ctx context.Context, params *ecs.DeleteServiceInput, optFns ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error)
}

// ServiceProvider manages ECS services as "aws.service" resources.
//
// Attributes: name (defaults to the identity), cluster_arn (required),
// task_definition (required), desired_count, launch_type, subnets,
// security_groups, assign_public_ip, load_balancer {target_group_arn,
// container_name, container_port}.
type ServiceProvider struct {
	client ECSServiceClient
}

// NewServiceProvider creates a provider using the SDK client.
func NewServiceProvider(cfg awsv2.Config) *ServiceProvider {
	return &ServiceProvider{client: ecs.NewFromConfig(cfg)}
}

// NewServiceProviderWithClient creates a provider with a custom client.
func NewServiceProviderWithClient(client ECSServiceClient) *ServiceProvider {
	return &ServiceProvider{client: client}
}

func (p *ServiceProvider) Type() string { return "aws.service" }

func (p *ServiceProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	name := stringProp(attrs, "name", identity)
	cluster, err := requireString(attrs, "cluster_arn")
	if err != nil {
		return "", nil, err
	}
	taskDef, err := requireString(attrs, "task_definition")
	if err != nil {
		return "", nil, err
	}

	input := &ecs.CreateServiceInput{
		ServiceName:    awsv2.String(name),
		Cluster:        awsv2.String(cluster),
		TaskDefinition: awsv2.String(taskDef),
		DesiredCount:   awsv2.Int32(int32Prop(attrs, "desired_count", 1)),
		LaunchType:     ecstypes.LaunchType(stringProp(attrs, "launch_type", "FARGATE")),
	}
	if netCfg := serviceNetworkConfiguration(attrs); netCfg != nil {
		input.NetworkConfiguration = netCfg
	}
	if lb := serviceLoadBalancer(attrs); lb != nil {
		input.LoadBalancers = []ecstypes.LoadBalancer{*lb}
	}

	out, err := p.client.CreateService(ctx, input)
	if err != nil {
		return "", nil, classifyAWSError("create service", err)
	}

	arn := awsv2.ToString(out.Service.ServiceArn)
	return arn, map[string]any{
		"id":   arn,
		"arn":  arn,
		"name": name,
	}, nil
}

func (p *ServiceProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	cluster, service, err := splitServiceARN(providerID)
	if err != nil {
		return nil, err
	}
	if explicit := stringProp(attrs, "cluster_arn", ""); explicit != "" {
		cluster = explicit
	}

	input := &ecs.UpdateServiceInput{
		Cluster:      awsv2.String(cluster),
		Service:      awsv2.String(service),
		DesiredCount: awsv2.Int32(int32Prop(attrs, "desired_count", 1)),
	}
	if taskDef := stringProp(attrs, "task_definition", ""); taskDef != "" {
		input.TaskDefinition = awsv2.String(taskDef)
	}
	if netCfg := serviceNetworkConfiguration(attrs); netCfg != nil {
		input.NetworkConfiguration = netCfg
	}

	out, err := p.client.UpdateService(ctx, input)
	if err != nil {
		return nil, classifyAWSError("update service", err)
	}

	arn := awsv2.ToString(out.Service.ServiceArn)
	return map[string]any{
		"id":   arn,
		"arn":  arn,
		"name": awsv2.ToString(out.Service.ServiceName),
	}, nil
}

func (p *ServiceProvider) Delete(ctx context.Context, providerID string) error {
	cluster, service, err := splitServiceARN(providerID)
	if err != nil {
		return err
	}

	_, err = p.client.DeleteService(ctx, &ecs.DeleteServiceInput{
		Cluster: awsv2.String(cluster),
		Service: awsv2.String(service),
		Force:   awsv2.Bool(true),
	})
	if err != nil && !isNotFound(err, "ServiceNotFoundException", "ClusterNotFoundException") {
		return classifyAWSError("delete service", err)
	}
	return nil
}

// splitServiceARN extracts the cluster and service names from a service ARN
// of the form arn:aws:ecs:region:account:service/cluster/service.
func splitServiceARN(arn string) (cluster, service string, err error) {
	idx := strings.Index(arn, "service/")
	if idx < 0 {
		return "", "", engine.NewPermanentError(
			fmt.Sprintf("malformed service identifier %q", arn), nil).
			WithCode(engine.ErrCodeValidation)
	}
	parts := strings.Split(arn[idx+len("service/"):], "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", engine.NewPermanentError(
			fmt.Sprintf("malformed service identifier %q", arn), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return parts[0], parts[1], nil
}

func serviceNetworkConfiguration(attrs map[string]any) *ecstypes.NetworkConfiguration {
	subnets := stringSliceProp(attrs, "subnets")
	if len(subnets) == 0 {
		return nil
	}
	assign := ecstypes.AssignPublicIpDisabled
	if boolProp(attrs, "assign_public_ip", false) {
		assign = ecstypes.AssignPublicIpEnabled
	}
	return &ecstypes.NetworkConfiguration{
		AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
			Subnets:        subnets,
			SecurityGroups: stringSliceProp(attrs, "security_groups"),
			AssignPublicIp: assign,
		},
	}
}

func serviceLoadBalancer(attrs map[string]any) *ecstypes.LoadBalancer {
	lb := mapProp(attrs, "load_balancer")
	if lb == nil {
		return nil
	}
	return &ecstypes.LoadBalancer{
		TargetGroupArn: awsv2.String(stringProp(lb, "target_group_arn", "")),
		ContainerName:  awsv2.String(stringProp(lb, "container_name", "")),
		ContainerPort:  awsv2.Int32(int32Prop(lb, "container_port", 80)),
	}
}

var _ engine.Provider = (*ServiceProvider)(nil)
