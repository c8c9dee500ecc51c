package aws

import (
	"context"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/terrane-io/terrane/pkg/engine"
)

// ELBClient defines the ELBv2 operations for load balancer management.
type ELBClient interface {
	CreateLoadBalancer(ctx context.Context, params *elbv2.CreateLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.CreateLoadBalancerOutput, error)
	SetSecurityGroups(ctx context.Context, params *elbv2.SetSecurityGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.SetSecurityGroupsOutput, error)
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	DeleteLoadBalancer(ctx context.Context, params *elbv2.DeleteLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.DeleteLoadBalancerOutput, error)
}

// LoadBalancerProvider manages ELBv2 load balancers as "aws.loadbalancer"
// resources.
//
// Attributes: name (defaults to the identity), subnets (required),
// security_groups, scheme, type.
type LoadBalancerProvider struct {
	client ELBClient
}

// NewLoadBalancerProvider creates a provider using the SDK client.
func NewLoadBalancerProvider(cfg awsv2.Config) *LoadBalancerProvider {
	return &LoadBalancerProvider{client: elbv2.NewFromConfig(cfg)}
}

// NewLoadBalancerProviderWithClient creates a provider with a custom client.
func NewLoadBalancerProviderWithClient(client ELBClient) *LoadBalancerProvider {
	return &LoadBalancerProvider{client: client}
}

func (p *LoadBalancerProvider) Type() string { return "aws.loadbalancer" }

func (p *LoadBalancerProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	name := stringProp(attrs, "name", identity)
	subnets := stringSliceProp(attrs, "subnets")
	if len(subnets) == 0 {
		return "", nil, engine.NewPermanentError(
			"attribute \"subnets\" is required", nil).
			WithCode(engine.ErrCodeValidation)
	}

	out, err := p.client.CreateLoadBalancer(ctx, &elbv2.CreateLoadBalancerInput{
		Name:           awsv2.String(name),
		Subnets:        subnets,
		SecurityGroups: stringSliceProp(attrs, "security_groups"),
		Scheme:         elbtypes.LoadBalancerSchemeEnum(stringProp(attrs, "scheme", "internet-facing")),
		Type:           elbtypes.LoadBalancerTypeEnum(stringProp(attrs, "type", "application")),
	})
	if err != nil {
		return "", nil, classifyAWSError("create load balancer", err)
	}
	if len(out.LoadBalancers) == 0 {
		return "", nil, engine.NewConflictError("load balancer not returned on create", nil).
			WithCode(engine.ErrCodeProviderFailed)
	}

	lb := out.LoadBalancers[0]
	return awsv2.ToString(lb.LoadBalancerArn), loadBalancerOutputs(&lb), nil
}

func (p *LoadBalancerProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	if groups := stringSliceProp(attrs, "security_groups"); len(groups) > 0 {
		_, err := p.client.SetSecurityGroups(ctx, &elbv2.SetSecurityGroupsInput{
			LoadBalancerArn: awsv2.String(providerID),
			SecurityGroups:  groups,
		})
		if err != nil {
			return nil, classifyAWSError("update load balancer security groups", err)
		}
	}

	desc, err := p.client.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{providerID},
	})
	if err != nil {
		return nil, classifyAWSError("describe load balancer", err)
	}
	if len(desc.LoadBalancers) == 0 {
		return nil, engine.NewConflictError("load balancer vanished during update", nil).
			WithCode(engine.ErrCodeProviderFailed)
	}
	return loadBalancerOutputs(&desc.LoadBalancers[0]), nil
}

func (p *LoadBalancerProvider) Delete(ctx context.Context, providerID string) error {
	_, err := p.client.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{
		LoadBalancerArn: awsv2.String(providerID),
	})
	if err != nil && !isNotFound(err, "LoadBalancerNotFound") {
		return classifyAWSError("delete load balancer", err)
	}
	return nil
}

func loadBalancerOutputs(lb *elbtypes.LoadBalancer) map[string]any {
	if lb == nil {
		return nil
	}
	return map[string]any{
		"id":             awsv2.ToString(lb.LoadBalancerArn),
		"arn":            awsv2.ToString(lb.LoadBalancerArn),
		"dns_name":       awsv2.ToString(lb.DNSName),
		"hosted_zone_id": awsv2.ToString(lb.CanonicalHostedZoneId),
	}
}

var _ engine.Provider = (*LoadBalancerProvider)(nil)
