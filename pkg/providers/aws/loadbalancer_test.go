package aws

import (
	"context"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/smithy-go"

	"github.com/terrane-io/terrane/pkg/engine"
)

type mockELBClient struct {
	createFn   func(ctx context.Context, params *elbv2.CreateLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.CreateLoadBalancerOutput, error)
	setSGFn    func(ctx context.Context, params *elbv2.SetSecurityGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.SetSecurityGroupsOutput, error)
	describeFn func(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	deleteFn   func(ctx context.Context, params *elbv2.DeleteLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.DeleteLoadBalancerOutput, error)
}

func testLoadBalancer(name string) elbtypes.LoadBalancer {
	return elbtypes.LoadBalancer{
		LoadBalancerArn:       awsv2.String("arn:aws:elasticloadbalancing:us-east-1:111122223333:loadbalancer/app/" + name + "/50dc6c495c0c9188"),
		DNSName:               awsv2.String(name + "-12345.us-east-1.elb.amazonaws.com"),
		CanonicalHostedZoneId: awsv2.String("Z35SXDOTRQ7X7K"),
		LoadBalancerName:      awsv2.String(name),
	}
}

func (m *mockELBClient) CreateLoadBalancer(ctx context.Context, params *elbv2.CreateLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.CreateLoadBalancerOutput, error) {
	if m.createFn != nil {
		return m.createFn(ctx, params, optFns...)
	}
	return &elbv2.CreateLoadBalancerOutput{
		LoadBalancers: []elbtypes.LoadBalancer{testLoadBalancer(awsv2.ToString(params.Name))},
	}, nil
}

func (m *mockELBClient) SetSecurityGroups(ctx context.Context, params *elbv2.SetSecurityGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.SetSecurityGroupsOutput, error) {
	if m.setSGFn != nil {
		return m.setSGFn(ctx, params, optFns...)
	}
	return &elbv2.SetSecurityGroupsOutput{SecurityGroupIds: params.SecurityGroups}, nil
}

func (m *mockELBClient) DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	if m.describeFn != nil {
		return m.describeFn(ctx, params, optFns...)
	}
	return &elbv2.DescribeLoadBalancersOutput{
		LoadBalancers: []elbtypes.LoadBalancer{testLoadBalancer("app-lb")},
	}, nil
}

func (m *mockELBClient) DeleteLoadBalancer(ctx context.Context, params *elbv2.DeleteLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.DeleteLoadBalancerOutput, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, params, optFns...)
	}
	return &elbv2.DeleteLoadBalancerOutput{}, nil
}

func TestLoadBalancerProviderCreate(t *testing.T) {
	var captured *elbv2.CreateLoadBalancerInput
	client := &mockELBClient{
		createFn: func(ctx context.Context, params *elbv2.CreateLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.CreateLoadBalancerOutput, error) {
			captured = params
			return &elbv2.CreateLoadBalancerOutput{
				LoadBalancers: []elbtypes.LoadBalancer{testLoadBalancer("app-lb")},
			}, nil
		},
	}
	provider := NewLoadBalancerProviderWithClient(client)

	providerID, outputs, err := provider.Create(context.Background(), "app_lb", map[string]any{
		"name":            "app-lb",
		"subnets":         []any{"subnet-1", "subnet-2"},
		"security_groups": []any{"sg-1"},
		"scheme":          "internal",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if providerID != "arn:aws:elasticloadbalancing:us-east-1:111122223333:loadbalancer/app/app-lb/50dc6c495c0c9188" {
		t.Errorf("unexpected provider ID: %s", providerID)
	}
	if outputs["dns_name"] != "app-lb-12345.us-east-1.elb.amazonaws.com" {
		t.Errorf("unexpected dns_name output: %v", outputs["dns_name"])
	}
	if outputs["hosted_zone_id"] != "Z35SXDOTRQ7X7K" {
		t.Errorf("unexpected hosted_zone_id output: %v", outputs["hosted_zone_id"])
	}
	if len(captured.Subnets) != 2 {
		t.Errorf("subnets = %v", captured.Subnets)
	}
	if captured.Scheme != elbtypes.LoadBalancerSchemeEnumInternal {
		t.Errorf("scheme = %s", captured.Scheme)
	}
	if captured.Type != elbtypes.LoadBalancerTypeEnumApplication {
		t.Errorf("expected the default type application, got %s", captured.Type)
	}
}

func TestLoadBalancerProviderCreateRequiresSubnets(t *testing.T) {
	provider := NewLoadBalancerProviderWithClient(&mockELBClient{})

	_, _, err := provider.Create(context.Background(), "app_lb", map[string]any{
		"name": "app-lb",
	})
	if err == nil {
		t.Fatal("expected an error for the missing subnets")
	}
	if !engine.HasCode(err, engine.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestLoadBalancerProviderUpdateSetsSecurityGroups(t *testing.T) {
	var captured *elbv2.SetSecurityGroupsInput
	client := &mockELBClient{
		setSGFn: func(ctx context.Context, params *elbv2.SetSecurityGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.SetSecurityGroupsOutput, error) {
			captured = params
			return &elbv2.SetSecurityGroupsOutput{SecurityGroupIds: params.SecurityGroups}, nil
		},
	}
	provider := NewLoadBalancerProviderWithClient(client)

	arn := "arn:aws:elasticloadbalancing:us-east-1:111122223333:loadbalancer/app/app-lb/50dc6c495c0c9188"
	outputs, err := provider.Update(context.Background(), arn, map[string]any{
		"security_groups": []any{"sg-1", "sg-2"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(captured.SecurityGroups) != 2 {
		t.Errorf("security groups = %v", captured.SecurityGroups)
	}
	if outputs["arn"] != arn {
		t.Errorf("unexpected arn output: %v", outputs["arn"])
	}
}

func TestLoadBalancerProviderUpdateVanished(t *testing.T) {
	client := &mockELBClient{
		describeFn: func(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
			return &elbv2.DescribeLoadBalancersOutput{}, nil
		},
	}
	provider := NewLoadBalancerProviderWithClient(client)

	_, err := provider.Update(context.Background(), "arn:aws:elasticloadbalancing:us-east-1:111122223333:loadbalancer/app/gone/1", nil)
	if err == nil {
		t.Fatal("expected an error when the load balancer is missing")
	}
	if !engine.HasCode(err, engine.ErrCodeProviderFailed) {
		t.Errorf("expected PROVIDER_FAILED, got %v", err)
	}
}

func TestLoadBalancerProviderDeleteIdempotent(t *testing.T) {
	client := &mockELBClient{
		deleteFn: func(ctx context.Context, params *elbv2.DeleteLoadBalancerInput, optFns ...func(*elbv2.Options)) (*elbv2.DeleteLoadBalancerOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "LoadBalancerNotFound", Message: "no such load balancer"}
		},
	}
	provider := NewLoadBalancerProviderWithClient(client)

	if err := provider.Delete(context.Background(), "arn:aws:elasticloadbalancing:us-east-1:111122223333:loadbalancer/app/gone/1"); err != nil {
		t.Errorf("deleting an absent load balancer must succeed, got %v", err)
	}
}
