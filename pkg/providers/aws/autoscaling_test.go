package aws

import (
	"context"
	"fmt"
	"sync"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	appautoscaling "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	"github.com/aws/smithy-go"
)

type mockAutoScalingClient struct {
	registerFn     func(ctx context.Context, params *appautoscaling.RegisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.RegisterScalableTargetOutput, error)
	putPolicyFn    func(ctx context.Context, params *appautoscaling.PutScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.PutScalingPolicyOutput, error)
	deletePolicyFn func(ctx context.Context, params *appautoscaling.DeleteScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeleteScalingPolicyOutput, error)
	deregisterFn   func(ctx context.Context, params *appautoscaling.DeregisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeregisterScalableTargetOutput, error)
}

func (m *mockAutoScalingClient) RegisterScalableTarget(ctx context.Context, params *appautoscaling.RegisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.RegisterScalableTargetOutput, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, params, optFns...)
	}
	return &appautoscaling.RegisterScalableTargetOutput{}, nil
}

func (m *mockAutoScalingClient) PutScalingPolicy(ctx context.Context, params *appautoscaling.PutScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.PutScalingPolicyOutput, error) {
	if m.putPolicyFn != nil {
		return m.putPolicyFn(ctx, params, optFns...)
	}
	return &appautoscaling.PutScalingPolicyOutput{
		PolicyARN: awsv2.String("arn:aws:autoscaling:us-east-1:111122223333:scalingPolicy:policy/" + awsv2.ToString(params.PolicyName)),
	}, nil
}

func (m *mockAutoScalingClient) DeleteScalingPolicy(ctx context.Context, params *appautoscaling.DeleteScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeleteScalingPolicyOutput, error) {
	if m.deletePolicyFn != nil {
		return m.deletePolicyFn(ctx, params, optFns...)
	}
	return &appautoscaling.DeleteScalingPolicyOutput{}, nil
}

func (m *mockAutoScalingClient) DeregisterScalableTarget(ctx context.Context, params *appautoscaling.DeregisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeregisterScalableTargetOutput, error) {
	if m.deregisterFn != nil {
		return m.deregisterFn(ctx, params, optFns...)
	}
	return &appautoscaling.DeregisterScalableTargetOutput{}, nil
}

func TestAutoScalingProviderCreate(t *testing.T) {
	var registered *appautoscaling.RegisterScalableTargetInput
	var put *appautoscaling.PutScalingPolicyInput
	client := &mockAutoScalingClient{
		registerFn: func(ctx context.Context, params *appautoscaling.RegisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.RegisterScalableTargetOutput, error) {
			registered = params
			return &appautoscaling.RegisterScalableTargetOutput{}, nil
		},
		putPolicyFn: func(ctx context.Context, params *appautoscaling.PutScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.PutScalingPolicyOutput, error) {
			put = params
			return &appautoscaling.PutScalingPolicyOutput{
				PolicyARN: awsv2.String("arn:aws:autoscaling:us-east-1:111122223333:scalingPolicy:policy/app-scaling"),
			}, nil
		},
	}
	provider := NewAutoScalingProviderWithClient(client)

	providerID, outputs, err := provider.Create(context.Background(), "app_scaling", map[string]any{
		"resource_id":  "service/app-cluster/app",
		"min_capacity": int64(2),
		"max_capacity": int64(10),
		"policy": map[string]any{
			"name":         "app-scaling",
			"target_value": 60.0,
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if providerID != "service/app-cluster/app" {
		t.Errorf("unexpected provider ID: %s", providerID)
	}
	if awsv2.ToInt32(registered.MinCapacity) != 2 || awsv2.ToInt32(registered.MaxCapacity) != 10 {
		t.Errorf("capacity = [%d, %d]", awsv2.ToInt32(registered.MinCapacity), awsv2.ToInt32(registered.MaxCapacity))
	}
	if awsv2.ToString(put.PolicyName) != "app-scaling" {
		t.Errorf("policy name = %s", awsv2.ToString(put.PolicyName))
	}
	if got := awsv2.ToFloat64(put.TargetTrackingScalingPolicyConfiguration.TargetValue); got != 60.0 {
		t.Errorf("target value = %v", got)
	}
	if outputs["policy_name"] != "app-scaling" {
		t.Errorf("expected policy_name output, got %v", outputs["policy_name"])
	}
}

func TestAutoScalingProviderCreateConcurrent(t *testing.T) {
	provider := NewAutoScalingProviderWithClient(&mockAutoScalingClient{})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resourceID := fmt.Sprintf("service/app-cluster/svc-%d", n)
			_, _, err := provider.Create(context.Background(), fmt.Sprintf("svc_%d", n), map[string]any{
				"resource_id": resourceID,
				"policy": map[string]any{
					"target_value": 70.0,
				},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Create failed: %v", err)
		}
	}

	for i := 0; i < workers; i++ {
		if err := provider.Delete(context.Background(), fmt.Sprintf("service/app-cluster/svc-%d", i)); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
	}
}

func TestAutoScalingProviderDeleteRemovesAttachedPolicy(t *testing.T) {
	var deletedPolicy *appautoscaling.DeleteScalingPolicyInput
	var deregistered *appautoscaling.DeregisterScalableTargetInput
	client := &mockAutoScalingClient{
		deletePolicyFn: func(ctx context.Context, params *appautoscaling.DeleteScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeleteScalingPolicyOutput, error) {
			deletedPolicy = params
			return &appautoscaling.DeleteScalingPolicyOutput{}, nil
		},
		deregisterFn: func(ctx context.Context, params *appautoscaling.DeregisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeregisterScalableTargetOutput, error) {
			deregistered = params
			return &appautoscaling.DeregisterScalableTargetOutput{}, nil
		},
	}
	provider := NewAutoScalingProviderWithClient(client)

	_, _, err := provider.Create(context.Background(), "app_scaling", map[string]any{
		"resource_id": "service/app-cluster/app",
		"policy": map[string]any{
			"name": "custom-policy",
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := provider.Delete(context.Background(), "service/app-cluster/app"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if awsv2.ToString(deletedPolicy.PolicyName) != "custom-policy" {
		t.Errorf("deleted policy = %s", awsv2.ToString(deletedPolicy.PolicyName))
	}
	if awsv2.ToString(deregistered.ResourceId) != "service/app-cluster/app" {
		t.Errorf("deregistered resource = %s", awsv2.ToString(deregistered.ResourceId))
	}
}

func TestAutoScalingProviderDeleteAfterRestart(t *testing.T) {
	var deletedPolicy *appautoscaling.DeleteScalingPolicyInput
	client := &mockAutoScalingClient{
		deletePolicyFn: func(ctx context.Context, params *appautoscaling.DeleteScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeleteScalingPolicyOutput, error) {
			deletedPolicy = params
			return nil, &smithy.GenericAPIError{Code: "ObjectNotFoundException", Message: "no such policy"}
		},
	}
	// A fresh provider has no record of attached policies, as after a
	// process restart.
	provider := NewAutoScalingProviderWithClient(client)

	if err := provider.Delete(context.Background(), "service/app-cluster/app"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if awsv2.ToString(deletedPolicy.PolicyName) != "service/app-cluster/app-tracking" {
		t.Errorf("expected the default policy name, got %s", awsv2.ToString(deletedPolicy.PolicyName))
	}
}
