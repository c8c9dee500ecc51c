package aws

import (
	"context"
	"sync"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	appautoscaling "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling"
	aastypes "github.com/aws/aws-sdk-go-v2/service/applicationautoscaling/types"

	"github.com/terrane-io/terrane/pkg/engine"
)

// AutoScalingClient defines the Application Auto Scaling operations for
// scalable target management.
type AutoScalingClient interface {
	RegisterScalableTarget(ctx context.Context, params *appautoscaling.RegisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.RegisterScalableTargetOutput, error)
	PutScalingPolicy(ctx context.Context, params *appautoscaling.PutScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.PutScalingPolicyOutput, error)
	DeleteScalingPolicy(ctx context.Context, params *appautoscaling.DeleteScalingPolicyInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeleteScalingPolicyOutput, error)
	DeregisterScalableTarget(ctx context.Context, params *appautoscaling.DeregisterScalableTargetInput, optFns ...func(*appautoscaling.Options)) (*appautoscaling.DeregisterScalableTargetOutput, error)
}

// AutoScalingProvider manages Application Auto Scaling targets and their
// target-tracking policies as "aws.autoscaling" resources.
//
// Attributes: resource_id (required), service_namespace (defaults to ecs),
// scalable_dimension (defaults to ecs:service:DesiredCount), min_capacity,
// max_capacity, policy {name, target_value, predefined_metric}.
type AutoScalingProvider struct {
	client AutoScalingClient

	// mu guards policyNames; the executor calls one provider from
	// multiple goroutines.
	mu sync.Mutex

	// policyNames remembers which policy was attached to each target so
	// Delete can remove it before deregistering. The map is in-process
	// only; Delete falls back to the default policy name when it has no
	// entry.
	policyNames map[string]string
}

// NewAutoScalingProvider creates a provider using the SDK client.
func NewAutoScalingProvider(cfg awsv2.Config) *AutoScalingProvider {
	return NewAutoScalingProviderWithClient(appautoscaling.NewFromConfig(cfg))
}

// NewAutoScalingProviderWithClient creates a provider with a custom client.
func NewAutoScalingProviderWithClient(client AutoScalingClient) *AutoScalingProvider {
	return &AutoScalingProvider{
		client:      client,
		policyNames: make(map[string]string),
	}
}

func (p *AutoScalingProvider) Type() string { return "aws.autoscaling" }

func (p *AutoScalingProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	resourceID, err := requireString(attrs, "resource_id")
	if err != nil {
		return "", nil, err
	}
	outputs, err := p.reconcile(ctx, resourceID, attrs)
	if err != nil {
		return "", nil, err
	}
	return resourceID, outputs, nil
}

func (p *AutoScalingProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	return p.reconcile(ctx, providerID, attrs)
}

func (p *AutoScalingProvider) Delete(ctx context.Context, providerID string) error {
	namespace := aastypes.ServiceNamespaceEcs
	dimension := aastypes.ScalableDimensionECSServiceDesiredCount

	p.mu.Lock()
	name, remembered := p.policyNames[providerID]
	p.mu.Unlock()
	if !remembered {
		// After a restart the attachment map is empty; try the default
		// policy name and tolerate its absence.
		name = defaultPolicyName(providerID)
	}

	_, err := p.client.DeleteScalingPolicy(ctx, &appautoscaling.DeleteScalingPolicyInput{
		PolicyName:        awsv2.String(name),
		ServiceNamespace:  namespace,
		ResourceId:        awsv2.String(providerID),
		ScalableDimension: dimension,
	})
	if err != nil && !isNotFound(err, "ObjectNotFoundException") {
		return classifyAWSError("delete scaling policy", err)
	}
	p.mu.Lock()
	delete(p.policyNames, providerID)
	p.mu.Unlock()

	_, err = p.client.DeregisterScalableTarget(ctx, &appautoscaling.DeregisterScalableTargetInput{
		ServiceNamespace:  namespace,
		ResourceId:        awsv2.String(providerID),
		ScalableDimension: dimension,
	})
	if err != nil && !isNotFound(err, "ObjectNotFoundException") {
		return classifyAWSError("deregister scalable target", err)
	}
	return nil
}

// reconcile registers the scalable target and applies the configured
// target-tracking policy, if any. Both calls are idempotent upserts.
func (p *AutoScalingProvider) reconcile(ctx context.Context, resourceID string, attrs map[string]any) (map[string]any, error) {
	namespace := aastypes.ServiceNamespace(stringProp(attrs, "service_namespace", "ecs"))
	dimension := aastypes.ScalableDimension(stringProp(attrs, "scalable_dimension", "ecs:service:DesiredCount"))
	minCap := int32Prop(attrs, "min_capacity", 1)
	maxCap := int32Prop(attrs, "max_capacity", 1)

	_, err := p.client.RegisterScalableTarget(ctx, &appautoscaling.RegisterScalableTargetInput{
		ServiceNamespace:  namespace,
		ResourceId:        awsv2.String(resourceID),
		ScalableDimension: dimension,
		MinCapacity:       awsv2.Int32(minCap),
		MaxCapacity:       awsv2.Int32(maxCap),
	})
	if err != nil {
		return nil, classifyAWSError("register scalable target", err)
	}

	outputs := map[string]any{
		"id":           resourceID,
		"resource_id":  resourceID,
		"min_capacity": int64(minCap),
		"max_capacity": int64(maxCap),
	}

	policy := mapProp(attrs, "policy")
	if policy == nil {
		return outputs, nil
	}
	policyName := stringProp(policy, "name", defaultPolicyName(resourceID))

	out, err := p.client.PutScalingPolicy(ctx, &appautoscaling.PutScalingPolicyInput{
		PolicyName:        awsv2.String(policyName),
		ServiceNamespace:  namespace,
		ResourceId:        awsv2.String(resourceID),
		ScalableDimension: dimension,
		PolicyType:        aastypes.PolicyTypeTargetTrackingScaling,
		TargetTrackingScalingPolicyConfiguration: &aastypes.TargetTrackingScalingPolicyConfiguration{
			TargetValue: awsv2.Float64(float64Prop(policy, "target_value", 70)),
			PredefinedMetricSpecification: &aastypes.PredefinedMetricSpecification{
				PredefinedMetricType: aastypes.MetricType(stringProp(policy, "predefined_metric", "ECSServiceAverageCPUUtilization")),
			},
		},
	})
	if err != nil {
		return nil, classifyAWSError("put scaling policy", err)
	}

	p.mu.Lock()
	p.policyNames[resourceID] = policyName
	p.mu.Unlock()
	outputs["policy_arn"] = awsv2.ToString(out.PolicyARN)
	outputs["policy_name"] = policyName
	return outputs, nil
}

// defaultPolicyName derives the policy name used when the declaration does
// not set one.
func defaultPolicyName(resourceID string) string {
	return resourceID + "-tracking"
}

var _ engine.Provider = (*AutoScalingProvider)(nil)
