package aws

import (
	"context"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/terrane-io/terrane/pkg/engine"
)

// EC2NetworkClient defines the EC2 operations for VPC management.
type EC2NetworkClient interface {
	CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	ModifyVpcAttribute(ctx context.Context, params *ec2.ModifyVpcAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)
}

// NetworkProvider manages EC2 VPCs as "aws.network" resources.
//
// Attributes: cidr_block (required), enable_dns_support, enable_dns_hostnames,
// tags. The CIDR block cannot change after creation; updates only reconcile
// the DNS attributes and tags.
type NetworkProvider struct {
	client EC2NetworkClient
}

// NewNetworkProvider creates a provider using the SDK client.
func NewNetworkProvider(cfg awsv2.Config) *NetworkProvider {
	return &NetworkProvider{client: ec2.NewFromConfig(cfg)}
}

// NewNetworkProviderWithClient creates a provider with a custom client.
func NewNetworkProviderWithClient(client EC2NetworkClient) *NetworkProvider {
	return &NetworkProvider{client: client}
}

func (p *NetworkProvider) Type() string { return "aws.network" }

func (p *NetworkProvider) Create(ctx context.Context, identity string, attrs map[string]any) (string, map[string]any, error) {
	cidr, err := requireString(attrs, "cidr_block")
	if err != nil {
		return "", nil, err
	}

	out, err := p.client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: awsv2.String(cidr),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeVpc,
			Tags:         ec2Tags(identity, stringMapProp(attrs, "tags")),
		}},
	})
	if err != nil {
		return "", nil, classifyAWSError("create vpc", err)
	}

	vpcID := awsv2.ToString(out.Vpc.VpcId)
	if err := p.applyDNSAttributes(ctx, vpcID, attrs); err != nil {
		return "", nil, err
	}

	return vpcID, map[string]any{
		"id":         vpcID,
		"cidr_block": cidr,
	}, nil
}

func (p *NetworkProvider) Update(ctx context.Context, providerID string, attrs map[string]any) (map[string]any, error) {
	if err := p.applyDNSAttributes(ctx, providerID, attrs); err != nil {
		return nil, err
	}
	if tags := stringMapProp(attrs, "tags"); len(tags) > 0 {
		_, err := p.client.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{providerID},
			Tags:      ec2Tags("", tags),
		})
		if err != nil {
			return nil, classifyAWSError("update vpc tags", err)
		}
	}
	return map[string]any{
		"id":         providerID,
		"cidr_block": stringProp(attrs, "cidr_block", ""),
	}, nil
}

func (p *NetworkProvider) Delete(ctx context.Context, providerID string) error {
	_, err := p.client.DeleteVpc(ctx, &ec2.DeleteVpcInput{
		VpcId: awsv2.String(providerID),
	})
	if err != nil && !isNotFound(err, "InvalidVpcID.NotFound") {
		return classifyAWSError("delete vpc", err)
	}
	return nil
}

func (p *NetworkProvider) applyDNSAttributes(ctx context.Context, vpcID string, attrs map[string]any) error {
	if v, ok := attrs["enable_dns_support"]; ok {
		enabled, _ := v.(bool)
		_, err := p.client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:            awsv2.String(vpcID),
			EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: awsv2.Bool(enabled)},
		})
		if err != nil {
			return classifyAWSError("modify vpc dns support", err)
		}
	}
	if v, ok := attrs["enable_dns_hostnames"]; ok {
		enabled, _ := v.(bool)
		_, err := p.client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              awsv2.String(vpcID),
			EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: awsv2.Bool(enabled)},
		})
		if err != nil {
			return classifyAWSError("modify vpc dns hostnames", err)
		}
	}
	return nil
}

// ec2Tags builds the tag list, adding a Name tag when identity is set and
// no explicit Name tag exists.
func ec2Tags(identity string, tags map[string]string) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(tags)+1)
	if identity != "" {
		if _, ok := tags["Name"]; !ok {
			out = append(out, ec2types.Tag{Key: awsv2.String("Name"), Value: awsv2.String(identity)})
		}
	}
	for k, v := range tags {
		out = append(out, ec2types.Tag{Key: awsv2.String(k), Value: awsv2.String(v)})
	}
	return out
}

var _ engine.Provider = (*NetworkProvider)(nil)
