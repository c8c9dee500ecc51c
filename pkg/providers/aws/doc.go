// Package aws implements resource providers on the AWS SDK v2. Each
// provider handles one resource type and talks to one service through a
// narrow client interface, so tests can substitute mock clients without
// touching the SDK.
//
// Supported resource types:
//
//	aws.network       EC2 VPC
//	aws.registry      ECR repository
//	aws.pipeline      CodeBuild project
//	aws.cluster       ECS cluster
//	aws.service       ECS service
//	aws.loadbalancer  Elastic Load Balancing v2
//	aws.autoscaling   Application Auto Scaling target and policy
package aws
