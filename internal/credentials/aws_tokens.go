package credentials

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// staticProvider pins an aws-sdk-go-v2 Config to this scope's own
// credentials instead of falling back to the ambient credential chain —
// the whole point of a Credential Scope is that it never reads outside
// what the request (or server defaults) supplied (§4.12).
type staticProvider struct{ s Scope }

func (p staticProvider) Retrieve(context.Context) (aws.Credentials, error) {
	return aws.Credentials{
		AccessKeyID:     p.s.AccessKeyID,
		SecretAccessKey: p.s.SecretAccessKey,
	}, nil
}

func (s Scope) awsConfig(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.Region),
		awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(staticProvider{s})),
	)
}

// ECRAuth exchanges this scope for a short-lived ECR registry login via
// `ecr:GetAuthorizationToken` — the only credential the Docker registry
// client actually accepts for an ECR push (§4.5 cloud-hosted image
// publish). The IAM access/secret key pair itself is never a valid
// registry password.
func (s Scope) ECRAuth(ctx context.Context) (username, password string, err error) {
	cfg, err := s.awsConfig(ctx)
	if err != nil {
		return "", "", fmt.Errorf("build AWS config for ECR auth: %w", err)
	}
	out, err := ecr.NewFromConfig(cfg).GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", fmt.Errorf("ecr GetAuthorizationToken: %w", err)
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return "", "", fmt.Errorf("ecr GetAuthorizationToken returned no authorization data")
	}
	decoded, err := base64.StdEncoding.DecodeString(*out.AuthorizationData[0].AuthorizationToken)
	if err != nil {
		return "", "", fmt.Errorf("decode ECR authorization token: %w", err)
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", fmt.Errorf("malformed ECR authorization token")
	}
	return user, pass, nil
}

// eksTokenPrefix matches the aws-iam-authenticator "v1" token scheme that
// EKS's built-in authenticator webhook expects on every API request.
const eksTokenPrefix = "k8s-aws-v1."

// EKSToken mints a short-lived bearer token for clusterName using the
// presigned-STS-GetCallerIdentity scheme EKS authenticates bearer tokens
// against — the same mechanism `aws eks get-token` and
// aws-iam-authenticator implement. A raw IAM secret key is never a valid
// Kubernetes bearer token.
func (s Scope) EKSToken(ctx context.Context, clusterName string) (string, error) {
	cfg, err := s.awsConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("build AWS config for EKS auth: %w", err)
	}
	presignClient := sts.NewPresignClient(sts.NewFromConfig(cfg))
	presigned, err := presignClient.PresignGetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}, func(po *sts.PresignOptions) {
		po.ClientOptions = append(po.ClientOptions, sts.WithAPIOptions(
			smithyhttp.SetHeaderValue("X-K8s-Aws-Id", clusterName),
		))
	})
	if err != nil {
		return "", fmt.Errorf("presign sts:GetCallerIdentity for %s: %w", clusterName, err)
	}
	return eksTokenPrefix + strings.TrimRight(base64.RawURLEncoding.EncodeToString([]byte(presigned.URL)), "="), nil
}
