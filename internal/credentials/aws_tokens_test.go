package credentials

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEKSTokenHasAuthenticatorPrefix(t *testing.T) {
	scope := Scope{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret", Region: "us-east-1"}
	token, err := scope.EKSToken(context.Background(), "my-cluster")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, eksTokenPrefix))
}

func TestEKSTokenVariesByClusterName(t *testing.T) {
	scope := Scope{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "secret", Region: "us-east-1"}
	a, err := scope.EKSToken(context.Background(), "cluster-a")
	require.NoError(t, err)
	b, err := scope.EKSToken(context.Background(), "cluster-b")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
