package aws_test

import (
	"context"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	values map[string]string
	calls  int
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[*in.SecretId]
	if !ok {
		return &secretsmanager.GetSecretValueOutput{}, nil
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: sdkaws.String(v)}, nil
}

func TestSecretsClient_CachesWithinTTL(t *testing.T) {
	api := &fakeSecrets{values: map[string]string{"escrow/JWT_SECRET": "abc"}}
	c := awspkg.NewSecretsClientWithAPI(api, time.Hour)

	for i := 0; i < 3; i++ {
		v, err := c.GetSecret(context.Background(), "escrow/JWT_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "abc", v)
	}
	assert.Equal(t, 1, api.calls)
}

func TestSecretsClient_ZeroTTLRefetches(t *testing.T) {
	api := &fakeSecrets{values: map[string]string{"s": "v1"}}
	c := awspkg.NewSecretsClientWithAPI(api, 0)

	_, _ = c.GetSecret(context.Background(), "s")
	api.values["s"] = "v2"
	v, err := c.GetSecret(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestSecretsClient_Map(t *testing.T) {
	api := &fakeSecrets{values: map[string]string{
		"escrow/DB_CREDENTIALS": `{"POSTGRES_USER":"escrow","POSTGRES_PASSWORD":"pw"}`,
		"plain":                 "not json",
	}}
	c := awspkg.NewSecretsClientWithAPI(api, time.Hour)

	m, err := c.GetSecretMap(context.Background(), "escrow/DB_CREDENTIALS")
	require.NoError(t, err)
	assert.Equal(t, "pw", m["POSTGRES_PASSWORD"])

	_, err = c.GetSecretMap(context.Background(), "plain")
	assert.Error(t, err)

	_, err = c.GetSecret(context.Background(), "missing")
	assert.ErrorContains(t, err, "no string value")
}
