package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litmus/internal/types"
)

func TestStripeConfig_MockEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{" yes ", true},
		{"no", false},
		{"0", false},
		{"false", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.value), func(t *testing.T) {
			assert.Equal(t, tt.want, StripeConfig{MockMode: tt.value}.MockEnabled())
		})
	}
}

func TestConfig_FrontendBaseURL(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultFrontendURL, cfg.FrontendBaseURL())

	cfg.Server.SiteURL = "https://site.example.com"
	assert.Equal(t, "https://site.example.com", cfg.FrontendBaseURL())

	cfg.Server.FrontendURL = "https://app.example.com/"
	assert.Equal(t, "https://app.example.com", cfg.FrontendBaseURL(), "FRONTEND_URL wins and loses its trailing slash")
}

func TestStripeConfig_PriceIDFor(t *testing.T) {
	s := StripeConfig{PricePremium: "price_p", PriceEnterprise: "price_e"}
	assert.Equal(t, "price_p", s.PriceIDFor(types.PlanPremium))
	assert.Equal(t, "price_e", s.PriceIDFor(types.PlanEnterprise))
	assert.Empty(t, s.PriceIDFor(types.PlanFree))
}

type fakeSSMClient struct {
	calls   [][]string
	values  map[string]string
	invalid []string
	err     error
}

func (f *fakeSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.calls = append(f.calls, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{InvalidParameters: f.invalid}
	for _, name := range in.Names {
		if v, ok := f.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		}
	}
	return out, nil
}

func TestSSMProvider_BatchesByTen(t *testing.T) {
	client := &fakeSSMClient{values: map[string]string{}}
	keys := make([]string, 0, 23)
	for i := 0; i < 23; i++ {
		k := fmt.Sprintf("/prod/litmus/param_%02d", i)
		keys = append(keys, k)
		client.values[k] = fmt.Sprintf("value_%02d", i)
	}

	p := newSSMProviderWithClient("us-east-1", client)
	got, err := p.GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)

	require.Len(t, client.calls, 3)
	assert.Len(t, client.calls[0], 10)
	assert.Len(t, client.calls[2], 3)
	assert.Len(t, got, 23)
	assert.Equal(t, "value_07", got["/prod/litmus/param_07"])
}

func TestSSMProvider_Errors(t *testing.T) {
	p := newSSMProviderWithClient("us-east-1", &fakeSSMClient{invalid: []string{"/prod/missing"}})
	_, err := p.GetParametersBatch(context.Background(), []string{"/prod/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	p = newSSMProviderWithClient("us-east-1", &fakeSSMClient{err: errors.New("AccessDenied")})
	_, err = p.GetParametersBatch(context.Background(), []string{"/prod/a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")

	empty, err := NewSSMProvider("us-east-1").GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("LITMUS_TEST_SECRET", "from-env")
	got, err := NewEnvVarProvider().GetParametersBatch(context.Background(), []string{"LITMUS_TEST_SECRET", "LITMUS_TEST_ABSENT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"LITMUS_TEST_SECRET": "from-env"}, got)
}
