package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripeKeyResource = "projects/sweety/secrets/stripe_api_key/versions/latest"

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	client.values[stripeKeyResource] = "sk_test_remote"

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fetcher, err := NewFetcher(ctx, withClient(client), WithDefaultProject("sweety"),
		WithCacheTTL(time.Minute), withClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
		require.NoError(t, err)
		assert.Equal(t, "sk_test_remote", got)
	}
	assert.Equal(t, 1, client.calls(stripeKeyResource))

	now = now.Add(2 * time.Minute)
	_, err = fetcher.ResolveSecret(ctx, "sm://stripe_api_key")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls(stripeKeyResource), "expired entry must be refetched")
}

func TestResolveHonoursVersionAndProjectOverrides(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	client.values["projects/other/secrets/stripe_webhook/versions/4"] = "whsec_4"

	fetcher, err := NewFetcher(ctx, withClient(client), WithDefaultProject("sweety"))
	require.NoError(t, err)

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe_webhook?version=4&project=other")
	require.NoError(t, err)
	assert.Equal(t, "whsec_4", got)
}

func TestResolveUsesProjectMap(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	client.values["projects/sweety-prod/secrets/stripe_api_key/versions/latest"] = "sk_live"

	fetcher, err := NewFetcher(ctx, withClient(client), WithEnvironment("PROD"),
		WithProjectMap(map[string]string{" prod ": " sweety-prod "}), WithDefaultProject("sweety"))
	require.NoError(t, err)

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk_live", got)
}

func TestResolveFallsBackWhenSecretManagerDenies(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	client.errs[stripeKeyResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, withClient(client), WithDefaultProject("sweety"),
		WithFallbackFile(writeFallback(t, "# local\nsecret://stripe_api_key=sk_local\n")))
	require.NoError(t, err)

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk_local", got)
}

func TestResolveDoesNotFallBackOnNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()

	fetcher, err := NewFetcher(ctx, withClient(client), WithDefaultProject("sweety"),
		WithFallbackFile(writeFallback(t, "secret://stripe_api_key=sk_local\n")))
	require.NoError(t, err)

	_, err = fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	require.Error(t, err)
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (accessor, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	ctx := context.Background()
	fetcher, err := NewFetcher(ctx, WithDefaultProject("sweety"),
		WithFallbackFile(writeFallback(t, "sm://stripe_webhook = whsec_local\n")))
	require.NoError(t, err)
	defer fetcher.Close()

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe_webhook?version=2")
	require.NoError(t, err)
	assert.Equal(t, "whsec_local", got)

	_, err = fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	assert.Error(t, err)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	client.values[stripeKeyResource] = "sk_v1"

	fetcher, err := NewFetcher(ctx, withClient(client), WithDefaultProject("sweety"))
	require.NoError(t, err)

	_, err = fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	client.set(stripeKeyResource, "sk_v2")
	fetcher.Invalidate("secret://stripe_api_key")

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk_v2", got)
}

func TestParseReferenceRejectsOtherSchemes(t *testing.T) {
	_, err := parseReference("https://example.com/secret")
	assert.Error(t, err)
	_, err = parseReference("secret://")
	assert.Error(t, err)
}

type fakeAccessor struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	count  map[string]int
}

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{values: map[string]string{}, errs: map[string]error{}, count: map[string]int{}}
}

func (f *fakeAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.GetName()
	f.count[name]++
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	value, ok := f.values[name]
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (f *fakeAccessor) Close() error { return nil }

func (f *fakeAccessor) set(name, value string) {
	f.mu.Lock()
	f.values[name] = value
	f.mu.Unlock()
}

func (f *fakeAccessor) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[name]
}
