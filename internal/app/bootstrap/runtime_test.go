package bootstrap

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, testLogger(), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestBuildRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, testLogger(), true)
	assert.Nil(t, client)
}

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, testLogger(), true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, testLogger(), false))
}

func TestBuildPostgresPoolNotConfigured(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{}, testLogger())
	assert.NoError(t, err)
	assert.Nil(t, pool)
}

func TestBuildStepStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, testLogger(), false)
	t.Cleanup(func() { _ = client.Close() })

	store, err := BuildStepStore(&appconfig.Config{StepStore: ""}, nil, nil, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &conversation.MemoryStepStore{}, store)

	store, err = BuildStepStore(&appconfig.Config{StepStore: "Redis"}, client, nil, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &conversation.RedisStepStore{}, store)

	_, err = BuildStepStore(&appconfig.Config{StepStore: StepStoreRedis}, nil, nil, testLogger())
	assert.ErrorContains(t, err, "requires redis")

	_, err = BuildStepStore(&appconfig.Config{StepStore: StepStorePostgres}, nil, nil, testLogger())
	assert.ErrorContains(t, err, "requires DATABASE_URL")

	_, err = BuildStepStore(&appconfig.Config{StepStore: "dynamo"}, nil, nil, testLogger())
	assert.ErrorContains(t, err, "unknown step store")

	_, err = BuildStepStore(nil, nil, nil, testLogger())
	assert.Error(t, err)
}

func TestBuildPipelineValidatesDeps(t *testing.T) {
	_, err := BuildPipeline(PipelineDeps{})
	assert.ErrorContains(t, err, "config is required")

	cfg := &appconfig.Config{Timezone: "America/Sao_Paulo"}
	_, err = BuildPipeline(PipelineDeps{Config: cfg})
	assert.ErrorContains(t, err, "step store is required")

	_, err = BuildPipeline(PipelineDeps{Config: cfg, Steps: conversation.NewMemoryStepStore()})
	assert.ErrorContains(t, err, "google calendar is required")
}

func TestBuildPipelineWiresHandlers(t *testing.T) {
	ctx := context.Background()
	cfg := &appconfig.Config{
		OpenAIAPIKey:      "sk-test",
		OpenAIAssistantID: "asst_test",
		GoogleTokenFile:   t.TempDir() + "/token.json",
		GoogleCalendarIDs: []string{"primary"},
		Timezone:          "America/Sao_Paulo",
		ManyChatBaseURL:   "http://127.0.0.1:1",
		MediaDir:          t.TempDir(),
	}
	google, err := BuildGoogleClients(ctx, cfg, testLogger())
	require.NoError(t, err)
	assert.Nil(t, google.Sheets)

	p, err := BuildPipeline(PipelineDeps{
		Config: cfg,
		Steps:  conversation.NewMemoryStepStore(),
		Google: google,
		Logger: testLogger(),
	})
	require.NoError(t, err)
	assert.NotNil(t, p.Webhook)
	assert.NotNil(t, p.Admin)
	assert.NotNil(t, p.Processor)
	require.NotNil(t, p.Debouncer)
	assert.NoError(t, p.Debouncer.Shutdown(ctx))

	cfg.Timezone = "Mars/Olympus"
	_, err = BuildPipeline(PipelineDeps{Config: cfg, Steps: conversation.NewMemoryStepStore(), Google: google})
	assert.ErrorContains(t, err, "load timezone")
}
