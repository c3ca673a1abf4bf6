package muxillm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	muxillm "github.com/smartyhouses/muxi-llm"
	"github.com/smartyhouses/muxi-llm/config"
	"github.com/smartyhouses/muxi-llm/llm"
	"github.com/smartyhouses/muxi-llm/llm/fallback"
	"github.com/smartyhouses/muxi-llm/testutil"
	"github.com/smartyhouses/muxi-llm/testutil/fixtures"
	"github.com/smartyhouses/muxi-llm/testutil/mocks"
	"github.com/smartyhouses/muxi-llm/types"
)

func newClient(t *testing.T, providers map[string]*mocks.MockProvider) *muxillm.Client {
	t.Helper()
	reg := llm.NewRegistry(zap.NewNop())
	for tag, p := range providers {
		require.NoError(t, reg.RegisterProvider(tag, p))
	}
	c, err := muxillm.NewClient(reg)
	require.NoError(t, err)
	return c
}

func hello() []llm.Message {
	return []llm.Message{llm.UserMessage("hello")}
}

func TestBuildFallbackChain(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		fallbacks []string
		want      []string
	}{
		{"no retries", 0, []string{"b/y"}, []string{"b/y"}},
		{"retries only", 2, nil, []string{"a/x", "a/x"}},
		{"retries then fallbacks", 2, []string{"b/y"}, []string{"a/x", "a/x", "b/y"}},
		{"negative retries", -1, []string{"b/y"}, []string{"b/y"}},
		{"empty", 0, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, muxillm.BuildFallbackChain("a/x", tt.retries, tt.fallbacks))
		})
	}
}

func TestBuildFallbackChain_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		retries := rapid.IntRange(0, 5).Draw(rt, "retries")
		fallbacks := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}/[a-z]{1,4}`), 0, 4).Draw(rt, "fallbacks")

		chain := muxillm.BuildFallbackChain("p/m", retries, fallbacks)
		if len(chain) != retries+len(fallbacks) {
			rt.Fatalf("chain length %d, want %d", len(chain), retries+len(fallbacks))
		}
		for i := range retries {
			if chain[i] != "p/m" {
				rt.Fatalf("chain[%d] = %q, want primary", i, chain[i])
			}
		}
		for i, f := range fallbacks {
			if chain[retries+i] != f {
				rt.Fatalf("chain[%d] = %q, want %q", retries+i, chain[retries+i], f)
			}
		}
	})
}

func TestCreate_ValidationBeforeAnyCall(t *testing.T) {
	a := mocks.NewMockProvider("a")
	c := newClient(t, map[string]*mocks.MockProvider{"a": a})

	tests := []struct {
		name string
		req  muxillm.CompletionRequest
		code types.ErrorCode
	}{
		{"missing separator", muxillm.CompletionRequest{Model: "gpt-4", Messages: hello()}, types.ErrInvalidModelID},
		{"unknown provider", muxillm.CompletionRequest{Model: "zzz/gpt-4", Messages: hello()}, types.ErrInvalidModelID},
		{"empty model name", muxillm.CompletionRequest{Model: "a/", Messages: hello()}, types.ErrInvalidModelID},
		{"bad fallback", muxillm.CompletionRequest{Model: "a/x", Messages: hello(), FallbackModels: []string{"a/y", "nope"}}, types.ErrInvalidModelID},
		{"no messages", muxillm.CompletionRequest{Model: "a/x"}, types.ErrInvalidRequest},
		{"bad role", muxillm.CompletionRequest{Model: "a/x", Messages: []llm.Message{{Role: "robot", Content: "hi"}}}, types.ErrInvalidRequest},
		{"bad content item", muxillm.CompletionRequest{Model: "a/x", Messages: []llm.Message{llm.UserParts(llm.ContentItem{Type: llm.ContentImageURL})}}, types.ErrInvalidRequest},
		{"empty message", muxillm.CompletionRequest{Model: "a/x", Messages: []llm.Message{llm.UserMessage("")}}, types.ErrInvalidRequest},
		{"negative retries", muxillm.CompletionRequest{Model: "a/x", Messages: hello(), Retries: -1}, types.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Create(context.Background(), tt.req)
			require.Error(t, err)

			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, types.StageValidation, e.Stage)
		})
	}
	assert.Equal(t, 0, a.CallCount())
}

func TestCreate_RetriesThenFallback(t *testing.T) {
	a := mocks.NewMockProvider("a").WithErrorSequence(
		types.NewServerError("a", "first"),
		types.NewTimeoutError("a", "second"),
	)
	b := mocks.NewMockProvider("b").WithResponse("from b")
	c := newClient(t, map[string]*mocks.MockProvider{"a": a, "b": b})

	res, err := c.Create(context.Background(), muxillm.CompletionRequest{
		Model:          "a/x",
		Messages:       hello(),
		FallbackModels: []string{"b/y"},
		Retries:        2,
	})
	require.NoError(t, err)

	// a, a, a, b: the primary plus two retries, then the fallback
	assert.Equal(t, 3, a.CallCount())
	assert.Equal(t, 0, b.CallCount())
	assert.Equal(t, "a/x", res.Candidate)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Failures, 2)
}

func TestCreate_FallbackAfterRetries(t *testing.T) {
	// the primary and both retries fail, b serves the request
	a := mocks.NewMockProvider("a").WithError(types.NewRateLimitError("a", "busy"))
	b := mocks.NewMockProvider("b").WithResponse("from b")
	c := newClient(t, map[string]*mocks.MockProvider{"a": a, "b": b})

	res, err := c.Create(context.Background(), muxillm.CompletionRequest{
		Model:          "a/x",
		Messages:       hello(),
		FallbackModels: []string{"b/y"},
		Retries:        2,
	})
	require.NoError(t, err)
	assert.Equal(t, "from b", res.Response.FirstContent())
	assert.Equal(t, 3, a.CallCount())
	assert.Equal(t, 1, b.CallCount())
}

func TestCreate_ExhaustedReportsEveryAttempt(t *testing.T) {
	a := mocks.NewMockProvider("a").WithError(types.NewServerError("a", "down"))
	b := mocks.NewMockProvider("b").WithError(types.NewServerError("b", "down"))
	c := newClient(t, map[string]*mocks.MockProvider{"a": a, "b": b})

	_, err := c.Create(context.Background(), muxillm.CompletionRequest{
		Model:          "a/x",
		Messages:       hello(),
		FallbackModels: []string{"b/y"},
		Retries:        1,
	})
	var fe *types.FallbackError
	require.ErrorAs(t, err, &fe)
	require.Len(t, fe.Attempts, 3)
	assert.Equal(t, "a/x", fe.Attempts[0].Candidate)
	assert.Equal(t, "a/x", fe.Attempts[1].Candidate)
	assert.Equal(t, "b/y", fe.Attempts[2].Candidate)
}

func TestCreate_FatalAbortsChain(t *testing.T) {
	a := mocks.NewMockProvider("a").WithError(types.NewAuthError("a", "bad key"))
	b := mocks.NewMockProvider("b")
	c := newClient(t, map[string]*mocks.MockProvider{"a": a, "b": b})

	_, err := c.Create(context.Background(), muxillm.CompletionRequest{
		Model:          "a/x",
		Messages:       hello(),
		FallbackModels: []string{"b/y"},
		Retries:        3,
	})
	assert.True(t, types.IsCode(err, types.ErrUnauthorized))
	assert.Equal(t, 1, a.CallCount())
	assert.Equal(t, 0, b.CallCount())
}

func TestCreate_RequestPolicyOverridesDefault(t *testing.T) {
	a := mocks.NewMockProvider("a").WithError(types.NewServerError("a", "down"))
	b := mocks.NewMockProvider("b")
	c := newClient(t, map[string]*mocks.MockProvider{"a": a, "b": b})

	_, err := c.Create(context.Background(), muxillm.CompletionRequest{
		Model:          "a/x",
		Messages:       hello(),
		FallbackModels: []string{"b/y"},
		FallbackPolicy: &fallback.Policy{RetryOn: []types.ErrorCode{types.ErrRateLimited}},
	})
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.Equal(t, 0, b.CallCount())
}

func TestCreate_ParamsForwarded(t *testing.T) {
	a := mocks.NewMockProvider("a")
	c := newClient(t, map[string]*mocks.MockProvider{"a": a})

	temp := 0.2
	_, err := c.Create(context.Background(), muxillm.CompletionRequest{
		Model:    "a/x",
		Messages: hello(),
		Params:   llm.Params{Temperature: &temp, Stop: []string{"END"}, Extra: map[string]any{"top_k": 5}},
	})
	require.NoError(t, err)

	got := a.LastRequest()
	require.NotNil(t, got.Params.Temperature)
	assert.Equal(t, 0.2, *got.Params.Temperature)
	assert.Equal(t, []string{"END"}, got.Params.Stop)
	assert.Equal(t, 5, got.Params.Extra["top_k"])
	assert.Equal(t, "x", got.Model)
}

func TestCreate_ResponseFromFallbackCandidate(t *testing.T) {
	a := mocks.NewMockProvider("a").WithError(types.NewServerError("a", "502"))
	b := mocks.NewMockProvider("b").WithCompletionFunc(func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return fixtures.ResponseWithUsage("from b", 7, 3), nil
	})
	c := newClient(t, map[string]*mocks.MockProvider{"a": a, "b": b})

	res, err := c.Create(testutil.TestContext(t), muxillm.CompletionRequest{
		Model:          "a/x",
		Messages:       hello(),
		FallbackModels: []string{"b/y"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b/y", res.Candidate)
	assert.Equal(t, "from b", res.Response.FirstContent())
	assert.Equal(t, 10, res.Response.Usage.TotalTokens)
	require.Len(t, res.Failures, 1)
}

func TestCreateAsync(t *testing.T) {
	a := mocks.NewMockProvider("a").WithResponse("async").WithDelay(10 * time.Millisecond)
	c := newClient(t, map[string]*mocks.MockProvider{"a": a})

	call := c.CreateAsync(context.Background(), muxillm.CompletionRequest{Model: "a/x", Messages: hello()})

	testutil.AssertEventuallyTrue(t, func() bool {
		select {
		case <-call.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second)
	res, err := call.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "async", res.Response.FirstContent())

	res2, err := call.Result()
	require.NoError(t, err)
	assert.Same(t, res, res2)
}

func TestCreateAsync_Cancel(t *testing.T) {
	a := mocks.NewMockProvider("a").WithDelay(time.Minute)
	b := mocks.NewMockProvider("b")
	c := newClient(t, map[string]*mocks.MockProvider{"a": a, "b": b})

	ctx, cancel := context.WithCancel(context.Background())
	call := c.CreateAsync(ctx, muxillm.CompletionRequest{Model: "a/x", Messages: hello(), FallbackModels: []string{"b/y"}})
	cancel()

	_, err := call.Result()
	assert.True(t, types.IsCode(err, types.ErrCanceled))
	assert.Equal(t, 0, b.CallCount())
}

func TestCall_WaitGivesUp(t *testing.T) {
	a := mocks.NewMockProvider("a").WithDelay(200 * time.Millisecond)
	c := newClient(t, map[string]*mocks.MockProvider{"a": a})

	call := c.CreateAsync(context.Background(), muxillm.CompletionRequest{Model: "a/x", Messages: hello()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := call.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the call itself still completes
	_, err = call.Result()
	assert.NoError(t, err)
}

func TestCreate_ConcurrentCallsConstructOnce(t *testing.T) {
	var mu sync.Mutex
	constructed := 0
	reg := llm.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register("a", func(context.Context) (llm.Provider, error) {
		mu.Lock()
		constructed++
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return mocks.NewMockProvider("a"), nil
	}))
	c, err := muxillm.NewClient(reg)
	require.NoError(t, err)

	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			res, err := c.CreateAsync(context.Background(), muxillm.CompletionRequest{Model: "a/x", Messages: hello()}).Result()
			if err != nil {
				return err
			}
			if res.Candidate != "a/x" {
				return errors.New("unexpected candidate " + res.Candidate)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, constructed)
}

func TestNewClient_NilRegistry(t *testing.T) {
	_, err := muxillm.NewClient(nil)
	assert.Error(t, err)
}

func TestNew_FromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.OutputPaths = []string{"stderr"}
	cfg.Metrics.Enabled = true
	cfg.Fallback.RetryOn = []string{"UPSTREAM_ERROR"}
	cfg.Providers["a"] = config.ProviderConfig{Capabilities: &config.CapabilitiesConfig{}}

	a := mocks.NewMockProvider("a").WithError(types.NewServerError("a", "down"))
	b := mocks.NewMockProvider("b").WithResponse("from b")

	c, err := muxillm.New(cfg, map[string]llm.ProviderFactory{
		"a": func(context.Context) (llm.Provider, error) { return a, nil },
		"b": func(context.Context) (llm.Provider, error) { return b, nil },
	}, prometheus.NewRegistry())
	require.NoError(t, err)
	defer func() { _ = c.Close(context.Background()) }()

	res, err := c.Create(context.Background(), muxillm.CompletionRequest{
		Model:          "a/x",
		Messages:       hello(),
		Stream:         true,
		FallbackModels: []string{"b/y"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b/y", res.Candidate)
	require.NotEmpty(t, res.Warnings)
	// a has every capability disabled by config
	assert.Equal(t, llm.FeatureStreaming, res.Warnings[0].Feature)
	assert.Equal(t, "a", res.Warnings[0].Provider)
	require.NotNil(t, res.Stream)
	for range res.Stream {
	}
}

func TestNew_TwiceWithDefaultRegisterer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.OutputPaths = []string{"stderr"}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "muxillm_twice"

	for range 2 {
		c, err := muxillm.New(cfg, nil, nil)
		require.NoError(t, err)
		require.NoError(t, c.Close(context.Background()))
	}
}

func TestNew_MetricConflictIsAnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "muxillm",
		Name:      "llm_requests_total",
		Help:      "unrelated",
	}))

	cfg := config.DefaultConfig()
	cfg.Log.OutputPaths = []string{"stderr"}
	cfg.Metrics.Enabled = true

	_, err := muxillm.New(cfg, nil, reg)
	assert.Error(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fallback.RetryOn = []string{"NOT_A_CODE"}

	_, err := muxillm.New(cfg, nil, prometheus.NewRegistry())
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Log.Level = "loud"
	_, err = muxillm.New(cfg, nil, prometheus.NewRegistry())
	assert.Error(t, err)
}
