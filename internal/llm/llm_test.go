package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Procura/internal/governor"
	"github.com/shaiso/Procura/internal/telemetry"
)

func TestExtractJSON(t *testing.T) {
	type payload struct {
		Code string `json:"code"`
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", `{"code":"43211503"}`, "43211503"},
		{"fenced", "```json\n{\"code\": \"1\"}\n```", "1"},
		{"surrounded", "Here you go: {\"code\":\"2\"} hope it helps", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			require.NoError(t, ExtractJSON(tt.text, &p))
			assert.Equal(t, tt.want, p.Code)
		})
	}
}

func TestExtractJSON_Invalid(t *testing.T) {
	var v map[string]any

	assert.ErrorIs(t, ExtractJSON("no object here", &v), ErrInvalidResponse)
	assert.ErrorIs(t, ExtractJSON(`{"code": }`, &v), ErrInvalidResponse)
}

func TestGoverned_ObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	gov := governor.New(governor.Config{MaxInFlight: 1})

	g := NewGoverned(GeneratorFunc(func(context.Context, string, string) (string, error) {
		return "ok", nil
	}), gov, "classify", metrics)

	out, err := g.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int64(1), gov.Stats().Acquired)
	assert.Zero(t, gov.Stats().Active)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.UpstreamLatency))
}

func TestGoverned_CanceledBeforeCall(t *testing.T) {
	gov := governor.New(governor.Config{MaxInFlight: 1})
	called := false
	g := NewGoverned(GeneratorFunc(func(context.Context, string, string) (string, error) {
		called = true
		return "", nil
	}), gov, "classify", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "sys", "user")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFallback(t *testing.T) {
	secondary := GeneratorFunc(func(context.Context, string, string) (string, error) {
		return "from secondary", nil
	})

	t.Run("backend error switches", func(t *testing.T) {
		f := NewFallback(GeneratorFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("529 overloaded")
		}), secondary, nil)

		out, err := f.Generate(context.Background(), "s", "u")
		require.NoError(t, err)
		assert.Equal(t, "from secondary", out)
	})

	t.Run("rate limit does not switch", func(t *testing.T) {
		f := NewFallback(GeneratorFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("429 rate limit")
		}), secondary, nil)

		_, err := f.Generate(context.Background(), "s", "u")
		assert.EqualError(t, err, "429 rate limit")
	})
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := o.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestAnthropic_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":1}}`))
	}))
	defer srv.Close()

	a, err := NewAnthropic(AnthropicConfig{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := a.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := NewAnthropic(AnthropicConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewOpenAI(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
