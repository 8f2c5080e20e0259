package cascade

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/at-ishikawa/wordbroker/internal/inference"
	mock_inference "github.com/at-ishikawa/wordbroker/internal/mocks/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func generateCall(client *mock_inference.MockClient, model string) *gomock.Call {
	return client.EXPECT().Generate(gomock.Any(), gomock.Cond(func(req inference.Request) bool {
		return req.Model == model && req.APIKey == "primary"
	}))
}

func TestCascade_Run(t *testing.T) {
	quotaErr := &inference.ProviderError{Provider: "gemini", Model: "model-b", StatusCode: http.StatusTooManyRequests, Message: "Resource has been exhausted"}

	tests := []struct {
		name      string
		rounds    int
		setupMock func(client *mock_inference.MockClient)

		want           string
		wantRounds     int
		wantAttempts   int
		wantQuota      bool
		wantExhausted  bool
		wantLastString string
	}{
		{
			name:   "first model answers",
			rounds: 3,
			setupMock: func(client *mock_inference.MockClient) {
				generateCall(client, "model-a").Return(" fan\n", nil)
			},
			want: "fan",
		},
		{
			name:   "falls through to the next model in the same round",
			rounds: 3,
			setupMock: func(client *mock_inference.MockClient) {
				gomock.InOrder(
					generateCall(client, "model-a").Return("", errors.New("model not found")),
					generateCall(client, "model-b").Return("fan", nil),
				)
			},
			want: "fan",
		},
		{
			name:   "empty text is a failure",
			rounds: 3,
			setupMock: func(client *mock_inference.MockClient) {
				gomock.InOrder(
					generateCall(client, "model-a").Return("  ", nil),
					generateCall(client, "model-b").Return("fan", nil),
				)
			},
			want: "fan",
		},
		{
			name:   "succeeds in a later round",
			rounds: 3,
			setupMock: func(client *mock_inference.MockClient) {
				gomock.InOrder(
					generateCall(client, "model-a").Return("", errors.New("overloaded")),
					generateCall(client, "model-b").Return("", errors.New("overloaded")),
					generateCall(client, "model-a").Return("fan", nil),
				)
			},
			want: "fan",
		},
		{
			name:   "every round fails",
			rounds: 3,
			setupMock: func(client *mock_inference.MockClient) {
				generateCall(client, "model-a").Return("", errors.New("overloaded")).Times(3)
				generateCall(client, "model-b").Return("", quotaErr).Times(3)
			},
			wantExhausted:  true,
			wantRounds:     3,
			wantAttempts:   6,
			wantQuota:      true,
			wantLastString: "Resource has been exhausted",
		},
		{
			name:   "single round",
			rounds: 1,
			setupMock: func(client *mock_inference.MockClient) {
				generateCall(client, "model-a").Return("", errors.New("overloaded"))
				generateCall(client, "model-b").Return("", errors.New("bad gateway"))
			},
			wantExhausted:  true,
			wantRounds:     1,
			wantAttempts:   2,
			wantLastString: "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mock_inference.NewMockClient(ctrl)
			tt.setupMock(client)

			c := New(client, Config{
				Models:   []string{"model-a", "model-b"},
				Rounds:   tt.rounds,
				Backoffs: []time.Duration{time.Millisecond, 2 * time.Millisecond},
			})
			got, err := c.Run(context.Background(), "primary", inference.Prompt{Text: "Translate science"})
			if !tt.wantExhausted {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			var exhausted *ExhaustedError
			require.ErrorAs(t, err, &exhausted)
			assert.Equal(t, tt.wantRounds, exhausted.Rounds)
			assert.Len(t, exhausted.Attempts, tt.wantAttempts)
			assert.Contains(t, exhausted.Last.Error(), tt.wantLastString)
			assert.Equal(t, tt.wantQuota, inference.IsQuotaError(err))
			assert.Empty(t, got)
		})
	}
}

func TestCascade_Run_attemptsAreRecordedInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock_inference.NewMockClient(ctrl)
	client.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("overloaded")).Times(4)

	c := New(client, Config{
		Models:   []string{"model-a", "model-b"},
		Rounds:   2,
		Backoffs: []time.Duration{time.Millisecond},
	})
	_, err := c.Run(context.Background(), "primary", inference.Prompt{Text: "x"})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	var got []Attempt
	for _, attempt := range exhausted.Attempts {
		got = append(got, Attempt{Model: attempt.Model, Round: attempt.Round})
	}
	assert.Equal(t, []Attempt{
		{Model: "model-a", Round: 1},
		{Model: "model-b", Round: 1},
		{Model: "model-a", Round: 2},
		{Model: "model-b", Round: 2},
	}, got)
}

func TestCascade_Run_contextCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock_inference.NewMockClient(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, inference.Request) (string, error) {
		cancel()
		return "", errors.New("overloaded")
	})

	c := New(client, Config{
		Models:   []string{"model-a"},
		Rounds:   3,
		Backoffs: []time.Duration{time.Hour},
	})
	start := time.Now()
	_, err := c.Run(ctx, "primary", inference.Prompt{Text: "x"})
	require.ErrorIs(t, err, context.Canceled)
	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	assert.Less(t, time.Since(start), time.Minute)
}

func TestCascade_Run_noModels(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := New(mock_inference.NewMockClient(ctrl), Config{})
	_, err := c.Run(context.Background(), "primary", inference.Prompt{Text: "x"})
	assert.Error(t, err)
}

func TestCascade_Backoff(t *testing.T) {
	tests := []struct {
		name     string
		backoffs []time.Duration
		want     []time.Duration
	}{
		{
			name: "default schedule",
			want: []time.Duration{2 * time.Second, 4 * time.Second, 4 * time.Second},
		},
		{
			name:     "custom schedule",
			backoffs: []time.Duration{time.Second},
			want:     []time.Duration{time.Second, time.Second, time.Second},
		},
		{
			name:     "no delay",
			backoffs: []time.Duration{},
			want:     []time.Duration{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil, Config{Backoffs: tt.backoffs})
			var got []time.Duration
			for round := 0; round < 3; round++ {
				got = append(got, c.Backoff(round))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, DefaultRounds, c.rounds)
		})
	}
}

func TestExhaustedError_Any(t *testing.T) {
	quota := errors.New("Resource has been exhausted")
	notFound := errors.New("models/b is not found")
	isQuota := func(err error) bool { return errors.Is(err, quota) }

	tests := []struct {
		name string
		err  *ExhaustedError
		want bool
	}{
		{
			name: "earlier attempt matches",
			err: &ExhaustedError{
				Attempts: []Attempt{{Model: "a", Err: quota}, {Model: "b", Err: notFound}},
				Last:     notFound,
			},
			want: true,
		},
		{
			name: "no attempt matches",
			err: &ExhaustedError{
				Attempts: []Attempt{{Model: "b", Err: notFound}},
				Last:     notFound,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Any(isQuota))
		})
	}
}
