package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpulse/pkg/logging"
)

type fakeService struct {
	runWorkspace string
	marketAsset  string
	runErr       error
	marketErr    error
	runCtxID     string
}

func (f *fakeService) Run(ctx context.Context, workspaceID string) (string, error) {
	f.runWorkspace = workspaceID
	f.runCtxID, _ = logging.ID(ctx)
	if f.runErr != nil {
		return "", f.runErr
	}
	return "Sentiment processed successfully.\n\nreport", nil
}

func (f *fakeService) Market(_ context.Context, asset string) (string, error) {
	f.marketAsset = asset
	if f.marketErr != nil {
		return "", f.marketErr
	}
	return "market for " + asset, nil
}

func TestProcessTask(t *testing.T) {
	tests := []struct {
		name          string
		task          string
		wantOut       string
		wantWorkspace string
		wantAsset     string
	}{
		{"capability name", "bitcoin_sentiment_analysis", "Sentiment processed successfully.\n\nreport", "ws-default", ""},
		{"sentiment with workspace", "/sentiment ws-7", "Sentiment processed successfully.\n\nreport", "ws-7", ""},
		{"uppercase command", "  SENTIMENT  ", "Sentiment processed successfully.\n\nreport", "ws-default", ""},
		{"price default", "price", "market for ", "", ""},
		{"market with token", "market eth", "market for eth", "", "eth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			out, err := NewSentimentAgent(svc, "bitcoin_sentiment_analysis", "ws-default").ProcessTask(context.Background(), tt.task)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
			assert.Equal(t, tt.wantWorkspace, svc.runWorkspace)
			assert.Equal(t, tt.wantAsset, svc.marketAsset)
		})
	}
}

func TestProcessTask_HelpAndUnknown(t *testing.T) {
	a := NewSentimentAgent(&fakeService{}, "bitcoin_sentiment_analysis", "ws")

	out, err := a.ProcessTask(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "Available commands")

	out, err = a.ProcessTask(context.Background(), "help")
	require.NoError(t, err)
	assert.Contains(t, out, "bitcoin_sentiment_analysis")

	out, err = a.ProcessTask(context.Background(), "moon")
	require.NoError(t, err)
	assert.Contains(t, out, "Unknown command 'moon'")
}

func TestProcessTask_CoarseErrors(t *testing.T) {
	svc := &fakeService{runErr: errors.New("x api 503"), marketErr: errors.New("coingecko down")}
	a := NewSentimentAgent(svc, "bitcoin_sentiment_analysis", "ws")

	_, err := a.ProcessTask(context.Background(), "sentiment")
	assert.EqualError(t, err, "Sentiment processing failed.")
	assert.ErrorIs(t, err, errSentimentFailed)
	assert.NotErrorIs(t, err, svc.runErr)

	_, err = a.ProcessTask(context.Background(), "price btc")
	assert.EqualError(t, err, "Market data unavailable.")
	assert.ErrorIs(t, err, errMarketFailed)
}

func TestProcessTask_AssignsCorrelationID(t *testing.T) {
	svc := &fakeService{}
	_, err := NewSentimentAgent(svc, "bitcoin_sentiment_analysis", "ws").ProcessTask(context.Background(), "sentiment")
	require.NoError(t, err)
	assert.Len(t, svc.runCtxID, 8)
}

func TestProcessTask_CapabilityFollowsAsset(t *testing.T) {
	svc := &fakeService{}
	a := NewSentimentAgent(svc, "ethereum_sentiment_analysis", "ws")

	_, err := a.ProcessTask(context.Background(), "ethereum_sentiment_analysis ws-eth")
	require.NoError(t, err)
	assert.Equal(t, "ws-eth", svc.runWorkspace)

	out, err := a.ProcessTask(context.Background(), "bitcoin_sentiment_analysis")
	require.NoError(t, err)
	assert.Contains(t, out, "Unknown command 'bitcoin_sentiment_analysis'")
}
