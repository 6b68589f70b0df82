package arbiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/edgebridge/internal/ifrcodec"
)

func TestQueryNextProfilePromote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Decision{DecisionCode: DecisionPromote, RecommendedModelID: 7})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	record := &ifrcodec.Record{JobID: 1, EpisodeID: 2}
	decision := c.QueryNextProfile(context.Background(), []byte{1, 2, 3}, record)

	require.Equal(t, DecisionPromote, decision.DecisionCode)
	require.EqualValues(t, 7, decision.RecommendedModelID)
}

func TestQueryNextProfileFallsBackToEnvProfileOnRequestFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "0.1,0.2,0.3")
	record := &ifrcodec.Record{}
	decision := c.QueryNextProfile(context.Background(), []byte{}, record)

	require.Equal(t, DecisionKeep, decision.DecisionCode)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, decision.Profile)
}

func TestQueryNextProfileNoURLNoEnvReturnsKeep(t *testing.T) {
	c := NewClient("", "")
	decision := c.QueryNextProfile(context.Background(), []byte{}, &ifrcodec.Record{})
	require.Equal(t, DecisionKeep, decision.DecisionCode)
	require.Nil(t, decision.Profile)
}
