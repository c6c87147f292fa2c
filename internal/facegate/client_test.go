package facegate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/pkg/config"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

func newTestClient(url string) *Client {
	return NewClient(config.FaceGateConfig{
		BaseURL:           url,
		APIKey:            "test-key",
		Threshold:         80,
		FallbackThreshold: 70,
	}, zap.NewNop())
}

func TestSearchMatchAtPrimaryThreshold(t *testing.T) {
	var calls []float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, req.Threshold)
		json.NewEncoder(w).Encode(searchResponse{Matches: []Match{{SubjectID: "S001", Similarity: 91.2}}})
	}))
	defer server.Close()

	match, err := newTestClient(server.URL).Search(context.Background(), "aW1hZ2U=")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "S001", match.SubjectID)
	assert.Equal(t, []float64{80}, calls)
}

func TestSearchFallsBackToLowerThreshold(t *testing.T) {
	var calls []float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, req.Threshold)
		if req.Threshold > 70 {
			json.NewEncoder(w).Encode(searchResponse{})
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Matches: []Match{{SubjectID: "S002", Similarity: 74.5}}})
	}))
	defer server.Close()

	match, err := newTestClient(server.URL).Search(context.Background(), "aW1hZ2U=")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "S002", match.SubjectID)
	assert.Equal(t, []float64{80, 70}, calls)
}

func TestSearchNoMatchAtEitherThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	match, err := newTestClient(server.URL).Search(context.Background(), "aW1hZ2U=")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestSearchGatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "aW1hZ2U=")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErr.Code)
}

func TestSearchGatewayServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "aW1hZ2U=")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrGatewayUnavailable.Code, appErr.Code)
}

func TestEnrollAndDeleteSkipMode(t *testing.T) {
	client := NewClient(config.FaceGateConfig{Skip: true}, zap.NewNop())
	assert.True(t, client.Skipped())
	assert.NoError(t, client.Enroll(context.Background(), "S001", "aW1hZ2U="))
	assert.NoError(t, client.Delete(context.Background(), "S001"))
	assert.NoError(t, client.Health(context.Background()))
}

func TestDeleteHitsSubjectPath(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
	}))
	defer server.Close()

	require.NoError(t, newTestClient(server.URL).Delete(context.Background(), "S001"))
	assert.Equal(t, "/api/v1/recognition/subjects/S001", gotPath)
	assert.Equal(t, http.MethodDelete, gotMethod)
}
