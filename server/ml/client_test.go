package ml

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:             time.Second,
		MaxRetries:          1,
		RetryDelay:          time.Millisecond,
		HealthCheckInterval: time.Hour,
	}
}

func testFrame() *capture.Frame {
	return &capture.Frame{Image: capture.UniformFrame(64, 48, 128), Timestamp: time.Now()}
}

func TestClientEmptyBaseURLIsUnavailable(t *testing.T) {
	client := NewClient("", testClientConfig(), zap.NewNop())
	defer client.Close()

	assert.Equal(t, models.ModelStatusUnavailable, client.Status())

	_, err := client.DetectObjects(testFrame())
	assert.Error(t, err)
}

func TestClientDetectObjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/detect/objects":
			var req detectRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.NotEmpty(t, req.ImageData)

			json.NewEncoder(w).Encode(detectResponse{
				Detections: []objectDetection{
					{Class: "cell phone", Confidence: 0.91, BoundingBox: models.BBox{X: 10, Y: 20, Width: 30, Height: 40}},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), zap.NewNop())
	defer client.Close()

	require.Equal(t, models.ModelStatusReady, client.Status())

	objects, err := client.DetectObjects(testFrame())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "cell phone", objects[0].Class)
	assert.Equal(t, 0.91, objects[0].Score)
}

func TestClientDetectFace(t *testing.T) {
	found := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/detect/face":
			json.NewEncoder(w).Encode(faceResponse{
				Found:       found,
				BoundingBox: models.BBox{X: 100, Y: 80, Width: 120, Height: 160},
				Confidence:  0.88,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), zap.NewNop())
	defer client.Close()

	box, err := client.DetectFace(testFrame())
	require.NoError(t, err)
	require.NotNil(t, box)
	assert.Equal(t, float64(100), box.X)

	found = false
	box, err = client.DetectFace(testFrame())
	require.NoError(t, err)
	assert.Nil(t, box)
}

func TestClientRetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, testClientConfig(), zap.NewNop())
	defer client.Close()

	_, err := client.DetectObjects(testFrame())
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}
