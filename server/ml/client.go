package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/models"
	"go.uber.org/zap"
)

// ObjectDetector finds unauthorized objects (phones, extra people) in a
// frame. Implementations may be unavailable; callers check Status before
// relying on results.
type ObjectDetector interface {
	DetectObjects(frame *capture.Frame) ([]models.DetectedObject, error)
	Status() models.ModelStatus
}

// FaceDetector locates the primary face in a frame. A nil box with nil
// error means no face was found.
type FaceDetector interface {
	DetectFace(frame *capture.Frame) (*models.BBox, error)
	Status() models.ModelStatus
}

// Client talks to the external model service over HTTP. The detection
// models are heavyweight and swappable, so they live behind a sidecar
// rather than in-process.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *ClientConfig

	statusMu sync.RWMutex
	status   models.ModelStatus
	done     chan struct{}
	stopOnce sync.Once
}

type ClientConfig struct {
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	HealthCheckInterval time.Duration
}

type detectRequest struct {
	ImageData []byte `json:"image_data"`
	Timestamp int64  `json:"timestamp"`
}

type detectResponse struct {
	Detections     []objectDetection `json:"detections"`
	ProcessingTime float64           `json:"processing_time"`
	ModelVersion   string            `json:"model_version"`
}

type objectDetection struct {
	Class       string      `json:"class"`
	Confidence  float64     `json:"confidence"`
	BoundingBox models.BBox `json:"bounding_box"`
}

type faceResponse struct {
	Found       bool        `json:"found"`
	BoundingBox models.BBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
}

func NewClient(baseURL string, config *ClientConfig, logger *zap.Logger) *Client {
	if config == nil {
		config = &ClientConfig{
			Timeout:             30 * time.Second,
			MaxRetries:          3,
			RetryDelay:          1 * time.Second,
			HealthCheckInterval: 30 * time.Second,
		}
	}

	client := &Client{
		baseURL: baseURL,
		logger:  logger,
		config:  config,
		status:  models.ModelStatusLoading,
		done:    make(chan struct{}),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}

	if baseURL == "" {
		client.setStatus(models.ModelStatusUnavailable)
		logger.Warn("model service URL not configured, detection disabled")
		return client
	}

	if err := client.HealthCheck(); err != nil {
		client.setStatus(models.ModelStatusUnavailable)
		logger.Warn("model service not available at startup", zap.Error(err))
	} else {
		client.setStatus(models.ModelStatusReady)
	}

	go client.startHealthChecker()

	return client
}

func (c *Client) Status() models.ModelStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Client) setStatus(status models.ModelStatus) {
	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()
}

func (c *Client) DetectObjects(frame *capture.Frame) ([]models.DetectedObject, error) {
	if c.Status() != models.ModelStatusReady {
		return nil, fmt.Errorf("object detection model not ready")
	}

	request, err := encodeDetectRequest(frame)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying object detection request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			time.Sleep(c.config.RetryDelay * time.Duration(attempt))
		}

		result, err := c.executeDetectRequest(request)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("object detection failed after %d attempts: %w",
		c.config.MaxRetries, lastErr)
}

func (c *Client) DetectFace(frame *capture.Frame) (*models.BBox, error) {
	if c.Status() != models.ModelStatusReady {
		return nil, fmt.Errorf("face detection model not ready")
	}

	request, err := encodeDetectRequest(frame)
	if err != nil {
		return nil, err
	}

	response, err := c.post("/detect/face", request)
	if err != nil {
		return nil, err
	}

	var face faceResponse
	if err := json.Unmarshal(response, &face); err != nil {
		return nil, fmt.Errorf("failed to decode face response: %w", err)
	}

	if !face.Found {
		return nil, nil
	}
	box := face.BoundingBox
	return &box, nil
}

func encodeDetectRequest(frame *capture.Frame) (*detectRequest, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return &detectRequest{
		ImageData: buf.Bytes(),
		Timestamp: frame.Timestamp.UnixMilli(),
	}, nil
}

func (c *Client) executeDetectRequest(request *detectRequest) ([]models.DetectedObject, error) {
	response, err := c.post("/detect/objects", request)
	if err != nil {
		return nil, err
	}

	var decoded detectResponse
	if err := json.Unmarshal(response, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	objects := make([]models.DetectedObject, 0, len(decoded.Detections))
	for _, detection := range decoded.Detections {
		objects = append(objects, models.DetectedObject{
			Class: detection.Class,
			Score: detection.Confidence,
			BBox:  detection.BoundingBox,
		})
	}

	return objects, nil
}

func (c *Client) post(path string, payload interface{}) ([]byte, error) {
	requestData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s", c.baseURL, path)
	httpRequest, err := http.NewRequest("POST", url, bytes.NewBuffer(requestData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "examguard/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model service error (status %d): %s",
			response.StatusCode, string(body))
	}

	return body, nil
}

func (c *Client) HealthCheck() error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	response, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("model service unhealthy (status %d)", response.StatusCode)
	}

	return nil
}

func (c *Client) startHealthChecker() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				c.setStatus(models.ModelStatusUnavailable)
				c.logger.Error("model service health check failed", zap.Error(err))
			} else {
				c.setStatus(models.ModelStatusReady)
				c.logger.Debug("model service health check passed")
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}
