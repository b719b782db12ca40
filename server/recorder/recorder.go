package recorder

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/models"
	"go.uber.org/zap"
)

// Store persists finished recordings. Implemented by the storage layer.
type Store interface {
	SaveRecording(key string, data []byte, meta models.RecordingMeta) error
}

// Controller captures the proctoring recording as a motion-JPEG chunk
// stream. Capture runs on its own goroutine; Pause suspends chunk
// collection without tearing the stream down.
type Controller struct {
	source   capture.VideoSource
	store    Store
	interval time.Duration
	quality  int
	logger   *zap.Logger

	mu        sync.Mutex
	chunks    [][]byte
	recording bool
	paused    bool
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewController(source capture.VideoSource, store Store, interval time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		source:   source,
		store:    store,
		interval: interval,
		quality:  70,
		logger:   logger,
	}
}

func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return fmt.Errorf("recorder already running")
	}

	c.recording = true
	c.paused = false
	c.chunks = nil
	c.done = make(chan struct{})

	c.wg.Add(1)
	go c.captureLoop(c.done)

	c.logger.Info("recording started",
		zap.Duration("chunk_interval", c.interval))
	return nil
}

func (c *Controller) captureLoop(done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.captureChunk()
		case <-done:
			return
		}
	}
}

func (c *Controller) captureChunk() {
	c.mu.Lock()
	paused := c.paused
	c.mu.Unlock()

	if paused || !c.source.Active() {
		return
	}

	frame, err := c.source.Read()
	if err != nil {
		c.logger.Debug("recording chunk capture failed", zap.Error(err))
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: c.quality}); err != nil {
		c.logger.Warn("recording chunk encode failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.recording {
		c.chunks = append(c.chunks, buf.Bytes())
	}
	c.mu.Unlock()
}

func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ChunkCount reports how many chunks have been captured so far.
func (c *Controller) ChunkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

// Stop ends capture and returns the assembled recording data. Safe to
// call when not recording; returns whatever was captured.
func (c *Controller) Stop() []byte {
	c.mu.Lock()
	if c.recording {
		c.recording = false
		close(c.done)
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.chunks, nil)
}

// StopAndUpload ends capture and persists the recording in the
// background, mirroring how a browser upload lands some time after the
// session asked for it. The returned key identifies the recording.
func (c *Controller) StopAndUpload(key, testCode, studentName string) string {
	data := c.Stop()
	chunkCount := c.ChunkCount()

	go func() {
		meta := models.RecordingMeta{
			Key:         key,
			Size:        int64(len(data)),
			CreatedAt:   time.Now(),
			TestCode:    testCode,
			StudentName: studentName,
		}
		if err := c.store.SaveRecording(key, data, meta); err != nil {
			c.logger.Error("failed to persist recording",
				zap.String("key", key),
				zap.Error(err))
			return
		}
		c.logger.Info("recording persisted",
			zap.String("key", key),
			zap.Int("bytes", len(data)),
			zap.Int("chunks", chunkCount))
	}()

	return key
}
