package detection

import "sync"

// Debouncer suppresses flickery device detections. A detection episode is
// confirmed once enough of the recent samples were positive, fires exactly
// once, and does not re-arm until the whole window has gone quiet.
type Debouncer struct {
	mu       sync.Mutex
	window   []bool
	next     int
	filled   int
	required int
	active   bool
}

func NewDebouncer(windowSize, required int) *Debouncer {
	if windowSize < 1 {
		windowSize = 1
	}
	if required < 1 {
		required = 1
	}
	if required > windowSize {
		required = windowSize
	}

	return &Debouncer{
		window:   make([]bool, windowSize),
		required: required,
	}
}

// Observe records one sample and reports whether this sample confirms a
// new detection episode.
func (d *Debouncer) Observe(detected bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.window[d.next] = detected
	d.next = (d.next + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}

	positives := 0
	for i := 0; i < d.filled; i++ {
		if d.window[i] {
			positives++
		}
	}

	if d.active {
		if positives == 0 {
			d.active = false
		}
		return false
	}

	if positives >= d.required {
		d.active = true
		return true
	}

	return false
}

// Active reports whether a confirmed episode is still in progress.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Reset clears the window and any in-progress episode.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.window {
		d.window[i] = false
	}
	d.next = 0
	d.filled = 0
	d.active = false
}
