package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when a camera is reachable but yields no usable frame.
var ErrNoFrame = errors.New("no frame from camera")

// Grabber captures single frames from camera streams. Each capture opens
// the stream, reads one frame, and releases the stream again, so a camera
// that went away simply fails this cycle and is retried on the next.
type Grabber struct {
	timeout time.Duration
}

// NewGrabber creates a Grabber. A capture attempt is abandoned after
// timeout so one stalled camera cannot hold up the whole poll cycle.
func NewGrabber(timeout time.Duration) *Grabber {
	return &Grabber{timeout: timeout}
}

type grabResult struct {
	img gocv.Mat
	err error
}

// Capture retrieves exactly one frame from address. The returned Mat is
// owned by the caller and must be closed. Failures never panic across this
// boundary; they come back as errors.
func (g *Grabber) Capture(ctx context.Context, address string) (gocv.Mat, error) {
	results := make(chan grabResult, 1)
	go func() {
		img, err := grabFrame(address)
		results <- grabResult{img: img, err: err}
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		return res.img, res.err
	case <-ctx.Done():
		go reap(results)
		return gocv.Mat{}, ctx.Err()
	case <-timer.C:
		go reap(results)
		return gocv.Mat{}, fmt.Errorf("capture timed out after %s: %w", g.timeout, ErrNoFrame)
	}
}

// reap closes a frame that arrived after its capture was abandoned.
func reap(results <-chan grabResult) {
	if res := <-results; res.err == nil {
		res.img.Close()
	}
}

func grabFrame(address string) (gocv.Mat, error) {
	stream, err := gocv.OpenVideoCapture(address)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open stream %s: %w", address, err)
	}
	defer stream.Close()

	if !stream.IsOpened() {
		return gocv.Mat{}, ErrNoFrame
	}

	img := gocv.NewMat()
	if ok := stream.Read(&img); !ok || img.Empty() {
		img.Close()
		return gocv.Mat{}, ErrNoFrame
	}
	return img, nil
}
