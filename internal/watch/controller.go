package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"cashwatch/internal/detector"
	"cashwatch/internal/feed"
	"cashwatch/internal/logger"
)

// FrameSource retrieves one current frame from a camera address. The
// returned Mat is owned by the caller.
type FrameSource interface {
	Capture(ctx context.Context, address string) (gocv.Mat, error)
}

// Detector runs inference on a frame with a confidence threshold.
type Detector interface {
	Detect(img gocv.Mat, confThres float32) ([]detector.Detection, error)
}

// Notifier delivers an alert with an optional image attachment.
type Notifier interface {
	Send(subject, body, attachmentPath string) error
}

// Publisher pushes detection events to live subscribers.
type Publisher interface {
	Publish(evt feed.Event)
}

// Camera is one configured camera: a unique name and a stream address.
type Camera struct {
	Name    string
	Address string
}

// Settings holds the controller's fixed parameters.
type Settings struct {
	Cameras       []Camera
	TargetLabel   string
	ConfThreshold float32
	PollInterval  time.Duration
	Cooldown      time.Duration
	SnapshotDir   string
}

// Controller is the per-camera polling/detection/cooldown state machine.
// It processes cameras strictly sequentially; every per-camera failure is
// logged and isolated so one bad camera never stalls the others or the
// outer loop.
type Controller struct {
	cameras     []Camera
	target      string
	confThres   float32
	interval    time.Duration
	snapshotDir string

	source    FrameSource
	detector  Detector
	notifier  Notifier
	publisher Publisher
	cooldown  *Cooldown
	logger    *logger.Logger

	clock func() time.Time
}

// NewController wires a controller from its collaborators. The cooldown
// map is initialized here, one entry per camera, before any cycle runs.
func NewController(settings Settings, source FrameSource, det Detector, notifier Notifier, publisher Publisher, log *logger.Logger) *Controller {
	names := make([]string, len(settings.Cameras))
	for i, cam := range settings.Cameras {
		names[i] = cam.Name
	}

	return &Controller{
		cameras:     settings.Cameras,
		target:      settings.TargetLabel,
		confThres:   settings.ConfThreshold,
		interval:    settings.PollInterval,
		snapshotDir: settings.SnapshotDir,
		source:      source,
		detector:    det,
		notifier:    notifier,
		publisher:   publisher,
		cooldown:    NewCooldown(settings.Cooldown, names),
		logger:      log,
	}
}

// Run cycles over all cameras until ctx is cancelled, pausing the poll
// interval after each cycle. The pause is a plain sleep, not a fixed
// cadence: a slow cycle still gets the full interval before the next one.
// It only ever returns on cancellation.
func (c *Controller) Run(ctx context.Context) error {
	for {
		c.runCycle(ctx)

		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("🛑 Poll loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// runCycle polls every camera once.
func (c *Controller) runCycle(ctx context.Context) {
	for _, cam := range c.cameras {
		c.pollCamera(ctx, cam)
	}
}

// pollCamera runs the full capture → detect → annotate → snapshot →
// notify sequence for one camera. Every failure is contained here.
func (c *Controller) pollCamera(ctx context.Context, cam Camera) {
	img, err := c.source.Capture(ctx, cam.Address)
	if err != nil {
		c.logger.Warning("❌ No frame from camera %s: %v", cam.Name, err)
		return
	}
	defer img.Close()

	detections, err := c.detector.Detect(img, c.confThres)
	if err != nil {
		c.logger.Error("Detection failed for camera %s: %v", cam.Name, err)
		return
	}

	hits := c.filterTarget(detections)
	for _, hit := range hits {
		c.logger.Info("💰 %s detected on camera %s (conf=%.2f)", detector.Title(hit.Label), cam.Name, hit.Confidence)
	}
	if len(hits) > 0 {
		if err := detector.Annotate(&img, hits); err != nil {
			// The raw frame is still worth persisting and alerting on.
			c.logger.Error("Annotation failed for camera %s: %v", cam.Name, err)
		}
	}

	// The snapshot is overwritten every cycle, detection or not, so the
	// latest frame is always inspectable on disk.
	snapshot := c.snapshotPath(cam.Name)
	if ok := gocv.IMWrite(snapshot, img); !ok {
		c.logger.Error("Failed to write snapshot %s", snapshot)
		snapshot = ""
	}

	if len(hits) == 0 {
		return
	}

	now := c.now()
	best := hits[0]
	for _, hit := range hits[1:] {
		if hit.Confidence > best.Confidence {
			best = hit
		}
	}
	c.publisher.Publish(feed.Event{
		Camera:     cam.Name,
		Label:      best.Label,
		Confidence: best.Confidence,
		Triggered:  true,
		Time:       now,
	})

	if !c.cooldown.ShouldAlert(cam.Name, now) {
		return
	}

	if err := c.notifier.Send(c.alertSubject(cam.Name), c.alertBody(now), snapshot); err != nil {
		c.logger.Error("Alert email for camera %s failed: %v", cam.Name, err)
	} else {
		c.logger.Info("📧 Alert sent for camera %s", cam.Name)
	}
	// A failed send still consumes the cooldown; the fixed poll interval
	// is the only retry mechanism.
	c.cooldown.RecordAlert(cam.Name, now)
}

// filterTarget keeps detections matching the target label (case-insensitive)
// at or above the confidence threshold.
func (c *Controller) filterTarget(detections []detector.Detection) []detector.Detection {
	var hits []detector.Detection
	for _, det := range detections {
		if strings.EqualFold(det.Label, c.target) && det.Confidence >= c.confThres {
			hits = append(hits, det)
		}
	}
	return hits
}

func (c *Controller) snapshotPath(camera string) string {
	return filepath.Join(c.snapshotDir, fmt.Sprintf("detection_%s.jpg", camera))
}

func (c *Controller) alertSubject(camera string) string {
	return fmt.Sprintf("💰 %s detected in %s", detector.Title(c.target), camera)
}

func (c *Controller) alertBody(now time.Time) string {
	return fmt.Sprintf("%s detected at %s", detector.Title(c.target), now.Format("2006-01-02 15:04:05"))
}

func (c *Controller) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}
