package detector

import (
	"fmt"
	"image"
	"os"
	"unicode"

	"gocv.io/x/gocv"
)

// inputSize is the square input resolution the model was exported with.
const inputSize = 640

// Detection represents a single object found in a frame.
type Detection struct {
	Label      string
	Confidence float32
	Box        image.Rectangle
}

// Detector runs an ONNX object-detection model over frames.
type Detector struct {
	net          gocv.Net
	labels       []string
	nmsThreshold float32
}

// New loads the detection network from modelPath. The labels slice maps
// model class indices to class names. A load failure here is fatal to the
// caller; no detection can run without the model.
func New(modelPath string, labels []string, nmsThreshold float32) (*Detector, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no model labels configured")
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		return nil, fmt.Errorf("failed to set network backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		return nil, fmt.Errorf("failed to set network target: %w", err)
	}

	return &Detector{
		net:          net,
		labels:       labels,
		nmsThreshold: nmsThreshold,
	}, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	return d.net.Close()
}

// Detect runs the model on img and returns every detection at or above
// confThres. Boxes are in source-frame pixel coordinates, clamped to the
// frame. The returned set is freshly allocated per call.
func (d *Detector) Detect(img gocv.Mat, confThres float32) ([]Detection, error) {
	if d.net.Empty() {
		return nil, fmt.Errorf("detection network not initialized")
	}
	if img.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected model output shape %v", dims)
	}

	// Flatten (1, rows, cols) into a rows x cols matrix: four box rows
	// followed by one score row per class.
	out := output.Reshape(1, dims[1])
	defer out.Close()

	xScale := float32(img.Cols()) / float32(inputSize)
	yScale := float32(img.Rows()) / float32(inputSize)
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	boxes, scores, classIDs := decode(out, len(d.labels), confThres, xScale, yScale, bounds)
	if len(boxes) == 0 {
		return nil, nil
	}

	var detections []Detection
	for _, idx := range gocv.NMSBoxes(boxes, scores, confThres, d.nmsThreshold) {
		detections = append(detections, Detection{
			Label:      d.labels[classIDs[idx]],
			Confidence: scores[idx],
			Box:        boxes[idx],
		})
	}
	return detections, nil
}

// decode interprets a rows x cols detection matrix. Row layout is
// cx, cy, w, h followed by numClasses score rows; every column is one
// candidate. Candidates below confThres, with unknown class indices, or
// falling entirely outside bounds are dropped.
func decode(out gocv.Mat, numClasses int, confThres float32, xScale, yScale float32, bounds image.Rectangle) ([]image.Rectangle, []float32, []int) {
	var (
		boxes    []image.Rectangle
		scores   []float32
		classIDs []int
	)

	rows := out.Rows()
	if rows < 5 {
		return nil, nil, nil
	}
	classes := rows - 4
	if classes > numClasses {
		classes = numClasses
	}

	for col := 0; col < out.Cols(); col++ {
		classID := 0
		best := out.GetFloatAt(4, col)
		for class := 1; class < classes; class++ {
			if score := out.GetFloatAt(4+class, col); score > best {
				best = score
				classID = class
			}
		}
		if best < confThres {
			continue
		}

		cx := out.GetFloatAt(0, col) * xScale
		cy := out.GetFloatAt(1, col) * yScale
		w := out.GetFloatAt(2, col) * xScale
		h := out.GetFloatAt(3, col) * yScale

		box := image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		boxes = append(boxes, box)
		scores = append(scores, best)
		classIDs = append(classIDs, classID)
	}

	return boxes, scores, classIDs
}

// Title uppercases the first letter of a label for display.
func Title(label string) string {
	if label == "" {
		return label
	}
	runes := []rune(label)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
