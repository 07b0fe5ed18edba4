package detector

import (
	"image"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// buildOutput creates a detection matrix with the given candidate columns.
// Each candidate is (cx, cy, w, h, scores...).
func buildOutput(t *testing.T, candidates [][]float32) gocv.Mat {
	t.Helper()

	rows := len(candidates[0])
	out := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, len(candidates), gocv.MatTypeCV32F)
	for col, candidate := range candidates {
		for row, value := range candidate {
			out.SetFloatAt(row, col, value)
		}
	}
	return out
}

func TestDecode(t *testing.T) {
	// One class; three candidates: confident, below threshold, out of frame.
	out := buildOutput(t, [][]float32{
		{100, 100, 40, 40, 0.9},
		{200, 200, 40, 40, 0.1},
		{-100, -100, 20, 20, 0.8},
	})
	defer out.Close()

	bounds := image.Rect(0, 0, 640, 640)
	boxes, scores, classIDs := decode(out, 1, 0.25, 1, 1, bounds)

	if len(boxes) != 1 {
		t.Fatalf("expected 1 box, got %d", len(boxes))
	}
	want := image.Rect(80, 80, 120, 120)
	if boxes[0] != want {
		t.Errorf("expected box %v, got %v", want, boxes[0])
	}
	if scores[0] != 0.9 {
		t.Errorf("expected score 0.9, got %v", scores[0])
	}
	if classIDs[0] != 0 {
		t.Errorf("expected class 0, got %d", classIDs[0])
	}
}

func TestDecodePicksBestClass(t *testing.T) {
	out := buildOutput(t, [][]float32{
		{320, 320, 100, 100, 0.3, 0.7},
	})
	defer out.Close()

	bounds := image.Rect(0, 0, 640, 640)
	_, scores, classIDs := decode(out, 2, 0.25, 1, 1, bounds)

	if len(classIDs) != 1 || classIDs[0] != 1 {
		t.Fatalf("expected class 1, got %v", classIDs)
	}
	if scores[0] != 0.7 {
		t.Errorf("expected score 0.7, got %v", scores[0])
	}
}

func TestDecodeScalesAndClamps(t *testing.T) {
	out := buildOutput(t, [][]float32{
		{600, 600, 200, 200, 0.9},
	})
	defer out.Close()

	// A 1280x720 frame fed through a 640x640 input.
	bounds := image.Rect(0, 0, 1280, 720)
	boxes, _, _ := decode(out, 1, 0.25, 2.0, 1.125, bounds)

	if len(boxes) != 1 {
		t.Fatalf("expected 1 box, got %d", len(boxes))
	}
	if !boxes[0].In(bounds) {
		t.Errorf("expected box %v to be clamped inside %v", boxes[0], bounds)
	}
	if boxes[0].Max.X != 1280 {
		t.Errorf("expected box clamped at right edge, got %v", boxes[0])
	}
}

func TestDecodeSkipsUnknownClasses(t *testing.T) {
	// Two score rows but only one configured label; the second class has
	// the higher score yet no name, so only class 0 candidates survive.
	out := buildOutput(t, [][]float32{
		{100, 100, 40, 40, 0.9, 0.0},
		{200, 200, 40, 40, 0.0, 0.95},
	})
	defer out.Close()

	bounds := image.Rect(0, 0, 640, 640)
	boxes, _, classIDs := decode(out, 1, 0.25, 1, 1, bounds)

	if len(boxes) != 1 {
		t.Fatalf("expected 1 box, got %d", len(boxes))
	}
	if classIDs[0] != 0 {
		t.Errorf("expected class 0, got %d", classIDs[0])
	}
}

func TestNewMissingModel(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.onnx"), []string{"cash"}, 0.45)
	if err == nil {
		t.Fatal("expected an error for a missing model file")
	}
}

func TestNewRequiresLabels(t *testing.T) {
	_, err := New("model.onnx", nil, 0.45)
	if err == nil {
		t.Fatal("expected an error when no labels are configured")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cash", "Cash"},
		{"Cash", "Cash"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Title(tt.in); got != tt.want {
			t.Errorf("Title(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
