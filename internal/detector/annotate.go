package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var annotationColor = color.RGBA{G: 255}

// Annotate draws each detection's bounding box and a "<Label> <conf>" text
// label just above its top-left corner onto img. Pixels outside the drawn
// regions are left untouched.
func Annotate(img *gocv.Mat, detections []Detection) error {
	for _, det := range detections {
		if err := gocv.Rectangle(img, det.Box, annotationColor, 2); err != nil {
			return fmt.Errorf("failed to draw box: %w", err)
		}

		text := fmt.Sprintf("%s %.2f", Title(det.Label), det.Confidence)
		origin := image.Pt(det.Box.Min.X, det.Box.Min.Y-10)
		if err := gocv.PutText(img, text, origin, gocv.FontHersheySimplex, 0.5, annotationColor, 2); err != nil {
			return fmt.Errorf("failed to draw label: %w", err)
		}
	}
	return nil
}
