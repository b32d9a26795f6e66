package imgproc

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// OpenHorizontal performs a morphological opening of a binarized image with a
// kernelWidth×1 rectangle applied iterations times (all erosions, then all
// dilations). Only horizontal runs at least kernelWidth long survive, which
// isolates table rule lines from text.
//
// The constant border takes OpenCV's morphology default, so pixels outside the
// image never erode a run touching the edge.
func OpenHorizontal(g *image.Gray, kernelWidth, iterations int) (*image.Gray, error) {
	const op = "imgproc.OpenHorizontal"

	if kernelWidth <= 1 || iterations <= 0 {
		return Threshold(g, 127)
	}
	return apply(op, g, func(src gocv.Mat, dst *gocv.Mat) {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernelWidth, 1))
		defer kernel.Close()
		gocv.MorphologyExWithParams(src, dst, gocv.MorphOpen, kernel, iterations, gocv.BorderConstant)
	})
}

// Components returns the bounding boxes of the outer contours of a binarized
// image, ordered top to bottom, then left to right.
func Components(g *image.Gray) ([]image.Rectangle, error) {
	const op = "imgproc.Components"

	if g.Rect.Empty() {
		return nil, nil
	}
	src, err := fromGray(g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close()

	contours := gocv.FindContours(src, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	boxes := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		boxes = append(boxes, gocv.BoundingRect(contours.At(i)))
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].Min.Y != boxes[j].Min.Y {
			return boxes[i].Min.Y < boxes[j].Min.Y
		}
		return boxes[i].Min.X < boxes[j].Min.X
	})
	return boxes, nil
}

// RuleTops returns the top edge of every horizontal rule found in a binarized
// image, in ascending order.
func RuleTops(g *image.Gray, kernelWidth, iterations int) ([]int, error) {
	opened, err := OpenHorizontal(g, kernelWidth, iterations)
	if err != nil {
		return nil, err
	}
	boxes, err := Components(opened)
	if err != nil {
		return nil, err
	}
	tops := make([]int, 0, len(boxes))
	for _, b := range boxes {
		tops = append(tops, b.Min.Y)
	}
	return tops, nil
}
