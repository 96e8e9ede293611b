package camera

import (
	"image"

	"gocv.io/x/gocv"
)

// Normalize returns a copy of src at width x height with the mounting flip
// applied. Upstream sources occasionally change resolution mid-stream, so the
// resize happens on every frame rather than once. src is left untouched and
// the result is owned by the caller.
func Normalize(src gocv.Mat, width, height int, flip Flip) gocv.Mat {
	sized := gocv.NewMat()
	if src.Cols() != width || src.Rows() != height {
		gocv.Resize(src, &sized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	} else {
		src.CopyTo(&sized)
	}

	code, ok := flip.code()
	if !ok {
		return sized
	}

	flipped := gocv.NewMat()
	gocv.Flip(sized, &flipped, code)
	sized.Close()
	return flipped
}
