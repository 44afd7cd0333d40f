package compositor

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Fit returns where a src-sized image lands inside bounds when scaled by
// min(bw/w, bh/h) and centered. The result is never larger than bounds and
// never smaller than 1x1.
func Fit(src image.Point, bounds image.Rectangle) image.Rectangle {
	bw, bh := bounds.Dx(), bounds.Dy()
	if src.X <= 0 || src.Y <= 0 || bw <= 0 || bh <= 0 {
		return image.Rectangle{Min: bounds.Min, Max: bounds.Min}
	}

	scale := math.Min(float64(bw)/float64(src.X), float64(bh)/float64(src.Y))
	w := clampInt(int(math.Round(float64(src.X)*scale)), 1, bw)
	h := clampInt(int(math.Round(float64(src.Y)*scale)), 1, bh)

	x := bounds.Min.X + (bw-w)/2
	y := bounds.Min.Y + (bh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scaler names accepted by ParseScaler
var scalers = map[string]draw.Interpolator{
	"nearest":         draw.NearestNeighbor,
	"approx-bilinear": draw.ApproxBiLinear,
	"bilinear":        draw.BiLinear,
	"catmull-rom":     draw.CatmullRom,
}

// ScalerNames lists the accepted scaler names
func ScalerNames() []string {
	return []string{"nearest", "approx-bilinear", "bilinear", "catmull-rom"}
}

// ParseScaler maps a scaler name to an interpolator. Empty means
// approx-bilinear.
func ParseScaler(name string) (draw.Interpolator, error) {
	if name == "" {
		return draw.ApproxBiLinear, nil
	}
	s, ok := scalers[name]
	if !ok {
		return nil, fmt.Errorf("unknown scaler %q", name)
	}
	return s, nil
}
