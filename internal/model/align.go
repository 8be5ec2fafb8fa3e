package model

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// arcfaceTemplate holds the reference landmark positions for a 112×112 crop.
var arcfaceTemplate = [5][2]float64{
	{38.2946, 51.6963},
	{73.5318, 51.5014},
	{56.0252, 71.7366},
	{41.5493, 92.3655},
	{70.7299, 92.2041},
}

// estimateSimilarity returns the least-squares similarity transform
// (rotation, uniform scale, translation) mapping src onto dst.
func estimateSimilarity(src, dst [5][2]float64) f64.Aff3 {
	var sx, sy, dx, dy float64
	for i := range src {
		sx += src[i][0]
		sy += src[i][1]
		dx += dst[i][0]
		dy += dst[i][1]
	}
	n := float64(len(src))
	sx, sy, dx, dy = sx/n, sy/n, dx/n, dy/n

	var num1, num2, den float64
	for i := range src {
		x, y := src[i][0]-sx, src[i][1]-sy
		u, v := dst[i][0]-dx, dst[i][1]-dy
		num1 += x*u + y*v
		num2 += x*v - y*u
		den += x*x + y*y
	}
	if den == 0 {
		return f64.Aff3{1, 0, dx - sx, 0, 1, dy - sy}
	}

	a := num1 / den
	b := num2 / den
	return f64.Aff3{
		a, -b, dx - (a*sx - b*sy),
		b, a, dy - (b*sx + a*sy),
	}
}

// alignFace crops the face described by landmarks into a size×size image with
// the landmarks moved onto the ArcFace template. Areas outside the source are black.
func alignFace(img *image.RGBA, landmarks [5][2]float32, size int) *image.RGBA {
	ratio := float64(size) / 112
	var src, dst [5][2]float64
	for i := range landmarks {
		src[i] = [2]float64{float64(landmarks[i][0]), float64(landmarks[i][1])}
		dst[i] = [2]float64{arcfaceTemplate[i][0] * ratio, arcfaceTemplate[i][1] * ratio}
	}

	m := estimateSimilarity(src, dst)

	// draw samples at pixel centres, landmarks are in integer pixel coordinates
	m[2] += 0.5 - 0.5*(m[0]+m[1])
	m[5] += 0.5 - 0.5*(m[3]+m[4])

	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Transform(out, m, img, img.Bounds(), draw.Src, nil)
	return out
}
