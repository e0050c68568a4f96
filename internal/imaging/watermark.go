package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// Watermark layout.
const (
	watermarkPadding = 20
	shadowOffset     = 2
	watermarkOpacity = 128
	jpegQuality      = 90
	maxWidth         = 1600
	minDimension     = 100
)

// ErrImageTooSmall is returned for images too small to carry a watermark.
var ErrImageTooSmall = errors.New("image too small")

// Watermark decodes data, stamps text in the bottom-right corner with a
// drop shadow and re-encodes it as JPEG. Images wider than maxWidth are
// scaled down first.
func Watermark(data []byte, text string) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() < minDimension || b.Dy() < minDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, b.Dx(), b.Dy())
	}

	w, h := b.Dx(), b.Dy()
	if w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	if text != "" {
		stamp(dst, text)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// stamp renders text with the built-in bitmap face and scales the glyph
// mask to roughly 1/24 of the image height.
func stamp(dst *image.RGBA, text string) {
	face := basicfont.Face7x13
	textW := font.MeasureString(face, text).Ceil()
	textH := face.Metrics().Height.Ceil()
	if textW == 0 || textH == 0 {
		return
	}

	mask := image.NewAlpha(image.Rect(0, 0, textW, textH))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	bounds := dst.Bounds()
	targetH := bounds.Dy() / 24
	if targetH < textH {
		targetH = textH
	}
	targetW := textW * targetH / textH
	if avail := bounds.Dx() - 2*watermarkPadding - shadowOffset; targetW > avail {
		targetW = avail
		targetH = textH * targetW / textW
	}
	if targetW <= 0 || targetH <= 0 {
		return
	}

	scaled := image.NewAlpha(image.Rect(0, 0, targetW, targetH))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), draw.Src, nil)

	x := bounds.Max.X - targetW - watermarkPadding
	y := bounds.Max.Y - targetH - watermarkPadding
	at := image.Rect(x, y, x+targetW, y+targetH)

	shadow := image.NewUniform(color.NRGBA{A: watermarkOpacity / 2})
	draw.DrawMask(dst, at.Add(image.Pt(shadowOffset, shadowOffset)), shadow, image.Point{}, scaled, image.Point{}, draw.Over)

	fill := image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: watermarkOpacity})
	draw.DrawMask(dst, at, fill, image.Point{}, scaled, image.Point{}, draw.Over)
}
