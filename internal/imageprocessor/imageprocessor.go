package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Model input geometry.
const (
	Width    = 224
	Height   = 224
	Channels = 3
)

// MaxPixels bounds the decoded size of an upload; compressed formats can
// declare far more pixels than their byte size suggests.
const MaxPixels = 40_000_000

// ErrDecode is matched by every error returned from Decode.
var ErrDecode = errors.New("image could not be decoded")

// ErrTooManyPixels is wrapped by the DecodeError for images above MaxPixels.
var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// DecodeError reports bytes that are not a supported image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return ErrDecode.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDecode.Error(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Tensor is a batch of one NHWC image with RGB channels scaled to [0, 1].
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// At returns the value of channel c at pixel (x, y).
func (t *Tensor) At(x, y, c int) float32 {
	return t.Data[(y*t.Shape[2]+x)*t.Shape[3]+c]
}

// Decode turns uploaded bytes into the classifier input tensor: decoded with
// EXIF orientation applied, alpha dropped, stretched to 224x224 with 2x2
// bilinear sampling, RGB ordered and scaled by 1/255.
func Decode(raw []byte) (*Tensor, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Err: errors.New("empty payload")}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)}
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}

	return fromRGBA(resize(img)), nil
}

// resize interpolates between the 2x2 source pixels around each sample point
// at any scale factor, without widening the kernel when shrinking.
func resize(img image.Image) *image.RGBA {
	opaque := imaging.Clone(img)
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}

	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), opaque, opaque.Bounds(), draw.Src, nil)
	return dst
}

// fromRGBA expects a fully opaque image, so premultiplied values equal the stored colour.
func fromRGBA(img *image.RGBA) *Tensor {
	t := &Tensor{
		Shape: [4]int{1, Height, Width, Channels},
		Data:  make([]float32, Height*Width*Channels),
	}

	i := 0
	for y := 0; y < Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+Width*4]
		for x := 0; x < Width; x++ {
			px := row[x*4 : x*4+4]
			t.Data[i] = float32(px[0]) / 255.0
			t.Data[i+1] = float32(px[1]) / 255.0
			t.Data[i+2] = float32(px[2]) / 255.0
			i += Channels
		}
	}
	return t
}
