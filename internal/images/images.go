package images

import (
	"bytes"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"

	// Decoder registrations for formats the stdlib does not cover. HEIC is
	// what phone uploads arrive in; everything stored comes back out as JPEG.
	_ "github.com/gen2brain/heic"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/png"
)

const (
	// OriginalPrefix and ThumbPrefix keep originals and derived thumbnails
	// under distinct object storage paths.
	OriginalPrefix = "recipes/originals"
	ThumbPrefix    = "recipes/thumbs"

	thumbMaxDim = 600
	jpegQuality = 90
)

// Processed holds the normalised image bytes and the storage keys they belong
// under. Both variants are JPEG regardless of the uploaded format.
type Processed struct {
	OriginalKey string
	ThumbKey    string
	Original    []byte
	Thumb       []byte
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonWordRe    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// Slug derives a filesystem-safe name from a recipe title: whitespace collapses
// to underscores and non-word characters are stripped.
func Slug(title string) string {
	slug := whitespaceRe.ReplaceAllString(strings.TrimSpace(title), "_")
	slug = nonWordRe.ReplaceAllString(slug, "")
	if slug == "" {
		slug = "recipe"
	}
	return slug
}

// Process decodes an uploaded picture, applies EXIF rotation to the pixel data,
// transcodes to JPEG and derives a thumbnail bounded to 600x600. The returned
// keys embed a slug of the recipe title plus a short random disambiguator so
// identically titled recipes never collide and the uploaded filename never
// leaks into storage.
func Process(title string, data []byte) (*Processed, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = applyOrientation(img, readOrientation(data))

	original, err := encodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	thumb, err := encodeJPEG(imaging.Fit(img, thumbMaxDim, thumbMaxDim, imaging.Lanczos))
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	name := fmt.Sprintf("%s_%s.jpg", Slug(title), randomSuffix())
	return &Processed{
		OriginalKey: OriginalPrefix + "/" + name,
		ThumbKey:    ThumbPrefix + "/" + name,
		Original:    original,
		Thumb:       thumb,
	}, nil
}

// ThumbKeyFor maps a stored original key to its thumbnail key by the shared
// path convention, used when resolving URLs for existing rows.
func ThumbKeyFor(originalKey string) string {
	return strings.Replace(originalKey, OriginalPrefix+"/", ThumbPrefix+"/", 1)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// readOrientation returns the EXIF orientation value, or 1 when the upload
// carries no usable EXIF block. Many viewers ignore the tag, so the rotation
// has to be baked into the pixels before thumbnailing.
func readOrientation(data []byte) int {
	meta, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	value, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return value
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 3: // upside down
		return imaging.Rotate180(img)
	case 6: // rotated 90 clockwise
		return imaging.Rotate270(img)
	case 8: // rotated 90 counterclockwise
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func encodeJPEG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
