// Package snapshot implements C2: violation snapshot capture and storage,
// grounded on original_source/snapshot_manager.py's capture_violation_snapshot
// (crop+10% padding, a 60px banner, JPEG quality 85, company/camera/date
// path layout) and internal/platform/paths.SafeJoin for the write path.
//
// No third-party image library appears anywhere in the examples corpus, so
// this component is built on the standard library's image/image/draw/
// image/jpeg packages, plus golang.org/x/image/font for the banner text
// (the standard extended module for glyph rendering); see DESIGN.md.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/technosupport/ts-vms/internal/platform/paths"
)

var ErrEmptyCropRegion = errors.New("clamped crop region is empty")

const (
	bannerHeight = 60
	jpegQuality  = 85
	paddingRatio = 0.10
)

type BBox struct {
	X1, Y1, X2, Y2 int
}

// Store writes and prunes violation snapshots under Base.
type Store struct {
	Base string
}

func NewStore(base string) *Store {
	return &Store{Base: base}
}

// Save implements spec.md §4.2's Save operation. The returned path is
// relative to Base so the base directory can be relocated without
// invalidating stored Violation.image_path values.
func (s *Store) Save(ctx context.Context, frame image.Image, companyID, cameraID, personID, violationType string, bbox BBox, eventID string) (string, error) {
	cropped, err := crop(frame, bbox)
	if err != nil {
		return "", err
	}
	banner := withBanner(cropped, violationType)

	now := time.Now().UTC()
	dateStr := now.Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s_%d.jpg", personID, violationType, now.Unix())
	relDir := filepath.Join(companyID, cameraID, dateStr)

	dir, err := paths.SafeJoin(s.Base, relDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}

	finalPath := filepath.Join(dir, filename)
	tmpPath := finalPath + ".tmp-" + strconv.FormatInt(now.UnixNano(), 10)

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(f, banner, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	return filepath.Join(relDir, filename), nil
}

// crop expands bbox by 10% per axis, clamps to frame bounds, and fails if
// the result is empty (spec.md §4.2 step 1).
func crop(frame image.Image, bbox BBox) (image.Image, error) {
	bounds := frame.Bounds()
	w, h := bbox.X2-bbox.X1, bbox.Y2-bbox.Y1
	padX := int(float64(w) * paddingRatio)
	padY := int(float64(h) * paddingRatio)

	x1 := max(bounds.Min.X, bbox.X1-padX)
	y1 := max(bounds.Min.Y, bbox.Y1-padY)
	x2 := min(bounds.Max.X, bbox.X2+padX)
	y2 := min(bounds.Max.Y, bbox.Y2+padY)

	if x2 <= x1 || y2 <= y1 {
		return nil, ErrEmptyCropRegion
	}

	rect := image.Rect(0, 0, x2-x1, y2-y1)
	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, frame, image.Pt(x1, y1), draw.Src)
	return dst, nil
}

// withBanner prepends a fixed-height red banner carrying the localized
// violation label and a timestamp, matching the teacher's panel+vstack
// layout (original_source/snapshot_manager.py).
func withBanner(person image.Image, violationType string) image.Image {
	pb := person.Bounds()
	width := pb.Dx()
	out := image.NewRGBA(image.Rect(0, 0, width, pb.Dy()+bannerHeight))

	banner := image.Rect(0, 0, width, bannerHeight)
	draw.Draw(out, banner, &image.Uniform{C: color.RGBA{R: 180, G: 0, B: 0, A: 255}}, image.Point{}, draw.Src)
	drawLabel(out, violationLabel(violationType), 10, 25)
	drawLabel(out, time.Now().UTC().Format("2006-01-02 15:04:05"), 10, 50)

	draw.Draw(out, image.Rect(0, bannerHeight, width, bannerHeight+pb.Dy()), person, pb.Min, draw.Src)
	return out
}

var violationLabels = map[string]string{
	"no_helmet": "HELMET MISSING",
	"no_vest":   "SAFETY VEST MISSING",
	"no_shoes":  "SAFETY SHOES MISSING",
}

func violationLabel(violationType string) string {
	if label, ok := violationLabels[violationType]; ok {
		return label
	}
	return violationType
}

// Cleanup implements spec.md §4.2's Cleanup: remove whole date directories
// older than maxAgeDays, skipping unparsable directory names silently.
func (s *Store) Cleanup(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	deleted := 0

	companies, err := os.ReadDir(s.Base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	for _, company := range companies {
		if !company.IsDir() {
			continue
		}
		companyDir := filepath.Join(s.Base, company.Name())
		cameras, err := os.ReadDir(companyDir)
		if err != nil {
			continue
		}
		for _, camera := range cameras {
			if !camera.IsDir() {
				continue
			}
			cameraDir := filepath.Join(companyDir, camera.Name())
			dates, err := os.ReadDir(cameraDir)
			if err != nil {
				continue
			}
			for _, dateDir := range dates {
				if !dateDir.IsDir() {
					continue
				}
				t, err := time.Parse("2006-01-02", dateDir.Name())
				if err != nil {
					continue
				}
				if t.Before(cutoff) {
					full := filepath.Join(cameraDir, dateDir.Name())
					if err := os.RemoveAll(full); err == nil {
						deleted++
						log.Printf("[snapshot] removed expired directory %s", full)
					}
				}
			}
		}
	}
	if deleted > 0 {
		log.Printf("[snapshot] cleanup removed %d directories older than %d days", deleted, maxAgeDays)
	}
	return deleted, nil
}

// drawLabel renders text onto img with its baseline at (x, y) using the
// fixed 7x13 bitmap face from golang.org/x/image/font/basicfont — no
// third-party font-rendering library appears in the examples corpus, and
// x/image is the standard extended module for this, not a hand-rolled
// glyph rasterizer (see DESIGN.md).
func drawLabel(img draw.Image, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
