package thumbnail

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"file-renamer/contract"
	"file-renamer/domain/mimetypes"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

const (
	thumbnailName = "thumb.jpg"
	jpegQuality   = 85
)

var (
	_ contract.Thumbnailer = (*Generator)(nil)
	_ contract.Worker      = (*Generator)(nil)
)

type job struct {
	src    string
	dst    string
	result chan error
}

// Generator renders square JPEG thumbnails on a fixed number of goroutines.
// Image decoding is CPU bound, so it never runs on the caller's goroutine.
type Generator struct {
	log     *slog.Logger
	size    int
	workers int
	jobs    chan job
	custom  string
}

func NewGenerator(log *slog.Logger, size, workers, queue int) *Generator {
	if workers < 1 {
		workers = 1
	}
	return &Generator{
		log:     log,
		size:    size,
		workers: workers,
		jobs:    make(chan job, queue),
	}
}

// UseCustom renders path once into dir and serves it for every upload.
func (g *Generator) UseCustom(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(dir, "custom_"+thumbnailName)
	if err := g.render(path, dst); err != nil {
		return fmt.Errorf("custom thumbnail %s: %w", path, err)
	}
	g.custom = dst
	return nil
}

// Run starts the pool and blocks until ctx ends.
func (g *Generator) Run(ctx context.Context) error {
	done := make(chan struct{})
	for i := 0; i < g.workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-g.jobs:
					j.result <- g.render(j.src, j.dst)
				}
			}
		}()
	}
	for i := 0; i < g.workers; i++ {
		<-done
	}
	return nil
}

// Thumbnail returns the custom thumbnail when one is configured, otherwise a
// thumbnail rendered into workDir for decodable images, otherwise "".
func (g *Generator) Thumbnail(ctx context.Context, src, workDir string) (string, error) {
	if g.custom != "" {
		return g.custom, nil
	}
	mtype, err := mimetype.DetectFile(src)
	if err != nil {
		return "", err
	}
	if !mimetypes.ToMIME(mtype.String()).Decodable() {
		return "", nil
	}

	j := job{src: src, dst: filepath.Join(workDir, thumbnailName), result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case g.jobs <- j:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-j.result:
		if err != nil {
			return "", err
		}
		return j.dst, nil
	}
}

func (g *Generator) render(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	img, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	thumb := Fit(img, g.size)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode: %w", err)
	}
	return out.Close()
}

// Fit crops the centre square of img and scales it to size x size.
func Fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Over, nil)
	return dst
}
