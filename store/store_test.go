package store_test

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/store"
)

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

func newWriter(t *testing.T, opts store.WriterOpts) *store.Writer {
	t.Helper()
	opts.Now = func() time.Time { return testTime }
	w, err := store.NewWriter(&opts)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return w
}

func testFrame(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{0x20, 0x40, 0x80, 0xff})
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFilename(t *testing.T) {
	w := newWriter(t, store.WriterOpts{})
	if s := w.Filename(testTime, camera.Slot2); s != "20240102_030405_camera2.jpg" {
		t.Fatalf("filename, got %q", s)
	}
	w = newWriter(t, store.WriterOpts{Format: ".PNG", SingleCamera: true})
	if s := w.Filename(testTime, camera.Slot1); s != "20240102_030405.png" {
		t.Fatalf("single camera filename, got %q", s)
	}
}

func TestNewWriterUnsupported(t *testing.T) {
	if _, err := store.NewWriter(&store.WriterOpts{Format: "webp"}); err == nil {
		t.Fatalf("missing error for unsupported format")
	}
}

func TestSaveNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	w := newWriter(t, store.WriterOpts{})
	paths, err := w.SaveCaptured(dir, nil, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("saved %v, expected nothing", paths)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("directory created without frames: %v", err)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	w := newWriter(t, store.WriterOpts{})

	paths, err := w.SaveCaptured(dir, testFrame(64, 48), nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	expected := []string{filepath.Join(dir, "20240102_030405_camera1.jpg")}
	if !reflect.DeepEqual(paths, expected) {
		t.Fatalf("paths, got %v, expected %v", paths, expected)
	}
	img, err := imaging.Open(paths[0])
	if err != nil {
		t.Fatalf("opening saved image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("saved image size, got %v", b)
	}

	// Nothing captured since: the directory is left as is.
	before := listDir(t, dir)
	paths, err = w.SaveCaptured(dir, nil, nil)
	if err != nil || len(paths) != 0 {
		t.Fatalf("second save, got %v, %v", paths, err)
	}
	if after := listDir(t, dir); !reflect.DeepEqual(before, after) {
		t.Fatalf("directory changed, got %v, expected %v", after, before)
	}
}

func TestSaveBoth(t *testing.T) {
	dir := t.TempDir()
	w := newWriter(t, store.WriterOpts{Format: "png"})
	paths, err := w.SaveCaptured(dir, testFrame(8, 8), testFrame(16, 8))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	expected := []string{
		filepath.Join(dir, "20240102_030405_camera1.png"),
		filepath.Join(dir, "20240102_030405_camera2.png"),
	}
	if !reflect.DeepEqual(paths, expected) {
		t.Fatalf("paths, got %v, expected %v", paths, expected)
	}
}

func TestSaveSameSecond(t *testing.T) {
	dir := t.TempDir()
	w := newWriter(t, store.WriterOpts{})
	for i, name := range []string{
		"20240102_030405_camera1.jpg",
		"20240102_030405_camera1-2.jpg",
		"20240102_030405_camera1-3.jpg",
	} {
		paths, err := w.SaveCaptured(dir, testFrame(8, 8), nil)
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		if len(paths) != 1 || filepath.Base(paths[0]) != name {
			t.Fatalf("save %d, got %v, expected %s", i, paths, name)
		}
	}
}

func TestSaveDirectoryError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	w := newWriter(t, store.WriterOpts{})
	paths, err := w.SaveCaptured(filepath.Join(file, "photos"), testFrame(8, 8), testFrame(8, 8))
	if !errors.Is(err, store.ErrDirectory) {
		t.Fatalf("got %v, expected ErrDirectory", err)
	}
	if len(paths) != 0 {
		t.Fatalf("paths written despite error: %v", paths)
	}
}

func TestSaveWriteError(t *testing.T) {
	dir := t.TempDir()
	w := newWriter(t, store.WriterOpts{Format: "png"})

	// PNG cannot encode an empty image, the second frame is still written.
	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	paths, err := w.SaveCaptured(dir, empty, testFrame(8, 8))
	if !errors.Is(err, store.ErrWrite) {
		t.Fatalf("got %v, expected ErrWrite", err)
	}
	expected := []string{filepath.Join(dir, "20240102_030405_camera2.png")}
	if !reflect.DeepEqual(paths, expected) {
		t.Fatalf("paths, got %v, expected %v", paths, expected)
	}
	if names := listDir(t, dir); !reflect.DeepEqual(names, []string{"20240102_030405_camera2.png"}) {
		t.Fatalf("partial file left behind: %v", names)
	}

	// The name of the failed frame is free again.
	paths, err = w.SaveCaptured(dir, testFrame(8, 8), nil)
	if err != nil {
		t.Fatalf("save after failure: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "20240102_030405_camera1.png" {
		t.Fatalf("paths after failure, got %v", paths)
	}
}
