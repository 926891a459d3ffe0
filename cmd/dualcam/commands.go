package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/photobook/dualcam/app"
	"github.com/photobook/dualcam/camera"
	"github.com/photobook/dualcam/poll"
)

// runCommand executes one command line and reports whether to quit.
func runCommand(ctrl *app.Controller, w io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "connect":
		if len(fields) != 3 {
			fmt.Fprintln(w, "usage: connect <slot> <index>")
			return false
		}
		slot, err := parseSlot(fields[1])
		if err != nil {
			fmt.Fprintln(w, err)
			return false
		}
		index, err := strconv.Atoi(fields[2])
		if err != nil {
			fmt.Fprintf(w, "bad device index %q\n", fields[2])
			return false
		}
		if err := ctrl.Connect(slot, index); err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, renderSlot(ctrl.SlotStatus(slot)))
	case "start":
		if err := ctrl.Start(); err != nil {
			if errors.Is(err, poll.ErrNoCamera) {
				fmt.Fprintln(w, "warning: connect at least one camera")
			} else {
				fmt.Fprintf(w, "start: %v\n", err)
			}
		}
	case "stop":
		if err := ctrl.Stop(); err != nil {
			fmt.Fprintf(w, "stop: %v\n", err)
		}
	case "capture":
		// Saved files and write errors are reported through the status channel.
		if _, err := ctrl.Capture(); errors.Is(err, app.ErrNoFrames) {
			fmt.Fprintln(w, "warning: no frame captured from any camera")
		}
	case "dir":
		if len(fields) > 1 {
			ctrl.SetSaveDir(strings.Join(fields[1:], " "))
		}
		fmt.Fprintf(w, "save directory: %s\n", ctrl.SaveDir())
	case "devices":
		devices, err := ctrl.Devices()
		if err != nil {
			fmt.Fprintf(w, "enumerating devices: %v\n", err)
			return false
		}
		fmt.Fprintf(w, "devices: %v\n", devices)
	case "status":
		for _, slot := range camera.Slots {
			fmt.Fprintln(w, renderSlot(ctrl.SlotStatus(slot)))
		}
		if ctrl.Running() {
			fmt.Fprintf(w, "preview running, %.1f fps\n", ctrl.Rate())
		} else {
			fmt.Fprintln(w, "preview stopped")
		}
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(w, "unknown command %q\n", fields[0])
	}
	return false
}

func parseSlot(s string) (camera.Slot, error) {
	n, err := strconv.Atoi(s)
	slot := camera.Slot(n)
	if err != nil || !slot.Valid() {
		return 0, fmt.Errorf("bad slot %q, must be 1 or 2", s)
	}
	return slot, nil
}

// renderStatus returns the text shown for a capture status.
func renderStatus(ev app.StatusEvent) string {
	switch ev.Status {
	case app.StatusNormal:
		return "ready"
	case app.StatusSaving:
		return "saving..."
	case app.StatusSuccess:
		s := "saved " + strings.Join(ev.Paths, ", ")
		if ev.Err != nil {
			s += fmt.Sprintf(" (%v)", ev.Err)
		}
		return s
	case app.StatusError:
		if ev.Err != nil {
			return fmt.Sprintf("error saving: %v", ev.Err)
		}
		return "error saving"
	}
	return ev.Status.String()
}

func renderUpdate(u poll.Update) string {
	return fmt.Sprintf("%s: %s", u.Slot, u.State)
}

func renderSlot(st camera.SlotStatus) string {
	if st.State == camera.Connected {
		return fmt.Sprintf("%s: connected to device %d", st.Slot, st.Index)
	}
	return fmt.Sprintf("%s: %s", st.Slot, st.State)
}

func printDevices(w io.Writer, devs []camera.DeviceInfo) {
	for _, dev := range devs {
		caps := ""
		if len(dev.Caps) > 0 {
			l := []string{}
			for _, c := range dev.Caps {
				l = append(l, fmt.Sprintf("%dx%d@%dfps", c.Width, c.Height, c.Framerate))
			}
			caps = fmt.Sprintf(" (caps: %s)", strings.Join(l, " "))
		}
		fmt.Fprintf(w, "%d: %s (%s)%s\n", dev.Index, dev.Name, dev.ID, caps)
	}
}

// previewWriter stores the newest preview image of each slot as a PNG file.
type previewWriter struct {
	dir string
}

func newPreviewWriter(dir string) (*previewWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating preview dir: %w", err)
	}
	return &previewWriter{dir}, nil
}

// write replaces the slot's preview file. Readers never see a partial file.
func (p *previewWriter) write(slot camera.Slot, img image.Image) error {
	path := filepath.Join(p.dir, fmt.Sprintf("camera%d.png", int(slot)))
	tmp := filepath.Join(p.dir, fmt.Sprintf(".camera%d.tmp.png", int(slot)))
	if err := imaging.Save(img, tmp); err != nil {
		return fmt.Errorf("saving preview: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming preview: %w", err)
	}
	return nil
}
