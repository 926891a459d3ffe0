//go:build unix

package jpegdir_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/photobook/dualcam/camera/jpegdir"
)

func TestCloseWaitsForExit(t *testing.T) {
	needShell(t)
	pidFile := filepath.Join(t.TempDir(), "pid")
	args := func(string) []string {
		return []string{"-c", fmt.Sprintf("echo $$ > %s.tmp && mv %s.tmp %s && exec sleep 30", pidFile, pidFile, pidFile)}
	}
	s, err := jpegdir.Start("sh", args, "", jpegdir.Opts{CloseTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var pid int
	deadline := time.Now().Add(5 * time.Second)
	for {
		buf, err := os.ReadFile(pidFile)
		if err == nil {
			pid, err = strconv.Atoi(strings.TrimSpace(string(buf)))
			if err != nil {
				t.Fatalf("parsing pid: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			s.Close()
			t.Fatalf("program did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Close()
	// The program was killed and reaped before Close returned.
	if err := syscall.Kill(pid, 0); !errors.Is(err, syscall.ESRCH) {
		t.Fatalf("program %d still exists after close: %v", pid, err)
	}
}
