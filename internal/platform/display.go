// Package platform locates the local desktop a source captures from.
package platform

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// X11SocketDir is where X servers create their listening sockets.
const X11SocketDir = "/tmp/.X11-unix"

// ErrNoDisplay is returned when no X display can be found.
var ErrNoDisplay = errors.New("platform: no display available; use --display or set DISPLAY")

// ResolveDisplay picks the X display to use: the explicit flag value, then
// $DISPLAY, then the lowest-numbered server with a socket in socketDir.
func ResolveDisplay(flag, socketDir string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if d := os.Getenv("DISPLAY"); d != "" {
		return d, nil
	}
	nums, err := runningDisplays(socketDir)
	if err != nil {
		return "", err
	}
	if len(nums) == 0 {
		return "", ErrNoDisplay
	}
	return fmt.Sprintf(":%d", nums[0]), nil
}

func runningDisplays(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("platform: scan %s: %w", dir, err)
	}
	var nums []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "X") {
			continue
		}
		if n, err := strconv.Atoi(name[1:]); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	return nums, nil
}
