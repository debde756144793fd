package screen

import (
	"bufio"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"

	"github.com/transcendia/platform/internal/geometry"
)

// " 0: +*DP-1 1920/598x1080/336+0+0  DP-1"
var xrandrMonitorLine = regexp.MustCompile(`^\s*(\d+):\s+\+?(\*?)(\S+)\s+(\d+)/\d+x(\d+)/\d+([+-]\d+)([+-]\d+)`)

// parseXrandrMonitors parses `xrandr --listmonitors`. X11 reports device
// pixels, so every monitor gets scale factor 1.
func parseXrandrMonitors(out string) ([]geometry.Monitor, error) {
	var ms []geometry.Monitor
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := xrandrMonitorLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		id, _ := strconv.ParseUint(m[1], 10, 32)
		w, _ := strconv.Atoi(m[4])
		h, _ := strconv.Atoi(m[5])
		x, _ := strconv.Atoi(m[6])
		y, _ := strconv.Atoi(m[7])
		ms = append(ms, geometry.Monitor{
			ID:          uint32(id),
			Name:        m[3],
			Origin:      image.Pt(x, y),
			Size:        image.Pt(w, h),
			ScaleFactor: 1,
			Primary:     m[2] == "*",
		})
	}
	if len(ms) == 0 {
		return nil, fmt.Errorf("no monitors in xrandr output")
	}
	return ms, nil
}
