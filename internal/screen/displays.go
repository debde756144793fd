package screen

import (
	"fmt"
	"image"
	"strings"

	"howett.net/plist"

	"github.com/transcendia/platform/internal/geometry"
)

// displayProfile mirrors the parts of `system_profiler SPDisplaysDataType -xml` we read.
type displayProfile []struct {
	Items []struct {
		Displays []struct {
			Name       string `plist:"_name"`
			Pixels     string `plist:"_spdisplays_pixels"`
			Resolution string `plist:"_spdisplays_resolution"`
			Main       string `plist:"spdisplays_main"`
		} `plist:"spdisplays_ndrvs"`
	} `plist:"_items"`
}

// parseDisplayProfile turns the system_profiler plist into monitors. The main
// display is listed first so its id matches screencapture's display 1.
// screencapture captures a single display, so origins stay at zero.
func parseDisplayProfile(data []byte) ([]geometry.Monitor, error) {
	var profile displayProfile
	if _, err := plist.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode display profile: %w", err)
	}

	var main, rest []geometry.Monitor
	for _, section := range profile {
		for _, item := range section.Items {
			for _, d := range item.Displays {
				pw, ph, ok := parseDims(d.Pixels)
				if !ok {
					continue
				}
				lw, lh, ok := parseDims(d.Resolution)
				if !ok || lw == 0 {
					lw, lh = pw, ph
				}
				m := geometry.Monitor{
					Name:        d.Name,
					Size:        image.Pt(lw, lh),
					ScaleFactor: float64(pw) / float64(lw),
					Primary:     d.Main == "spdisplays_yes",
				}
				if m.Primary {
					main = append(main, m)
				} else {
					rest = append(rest, m)
				}
			}
		}
	}

	ms := append(main, rest...)
	if len(ms) == 0 {
		return nil, fmt.Errorf("no displays in system profile")
	}
	for i := range ms {
		ms[i].ID = uint32(i)
	}
	return ms, nil
}

// parseDims reads "2880 x 1800" or "1440 x 900 @ 60.00Hz".
func parseDims(s string) (w, h int, ok bool) {
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d x %d", &w, &h); err != nil {
		return 0, 0, false
	}
	return w, h, w > 0 && h > 0
}
