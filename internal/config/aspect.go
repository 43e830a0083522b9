package config

import "strings"

// ParseAspectRatio maps a supported aspect ratio to its output resolution.
func ParseAspectRatio(ratio string) (width, height int, ok bool) {
	switch strings.TrimSpace(ratio) {
	case "9:16":
		return 1080, 1920, true
	case "16:9":
		return 1920, 1080, true
	case "1:1":
		return 1080, 1080, true
	default:
		return 0, 0, false
	}
}
