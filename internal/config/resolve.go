package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveSibling returns the binary to use for tool (e.g. "ffprobe").
//
// Resolution order:
// 1) Explicit value
// 2) Derived from a concrete ffmpeg path (.../ffmpeg -> .../<tool>) if that binary exists
// 3) The bare tool name, resolved on PATH at launch
func ResolveSibling(explicit, ffmpegBin, tool string) string {
	return resolveSiblingWithStat(explicit, ffmpegBin, tool, os.Stat)
}

func resolveSiblingWithStat(explicit, ffmpegBin, tool string, stat func(string) (os.FileInfo, error)) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	// A bare "ffmpeg" comes from PATH; the sibling will too.
	if !strings.ContainsRune(ffmpegBin, '/') || filepath.Base(ffmpegBin) != "ffmpeg" {
		return tool
	}
	candidate := filepath.Join(filepath.Dir(ffmpegBin), tool)
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return tool
}
