package media

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lessonlens/lessonlens/pkg/log"
)

// Info describes a lesson video well enough to serve it: how long it runs and
// what MIME type the player should be handed.
type Info struct {
	Path     string
	MimeType string
	Duration *float64
}

type ffprobe struct {
	probeCmd string
	filePath string
}

func NewFfprobe(mediaPath string) ffprobe {
	return ffprobe{
		probeCmd: "ffprobe",
		filePath: filepath.Clean(mediaPath),
	}
}

// Probe reads the container duration and format. A missing file returns
// ok=false without an error: a lesson without video is reviewable, it just has
// no playback clock.
func (ff ffprobe) Probe() (Info, bool, error) {
	if _, err := os.Stat(ff.filePath); err != nil {
		if os.IsNotExist(err) {
			return Info{}, false, nil
		}
		return Info{}, false, err
	}

	info := Info{
		Path:     ff.filePath,
		MimeType: mimeTypeForExt(filepath.Ext(ff.filePath)),
	}

	cmdPath, err := exec.LookPath(ff.probeCmd)
	if err != nil {
		// no ffprobe on the host; serve the video without a known duration
		log.Warn("ffprobe not found, skipping duration probe for %s", ff.filePath)
		return info, true, nil
	}
	cmd := exec.Command(cmdPath, ff.args()...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe on %s: %v", ff.filePath, err)
		return info, true, nil
	}

	var probeResult struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		log.Error("Failed to parse ffprobe output for %s: %v", ff.filePath, err)
		return info, true, nil
	}

	if d, err := strconv.ParseFloat(probeResult.Format.Duration, 64); err == nil && d > 0 {
		info.Duration = &d
	}
	if info.MimeType == "" {
		info.MimeType = mimeTypeForFormat(probeResult.Format.FormatName)
	}
	return info, true, nil
}

func (ffprobe) probeArgs() []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
	}
}

func (ff ffprobe) args() []string {
	return append(ff.probeArgs(), ff.filePath)
}

func mimeTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	default:
		return ""
	}
}

// mimeTypeForFormat maps ffprobe's comma separated format_name to a MIME type.
func mimeTypeForFormat(formatName string) string {
	for _, name := range strings.Split(formatName, ",") {
		switch strings.TrimSpace(name) {
		case "mp4", "m4a", "mov":
			return "video/mp4"
		case "webm":
			return "video/webm"
		case "matroska":
			return "video/x-matroska"
		}
	}
	return "application/octet-stream"
}
