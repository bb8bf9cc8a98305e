//go:build linux && arm64

package camera

import (
	"fmt"
	"os/exec"
)

// captureCommand uses libcamera-apps/rpicam-apps, which handle the Camera
// Module v3 ISP. Rotations the camera cannot do itself are piped through ffmpeg.
func captureCommand(cfg Config) ([][]string, error) {
	// rpicam-vid for newer OS, libcamera-vid for older
	name := "rpicam-vid"
	if _, err := exec.LookPath(name); err != nil {
		name = "libcamera-vid"
		if _, err := exec.LookPath(name); err != nil {
			return nil, fmt.Errorf("neither rpicam-vid nor libcamera-vid found")
		}
	}

	switch cfg.Rotation {
	case 90, 270:
		upright := cfg
		upright.Rotation = 0
		return [][]string{
			argv(name, rpicamArgs(upright)),
			argv("ffmpeg", ffmpegArgs(stdinInput(), cfg.Rotation)),
		}, nil
	}
	return [][]string{argv(name, rpicamArgs(cfg))}, nil
}
