//go:build !darwin && !(linux && arm64)

package camera

// captureCommand reads the first V4L2 device through ffmpeg.
func captureCommand(cfg Config) ([][]string, error) {
	return [][]string{argv("ffmpeg", ffmpegArgs(v4l2Input("/dev/video0", cfg), cfg.Rotation))}, nil
}
