//go:build darwin

package camera

// captureCommand streams the default macOS webcam through ffmpeg so the service
// can be developed against real camera input.
func captureCommand(cfg Config) ([][]string, error) {
	return [][]string{argv("ffmpeg", ffmpegArgs(avfoundationInput(cfg), cfg.Rotation))}, nil
}
