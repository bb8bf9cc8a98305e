package camera

import "strconv"

// rpicamArgs builds the rpicam-vid/libcamera-vid arguments for an MJPEG stream
// on stdout. The camera rotates by 180 degrees only, so rotation is left to
// the caller for 90 and 270.
func rpicamArgs(cfg Config) []string {
	args := []string{
		"--width", strconv.Itoa(cfg.Width),
		"--height", strconv.Itoa(cfg.Height),
		"--timeout", "0", // Run indefinitely
		"--nopreview",
		"--codec", "mjpeg",
		"--output", "-",
		"--framerate", strconv.Itoa(cfg.FPS),
		// Module 3 specific optimizations
		"--awb", "auto",
		"--metering", "average",
	}
	if cfg.Rotation == 180 {
		args = append(args, "--rotation", "180")
	}
	return args
}

// transposeFilter is the ffmpeg video filter for a clockwise rotation.
func transposeFilter(rotation int) string {
	switch rotation {
	case 90:
		return "transpose=clock"
	case 180:
		return "hflip,vflip"
	case 270:
		return "transpose=cclock"
	}
	return ""
}

func v4l2Input(device string, cfg Config) []string {
	return []string{
		"-f", "v4l2",
		"-framerate", strconv.Itoa(cfg.FPS),
		"-video_size", cfg.size(),
		"-i", device,
	}
}

// avfoundationInput captures device 0. Most Mac cameras only accept 30 fps.
func avfoundationInput(cfg Config) []string {
	return []string{
		"-f", "avfoundation",
		"-framerate", "30",
		"-video_size", cfg.size(),
		"-i", "0",
	}
}

// stdinInput reads an MJPEG stream piped from another process.
func stdinInput() []string {
	return []string{"-f", "mjpeg", "-i", "-"}
}

// ffmpegArgs re-encodes input as MJPEG on stdout, rotating if needed.
func ffmpegArgs(input []string, rotation int) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	if filter := transposeFilter(rotation); filter != "" {
		args = append(args, "-vf", filter)
	}
	return append(args, "-f", "mjpeg", "-q:v", "5", "-")
}

func (c Config) size() string {
	return strconv.Itoa(c.Width) + "x" + strconv.Itoa(c.Height)
}

func argv(name string, args []string) []string {
	return append([]string{name}, args...)
}
