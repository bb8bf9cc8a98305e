package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

var ErrNoLog = errors.New("app has no log_path")

const (
	// DefaultTailLines is used when Tail is asked for zero lines.
	DefaultTailLines = 9
	// MaxTailLines caps how many lines one Tail call keeps in memory.
	MaxTailLines = 1000
)

// Tail returns the last n lines of the file at path. A negative n counts the
// same as its absolute value; n is capped at MaxTailLines.
func Tail(path string, n int) ([]string, error) {
	if n < 0 {
		n = -n
	}
	// -math.MinInt is still negative.
	if n < 0 || n > MaxTailLines {
		n = MaxTailLines
	}
	if n == 0 {
		n = DefaultTailLines
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	if count < n {
		return ring[:count], nil
	}
	start := count % n
	return append(ring[start:], ring[:start]...), nil
}

// TailApp tails the log of a supervised app.
func (s *Supervisor) TailApp(name string, n int) ([]string, error) {
	app, err := s.App(name)
	if err != nil {
		return nil, err
	}
	if app.LogPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoLog, name)
	}
	return Tail(app.LogPath, n)
}
