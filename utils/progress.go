package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

const progressTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`

// ProgressTracker renders download progress and keeps transfer statistics.
// The bar is created on the first observation since the total size is
// only known once the response headers arrive.
type ProgressTracker struct {
	bar       *pb.ProgressBar
	out       io.Writer
	quiet     bool
	startTime time.Time
	total     int64
	current   int64
	filename  string
	mutex     sync.RWMutex

	lastUpdate   time.Time
	lastBytes    int64
	speedSamples []float64
	maxSamples   int
}

// DownloadSummary contains final download statistics
type DownloadSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
	PeakSpeed    float64 // bytes per second
	Filename     string
}

// NewProgressTracker creates a tracker writing to out (stderr when nil)
func NewProgressTracker(out io.Writer, quiet bool) *ProgressTracker {
	if out == nil {
		out = os.Stderr
	}
	now := time.Now()
	return &ProgressTracker{
		out:        out,
		quiet:      quiet,
		startTime:  now,
		lastUpdate: now,
		maxSamples: 10,
	}
}

// Observe records written bytes out of total. A total of zero or less
// means the server did not announce a size.
func (p *ProgressTracker) Observe(written, total int64) {
	p.mutex.Lock()
	if total > 0 && total != p.total {
		p.total = total
		if p.bar != nil {
			p.bar.SetTotal(total)
		}
	}
	if p.bar == nil && !p.quiet {
		p.bar = pb.New64(p.total).SetTemplate(pb.ProgressBarTemplate(progressTemplate)).SetWriter(p.out)
		p.bar.Set(pb.Bytes, true)
		p.bar.Set(pb.SIBytesPrefix, true)
		p.bar.Set("prefix", "Downloading: ")
		p.bar.Start()
	}
	p.mutex.Unlock()

	p.Update(written)
}

// Update records the current byte count and refreshes the speed samples
func (p *ProgressTracker) Update(current int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := time.Now()
	p.current = current
	if p.bar != nil {
		p.bar.SetCurrent(current)
	}

	// Sample at most every 100ms
	timeDiff := now.Sub(p.lastUpdate).Seconds()
	if timeDiff > 0.1 {
		p.speedSamples = append(p.speedSamples, float64(current-p.lastBytes)/timeDiff)
		if len(p.speedSamples) > p.maxSamples {
			p.speedSamples = p.speedSamples[1:]
		}
		p.lastUpdate = now
		p.lastBytes = current
	}
}

// Finish completes the progress bar and returns the download summary
func (p *ProgressTracker) Finish() *DownloadSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)
	if p.bar != nil {
		p.bar.Finish()
	}

	var peakSpeed float64
	for _, speed := range p.speedSamples {
		if speed > peakSpeed {
			peakSpeed = speed
		}
	}

	summary := &DownloadSummary{
		TotalBytes: p.current,
		TotalTime:  totalTime,
		PeakSpeed:  peakSpeed,
		Filename:   p.filename,
	}
	if seconds := totalTime.Seconds(); seconds > 0 {
		summary.AverageSpeed = float64(p.current) / seconds
	}

	if !p.quiet {
		p.displaySummary(summary)
	}
	return summary
}

func (p *ProgressTracker) displaySummary(summary *DownloadSummary) {
	fmt.Fprintf(p.out, "\nDownload completed successfully!\n")
	fmt.Fprintf(p.out, "Total size: %s\n", FormatBytes(summary.TotalBytes))
	fmt.Fprintf(p.out, "Total time: %v\n", summary.TotalTime.Round(time.Millisecond))
	fmt.Fprintf(p.out, "Average speed: %s/s\n", FormatBytes(int64(summary.AverageSpeed)))
	if summary.PeakSpeed > 0 {
		fmt.Fprintf(p.out, "Peak speed: %s/s\n", FormatBytes(int64(summary.PeakSpeed)))
	}
	if summary.Filename != "" {
		fmt.Fprintf(p.out, "Saved to: %s\n", summary.Filename)
	}
}

// SetFilename sets the path reported in the summary
func (p *ProgressTracker) SetFilename(filename string) {
	p.mutex.Lock()
	p.filename = filename
	p.mutex.Unlock()
}

// GetCurrentStats returns current speed, ETA and completion percentage
func (p *ProgressTracker) GetCurrentStats() (speed float64, eta time.Duration, percentage float64) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if n := len(p.speedSamples); n > 0 {
		window := n
		if window > 3 {
			window = 3
		}
		for _, s := range p.speedSamples[n-window:] {
			speed += s
		}
		speed /= float64(window)
	}

	if speed > 0 && p.total > p.current {
		eta = time.Duration(float64(p.total-p.current)/speed) * time.Second
	}
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}
	return speed, eta, percentage
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
