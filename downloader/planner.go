package downloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"translink/internal"
	"translink/utils"
)

const (
	// ResumeMetadataExt is the file extension for resume sidecar files
	ResumeMetadataExt = ".translink.json"
	// PartExt marks an incomplete download
	PartExt = ".part"
	// MaxResumeAge is how long a partial download stays resumable
	MaxResumeAge = 7 * 24 * time.Hour
)

// ResumePlanner keeps the sidecar that lets an interrupted download
// continue with a Range request.
type ResumePlanner struct {
	fileOps *utils.FileOperations
	now     func() time.Time
}

// NewResumePlanner creates a new instance of ResumePlanner
func NewResumePlanner() *ResumePlanner {
	return &ResumePlanner{
		fileOps: utils.NewFileOperations(),
		now:     time.Now,
	}
}

// SaveResumeMetadata writes the sidecar for outputPath
func (p *ResumePlanner) SaveResumeMetadata(outputPath string, sidecar *internal.DownloadSidecar) error {
	now := p.now()
	if sidecar.CreatedAt.IsZero() {
		sidecar.CreatedAt = now
	}
	sidecar.LastUpdate = now

	metadataPath := outputPath + ResumeMetadataExt
	if err := os.MkdirAll(filepath.Dir(metadataPath), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resume metadata: %w", err)
	}
	if err := os.WriteFile(metadataPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write resume metadata: %w", err)
	}
	return nil
}

// LoadResumeMetadata reads the sidecar for outputPath
func (p *ResumePlanner) LoadResumeMetadata(outputPath string) (*internal.DownloadSidecar, error) {
	data, err := os.ReadFile(outputPath + ResumeMetadataExt)
	if err != nil {
		return nil, fmt.Errorf("failed to read resume metadata: %w", err)
	}

	var sidecar internal.DownloadSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resume metadata: %w", err)
	}
	return &sidecar, nil
}

// CleanupResumeMetadata removes the sidecar
func (p *ResumePlanner) CleanupResumeMetadata(outputPath string) error {
	if err := p.fileOps.RemoveIfExists(outputPath + ResumeMetadataExt); err != nil {
		return fmt.Errorf("failed to cleanup resume metadata: %w", err)
	}
	return nil
}

// Discard removes both the partial file and its sidecar
func (p *ResumePlanner) Discard(outputPath string) {
	if err := p.fileOps.RemoveIfExists(outputPath + PartExt); err != nil {
		internal.LogWarn("Failed to remove partial download: %v", err)
	}
	if err := p.CleanupResumeMetadata(outputPath); err != nil {
		internal.LogWarn("%v", err)
	}
}

// DetectResumableDownload returns the sidecar and the byte offset to resume
// from. Stale or mismatching state is cleaned up and reported as a fresh
// start (nil, 0).
func (p *ResumePlanner) DetectResumableDownload(outputPath, url string) (*internal.DownloadSidecar, int64) {
	exists, partSize, err := p.fileOps.DetectPartialDownload(outputPath)
	if err != nil || !exists {
		p.CleanupResumeMetadata(outputPath)
		return nil, 0
	}

	sidecar, err := p.LoadResumeMetadata(outputPath)
	if err != nil {
		internal.LogDebug("No usable resume metadata for %s: %v", filepath.Base(outputPath), err)
		p.Discard(outputPath)
		return nil, 0
	}

	if err := p.ValidateResumeCompatibility(sidecar, url); err != nil {
		internal.LogInfo("Resume validation failed: %v, starting fresh download", err)
		p.Discard(outputPath)
		return nil, 0
	}
	if err := p.fileOps.ValidatePartialFile(outputPath+PartExt, sidecar.ExpectedSize); err != nil {
		internal.LogInfo("Partial file unusable: %v, starting fresh download", err)
		p.Discard(outputPath)
		return nil, 0
	}
	return sidecar, partSize
}

// ValidateResumeCompatibility checks a sidecar against the URL about to be fetched
func (p *ResumePlanner) ValidateResumeCompatibility(sidecar *internal.DownloadSidecar, url string) error {
	if sidecar.URL != url {
		return fmt.Errorf("download URL changed: resume=%s, current=%s", sidecar.URL, url)
	}
	if p.now().Sub(sidecar.LastUpdate) > MaxResumeAge {
		return fmt.Errorf("resume data is too old (last update: %s)", sidecar.LastUpdate.Format(time.RFC3339))
	}
	return nil
}

// CalculateResumeProgress returns the percentage already on disk
func (p *ResumePlanner) CalculateResumeProgress(sidecar *internal.DownloadSidecar, offset int64) float64 {
	if sidecar == nil || sidecar.ExpectedSize <= 0 {
		return 0
	}
	return float64(offset) / float64(sidecar.ExpectedSize) * 100
}
