package downloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"translink/internal"
)

const testURL = "http://translator.local/api/translator/download/report.pdf"

func writePart(t *testing.T, outputPath string, size int) {
	t.Helper()
	if err := os.WriteFile(outputPath+PartExt, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResumePlanner_ResumeMetadata(t *testing.T) {
	planner := NewResumePlanner()
	outputPath := filepath.Join(t.TempDir(), "nested", "report.pdf")

	original := &internal.DownloadSidecar{
		FileName:     "report.pdf",
		URL:          testURL,
		ExpectedSize: 2048,
		ETag:         `"abc"`,
	}
	if err := planner.SaveResumeMetadata(outputPath, original); err != nil {
		t.Fatalf("SaveResumeMetadata failed: %v", err)
	}
	if original.CreatedAt.IsZero() || original.LastUpdate.IsZero() {
		t.Error("timestamps should be filled in on save")
	}

	loaded, err := planner.LoadResumeMetadata(outputPath)
	if err != nil {
		t.Fatalf("LoadResumeMetadata failed: %v", err)
	}
	if loaded.FileName != original.FileName || loaded.URL != original.URL ||
		loaded.ExpectedSize != original.ExpectedSize || loaded.ETag != original.ETag {
		t.Errorf("loaded %+v, saved %+v", loaded, original)
	}

	if err := planner.CleanupResumeMetadata(outputPath); err != nil {
		t.Fatalf("CleanupResumeMetadata failed: %v", err)
	}
	if _, err := os.Stat(outputPath + ResumeMetadataExt); !os.IsNotExist(err) {
		t.Error("sidecar should be removed")
	}
	if err := planner.CleanupResumeMetadata(outputPath); err != nil {
		t.Errorf("cleaning up twice should be harmless: %v", err)
	}
}

func TestResumePlanner_LoadCorrupt(t *testing.T) {
	planner := NewResumePlanner()
	outputPath := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(outputPath+ResumeMetadataExt, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := planner.LoadResumeMetadata(outputPath); err == nil {
		t.Error("expected an error for a corrupt sidecar")
	}
}

func TestResumePlanner_DetectResumableDownload(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		partSize   int
		sidecar    *internal.DownloadSidecar
		age        time.Duration
		wantOffset int64
		wantKept   bool
	}{
		{
			name:       "compatible",
			partSize:   512,
			sidecar:    &internal.DownloadSidecar{URL: testURL, ExpectedSize: 2048},
			wantOffset: 512,
			wantKept:   true,
		},
		{
			name:       "unknown_expected_size",
			partSize:   512,
			sidecar:    &internal.DownloadSidecar{URL: testURL, ExpectedSize: -1},
			wantOffset: 512,
			wantKept:   true,
		},
		{
			name:     "no_part_file",
			sidecar:  &internal.DownloadSidecar{URL: testURL, ExpectedSize: 2048},
			partSize: -1,
		},
		{
			name:     "no_sidecar",
			partSize: 512,
		},
		{
			name:     "url_changed",
			partSize: 512,
			sidecar:  &internal.DownloadSidecar{URL: "http://elsewhere/report.pdf", ExpectedSize: 2048},
		},
		{
			name:     "too_old",
			partSize: 512,
			sidecar:  &internal.DownloadSidecar{URL: testURL, ExpectedSize: 2048},
			age:      MaxResumeAge + time.Hour,
		},
		{
			name:     "part_larger_than_expected",
			partSize: 4096,
			sidecar:  &internal.DownloadSidecar{URL: testURL, ExpectedSize: 2048},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := NewResumePlanner()
			outputPath := filepath.Join(t.TempDir(), "report.pdf")

			if tt.partSize >= 0 {
				writePart(t, outputPath, tt.partSize)
			}
			if tt.sidecar != nil {
				planner.now = func() time.Time { return now.Add(-tt.age) }
				if err := planner.SaveResumeMetadata(outputPath, tt.sidecar); err != nil {
					t.Fatal(err)
				}
			}
			planner.now = func() time.Time { return now }

			sidecar, offset := planner.DetectResumableDownload(outputPath, testURL)
			if offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
			if (sidecar != nil) != tt.wantKept {
				t.Errorf("sidecar = %+v, kept want %v", sidecar, tt.wantKept)
			}

			_, partErr := os.Stat(outputPath + PartExt)
			if tt.wantKept && partErr != nil {
				t.Errorf("compatible partial file should be kept: %v", partErr)
			}
			if !tt.wantKept && !os.IsNotExist(partErr) {
				t.Error("incompatible partial file should be discarded")
			}
			if !tt.wantKept {
				if _, err := os.Stat(outputPath + ResumeMetadataExt); !os.IsNotExist(err) {
					t.Error("incompatible sidecar should be discarded")
				}
			}
		})
	}
}

func TestResumePlanner_CalculateResumeProgress(t *testing.T) {
	planner := NewResumePlanner()

	tests := []struct {
		name    string
		sidecar *internal.DownloadSidecar
		offset  int64
		want    float64
	}{
		{"nil_sidecar", nil, 100, 0},
		{"unknown_size", &internal.DownloadSidecar{ExpectedSize: -1}, 100, 0},
		{"quarter", &internal.DownloadSidecar{ExpectedSize: 400}, 100, 25},
		{"done", &internal.DownloadSidecar{ExpectedSize: 400}, 400, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := planner.CalculateResumeProgress(tt.sidecar, tt.offset); got != tt.want {
				t.Errorf("CalculateResumeProgress = %v, want %v", got, tt.want)
			}
		})
	}
}
