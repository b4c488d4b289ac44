// scraper/csv_downloader.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnexpectedStatus is returned for any non-200 download response.
	ErrUnexpectedStatus = errors.New("CSV download url got an unsuccessful response code")

	// ErrFileTooSmall is returned when a download is not larger than the
	// configured threshold; a truncated export must never be imported.
	ErrFileTooSmall = errors.New("CSV file download did not meet threshold given")
)

// Downloader fetches the screening list export.
type Downloader struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewDownloader returns a Downloader whose client gives up after timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// DownloadFile downloads url and saves it to localSavePath, creating the
// directory if needed. It returns the number of bytes written.
func (d *Downloader) DownloadFile(ctx context.Context, url string, localSavePath string) (int64, error) {
	zap.S().Infof("Scraper: downloading %s to %s", url, localSavePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build GET request for %s: %w", url, err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		if isTimeout(err) {
			zap.S().Warnf("Sanctions SDNFallback: DOWNLOAD FAILURE: Timeout occurred trying to download SDN CSV. Timeout threshold: %s", d.Timeout)
		} else {
			zap.S().Errorf("Sanctions SDNFallback: DOWNLOAD FAILURE: Exception occurred: [%v]", err)
		}
		return 0, fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		zap.S().Warnf("Sanctions SDNFallback: DOWNLOAD FAILURE: Status code was: [%d]", resp.StatusCode)
		return 0, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	dir := filepath.Dir(localSavePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	outFile, err := os.Create(localSavePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file %s: %w", localSavePath, err)
	}
	defer outFile.Close()

	n, err := io.Copy(outFile, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to copy downloaded content to %s: %w", localSavePath, err)
	}
	return n, nil
}

// DownloadExport downloads the export to localPath (a temp file when empty)
// and returns its contents if it is larger than thresholdMB megabytes.
// The local copy is removed unless localPath was given.
func (d *Downloader) DownloadExport(ctx context.Context, url, localPath string, thresholdMB float64) ([]byte, error) {
	if url == "" {
		return nil, errors.New("export CSV URL is not configured")
	}

	keep := localPath != ""
	if !keep {
		tmp, err := os.CreateTemp("", "consolidated-*.csv")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file for export: %w", err)
		}
		tmp.Close()
		localPath = tmp.Name()
		defer func() {
			if err := os.Remove(localPath); err != nil {
				zap.S().Errorf("Scraper: failed to remove temporary file %s: %v", localPath, err)
			}
		}()
	}

	size, err := d.DownloadFile(ctx, url, localPath)
	if err != nil {
		return nil, err
	}

	sizeMB := float64(size) / 1e6
	if sizeMB <= thresholdMB {
		zap.S().Warnf("Sanctions SDNFallback: DOWNLOAD FAILURE: file too small! (%f MB vs threshold of %v MB)", sizeMB, thresholdMB)
		return nil, fmt.Errorf("%w: %f MB <= %v MB", ErrFileTooSmall, sizeMB, thresholdMB)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded export %s: %w", localPath, err)
	}
	zap.S().Info("Sanctions SDNFallback: DOWNLOAD SUCCESS: Successfully downloaded the SDN CSV.")
	return data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
