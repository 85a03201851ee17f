// Package ytdlp wraps the external media-info/download extraction tool.
// The tool is treated as an opaque collaborator: it is handed a URL (plus
// format selection parameters) and produces either a structured metadata
// document on stdout, or a media file on disk. Non-zero exits are reported
// as recoverable errors, classified from the tools stderr output.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/GabrielSantos23/downly/pkg/logger"
)

var log = logger.Get("YtDlp")

var (
	// ErrExtractionFailed covers a source which could not be inspected at
	// all: the tool exited abnormally or produced unparseable metadata.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrUnsupportedSource indicates the URL points at a site or resource
	// the extraction tool does not know how to handle.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrSourceUnavailable indicates the source exists but cannot be
	// fetched (removed, private, or geo-restricted).
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNetwork indicates a transient transport-level failure.
	ErrNetwork = errors.New("network error")

	// ErrDownloadFailed is the catch-all for downloads which failed for a
	// reason the stderr output did not let us classify further.
	ErrDownloadFailed = errors.New("download failed")
)

type Config struct {
	BinaryPath         string `yaml:"binary_path" env:"YTDLP_BINARY_PATH" env-default:"yt-dlp"`
	InfoTimeoutSeconds int    `yaml:"info_timeout_seconds" env:"YTDLP_INFO_TIMEOUT_SECONDS" env-default:"30"`
}

type (
	// RawFormat mirrors a single entry of the extractors 'formats' array.
	// Nullable metadata stays as pointers; normalization decides what a
	// missing field means.
	RawFormat struct {
		FormatID       string   `json:"format_id"`
		Ext            string   `json:"ext"`
		FormatNote     string   `json:"format_note"`
		Height         *int     `json:"height"`
		VideoCodec     string   `json:"vcodec"`
		AudioCodec     string   `json:"acodec"`
		AudioBitrate   *float64 `json:"abr"`
		FileSize       *int64   `json:"filesize"`
		FileSizeApprox *int64   `json:"filesize_approx"`
	}

	// RawSourceInfo is the un-normalized metadata document for a URL.
	RawSourceInfo struct {
		Title     string      `json:"title"`
		Channel   string      `json:"channel"`
		Duration  float64     `json:"duration"`
		Thumbnail string      `json:"thumbnail"`
		Formats   []RawFormat `json:"formats"`
	}

	// ProgressCallback receives the byte counts reported by the download
	// as it runs. Total may be zero when the tool cannot estimate it.
	ProgressCallback func(downloadedBytes int64, totalBytes int64)

	Extractor struct {
		config Config
	}
)

func New(config Config) *Extractor {
	return &Extractor{config: config}
}

// FetchSourceInfo runs the extraction tool against the URL provided and
// decodes the single JSON metadata document it emits. The invocation is
// bounded by the configured timeout.
func (extractor *Extractor) FetchSourceInfo(ctx context.Context, url string) (*RawSourceInfo, error) {
	timeout := time.Duration(extractor.config.InfoTimeoutSeconds) * time.Second
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec
	cmd := exec.CommandContext(cmdCtx, extractor.config.BinaryPath,
		"--dump-json",
		"--no-playlist",
		"--skip-download",
		"--no-warnings",
		"--quiet",
		url,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Emit(logger.DEBUG, "Fetching source info for %s\n", url)
	if err := cmd.Run(); err != nil {
		return nil, classifyExtractionError(stderr.String(), err)
	}

	var info RawSourceInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: could not parse metadata for %s: %v", ErrExtractionFailed, url, err)
	}

	return &info, nil
}

// Download invokes the extraction tool to fetch the stream(s) the format
// selector describes, writing to the output template provided (the tool
// substitutes the real extension). Byte-level progress is parsed from the
// tools stdout and forwarded to the callback.
func (extractor *Extractor) Download(ctx context.Context, url string, formatSelector string, outputTemplate string, audioOnly bool, onProgress ProgressCallback) error {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--retries", "2",
		"--fragment-retries", "2",
		"-o", outputTemplate,
		"-f", formatSelector,
		"--newline",
		"--progress-template", "download:%(progress.downloaded_bytes)s/%(progress.total_bytes)s",
	}
	if audioOnly {
		args = append(args, "-x")
	}
	args = append(args, url)

	//nolint:gosec
	cmd := exec.CommandContext(ctx, extractor.config.BinaryPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	log.Emit(logger.INFO, "Starting download of %s (selector %s)\n", url, formatSelector)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if downloaded, total, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(downloaded, total)
		}
	}

	if err := cmd.Wait(); err != nil {
		return classifyDownloadError(stderr.String(), err)
	}

	return nil
}

// ParseProgressLine extracts the byte counts from a single line of the
// tools progress output ('download:<downloaded>/<total>'). Lines which do
// not follow that shape - including totals the tool reports as 'NA' - are
// ignored.
func ParseProgressLine(line string) (downloaded int64, total int64, ok bool) {
	line = strings.TrimSpace(line)
	rest, found := strings.CutPrefix(line, "download:")
	if !found {
		return 0, 0, false
	}

	downloadedStr, totalStr, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}

	downloaded, err := strconv.ParseInt(downloadedStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}

	// A missing total is not a parse failure; progress is simply unknown.
	total, err = strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		total = 0
	}

	return downloaded, total, true
}

// classifyExtractionError inspects the tools stderr to distinguish an
// unsupported/invalid source from a general extraction failure.
func classifyExtractionError(stderr string, cause error) error {
	detail := condenseStderr(stderr, cause)
	lowered := strings.ToLower(stderr)

	switch {
	case strings.Contains(lowered, "unsupported url"), strings.Contains(lowered, "is not a valid url"):
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, detail)
	case containsUnavailableMarker(lowered):
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, detail)
	default:
		return fmt.Errorf("%w: %s", ErrExtractionFailed, detail)
	}
}

// classifyDownloadError inspects the tools stderr to distinguish a source
// that has gone away from a transport failure; the job record surfaces
// different user-facing messages for the two.
func classifyDownloadError(stderr string, cause error) error {
	detail := condenseStderr(stderr, cause)
	lowered := strings.ToLower(stderr)

	switch {
	case containsUnavailableMarker(lowered):
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, detail)
	case strings.Contains(lowered, "unsupported url"), strings.Contains(lowered, "is not a valid url"):
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, detail)
	case strings.Contains(lowered, "unable to download"),
		strings.Contains(lowered, "connection"),
		strings.Contains(lowered, "timed out"),
		strings.Contains(lowered, "network"):
		return fmt.Errorf("%w: %s", ErrNetwork, detail)
	default:
		return fmt.Errorf("%w: %s", ErrDownloadFailed, detail)
	}
}

func containsUnavailableMarker(lowered string) bool {
	markers := []string{
		"video unavailable",
		"private video",
		"this video is not available",
		"has been removed",
		"not available in your country",
		"account associated with this video has been terminated",
	}
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}

	return false
}

// condenseStderr picks the most relevant line of the (potentially huge)
// stderr output; the tool prefixes its own failures with 'ERROR:'.
func condenseStderr(stderr string, cause error) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}

	if trimmed := strings.TrimSpace(stderr); trimmed != "" {
		return trimmed
	}

	return cause.Error()
}
