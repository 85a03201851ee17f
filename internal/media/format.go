package media

import "fmt"

// UnknownFileSize is substituted for the estimated file size of a format
// when the extractor did not report one. A missing size estimate is never
// grounds for dropping the format entirely.
const UnknownFileSize = "Unknown"

type (
	// VideoFormat describes a single selectable video variant of a source.
	// Height is the vertical resolution the 'Resolution' label is derived
	// from ("720p" -> 720) and is what ranking/deduplication keys on.
	VideoFormat struct {
		Resolution string `json:"resolution"`
		Ext        string `json:"ext"`
		FormatNote string `json:"format_note"`
		FileSize   string `json:"file_size"`
		Height     int    `json:"-"`
		SizeBytes  int64  `json:"-"`
	}

	// AudioFormat describes a single selectable audio-only variant of
	// a source, keyed on its average bitrate.
	AudioFormat struct {
		Bitrate     string `json:"bitrate"`
		Ext         string `json:"ext"`
		FileSize    string `json:"file_size"`
		BitrateKbps int    `json:"-"`
		SizeBytes   int64  `json:"-"`
	}

	// SourceInfo is the normalized result of resolving a URL: the basic
	// metadata of the source plus its ranked format descriptors. It is
	// derived per-request and never persisted.
	SourceInfo struct {
		URL          string        `json:"url"`
		Title        string        `json:"title"`
		Channel      string        `json:"channel"`
		DurationSecs int           `json:"duration"`
		ThumbnailURL string        `json:"thumbnail"`
		VideoFormats []VideoFormat `json:"video_formats"`
		AudioFormats []AudioFormat `json:"audio_formats"`
	}
)

// HumanFileSize renders a byte count the way the format descriptors expose
// it to clients (megabytes with one decimal place). Zero or negative sizes
// are reported as unknown.
func HumanFileSize(bytes int64) string {
	if bytes <= 0 {
		return UnknownFileSize
	}

	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}

func (format *VideoFormat) String() string {
	return fmt.Sprintf("VideoFormat{%s %s %s}", format.Resolution, format.Ext, format.FileSize)
}

func (format *AudioFormat) String() string {
	return fmt.Sprintf("AudioFormat{%s %s %s}", format.Bitrate, format.Ext, format.FileSize)
}
