// Package resolver turns a user-supplied URL in to a ranked set of
// downloadable format descriptors, using the external extraction tool to
// inspect the source and normalizing whatever it reports.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/GabrielSantos23/downly/internal/media"
	"github.com/GabrielSantos23/downly/internal/ytdlp"
	"github.com/GabrielSantos23/downly/pkg/logger"
	pkgsync "github.com/GabrielSantos23/downly/pkg/sync"
)

var log = logger.Get("Resolver")

var (
	// ErrInvalidURL indicates the provided string is not an absolute
	// http(s) URL; the extractor is never invoked for these.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNoFormats indicates the source was inspected successfully but
	// normalization produced nothing downloadable. The SourceInfo is
	// still returned alongside this error so callers can distinguish
	// "exists but nothing usable" from an extraction failure.
	ErrNoFormats = errors.New("no usable formats")
)

const (
	maxVideoFormats = 8
	maxAudioFormats = 3
)

type (
	// InfoFetcher is the slice of the extraction tool the resolver needs.
	InfoFetcher interface {
		FetchSourceInfo(ctx context.Context, url string) (*ytdlp.RawSourceInfo, error)
	}

	inflightResolve struct {
		done chan struct{}
		info *media.SourceInfo
		err  error
	}

	Resolver struct {
		fetcher  InfoFetcher
		inflight pkgsync.TypedSyncMap[string, *inflightResolve]
	}
)

func New(fetcher InfoFetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve inspects the URL provided and returns its normalized source
// information. Concurrent calls for the identical URL share a single
// underlying extraction; later callers simply wait for the first to
// finish.
func (resolver *Resolver) Resolve(ctx context.Context, sourceURL string) (*media.SourceInfo, error) {
	if err := ValidateURL(sourceURL); err != nil {
		return nil, err
	}

	call := &inflightResolve{done: make(chan struct{})}
	if existing, loaded := resolver.inflight.LoadOrStore(sourceURL, call); loaded {
		log.Emit(logger.DEBUG, "Joining in-flight extraction for %s\n", sourceURL)
		select {
		case <-existing.done:
			return existing.info, existing.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call.info, call.err = resolver.resolve(ctx, sourceURL)
	resolver.inflight.Delete(sourceURL)
	close(call.done)

	return call.info, call.err
}

func (resolver *Resolver) resolve(ctx context.Context, sourceURL string) (*media.SourceInfo, error) {
	raw, err := resolver.fetcher.FetchSourceInfo(ctx, sourceURL)
	if err != nil {
		log.Emit(logger.ERROR, "Extraction for %s failed: %v\n", sourceURL, err)
		return nil, err
	}

	info := &media.SourceInfo{
		URL:          sourceURL,
		Title:        raw.Title,
		Channel:      raw.Channel,
		DurationSecs: int(raw.Duration),
		ThumbnailURL: raw.Thumbnail,
		VideoFormats: normalizeVideoFormats(raw.Formats),
		AudioFormats: normalizeAudioFormats(raw.Formats),
	}

	if len(info.VideoFormats) == 0 && len(info.AudioFormats) == 0 {
		log.Emit(logger.WARNING, "Source %s resolved but exposes no usable formats\n", sourceURL)
		return info, ErrNoFormats
	}

	return info, nil
}

// ValidateURL checks the provided string is an absolute http(s) URL.
func ValidateURL(sourceURL string) error {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, sourceURL)
	}

	return nil
}

// normalizeVideoFormats filters the raw format list down to video entries
// with a known resolution and a web-friendly container, deduplicates by
// resolution (keeping the entry with the larger estimated size), and ranks
// the result descending by resolution then size.
func normalizeVideoFormats(formats []ytdlp.RawFormat) []media.VideoFormat {
	byHeight := make(map[int]media.VideoFormat)
	for _, raw := range formats {
		if raw.Height == nil || *raw.Height <= 0 {
			continue
		}
		if raw.Ext != "mp4" && raw.Ext != "webm" {
			continue
		}

		candidate := media.VideoFormat{
			Resolution: fmt.Sprintf("%dp", *raw.Height),
			Ext:        raw.Ext,
			FormatNote: raw.FormatNote,
			Height:     *raw.Height,
			SizeBytes:  estimatedSize(raw),
		}
		candidate.FileSize = media.HumanFileSize(candidate.SizeBytes)

		if existing, ok := byHeight[candidate.Height]; !ok || candidate.SizeBytes > existing.SizeBytes {
			byHeight[candidate.Height] = candidate
		}
	}

	out := make([]media.VideoFormat, 0, len(byHeight))
	for _, format := range byHeight {
		out = append(out, format)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].SizeBytes > out[j].SizeBytes
	})

	if len(out) > maxVideoFormats {
		out = out[:maxVideoFormats]
	}

	return out
}

// normalizeAudioFormats filters the raw format list down to audio-only
// entries, deduplicates by bitrate (keeping the larger estimated size),
// and ranks descending by bitrate.
func normalizeAudioFormats(formats []ytdlp.RawFormat) []media.AudioFormat {
	byBitrate := make(map[int]media.AudioFormat)
	for _, raw := range formats {
		if raw.AudioCodec == "" || raw.AudioCodec == "none" || raw.VideoCodec != "none" {
			continue
		}

		bitrate := 0
		if raw.AudioBitrate != nil {
			bitrate = int(*raw.AudioBitrate)
		}

		candidate := media.AudioFormat{
			Bitrate:     media.UnknownFileSize,
			Ext:         raw.Ext,
			BitrateKbps: bitrate,
			SizeBytes:   estimatedSize(raw),
		}
		if bitrate > 0 {
			candidate.Bitrate = fmt.Sprintf("%dkbps", bitrate)
		}
		candidate.FileSize = media.HumanFileSize(candidate.SizeBytes)

		if existing, ok := byBitrate[bitrate]; !ok || candidate.SizeBytes > existing.SizeBytes {
			byBitrate[bitrate] = candidate
		}
	}

	out := make([]media.AudioFormat, 0, len(byBitrate))
	for _, format := range byBitrate {
		out = append(out, format)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].BitrateKbps > out[j].BitrateKbps })

	if len(out) > maxAudioFormats {
		out = out[:maxAudioFormats]
	}

	return out
}

func estimatedSize(raw ytdlp.RawFormat) int64 {
	if raw.FileSize != nil && *raw.FileSize > 0 {
		return *raw.FileSize
	}
	if raw.FileSizeApprox != nil && *raw.FileSizeApprox > 0 {
		return *raw.FileSizeApprox
	}

	return 0
}
