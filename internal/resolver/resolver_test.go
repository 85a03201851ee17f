package resolver_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GabrielSantos23/downly/internal/media"
	"github.com/GabrielSantos23/downly/internal/resolver"
	"github.com/GabrielSantos23/downly/internal/ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu     sync.Mutex
	calls  int32
	delay  time.Duration
	info   *ytdlp.RawSourceInfo
	err    error
	gotURL string
}

func (stub *stubFetcher) FetchSourceInfo(ctx context.Context, url string) (*ytdlp.RawSourceInfo, error) {
	atomic.AddInt32(&stub.calls, 1)
	if stub.delay > 0 {
		select {
		case <-time.After(stub.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	stub.mu.Lock()
	stub.gotURL = url
	stub.mu.Unlock()
	return stub.info, stub.err
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }

func rawInfoFixture() *ytdlp.RawSourceInfo {
	return &ytdlp.RawSourceInfo{
		Title:     "Example Video",
		Channel:   "Example Channel",
		Duration:  258.4,
		Thumbnail: "https://example.com/thumb.jpg",
		Formats: []ytdlp.RawFormat{
			// Two 720p mp4 entries; the larger one must win the dedupe.
			{FormatID: "22", Ext: "mp4", Height: intPtr(720), VideoCodec: "avc1", AudioCodec: "mp4a", FileSize: int64Ptr(50_000_000)},
			{FormatID: "302", Ext: "mp4", Height: intPtr(720), VideoCodec: "avc1", AudioCodec: "none", FileSize: int64Ptr(80_000_000)},
			{FormatID: "137", Ext: "mp4", Height: intPtr(1080), VideoCodec: "avc1", AudioCodec: "none", FileSizeApprox: int64Ptr(120_000_000)},
			// Unsupported container and missing height are both skipped.
			{FormatID: "617", Ext: "3gp", Height: intPtr(144), VideoCodec: "mp4v", AudioCodec: "none"},
			{FormatID: "sb0", Ext: "mhtml", VideoCodec: "none", AudioCodec: "none"},
			// Audio-only entries.
			{FormatID: "140", Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a", AudioBitrate: floatPtr(129.5), FileSize: int64Ptr(4_000_000)},
			{FormatID: "251", Ext: "webm", VideoCodec: "none", AudioCodec: "opus", AudioBitrate: floatPtr(160.2), FileSize: int64Ptr(5_000_000)},
		},
	}
}

func Test_Resolve_NormalizesAndRanksFormats(t *testing.T) {
	t.Parallel()
	fetcher := &stubFetcher{info: rawInfoFixture()}
	res := resolver.New(fetcher)

	info, err := res.Resolve(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "Example Video", info.Title)
	assert.Equal(t, "Example Channel", info.Channel)
	assert.Equal(t, 258, info.DurationSecs)

	require.Len(t, info.VideoFormats, 2)
	assert.Equal(t, "1080p", info.VideoFormats[0].Resolution)
	assert.Equal(t, "720p", info.VideoFormats[1].Resolution)
	assert.Equal(t, int64(80_000_000), info.VideoFormats[1].SizeBytes, "larger entry must win the resolution dedupe")

	require.Len(t, info.AudioFormats, 2)
	assert.Equal(t, "160kbps", info.AudioFormats[0].Bitrate)
	assert.Equal(t, "129kbps", info.AudioFormats[1].Bitrate)
}

func Test_Resolve_SizeFallsBackToApproxThenUnknown(t *testing.T) {
	t.Parallel()
	fetcher := &stubFetcher{info: &ytdlp.RawSourceInfo{
		Title: "t",
		Formats: []ytdlp.RawFormat{
			{Ext: "mp4", Height: intPtr(1080), FileSizeApprox: int64Ptr(120_000_000)},
			{Ext: "mp4", Height: intPtr(720)},
		},
	}}

	info, err := resolver.New(fetcher).Resolve(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	require.Len(t, info.VideoFormats, 2)

	assert.Equal(t, int64(120_000_000), info.VideoFormats[0].SizeBytes)
	assert.Equal(t, media.UnknownFileSize, info.VideoFormats[1].FileSize)
}

func Test_Resolve_CapsFormatCounts(t *testing.T) {
	t.Parallel()
	raw := &ytdlp.RawSourceInfo{Title: "t"}
	for h := 100; h <= 1200; h += 100 {
		raw.Formats = append(raw.Formats, ytdlp.RawFormat{Ext: "mp4", Height: intPtr(h)})
	}
	for b := 32; b <= 320; b += 32 {
		bitrate := float64(b)
		raw.Formats = append(raw.Formats, ytdlp.RawFormat{Ext: "m4a", VideoCodec: "none", AudioCodec: "mp4a", AudioBitrate: &bitrate})
	}

	info, err := resolver.New(&stubFetcher{info: raw}).Resolve(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Len(t, info.VideoFormats, 8)
	assert.Len(t, info.AudioFormats, 3)
}

func Test_Resolve_InvalidURLRejectedWithoutExtraction(t *testing.T) {
	t.Parallel()
	fetcher := &stubFetcher{info: rawInfoFixture()}
	res := resolver.New(fetcher)

	for _, url := range []string{"", "notaurl", "ftp://example.com/file", "https://"} {
		_, err := res.Resolve(context.Background(), url)
		assert.ErrorIs(t, err, resolver.ErrInvalidURL, "url %q must be rejected", url)
	}

	assert.Zero(t, atomic.LoadInt32(&fetcher.calls), "the extractor must never run for an invalid URL")
}

func Test_Resolve_NoFormatsIsDistinctFromFailure(t *testing.T) {
	t.Parallel()

	t.Run("no usable formats", func(t *testing.T) {
		fetcher := &stubFetcher{info: &ytdlp.RawSourceInfo{Title: "t", Formats: []ytdlp.RawFormat{
			{Ext: "mhtml", VideoCodec: "none", AudioCodec: "none"},
		}}}

		info, err := resolver.New(fetcher).Resolve(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, resolver.ErrNoFormats)
		require.NotNil(t, info, "source info must still be returned alongside ErrNoFormats")
		assert.Equal(t, "t", info.Title)
	})

	t.Run("extraction failure", func(t *testing.T) {
		fetcher := &stubFetcher{err: ytdlp.ErrSourceUnavailable}

		info, err := resolver.New(fetcher).Resolve(context.Background(), "https://example.com/v")
		assert.ErrorIs(t, err, ytdlp.ErrSourceUnavailable)
		assert.NotErrorIs(t, err, resolver.ErrNoFormats)
		assert.Nil(t, info)
	})
}

func Test_Resolve_ConcurrentCallsShareOneExtraction(t *testing.T) {
	t.Parallel()
	fetcher := &stubFetcher{info: rawInfoFixture(), delay: 50 * time.Millisecond}
	res := resolver.New(fetcher)

	const waiters = 8
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := res.Resolve(context.Background(), "https://example.com/shared")
			assert.NoError(t, err)
			assert.NotNil(t, info)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls), "identical concurrent URLs must share a single extraction")

	// A later call is a fresh extraction.
	_, err := res.Resolve(context.Background(), "https://example.com/shared")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetcher.calls))
}
