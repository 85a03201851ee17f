package processor_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GabrielSantos23/downly/internal/event"
	"github.com/GabrielSantos23/downly/internal/ffmpeg"
	"github.com/GabrielSantos23/downly/internal/job"
	"github.com/GabrielSantos23/downly/internal/processor"
	"github.com/GabrielSantos23/downly/internal/ytdlp"
	"github.com/floostack/transcoder"
	"github.com/google/uuid"
	"github.com/hbomb79/go-chanassert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errExpected = errors.New("test: expected error")

// mockDownloader stands in for the external download tool: a successful
// call drops a fake source file where the real tool would and reports a
// couple of progress milestones. Tests can substitute their own progress
// reports via progressFeed, or park the download until its context is
// cancelled via blockOnCtx.
type mockDownloader struct {
	mock.Mock
	progressFeed func(ytdlp.ProgressCallback)
	blockOnCtx   bool
}

func (m *mockDownloader) Download(ctx context.Context, url string, formatSelector string, outputTemplate string, audioOnly bool, onProgress ytdlp.ProgressCallback) error {
	args := m.Called(url, formatSelector, outputTemplate, audioOnly)
	if m.blockOnCtx {
		<-ctx.Done()
		return ctx.Err()
	}

	if err := args.Error(0); err != nil {
		return err
	}

	ext := "mp4"
	if audioOnly {
		ext = "m4a"
	}

	path := strings.Replace(outputTemplate, "%(ext)s", ext, 1)
	if err := os.WriteFile(path, []byte("source media"), 0o644); err != nil {
		return err
	}

	if onProgress != nil {
		if m.progressFeed != nil {
			m.progressFeed(onProgress)
		} else {
			onProgress(512, 1024)
			onProgress(1024, 1024)
		}
	}

	return nil
}

// mockTranscoder stands in for the external transcoding tool; successful
// calls write the output file the real tool would produce.
type mockTranscoder struct {
	mock.Mock
}

func (m *mockTranscoder) Transcode(ctx context.Context, inputPath string, outputPath string, options transcoder.Options, onProgress func(*ffmpeg.Progress)) error {
	args := m.Called(inputPath, outputPath)
	if err := args.Error(0); err != nil {
		return err
	}

	if onProgress != nil {
		onProgress(&ffmpeg.Progress{Progress: 100})
	}

	return os.WriteFile(outputPath, []byte("transcoded media"), 0o644)
}

func (m *mockTranscoder) ProbeDuration(path string) (float64, error) {
	args := m.Called(path)
	return args.Get(0).(float64), args.Error(1)
}

type serviceHarness struct {
	service    *processor.ProcessorService
	downloader *mockDownloader
	transcoder *mockTranscoder
	eventBus   event.EventCoordinator
	store      *job.Store
	outputDir  string
}

// startService constructs a processor service against mock tools and runs
// it for the remainder of the test.
func startService(t *testing.T, parallelism int) *serviceHarness {
	harness := &serviceHarness{
		downloader: &mockDownloader{},
		transcoder: &mockTranscoder{},
		eventBus:   event.New(),
		store:      job.NewStore(),
		outputDir:  t.TempDir(),
	}

	config := processor.Config{
		OutputPath:     harness.outputDir,
		WorkingPath:    t.TempDir(),
		JobParallelism: parallelism,
	}

	service, err := processor.New(config, harness.downloader, harness.transcoder, harness.store, harness.eventBus)
	require.NoError(t, err)
	harness.service = service

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, service.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return harness
}

func (harness *serviceHarness) waitForTerminal(t *testing.T, id uuid.UUID) job.Job {
	var terminal job.Job
	require.Eventually(t, func() bool {
		snapshot, err := harness.service.Task(id)
		if err != nil {
			return false
		}

		terminal = snapshot
		return snapshot.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached a terminal state", id)

	return terminal
}

func videoRequest(url string) processor.ProcessRequest {
	return processor.ProcessRequest{URL: url, Format: "mp4", Quality: "high"}
}

func Test_Submit_ValidationFailuresCreateNoJob(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	_, err := harness.service.Submit(job.KindVideo, processor.ProcessRequest{URL: "notaurl", Format: "mp4"})
	assert.ErrorIs(t, err, processor.ErrValidation)
	assert.Empty(t, harness.service.AllTasks(), "a rejected submission must not leave a job behind")
}

func Test_Submit_JobVisibleImmediately(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	// Park the worker on a slow download so the queued/running job can
	// be observed.
	release := make(chan struct{})
	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).Return(errExpected)
	defer close(release)

	first, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/a"))
	require.NoError(t, err)
	second, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/b"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "every submission must receive its own job ID")

	snapshot, err := harness.service.Task(second)
	require.NoError(t, err)
	assert.False(t, snapshot.Status.IsTerminal())
	assert.LessOrEqual(t, snapshot.Status, job.Downloading)
}

func Test_Job_RunsToCompletion(t *testing.T) {
	t.Parallel()
	harness := startService(t, 2)

	harness.downloader.On("Download", "https://example.com/v", mock.Anything, mock.Anything, false).Return(nil)
	harness.transcoder.On("Transcode", mock.Anything, mock.Anything).Return(nil)

	id, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/v"))
	require.NoError(t, err)

	terminal := harness.waitForTerminal(t, id)
	assert.Equal(t, job.Completed, terminal.Status)
	assert.Equal(t, 100, terminal.Progress)
	assert.Equal(t, fmt.Sprintf("%s.mp4", id), terminal.ArtifactName)
	assert.FileExists(t, filepath.Join(harness.outputDir, terminal.ArtifactName))
}

func Test_Job_EmitsLifecycleEvents(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	activity := make(chan event.HandlerEvent, 100)
	harness.eventBus.RegisterHandlerChannel(activity, event.JOB_UPDATE, event.JOB_PROGRESS, event.JOB_COMPLETE)

	matchEvent := func(expected event.Event) chanassert.Matcher[event.HandlerEvent] {
		return chanassert.MatchPredicate(func(message event.HandlerEvent) bool { return message.Event == expected })
	}

	// A job with no trim window passes through submit, download and
	// convert updates before completing.
	expecter := chanassert.
		NewChannelExpecter(activity).
		Ignore(matchEvent(event.JOB_PROGRESS)).
		Expect(
			chanassert.ExactlyNOf(3, matchEvent(event.JOB_UPDATE)),
			chanassert.ExactlyNOf(1, matchEvent(event.JOB_COMPLETE)),
		)
	expecter.Listen()

	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	harness.transcoder.On("Transcode", mock.Anything, mock.Anything).Return(nil)

	id, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/v"))
	require.NoError(t, err)
	harness.waitForTerminal(t, id)

	expecter.AssertSatisfied(t, 5*time.Second)
}

func Test_Job_TrimWindowIsClampedAndApplied(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	harness.transcoder.On("ProbeDuration", mock.Anything).Return(float64(258), nil)
	harness.transcoder.On("Transcode", mock.Anything, mock.Anything).Return(nil)

	request := videoRequest("https://example.com/v")
	request.TrimStart = "00:10"
	request.TrimEnd = "10:00" // clamped to the probed 258s duration

	id, err := harness.service.Submit(job.KindVideo, request)
	require.NoError(t, err)

	terminal := harness.waitForTerminal(t, id)
	assert.Equal(t, job.Completed, terminal.Status)

	// Trim and convert are separate transcoder invocations.
	harness.transcoder.AssertNumberOfCalls(t, "Transcode", 2)
}

func Test_Job_StartBeyondDurationFails(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	harness.transcoder.On("ProbeDuration", mock.Anything).Return(float64(30), nil)

	request := videoRequest("https://example.com/v")
	request.TrimStart = "00:50"
	request.TrimEnd = "01:00"

	id, err := harness.service.Submit(job.KindVideo, request)
	require.NoError(t, err)

	terminal := harness.waitForTerminal(t, id)
	assert.Equal(t, job.Failed, terminal.Status)
	assert.Equal(t, "Invalid trim window", terminal.Message)
	harness.transcoder.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything)
}

func Test_Job_DownloadFailureMessages(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	tests := []struct {
		url             string
		downloadErr     error
		expectedMessage string
	}{
		{url: "https://example.com/gone", downloadErr: fmt.Errorf("%w: removed", ytdlp.ErrSourceUnavailable), expectedMessage: "The source media is unavailable (removed, private, or region-locked)"},
		{url: "https://example.com/flaky", downloadErr: fmt.Errorf("%w: reset", ytdlp.ErrNetwork), expectedMessage: "A network error occurred while downloading the media"},
		{url: "https://example.com/other", downloadErr: errExpected, expectedMessage: "Download failed"},
	}

	for _, test := range tests {
		harness.downloader.On("Download", test.url, mock.Anything, mock.Anything, mock.Anything).Return(test.downloadErr)
	}

	for _, test := range tests {
		id, err := harness.service.Submit(job.KindVideo, videoRequest(test.url))
		require.NoError(t, err)

		terminal := harness.waitForTerminal(t, id)
		assert.Equal(t, job.Failed, terminal.Status)
		assert.Equal(t, test.expectedMessage, terminal.Message)
		assert.NotEmpty(t, terminal.ErrorDetail)
	}
}

func Test_Job_FailureDoesNotAffectOtherJobs(t *testing.T) {
	t.Parallel()
	harness := startService(t, 2)

	harness.downloader.On("Download", "https://example.com/bad", mock.Anything, mock.Anything, mock.Anything).Return(errExpected)
	harness.downloader.On("Download", "https://example.com/good", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	harness.transcoder.On("Transcode", mock.Anything, mock.Anything).Return(nil)

	badID, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/bad"))
	require.NoError(t, err)
	goodID, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/good"))
	require.NoError(t, err)

	assert.Equal(t, job.Failed, harness.waitForTerminal(t, badID).Status)
	assert.Equal(t, job.Completed, harness.waitForTerminal(t, goodID).Status)
}

func Test_Job_ManyConcurrentSubmissions(t *testing.T) {
	t.Parallel()
	harness := startService(t, 4)

	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	harness.transcoder.On("Transcode", mock.Anything, mock.Anything).Return(nil)

	const jobs = 10
	ids := make([]uuid.UUID, 0, jobs)
	seen := make(map[uuid.UUID]struct{})
	for i := 0; i < jobs; i++ {
		id, err := harness.service.Submit(job.KindVideo, videoRequest(fmt.Sprintf("https://example.com/v%d", i)))
		require.NoError(t, err)

		_, duplicate := seen[id]
		require.False(t, duplicate, "job IDs must be unique")
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, id := range ids {
		terminal := harness.waitForTerminal(t, id)
		assert.Equal(t, job.Completed, terminal.Status)
	}
}

func Test_Job_AudioSubmissionProducesAudioArtifact(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, true).Return(nil)
	harness.transcoder.On("Transcode", mock.Anything, mock.Anything).Return(nil)

	// 'flac' is not a supported target, so the job falls back to mp3.
	id, err := harness.service.Submit(job.KindAudio, processor.ProcessRequest{URL: "https://example.com/song", Format: "flac"})
	require.NoError(t, err)

	terminal := harness.waitForTerminal(t, id)
	assert.Equal(t, job.Completed, terminal.Status)
	assert.Equal(t, fmt.Sprintf("%s.mp3", id), terminal.ArtifactName)
}

func Test_CancelTask(t *testing.T) {
	t.Parallel()

	t.Run("unknown task", func(t *testing.T) {
		harness := startService(t, 1)
		assert.ErrorIs(t, harness.service.CancelTask(uuid.New()), job.ErrNotFound)
	})

	t.Run("running task is aborted via its context", func(t *testing.T) {
		harness := startService(t, 1)

		harness.downloader.blockOnCtx = true
		downloadStarted := make(chan struct{})
		harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { close(downloadStarted) }).
			Return(nil)

		id, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/slow"))
		require.NoError(t, err)

		<-downloadStarted
		require.NoError(t, harness.service.CancelTask(id))

		terminal := harness.waitForTerminal(t, id)
		assert.Equal(t, job.Failed, terminal.Status)
		assert.Equal(t, "Cancelled", terminal.Message)
	})
}

// A download whose total size the tool cannot estimate must still advance
// through coarse milestones rather than sitting at the start of the band
// until it finishes.
func Test_Job_NoTotalDownloadAdvancesThroughMilestones(t *testing.T) {
	t.Parallel()
	harness := startService(t, 1)

	observed := make(chan int, 16)
	harness.downloader.progressFeed = func(report ytdlp.ProgressCallback) {
		for _, downloaded := range []int64{1 << 20, 64 << 20, 1 << 30} {
			report(downloaded, 0)
			if tasks := harness.service.AllTasks(); len(tasks) == 1 {
				observed <- tasks[0].Progress
			}
		}
	}
	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	harness.transcoder.On("Transcode", mock.Anything, mock.Anything).Return(nil)

	id, err := harness.service.Submit(job.KindVideo, videoRequest("https://example.com/livestream"))
	require.NoError(t, err)

	terminal := harness.waitForTerminal(t, id)
	require.Equal(t, job.Completed, terminal.Status)

	close(observed)
	milestones := make([]int, 0, 3)
	for percent := range observed {
		milestones = append(milestones, percent)
	}
	assert.Equal(t, []int{10, 40, 70}, milestones)
}

// A job must be cancellable at every instant between submission and its
// terminal state, including the handover from the pending queue to a
// worker.
func Test_CancelTask_NeverMissesALiveJob(t *testing.T) {
	t.Parallel()
	harness := startService(t, 2)

	harness.downloader.blockOnCtx = true
	harness.downloader.On("Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for i := 0; i < 25; i++ {
		id, err := harness.service.Submit(job.KindVideo, videoRequest(fmt.Sprintf("https://example.com/v%d", i)))
		require.NoError(t, err)

		require.NoError(t, harness.service.CancelTask(id), "a live job must always be cancellable")

		terminal := harness.waitForTerminal(t, id)
		assert.Equal(t, job.Failed, terminal.Status)
		assert.Equal(t, "Cancelled", terminal.Message)
	}
}
