package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/audio"
	"github.com/maauso/audiocut-api/internal/downloader"
	"github.com/maauso/audiocut-api/internal/media"
	"github.com/maauso/audiocut-api/internal/metadata"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url, dir string) (*downloader.Result, error) {
	args := m.Called(ctx, url, dir)
	if fn, ok := args.Get(0).(func(context.Context, string, string) *downloader.Result); ok {
		return fn(ctx, url, dir), args.Error(1)
	}
	if res := args.Get(0); res != nil {
		return res.(*downloader.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, url string) (*metadata.Record, error) {
	args := m.Called(ctx, url)
	if rec := args.Get(0); rec != nil {
		return rec.(*metadata.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, url string) (*metadata.Resolution, error) {
	args := m.Called(ctx, url)
	if res := args.Get(0); res != nil {
		return res.(*metadata.Resolution), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockProcessor implements media.Processor. ExtractSegment writes dst so
// the result can be published.
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Transcode(ctx context.Context, src, dst string, codec media.Codec) error {
	return m.Called(ctx, src, dst, codec).Error(0)
}

func (m *mockProcessor) DecodeToWAV(ctx context.Context, src, dst string) error {
	return m.Called(ctx, src, dst).Error(0)
}

func (m *mockProcessor) ExtractSegment(ctx context.Context, src, dst string, start, duration float64, codec media.Codec) error {
	err := m.Called(ctx, src, dst, start, duration, codec).Error(0)
	if err == nil {
		_ = os.WriteFile(dst, []byte("range"), 0o600)
	}
	return err
}

func (m *mockProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

type mockDecoder struct {
	mock.Mock
}

func (m *mockDecoder) Decode(ctx context.Context, src, workDir string) (*audio.Buffer, string, error) {
	args := m.Called(ctx, src, workDir)
	if buf := args.Get(0); buf != nil {
		return buf.(*audio.Buffer), args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

type mockSplitter struct {
	mock.Mock
}

func (m *mockSplitter) Split(ctx context.Context, src, outputDir string, opts audio.SplitOpts) ([]audio.Segment, error) {
	args := m.Called(ctx, src, outputDir, opts)
	if fn, ok := args.Get(0).(func(context.Context, string, string, audio.SplitOpts) []audio.Segment); ok {
		return fn(ctx, src, outputDir, opts), args.Error(1)
	}
	if segs := args.Get(0); segs != nil {
		return segs.([]audio.Segment), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(buf *audio.Buffer, splitPoints []float64) (string, error) {
	args := m.Called(buf, splitPoints)
	return args.String(0), args.Error(1)
}

// memoryStore records published artifacts. failAt makes the nth PutFile
// (1-based) fail.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
	failAt  int
	puts    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]string{}}
}

func (s *memoryStore) PutFile(_ context.Context, key, localPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failAt > 0 && s.puts == s.failAt {
		return "", errors.New("bucket unavailable")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	s.objects[key] = localPath
	return "mem://" + key, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type fixture struct {
	root      string
	fetcher   *mockFetcher
	prober    *mockProber
	resolver  *mockResolver
	decoder   *mockDecoder
	splitter  *mockSplitter
	processor *mockProcessor
	renderer  *mockRenderer
	store     *memoryStore
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		root:      t.TempDir(),
		fetcher:   new(mockFetcher),
		prober:    new(mockProber),
		resolver:  new(mockResolver),
		decoder:   new(mockDecoder),
		splitter:  new(mockSplitter),
		processor: new(mockProcessor),
		renderer:  new(mockRenderer),
		store:     newMemoryStore(),
	}
	f.svc = NewService(Components{
		Fetcher:   f.fetcher,
		Prober:    f.prober,
		Resolver:  f.resolver,
		Decoder:   f.decoder,
		Splitter:  f.splitter,
		Processor: f.processor,
		Renderer:  f.renderer,
		Storage:   f.store,
	}, WithWorkRoot(f.root), WithMaxPoints(100))
	return f
}

// assertNoWorkspaces checks that every request workspace was removed.
func (f *fixture) assertNoWorkspaces(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// expectDownload makes the fetcher write track.mp3 into the workspace and
// the decoder return buf with a WAV next to it.
func (f *fixture) expectDownload(buf *audio.Buffer) {
	f.fetcher.On("Fetch", mock.Anything, "https://example.com/a", mock.Anything).
		Return(func(_ context.Context, _, dir string) *downloader.Result {
			path := filepath.Join(dir, "track.mp3")
			_ = os.WriteFile(path, []byte("mp3"), 0o600)
			return &downloader.Result{Path: path, Format: "mp3", Title: "Track", Duration: buf.Duration()}
		}, nil)
	f.decoder.On("Decode", mock.Anything, mock.Anything, mock.Anything).
		Return(buf, "", nil).
		Run(func(args mock.Arguments) {
			_ = os.WriteFile(filepath.Join(args.String(2), "track.decoded.wav"), []byte("wav"), 0o600)
		})
}

func testBuffer(seconds, rate int) *audio.Buffer {
	samples := make([]float64, seconds*rate)
	for i := range samples {
		samples[i] = float64(i%10) / 10
	}
	return &audio.Buffer{Samples: samples, SampleRate: rate}
}

func TestService_Metadata(t *testing.T) {
	f := newFixture(t)
	rec := &metadata.Record{Title: "T"}
	f.prober.On("Probe", mock.Anything, "https://example.com/a").Return(rec, nil)

	got, err := f.svc.Metadata(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Same(t, rec, got)

	_, err = f.svc.Metadata(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrInput)
}

func TestService_MetadataFailure(t *testing.T) {
	f := newFixture(t)
	f.prober.On("Probe", mock.Anything, "u").Return(nil, errors.New("yt-dlp: Video unavailable"))

	_, err := f.svc.Metadata(context.Background(), "u")
	assert.ErrorIs(t, err, apperr.ErrProbe)
	assert.Equal(t, "yt-dlp: Video unavailable", apperr.Cause(err).Error())
}

func TestService_ProcessAudio(t *testing.T) {
	f := newFixture(t)
	buf := testBuffer(2, 1000)
	f.expectDownload(buf)
	f.renderer.On("Render", buf, []float64{0.5}).Return("data:image/png;base64,AAAA", nil)

	out, err := f.svc.ProcessAudio(context.Background(), ProcessInput{
		URL:         "https://example.com/a",
		SplitPoints: []float64{0.5},
	})
	require.NoError(t, err)

	assert.Equal(t, "data:image/png;base64,AAAA", out.Image)
	assert.InDelta(t, 2.0, out.Duration, 1e-9)
	assert.Equal(t, "Track", out.Title)
	assert.LessOrEqual(t, len(out.Waveform.Times), 100)
	assert.Equal(t, len(out.Waveform.Times), len(out.Waveform.Amplitudes))
	assert.Regexp(t, `^mem://sources/[0-9a-f-]+/track\.mp3$`, out.FilePath)

	f.assertNoWorkspaces(t)
}

func TestService_ProcessAudioDuration(t *testing.T) {
	tests := []struct {
		name     string
		reported float64
		want     float64
	}{
		{name: "reported by fetcher", reported: 183.4, want: 183.4},
		{name: "falls back to decoded audio", reported: 0, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			buf := testBuffer(2, 1000)
			f.fetcher.On("Fetch", mock.Anything, "https://example.com/a", mock.Anything).
				Return(func(_ context.Context, _, dir string) *downloader.Result {
					path := filepath.Join(dir, "track.mp3")
					_ = os.WriteFile(path, []byte("mp3"), 0o600)
					return &downloader.Result{Path: path, Format: "mp3", Duration: tt.reported}
				}, nil)
			f.decoder.On("Decode", mock.Anything, mock.Anything, mock.Anything).Return(buf, "", nil)
			f.renderer.On("Render", buf, []float64(nil)).Return("data:image/png;base64,", nil)

			out, err := f.svc.ProcessAudio(context.Background(), ProcessInput{URL: "https://example.com/a"})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out.Duration, 1e-9)
		})
	}
}

func TestService_ProcessAudioFailures(t *testing.T) {
	t.Run("empty url", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ProcessAudio(context.Background(), ProcessInput{URL: " "})
		assert.ErrorIs(t, err, apperr.ErrInput)
		f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("download", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.On("Fetch", mock.Anything, "https://example.com/a", mock.Anything).
			Return(nil, errors.New("network down"))

		_, err := f.svc.ProcessAudio(context.Background(), ProcessInput{URL: "https://example.com/a"})
		assert.ErrorIs(t, err, apperr.ErrDownload)
		f.assertNoWorkspaces(t)
	})

	t.Run("render", func(t *testing.T) {
		f := newFixture(t)
		buf := testBuffer(1, 100)
		f.expectDownload(buf)
		f.renderer.On("Render", buf, []float64(nil)).Return("", errors.New("no font"))

		_, err := f.svc.ProcessAudio(context.Background(), ProcessInput{URL: "https://example.com/a"})
		assert.ErrorIs(t, err, apperr.ErrRender)
		assert.Empty(t, f.store.objects)
		f.assertNoWorkspaces(t)
	})

	t.Run("storage", func(t *testing.T) {
		f := newFixture(t)
		f.store.failAt = 1
		buf := testBuffer(1, 100)
		f.expectDownload(buf)
		f.renderer.On("Render", buf, []float64(nil)).Return("data:image/png;base64,", nil)

		_, err := f.svc.ProcessAudio(context.Background(), ProcessInput{URL: "https://example.com/a"})
		assert.ErrorIs(t, err, apperr.ErrStorage)
		f.assertNoWorkspaces(t)
	})
}

// segmentsIn writes n segment files into dir the way the splitter would.
func segmentsIn(dir string, n int, format string) []audio.Segment {
	segs := make([]audio.Segment, 0, n)
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("segment_tmp%d.%s", i, format))
		_ = os.WriteFile(path, []byte("seg"), 0o600)
		segs = append(segs, audio.Segment{
			Index:     i,
			StartTime: float64(i - 1),
			EndTime:   float64(i),
			Duration:  1,
			Filename:  fmt.Sprintf("segment_%d.%s", i, format),
			Path:      path,
		})
	}
	return segs
}

func TestService_SplitAudio(t *testing.T) {
	f := newFixture(t)
	buf := testBuffer(3, 1000)
	f.expectDownload(buf)

	f.splitter.On("Split", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(o audio.SplitOpts) bool {
		return o.Format == "flac" && o.DurationMs == 3000 && len(o.Points) == 2
	})).Return(func(_ context.Context, _, dir string, _ audio.SplitOpts) []audio.Segment {
		return segmentsIn(dir, 3, "flac")
	}, nil)

	out, err := f.svc.SplitAudio(context.Background(), SplitInput{
		URL:         "https://example.com/a",
		SplitPoints: []float64{1, 2},
		Format:      "FLAC",
	})
	require.NoError(t, err)

	require.Len(t, out.Segments, 3)
	for i, seg := range out.Segments {
		assert.Equal(t, i+1, seg.Index)
		assert.Regexp(t, fmt.Sprintf(`^mem://segments/[0-9a-f-]+/segment_%d\.flac$`, i+1), seg.TempPath)
	}
	assert.Len(t, f.store.objects, 3)
	f.assertNoWorkspaces(t)
}

func TestService_SplitAudioDefaultsFormat(t *testing.T) {
	f := newFixture(t)
	f.svc = NewService(Components{
		Fetcher:  f.fetcher,
		Decoder:  f.decoder,
		Splitter: f.splitter,
		Storage:  f.store,
	}, WithWorkRoot(f.root), WithDefaultFormat("ogg"))

	buf := testBuffer(1, 1000)
	f.expectDownload(buf)
	f.splitter.On("Split", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(o audio.SplitOpts) bool {
		return o.Format == "ogg"
	})).Return([]audio.Segment{}, nil)

	_, err := f.svc.SplitAudio(context.Background(), SplitInput{URL: "https://example.com/a", SplitPoints: []float64{0.5}})
	require.NoError(t, err)
	f.splitter.AssertExpectations(t)
}

func TestService_SplitAudioValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   SplitInput
	}{
		{"missing url", SplitInput{SplitPoints: []float64{1}}},
		{"missing points", SplitInput{URL: "https://example.com/a"}},
		{"unsupported format", SplitInput{URL: "https://example.com/a", SplitPoints: []float64{1}, Format: "aiff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SplitAudio(context.Background(), tt.in)
			assert.ErrorIs(t, err, apperr.ErrInput)
		})
	}
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SplitAudioPublishRollback(t *testing.T) {
	f := newFixture(t)
	f.store.failAt = 3
	buf := testBuffer(4, 100)
	f.expectDownload(buf)
	f.splitter.On("Split", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(_ context.Context, _, dir string, _ audio.SplitOpts) []audio.Segment {
			return segmentsIn(dir, 4, "mp3")
		}, nil)

	_, err := f.svc.SplitAudio(context.Background(), SplitInput{URL: "https://example.com/a", SplitPoints: []float64{1, 2, 3}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorage)

	assert.Empty(t, f.store.objects, "published segments are deleted")
	assert.Len(t, f.store.deleted, 2)
	f.assertNoWorkspaces(t)
}

func TestService_SplitAudioEncodeFailure(t *testing.T) {
	f := newFixture(t)
	buf := testBuffer(1, 100)
	f.expectDownload(buf)
	f.splitter.On("Split", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("ffmpeg failed"))

	_, err := f.svc.SplitAudio(context.Background(), SplitInput{URL: "https://example.com/a", SplitPoints: []float64{0.5}})
	assert.ErrorIs(t, err, apperr.ErrEncode)
	f.assertNoWorkspaces(t)
}

func TestService_DecodeFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.On("Fetch", mock.Anything, "https://example.com/a", mock.Anything).
		Return(&downloader.Result{Path: "/nowhere/track.mp3"}, nil)
	f.decoder.On("Decode", mock.Anything, "/nowhere/track.mp3", mock.Anything).
		Return(nil, "", errors.New("invalid data"))

	_, err := f.svc.SplitAudio(context.Background(), SplitInput{URL: "https://example.com/a", SplitPoints: []float64{1}})
	assert.ErrorIs(t, err, apperr.ErrDecode)
	f.assertNoWorkspaces(t)
}

func TestService_CancellationRemovesWorkspace(t *testing.T) {
	t.Run("during download", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f.fetcher.On("Fetch", mock.Anything, "https://example.com/a", mock.Anything).
			Return(func(_ context.Context, _, dir string) *downloader.Result {
				_ = os.WriteFile(filepath.Join(dir, "track.part"), []byte("partial"), 0o600)
				cancel()
				return nil
			}, context.Canceled)

		_, err := f.svc.ProcessAudio(ctx, ProcessInput{URL: "https://example.com/a"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, apperr.ErrDownload)
		f.assertNoWorkspaces(t)
	})

	t.Run("during split", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f.expectDownload(testBuffer(3, 100))
		f.splitter.On("Split", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(func(_ context.Context, _, dir string, _ audio.SplitOpts) []audio.Segment {
				segmentsIn(dir, 2, "mp3")
				cancel()
				return nil
			}, context.Canceled)

		_, err := f.svc.SplitAudio(ctx, SplitInput{URL: "https://example.com/a", SplitPoints: []float64{1, 2}})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, f.store.objects)
		f.assertNoWorkspaces(t)
	})
}

func TestService_Resolve(t *testing.T) {
	f := newFixture(t)
	direct := "https://cdn.example.com/a.m4a"
	res := &metadata.Resolution{URL: &direct, IsProgressive: true}
	f.resolver.On("Resolve", mock.Anything, "https://example.com/a").Return(res, nil)
	f.resolver.On("Resolve", mock.Anything, "https://example.com/gone").
		Return(nil, apperr.New(apperr.ErrUnresolved, "resolve", "Unable to resolve media URL"))

	got, err := f.svc.Resolve(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Same(t, res, got)

	_, err = f.svc.Resolve(context.Background(), "https://example.com/gone")
	assert.ErrorIs(t, err, apperr.ErrUnresolved)

	_, err = f.svc.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrInput)
}

// expectFetch makes the fetcher write track.mp3 reporting duration seconds.
func (f *fixture) expectFetch(duration float64) {
	f.fetcher.On("Fetch", mock.Anything, "https://example.com/a", mock.Anything).
		Return(func(_ context.Context, _, dir string) *downloader.Result {
			path := filepath.Join(dir, "track.mp3")
			_ = os.WriteFile(path, []byte("mp3"), 0o600)
			return &downloader.Result{Path: path, Format: "mp3", Duration: duration}
		}, nil)
}

func TestService_ExtractRange(t *testing.T) {
	f := newFixture(t)
	f.expectFetch(90)
	flac, _ := media.CodecFor("flac")
	f.processor.On("ExtractSegment", mock.Anything, mock.MatchedBy(func(src string) bool {
		return filepath.Base(src) == "track.mp3"
	}), mock.Anything, 30.0, 60.0, flac).Return(nil)

	out, err := f.svc.ExtractRange(context.Background(), ExtractInput{
		URL:    "https://example.com/a",
		Start:  30,
		End:    120,
		Format: "FLAC",
	})
	require.NoError(t, err)

	seg := out.Segment
	assert.Equal(t, 30.0, seg.StartTime)
	assert.Equal(t, 90.0, seg.EndTime, "end is clamped to the duration")
	assert.Equal(t, 60.0, seg.Duration)
	assert.Equal(t, "audio_selection_30.0_to_90.0.flac", seg.Filename)
	assert.Regexp(t, `^mem://segments/[0-9a-f-]+/audio_selection_30\.0_to_90\.0\.flac$`, seg.TempPath)
	assert.Len(t, f.store.objects, 1)
	f.assertNoWorkspaces(t)
}

func TestService_ExtractRangeValidation(t *testing.T) {
	tests := []struct {
		name string
		in   ExtractInput
	}{
		{"missing url", ExtractInput{Start: 0, End: 1}},
		{"negative start", ExtractInput{URL: "https://example.com/a", Start: -1, End: 1}},
		{"empty range", ExtractInput{URL: "https://example.com/a", Start: 5, End: 5}},
		{"reversed range", ExtractInput{URL: "https://example.com/a", Start: 5, End: 2}},
		{"unsupported format", ExtractInput{URL: "https://example.com/a", Start: 0, End: 1, Format: "aiff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.ExtractRange(context.Background(), tt.in)
			assert.ErrorIs(t, err, apperr.ErrInput)
			f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("start past the end", func(t *testing.T) {
		f := newFixture(t)
		f.expectFetch(10)

		_, err := f.svc.ExtractRange(context.Background(), ExtractInput{URL: "https://example.com/a", Start: 12, End: 20})
		assert.ErrorIs(t, err, apperr.ErrInput)
		f.processor.AssertNotCalled(t, "ExtractSegment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.assertNoWorkspaces(t)
	})
}

func TestService_ExtractRangeFailures(t *testing.T) {
	t.Run("encode", func(t *testing.T) {
		f := newFixture(t)
		f.expectFetch(0)
		f.processor.On("ExtractSegment", mock.Anything, mock.Anything, mock.Anything, 1.0, 1.0, mock.Anything).
			Return(errors.New("ffmpeg exited 1"))

		_, err := f.svc.ExtractRange(context.Background(), ExtractInput{URL: "https://example.com/a", Start: 1, End: 2})
		assert.ErrorIs(t, err, apperr.ErrEncode)
		assert.Empty(t, f.store.objects)
		f.assertNoWorkspaces(t)
	})

	t.Run("storage", func(t *testing.T) {
		f := newFixture(t)
		f.store.failAt = 1
		f.expectFetch(10)
		f.processor.On("ExtractSegment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil)

		_, err := f.svc.ExtractRange(context.Background(), ExtractInput{URL: "https://example.com/a", Start: 1, End: 2})
		assert.ErrorIs(t, err, apperr.ErrStorage)
		f.assertNoWorkspaces(t)
	})
}
