package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/ytdlp"
)

func scriptRunner(t *testing.T, body string) *ytdlp.Runner {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return ytdlp.NewRunner(bin)
}

func TestYTDLPProber_Probe(t *testing.T) {
	runner := scriptRunner(t, `for a in "$@"; do
  if [ "$a" = "--skip-download" ]; then skip=1; fi
done
[ -n "$skip" ] || exit 9
echo '{"title":"Set","uploader":"DJ","duration":3600,"ext":"m4a","abr":129.4}'`)

	rec, err := NewYTDLPProber(runner).Probe(context.Background(), "https://example.com/set")
	require.NoError(t, err)

	assert.Equal(t, "Set", rec.Title)
	assert.Equal(t, "DJ", rec.Author)
	assert.InDelta(t, 3600.0, rec.Duration, 1e-9)
	assert.Equal(t, "m4a", rec.Format)
	assert.Equal(t, 129.4, rec.Bitrate)
	assert.Equal(t, "https://example.com/set", rec.URL)
}

func TestYTDLPMetadata_RepeatedLookupsMatch(t *testing.T) {
	runner := scriptRunner(t, `echo '{"title":"Set","channel":"DJ","duration":61.5,"thumbnail":"https://i.example.com/t.jpg","filesize_approx":5242880,"formats":[{"format_id":"a","acodec":"opus","vcodec":"none","abr":96,"ext":"webm","url":"https://cdn.example.com/a"},{"format_id":"b","acodec":"mp4a","vcodec":"none","abr":128,"ext":"m4a","url":"https://cdn.example.com/b"}]}'`)
	p := NewYTDLPProber(runner)

	first, err := p.Probe(context.Background(), "https://example.com/set")
	require.NoError(t, err)
	second, err := p.Probe(context.Background(), "https://example.com/set")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.NotNil(t, first.DirectAudioURL)
	assert.Equal(t, "https://cdn.example.com/b", *first.DirectAudioURL)
	assert.Equal(t, "5.0 MB", first.FilesizeFormatted)
}

func TestYTDLPProber_Errors(t *testing.T) {
	t.Run("empty url", func(t *testing.T) {
		_, err := NewYTDLPProber(ytdlp.NewRunner("")).Probe(context.Background(), "")
		assert.True(t, errors.Is(err, apperr.ErrInput))
	})

	t.Run("yt-dlp failure", func(t *testing.T) {
		runner := scriptRunner(t, `echo "ERROR: Video unavailable" >&2; exit 1`)
		_, err := NewYTDLPProber(runner).Probe(context.Background(), "https://example.com/gone")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrProbe))
		assert.Equal(t, "yt-dlp: Video unavailable", apperr.Cause(err).Error())
	})

	t.Run("garbage output", func(t *testing.T) {
		runner := scriptRunner(t, `echo "not json"`)
		_, err := NewYTDLPProber(runner).Probe(context.Background(), "https://example.com/x")
		assert.True(t, errors.Is(err, apperr.ErrProbe))
	})
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, url string) (*Record, error) {
	args := m.Called(ctx, url)
	if rec := args.Get(0); rec != nil {
		return rec.(*Record), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, url string) (*Record, bool, error) {
	args := m.Called(ctx, url)
	if rec := args.Get(0); rec != nil {
		return rec.(*Record), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, url string, rec *Record) error {
	args := m.Called(ctx, url, rec)
	return args.Error(0)
}

func TestCachedProber(t *testing.T) {
	ctx := context.Background()
	rec := &Record{Title: "T", URL: "u"}

	t.Run("hit skips probe", func(t *testing.T) {
		next, cache := new(mockProber), new(mockCache)
		cache.On("Get", ctx, "u").Return(rec, true, nil)

		got, err := NewCachedProber(next, cache, nil).Probe(ctx, "u")
		require.NoError(t, err)
		assert.Same(t, rec, got)
		next.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
	})

	t.Run("miss probes and stores", func(t *testing.T) {
		next, cache := new(mockProber), new(mockCache)
		cache.On("Get", ctx, "u").Return(nil, false, nil)
		next.On("Probe", ctx, "u").Return(rec, nil)
		cache.On("Set", ctx, "u", rec).Return(nil)

		got, err := NewCachedProber(next, cache, nil).Probe(ctx, "u")
		require.NoError(t, err)
		assert.Same(t, rec, got)
		cache.AssertExpectations(t)
	})

	t.Run("cache errors fall through", func(t *testing.T) {
		next, cache := new(mockProber), new(mockCache)
		cache.On("Get", ctx, "u").Return(nil, false, errors.New("connection refused"))
		next.On("Probe", ctx, "u").Return(rec, nil)
		cache.On("Set", ctx, "u", rec).Return(errors.New("connection refused"))

		got, err := NewCachedProber(next, cache, nil).Probe(ctx, "u")
		require.NoError(t, err)
		assert.Same(t, rec, got)
	})

	t.Run("probe error is not cached", func(t *testing.T) {
		next, cache := new(mockProber), new(mockCache)
		probeErr := apperr.New(apperr.ErrProbe, "probe", "boom")
		cache.On("Get", ctx, "u").Return(nil, false, nil)
		next.On("Probe", ctx, "u").Return(nil, probeErr)

		_, err := NewCachedProber(next, cache, nil).Probe(ctx, "u")
		assert.ErrorIs(t, err, apperr.ErrProbe)
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})
}
