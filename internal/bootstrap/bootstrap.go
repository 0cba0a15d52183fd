// Package bootstrap provides dependency initialization for the audiocut API
// and CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/audiocut-api/internal/audio"
	"github.com/maauso/audiocut-api/internal/cache"
	"github.com/maauso/audiocut-api/internal/config"
	"github.com/maauso/audiocut-api/internal/downloader"
	"github.com/maauso/audiocut-api/internal/media"
	"github.com/maauso/audiocut-api/internal/metadata"
	"github.com/maauso/audiocut-api/internal/processing"
	"github.com/maauso/audiocut-api/internal/storage"
	"github.com/maauso/audiocut-api/internal/waveform"
	"github.com/maauso/audiocut-api/internal/ytdlp"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Service  *processing.Service
	Renderer *waveform.Renderer
	// Local is set when artifacts are stored on local disk.
	Local *storage.LocalStorage

	closers []func() error
}

// Close releases clients opened by NewDependencies.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	store, err := deps.initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))
	runner := ytdlp.NewRunner(cfg.YTDLPPath)
	logger.Debug("media tools configured",
		slog.String("yt_dlp", runner.Path()),
		slog.String("ffmpeg", cfg.FFmpegPath),
	)

	var prober metadata.Prober = metadata.NewYTDLPProber(runner)
	if cfg.CacheEnabled() {
		client, err := cache.Connect(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn("metadata cache disabled",
				slog.String("redis_addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		} else {
			deps.closers = append(deps.closers, client.Close)
			prober = metadata.NewCachedProber(prober, cache.NewMetadataCache(client, cfg.MetadataCacheTTL), logger)
			logger.Info("metadata cache configured",
				slog.String("redis_addr", cfg.RedisAddr),
				slog.Duration("ttl", cfg.MetadataCacheTTL),
			)
		}
	}

	deps.Renderer = waveform.NewRenderer()
	deps.Service = processing.NewService(
		processing.Components{
			Fetcher:   downloader.NewYTDLPFetcher(runner, processor, downloader.WithLogger(logger)),
			Prober:    prober,
			Resolver:  metadata.NewYTDLPResolver(runner, processor, metadata.WithResolverLogger(logger)),
			Decoder:   audio.NewWAVDecoder(processor),
			Splitter:  audio.NewFFmpegSplitter(processor),
			Processor: processor,
			Renderer:  deps.Renderer,
			Storage:   store,
		},
		processing.WithWorkRoot(cfg.TempDir),
		processing.WithMaxPoints(cfg.WaveformMaxPoints),
		processing.WithDefaultFormat(cfg.DefaultFormat),
		processing.WithLogger(logger),
	)

	return deps, nil
}

// StartRetention launches the sweeper for locally stored artifacts. It is a
// no-op for remote backends or a zero TTL.
func (d *Dependencies) StartRetention(ctx context.Context, ttl time.Duration, logger *slog.Logger) {
	if d.Local == nil || ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	d.Local.StartRetention(ctx, ttl, interval, logger)
}

// initStorage creates the artifact store selected by STORAGE_BACKEND.
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil

	case config.BackendGCS:
		gcsStore, err := storage.NewGCSStorage(ctx, storage.GCSConfig{
			Bucket:          cfg.GCSBucket,
			Prefix:          cfg.GCSPrefix,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("create GCS storage: %w", err)
		}
		d.closers = append(d.closers, gcsStore.Close)
		logger.Info("GCS storage configured",
			slog.String("bucket", cfg.GCSBucket),
			slog.String("prefix", cfg.GCSPrefix),
		)
		return gcsStore, nil

	case config.BackendMinIO:
		minioStore, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			Bucket:    cfg.MinIOBucket,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create MinIO storage: %w", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("prepare MinIO bucket: %w", err)
		}
		logger.Info("MinIO storage configured",
			slog.String("endpoint", cfg.MinIOEndpoint),
			slog.String("bucket", cfg.MinIOBucket),
		)
		return minioStore, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	d.Local = localStore
	logger.Info("local storage configured",
		slog.String("output_dir", localStore.BaseDir()),
		slog.Duration("retention_ttl", cfg.RetentionTTL),
	)
	return localStore, nil
}
