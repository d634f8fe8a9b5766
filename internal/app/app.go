package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/vision-service/internal/cfg"
	v1Grpc "github.com/DRSN-tech/vision-service/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/vision-service/internal/delivery/v1/http"
	"github.com/DRSN-tech/vision-service/internal/infrastructure/catalog"
	"github.com/DRSN-tech/vision-service/internal/infrastructure/downloader"
	"github.com/DRSN-tech/vision-service/internal/infrastructure/kafka"
	"github.com/DRSN-tech/vision-service/internal/infrastructure/metrics"
	minioInfra "github.com/DRSN-tech/vision-service/internal/infrastructure/minio"
	ml_service "github.com/DRSN-tech/vision-service/internal/infrastructure/ml-service"
	"github.com/DRSN-tech/vision-service/internal/repository/dataset"
	"github.com/DRSN-tech/vision-service/internal/repository/memory"
	s3Repo "github.com/DRSN-tech/vision-service/internal/repository/minio"
	"github.com/DRSN-tech/vision-service/internal/repository/pgdb"
	qdrantRepo "github.com/DRSN-tech/vision-service/internal/repository/qdrant"
	"github.com/DRSN-tech/vision-service/internal/repository/redis"
	"github.com/DRSN-tech/vision-service/internal/repository/vectorindex"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/clients"
	"github.com/DRSN-tech/vision-service/pkg/closer"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/DRSN-tech/vision-service/pkg/postgres"
	"github.com/DRSN-tech/vision-service/pkg/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	startupTimeout      = 10 * time.Second
	minioCleanupTimeout = 5 * time.Second
)

// App собирает зависимости сервиса и управляет его жизненным циклом.
type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	Recognition *usecase.RecognitionUseCase
	Training    *usecase.TrainingUseCase
	Organizer   *usecase.DatasetOrganizer
	Builder     *usecase.IndexBuilder
	Store       *vectorindex.Store

	images   *minioInfra.MinioInfrastructure
	registry *prometheus.Registry

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewApp поднимает клиентов и usecase-слой. Внешние интеграции (Postgres, Qdrant, MinIO, Kafka)
// подключаются только если включены в конфигурации.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	a := &App{
		cfg:            cfg,
		logger:         log,
		closer:         closer.NewCloser(cfg.Http.ShutdownTimeout),
		registry:       prometheus.NewRegistry(),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	if err := a.init(); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Http.ShutdownTimeout)
		defer cancel()
		if cerr := a.closer.Close(closeCtx); cerr != nil {
			log.Warnf("cleanup after failed start: %v", cerr)
		}
		shutdownCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return a, nil
}

func (a *App) init() error {
	cfg := a.cfg

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(a.registry)

	if err := a.initTracing(); err != nil {
		return err
	}

	conn, err := grpc.NewClient(
		cfg.Ml.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize ml grpc client: %w", err)
	}
	a.closer.AddErr("ml grpc client", conn.Close)

	ml := ml_service.NewMLService(conn, cfg.Ml.MaxConcurrent, cfg.Ml.MaxRetries, cfg.Ml.Timeout, cfg.Storage.VectorSize, a.logger)

	store, err := vectorindex.NewStore(cfg.Storage.EmbeddingsDir, cfg.Storage.VectorSize, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize index store: %w", err)
	}
	a.Store = store

	datasets, err := dataset.NewDatasetRepo(cfg.Storage.DatasetsDir, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dataset repository: %w", err)
	}

	jobs, err := a.initJobs()
	if err != nil {
		return err
	}

	catalogInfra, err := catalog.NewCatalogInfrastructure(cfg.Catalog, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog client: %w", err)
	}
	images := downloader.NewImageDownloader(cfg.Organizer, a.logger)

	publisher, err := a.initPublisher(store)
	if err != nil {
		return err
	}

	a.Recognition = usecase.NewRecognitionUC(ml, ml, store, cfg.Recognition, cfg.Storage.VectorSize, m, a.logger)
	a.Organizer = usecase.NewDatasetOrganizer(catalogInfra, images, ml, datasets, cfg.Organizer, cfg.Recognition, m, a.logger)
	a.Builder = usecase.NewIndexBuilder(datasets, ml, store, cfg.Ml.MaxConcurrent, m, a.logger)
	a.Training = usecase.NewTrainingUC(a.Organizer, a.Builder, ml, datasets, store, jobs, publisher, a.logger)

	return nil
}

// initTracing ставит глобальный провайдер трейсов с OTLP-экспортёром, если трейсинг включён.
// Иначе спаны остаются no-op.
func (a *App) initTracing() error {
	tc := a.cfg.Telemetry
	if tc == nil || !tc.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Options{
		Endpoint:    tc.Endpoint,
		Protocol:    tc.Protocol,
		Insecure:    tc.Insecure,
		ServiceName: tc.ServiceName,
		SampleRate:  tc.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closer.Add("tracer provider", tp.Shutdown)

	a.logger.Infof("tracing enabled: exporting to %s over %s", tc.Endpoint, tc.Protocol)
	return nil
}

// initJobs выбирает хранилище состояний задач обучения: память процесса или Redis.
func (a *App) initJobs() (usecase.JobStatusRepository, error) {
	if a.cfg.Jobs.Store != "redis" {
		return memory.NewJobStatusRepo(), nil
	}

	redisClient := clients.NewRedisClient(a.cfg.Redis)
	a.closer.AddErr("redis", redisClient.Close)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := redisClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return redis.NewJobStatusRepo(redisClient, a.cfg.Redis, a.cfg.Jobs, a.logger), nil
}

// initPublisher подключает включённые интеграции публикации индекса.
// Выключенная интеграция передаётся как nil-интерфейс.
func (a *App) initPublisher(store *vectorindex.Store) (*usecase.IndexPublisher, error) {
	cfg := a.cfg

	var (
		versions usecase.IndexVersionRepository
		mirror   usecase.IndexMirrorRepository
		backup   usecase.IndexBackupInfra
		events   usecase.IndexEventsInfra
	)

	if cfg.Db.Enabled {
		db, err := initPGDB(a.logger, cfg)
		if err != nil {
			return nil, err
		}
		a.closer.AddErr("postgres", func() error {
			db.Close()
			return nil
		})
		versions = pgdb.NewIndexVersionRepo(db.Pool)
	}

	if cfg.Qdrant.Enabled {
		qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize qdrant: %w", err)
		}
		a.closer.AddErr("qdrant", qdrantClient.Client.Close)
		mirror = qdrantRepo.NewIndexMirrorRepo(qdrantClient, cfg.Qdrant)
	}

	if cfg.Minio.Enabled {
		minioClient, err := clients.NewMinIOClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		if err := clients.EnsureBucket(ctx, minioClient, cfg.Minio.BucketName); err != nil {
			return nil, fmt.Errorf("failed to initialize minio bucket: %w", err)
		}

		objects := s3Repo.NewObjectRepo(minioClient, cfg.Minio)
		a.images = minioInfra.NewMinioInfrastructure(objects, cfg.Minio, a.logger, a.shutdownCtx)
		backup = a.images
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(a.logger, cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka producer: %w", err)
		}
		a.closer.AddErr("kafka producer", producer.Close)

		if err := producer.EnsureTopic(startupTimeout); err != nil {
			return nil, fmt.Errorf("failed to ensure kafka topic: %w", err)
		}
		events = producer
	}

	if versions == nil && mirror == nil && backup == nil && events == nil {
		return nil, nil
	}
	return usecase.NewIndexPublisher(versions, mirror, backup, events, store, a.logger), nil
}

// LoadIndexes поднимает в память все сохранённые индексы. Повреждённый индекс не мешает остальным.
func (a *App) LoadIndexes(ctx context.Context) {
	loaded, err := a.Store.LoadAll(ctx)
	if err != nil {
		a.logger.Errorf(err, "failed to load persisted indexes")
	}
	a.logger.Infof("loaded %d seller indexes", len(loaded))
}

// Run запускает HTTP (и при включении gRPC) сервер и блокируется до сигнала или фатальной ошибки.
func (a *App) Run() error {
	a.LoadIndexes(context.Background())

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, a.logger)
	router.Init(a.Recognition, a.Training, a.cfg.Http.MaxUploadSize, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	httpSrv := v1Http.NewServer(r, a.cfg.Http)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv *v1Grpc.GRPCServer
	if a.cfg.Grpc.Enabled {
		grpcSrv = v1Grpc.NewGRPCServer(a.cfg.Grpc, a.logger)
		grpcSrv.RegisterServices(a.Recognition, a.Training)

		go func() {
			a.logger.Infof("gRPC server starting on %s:%s", a.cfg.Grpc.NetworkMode, a.cfg.Grpc.Port)
			if err := grpcSrv.Start(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Http.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Stop(ctx); err != nil {
		a.logger.Errorf(err, "HTTP server shutdown error")
	} else {
		a.logger.Infof("HTTP server stopped")
	}

	if grpcSrv != nil {
		if err := grpcSrv.Stop(ctx); err != nil {
			a.logger.Warnf("gRPC server shutdown: %v", err)
		} else {
			a.logger.Infof("gRPC server stopped")
		}
	}

	if err := a.Shutdown(ctx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
	}

	a.logger.Infof("Application shutdown complete")
	return appErr
}

// Shutdown дожидается фоновых задач обучения и закрывает ресурсы.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.Training.Wait(ctx); err != nil {
		a.logger.Warnf("training jobs did not finish before shutdown: %v", err)
	}

	if a.images != nil {
		cleanupCtx, cancel := context.WithTimeout(ctx, minioCleanupTimeout)
		defer cancel()
		if err := a.images.WaitForCleanup(cleanupCtx); err != nil {
			a.logger.Warnf("MinIO cleanup did not finish, some backup objects may remain: %v", err)
		}
	}
	a.shutdownCancel()

	return a.closer.Close(ctx)
}

func initPGDB(logger logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(cfg.Db)
	if err != nil {
		logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(logger); err != nil {
		logger.Errorf(err, "failed to run migrations")
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.Ping(); err != nil {
		logger.Errorf(err, "failed to ping database")
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
