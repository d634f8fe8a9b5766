package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/joho/godotenv"
)

type Config struct {
	Http        *HTTPConfig
	Grpc        *GRPCConfig
	Ml          *MLServiceCfg
	Storage     *StorageCfg
	Recognition *RecognitionCfg
	Catalog     *CatalogCfg
	Organizer   *OrganizerCfg
	Jobs        *JobsCfg
	Redis       *RedisCfg
	Qdrant      *QdrantCfg
	Minio       *MinIOCfg
	Kafka       *KafkaCfg
	Db          *PGDBCfg
	Telemetry   *TelemetryCfg
}

type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxUploadSize   int64
	ShutdownTimeout time.Duration
}

type GRPCConfig struct {
	Enabled     bool
	Port        string
	NetworkMode string
}

type MLServiceCfg struct {
	Addr          string
	MaxConcurrent int
	MaxRetries    int
	Timeout       time.Duration
}

type StorageCfg struct {
	DatasetsDir   string // корень датасетов: datasets/seller_<id>/product_<id>
	EmbeddingsDir string // корень индексов: embeddings/<seller>_index.vec
	VectorSize    int    // размерность эмбеддинга D
}

type RecognitionCfg struct {
	ConfThreshold     float64  // минимальная уверенность детектора
	IoUThreshold      float64  // порог NMS детектора
	MinObjectSize     int      // минимальная короткая сторона бокса, px
	MatchThreshold    float64  // similarity должен быть строго больше
	NonProductClassID int      // класс детектора, который никогда не является товаром
	NonProductClasses []string // имена классов, которые никогда не являются товаром
}

type CatalogCfg struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type OrganizerCfg struct {
	CropEnabled         bool
	AllowedClasses      []string
	DownloadConcurrency int
	DownloadRPS         float64
	DownloadTimeout     time.Duration
	DownloadRetries     int
	MaxImageBytes       int64
}

type JobsCfg struct {
	Store     string // memory или redis
	StatusTTL time.Duration
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	KeyPrefix   string
}

type QdrantCfg struct {
	Enabled          bool
	Port             int
	Host             string
	ApiKey           string
	UseTLS           bool
	CollectionPrefix string // коллекция в Qdrant = префикс + ключ продавца
	UpsertBatchSize  int
}

type MinIOCfg struct {
	Enabled           bool
	MinioEndpoint     string
	BucketName        string
	MinioRootUser     string
	MinioRootPassword string
	MinioUseSSL       bool
	ObjectPrefix      string
}

type KafkaCfg struct {
	Enabled     bool
	Topic       string
	Brokers     []string
	NetworkMode string
	Partitions  int
	Replication int
}

type PGDBCfg struct {
	Enabled        bool
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

type TelemetryCfg struct {
	Enabled     bool
	Endpoint    string // host:port OTLP-коллектора
	Protocol    string // grpc или http/protobuf
	Insecure    bool
	ServiceName string
	SampleRate  float64 // доля трейсов, [0,1]
}

// LoadDotEnv подгружает переменные из .env файлов, если они есть. Отсутствие файла не ошибка.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	grpc, err := loadGRPCConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := loadMLServiceCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	storage, err := loadStorageCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	recognition, err := loadRecognitionCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	catalog, err := loadCatalogCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	organizer, err := loadOrganizerCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	jobs, err := loadJobsCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := loadQdrantCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	telemetry, err := loadTelemetryCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Http:        http,
		Grpc:        grpc,
		Ml:          ml,
		Storage:     storage,
		Recognition: recognition,
		Catalog:     catalog,
		Organizer:   organizer,
		Jobs:        jobs,
		Redis:       redis,
		Qdrant:      qdrant,
		Minio:       minio,
		Kafka:       kafka,
		Db:          db,
		Telemetry:   telemetry,
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort            = "8001"
		defaultReadTimeout     = 15 * time.Second
		defaultWriteTimeout    = 30 * time.Second
		defaultIdleTimeout     = 60 * time.Second
		defaultShutdownTimeout = 10 * time.Second
		defaultMaxUploadSize   = 20 << 20
	)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	if err != nil {
		log.Errorf(err, "invalid SHUTDOWN_TIMEOUT")
		return nil, err
	}

	maxUpload, err := parseIntEnv("HTTP_MAX_UPLOAD_BYTES", defaultMaxUploadSize)
	if err != nil {
		log.Errorf(err, "invalid HTTP_MAX_UPLOAD_BYTES")
		return nil, err
	}

	return &HTTPConfig{
		Port:            getEnvOrDefault("HTTP_PORT", defaultPort),
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		MaxUploadSize:   int64(maxUpload),
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func loadGRPCConfig(log logger.Logger) (*GRPCConfig, error) {
	enabled, err := parseBoolEnv("GRPC_ENABLED", false)
	if err != nil {
		log.Errorf(err, "invalid GRPC_ENABLED")
		return nil, err
	}

	return &GRPCConfig{
		Enabled:     enabled,
		Port:        getEnvOrDefault("GRPC_PORT", "9001"),
		NetworkMode: getEnvOrDefault("GRPC_NETWORK_MODE", "tcp"),
	}, nil
}

func loadMLServiceCfg(log logger.Logger) (*MLServiceCfg, error) {
	const (
		defaultHost          = "ml-service"
		defaultPort          = "50051"
		defaultMaxConcurrent = 8
		defaultMaxRetries    = 3
		defaultTimeout       = 30 * time.Second
	)

	maxConcurrent, err := parseIntEnv("ML_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil {
		log.Errorf(err, "invalid ML_MAX_CONCURRENT")
		return nil, err
	}

	maxRetries, err := parseIntEnv("ML_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid ML_MAX_RETRIES")
		return nil, err
	}

	timeout, err := parseDurationEnv("ML_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid ML_TIMEOUT")
		return nil, err
	}

	host := getEnvOrDefault("ML_HOST", defaultHost)
	port := getEnvOrDefault("ML_PORT", defaultPort)

	return &MLServiceCfg{
		Addr:          host + ":" + port,
		MaxConcurrent: maxConcurrent,
		MaxRetries:    maxRetries,
		Timeout:       timeout,
	}, nil
}

func loadStorageCfg(log logger.Logger) (*StorageCfg, error) {
	const (
		defaultDatasetsDir   = "datasets"
		defaultEmbeddingsDir = "embeddings"
		defaultVectorSize    = 512
	)

	vectorSize, err := parseIntEnv("VECTOR_SIZE", defaultVectorSize)
	if err != nil || vectorSize <= 0 {
		err = fmt.Errorf("VECTOR_SIZE must be a positive integer")
		log.Errorf(err, "invalid VECTOR_SIZE")
		return nil, err
	}

	return &StorageCfg{
		DatasetsDir:   getEnvOrDefault("DATASETS_DIR", defaultDatasetsDir),
		EmbeddingsDir: getEnvOrDefault("EMBEDDINGS_DIR", defaultEmbeddingsDir),
		VectorSize:    vectorSize,
	}, nil
}

func loadRecognitionCfg(log logger.Logger) (*RecognitionCfg, error) {
	const (
		defaultConf              = 0.4
		defaultIoU               = 0.5
		defaultMinObjectSize     = 30
		defaultMatchThreshold    = 0.7
		defaultNonProductClassID = 0
		defaultNonProductClasses = "person"
	)

	conf, err := parseFloatEnv("DETECT_CONF_THRESHOLD", defaultConf)
	if err != nil || conf < 0 || conf > 1 {
		err = fmt.Errorf("DETECT_CONF_THRESHOLD must be in [0,1]")
		log.Errorf(err, "invalid DETECT_CONF_THRESHOLD")
		return nil, err
	}

	iou, err := parseFloatEnv("DETECT_IOU_THRESHOLD", defaultIoU)
	if err != nil || iou < 0 || iou > 1 {
		err = fmt.Errorf("DETECT_IOU_THRESHOLD must be in [0,1]")
		log.Errorf(err, "invalid DETECT_IOU_THRESHOLD")
		return nil, err
	}

	minSize, err := parseIntEnv("MIN_OBJECT_SIZE", defaultMinObjectSize)
	if err != nil || minSize < 0 {
		err = fmt.Errorf("MIN_OBJECT_SIZE must be a non-negative integer")
		log.Errorf(err, "invalid MIN_OBJECT_SIZE")
		return nil, err
	}

	match, err := parseFloatEnv("MATCH_THRESHOLD", defaultMatchThreshold)
	if err != nil || match < -1 || match > 1 {
		err = fmt.Errorf("MATCH_THRESHOLD must be in [-1,1]")
		log.Errorf(err, "invalid MATCH_THRESHOLD")
		return nil, err
	}

	nonProductID, err := parseIntEnv("NON_PRODUCT_CLASS_ID", defaultNonProductClassID)
	if err != nil {
		log.Errorf(err, "invalid NON_PRODUCT_CLASS_ID")
		return nil, err
	}

	return &RecognitionCfg{
		ConfThreshold:     conf,
		IoUThreshold:      iou,
		MinObjectSize:     minSize,
		MatchThreshold:    match,
		NonProductClassID: nonProductID,
		NonProductClasses: splitList(getEnvOrDefault("NON_PRODUCT_CLASSES", defaultNonProductClasses)),
	}, nil
}

func loadCatalogCfg(log logger.Logger) (*CatalogCfg, error) {
	const (
		defaultBaseURL    = "http://backend:8080/api"
		defaultTimeout    = 30 * time.Second
		defaultMaxRetries = 3
	)

	timeout, err := parseDurationEnv("CATALOG_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid CATALOG_TIMEOUT")
		return nil, err
	}

	maxRetries, err := parseIntEnv("CATALOG_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid CATALOG_MAX_RETRIES")
		return nil, err
	}

	return &CatalogCfg{
		BaseURL:    strings.TrimRight(getEnvOrDefault("CATALOG_URL", defaultBaseURL), "/"),
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}, nil
}

func loadOrganizerCfg(log logger.Logger) (*OrganizerCfg, error) {
	const (
		defaultCropEnabled     = true
		defaultConcurrency     = 4
		defaultRPS             = 10.0
		defaultDownloadTimeout = 20 * time.Second
		defaultRetries         = 3
		defaultMaxImageBytes   = 15 << 20
		// классы COCO, которые встречаются среди товаров
		defaultAllowedClasses = "bottle,cup,wine glass,bowl,handbag,backpack,suitcase,umbrella,tie," +
			"cell phone,laptop,book,clock,vase,teddy bear,scissors,remote,keyboard,mouse,sports ball,toothbrush"
	)

	cropEnabled, err := parseBoolEnv("ORGANIZER_CROP_ENABLED", defaultCropEnabled)
	if err != nil {
		log.Errorf(err, "invalid ORGANIZER_CROP_ENABLED")
		return nil, err
	}

	concurrency, err := parseIntEnv("ORGANIZER_DOWNLOAD_CONCURRENCY", defaultConcurrency)
	if err != nil || concurrency <= 0 {
		err = fmt.Errorf("ORGANIZER_DOWNLOAD_CONCURRENCY must be positive")
		log.Errorf(err, "invalid ORGANIZER_DOWNLOAD_CONCURRENCY")
		return nil, err
	}

	rps, err := parseFloatEnv("ORGANIZER_DOWNLOAD_RPS", defaultRPS)
	if err != nil {
		log.Errorf(err, "invalid ORGANIZER_DOWNLOAD_RPS")
		return nil, err
	}

	timeout, err := parseDurationEnv("ORGANIZER_DOWNLOAD_TIMEOUT", defaultDownloadTimeout)
	if err != nil {
		log.Errorf(err, "invalid ORGANIZER_DOWNLOAD_TIMEOUT")
		return nil, err
	}

	retries, err := parseIntEnv("ORGANIZER_DOWNLOAD_RETRIES", defaultRetries)
	if err != nil {
		log.Errorf(err, "invalid ORGANIZER_DOWNLOAD_RETRIES")
		return nil, err
	}

	maxBytes, err := parseIntEnv("ORGANIZER_MAX_IMAGE_BYTES", defaultMaxImageBytes)
	if err != nil {
		log.Errorf(err, "invalid ORGANIZER_MAX_IMAGE_BYTES")
		return nil, err
	}

	return &OrganizerCfg{
		CropEnabled:         cropEnabled,
		AllowedClasses:      splitList(getEnvOrDefault("ORGANIZER_ALLOWED_CLASSES", defaultAllowedClasses)),
		DownloadConcurrency: concurrency,
		DownloadRPS:         rps,
		DownloadTimeout:     timeout,
		DownloadRetries:     retries,
		MaxImageBytes:       int64(maxBytes),
	}, nil
}

func loadJobsCfg(log logger.Logger) (*JobsCfg, error) {
	const (
		defaultStore     = "memory"
		defaultStatusTTL = 24 * time.Hour
	)

	store := strings.ToLower(getEnvOrDefault("JOB_STORE", defaultStore))
	if store != "memory" && store != "redis" {
		err := fmt.Errorf("JOB_STORE must be memory or redis, got %q", store)
		log.Errorf(err, "invalid JOB_STORE")
		return nil, err
	}

	ttl, err := parseDurationEnv("JOB_STATUS_TTL", defaultStatusTTL)
	if err != nil {
		log.Errorf(err, "invalid JOB_STATUS_TTL")
		return nil, err
	}

	return &JobsCfg{Store: store, StatusTTL: ttl}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr         = "localhost:6379"
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultKeyPrefix    = "vision:training"
	)

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("REDIS_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid REDIS_MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("REDIS_DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("REDIS_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid REDIS_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("REDIS_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid REDIS_WRITE_TIMEOUT")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Addr:        getEnvOrDefault("REDIS_ADDR", defaultAddr),
		Password:    getEnv("REDIS_PASSWORD"),
		User:        getEnv("REDIS_USER"),
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     timeout,
		KeyPrefix:   getEnvOrDefault("REDIS_KEY_PREFIX", defaultKeyPrefix),
	}, nil
}

func loadQdrantCfg(log logger.Logger) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort   = 6334
		defaultUseTLS           = false
		defaultCollectionPrefix = "seller_index_"
		defaultUpsertBatchSize  = 256
	)

	enabled, err := parseBoolEnv("QDRANT_ENABLED", false)
	if err != nil {
		log.Errorf(err, "invalid QDRANT_ENABLED")
		return nil, err
	}

	port, err := parseIntEnv("QDRANT_GRPC_PORT", defaultQdrantGRPCPort)
	if err != nil {
		log.Errorf(err, "invalid QDRANT_GRPC_PORT")
		return nil, err
	}

	useTLS, err := parseBoolEnv("QDRANT_USE_TLS", defaultUseTLS)
	if err != nil {
		log.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	batch, err := parseIntEnv("QDRANT_UPSERT_BATCH", defaultUpsertBatchSize)
	if err != nil || batch <= 0 {
		err = fmt.Errorf("QDRANT_UPSERT_BATCH must be positive")
		log.Errorf(err, "invalid QDRANT_UPSERT_BATCH")
		return nil, err
	}

	return &QdrantCfg{
		Enabled:          enabled,
		Host:             getEnvOrDefault("QDRANT_HOST", "qdrant"),
		Port:             port,
		ApiKey:           getEnv("QDRANT__SERVICE__API_KEY"),
		UseTLS:           useTLS,
		CollectionPrefix: getEnvOrDefault("QDRANT_COLLECTION_PREFIX", defaultCollectionPrefix),
		UpsertBatchSize:  batch,
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL   = false
		defaultEndpoint = "minio:9000"
		defaultBucket   = "seller-indexes"
		defaultPrefix   = "embeddings"
	)

	enabled, err := parseBoolEnv("MINIO_ENABLED", false)
	if err != nil {
		log.Errorf(err, "invalid MINIO_ENABLED")
		return nil, err
	}

	useSSL, err := parseBoolEnv("MINIO_USE_SSL", defaultUseSSL)
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	return &MinIOCfg{
		Enabled:           enabled,
		MinioEndpoint:     getEnvOrDefault("MINIO_ENDPOINT", defaultEndpoint),
		BucketName:        getEnvOrDefault("BUCKET_NAME", defaultBucket),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
		ObjectPrefix:      getEnvOrDefault("MINIO_OBJECT_PREFIX", defaultPrefix),
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultPartitions  = 3
		defaultReplication = 1
		defaultNetworkMode = "tcp"
		defaultTopic       = "seller-index-events"
	)

	enabled, err := parseBoolEnv("KAFKA_ENABLED", false)
	if err != nil {
		return nil, e.Wrap("KAFKA_ENABLED", err)
	}

	brokers := splitList(getEnv("KAFKA_BROKERS"))
	if enabled && len(brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required when KAFKA_ENABLED=true")
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replication, err := parseIntEnv("REPLICATION_FACTOR", defaultReplication)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Enabled:     enabled,
		Brokers:     brokers,
		Topic:       getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		NetworkMode: getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
		Partitions:  partitions,
		Replication: replication,
	}, nil
}

func loadTelemetryCfg(log logger.Logger) (*TelemetryCfg, error) {
	const (
		defaultEndpoint    = "otel-collector:4317"
		defaultProtocol    = "grpc"
		defaultServiceName = "vision-service"
		defaultSampleRate  = 1.0
	)

	enabled, err := parseBoolEnv("OTEL_ENABLED", false)
	if err != nil {
		log.Errorf(err, "invalid OTEL_ENABLED")
		return nil, err
	}

	insecure, err := parseBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true)
	if err != nil {
		log.Errorf(err, "invalid OTEL_EXPORTER_OTLP_INSECURE")
		return nil, err
	}

	protocol := strings.ToLower(getEnvOrDefault("OTEL_EXPORTER_OTLP_PROTOCOL", defaultProtocol))
	if protocol != "grpc" && protocol != "http/protobuf" {
		err := fmt.Errorf("OTEL_EXPORTER_OTLP_PROTOCOL must be grpc or http/protobuf, got %q", protocol)
		log.Errorf(err, "invalid OTEL_EXPORTER_OTLP_PROTOCOL")
		return nil, err
	}

	rate, err := parseFloatEnv("OTEL_TRACES_SAMPLE_RATE", defaultSampleRate)
	if err != nil || rate < 0 || rate > 1 {
		err = fmt.Errorf("OTEL_TRACES_SAMPLE_RATE must be in [0,1]")
		log.Errorf(err, "invalid OTEL_TRACES_SAMPLE_RATE")
		return nil, err
	}

	return &TelemetryCfg{
		Enabled:     enabled,
		Endpoint:    getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", defaultEndpoint),
		Protocol:    protocol,
		Insecure:    insecure,
		ServiceName: getEnvOrDefault("OTEL_SERVICE_NAME", defaultServiceName),
		SampleRate:  rate,
	}, nil
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost       = "localhost"
		defaultPort       = "5432"
		defaultSSLMode    = "disable"
		defaultMigrations = "file://db/migrations"
	)

	enabled, err := parseBoolEnv("POSTGRES_ENABLED", false)
	if err != nil {
		log.Errorf(err, "invalid POSTGRES_ENABLED")
		return nil, err
	}

	cfg := &PGDBCfg{
		Enabled:        enabled,
		Host:           getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:           getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:           getEnv("POSTGRES_USER"),
		Password:       getEnv("POSTGRES_PASSWORD"),
		DBName:         getEnv("POSTGRES_DB"),
		SSLMode:        getEnvOrDefault("SSL_MODE", defaultSSLMode),
		MigrationsPath: getEnvOrDefault("POSTGRES_MIGRATIONS", defaultMigrations),
	}

	if !enabled {
		return cfg, nil
	}

	for key, val := range map[string]string{
		"POSTGRES_USER":     cfg.User,
		"POSTGRES_PASSWORD": cfg.Password,
		"POSTGRES_DB":       cfg.DBName,
	} {
		if val == "" {
			err := fmt.Errorf("%s is required", key)
			log.Errorf(err, "missing %s", key)
			return nil, err
		}
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.Wrap(key, ErrIncorrectEnvVariable)
	}

	return intValue, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue, e.Wrap(key, ErrIncorrectEnvVariable)
	}

	return f, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue, e.Wrap(key, ErrIncorrectEnvVariable)
	}

	return b, nil
}

// splitList разбирает список через запятую, отбрасывая пустые элементы.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ErrIncorrectEnvVariable возвращается, если переменную окружения не удалось разобрать.
var ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
