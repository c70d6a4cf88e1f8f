package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/loiht2/ml-platform-email-classifier/backend/storage"
)

// DefaultAPIKey is used when API_KEY is unset. Override it outside development.
const DefaultAPIKey = "dev-secret-key-12345"

// Env holds settings read from the environment
type Env struct {
	Port   string
	APIKey string

	// ModelDir is where saved models are written and looked up
	ModelDir string
	// Static artifacts served when no active model is named
	StaticModel storage.ArtifactPaths
	ActiveModel string

	MaxBodyBytes    int64
	MonitorInterval time.Duration
	CORSOrigins     []string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisLockTTL  time.Duration

	Kubeconfig     string
	Namespace      string
	ConfigMapName  string
	EnableK8s      bool
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	MinIOBucket    string
}

// LoadEnv reads a .env file if present and then the process environment
func LoadEnv() Env {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded settings from .env")
	}

	modelDir := getEnv("MODEL_DIR", "models")
	return Env{
		Port:     getEnv("PORT", "8000"),
		APIKey:   getEnv("API_KEY", DefaultAPIKey),
		ModelDir: getEnv("OUTPUT_DIR", modelDir),
		StaticModel: storage.ArtifactPaths{
			Model:        getEnv("MODEL_PATH", filepath.Join(modelDir, "model.json")),
			Tokenizer:    getEnv("TOKENIZER_PATH", filepath.Join(modelDir, "tokenizer.json")),
			LabelEncoder: getEnv("LABEL_ENCODER_PATH", filepath.Join(modelDir, "label_encoder.json")),
			Metadata:     getEnv("METADATA_PATH", filepath.Join(modelDir, "metadata.json")),
		},
		ActiveModel:     os.Getenv("ACTIVE_MODEL"),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 100<<20),
		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 30*time.Second),
		CORSOrigins:     splitList(os.Getenv("CORS_ORIGINS")),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisLockTTL:  getEnvDuration("REDIS_LOCK_TTL", 2*time.Minute),

		Kubeconfig:     os.Getenv("KUBECONFIG"),
		Namespace:      getEnv("POD_NAMESPACE", "default"),
		ConfigMapName:  os.Getenv("ACTIVE_MODEL_CONFIGMAP"),
		EnableK8s:      getEnv("ENABLE_K8S", "false") == "true",
		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		MinIOBucket:    getEnv("MINIO_BUCKET", "email-classifier-models"),
	}
}

// Config holds the settings and every optional backend client.
// A nil client means that backend is not configured.
type Config struct {
	Env

	DB          *gorm.DB
	Redis       *redis.Client
	K8sConfig   *rest.Config
	K8sClient   kubernetes.Interface
	MinIOClient *storage.MinIOClient
}

// New connects to every configured backend
func New(env Env) (*Config, error) {
	cfg := &Config{Env: env}

	if err := cfg.initK8sClient(); err != nil {
		return nil, fmt.Errorf("failed to initialize Kubernetes client: %w", err)
	}
	if err := cfg.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := cfg.initRedis(); err != nil {
		cfg.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	if err := cfg.initMinIO(); err != nil {
		cfg.Close()
		return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
	}

	log.Println("Configuration initialized successfully")
	return cfg, nil
}

// initK8sClient uses KUBECONFIG when set, otherwise the in-cluster config
func (c *Config) initK8sClient() error {
	if !c.EnableK8s && c.Kubeconfig == "" {
		log.Println("Kubernetes integration disabled")
		return nil
	}

	var (
		config *rest.Config
		err    error
	)
	if c.Kubeconfig != "" {
		config, err = clientcmd.BuildConfigFromFlags("", c.Kubeconfig)
	} else {
		config, err = rest.InClusterConfig()
	}
	if err != nil {
		return fmt.Errorf("failed to build Kubernetes config: %w", err)
	}
	c.K8sConfig = config

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}
	c.K8sClient = client

	log.Println("Kubernetes client initialized successfully")
	return nil
}

// initDatabase opens the model catalog database
func (c *Config) initDatabase() error {
	if c.DatabaseURL == "" {
		log.Println("DATABASE_URL not set, model catalog disabled")
		return nil
	}

	db, err := gorm.Open(postgres.Open(c.DatabaseURL), &gorm.Config{
		PrepareStmt: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&ModelRecord{}, &TrainingJob{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	c.DB = db
	log.Println("Database initialized successfully")
	return nil
}

// initRedis connects the client backing the cross-replica save lock
func (c *Config) initRedis() error {
	if c.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping %s: %w", c.RedisAddr, err)
	}

	c.Redis = client
	log.Printf("Redis connected at %s", c.RedisAddr)
	return nil
}

// initMinIO prefers explicit MINIO_* settings and falls back to the
// minio-secret Secret when a Kubernetes client is available
func (c *Config) initMinIO() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mc storage.MinIOConfig
	switch {
	case c.MinIOEndpoint != "":
		mc = storage.MinIOConfig{
			Endpoint:  c.MinIOEndpoint,
			AccessKey: c.MinIOAccessKey,
			SecretKey: c.MinIOSecretKey,
			UseSSL:    c.MinIOUseSSL,
			Bucket:    c.MinIOBucket,
		}
	case c.K8sClient != nil:
		var err error
		mc, err = storage.MinIOConfigFromSecret(ctx, c.K8sClient, c.Namespace, c.MinIOBucket)
		if err != nil {
			log.Printf("MinIO not configured: %v", err)
			return nil
		}
	default:
		return nil
	}

	client, err := storage.NewMinIOClient(mc)
	if err != nil {
		return err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return err
	}
	c.MinIOClient = client
	return nil
}

// Close closes all connections
func (c *Config) Close() {
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	if c.Redis != nil {
		c.Redis.Close()
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
