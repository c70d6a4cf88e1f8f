package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loiht2/ml-platform-email-classifier/backend/classifier"
	"github.com/loiht2/ml-platform-email-classifier/backend/config"
	"github.com/loiht2/ml-platform-email-classifier/backend/handlers"
	"github.com/loiht2/ml-platform-email-classifier/backend/k8s"
	"github.com/loiht2/ml-platform-email-classifier/backend/monitor"
	"github.com/loiht2/ml-platform-email-classifier/backend/registry"
	"github.com/loiht2/ml-platform-email-classifier/backend/repository"
	"github.com/loiht2/ml-platform-email-classifier/backend/storage"
	"github.com/loiht2/ml-platform-email-classifier/backend/trainer"
)

func main() {
	env := config.LoadEnv()

	kubeconfig := flag.String("kubeconfig", env.Kubeconfig, "Path to kubeconfig file (optional, uses in-cluster config when ENABLE_K8S=true)")
	port := flag.String("port", env.Port, "Server port")
	flag.Parse()
	env.Kubeconfig = *kubeconfig
	env.Port = *port

	log.Println("Starting Email Classification Service")
	if env.APIKey == config.DefaultAPIKey {
		log.Println("Warning: using the default API key")
	}

	cfg, err := config.New(env)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	reg := registry.New()

	var (
		repo     *repository.Repository
		k8sCli   *k8s.Client
		archiver monitor.Archiver
	)
	if cfg.DB != nil {
		repo = repository.NewRepository(cfg.DB)
		archiver = repo
	}
	if cfg.K8sClient != nil {
		k8sCli = k8s.NewClient(cfg.K8sClient, cfg.Namespace, cfg.ConfigMapName)
	}

	mon := monitor.NewJobMonitor(reg, trainer.New(), archiver, cfg.MonitorInterval)
	mon.Start()

	lockers := storage.ChainLocker{storage.NewLocalLocker()}
	if cfg.Redis != nil {
		lockers = append(lockers, storage.NewRedisLocker(cfg.Redis, cfg.RedisLockTTL))
	}
	opts := []storage.Option{storage.WithLocker(lockers)}
	if cfg.MinIOClient != nil {
		opts = append(opts, storage.WithMirror(cfg.MinIOClient))
	}
	if repo != nil {
		opts = append(opts, storage.WithCatalog(repo))
	}
	gateway := storage.NewGateway(reg, cfg.ModelDir, opts...)

	svc := classifier.New()
	loader := &classifier.Loader{
		ModelDir: cfg.ModelDir,
		Static:   cfg.StaticModel,
		Sources:  []classifier.ActiveModelSource{classifier.StaticSource{Label: "env", Model: cfg.ActiveModel}},
	}
	if k8sCli != nil {
		loader.Sources = append(loader.Sources, k8sCli)
	}
	if repo != nil {
		loader.Sources = append(loader.Sources, repo)
	}
	if cfg.MinIOClient != nil {
		loader.Fetcher = cfg.MinIOClient
	}
	loadCtx, loadCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := loader.Load(loadCtx, svc); err != nil {
		log.Printf("Warning: no model loaded, classification unavailable until one is activated: %v", err)
	} else {
		info := svc.Info()
		log.Printf("Model loaded: %s with %d classes", info.ModelType, info.NumClasses)
	}
	loadCancel()

	deps := handlers.Dependencies{
		Registry:   reg,
		Monitor:    mon,
		Gateway:    gateway,
		Classifier: svc,
		Loader:     loader,
	}
	if repo != nil {
		deps.Catalog = repo
	}
	if k8sCli != nil {
		deps.Publisher = k8sCli
	}
	router := handlers.NewRouter(handlers.NewHandler(deps), handlers.RouterOptions{
		APIKey:       cfg.APIKey,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	// Save can take a while on large models, so the write timeout is generous
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// In-flight training jobs are cancelled and recorded as failed
	mon.Stop()
	cfg.Close()
	log.Println("Server stopped gracefully")
}
