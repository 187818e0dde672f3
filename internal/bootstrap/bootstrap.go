package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/receiving-verifier/internal/config"
	"github.com/kirillkom/receiving-verifier/internal/core/matching"
	"github.com/kirillkom/receiving-verifier/internal/core/ports"
	"github.com/kirillkom/receiving-verifier/internal/core/usecase"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/capture"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/extractor"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/extractor/tesseract"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/orders"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/queue/nats"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/resilience"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/receiving-verifier/internal/observability/metrics"
)

const (
	APIServiceName    = "receiving-api"
	WorkerServiceName = "receiving-worker"
)

// API holds everything cmd/api serves.
type API struct {
	Config config.Config

	Workflow ports.VerificationWorkflow
	Report   ports.ReportRenderer
	Metrics  *metrics.HTTPServerMetrics

	orderExecutor *resilience.Executor
	closeFn       func()
}

func NewAPI(_ context.Context, cfg config.Config, logger *slog.Logger) (*API, error) {
	httpMetrics := metrics.NewHTTPServerMetrics(APIServiceName)
	workflowMetrics := metrics.NewVerificationMetrics(APIServiceName, httpMetrics.Registerer())

	orderExecutor := resilience.NewExecutor(
		orderResilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithStateListener(workflowMetrics.BreakerStateChanged),
	)
	orderClient, err := orders.New(cfg.OrderAPIURL,
		orders.WithToken(cfg.OrderAPIToken),
		orders.WithHTTPClient(&http.Client{Timeout: cfg.OrderAPITimeout}),
		orders.WithExecutor(orderExecutor),
		orders.WithMaxDownloadBytes(cfg.OrderAPIMaxDownloadBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("init order api client: %w", err)
	}

	rules, err := config.LoadFieldRules(cfg.FieldRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load field rules: %w", err)
	}

	recognizer := extractor.NewRouter(
		tesseract.NewRecognizer(
			tesseract.WithLanguages(cfg.OCRLanguages...),
			tesseract.WithConcurrency(cfg.OCRConcurrency),
		),
		pdftext.NewRecognizer(cfg.PDFMaxBytes),
		plaintext.NewRecognizer(),
	)
	documentCapture := capture.NewAdapter(
		capture.NewUploader(cfg.UploadMaxBytes),
		capture.NewSnapshotCamera(cfg.CameraSnapshotURL, cfg.CameraSnapshotToken, cfg.CameraTimeout),
	)

	deps := usecase.VerificationDependencies{
		Orders:     orderClient,
		Recognizer: recognizer,
		Capture:    documentCapture,
		Checker:    matching.NewChecker(rules),
		Observer:   workflowMetrics,
		Logger:     logger,
	}

	if cfg.ArchiveEnabled {
		archive, err := localfs.New(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("init document archive: %w", err)
		}
		deps.Archive = archive
	}

	closeFn := func() {}
	if cfg.EventsEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Name: APIServiceName,
			ResilienceExecutor: resilience.NewExecutor(
				resilience.DefaultConfig(),
				resilience.WithLogger(logger),
				resilience.WithStateListener(workflowMetrics.BreakerStateChanged),
			),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init event queue: %w", err)
		}
		deps.Events = queue
		closeFn = queue.Close
	}

	workflow := usecase.NewVerificationUseCase(deps, usecase.VerificationOptions{
		ResultsDelay:         cfg.ResultsDelay,
		SessionIdleTTL:       cfg.SessionIdleTTL,
		OCRConcurrency:       cfg.OCRConcurrency,
		ReferenceConcurrency: cfg.ReferenceConcurrency,
	})

	return &API{
		Config:        cfg,
		Workflow:      workflow,
		Report:        xlsx.NewRenderer(),
		Metrics:       httpMetrics,
		orderExecutor: orderExecutor,
		closeFn:       closeFn,
	}, nil
}

// Ready fails while the order API circuit breaker is open.
func (a *API) Ready(context.Context) error {
	if a.orderExecutor.Open() {
		return errors.New("order api circuit breaker is open")
	}
	return nil
}

func (a *API) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker holds the audit consumer.
type Worker struct {
	Config config.Config

	Queue   *nats.Queue
	Audit   *usecase.AuditUseCase
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewAuditRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:       WorkerServiceName,
		QueueGroup: cfg.NATSQueueGroup,
		Logger:     logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Queue:   queue,
		Audit:   usecase.NewAuditUseCase(repo, logger),
		Metrics: metrics.NewWorkerMetrics(WorkerServiceName),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func orderResilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.OrderAPIRetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.OrderAPIRetryMaxAttempts
	}
	if cfg.BreakerMinRequests > 0 {
		rc.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	if cfg.BreakerFailureRatio > 0 {
		rc.BreakerFailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerOpenTimeout > 0 {
		rc.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	}
	return rc
}
