package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/accounting"
	"reviewer-backend/internal/audit"
	"reviewer-backend/internal/auth"
	"reviewer-backend/internal/documents"
	"reviewer-backend/internal/payments"
	"reviewer-backend/internal/services/health"
	"reviewer-backend/internal/shared/config"
	"reviewer-backend/internal/shared/server"
	"reviewer-backend/internal/shared/storage/db"
	"reviewer-backend/internal/shared/storage/object"
	localstore "reviewer-backend/internal/shared/storage/object/local"
	s3store "reviewer-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	AccountingStore   accounting.Store
	PaymentsRepo      payments.Repo
	DocumentsRepo     documents.Repo
	AuditRecorder     audit.Recorder
	AccountingService *accounting.Service
	PaymentsService   *payments.Service
	DocumentsService  *documents.Service
	AuthService       *auth.Service

	AccountingHandler *accounting.Handler
	PaymentsHandler   *payments.Handler
	DocumentsHandler  *documents.Handler
	AuditHandler      *audit.Handler
	AuthHandler       *auth.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            app.Config,
		Health:            health.NewService(app.DB),
		AuthHandler:       app.AuthHandler,
		AccountingHandler: app.AccountingHandler,
		PaymentsHandler:   app.PaymentsHandler,
		DocumentsHandler:  app.DocumentsHandler,
		AuditHandler:      app.AuditHandler,
		AdminVerify:       app.AuthService.Verify,
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory stores")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory stores: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(app *App) {
	cfg := app.Config
	rules := accounting.PlanRules{
		FreeQuestionLimit:   cfg.FreeQuestionLimit,
		ProQuestionBonus:    cfg.ProQuestionBonus,
		PremiumDuration:     time.Duration(cfg.PremiumDurationDays) * 24 * time.Hour,
		PremiumQuestionPool: cfg.PremiumQuestionPool,
		IPAbuseThreshold:    cfg.IPAbuseThreshold,
	}

	if app.DB != nil {
		app.AuditRecorder = &audit.PGRecorder{DB: app.DB}
		app.AccountingStore = accounting.NewPGStore(app.DB, rules)
		app.PaymentsRepo = &payments.PGRepo{DB: app.DB}
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
	} else {
		recorder := audit.NewMemoryRecorder()
		memStore := accounting.NewMemoryStore(rules)
		paymentsRepo := payments.NewMemoryRepo(memStore, recorder)
		documentsRepo := documents.NewMemoryRepo()
		memStore.OnDeleteUser(paymentsRepo.PurgeEmail)
		memStore.OnDeleteUser(documentsRepo.PurgeOwner)
		app.AuditRecorder = recorder
		app.AccountingStore = memStore
		app.PaymentsRepo = paymentsRepo
		app.DocumentsRepo = documentsRepo
	}

	app.AccountingService = accounting.NewService(app.AccountingStore, app.AuditRecorder, rules)
	app.PaymentsService = payments.NewService(app.PaymentsRepo, app.Store, rules)
	app.DocumentsService = documents.NewService(app.DocumentsRepo, app.Store, app.AuditRecorder, app.AccountingStore)
	app.AuthService = auth.NewService(cfg.AdminPassword, cfg.JWTSecret, cfg.Env, cfg.JWTTTL)

	app.AccountingHandler = accounting.NewHandler(app.AccountingService)
	app.PaymentsHandler = payments.NewHandler(app.PaymentsService)
	app.DocumentsHandler = documents.NewHandler(app.DocumentsService)
	app.AuditHandler = audit.NewHandler(app.AuditRecorder)
	app.AuthHandler = auth.NewHandler(app.AuthService)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
