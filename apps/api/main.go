package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	providershandler "github.com/powerport/user-service/domains/providers/be/handler"
	providersidentity "github.com/powerport/user-service/domains/providers/be/identity"
	providersprov "github.com/powerport/user-service/domains/providers/be/provisioning"
	providersrepo "github.com/powerport/user-service/domains/providers/be/repo"
	providersservice "github.com/powerport/user-service/domains/providers/be/service"
	"github.com/powerport/user-service/platform/go/events"
	platformlogging "github.com/powerport/user-service/platform/go/logging"
	platformmiddleware "github.com/powerport/user-service/platform/go/middleware"
	"github.com/powerport/user-service/platform/go/persistence"
	"github.com/powerport/user-service/platform/go/secrets"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	Environment     string        `env:"ENV_KEY" envDefault:"dev"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	AdminUsernameSuffix string `env:"PROVIDER_ADMIN_USERNAME_SUFFIX" envDefault:"-admin"`
	TempPasswordLength  int    `env:"TEMP_PASSWORD_LENGTH" envDefault:"16"`

	ProvisionInfra       bool     `env:"PROVISION_INFRA" envDefault:"false"`
	TenantServices       []string `env:"TENANT_SERVICES" envDefault:"billing,stationmgmt,provider,tracking,reviews"`
	TenantPGHost         string   `env:"TENANT_PG_HOST"`
	TenantPGPort         int      `env:"TENANT_PG_PORT" envDefault:"5432"`
	TenantPGAdminUser    string   `env:"TENANT_PG_ADMIN_USER"`
	TenantPGAdminPass    string   `env:"TENANT_PG_ADMIN_PASSWORD"`
	TenantPGSSLMode      string   `env:"TENANT_PG_SSLMODE" envDefault:"require"`
	TenantPGMaintenance  string   `env:"TENANT_PG_MAINTENANCE_DB" envDefault:"postgres"`

	VaultAddress string `env:"VAULT_ADDR"`
	VaultToken   string `env:"VAULT_TOKEN"`
	VaultMount   string `env:"VAULT_MOUNT" envDefault:"secret"`

	KafkaBrokers      string `env:"KAFKA_BROKERS"`
	TenantEventsTopic string `env:"TENANT_EVENTS_TOPIC" envDefault:"tenant.events"`
	KafkaProducerName string `env:"KAFKA_PRODUCER_NAME" envDefault:"users-service"`

	KeycloakBaseURL       string `env:"KEYCLOAK_BASE_URL,required"`
	KeycloakAdminRealm    string `env:"KEYCLOAK_ADMIN_REALM" envDefault:"master"`
	KeycloakRealm         string `env:"KEYCLOAK_REALM" envDefault:"powerport"`
	KeycloakAdminClientID string `env:"KEYCLOAK_ADMIN_CLIENT_ID" envDefault:"admin-cli"`
	KeycloakAdminUsername string `env:"KEYCLOAK_ADMIN_USERNAME,required"`
	KeycloakAdminPassword string `env:"KEYCLOAK_ADMIN_PASSWORD,required"`
	KeycloakUserRole      string `env:"KEYCLOAK_USER_ROLE" envDefault:"Provider"`
	TenantIDAttribute     string `env:"KEYCLOAK_TENANT_ID_ATTRIBUTE" envDefault:"tenantId"`
	ProviderIDAttribute   string `env:"KEYCLOAK_PROVIDER_ID_ATTRIBUTE" envDefault:"providerId"`
	RoleAttribute         string `env:"KEYCLOAK_ROLE_ATTRIBUTE" envDefault:"role"`
	ForcePasswordUpdate   bool   `env:"KEYCLOAK_FORCE_PASSWORD_UPDATE" envDefault:"true"`
	RequireEmailVerified  bool   `env:"KEYCLOAK_REQUIRE_EMAIL_VERIFIED" envDefault:"false"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.BootstrapRegistry(ctx, pool); err != nil {
		logger.Fatal("bootstrap provider registry", zap.Error(err))
	}

	registry := providersrepo.NewPostgresRegistry(pool)

	var infra providersservice.InfraProvisioner
	if cfg.ProvisionInfra {
		if cfg.TenantPGHost == "" || cfg.TenantPGAdminUser == "" {
			logger.Fatal("tenant pg host and admin user required when PROVISION_INFRA=true")
		}

		store, err := secrets.NewVaultStore(secrets.Config{
			Address: cfg.VaultAddress,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
		})
		if err != nil {
			logger.Fatal("init vault secret store", zap.Error(err))
		}

		adminPool, err := persistence.NewPool(ctx, persistence.PoolConfig{
			ConnString: maintenanceURL(cfg),
			MaxConns:   2,
		})
		if err != nil {
			logger.Fatal("init tenant pg admin pool", zap.Error(err))
		}
		defer persistence.ClosePool(adminPool)

		infra = providersprov.NewInfraProvisioner(adminPool, store, logger, providersprov.Options{
			Services:      cfg.TenantServices,
			Host:          cfg.TenantPGHost,
			Port:          cfg.TenantPGPort,
			AdminUser:     cfg.TenantPGAdminUser,
			AdminPassword: cfg.TenantPGAdminPass,
			SSLMode:       cfg.TenantPGSSLMode,
		})
	}

	identityClient := providersidentity.NewClient(providersidentity.Options{
		BaseURL:              cfg.KeycloakBaseURL,
		AdminRealm:           cfg.KeycloakAdminRealm,
		Realm:                cfg.KeycloakRealm,
		AdminClientID:        cfg.KeycloakAdminClientID,
		AdminUsername:        cfg.KeycloakAdminUsername,
		AdminPassword:        cfg.KeycloakAdminPassword,
		UserRole:             cfg.KeycloakUserRole,
		TenantIDAttribute:    cfg.TenantIDAttribute,
		ProviderIDAttribute:  cfg.ProviderIDAttribute,
		RoleAttribute:        cfg.RoleAttribute,
		ForcePasswordUpdate:  cfg.ForcePasswordUpdate,
		RequireEmailVerified: cfg.RequireEmailVerified,
	}, logger)

	var publisher providersservice.EventPublisher
	if cfg.KafkaBrokers == "" {
		logger.Warn("kafka brokers not configured; events will be dropped")
		publisher = events.NewNoopPublisher(logger)
	} else {
		kafkaPublisher, err := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.KafkaBrokers,
			ProducerName: cfg.KafkaProducerName,
		}, logger)
		if err != nil {
			logger.Fatal("init kafka publisher", zap.Error(err))
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	providerService := providersservice.New(registry, infra, identityClient, publisher, logger, providersservice.Options{
		Environment:             cfg.Environment,
		AdminUsernameSuffix:     cfg.AdminUsernameSuffix,
		TemporaryPasswordLength: cfg.TempPasswordLength,
		ProvisionInfra:          cfg.ProvisionInfra,
		EventsTopic:             cfg.TenantEventsTopic,
	})
	providerHandler := providershandler.New(providerService, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	providerHandler.Register(apiRouter)
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// maintenanceURL builds the DSN for the tenant host's maintenance database,
// used by the infra provisioner for existence checks and CREATE DATABASE.
func maintenanceURL(cfg config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.TenantPGAdminUser, cfg.TenantPGAdminPass),
		Host:     fmt.Sprintf("%s:%d", cfg.TenantPGHost, cfg.TenantPGPort),
		Path:     "/" + cfg.TenantPGMaintenance,
		RawQuery: "sslmode=" + cfg.TenantPGSSLMode,
	}
	return u.String()
}
