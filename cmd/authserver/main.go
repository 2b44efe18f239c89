// Command authserver serves the LMS authentication API over HTTP and, when
// GRPC_ADDR is set, a gRPC health endpoint guarded by the same tokens.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	oa "github.com/panyam/lmsauth"
	"github.com/panyam/lmsauth/config"
	authgrpc "github.com/panyam/lmsauth/grpc"
	"github.com/panyam/lmsauth/oauth2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, closeSessions, err := newSessionManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	svc := buildService(cfg, store, sessions, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           oa.NewRouter(svc, oauthLogins(cfg, logger)...),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 2)
	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = newGRPCServer(svc.Tokens)
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(listener); err != nil {
				errc <- err
			}
		}()
	}

	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "sessions", cfg.SessionBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errc:
		logger.Error("listener failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http shutdown", "error", serr)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return err
}

func buildService(cfg config.Config, store oa.Store, sessions *scs.SessionManager, logger *slog.Logger) *oa.AuthService {
	tokens := oa.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer)
	tokens.AccessTTL = cfg.AccessTokenTTL
	tokens.RefreshTTL = cfg.RefreshTokenTTL

	svc := &oa.AuthService{
		Store:     store,
		Hasher:    oa.NewBcryptHasher(cfg.BcryptCost),
		Tokens:    tokens,
		Validator: oa.NewValidator(cfg.ValidationCollectAll),
		Sessions:  sessions,
		Cookies: oa.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		Logger: logger,
	}
	return svc.EnsureDefaults()
}

// oauthLogins returns one login per configured identity provider.
func oauthLogins(cfg config.Config, logger *slog.Logger) []*oa.OAuthLogin {
	var logins []*oa.OAuthLogin
	if cfg.GoogleEnabled() {
		logins = append(logins, &oa.OAuthLogin{
			Provider: oauth2.NewGoogleProvider(oauth2.GoogleConfig{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				CallbackURL:  cfg.GoogleCallbackURL,
			}),
			ClientURL: cfg.ClientURL,
		})
	} else {
		logger.Info("google sign-in disabled", "reason", "GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}
	if cfg.GitHubEnabled() {
		logins = append(logins, &oa.OAuthLogin{
			Provider: oauth2.NewGitHubProvider(oauth2.GitHubConfig{
				ClientID:     cfg.GitHubClientID,
				ClientSecret: cfg.GitHubClientSecret,
				CallbackURL:  cfg.GitHubCallbackURL,
			}),
			ClientURL: cfg.ClientURL,
		})
	}
	return logins
}

func newGRPCServer(tokens authgrpc.TokenVerifier) *grpc.Server {
	policy := authgrpc.NewAuthPolicy(tokens, authgrpc.WithPublicMethods(
		healthpb.Health_Check_FullMethodName,
		healthpb.Health_Watch_FullMethodName,
	))
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(authgrpc.UnaryAuthInterceptor(policy)),
		grpc.StreamInterceptor(authgrpc.StreamAuthInterceptor(policy)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}
