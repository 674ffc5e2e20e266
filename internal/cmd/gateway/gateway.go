// Package gateway parses gateway command flags and composes the service
// entrypoint.
package gateway

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/pairline/internal/platform/cmd"
	server "github.com/louisbranch/pairline/internal/services/gateway/app"
	"github.com/louisbranch/pairline/internal/session"
	"github.com/louisbranch/pairline/internal/storage/sqlite"
	"github.com/louisbranch/pairline/internal/telemetry"
	"github.com/louisbranch/pairline/internal/transport"
	"github.com/louisbranch/pairline/internal/transport/loopback"
)

// Config holds gateway command configuration.
type Config struct {
	HTTPAddr      string        `env:"PAIRLINE_GATEWAY_HTTP_ADDR"       envDefault:":8090"`
	StoragePath   string        `env:"PAIRLINE_GATEWAY_STORAGE_PATH"    envDefault:"gateway.db"`
	DefaultDomain string        `env:"PAIRLINE_GATEWAY_DEFAULT_DOMAIN"  envDefault:"s.whatsapp.net"`
	APISecret     string        `env:"PAIRLINE_GATEWAY_API_SECRET"`
	PairingSettle time.Duration `env:"PAIRLINE_GATEWAY_PAIRING_SETTLE"  envDefault:"2s"`

	ReconnectInterval    time.Duration `env:"PAIRLINE_GATEWAY_RECONNECT_INTERVAL"     envDefault:"5s"`
	ReconnectMultiplier  float64       `env:"PAIRLINE_GATEWAY_RECONNECT_MULTIPLIER"   envDefault:"1"`
	ReconnectMaxInterval time.Duration `env:"PAIRLINE_GATEWAY_RECONNECT_MAX_INTERVAL" envDefault:"5s"`
	ReconnectMaxAttempts int           `env:"PAIRLINE_GATEWAY_RECONNECT_MAX_ATTEMPTS" envDefault:"0"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "gateway HTTP listen address")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "sqlite database path")
	fs.StringVar(&cfg.DefaultDomain, "default-domain", cfg.DefaultDomain, "domain suffix for bare phone number recipients")
	fs.StringVar(&cfg.APISecret, "api-secret", cfg.APISecret, "bearer token signing secret; empty disables auth")
	fs.DurationVar(&cfg.PairingSettle, "pairing-settle", cfg.PairingSettle, "wait for connection readiness before requesting a pairing code")
	fs.DurationVar(&cfg.ReconnectInterval, "reconnect-interval", cfg.ReconnectInterval, "initial delay between reconnect attempts")
	fs.Float64Var(&cfg.ReconnectMultiplier, "reconnect-multiplier", cfg.ReconnectMultiplier, "delay growth factor between reconnect attempts")
	fs.DurationVar(&cfg.ReconnectMaxInterval, "reconnect-max-interval", cfg.ReconnectMaxInterval, "upper bound on the reconnect delay")
	fs.IntVar(&cfg.ReconnectMaxAttempts, "reconnect-max-attempts", cfg.ReconnectMaxAttempts, "reconnect attempts before dropping the session; 0 retries forever")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the gateway app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGateway, func(context.Context) error {
		store, err := sqlite.Open(cfg.StoragePath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		manager, err := session.NewManager(session.Config{
			Dialer:        dialer(),
			Credentials:   store,
			Telemetry:     telemetry.NewEmitter(store),
			PairingSettle: cfg.PairingSettle,
			DefaultDomain: cfg.DefaultDomain,
			Reconnect: session.ReconnectPolicy{
				Interval:    cfg.ReconnectInterval,
				Multiplier:  cfg.ReconnectMultiplier,
				MaxInterval: cfg.ReconnectMaxInterval,
				MaxAttempts: cfg.ReconnectMaxAttempts,
			},
		})
		if err != nil {
			return fmt.Errorf("init session manager: %w", err)
		}

		if err := server.Run(ctx, server.Config{
			HTTPAddr:  cfg.HTTPAddr,
			APISecret: cfg.APISecret,
		}, manager); err != nil {
			return fmt.Errorf("serve gateway: %w", err)
		}
		return nil
	})
}

func dialer() transport.Dialer {
	return loopback.NewDialer()
}
