// Package main implements socksd, the headless SOCKS5 daemon.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"socksmith/pkg/creds"
	"socksmith/pkg/dialer"
	"socksmith/pkg/server"
	"socksmith/pkg/socks"
)

// Exit codes.
const (
	Success           = 0 // success
	ErrServeFailed    = 1 // listener setup or accept loop failed
	ErrBadFlags       = 2 // invalid command line
	ErrCredentialLoad = 3 // credential file unreadable
	ErrBadUpstream    = 4 // upstream url rejected
)

// init applies the logging defaults before flags are parsed.
func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		listen      = pflag.StringSlice("listen", []string{":1080"}, "SOCKS5 listen address, repeatable")
		auth        = pflag.String("auth", "", "Static credential as user:pass, mutually exclusive with --creds")
		credsFile   = pflag.String("creds", "", "JSON credential store of bcrypt users, mutually exclusive with --auth")
		upstream    = pflag.String("upstream", defaultUpstream(), "Outbound target URL: direct:// | socks5://[user:pass@]host:port | sealed+socks5://[user:pass@]host:port")
		sealed      = pflag.Bool("sealed", false, "Require the sealed stream handshake from clients")
		timeout     = pflag.Duration("timeout", server.DefaultHandshakeTimeout, "Deadline for completing the handshake")
		dialTimeout = pflag.Duration("dial-timeout", server.DefaultDialTimeout, "Timeout for outbound DNS lookup and TCP connect")
		logLevel    = pflag.String("log-level", "info", "Log level: trace, debug, info, warn, error")
		logJSON     = pflag.Bool("log-json", false, "Emit JSON log lines instead of console output")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if *logJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Error().Str("level", *logLevel).Msg("Unknown log level")
		return ErrBadFlags
	}
	zerolog.SetGlobalLevel(level)

	if len(*listen) == 0 {
		log.Error().Msg("No listen address")
		return ErrBadFlags
	}

	cfg := server.Config{
		Sealed:           *sealed,
		HandshakeTimeout: *timeout,
	}

	switch {
	case *auth != "" && *credsFile != "":
		log.Error().Msg("--auth and --creds are mutually exclusive")
		return ErrBadFlags
	case *auth != "":
		username, password, ok := strings.Cut(*auth, ":")
		if !ok || username == "" {
			log.Error().Msg("--auth must be user:pass")
			return ErrBadFlags
		}
		cfg.Credential = &socks.Auth{Username: username, Password: password}
	case *credsFile != "":
		store := creds.NewStore()
		if err := store.LoadFrom(*credsFile); err != nil {
			log.Error().Err(err).Msg("Cannot load credential store")
			return ErrCredentialLoad
		}
		cfg.Verify = store.Verify
		log.Info().Int("users", len(store.Names())).Str("path", *credsFile).Msg("Credential store loaded")
	default:
		log.Warn().Msg("No credentials configured, accepting anonymous clients")
	}

	cfg.Dialer, err = dialer.New(dialer.Config{
		DialTimeout: *dialTimeout,
		KeepAlive:   net.KeepAliveConfig{Enable: true},
	}, *upstream)
	if err != nil {
		log.Error().Err(err).Str("upstream", *upstream).Msg("Invalid upstream")
		return ErrBadUpstream
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers := make([]*server.Server, 0, len(*listen))
	for _, address := range *listen {
		srv := server.New(ctx, cfg)
		servers = append(servers, srv)
		context.AfterFunc(ctx, srv.Stop)
		g.Go(func() error {
			return srv.ListenAndServe(address)
		})
	}

	err = g.Wait()

	// Stop blocks until live handlers have wound down.
	for _, srv := range servers {
		srv.Stop()
	}

	if err != nil {
		log.Error().Err(err).Msg("Listener terminated")
		return ErrServeFailed
	}

	log.Info().Msg("Shutting down")
	return Success
}

// defaultUpstream honors the conventional proxy environment variables.
func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}
	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}
	return "direct://"
}
