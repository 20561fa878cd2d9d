// Package main implements the interactive socksmith console.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"socksmith/pkg/creds"
	"socksmith/pkg/dialer"
	"socksmith/pkg/server"
)

// CLI banner with version.
const banner = `
                 _                  _ _   _
  ___  ___   ___| | _____ _ __ ___ (_) |_| |__
 / __|/ _ \ / __| |/ / __| '_ ` + "`" + ` _ \| | __| '_ \
 \__ \ (_) | (__|   <\__ \ | | | | | | |_| | | |
 |___/\___/ \___|_|\_\___/_| |_| |_|_|\__|_| |_|

   SOCKS5 proxy with sealed links (v1.0)
   -------------------------------------

`

// Config holds the console settings.
type Config struct {
	Listen         string `json:"listen"`                    // default listen address
	CredentialFile string `json:"credential_file,omitempty"` // bcrypt credential store
	Upstream       string `json:"upstream,omitempty"`        // outbound url, empty means direct
	Sealed         bool   `json:"sealed,omitempty"`          // accept sealed links by default
	LogLevel       string `json:"log_level,omitempty"`       // zerolog level name
}

// runningListener tracks one started listener for status display.
type runningListener struct {
	srv       *server.Server
	upstream  string
	sealed    bool
	startedAt time.Time
}

// Global state.
var (
	config           *Config      // app config
	credStore        *creds.Store // nil when no credential file is configured
	runningListeners sync.Map     // bound address -> *runningListener
)

// LoadConfig reads and parses the config file.
func LoadConfig(configPath string) (*Config, error) {
	// Use default config path (./config.json) if none provided
	if configPath == "" {
		configPath = "./config.json"
	}

	// Get absolute path for clearer error messages
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %v", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found at %s", absPath)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", absPath, err)
	}

	config := new(Config)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %v", absPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required config fields.
func (config *Config) Validate() error {
	if config.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if config.Upstream != "" {
		if _, err := dialer.New(dialer.Config{}, config.Upstream); err != nil {
			return fmt.Errorf("invalid upstream: %v", err)
		}
	}
	if config.LogLevel != "" {
		if _, err := zerolog.ParseLevel(config.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level %q: %v", config.LogLevel, err)
		}
	}
	return nil
}

// newServerConfig assembles the harness config for one listener.
func newServerConfig(upstream string, sealedLink bool) (server.Config, error) {
	cfg := server.Config{Sealed: sealedLink}
	if credStore != nil {
		cfg.Verify = credStore.Verify
	}
	if upstream != "" {
		out, err := dialer.New(dialer.Config{DialTimeout: server.DefaultDialTimeout}, upstream)
		if err != nil {
			return server.Config{}, err
		}
		cfg.Dialer = out
	}
	return cfg, nil
}

// RenderListenerTable formats running listeners into a table.
func RenderListenerTable(listeners []*runningListener) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{
		"Address",
		"Upstream",
		"Sealed",
		"Sessions",
		"Uptime",
	})

	for _, rl := range listeners {
		upstream := rl.upstream
		if upstream == "" {
			upstream = "direct"
		}
		t.AppendRow(table.Row{
			rl.srv.Addr().String(),
			upstream,
			rl.sealed,
			len(rl.srv.Sessions()),
			time.Since(rl.startedAt).Round(time.Second),
		})
	}

	return t.Render()
}

// RenderSessionTable formats live sessions across all listeners.
func RenderSessionTable(rows []sessionRow) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{
		"Listener",
		"Session",
		"Client",
		"Destination",
		"Method",
		"Sent",
		"Received",
		"Age",
	})

	for _, row := range rows {
		t.AppendRow(table.Row{
			row.listener,
			row.info.ID,
			row.info.ClientAddr,
			row.info.Destination,
			row.info.Method,
			row.info.BytesOut,
			row.info.BytesIn,
			time.Since(row.info.StartedAt).Round(time.Second),
		})
	}

	return t.Render()
}

type sessionRow struct {
	listener string
	info     server.SessionInfo
}

// RenderUserTable formats stored usernames into a table.
func RenderUserTable(names []string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Username"})
	for _, name := range names {
		t.AppendRow(table.Row{name})
	}

	return t.Render()
}

// saveCredStore persists the credential store to the configured file.
func saveCredStore() error {
	return credStore.StoreTo(config.CredentialFile)
}

// AddCommands registers all CLI commands with the application.
func AddCommands(app *grumble.App) {
	// Command to start a listener
	app.AddCommand(&grumble.Command{
		Name:    "start",
		Aliases: []string{"listen"},
		Help:    "start a SOCKS5 listener",
		Flags: func(f *grumble.Flags) {
			f.String("l", "listen", "", "listen address (defaults to the configured one)")
			f.String("u", "upstream", "", "upstream url (defaults to the configured one)")
			f.Bool("s", "sealed", false, "accept sealed links on this listener")
		},
		Run: func(c *grumble.Context) error {
			addr := c.Flags.String("listen")
			if addr == "" {
				addr = config.Listen
			}
			upstream := c.Flags.String("upstream")
			if upstream == "" {
				upstream = config.Upstream
			}
			sealedLink := c.Flags.Bool("sealed") || config.Sealed

			srvConfig, err := newServerConfig(upstream, sealedLink)
			if err != nil {
				log.Error().Err(err).Msg("Invalid upstream")
				return nil
			}

			srv := server.New(context.Background(), srvConfig)
			if err := srv.Start(addr); err != nil {
				log.Error().Err(err).Msg("Failed to start listener")
				return nil
			}

			bound := srv.Addr().String()
			if _, exists := runningListeners.LoadOrStore(bound, &runningListener{
				srv:       srv,
				upstream:  upstream,
				sealed:    sealedLink,
				startedAt: time.Now(),
			}); exists {
				srv.Stop()
				log.Warn().Str("addr", bound).Msg("Listener already running on this address")
				return nil
			}

			log.Info().Str("addr", bound).Msg("Listener started")
			return nil
		},
	})
	// Command to stop listeners
	app.AddCommand(&grumble.Command{
		Name: "stop",
		Help: "stop listeners (all of them when no address is given)",
		Args: func(a *grumble.Args) {
			a.StringList("addresses", "bound addresses of the listeners to stop")
		},
		Completer: CompleteListeners,
		Run: func(c *grumble.Context) error {
			addresses := c.Args.StringList("addresses")
			if len(addresses) == 0 {
				runningListeners.Range(func(key, _ any) bool {
					addresses = append(addresses, key.(string))
					return true
				})
			}
			if len(addresses) == 0 {
				log.Warn().Msg("No listeners running")
				return nil
			}

			for _, addr := range addresses {
				value, exists := runningListeners.LoadAndDelete(addr)
				if !exists {
					log.Warn().Str("addr", addr).Msg("No listener on this address")
					continue
				}
				value.(*runningListener).srv.Stop()
				log.Info().Str("addr", addr).Msg("Listener stopped")
			}
			return nil
		},
	})
	// Command to show running listeners
	app.AddCommand(&grumble.Command{
		Name: "status",
		Help: "show running listeners",
		Run: func(c *grumble.Context) error {
			var listeners []*runningListener
			runningListeners.Range(func(_, value any) bool {
				listeners = append(listeners, value.(*runningListener))
				return true
			})

			if len(listeners) == 0 {
				log.Info().Msg("No listeners running")
				return nil
			}

			c.App.Println(RenderListenerTable(listeners))
			return nil
		},
	})
	// Command to show live sessions
	app.AddCommand(&grumble.Command{
		Name: "sessions",
		Help: "show live sessions across all listeners",
		Run: func(c *grumble.Context) error {
			var rows []sessionRow
			runningListeners.Range(func(key, value any) bool {
				for _, info := range value.(*runningListener).srv.Sessions() {
					rows = append(rows, sessionRow{listener: key.(string), info: info})
				}
				return true
			})

			if len(rows) == 0 {
				log.Info().Msg("No active sessions")
				return nil
			}

			c.App.Println(RenderSessionTable(rows))
			return nil
		},
	})
	// Command to add or update a credential
	app.AddCommand(&grumble.Command{
		Name: "useradd",
		Help: "add or update a user in the credential store",
		Args: func(a *grumble.Args) {
			a.String("username", "name of the user")
			a.String("password", "password for the user")
		},
		Run: func(c *grumble.Context) error {
			if credStore == nil {
				log.Warn().Msg("No credential file configured. Set credential_file in the config")
				return nil
			}

			username := c.Args.String("username")
			if err := credStore.Add(username, c.Args.String("password")); err != nil {
				log.Error().Err(err).Msg("Failed to add user")
				return nil
			}
			if err := saveCredStore(); err != nil {
				log.Error().Err(err).Msg("Failed to save credential store")
				return nil
			}

			log.Info().Str("user", username).Msg("User added")
			return nil
		},
	})
	// Command to remove credentials
	app.AddCommand(&grumble.Command{
		Name: "userdel",
		Help: "remove users from the credential store",
		Args: func(a *grumble.Args) {
			a.StringList("usernames", "names of the users to remove")
		},
		Completer: CompleteUsers,
		Run: func(c *grumble.Context) error {
			if credStore == nil {
				log.Warn().Msg("No credential file configured. Set credential_file in the config")
				return nil
			}

			for _, username := range c.Args.StringList("usernames") {
				if !credStore.Remove(username) {
					log.Warn().Str("user", username).Msg("Unknown user")
					continue
				}
				log.Info().Str("user", username).Msg("User removed")
			}

			if err := saveCredStore(); err != nil {
				log.Error().Err(err).Msg("Failed to save credential store")
			}
			return nil
		},
	})
	// Command to list credentials
	app.AddCommand(&grumble.Command{
		Name:    "users",
		Aliases: []string{"userlist"},
		Help:    "list users in the credential store",
		Run: func(c *grumble.Context) error {
			if credStore == nil {
				log.Warn().Msg("No credential file configured. Set credential_file in the config")
				return nil
			}

			names := credStore.Names()
			if len(names) == 0 {
				log.Info().Msg("Credential store is empty")
				return nil
			}

			c.App.Println(RenderUserTable(names))
			return nil
		},
	})
}

// CompleteListeners provides tab completion for bound listener addresses.
func CompleteListeners(_ string, _ []string) []string {
	var completions []string
	runningListeners.Range(func(key, _ any) bool {
		completions = append(completions, key.(string))
		return true
	})
	return completions
}

// CompleteUsers provides tab completion for stored usernames.
func CompleteUsers(_ string, _ []string) []string {
	if credStore == nil {
		return []string{}
	}
	return credStore.Names()
}

// main is the entry point for the application.
func main() {
	configureLogging()

	app := setupCLI()
	AddCommands(app)

	if err := app.Run(); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

// configureLogging sets up zerolog with appropriate formatting and level.
func configureLogging() {
	// Pretty console writer for interactive use
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// setupCLI initializes the command-line interface.
func setupCLI() *grumble.App {
	// Determine history file location
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".socksmith" // current working directory
	} else {
		histFile = filepath.Join(home, ".socksmith") // home directory
	}

	app := grumble.New(&grumble.Config{
		Name:        "socksmith",
		HistoryFile: histFile,
		Flags: func(f *grumble.Flags) {
			f.String("c", "config", "config.json", "path to configuration file")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Print(banner)
	})

	// Initialize configuration when the app starts
	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		var err error
		config, err = LoadConfig(flags.String("config"))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		if level := config.LogLevel; level != "" {
			parsed, _ := zerolog.ParseLevel(level)
			zerolog.SetGlobalLevel(parsed)
		}

		if config.CredentialFile != "" {
			credStore = creds.NewStore()
			if err := credStore.LoadFrom(config.CredentialFile); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("failed to load credentials: %v", err)
				}
				log.Warn().Str("file", config.CredentialFile).Msg("Credential file not found, starting with an empty store")
			}
		} else {
			log.Warn().Msg("No credential file configured, listeners will accept anonymous clients")
		}

		return nil
	})

	return app
}
