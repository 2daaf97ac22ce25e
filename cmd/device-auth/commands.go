package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wrale/device-auth/internal/redisstream"
	"github.com/wrale/device-auth/pkg/deviceauth"
)

// app is the state shared by all commands of one invocation
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfg     Config
	logger  zerolog.Logger
	flow    *deviceauth.Flow
	cleanup func() error

	// flag overrides
	instanceURL string
	pushBackend string
	logLevel    string
	output      string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, cleanup: func() error { return nil }}

	root := &cobra.Command{
		Use:   "device-auth",
		Short: "Authenticate against an instance with the device authorization flow",
		Long: `device-auth obtains an access token for an instance without a browser
on this machine. It prints a code and a URL, waits until the code is
approved from any browser, and prints the resulting token.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.instanceURL, "instance", "", "Instance base URL (default from "+envPrefix+"_INSTANCE_URL)")
	flags.StringVar(&a.pushBackend, "push-backend", "", "Approval channel: websocket or redis (default from "+envPrefix+"_PUSH_BACKEND)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (default from "+envPrefix+"_LOG_LEVEL)")
	flags.StringVarP(&a.output, "output", "o", "text", "Output format: text or json")

	root.AddCommand(a.loginCmd(), a.refreshCmd())
	return root
}

// setup merges flags over the environment and builds the flow controller
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if a.instanceURL != "" {
		cfg.InstanceURL = a.instanceURL
	}
	if a.pushBackend != "" {
		cfg.PushBackend = a.pushBackend
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.output != "text" && a.output != "json" {
		return fmt.Errorf("unknown output format %q", a.output)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	a.cfg = cfg
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: a.stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().
		Logger()

	opts := []deviceauth.Option{
		deviceauth.WithLogger(a.logger),
		deviceauth.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	}

	if cfg.PushBackend == backendRedis {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing Redis URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		dialer := redisstream.NewDialer(client, cfg.RedisPrefix)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
		defer cancel()
		if err := dialer.CheckHealth(ctx); err != nil {
			client.Close()
			return err
		}
		a.cleanup = client.Close
		opts = append(opts, deviceauth.WithStreamDialer(dialer))
	}

	a.flow, err = deviceauth.New(cfg.InstanceURL, opts...)
	if err != nil {
		return err
	}

	a.logger.Debug().
		Str("instance", cfg.InstanceURL).
		Str("push_backend", cfg.PushBackend).
		Msg("configured")
	return nil
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Run the device authorization flow and print the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.LoginTimeout)
			defer cancel()

			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.stderr))
			s.Suffix = " Waiting for authorization..."
			defer s.Stop()

			tok, err := a.flow.Authenticate(ctx, func(req *deviceauth.AuthenticationRequest) error {
				a.printRequest(req)
				s.Start()
				return nil
			})
			s.Stop()
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			return a.printToken("Authentication successful", tok)
		},
	}
}

func (a *app) refreshCmd() *cobra.Command {
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange a refresh token for a new token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()

			if refreshToken == "" {
				refreshToken = strings.TrimSpace(a.cfg.RefreshToken)
			}
			if refreshToken == "" {
				return fmt.Errorf("a refresh token is required (--refresh-token or %s_REFRESH_TOKEN)", envPrefix)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			tok, err := a.flow.RefreshToken(ctx, refreshToken)
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			return a.printToken("Token refreshed", tok)
		},
	}
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token from a previous login (default from "+envPrefix+"_REFRESH_TOKEN)")
	return cmd
}

// close releases resources opened by setup
func (a *app) close() {
	if err := a.cleanup(); err != nil {
		a.logger.Warn().Err(err).Msg("closing push backend")
	}
}
