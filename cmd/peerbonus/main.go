// Command peerbonus is a terminal client for Peer Bonus.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	peerbonus "github.com/peerbonus/peerbonus-go"
	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/peerbonus/peerbonus-go/graphql"
	"github.com/peerbonus/peerbonus-go/internal/settings"
	"github.com/peerbonus/peerbonus-go/kudos"
	"github.com/peerbonus/peerbonus-go/storage"
	"github.com/peerbonus/peerbonus-go/token"
	"github.com/peerbonus/peerbonus-go/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errOffline = errors.New("kudos commands need the backend; drop --offline")

// cli holds everything a command needs. It is built by the root command's
// PersistentPreRunE and released by close.
type cli struct {
	out    io.Writer
	logger *logrus.Logger

	configFile string
	apiURL     string
	verbose    bool
	offline    bool

	settings *settings.Settings
	auth     peerbonus.AuthAPI
	manager  *peerbonus.Manager
	kudos    *kudos.Client
	closers  []func() error
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{out: out, logger: logrus.New()}
	c.logger.SetOutput(os.Stderr)
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "peerbonus",
		Short:             "Send and browse kudos from the terminal",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default is ./config.yaml or ~/.config/peerbonus/config.yaml)")
	root.PersistentFlags().StringVar(&c.apiURL, "api", "", "backend base URL, overrides api.base_url")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&c.offline, "offline", false, "use the in-process auth backend instead of the network")

	root.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.statusCmd(),
		c.usersCmd(),
		c.feedCmd(),
		c.dashboardCmd(),
		c.sendCmd(),
		c.reactCmd(),
		c.metricsCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	s, err := settings.Load(c.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.apiURL != "" {
		s.API.BaseURL = c.apiURL
	}
	if c.verbose {
		s.Logging.Level = "debug"
	}
	if err := settings.SetupLogging(c.logger, s.Logging); err != nil {
		return err
	}
	c.settings = s

	ctx := cmd.Context()
	if err := c.setupAuth(ctx); err != nil {
		return err
	}

	manager, err := peerbonus.New().
		WithConfig(s.Config).
		WithAuthAPI(c.auth).
		WithLogger(c.logger).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build session manager: %w", err)
	}
	c.manager = manager
	c.closers = append(c.closers, manager.Close)

	if err := manager.Init(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	if c.offline {
		return nil
	}
	gql, err := graphql.NewClient(graphql.Config{
		Endpoint:   s.API.GraphQLURL(),
		Timeout:    s.API.Timeout,
		HTTPClient: transport.NewClient(manager, nil, c.logger),
		UserAgent:  s.API.UserAgent,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.kudos = kudos.NewClient(gql, manager, c.logger)
	return nil
}

func (c *cli) setupAuth(ctx context.Context) error {
	if !c.offline {
		client, err := authapi.NewClient(authapi.Config{
			BaseURL:    c.settings.API.BaseURL,
			BasePath:   c.settings.API.AuthPath,
			Timeout:    c.settings.API.Timeout,
			RetryCount: c.settings.API.RetryCount,
			UserAgent:  c.settings.API.UserAgent,
			Logger:     c.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create auth client: %w", err)
		}
		c.auth = client
		return nil
	}

	users := storage.NewFileStore(c.settings.Offline.UsersPath)
	c.closers = append(c.closers, users.Close)
	local, err := authapi.NewLocal(ctx, authapi.LocalConfig{
		Users:         users,
		SigningMethod: token.SigningMethod(strings.ToLower(c.settings.Offline.SigningMethod)),
		Secret:        []byte(c.settings.Offline.Secret),
		TokenTTL:      c.settings.Offline.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to start offline backend: %w", err)
	}
	c.logger.WithField("users", users.Path()).
		WithField("signing_method", c.settings.Offline.SigningMethod).
		Debug("Using offline auth backend")
	c.auth = local
	return nil
}

// close releases resources in reverse order of acquisition.
func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.WithError(err).Warn("Failed to release resource")
		}
	}
	c.closers = nil
}

func (c *cli) kudosClient() (*kudos.Client, error) {
	if c.kudos == nil {
		return nil, errOffline
	}
	return c.kudos, nil
}

func (c *cli) println(a ...interface{}) {
	fmt.Fprintln(c.out, a...)
}

func (c *cli) printf(format string, a ...interface{}) {
	fmt.Fprintf(c.out, format, a...)
}
