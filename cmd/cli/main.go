// Command furni drives the account core from the command line: provider
// logins, the federated identity, favorites, friends and contacts upload.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/furni/internal/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "furni",
		Short:         "furni signs in with Twitter or Digits and manages the federated account",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		fmt.Sprintf("config file (default %s/config.yaml)", config.DefaultClientDir()))
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newVersionCmd(),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newRefreshCmd(opts),
		newFavoritesCmd(opts),
		newFavoriteCmd(opts),
		newFriendsCmd(opts),
		newUploadContactsCmd(opts),
	)
	return root
}

func (o *options) logger(errOut io.Writer) *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(errOut, "logger:", err)
		return zap.NewNop()
	}
	return log
}

// run opens the account core for one command and closes it afterwards.
func (o *options) run(cmd *cobra.Command, login loginFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.LoadClient(o.configPath)
	if err != nil {
		return err
	}
	log := o.logger(cmd.ErrOrStderr())
	defer func() { _ = log.Sync() }()

	a, err := openApp(cmd.Context(), cfg, log, cmd.InOrStdin(), cmd.OutOrStdout(), login)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}
