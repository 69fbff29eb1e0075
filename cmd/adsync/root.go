package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "adsync",
		Short:         "Browse and watch video-ad orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.baseURL, "base-url", "", "Order service URL (overrides ADSYNC_BASE_URL)")
	pf.StringVar(&flags.email, "email", "", "Account email (overrides ADSYNC_EMAIL)")
	pf.StringVar(&flags.password, "password", "", "Account password (overrides ADSYNC_PASSWORD)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (overrides ADSYNC_LOG_LEVEL)")
	pf.BoolVar(&flags.json, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newOrdersCommand(ctx))
	rootCmd.AddCommand(newOrderCommand(ctx))
	rootCmd.AddCommand(newProductsCommand(ctx))
	rootCmd.AddCommand(newEditScriptCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newAvatarsCommand(ctx))
	rootCmd.AddCommand(newVoicesCommand(ctx))

	return rootCmd
}
