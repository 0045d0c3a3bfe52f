// Command opm is the operator CLI for openparcel: proxy pool
// maintenance and request-bundle decoding, the out-of-band surface
// spec.md §6 names alongside the HTTP API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "opm",
		Short: "openparcel operator CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			viper.SetEnvPrefix("OPENPARCEL")
			viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
			viper.AutomaticEnv()

			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
			} else {
				viper.SetConfigName("openparcel")
				viper.SetConfigType("yaml")
				viper.AddConfigPath(".")
				viper.AddConfigPath("/etc/openparcel")
			}
			if err := viper.ReadInConfig(); err != nil {
				if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
					return err
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./openparcel.yaml)")
	root.PersistentFlags().String("database-dsn", "", "Postgres DSN (overrides OPENPARCEL_DATABASE_DSN)")
	_ = viper.BindPFlag("database.dsn", root.PersistentFlags().Lookup("database-dsn"))

	root.AddCommand(newProxyCmd())
	root.AddCommand(newReqbundleCmd())
	return root
}
