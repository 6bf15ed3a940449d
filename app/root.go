// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zonewarden",
	Short: "ZoneWarden is a web-based administration console for PowerDNS",
	Long: `ZoneWarden is a web-based administration console for PowerDNS
that provides login via local, LDAP, OIDC and SAML accounts and a
management interface for zones, records and users.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
