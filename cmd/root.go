/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/molt/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "molt",
	Short: "Hot partial-reloader for live Python module graphs",
	Long: `Watches your project's source files and patches the already-loaded
module graph in place when they change: functions keep their identity
and get new code, classes keep their identity and get new members,
importers of changed values are updated transitively. Falls back to a
full reload when a minimal patch cannot be trusted.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			logging.GetLogger().SetDebugEnabled(true)
		}
		if viper.GetBool("quiet") {
			logging.GetLogger().SetQuietEnabled(true)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress info output")
	rootCmd.PersistentFlags().String("project-dir", "", "project directory (default: walk up from cwd)")
	cobra.CheckErr(viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")))
	cobra.CheckErr(viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet")))
	cobra.CheckErr(viper.BindPFlag("project-dir", rootCmd.PersistentFlags().Lookup("project-dir")))
}
