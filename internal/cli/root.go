// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli provides busctl's root Cobra command and shared global
// flags, version metadata, and exit-code handling.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Flags holds the global flags every subcommand inherits from the root.
type Flags struct {
	ConfigPath string
	JSON       bool
}

// SetVersion records build-time version metadata, set from main via
// ldflags.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns the recorded version metadata.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// NewRootCommand creates busctl's root command and registers the global
// flags subcommands read via f.
func NewRootCommand(f *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "busctl",
		Short: "busctl runs a msgbus bus and workflow engine",
		Long: `busctl loads a transport and persistence backend from a config
file (or environment variables), wires up the workflow engine, and runs
the dispatch loop until interrupted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&f.ConfigPath, "config", "", "path to a busctl YAML config file")
	cmd.PersistentFlags().BoolVar(&f.JSON, "json", false, "output in JSON format")

	return cmd
}

// HandleExitError prints err and exits the process with a non-zero status.
func HandleExitError(err error) {
	fmt.Fprintf(os.Stderr, "busctl: %v\n", err)
	os.Exit(1)
}
