package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Output formats understood by the listing commands.
var outputFormats = []string{"table", "json", "yaml"}

// flagKeys maps a flag to the config key it overrides.
var flagKeys = map[*pflag.Flag]string{}

// bindFlag records that flag overrides config key.
func bindFlag(flag *pflag.Flag, key string) {
	if flag == nil {
		return
	}
	flagKeys[flag] = key
}

// bindCommandFlags binds the flags of the executing command to v. Several
// commands share keys, so only the running command's flags are bound.
func bindCommandFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f]; ok {
			err = multierr.Append(err, v.BindPFlag(key, f))
		}
	})
	return err
}

// addServerFlags adds the dev server flags to cmd.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 3000, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().Bool("open", false, "Open the browser once the server is up")
	bindFlag(cmd.Flags().Lookup("port"), "server.port")
	bindFlag(cmd.Flags().Lookup("host"), "server.host")
	bindFlag(cmd.Flags().Lookup("open"), "server.open")

	AddFlagValidation(cmd, "port", ValidatePort)
}

// addDevFlags adds the server flags plus the watcher tuning flags.
func addDevFlags(cmd *cobra.Command) {
	addServerFlags(cmd)
	cmd.Flags().Duration("debounce", 0, "Coalesce repeated changes to a file within this window (0 disables)")
	cmd.Flags().Int("max-runs", 0, "Cap concurrent pipeline runs (0 is unlimited)")
	cmd.Flags().Bool("initial-build", true, "Build every category before watching")
	bindFlag(cmd.Flags().Lookup("debounce"), "watch.debounce")
	bindFlag(cmd.Flags().Lookup("max-runs"), "dev.max_concurrent_runs")
	bindFlag(cmd.Flags().Lookup("initial-build"), "dev.initial_build")
}

// addFormatFlag adds a validated --format flag writing into target.
func addFormatFlag(cmd *cobra.Command, target *string, def string) {
	cmd.Flags().StringVarP(target, "format", "f", def, "Output format ("+strings.Join(outputFormats, "|")+")")
	AddFlagValidation(cmd, "format", func(format string) error {
		return ValidateFormat(format, outputFormats)
	})
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort checks a port flag value.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateFormat checks format against the allowed list.
func ValidateFormat(format string, allowed []string) error {
	if slices.Contains(allowed, strings.ToLower(format)) {
		return nil
	}
	return fmt.Errorf("unsupported format %q (supported: %s)", format, strings.Join(allowed, ", "))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}
