/*
Copyright © 2019 the ncedit authors.
This file is part of ncedit.

ncedit is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncedit is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncedit.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package nceditutil holds the command-line interface of ncedit.
package nceditutil

import (
	"context"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncedit"
	"github.com/spatialmodel/ncedit/bandtable"
	"github.com/spatialmodel/ncedit/bandtable/gdalraster"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log is the logger used by the commands. It is configured from the
// loglevel option before each command runs.
var Log = logrus.New()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ncedit.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "loglevel",
			usage: `
              loglevel sets the logging level: debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "stage_dir",
			usage: `
              stage_dir is the directory where files in blob storage
              (file://, gs:// and s3:// paths) are staged. A temporary
              directory is used if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "template_suffix",
			usage: `
              template_suffix is appended to the base name of each input
              file to name its template. A suffix ending in .toml writes
              TOML templates; any other suffix writes JSON.`,
			defaultVal: ".json",
			flagsets:   []*pflag.FlagSet{Root.Flags(), templateCmd.Flags()},
		},
		{
			name: "output_suffix",
			usage: `
              output_suffix is appended to the base name of each input file
              to name its edited copy when the output is a directory.`,
			defaultVal: "_edit.nc",
			flagsets:   []*pflag.FlagSet{Root.Flags(), editCmd.Flags()},
		},
		{
			name: "compression_level",
			usage: `
              compression_level overrides the compression level of the
              template (0-9). The default of -1 keeps the template's level.`,
			defaultVal: -1,
			flagsets:   []*pflag.FlagSet{Root.Flags(), editCmd.Flags()},
		},
		{
			name: "bounds_offset",
			usage: `
              bounds_offset is the half-width in days of the time bounds
              written in "days" mode, unless the template sets bounds_offset.`,
			defaultVal: ncedit.DefaultBoundsOffset,
			flagsets:   []*pflag.FlagSet{Root.Flags(), editCmd.Flags()},
		},
		{
			name: "metrics_file",
			usage: `
              metrics_file is the path where edit counters are written in the
              Prometheus text format. Nothing is written if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.Flags(), editCmd.Flags()},
		},
		{
			name: "band_table",
			usage: `
              band_table is the band table written by "bands extract" when
              no table path is given. Tables ending in .xlsx are spreadsheets;
              anything else is written as CSV.`,
			defaultVal: "bands.csv",
			flagsets:   []*pflag.FlagSet{bandsExtractCmd.Flags()},
		},
		{
			name: "band_suffix",
			usage: `
              band_suffix is appended to the base name of each raster to
              name its edited copy.`,
			defaultVal: bandtable.DefaultSuffix,
			flagsets:   []*pflag.FlagSet{bandsApplyCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NCEDIT")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(templateCmd)
	Root.AddCommand(editCmd)
	Root.AddCommand(bandsCmd)
	bandsCmd.AddCommand(bandsExtractCmd)
	bandsCmd.AddCommand(bandsApplyCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and configures the logger.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("ncedit: problem reading configuration file: %v", err)
		}
	}
	return SetLogLevel(Log, Cfg.GetString("loglevel"))
}

// SetLogLevel configures l to write text with full timestamps to
// standard error at the given level.
func SetLogLevel(l *logrus.Logger, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("ncedit: %v", err)
	}
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	l.SetLevel(lvl)
	return nil
}

// editOptions gathers the edit settings from the configuration.
func editOptions() (EditOptions, error) {
	level, err := cast.ToIntE(Cfg.Get("compression_level"))
	if err != nil {
		return EditOptions{}, fmt.Errorf("ncedit: compression_level: %v", err)
	}
	offset, err := cast.ToFloat64E(Cfg.Get("bounds_offset"))
	if err != nil {
		return EditOptions{}, fmt.Errorf("ncedit: bounds_offset: %v", err)
	}
	return EditOptions{
		OutputSuffix:     Cfg.GetString("output_suffix"),
		CompressionLevel: level,
		BoundsOffset:     offset,
		MetricsFile:      os.ExpandEnv(Cfg.GetString("metrics_file")),
	}, nil
}

func stager() (*Stager, error) {
	return NewStager(os.ExpandEnv(Cfg.GetString("stage_dir")), Log)
}

// Root is the main command. With one or two arguments it writes
// templates and with three it applies a template.
var Root = &cobra.Command{
	Use:   "ncedit <input> [output] [template]",
	Short: "Edit the structure and contents of netCDF files.",
	Long: `ncedit edits netCDF files from a template.

ncedit <input> writes a template for <input> next to it.
ncedit <input> <output> writes the template to <output>, a file or a directory.
ncedit <input> <output> <template> writes an edited copy of <input> to <output>.

<input> may be a file, a directory of .nc files or a glob pattern. When there is
more than one input, <output> must be a directory. Paths may also refer to blob
storage using file://, gs:// or s3:// URLs.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'NCEDIT_var' where 'var' is the
name of the variable to be set.`,
	Args:              cobra.RangeArgs(1, 3),
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 3 {
			return editCmd.RunE(cmd, args)
		}
		return templateCmd.RunE(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ncedit.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ncedit v%s\n", ncedit.Version)
	},
	DisableAutoGenTag: true,
}

// templateCmd writes templates.
var templateCmd = &cobra.Command{
	Use:   "template <input> [output]",
	Short: "Write the template of a dataset",
	Long: `template extracts the header of each input dataset and writes it,
together with an edit plan that leaves the dataset unchanged, to a template file.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out string
		if len(args) > 1 {
			out = args[1]
		}
		s, err := stager()
		if err != nil {
			return err
		}
		defer s.Cleanup()
		paths, err := Template(context.Background(), s, args[0], out, Cfg.GetString("template_suffix"))
		for _, p := range paths {
			cmd.Printf("wrote %s\n", p)
		}
		return err
	},
	DisableAutoGenTag: true,
}

// editCmd applies templates.
var editCmd = &cobra.Command{
	Use:   "edit <input> <output> <template>",
	Short: "Write edited copies of datasets",
	Long: `edit applies the template to each input dataset and writes the
edited copies to the output.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := editOptions()
		if err != nil {
			return err
		}
		s, err := stager()
		if err != nil {
			return err
		}
		defer s.Cleanup()
		reports, err := Edit(context.Background(), s, args[0], args[1], args[2], opts)
		for _, r := range reports {
			cmd.Printf("wrote %s: %d variables written, %d dropped, %d skipped\n",
				r.Output, len(r.Written), len(r.Dropped), len(r.Skipped))
		}
		return err
	},
	DisableAutoGenTag: true,
}

var bandsCmd = &cobra.Command{
	Use:   "bands",
	Short: "Edit raster band descriptions and metadata",
	Long: `bands extracts the descriptions and metadata of the bands of GeoTIFF
files into a table, and writes edited copies of the files from the table.`,
	DisableAutoGenTag: true,
}

var bandsExtractCmd = &cobra.Command{
	Use:   "extract <dir> [table]",
	Short: "Write the band table of the GeoTIFF files in a directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := Cfg.GetString("band_table")
		if len(args) > 1 {
			table = args[1]
		}
		n, err := ExtractBands(gdalraster.Opener{}, args[0], table)
		if err != nil {
			return err
		}
		cmd.Printf("wrote %d bands to %s\n", n, table)
		return nil
	},
	DisableAutoGenTag: true,
}

var bandsApplyCmd = &cobra.Command{
	Use:   "apply <table>",
	Short: "Write edited copies of the GeoTIFF files named in a band table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reports, err := ApplyBands(gdalraster.Opener{}, args[0], Cfg.GetString("band_suffix"), Log)
		for _, r := range reports {
			cmd.Printf("wrote %s: %d bands, %d skipped\n", r.Output, len(r.Written), len(r.Skipped))
		}
		return err
	},
	DisableAutoGenTag: true,
}
