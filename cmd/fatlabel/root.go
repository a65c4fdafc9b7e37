package main

import (
	"fmt"

	"github.com/aligator/fatstore"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// appFs is the filesystem images are opened from. Tests replace it with an in-memory one.
var appFs afero.Fs = afero.NewOsFs()

// Global command flags
var (
	verbose    bool = false
	skipChecks bool = false
)

var logger = zap.NewNop()

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every step")
	flags.BoolVar(&skipChecks, "skip-checks", false, "Open images with a non standard boot sector")
}

// setupLogger creates the logger for the command run.
func setupLogger() error {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		return nil
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	l, err := config.Build()
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fatlabel",
		Short:        "reads and changes the volume label of FAT images",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(createShowCommand())
	rootCmd.AddCommand(createSetCommand())
	rootCmd.AddCommand(createInfoCommand())
	rootCmd.AddCommand(createFormatCommand())
	return rootCmd
}

// openVolume mounts the image. The returned function closes the volume and the image.
func openVolume(path string, readOnly bool) (*fatstore.Fs, func() error, error) {
	dev, err := fatstore.OpenFileDevice(appFs, path, readOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("open image %s: %w", path, err)
	}

	opts := []fatstore.Option{fatstore.WithLogger(logger)}
	if readOnly {
		opts = append(opts, fatstore.ReadOnly())
	}
	if skipChecks {
		opts = append(opts, fatstore.SkipChecks())
	}

	vol, err := fatstore.New(dev, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, nil, fmt.Errorf("mount image %s: %w", path, err)
	}

	closeFn := func() error {
		err := vol.Close()
		if closeErr := dev.Close(); err == nil {
			err = closeErr
		}
		return err
	}
	return vol, closeFn, nil
}
