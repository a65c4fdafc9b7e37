package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func createShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show IMAGE_FILE",
		Short: "prints the volume label",
		Args:  cobra.ExactArgs(1),
		RunE:  executeShow,
	}
}

func executeShow(cmd *cobra.Command, args []string) error {
	vol, closeFn, err := openVolume(args[0], true)
	if err != nil {
		return err
	}
	defer closeFn()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), vol.Label())
	return nil
}

func createSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set IMAGE_FILE LABEL",
		Short: "changes the volume label",
		Long: `Set writes the label to the root directory and to the boot sector.
An empty LABEL removes the label.`,
		Args: cobra.ExactArgs(2),
		RunE: executeSet,
	}
}

func executeSet(cmd *cobra.Command, args []string) error {
	log := logger.Sugar()
	imageFile, label := args[0], args[1]

	vol, closeFn, err := openVolume(imageFile, false)
	if err != nil {
		return err
	}

	if err := vol.SetLabel(label); err != nil {
		_ = closeFn()
		return fmt.Errorf("set label %q: %w", label, err)
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("write image %s: %w", imageFile, err)
	}

	log.Infof("Changed label of %s to %q", imageFile, label)
	return nil
}
