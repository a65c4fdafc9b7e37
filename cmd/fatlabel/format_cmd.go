package main

import (
	"fmt"
	"strings"

	"github.com/aligator/fatstore"
	"github.com/spf13/cobra"
)

// Format command flags
var (
	formatType    string = "auto"
	formatSizeMiB int64  = 0
	formatLabel   string = ""
	formatSPC     uint8  = 0
	formatOEMName string = ""
)

func createFormatCommand() *cobra.Command {
	formatCmd := &cobra.Command{
		Use:   "format [flags] IMAGE_FILE",
		Short: "writes an empty FAT volume to an image",
		Long: `Format creates an empty FAT volume without partition table.
With --size the image is created or truncated to that size, otherwise
the size of the existing image is used.`,
		Args: cobra.ExactArgs(1),
		RunE: executeFormat,
	}

	formatCmd.Flags().StringVar(&formatType, "type", "auto", "FAT type: auto, fat12, fat16 or fat32")
	formatCmd.Flags().Int64Var(&formatSizeMiB, "size", 0, "Size of the new image in MiB")
	formatCmd.Flags().StringVar(&formatLabel, "label", "", "Volume label")
	formatCmd.Flags().Uint8Var(&formatSPC, "sectors-per-cluster", 0, "Sectors per cluster, 0 to choose automatically")
	formatCmd.Flags().StringVar(&formatOEMName, "oem-name", "", "OEM name stored in the boot sector")

	return formatCmd
}

func parseFATType(s string) (fatstore.FATType, error) {
	switch strings.ToLower(s) {
	case "auto", "":
		return 0, nil
	case "fat12":
		return fatstore.FAT12, nil
	case "fat16":
		return fatstore.FAT16, nil
	case "fat32":
		return fatstore.FAT32, nil
	default:
		return 0, fmt.Errorf("unsupported --type %q (supported: auto, fat12, fat16, fat32)", s)
	}
}

func executeFormat(cmd *cobra.Command, args []string) error {
	log := logger.Sugar()
	imageFile := args[0]

	fatType, err := parseFATType(formatType)
	if err != nil {
		return err
	}

	var dev *fatstore.FileDevice
	if formatSizeMiB > 0 {
		dev, err = fatstore.CreateFileDevice(appFs, imageFile, formatSizeMiB*1024*1024)
	} else {
		dev, err = fatstore.OpenFileDevice(appFs, imageFile, false)
	}
	if err != nil {
		return fmt.Errorf("open image %s: %w", imageFile, err)
	}
	defer dev.Close()

	config := fatstore.FormatConfig{
		Type:              fatType,
		SectorsPerCluster: formatSPC,
		Label:             formatLabel,
		OEMName:           formatOEMName,
		Logger:            logger,
	}
	if err := fatstore.Format(dev, dev.Size(), config); err != nil {
		return fmt.Errorf("format image %s: %w", imageFile, err)
	}

	log.Infof("Formatted %s with %d bytes", imageFile, dev.Size())
	return nil
}
