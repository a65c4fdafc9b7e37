package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aligator/fatstore"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output format command flags
var (
	outputFormat string = "text"
	prettyJSON   bool   = false
)

// volumeInfo is the result of the info command.
type volumeInfo struct {
	Type            string   `json:"type" yaml:"type"`
	Label           string   `json:"label" yaml:"label"`
	BootSectorLabel string   `json:"bootSectorLabel" yaml:"bootSectorLabel"`
	VolumeID        string   `json:"volumeId" yaml:"volumeId"`
	ClusterSize     int64    `json:"clusterSize" yaml:"clusterSize"`
	Clusters        uint32   `json:"clusters" yaml:"clusters"`
	FreeClusters    int      `json:"freeClusters" yaml:"freeClusters"`
	RootEntries     []string `json:"rootEntries" yaml:"rootEntries"`
}

func createInfoCommand() *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info [flags] IMAGE_FILE",
		Short: "prints the geometry and the label of the volume",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch outputFormat {
			case "text", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported --format %q (supported: text, json, yaml)", outputFormat)
			}
		},
		RunE: executeInfo,
	}

	infoCmd.Flags().StringVar(&outputFormat, "format", "text",
		"Specify the output format: text, json or yaml")
	infoCmd.Flags().BoolVar(&prettyJSON, "pretty", false,
		"Pretty-print JSON output (only for --format json)")

	return infoCmd
}

func collectInfo(vol *fatstore.Fs) (volumeInfo, error) {
	free, err := vol.FreeClusters()
	if err != nil {
		return volumeInfo{}, err
	}

	bs := vol.BootSector()
	info := volumeInfo{
		Type:            vol.FSType().String(),
		Label:           vol.Label(),
		BootSectorLabel: bs.VolumeLabel(),
		VolumeID:        fmt.Sprintf("%04X-%04X", bs.VolumeID()>>16, bs.VolumeID()&0xFFFF),
		ClusterSize:     bs.ClusterSize(),
		Clusters:        bs.ClusterCount(),
		FreeClusters:    free,
		RootEntries:     []string{},
	}
	for _, r := range vol.Root().Entries() {
		info.RootEntries = append(info.RootEntries, r.Name())
	}
	return info, nil
}

func executeInfo(cmd *cobra.Command, args []string) error {
	vol, closeFn, err := openVolume(args[0], true)
	if err != nil {
		return err
	}
	defer closeFn()

	info, err := collectInfo(vol)
	if err != nil {
		return err
	}
	return writeInfo(cmd.OutOrStdout(), info, outputFormat, prettyJSON)
}

func writeInfo(out io.Writer, info volumeInfo, format string, pretty bool) error {
	switch format {
	case "text":
		_, _ = fmt.Fprintf(out, "Type:              %s\n", info.Type)
		_, _ = fmt.Fprintf(out, "Label:             %s\n", info.Label)
		_, _ = fmt.Fprintf(out, "Boot sector label: %s\n", info.BootSectorLabel)
		_, _ = fmt.Fprintf(out, "Volume ID:         %s\n", info.VolumeID)
		_, _ = fmt.Fprintf(out, "Cluster size:      %d\n", info.ClusterSize)
		_, _ = fmt.Fprintf(out, "Clusters:          %d (%d free)\n", info.Clusters, info.FreeClusters)
		for _, name := range info.RootEntries {
			_, _ = fmt.Fprintf(out, "  %s\n", name)
		}
		return nil

	case "json":
		var (
			b   []byte
			err error
		)
		if pretty {
			b, err = json.MarshalIndent(info, "", "  ")
		} else {
			b, err = json.Marshal(info)
		}
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return nil

	case "yaml":
		b, err := yaml.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, _ = fmt.Fprint(out, string(b))
		return nil

	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
