// fatlabel reads and changes the volume label of FAT images.
package main

import (
	"os"
)

func main() {
	if err := createRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
