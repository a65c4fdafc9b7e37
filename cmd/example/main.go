package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/aligator/fatstore"
	"github.com/spf13/afero"
)

// main is just a example main to play with fatstore.
// It walks the image given as argument or a fresh in-memory volume.
func main() {
	dev, err := openDevice(os.Args[1:])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer dev.Close()

	fat, err := fatstore.New(dev)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer fat.Close()

	fmt.Printf("Opened volume '%v' with type %v\n\n", fat.Label(), fat.FSType())

	gofs := fatstore.NewGoFS(fat)
	err = fs.WalkDir(gofs, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Println(err)
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Println(path, info.IsDir(), info.ModTime())
		return nil
	})
	if err != nil {
		os.Exit(1)
	}

	file, err := gofs.Open("README.TXT")
	if err != nil {
		fmt.Println("could not open the root file", err)
		os.Exit(1)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		fmt.Println("could not stat the file", err)
		os.Exit(1)
	}
	buffer, err := io.ReadAll(file)
	if err != nil {
		fmt.Println("could not read the file", err)
		os.Exit(1)
	}
	fmt.Println("\n\nContent of " + stat.Name() + ":\n\n" + string(buffer))

	seeker, ok := file.(io.ReadSeeker)
	if !ok {
		os.Exit(1)
	}
	offset, err := seeker.Seek(6, io.SeekStart)
	if err != nil {
		fmt.Println("could not seek", err)
		os.Exit(1)
	}
	buffer = make([]byte, 5)
	n, err := seeker.Read(buffer)
	if err != nil && err != io.EOF {
		fmt.Println("could not read the file", err)
		os.Exit(1)
	}
	fmt.Println(offset, n, string(buffer[:n]))
}

// openDevice opens the image file or creates a small volume containing README.TXT.
func openDevice(args []string) (*fatstore.FileDevice, error) {
	if len(args) > 0 {
		return fatstore.OpenFileDevice(afero.NewOsFs(), args[0], false)
	}

	dev, err := fatstore.NewMemDevice(1024 * 1024)
	if err != nil {
		return nil, err
	}
	if err := fatstore.Format(dev, dev.Size(), fatstore.FormatConfig{Label: "EXAMPLE"}); err != nil {
		return nil, err
	}

	fat, err := fatstore.New(dev)
	if err != nil {
		return nil, err
	}
	file, err := fat.CreateFile()
	if err != nil {
		return nil, err
	}
	if _, err := file.WriteString("Hello fatstore!\n"); err != nil {
		return nil, err
	}
	entry, err := fatstore.NewEntry("readme.txt", fatstore.AttrArchive, file.StartCluster(), uint32(file.Size()), time.Now())
	if err != nil {
		return nil, err
	}
	if err := fat.Root().AddEntry(entry); err != nil {
		return nil, err
	}
	return dev, fat.Close()
}
