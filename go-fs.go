package fatstore

import (
	"io"
	"io/fs"
	"strings"
)

// GoFs is a read only fs.FS view of a volume.
// Paths consist of short 8.3 names which are matched case insensitively.
type GoFs struct {
	vol *Fs
}

// NewGoFS wraps the volume to be compatible with fs.FS.
func NewGoFS(vol *Fs) *GoFs {
	return &GoFs{vol: vol}
}

func (g *GoFs) openDirectory(cluster uint32) (*Directory, error) {
	if cluster == 0 || cluster == g.vol.bs.RootCluster() {
		return g.vol.Root(), nil
	}

	chain, err := g.vol.OpenChain(cluster)
	if err != nil {
		return nil, err
	}
	return OpenDirectory(chain, g.vol.bs.RootCluster(), g.vol.logger)
}

func (g *GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	g.vol.mu.Lock()
	err := g.vol.checkOpen()
	g.vol.mu.Unlock()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	dot, err := ShortName(".")
	if err != nil {
		return nil, err
	}
	info := Record{Kind: RecordEntry, Header: EntryHeader{Name: dot, Attribute: AttrDirectory}}.FileInfo()
	dir := g.vol.Root()
	if name == "." {
		return &goDir{dir: dir, info: info}, nil
	}

	parts := strings.Split(name, "/")
	for i, part := range parts {
		record, ok := dir.Lookup(part)
		if !ok {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		last := i == len(parts)-1

		if record.Header.Attribute&AttrDirectory == 0 {
			if !last {
				return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
			}

			file, err := g.vol.OpenFile(record.Header.FirstCluster(), int64(record.Header.FileSize))
			if err != nil {
				return nil, &fs.PathError{Op: "open", Path: name, Err: err}
			}
			return &goFile{file: file, info: record.FileInfo()}, nil
		}

		dir, err = g.openDirectory(record.Header.FirstCluster())
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		info = record.FileInfo()
	}

	return &goDir{dir: dir, info: info}, nil
}

type goFile struct {
	file *File
	info fs.FileInfo
}

func (g *goFile) Stat() (fs.FileInfo, error) {
	return g.info, nil
}

func (g *goFile) Read(p []byte) (int, error) {
	return g.file.Read(p)
}

func (g *goFile) ReadAt(p []byte, off int64) (int, error) {
	return g.file.ReadAt(p, off)
}

func (g *goFile) Seek(offset int64, whence int) (int64, error) {
	return g.file.Seek(offset, whence)
}

func (g *goFile) Close() error {
	return g.file.Close()
}

type goDir struct {
	dir     *Directory
	info    fs.FileInfo
	entries []fs.DirEntry
	loaded  bool
	offset  int
}

func (g *goDir) Stat() (fs.FileInfo, error) {
	return g.info, nil
}

func (g *goDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: g.info.Name(), Err: fs.ErrInvalid}
}

func (g *goDir) Close() error {
	return nil
}

func (g *goDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !g.loaded {
		g.entries = g.dir.ReadDir()
		g.loaded = true
	}

	rest := g.entries[g.offset:]
	if n <= 0 {
		g.offset = len(g.entries)
		return rest, nil
	}

	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	g.offset += n
	return rest[:n], nil
}
