// Command fatimg formats, inspects, and edits FAT12 disk images through the
// fscore façade, in the spirit of the teacher's single-cli.App tool shape.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mkfs-go/fscore"
	"github.com/mkfs-go/fscore/block"
	"github.com/mkfs-go/fscore/driver"
	"github.com/mkfs-go/fscore/fat"
	"github.com/mkfs-go/fscore/internal/geometry"
)

func main() {
	app := &cli.App{
		Name:  "fatimg",
		Usage: "format, inspect, and edit FAT12 disk images",
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "create a fresh FAT12 image",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "geometry", Usage: "named preset (see internal/geometry)"},
					&cli.Int64Flag{Name: "size", Usage: "image size in bytes, if not using --geometry"},
				},
				Action: cmdFormat,
			},
			{
				Name:      "ls",
				Usage:     "list a directory's entries",
				ArgsUsage: "IMAGE [PATH]",
				Action:    cmdLs,
			},
			{
				Name:      "cat",
				Usage:     "print a file's contents to stdout",
				ArgsUsage: "IMAGE PATH",
				Action:    cmdCat,
			},
			{
				Name:      "put",
				Usage:     "copy a local file into the image",
				ArgsUsage: "IMAGE PATH LOCAL-FILE",
				Action:    cmdPut,
			},
			{
				Name:      "fsck",
				Usage:     "check the image for consistency",
				ArgsUsage: "IMAGE",
				Action:    cmdFsck,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatimg: %s", err)
	}
}

func openCache(path string, writable bool) (*block.Cache, *os.File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, nil, err
	}
	cache, err := block.NewCacheFromStreamSize(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return cache, f, nil
}

func cmdFormat(ctx *cli.Context) error {
	if ctx.Args().Len() < 1 {
		return cli.Exit("usage: fatimg format IMAGE [--geometry NAME | --size BYTES]", 1)
	}
	path := ctx.Args().Get(0)

	var stat fscore.FSStat
	if name := ctx.String("geometry"); name != "" {
		g, err := geometry.ByName(name)
		if err != nil {
			return err
		}
		stat = g.FSStat()
	} else {
		size := ctx.Int64("size")
		if size <= 0 {
			return cli.Exit("must pass --geometry or a positive --size", 1)
		}
		stat = fscore.FSStat{
			TotalBytes:        size,
			BytesPerSector:    block.SectorSize,
			RootEntryCount:    224,
			MediaDescriptor:   0xF0,
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(stat.TotalBytes); err != nil {
		return err
	}

	cache := block.NewCache(f, uint32(stat.TotalBytes/block.SectorSize))
	fs, err := fat.Hooks.Create(cache, stat)
	if err != nil {
		return err
	}
	if err := fat.Hooks.Close(fs); err != nil {
		return err
	}
	return cache.Flush()
}

func mountReadOnly(path string) (driver.Filesystem, *os.File, error) {
	cache, f, err := openCache(path, false)
	if err != nil {
		return nil, nil, err
	}
	fs, err := fat.Hooks.Load(cache, fscore.MountFlagsReadOnly)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return fs, f, nil
}

// resolvePath walks path's "/"-separated components from the root via
// repeated readdir calls, the only traversal primitive the façade exposes.
func resolvePath(fs driver.Filesystem, path string) (fscore.INODE, error) {
	current := fscore.RootINODE
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		found := false
		for i := 2; ; i++ {
			entry, ok, err := fs.Readdir(current, i)
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			if entry.Name == part {
				current = entry.INODE
				found = true
				break
			}
		}
		if !found {
			return 0, fscore.ErrNotFound.WithMessage("no such path component: " + part)
		}
	}
	return current, nil
}

func cmdLs(ctx *cli.Context) error {
	if ctx.Args().Len() < 1 {
		return cli.Exit("usage: fatimg ls IMAGE [PATH]", 1)
	}
	fs, f, err := mountReadOnly(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	dir := fscore.RootINODE
	if ctx.Args().Len() >= 2 {
		dir, err = resolvePath(fs, ctx.Args().Get(1))
		if err != nil {
			return err
		}
	}
	for i := 0; ; i++ {
		entry, ok, err := fs.Readdir(dir, i)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		stat, err := fs.Fstat(entry.INODE)
		if err != nil {
			return err
		}
		kind := "-"
		if stat.IsDir() {
			kind = "d"
		}
		fmt.Printf("%s %8d %s\n", kind, stat.Size, entry.Name)
	}
	return nil
}

func cmdCat(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return cli.Exit("usage: fatimg cat IMAGE PATH", 1)
	}
	fs, f, err := mountReadOnly(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	ino, err := resolvePath(fs, ctx.Args().Get(1))
	if err != nil {
		return err
	}
	stat, err := fs.Fstat(ino)
	if err != nil {
		return err
	}

	buf := make([]byte, stat.Size)
	n, err := fs.Read(ino, buf, 0)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf[:n])
	return err
}

func cmdPut(ctx *cli.Context) error {
	if ctx.Args().Len() != 3 {
		return cli.Exit("usage: fatimg put IMAGE PATH LOCAL-FILE", 1)
	}
	cache, f, err := openCache(ctx.Args().Get(0), true)
	if err != nil {
		return err
	}
	defer f.Close()
	fs, err := fat.Hooks.Load(cache, fscore.MountFlagsReadWrite)
	if err != nil {
		return err
	}

	local, err := os.Open(ctx.Args().Get(2))
	if err != nil {
		return err
	}
	defer local.Close()
	contents, err := io.ReadAll(local)
	if err != nil {
		return err
	}

	targetPath := ctx.Args().Get(1)
	dirPath, name := splitParent(targetPath)
	parent, err := resolvePath(fs, dirPath)
	if err != nil {
		return err
	}

	ino, err := fs.Touch(fscore.FileStat{Size: int64(len(contents))})
	if err != nil {
		return err
	}
	if err := fs.Link(ino, parent, name); err != nil {
		return err
	}
	if _, err := fs.Write(ino, contents, 0); err != nil {
		return err
	}

	if err := fat.Hooks.Close(fs); err != nil {
		return err
	}
	return cache.Flush()
}

func splitParent(path string) (dir string, name string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func cmdFsck(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return cli.Exit("usage: fatimg fsck IMAGE", 1)
	}
	fs, f, err := mountReadOnly(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fat.Hooks.Check(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("ok")
	return nil
}
