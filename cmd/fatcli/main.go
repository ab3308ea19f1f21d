// fatcli inspects and edits FAT32 disk images with the same engine that
// runs against USB devices, which makes it a handy way to poke at the
// library without hardware.
package main

import (
	"fmt"
	"log"
	"os"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
	"github.com/rifkyprayoga/usbfat/fat32"
	"github.com/rifkyprayoga/usbfat/fs"
)

func main() {
	app := cli.App{
		Usage: "Inspect and edit FAT32 disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Usage:    "path to the disk image",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "block-size",
				Usage: "device block size in bytes",
				Value: 512,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Print volume label and space usage",
				Action: withVolume(runInfo),
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "PATH",
				Action:    withVolume(runList),
			},
			{
				Name:      "cat",
				Usage:     "Write a file's contents to stdout",
				ArgsUsage: "PATH",
				Action:    withVolume(runCat),
			},
			{
				Name:      "cp",
				Usage:     "Copy a host file into the image",
				ArgsUsage: "HOST_FILE  IMAGE_PATH",
				Action:    withVolume(runCopyIn),
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				ArgsUsage: "PATH",
				Action:    withVolume(runMkdir),
			},
			{
				Name:      "rm",
				Usage:     "Delete a file or directory tree",
				ArgsUsage: "PATH",
				Action:    withVolume(runRemove),
			},
			{
				Name:      "mv",
				Usage:     "Move an entry into another directory",
				ArgsUsage: "SRC_PATH  DEST_DIR",
				Action:    withVolume(runMove),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// withVolume mounts the image named by the global flags before handing
// control to the subcommand.
func withVolume(
	action func(ctx *cli.Context, volume *fat32.FileSystem) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		file, err := os.OpenFile(ctx.String("image"), os.O_RDWR, 0)
		if err != nil {
			return err
		}
		defer file.Close()

		device, err := driver.NewFileBlockDevice(file, ctx.Int("block-size"))
		if err != nil {
			return err
		}
		volume, err := fs.CreateFileSystem(device, usbfat.Config{})
		if err != nil {
			return err
		}
		return action(ctx, volume)
	}
}

// resolve walks a path from the root, failing with a usable message when
// it doesn't exist.
func resolve(volume *fat32.FileSystem, target string) (usbfat.UsbFile, error) {
	target = strings.Trim(target, "/")
	if target == "" || target == "." {
		return volume.Root(), nil
	}
	found, err := volume.Root().Search(target)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.ErrNotFound.WithMessage(target)
	}
	return found, nil
}

func runInfo(_ *cli.Context, volume *fat32.FileSystem) error {
	label, err := volume.VolumeLabel()
	if err != nil {
		return err
	}
	free, err := volume.FreeSpace()
	if err != nil {
		return err
	}
	used, err := volume.OccupiedSpace()
	if err != nil {
		return err
	}

	fmt.Printf("Label:    %s\n", label)
	fmt.Printf("Capacity: %s\n", humanize.IBytes(uint64(volume.Capacity())))
	fmt.Printf("Used:     %s\n", humanize.IBytes(uint64(used)))
	fmt.Printf("Free:     %s\n", humanize.IBytes(uint64(free)))
	return nil
}

func runList(ctx *cli.Context, volume *fat32.FileSystem) error {
	target, err := resolve(volume, ctx.Args().First())
	if err != nil {
		return err
	}
	children, err := target.ListFiles()
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.IsDirectory() {
			fmt.Printf("%10s  %s/\n", "", child.Name())
		} else {
			fmt.Printf("%10s  %s\n", humanize.IBytes(uint64(child.Length())), child.Name())
		}
	}
	return nil
}

func runCat(ctx *cli.Context, volume *fat32.FileSystem) error {
	target, err := resolve(volume, ctx.Args().First())
	if err != nil {
		return err
	}
	contents := make([]byte, target.Length())
	if err := target.ReadAt(0, contents); err != nil {
		return err
	}
	_, err = os.Stdout.Write(contents)
	return err
}

func runCopyIn(ctx *cli.Context, volume *fat32.FileSystem) error {
	if ctx.Args().Len() != 2 {
		return fmt.Errorf("cp needs a host file and an image path")
	}
	contents, err := os.ReadFile(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	imagePath := strings.Trim(ctx.Args().Get(1), "/")
	parent, err := resolve(volume, path.Dir(imagePath))
	if err != nil {
		return err
	}
	target, err := parent.CreateFile(path.Base(imagePath))
	if err != nil {
		return err
	}
	if err := target.WriteAt(0, contents); err != nil {
		return err
	}
	return target.Close()
}

func runMkdir(ctx *cli.Context, volume *fat32.FileSystem) error {
	target := strings.Trim(ctx.Args().First(), "/")
	parent, err := resolve(volume, path.Dir(target))
	if err != nil {
		return err
	}
	_, err = parent.CreateDirectory(path.Base(target))
	return err
}

func runRemove(ctx *cli.Context, volume *fat32.FileSystem) error {
	target, err := resolve(volume, ctx.Args().First())
	if err != nil {
		return err
	}
	return target.Delete()
}

func runMove(ctx *cli.Context, volume *fat32.FileSystem) error {
	if ctx.Args().Len() != 2 {
		return fmt.Errorf("mv needs a source path and a destination directory")
	}
	source, err := resolve(volume, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	dest, err := resolve(volume, ctx.Args().Get(1))
	if err != nil {
		return err
	}
	return source.MoveTo(dest)
}
