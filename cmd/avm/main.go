// avm CLI - runs and inspects AVM2 program images
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/avm2/vm/abc"
)

const version = "0.1.0"

var log = commonlog.GetLogger("avm2.cli")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: avm <command> [options] [image.abc]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run       Load an image, run its scripts and tick the frame loop\n")
	fmt.Fprintf(os.Stderr, "  disasm    Print a listing of every method body\n")
	fmt.Fprintf(os.Stderr, "  describe  Print a YAML summary of classes and scripts\n")
	fmt.Fprintf(os.Stderr, "  version   Print the version\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  avm run                       # run the entry of ./avm.toml\n")
	fmt.Fprintf(os.Stderr, "  avm run -v 2 -frames 60 game.abc\n")
	fmt.Fprintf(os.Stderr, "  avm disasm -method 3 game.abc\n")
	fmt.Fprintf(os.Stderr, "  avm describe game.abc > classes.yaml\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCommand(args)
	case "disasm":
		err = disasmCommand(args)
	case "describe":
		err = describeCommand(args)
	case "version", "-version", "--version":
		fmt.Printf("avm %s (image format %s v%d)\n", version, abc.Magic, abc.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readImage decodes the image at path.
func readImage(path string) (*abc.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := abc.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// imageArg returns the single positional image argument of fs.
func imageArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected one image path", fs.Name())
	}
	return fs.Arg(0), nil
}
