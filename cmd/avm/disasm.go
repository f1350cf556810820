package main

import (
	"bufio"
	"flag"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiCyan  = "\x1b[36m"
	ansiReset = "\x1b[0m"
)

// disasmCommand processes `avm disasm`. Mnemonics are coloured when stdout
// is a terminal.
func disasmCommand(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	method := fs.Int("method", 0, "Only list this method index")
	noColor := fs.Bool("no-color", false, "Never colour the output")
	fs.Parse(args)

	path, err := imageArg(fs)
	if err != nil {
		return err
	}
	f, err := readImage(path)
	if err != nil {
		return err
	}

	var highlight func(string) string
	if !*noColor && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())) {
		highlight = func(s string) string { return ansiCyan + s + ansiReset }
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	if *method > 0 {
		return f.Disassemble(w, *method, highlight)
	}
	for i := 1; i < len(f.Methods); i++ {
		if err := f.Disassemble(w, i, highlight); err != nil {
			return err
		}
		w.WriteString("\n")
	}
	return nil
}
