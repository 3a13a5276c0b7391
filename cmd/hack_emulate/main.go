package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/teris-io/cli"
	"golang.org/x/term"

	"hackstack.dev/toolchain/pkg/emulator"
)

var Description = strings.ReplaceAll(`
The Hack Emulator loads an already assembled (.hack) ROM and executes it on a cycle-level
model of the Hack computer. In its default mode it owns the terminal, forwarding keystrokes
into the keyboard register while stepping; with --headless it instead runs unattended until
the program halts and reports the final CPU state.
`, "\n", " ")

const defaultBatch = 10_000

var HackEmulate = cli.New(Description).
	WithArg(cli.NewArg("rom", "The compiled (.hack) ROM file to load and execute")).
	WithOption(cli.NewOption("steps", "Instructions executed per keyboard poll (default 10000)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("headless", "Runs to completion without an interactive keyboard").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("ERROR: Unable to open rom file: %s\n", err)
		return -1
	}

	machine := emulator.NewMachine()
	if err := machine.LoadROM(string(content)); err != nil {
		fmt.Printf("ERROR: Unable to load rom: %s\n", err)
		return -1
	}

	batch := defaultBatch
	if raw, enabled := options["steps"]; enabled && raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			fmt.Printf("ERROR: --steps must be a positive integer\n")
			return -1
		}
		batch = parsed
	}

	if _, headless := options["headless"]; headless {
		return runHeadless(machine, batch)
	}

	return runInteractive(machine, batch)
}

// runHeadless steps the machine to completion (the self-loop halt sentinel)
// with no keyboard attached, then reports the final register snapshot.
func runHeadless(machine *emulator.Machine, batch int) int {
	for {
		if executed := machine.Step(batch); executed < batch {
			break
		}
	}

	printState(os.Stdout, machine.CPUState())
	return 0
}

// runInteractive puts the terminal into raw mode for the duration of the run
// so that every keystroke reaches the Hack keyboard register directly, instead
// of waiting on a line-buffered Enter. Ctrl-C exits the emulator without
// touching the terminal's own signal handling.
func runInteractive(machine *emulator.Machine, batch int) int {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Printf("ERROR: interactive mode requires a terminal, re-run with --headless\n")
		return -1
	}

	previous, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Printf("ERROR: Unable to enter raw terminal mode: %s\n", err)
		return -1
	}
	defer term.Restore(fd, previous)

	keys := make(chan rune)
	go readKeys(os.Stdin, keys)

	for {
		select {
		case r, open := <-keys:
			if !open || r == 3 { // stdin closed, or Ctrl-C
				machine.SetKeyboard(emulator.KeyRelease)
				fmt.Fprint(os.Stdout, "\r\n")
				printState(os.Stdout, machine.CPUState())
				return 0
			}
			machine.SetKeyboard(emulator.KeyCode(r))
		default:
			// No key waiting this round; leave the last-written register as-is.
		}

		if executed := machine.Step(batch); executed < batch {
			fmt.Fprint(os.Stdout, "\r\n")
			printState(os.Stdout, machine.CPUState())
			return 0
		}
	}
}

// readKeys feeds raw bytes read off 'in' into 'out' one rune at a time, until
// the read side errors out (e.g. the terminal session closes).
func readKeys(in *os.File, out chan<- rune) {
	defer close(out)

	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if err != nil || n == 0 {
			return
		}
		out <- rune(buf[0])
	}
}

func printState(w *os.File, state emulator.CPUState) {
	fmt.Fprintf(w, "OK: halted at PC=%d A=%d D=%d M=%d\n", state.PC, state.A, state.D, state.M)
}

func main() { os.Exit(HackEmulate.Run(os.Args, os.Stdout)) }
