// Command cubescript is the command-line front end for libcubescript: it
// runs a script file, an inline -e expression, or an interactive REPL.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bigbookofbug/libcubescript/vm"
)

func main() {
	eval := flag.String("e", "", "evaluate STR and print its result instead of running a file")
	interactive := flag.Bool("i", false, "start an interactive REPL")
	verbose := flag.Bool("v", false, "log command dispatch and variable changes to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cubescript [options] [script]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a CubeScript file, or reads one from stdin if script is \"-\".\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cubescript -i                # start the REPL\n")
		fmt.Fprintf(os.Stderr, "  cubescript -e 'echo [1 + 2]' # evaluate one line\n")
		fmt.Fprintf(os.Stderr, "  cubescript game.cfg          # run a file\n")
		fmt.Fprintf(os.Stderr, "  cat game.cfg | cubescript -  # run stdin\n")
	}
	flag.Parse()

	st := vm.NewState()
	vm.RegisterBuiltins(st)
	st.EchoHook = func(text string) { fmt.Println(text) }
	if *verbose {
		st.Logger = vm.NewCommonLogger("cubescript")
		st.CallHook = func(name string, args []vm.Value) {
			fmt.Fprintf(os.Stderr, "call: %s (%d args)\n", name, len(args))
		}
	}

	if *eval != "" {
		runAndReport(st, *eval, "-e")
		if *interactive {
			runREPL(st)
		}
		return
	}

	args := flag.Args()
	switch {
	case *interactive && len(args) == 0:
		runREPL(st)
	case len(args) == 1:
		src, name, err := readScript(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if !runAndReport(st, src, name) {
			os.Exit(1)
		}
		if *interactive {
			runREPL(st)
		}
	case len(args) == 0:
		runREPL(st)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func readScript(path string) (src, name string, err error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), "<stdin>", err
	}
	b, err := os.ReadFile(path)
	return string(b), path, err
}

// runAndReport evaluates src and prints a parse/runtime error to stderr
// if one occurs, returning whether evaluation succeeded.
func runAndReport(st *vm.State, src, name string) bool {
	code, err := st.Compile(src, name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	v, err := st.Call(code)
	code.Unref()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	if name == "-e" {
		fmt.Println(v.ForceStr())
	}
	return true
}

func runREPL(st *vm.State) {
	fmt.Println("CubeScript REPL (type 'quit' to exit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			return
		}
		if line == "" {
			continue
		}
		v, err := st.Eval(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if s := v.ForceStr(); s != "" {
			fmt.Println(s)
		}
	}
}
