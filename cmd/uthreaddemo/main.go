// Command uthreaddemo is an interactive host program for the uthreads
// scheduler: a line-oriented REPL for spawning, blocking, resuming, and
// terminating user threads, and for inspecting quantum counters while they
// run. It is the hands-on counterpart to the library's own test suite.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/google/shlex"
	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-tty"

	"github.com/vcorelib/uthreads"
)

var (
	quantumUsecs = flag.Int("quantum-usecs", 100000, "virtual quantum length, in microseconds")
	maxThreads   = flag.Int("max-threads", 100, "thread table capacity")
	stackSize    = flag.String("stack-size", "4KiB", "per-thread stack region size")
	configPath   = flag.String("config", "", "load settings from a YAML config file instead of flags")
	lockPath     = flag.String("lock", "", "path to a lock file enforcing a single running instance")
)

func main() {
	flag.Parse()
	log.SetFlags(0)
	log.SetPrefix("uthreaddemo: ")

	if *lockPath != "" {
		fl := flock.New(*lockPath)
		locked, err := fl.TryLock()
		if err != nil {
			log.Fatalf("acquiring lock %s: %v", *lockPath, err)
		}
		if !locked {
			log.Fatalf("another instance already holds %s", *lockPath)
		}
		defer fl.Unlock()
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := uthreads.Init(cfg); err != nil {
		log.Fatalf("uthreads.Init: %v", err)
	}

	out := colorable.NewColorableStdout()
	fmt.Fprintln(out, "uthreaddemo ready. type \"help\" for commands.")

	if isatty.IsTerminal(os.Stdin.Fd()) {
		runInteractive(out)
		return
	}
	runBatch(out, os.Stdin)
}

func loadConfig() (uthreads.Config, error) {
	if *configPath != "" {
		return uthreads.LoadConfig(*configPath)
	}
	cfg := uthreads.Config{QuantumUsecs: *quantumUsecs, MaxThreads: *maxThreads}
	size, err := bytesize.Parse(*stackSize)
	if err != nil {
		return cfg, fmt.Errorf("invalid -stack-size %q: %w", *stackSize, err)
	}
	cfg.StackSize = size
	return cfg, cfg.Verify()
}

// runInteractive drives the REPL from a real terminal, reading raw runes
// through go-tty and assembling them into lines itself (go-tty deliberately
// bypasses line discipline, so backspace/erase and line assembly are the
// caller's job).
func runInteractive(out io.Writer) {
	t, err := tty.Open()
	if err != nil {
		log.Fatalf("opening tty: %v", err)
	}
	defer t.Close()

	var line []rune
	fmt.Fprint(out, "> ")
	for {
		r, err := t.ReadRune()
		if err != nil {
			return
		}
		switch r {
		case '\r', '\n':
			fmt.Fprintln(out)
			if !dispatch(out, string(line)) {
				return
			}
			line = line[:0]
			fmt.Fprint(out, "> ")
		case 127, '\b':
			if len(line) > 0 {
				line = line[:len(line)-1]
			}
		case 3: // ctrl-C
			return
		default:
			line = append(line, r)
			fmt.Fprint(out, string(r))
		}
	}
}

// runBatch reads commands from r line by line, for scripted or piped use.
func runBatch(out io.Writer, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if !dispatch(out, scanner.Text()) {
			return
		}
	}
}

func dispatch(out io.Writer, line string) bool {
	// The REPL runs on the host thread; this is where it lets a pending tick
	// hand the CPU to the spawned threads.
	uthreads.Checkpoint()
	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		return true
	}
	switch args[0] {
	case "help":
		printHelp(out)
	case "spawn":
		runSpawn(out)
	case "block":
		runWithTid(out, args, uthreads.Block)
	case "resume":
		runWithTid(out, args, uthreads.Resume)
	case "terminate":
		runWithTid(out, args, uthreads.Terminate)
	case "sleep":
		runSleep(out, args)
	case "quantums":
		runQuantums(out, args)
	case "checksum":
		runChecksum(out, args)
	case "tid":
		tid, _ := uthreads.GetTid()
		fmt.Fprintln(out, tid)
	case "total":
		total, _ := uthreads.GetTotalQuantums()
		fmt.Fprintln(out, total)
	case "quit", "exit":
		return false
	default:
		fmt.Fprintf(out, "unknown command %q\n", args[0])
	}
	return true
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `commands:
  spawn                spawn a thread that busy-loops, yielding at each tick, until terminated
  block <tid>          block a thread
  resume <tid>         resume a blocked thread
  terminate <tid>      terminate a thread
  sleep <quantums>     put the calling context to sleep
  quantums <tid>       print a thread's quantum count
  checksum <tid>       print a thread's stack-region CRC16 (diagnostic only)
  tid                  print the calling thread's tid
  total                print the elapsed quantum count
  quit                 exit`)
}

func runSpawn(out io.Writer) {
	tid, err := uthreads.Spawn(func() {
		for {
			if uthreads.Checkpoint() != nil {
				return
			}
		}
	})
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintln(out, tid)
}

func runWithTid(out io.Writer, args []string, op func(int) error) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: <cmd> <tid>")
		return
	}
	tid, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(out, "invalid tid")
		return
	}
	if err := op(tid); err != nil {
		fmt.Fprintln(out, err)
	}
}

func runSleep(out io.Writer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: sleep <quantums>")
		return
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(out, "invalid quantum count")
		return
	}
	if err := uthreads.Sleep(n); err != nil {
		fmt.Fprintln(out, err)
	}
}

func runQuantums(out io.Writer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: quantums <tid>")
		return
	}
	tid, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(out, "invalid tid")
		return
	}
	q, err := uthreads.GetQuantums(tid)
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintln(out, q)
}

func runChecksum(out io.Writer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: checksum <tid>")
		return
	}
	tid, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(out, "invalid tid")
		return
	}
	sum, err := uthreads.Checksum(tid)
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintf(out, "%04x\n", sum)
}
