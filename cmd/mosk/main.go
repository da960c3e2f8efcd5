package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/evanphx/mosk/device"
	"github.com/evanphx/mosk/exec"
	"github.com/evanphx/mosk/kernel"
	"github.com/evanphx/mosk/loader"
	clog "github.com/evanphx/mosk/log"
	"github.com/evanphx/mosk/syscalls"
	tty "github.com/mattn/go-tty"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

var (
	fNEnv    = pflag.Int("nenv", kernel.DefaultNEnv, "size of the environment table, a power of two")
	fFrames  = pflag.Int("frames", kernel.DefaultNFrames, "number of physical page frames")
	fQuantum = pflag.Int("quantum", 0, "instructions per time slice, 0 disables the clock")
	fTTY     = pflag.Bool("tty", false, "write the console to the controlling terminal in raw mode")
	fSpin    = pflag.Bool("spin", false, "keep scheduling when nothing is runnable instead of exiting")
	fBundle  = pflag.StringP("bundle", "b", "", "tar archive of programs to boot, in archive order")
	fDebug   = pflag.BoolP("debug", "d", false, "enable debug logging")
)

// openConsole picks where putchar output goes. With --tty the terminal is
// put in raw mode; the returned function restores it.
func openConsole() (*device.Console, func(), error) {
	if !*fTTY {
		return device.NewConsole(os.Stdout), func() {}, nil
	}

	t, err := tty.Open()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening terminal")
	}

	restore := t.MustRaw()

	cons := device.NewConsole(t.Output())
	cons.Raw = true

	return cons, func() {
		cons.Flush()
		restore()
		t.Close()
	}, nil
}

func terminalColumns(f *os.File) (int, bool) {
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, false
	}

	return int(ws.Col), true
}

func main() {
	cpuprofile := os.Getenv("CPUPROFILE")
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		fmt.Printf("pprof: profiling started\n")
	}

	pflag.Parse()

	if *fDebug {
		clog.EnableDebug()
	}

	code := run(pflag.Args())

	if cpuprofile != "" {
		pprof.StopCPUProfile()
		fmt.Printf("pprof: profiling finished\n")
	}

	os.Exit(code)
}

func run(progs []string) int {
	if len(progs) == 0 && *fBundle == "" {
		fmt.Fprintf(os.Stderr, "usage: mosk [flags] program.s...\n")
		pflag.PrintDefaults()
		return 2
	}

	if cols, ok := terminalColumns(os.Stdout); ok {
		clog.L.Debug("console is a terminal", "columns", cols)
	} else if *fTTY {
		clog.L.Info("stdout is not a terminal, console goes to the controlling tty")
	}

	cons, closeConsole, err := openConsole()
	if err != nil {
		return exitCode(os.Stderr, err)
	}

	defer closeConsole()

	k, err := kernel.NewKernel(kernel.Config{
		NEnv:         *fNEnv,
		NFrames:      *fFrames,
		Quantum:      *fQuantum,
		HaltWhenIdle: !*fSpin,
		Console:      cons,
		Logger:       clog.L,
	})
	if err != nil {
		return exitCode(os.Stderr, err)
	}

	k.Invoker = &syscalls.Invoker{
		Kernel: k,
	}

	images, err := loadPrograms(loader.NewLoader(loader.DefaultCacheSize), *fBundle, progs)
	if err != nil {
		return exitCode(os.Stderr, err)
	}

	for _, prog := range images {
		e, err := k.CreateEnv(prog)
		if err != nil {
			return exitCode(os.Stderr, err)
		}

		clog.L.Debug("booted program", "program", prog.Name, "env", e.ID)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = k.Run(ctx)

	cons.Flush()

	return exitCode(os.Stderr, err)
}

// loadPrograms assembles the bundle, if any, followed by each file.
func loadPrograms(ld *loader.Loader, bundle string, paths []string) ([]*exec.Program, error) {
	var progs []*exec.Program

	if bundle != "" {
		f, err := os.Open(bundle)
		if err != nil {
			return nil, err
		}

		defer f.Close()

		progs, err = ld.LoadBundle(f)
		if err != nil {
			return nil, errors.Wrapf(err, "loading bundle %s", bundle)
		}
	}

	for _, path := range paths {
		prog, err := ld.LoadFile(path)
		if err != nil {
			return nil, err
		}

		progs = append(progs, prog)
	}

	return progs, nil
}

func exitCode(w io.Writer, err error) int {
	switch {
	case err == nil, err == kernel.ErrIdle, err == context.Canceled:
		return 0
	case kernel.IsFatal(err):
		fmt.Fprintf(w, "panic: %s\n", err)
		return 1
	default:
		fmt.Fprintf(w, "error: %s\n", err)
		return 1
	}
}
