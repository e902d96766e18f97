// Package sh provides the interactive console of the bridge daemon.
package sh

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"github.com/golang/protobuf/jsonpb"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/mode"
	fx "github.com/robotalks/espnic/pkg/framework"
	"github.com/robotalks/espnic/pkg/status"
)

// Bridge is the bridge operated by the shell.
type Bridge interface {
	status.Source
	Intron() frame.Intron
	JoinAP(ssid, pass string) error
	ScanStart() error
	ScanStop() error
	ScanAPInfo(index int) (frame.APInfo, error)
	Reset() error
	ResetConnection()
	NotifyFlashResult(result mode.FlashResult)
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Device      string

	Shell  *ishell.Shell
	Bridge Bridge
	Addr   status.AddrSource
}

const (
	shellKey = "$shell"
	prompt   = "espif > "
)

var commands = []*ishell.Cmd{
	&StatusCmd,
	&JoinCmd,
	&ScanCmd,
	&ResetCmd,
	&ResetConnCmd,
	&FlashResultCmd,
}

// New creates a new shell.
func New(bridge Bridge) *Shell {
	s := &Shell{
		Interactive: true,
		Shell:       ishell.New(),
		Bridge:      bridge,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Run runs the interactive shell until it exits or ctx is done. With args,
// it runs a single command and returns.
func (s *Shell) Run(ctx context.Context, args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if !s.Interactive {
		return fmt.Errorf("command expected")
	}
	err := fx.RunWithContextCancel(ctx, s.Shell.Close, func() error {
		s.Shell.Run()
		return nil
	})
	glog.Info("shell exited")
	return err
}

// PrintStatus writes the bridge state.
func (s *Shell) PrintStatus(w io.Writer) error {
	if s.OutputJSON {
		snapshot := status.Snapshot(s.Device, s.Bridge, s.Addr)
		return (&jsonpb.Marshaler{}).Marshal(w, snapshot)
	}
	b := s.Bridge
	fmt.Fprintf(w, "mode:     %s\n", b.Mode())
	fmt.Fprintf(w, "firmware: %s\n", b.FwState())
	fmt.Fprintf(w, "link:     %s (up=%v)\n", b.LinkState(), b.LinkIsUp())
	intron := b.Intron()
	fmt.Fprintf(w, "intron:   % x\n", intron[:])
	if s.Addr != nil {
		if mac := s.Addr.HardwareAddr(); len(mac) > 0 {
			fmt.Fprintf(w, "mac:      %s\n", mac)
		}
	}
	stats := b.Stats()
	fmt.Fprintf(w, "in:       %d packets, %d bytes, %d dropped\n", stats.PacketsIn, stats.BytesIn, stats.InputDrops)
	fmt.Fprintf(w, "out:      %d packets, %d bytes\n", stats.PacketsOut, stats.BytesOut)
	fmt.Fprintf(w, "errors:   checksum=%d alloc=%d oversized=%d malformed=%d\n",
		stats.Parser.ChecksumErrors, stats.Parser.AllocErrors, stats.Parser.Oversized, stats.Parser.Malformed)
	fmt.Fprintf(w, "ticks:    %d (%d alive)\n", stats.Ticks, stats.AliveTicks)
	return nil
}

// Join asks the bridge to join an AP. args are SSID [PASSWORD].
func (s *Shell) Join(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("SSID required")
	}
	var pass string
	if len(args) > 1 {
		pass = args[1]
	}
	return s.Bridge.JoinAP(args[0], pass)
}

// Scan runs scan sub-commands: start, stop or list.
func (s *Shell) Scan(w io.Writer, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "start":
		return s.Bridge.ScanStart()
	case "stop":
		return s.Bridge.ScanStop()
	case "list", "ls":
		return s.listAPs(w)
	}
	return fmt.Errorf("unknown scan command %q", sub)
}

func (s *Shell) listAPs(w io.Writer) error {
	count := s.Bridge.ScanAPCount()
	if count == 0 {
		fmt.Fprintln(w, "No APs found")
		return nil
	}
	for i := 0; i < count; i++ {
		info, err := s.Bridge.ScanAPInfo(i)
		if err != nil {
			return fmt.Errorf("AP %d: %w", i, err)
		}
		lock := " "
		if info.RequiresPassword {
			lock = "*"
		}
		fmt.Fprintf(w, "%2d %s %s\n", i, lock, info.SSID)
	}
	return nil
}

// FlashResult notifies the result of flashing firmware.
func (s *Shell) FlashResult(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("RESULT required")
	}
	result, err := mode.ParseFlashResult(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	s.Bridge.NotifyFlashResult(result)
	return nil
}

func run(fn func(s *Shell, c *ishell.Context) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if err := fn(ShellFrom(c), c); err != nil {
			c.Err(err)
		}
	}
}

type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

var (
	// StatusCmd prints the bridge state.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: run(func(s *Shell, c *ishell.Context) error {
			return s.PrintStatus(contextWriter{c})
		}),
	}

	// JoinCmd joins an AP.
	JoinCmd = ishell.Cmd{
		Name:    "join",
		Aliases: []string{"j"},
		Help:    "SSID [PASSWORD]",
		Func: run(func(s *Shell, c *ishell.Context) error {
			return s.Join(c.Args)
		}),
	}

	// ScanCmd controls AP scan.
	ScanCmd = ishell.Cmd{
		Name: "scan",
		Help: "start|stop|list",
		Func: run(func(s *Shell, c *ishell.Context) error {
			return s.Scan(contextWriter{c}, c.Args)
		}),
	}

	// ResetCmd hard resets the co-processor.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: run(func(s *Shell, c *ishell.Context) error {
			return s.Bridge.Reset()
		}),
	}

	// ResetConnCmd forgets the AP connection.
	ResetConnCmd = ishell.Cmd{
		Name:    "reset-connection",
		Aliases: []string{"rc"},
		Help:    "",
		Func: run(func(s *Shell, c *ishell.Context) error {
			s.Bridge.ResetConnection()
			return nil
		}),
	}

	// FlashResultCmd reports the result of flashing firmware.
	FlashResultCmd = ishell.Cmd{
		Name: "flash-result",
		Help: "success|not-connected|failure",
		Func: run(func(s *Shell, c *ishell.Context) error {
			return s.FlashResult(c.Args)
		}),
	}
)
