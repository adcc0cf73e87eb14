package cmds

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quarry-dbg/quarry/pkg/client"
	"github.com/quarry-dbg/quarry/pkg/config"
	"github.com/quarry-dbg/quarry/pkg/logflags"
	"github.com/quarry-dbg/quarry/pkg/remote"
	"github.com/quarry-dbg/quarry/pkg/symbolize"
	"github.com/quarry-dbg/quarry/pkg/version"
	"github.com/spf13/cobra"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const quarryCommandLongDesc = `Quarry is a remote debugger client.

Quarry connects to a debug agent running on the target system and mirrors the
state of the processes and threads the agent reports, letting you suspend
threads, walk their stacks, step through code and read target memory.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main quarry root command.
	rootCommand = &cobra.Command{
		Use:   "quarry",
		Short: "Quarry is a remote debugger client.",
		Long:  quarryCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (session,remote,stepping,symbolize)")

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Quarry Debugger Client\n%s\n%s\n", version.QuarryVersion, version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	// 'connect' subcommand.
	connectCommand := &cobra.Command{
		Use:   "connect [addr]",
		Short: "Connect to a debug agent.",
		Long:  "Connect to a debug agent running on the target system. If no address is given the agent-addr config value is used.",
		Run:   connectCmd,
	}
	rootCommand.AddCommand(connectCommand)

	return rootCommand
}

func connectCmd(cmd *cobra.Command, args []string) {
	addr := conf.AgentAddr
	if len(args) > 0 {
		addr = args[0]
	}
	if addr == "" {
		fmt.Fprint(os.Stderr, "An empty address was provided. You must provide an address as the first argument, or set agent-addr in the config file.\n")
		os.Exit(1)
	}
	os.Exit(connect(addr, conf))
}

func connect(addr string, conf *config.Config) int {
	if err := logflags.Setup(log, logOutput); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	sym := symbolize.NewIndex()
	if len(conf.SubstitutePath) > 0 {
		rules := make([]symbolize.PathSubstitution, 0, len(conf.SubstitutePath))
		for _, r := range conf.SubstitutePath {
			rules = append(rules, symbolize.PathSubstitution{From: r.From, To: r.To})
		}
		sym.SetPathSubstitutions(rules)
	}

	sess := client.NewSession(sym)
	sess.AddObserver(&stopPrinter{})
	if conf.ConnectTimeout != nil {
		sess.SetConnectTimeout(time.Duration(*conf.ConnectTimeout) * time.Second)
	}
	if conf.MaxBacktraceDepth != nil {
		sess.SetMaxBacktraceDepth(*conf.MaxBacktraceDepth)
	}
	if len(conf.SymbolPaths) > 0 {
		dirs := conf.SymbolPaths
		sess.SetModuleLoader(func(m remote.Module) (*symbolize.ModuleSymbols, error) {
			return symbolize.LoadModuleSymbols(dirs, m.Name, m.Base, m.BuildID)
		})
	}

	if err := sess.Connect(addr); err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to agent at %s: %v\n", addr, err)
		return 1
	}
	fmt.Printf("connected to agent at %s\n", addr)

	go waitForDisconnectSignal(sess)
	sess.Run()
	return 0
}

// waitForDisconnectSignal waits for a SIGINT (Ctrl-C) signal from the OS and
// shuts the session down when it arrives.
func waitForDisconnectSignal(sess *client.Session) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	<-ch
	sess.Disconnect()
	sess.Shutdown()
}

// stopPrinter reports thread stops on standard output.
type stopPrinter struct {
	client.NopObserver
}

func (p *stopPrinter) OnThreadStopped(t *client.Thread, etype remote.ExceptionType, hitBreakpoints []uint32) {
	loc := "?"
	if top := t.TopFrame(); top != nil {
		loc = top.Location().String()
	}
	fmt.Printf("thread %d stopped at %s\n", t.Koid(), loc)
}
