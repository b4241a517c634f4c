// Command forkserve is the CLI front-end described in spec.md §6: started
// with no arguments it runs the server in the foreground as the master
// process; its flags cover version printing, config dry-runs, and sending
// shutdown signals to an already-running master via its pidfile.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"forkserve"
	"forkserve/internal/config"
)

const version = "forkserve 0.1.0"

var configPath string

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "forkserve",
		Short: "prefork TCP server framework",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a forkserve.toml config file")

	root.Flags().BoolP("version", "v", false, "print version and exit")
	root.Flags().BoolP("test", "t", false, "parse configuration, print it, and exit")
	root.Flags().BoolP("print", "p", false, "alias of --test")
	root.Flags().StringP("signal", "s", "", "send a signal to a running master: stop, quit, reopen, reload")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println(version)
			return nil
		}
		if t, _ := cmd.Flags().GetBool("test"); t {
			return runTest()
		}
		if p, _ := cmd.Flags().GetBool("print"); p {
			return runTest()
		}
		if sig, _ := cmd.Flags().GetString("signal"); sig != "" {
			return runSignal(sig)
		}
		return runDaemon(cmd, args)
	}

	return root
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runTest() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Println(cfg.String())
	return nil
}

func runSignal(kind string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switch kind {
	case "stop":
		return forkserve.SendSignal(cfg.PidFile, forkserve.SignalStop)
	case "quit":
		return forkserve.SendSignal(cfg.PidFile, forkserve.SignalQuit)
	case "reopen", "reload":
		return fmt.Errorf("signal %q is not implemented", kind)
	default:
		return fmt.Errorf("unknown signal %q", kind)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	srv, err := forkserve.New(cfg)
	if err != nil {
		return err
	}
	return srv.Run()
}
