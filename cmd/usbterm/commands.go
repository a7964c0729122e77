package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/config"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/datalog"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/transport"
)

// connectFlags are the command-line overrides for a session.
type connectFlags struct {
	port     string
	baud     int
	url      string
	sim      bool
	logDir   string
	newline  string
	hex      bool
	chart    bool
	headless bool
}

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open a terminal session on the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f connectFlags
			f.port, _ = cmd.Flags().GetString("port")
			f.baud, _ = cmd.Flags().GetInt("baud")
			f.url, _ = cmd.Flags().GetString("url")
			f.sim, _ = cmd.Flags().GetBool("sim")
			f.logDir, _ = cmd.Flags().GetString("log-dir")
			f.newline, _ = cmd.Flags().GetString("newline")
			f.hex, _ = cmd.Flags().GetBool("hex")
			f.chart, _ = cmd.Flags().GetBool("chart")
			f.headless, _ = cmd.Flags().GetBool("headless")
			return executeConnect(configPath(cmd), logLevel(cmd), f)
		},
	}
	cmd.Flags().String("port", "", "serial port (default: serial.port, else the only USB port)")
	cmd.Flags().Int("baud", 0, "baud rate override (0 = use config)")
	cmd.Flags().String("url", "", "connect to a ws:// or wss:// serial bridge instead of a local port")
	cmd.Flags().Bool("sim", false, "connect to the built-in simulated device")
	cmd.Flags().String("log-dir", "", "session log directory override")
	cmd.Flags().String("newline", "", "newline appended to sent lines: crlf, lf, cr or none")
	cmd.Flags().Bool("hex", false, "start in hex mode")
	cmd.Flags().Bool("chart", false, "start with the chart panel open")
	cmd.Flags().Bool("headless", false, "no TUI: print received data to stdout")
	return cmd
}

func chartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart [session-file]",
		Short: "Chart a session log (default: the current or newest session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			follow, _ := cmd.Flags().GetBool("follow")
			printOnce, _ := cmd.Flags().GetBool("print")
			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")
			return executeChart(configPath(cmd), path, chartFlags{
				follow: follow,
				print:  printOnce,
				width:  width,
				height: height,
			}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("follow", false, "redraw as soon as the file changes")
	cmd.Flags().Bool("print", false, "print one chart to stdout and exit")
	cmd.Flags().Int("width", 80, "chart width for --print")
	cmd.Flags().Int("height", 16, "chart height for --print")
	return cmd
}

func logsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "List recorded session logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			sessions, err := datalog.ListSessions(cfg.Log.Dir)
			if err != nil {
				return err
			}
			var current string
			if c, err := datalog.ReadCurrent(cfg.Log.Dir); err == nil {
				current = c.Path
			}
			fmt.Fprint(cmd.OutOrStdout(), formatSessions(cfg.Log.Dir, sessions, current))
			return nil
		},
	}
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := transport.ListPorts()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatPorts(ports))
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default usbterm config and ignore the log directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			format := config.FormatTOML
			if y, _ := cmd.Flags().GetBool("yaml"); y {
				format = config.FormatYAML
			}
			created, err := config.ScaffoldProject(dir, format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatScaffoldResult(created))
			return nil
		},
	}
	cmd.Flags().Bool("yaml", false, "write usbterm.yaml instead of usbterm.toml")
	return cmd
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}

func logLevel(cmd *cobra.Command) string {
	l, _ := cmd.Flags().GetString("log-level")
	return l
}
