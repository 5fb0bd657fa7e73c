// Command server runs the userspace half of the DDoS protection system: the
// UDP Hashcash challenge responder and the TCP service it gates, sharing a
// whitelist map with the kernel XDP filter (spec.md §4.6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/urfave/cli/v2"

	"github.com/biryukovmaxim/ddos-protection-task/internal/server"
	"github.com/biryukovmaxim/ddos-protection-task/internal/xdpmap"
)

var (
	ifaceFlag = &cli.StringFlag{
		Name:    "iface",
		Usage:   "network interface to attach the XDP filter to",
		EnvVars: []string{"DDOS_IFACE"},
		Value:   "lo",
	}
	tcpPortFlag = &cli.UintFlag{
		Name:    "tcp-port",
		Usage:   "protected TCP port; the XDP filter gates the port compiled into bpf/xdp_filter.c and does not read this value",
		EnvVars: []string{"DDOS_TCP_PORT"},
		Value:   5051,
	}
	tcpAddrFlag = &cli.StringFlag{
		Name:    "tcp-addr",
		Usage:   "address the TCP service listens on",
		EnvVars: []string{"DDOS_TCP_ADDR"},
		Value:   "127.0.0.1:5051",
	}
	udpAddrFlag = &cli.StringFlag{
		Name:    "udp-addr",
		Usage:   "address the UDP challenge responder listens on",
		EnvVars: []string{"DDOS_UDP_ADDR"},
		Value:   "127.0.0.1:1053",
	}
	difficultyFlag = &cli.UintFlag{
		Name:    "difficulty",
		Usage:   "required Hashcash leading zero bits",
		EnvVars: []string{"DDOS_DIFFICULTY"},
		Value:   20,
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "log level: trace, debug, info, warn, error",
		EnvVars: []string{"DDOS_LOG_LEVEL"},
		Value:   "info",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "ddos-server"
	app.Usage = "run the DDoS protection challenge/service server"
	app.Flags = []cli.Flag{ifaceFlag, tcpPortFlag, tcpAddrFlag, udpAddrFlag, difficultyFlag, logLevelFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	logger := log.New()
	lvl, err := log.LvlFromString(cliCtx.String(logLevelFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger.SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))

	whitelist, err := xdpmap.NewEbpfMap()
	if err != nil {
		return fmt.Errorf("create whitelist map: %w", err)
	}
	defer whitelist.Close()

	detach, err := attachXDP(cliCtx.String(ifaceFlag.Name), uint16(cliCtx.Uint(tcpPortFlag.Name)), whitelist, logger)
	if err != nil {
		return fmt.Errorf("attach xdp filter: %w", err)
	}
	defer detach()

	srv := server.New(server.Config{
		UDPAddr:    cliCtx.String(udpAddrFlag.Name),
		TCPAddr:    cliCtx.String(tcpAddrFlag.Name),
		Difficulty: uint32(cliCtx.Uint(difficultyFlag.Name)),
	}, whitelist, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx)
	if ctx.Err() != nil && err == ctx.Err() {
		logger.Info("server shut down")
		return nil
	}
	return err
}
