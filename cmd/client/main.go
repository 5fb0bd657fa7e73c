// Command client performs the UDP Hashcash handshake against a server and
// opens the TCP service it gates (spec.md §4.7).
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/urfave/cli/v2"

	"github.com/biryukovmaxim/ddos-protection-task/internal/client"
)

var (
	serverUDPFlag = &cli.StringFlag{
		Name:    "server-udp",
		Usage:   "challenge server's UDP address",
		EnvVars: []string{"DDOS_UDP_ADDR"},
		Value:   "127.0.0.1:1053",
	}
	serverTCPFlag = &cli.StringFlag{
		Name:    "server-tcp",
		Usage:   "protected TCP service address",
		EnvVars: []string{"DDOS_TCP_ADDR"},
		Value:   "127.0.0.1:5051",
	}
	clientDifficultyFlag = &cli.UintFlag{
		Name:    "difficulty",
		Usage:   "Hashcash leading zero bits to solve for",
		EnvVars: []string{"DDOS_DIFFICULTY"},
		Value:   20,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "ddos-client"
	app.Usage = "solve a server's Hashcash challenge and connect to its gated TCP service"
	app.Flags = []cli.Flag{serverUDPFlag, serverTCPFlag, clientDifficultyFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	logger := log.New()
	logger.SetHandler(log.LvlFilterHandler(log.LvlInfo, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))

	c := client.New(client.Config{
		ServerUDPAddr: cliCtx.String(serverUDPFlag.Name),
		ServerTCPAddr: cliCtx.String(serverTCPFlag.Name),
		Difficulty:    uint32(cliCtx.Uint(clientDifficultyFlag.Name)),
		ReadTimeout:   5 * time.Second,
	}, logger)

	conn, err := c.Connect()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}
