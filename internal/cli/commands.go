// Package cli implements the interactive operator console: shard and
// connection tables rendered from actor snapshots, plus shard provisioning.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/patchwork-project/patchwork/internal/config"
	"github.com/patchwork-project/patchwork/internal/events"
	"github.com/patchwork-project/patchwork/internal/messenger"
	"github.com/patchwork-project/patchwork/internal/patchwork"
)

// MessengerSource serves point-in-time connection views.
type MessengerSource interface {
	Snapshot() []messenger.ConnectionInfo
}

// PatchworkSource serves shard snapshots and provisioning.
type PatchworkSource interface {
	Snapshot() patchwork.Snapshot
	AddMap(peer *patchwork.Peer)
}

// CLI provides the interactive operator console.
type CLI struct {
	cfg    *config.Config
	bus    *events.Bus
	msgr   MessengerSource
	router PatchworkSource
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, bus *events.Bus, msgr MessengerSource, router PatchworkSource) *CLI {
	return &CLI{
		cfg:    cfg,
		bus:    bus,
		msgr:   msgr,
		router: router,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nPatchwork CLI ready. Type 'help' for available commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("patchwork> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "shards":
		c.printShards()
	case "conns", "connections":
		c.printConnections()
	case "anchors":
		c.printAnchors()
	case "addshard":
		return c.cmdAddShard(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Patchwork...")
		c.bus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println()
	fmt.Println("  shards                    Show the shard list")
	fmt.Println("  anchors                   Show player anchors")
	fmt.Println("  conns                     Show registered connections")
	fmt.Println("  addshard [host port]      Add a local shard, or delegate one to a peer")
	fmt.Println("  quit                      Shutdown Patchwork")
	fmt.Println("  help                      Show this help message")
	fmt.Println()
}

// printShards displays the shard list in a formatted table.
func (c *CLI) printShards() {
	snap := c.router.Snapshot()

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Index", "Grid X", "Grid Z", "Entity IDs", "Host"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, s := range snap.Shards {
		host := "local"
		if s.Peer != "" {
			host = s.Peer
		}
		tw.Append([]string{
			strconv.Itoa(s.Index),
			fmt.Sprintf("%d", s.Position.X),
			fmt.Sprintf("%d", s.Position.Z),
			fmt.Sprintf("%d-%d", s.EntityIDStart, s.EntityIDEnd-1),
			host,
		})
	}

	tw.Render()
	fmt.Println()
}

// printAnchors displays the per-player anchor table.
func (c *CLI) printAnchors() {
	snap := c.router.Snapshot()

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Conn ID", "Shard", "Proxy"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, a := range snap.Anchors {
		proxy := "-"
		if a.ProxyID != "" {
			proxy = a.ProxyID
		}
		tw.Append([]string{
			a.ConnID.String(),
			strconv.Itoa(a.MapIndex),
			proxy,
		})
	}

	tw.Render()
	fmt.Println()
}

// printConnections displays the messenger's registered connections.
func (c *CLI) printConnections() {
	conns := c.msgr.Snapshot()

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Conn ID", "Subscription", "Translated"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, info := range conns {
		tw.Append([]string{
			info.ID.String(),
			info.Subscription,
			strconv.FormatBool(info.Translated),
		})
	}

	tw.Render()
	fmt.Printf("%d connection(s)\n\n", len(conns))
}

func (c *CLI) cmdAddShard(args []string) error {
	if len(args) == 0 {
		c.router.AddMap(nil)
		fmt.Println("Local shard added")
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: addshard [host port]")
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port: %s", args[1])
	}

	peer := &patchwork.Peer{Address: args[0], Port: uint16(port)}
	c.router.AddMap(peer)
	fmt.Printf("Shard delegated to %s\n", peer)
	return nil
}
