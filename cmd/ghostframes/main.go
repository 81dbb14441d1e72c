// Command ghostframes runs one Ghost Frame messenger node: an interactive
// operator prompt over a reliable, encrypted link-layer chat/file-transfer
// protocol (spec §6 "Operator CLI").
//
// Grounded on talek/frontend/main.go's flag-parsing + signal-handling
// shape, generalized here to an interactive REPL instead of a long-running
// server loop.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattcspeights/ghostframes/internal/config"
	"github.com/mattcspeights/ghostframes/internal/cryptobox"
	"github.com/mattcspeights/ghostframes/internal/messenger"
)

func main() {
	var configPath string
	var iface string
	var name string
	var debug bool
	var keyHex string

	flag.StringVar(&configPath, "config", "", "path to a ghostframes.toml config file (optional)")
	flag.StringVar(&iface, "iface", "", "monitor-mode wireless interface (overrides config)")
	flag.StringVar(&name, "name", "", "display name (overrides config; prompted if still empty)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging (overrides config)")
	flag.StringVar(&keyHex, "key", "", "hex-encoded 32-byte pre-shared AES key (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if iface != "" {
		cfg.Radio.Interface = iface
	}
	if name != "" {
		cfg.Node.Name = name
	}
	if debug {
		cfg.Node.Debug = true
	}
	if keyHex != "" {
		cfg.Crypto.PreSharedKeyHex = keyHex
	}

	reader := bufio.NewReader(os.Stdin)

	// Startup prompts: peer name and debug flag are read before anything
	// else (spec §6 "Startup prompts").
	if cfg.Node.Name == "" {
		cfg.Node.Name = prompt(reader, "name: ")
	}
	if !debug && configPath == "" {
		answer := strings.ToLower(strings.TrimSpace(prompt(reader, "debug? [y/N]: ")))
		cfg.Node.Debug = answer == "y" || answer == "yes"
	}

	key, err := parseKey(cfg.Crypto.PreSharedKeyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	m, err := messenger.New(messenger.Options{
		Name:      cfg.Node.Name,
		Interface: cfg.Radio.Interface,
		Key:       key,
		Debug:     cfg.Node.Debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	m.RegisterMessageListener(func(senderPeerID, body string) {
		fmt.Printf("\n%s: %s\n> ", senderPeerID, body)
	})

	m.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		m.Stop()
		os.Exit(0)
	}()

	runREPL(m, cfg.Node.Name, reader)
	m.Stop()
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func parseKey(hexKey string) (cryptobox.Key, error) {
	var key cryptobox.Key
	if hexKey == "" {
		return key, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return key, fmt.Errorf("invalid -key: %w", err)
	}
	if len(raw) != cryptobox.KeySize {
		return key, fmt.Errorf("-key must decode to %d bytes, got %d", cryptobox.KeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// runREPL implements the operator CLI's command loop (spec §6 "Operator
// CLI"): ls, msg <id> <text>, file <id> <path>, q.
func runREPL(m *messenger.Messenger, selfName string, reader *bufio.Reader) {
	fmt.Println("ghostframes ready. commands: ls | msg <id> <text> | file <id> <path> | q")
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		cmd := fields[0]

		switch cmd {
		case "ls":
			for _, p := range m.KnownPeers() {
				fmt.Printf("%s\t%s\tlast seen %.0fs ago\n", p.ID, p.MAC, time.Since(p.LastSeen).Seconds())
			}

		case "msg":
			if len(fields) < 2 {
				fmt.Println("usage: msg <id> <text>")
				continue
			}
			rest := strings.SplitN(fields[1], " ", 2)
			if len(rest) < 2 {
				fmt.Println("usage: msg <id> <text>")
				continue
			}
			peerID, text := rest[0], rest[1]
			if err := m.SendMessage(peerID, text); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("%s -> %s: %s\n", selfName, peerID, text)

		case "file":
			if len(fields) < 2 {
				fmt.Println("usage: file <id> <path>")
				continue
			}
			rest := strings.SplitN(fields[1], " ", 2)
			if len(rest) < 2 {
				fmt.Println("usage: file <id> <path>")
				continue
			}
			peerID, path := rest[0], rest[1]
			if err := m.SendFile(context.Background(), peerID, path); err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("sent %s to %s\n", path, peerID)

		case "q":
			return

		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}
