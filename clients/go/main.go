// guildctl - command line client for the bridge admin API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/SkyKings-Network/GuildBridgeBot/clients/go/guildbridge"
)

func main() {
	flags := pflag.NewFlagSet("guildctl", pflag.ExitOnError)
	baseURL := flags.String("url", envOr("GUILDBRIDGE_URL", "http://localhost:8080"), "bridge admin API URL")
	token := flags.String("token", os.Getenv("BRIDGE_API_TOKEN"), "bearer token")
	timeout := flags.Duration("timeout", 30*time.Second, "request timeout")
	flags.Usage = usage
	flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	client := guildbridge.NewClient(*baseURL, *token)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)
		if resp.Status != "healthy" {
			os.Exit(2)
		}

	case "call":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: guildctl call <endpoint> [key=value...]")
			os.Exit(1)
		}
		data, err := parseData(args[2:])
		exitOnError(err)
		res, err := client.Call(ctx, args[1], data)
		exitOnError(err)
		printJSON(res)
		if !res.Success {
			os.Exit(2)
		}

	case "remote":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: guildctl remote <endpoint> [key=value...]")
			os.Exit(1)
		}
		data, err := parseData(args[2:])
		exitOnError(err)
		raw, err := client.Remote(ctx, args[1], data)
		exitOnError(err)
		printJSON(raw)

	case "help":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		usage()
		os.Exit(1)
	}
}

// parseData turns key=value pairs into a JSON object. "true" and "false"
// become booleans.
func parseData(pairs []string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		if value == "true" || value == "false" {
			data[key] = value == "true"
			continue
		}
		data[key] = value
	}
	return data, nil
}

func usage() {
	fmt.Println(`guildctl - bridge admin client

Usage: guildctl [flags] <command> [args]

Commands:
  health                            Check bridge health
  call <endpoint> [key=value...]    Run a guild endpoint on the bridge
  remote <endpoint> [key=value...]  Forward a request to peer processes

Examples:
  guildctl call mute username=Steve duration=1h
  guildctl call chat message="hello guild" officer=true

Flags:
  --url      Bridge URL (env GUILDBRIDGE_URL, default http://localhost:8080)
  --token    Bearer token (env BRIDGE_API_TOKEN)
  --timeout  Request timeout (default 30s)`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
