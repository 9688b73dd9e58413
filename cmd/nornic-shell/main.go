// Package main provides the nornic-shell CLI entry point: a thin driver
// exerciser offering version, connectivity-verify, and an interactive
// Cypher REPL against any Bolt-speaking server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	nornicbolt "github.com/orneryd/nornic-bolt-driver"
	"github.com/orneryd/nornic-bolt-driver/pkg/auth"
	"github.com/orneryd/nornic-bolt-driver/pkg/bolt"
	"github.com/orneryd/nornic-bolt-driver/pkg/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nornic-shell",
		Short: "nornic-bolt-driver CLI - exercise the Bolt driver from a terminal",
		Long: `nornic-shell drives github.com/orneryd/nornic-bolt-driver directly,
without a query builder or ORM on top. Use it to verify connectivity to a
Bolt server or to run ad-hoc Cypher through an interactive shell.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nornic-shell v%s (%s)\n", version, commit)
		},
	})

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify connectivity to a Bolt server",
		RunE:  runVerify,
	}
	addConnectionFlags(verifyCmd)
	rootCmd.AddCommand(verifyCmd)

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive Cypher shell",
		RunE:  runShell,
	}
	addConnectionFlags(shellCmd)
	rootCmd.AddCommand(shellCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("uri", "bolt://localhost:7687", "Bolt target URI (bolt/bolt+s/bolt+ssc/neo4j/neo4j+s/neo4j+ssc)")
	cmd.Flags().String("user", "neo4j", "Basic auth principal")
	cmd.Flags().String("password", "", "Basic auth credentials")
	cmd.Flags().String("config", "", "Driver config file (YAML), values overridden by flags")
	cmd.Flags().Duration("connect-timeout", 5*time.Second, "TCP/TLS connect timeout")
}

func buildDriver(cmd *cobra.Command) (*nornicbolt.Driver, error) {
	uri, _ := cmd.Flags().GetString("uri")
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")
	configPath, _ := cmd.Flags().GetString("config")
	connectTimeout, _ := cmd.Flags().GetDuration("connect-timeout")

	opts := []config.Option{config.WithConnectTimeout(connectTimeout)}

	if configPath != "" {
		fileCfg, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		opts = append([]config.Option{withLoadedConfig(fileCfg)}, opts...)
	}

	token := auth.None()
	if password != "" {
		token = auth.Basic(user, password, "")
	}
	return nornicbolt.NewDriver(uri, token, opts...)
}

// withLoadedConfig folds every field of a file-loaded Config into the
// options chain, so later explicit flags (appended after it) still win.
func withLoadedConfig(loaded *config.Config) config.Option {
	return func(c *config.Config) { *c = *loaded }
}

func runVerify(cmd *cobra.Command, args []string) error {
	driver, err := buildDriver(cmd)
	if err != nil {
		return err
	}
	defer driver.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("connectivity check failed: %w", err)
	}
	fmt.Println("connectivity OK")
	return nil
}

func runShell(cmd *cobra.Command, args []string) error {
	driver, err := buildDriver(cmd)
	if err != nil {
		return err
	}
	defer driver.Close(context.Background())

	uri, _ := cmd.Flags().GetString("uri")
	fmt.Printf("connected to %s\n", uri)
	fmt.Println("type a Cypher statement, or 'exit' to quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("nornic> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := runStatement(driver, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// runStatement acquires one connection, runs cypher with an implicit
// auto-commit PULL_ALL, prints every record, and releases the connection.
// Sessions, explicit transactions, and typed results are out of scope for
// this driver core; this is the thinnest possible demonstration of it.
func runStatement(driver *nornicbolt.Driver, cypher string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, release, err := driver.AcquireConnection(ctx, bolt.AccessModeWrite)
	if err != nil {
		return err
	}
	defer release()

	var runErr error
	runHandle := &bolt.ResponseHandle{
		OnFailure: func(meta map[string]any) { runErr = fmt.Errorf("%v", meta["message"]) },
	}
	conn.Run(cypher, nil, bolt.RunOptions{}, runHandle)

	count := 0
	pullHandle := &bolt.ResponseHandle{
		OnRecords: func(values []any) {
			count++
			fmt.Println(values)
		},
		OnFailure: func(meta map[string]any) { runErr = fmt.Errorf("%v", meta["message"]) },
	}
	conn.PullAll(pullHandle)

	if err := conn.Sync(); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	fmt.Printf("%d row(s)\n", count)
	return nil
}
