package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	timeout   int
	workDir   string
	sessionID string
	confirmed bool
)

func main() {
	root := &cobra.Command{
		Use:   "gateway-cli",
		Short: "CLI client for safe-command-gateway",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("GATEWAY_API_KEY"), "API key")

	// Execute command
	execCmd := &cobra.Command{
		Use:   "exec [command]",
		Short: "Classify and execute a shell command",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExec,
	}
	execCmd.Flags().IntVar(&timeout, "timeout", 0, "Execution timeout in seconds (0 = server default)")
	execCmd.Flags().StringVar(&workDir, "workdir", "", "Working directory for the command")
	execCmd.Flags().StringVar(&sessionID, "session", "", "Session identifier for threat tracking")
	execCmd.Flags().BoolVar(&confirmed, "confirmed", false, "Acknowledge a risky or unknown verdict")
	root.AddCommand(execCmd)

	// Classify only
	root.AddCommand(&cobra.Command{
		Use:   "classify [command]",
		Short: "Classify a command without executing it",
		Args:  cobra.ExactArgs(1),
		RunE:  runClassify,
	})

	// Threat aggregate
	root.AddCommand(&cobra.Command{
		Use:   "threats",
		Short: "List tracked unknown-command aggregates",
		RunE:  runThreats,
	})

	// Invocation audit log
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent invocations",
		RunE:  runList,
	})

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runExec(cmd *cobra.Command, args []string) error {
	var command string

	if len(args) > 0 {
		command = args[0]
	} else {
		// Read from stdin
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		command = string(data)
	}

	payload := map[string]any{
		"command":    command,
		"timeout":    timeout,
		"work_dir":   workDir,
		"session_id": sessionID,
		"confirmed":  confirmed,
	}

	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", serverURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 15 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	// Pretty print
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))

	// Exit with the command's exit code
	if exitCode, ok := result["exit_code"].(float64); ok && exitCode != 0 {
		os.Exit(int(exitCode))
	}

	return nil
}

func runClassify(_ *cobra.Command, args []string) error {
	return getJSON("/classify?command=" + url.QueryEscape(args[0]))
}

func runThreats(_ *cobra.Command, _ []string) error {
	return getJSON("/threats")
}

func runList(_ *cobra.Command, _ []string) error {
	return getJSON("/invocations")
}

func runHealth(_ *cobra.Command, _ []string) error {
	return getJSON("/health")
}

func getJSON(path string) error {
	req, err := http.NewRequest("GET", serverURL+path, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}
