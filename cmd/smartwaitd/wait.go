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
	"gopkg.in/yaml.v3"
)

var (
	waitDaemonAddr string
	waitOutput     string
)

// waitCmd groups the client subcommands that talk to a running daemon.
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Manage wait jobs on a running daemon",
	Long:  `Register, inspect, update, and cancel wait jobs over the daemon's HTTP API.`,
}

var (
	registerTarget   string
	registerDisplay  string
	registerTimeout  int
	registerInterval float64
	registerTaskID   string
)

// waitRegisterCmd represents the wait register command
var waitRegisterCmd = &cobra.Command{
	Use:   "register <criteria>",
	Short: "Register a new wait job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string]any{
			"criteria": args[0],
		}
		if registerTarget != "" {
			body["target"] = registerTarget
		}
		if registerDisplay != "" {
			body["display"] = registerDisplay
		}
		if registerTimeout > 0 {
			body["timeout_s"] = registerTimeout
		}
		if registerInterval > 0 {
			body["poll_interval_s"] = registerInterval
		}
		if registerTaskID != "" {
			body["task_id"] = registerTaskID
		}

		result := apiCall(http.MethodPost, "/api/waits", body)
		printResult(result)
	},
}

// waitStatusCmd represents the wait status command
var waitStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show one or all wait jobs",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "/api/waits"
		if len(args) > 0 {
			path += "/" + url.PathEscape(args[0])
		}
		result := apiCall(http.MethodGet, path, nil)
		printResult(result)
	},
}

var (
	updateCriteria string
	updateTimeout  int
	updateNote     string
)

// waitUpdateCmd represents the wait update command
var waitUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update criteria, deadline, or notes of a watching job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string]any{}
		if updateCriteria != "" {
			body["criteria"] = updateCriteria
		}
		if updateTimeout > 0 {
			body["timeout_s"] = updateTimeout
		}
		if updateNote != "" {
			body["note"] = updateNote
		}
		if len(body) == 0 {
			fmt.Fprintln(os.Stderr, "nothing to update: pass --criteria, --timeout, or --note")
			os.Exit(1)
		}

		result := apiCall(http.MethodPatch, "/api/waits/"+url.PathEscape(args[0]), body)
		printResult(result)
	},
}

var cancelReason string

// waitCancelCmd represents the wait cancel command
var waitCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a watching job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "/api/waits/" + url.PathEscape(args[0])
		if cancelReason != "" {
			path += "?reason=" + url.QueryEscape(cancelReason)
		}
		result := apiCall(http.MethodDelete, path, nil)
		printResult(result)
	},
}

// apiCall performs one request against the daemon and decodes the JSON reply.
func apiCall(method, path string, body any) map[string]any {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode request: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, "http://"+waitDaemonAddr+path, reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build request: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon unreachable at %s: %v\n", waitDaemonAddr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read response: %v\n", err)
		os.Exit(1)
	}

	result := map[string]any{}
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Fprintf(os.Stderr, "unexpected response: %s\n", string(data))
		os.Exit(1)
	}

	if resp.StatusCode >= 400 {
		if msg, ok := result["error"].(string); ok {
			fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		} else {
			fmt.Fprintf(os.Stderr, "error: HTTP %d\n", resp.StatusCode)
		}
		os.Exit(1)
	}

	return result
}

// printResult renders the API reply in the requested output format.
func printResult(result map[string]any) {
	switch waitOutput {
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render yaml: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render json: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	}
}

func init() {
	waitCmd.PersistentFlags().StringVar(&waitDaemonAddr, "addr", "127.0.0.1:18790", "Daemon address")
	waitCmd.PersistentFlags().StringVarP(&waitOutput, "output", "o", "json", "Output format (json, yaml)")

	waitRegisterCmd.Flags().StringVarP(&registerTarget, "target", "t", "screen", "Target (screen, window:<id|name>, pty:<session-id>)")
	waitRegisterCmd.Flags().StringVarP(&registerDisplay, "display", "d", "", "Display to capture (default from daemon config)")
	waitRegisterCmd.Flags().IntVar(&registerTimeout, "timeout", 0, "Timeout in seconds (default from daemon config)")
	waitRegisterCmd.Flags().Float64Var(&registerInterval, "interval", 0, "Poll interval in seconds")
	waitRegisterCmd.Flags().StringVar(&registerTaskID, "task", "", "Task id for auto-reporting")

	waitUpdateCmd.Flags().StringVar(&updateCriteria, "criteria", "", "Replace the wait criteria")
	waitUpdateCmd.Flags().IntVar(&updateTimeout, "timeout", 0, "Reset the deadline to now + timeout seconds")
	waitUpdateCmd.Flags().StringVar(&updateNote, "note", "", "Append a note to the job history")

	waitCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Cancellation reason")

	waitCmd.AddCommand(waitRegisterCmd)
	waitCmd.AddCommand(waitStatusCmd)
	waitCmd.AddCommand(waitUpdateCmd)
	waitCmd.AddCommand(waitCancelCmd)
}
