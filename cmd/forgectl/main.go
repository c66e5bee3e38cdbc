// Package main implements the forgectl CLI for manual operations
// against the forged HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the forged HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "CLI for forged HTTP server operations",
	Long: `forgectl is a command-line interface for interacting with the forged daemon.
It submits ask/edit jobs, polls their status, and manages workspaces.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9190", "forged server URL")
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(workspaceCmd)

	submitCmd.Flags().StringVar(&submitWorkspace, "workspace", "", "workspace id (required)")
	submitCmd.Flags().StringVar(&submitContext, "context", "", "additional context for the question")
	submitCmd.Flags().StringVar(&submitBranch, "branch", "", "source branch")
	submitCmd.Flags().BoolVar(&submitEdit, "edit", false, "allow the CLI to edit files")
	submitCmd.Flags().BoolVar(&submitMR, "create-mr", false, "open a merge request after an edit")
	submitCmd.Flags().StringVar(&submitTask, "task", "", "task id, used as the branch name for edits")
	_ = submitCmd.MarkFlagRequired("workspace")

	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceRemoveCmd)
	workspaceCreateCmd.Flags().StringVar(&createTargetBranch, "target-branch", "", "target branch (default: remote HEAD)")
}

var (
	submitWorkspace    string
	submitContext      string
	submitBranch       string
	submitEdit         bool
	submitMR           bool
	submitTask         string
	createTargetBranch string
)

// submitCmd submits an ask or edit job
var submitCmd = &cobra.Command{
	Use:   "submit <question>",
	Short: "Submit an ask or edit job",
	Long: `Submit a natural-language question or edit request against a workspace.

Examples:
  # Ask about a repository
  forgectl submit --workspace ab12cd34ef56 "what does the queue package do?"

  # Request an edit with a merge request
  forgectl submit --workspace ab12cd34ef56 --edit --create-mr --task fix-timeout "fix the idle timeout bug"`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

// statusCmd polls a job
var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status and result of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check forged server health",
	RunE:  runHealth,
}

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <repo-url>",
	Short: "Clone a repository into a new workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceCreate,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE:  runWorkspaceList,
}

var workspaceRemoveCmd = &cobra.Command{
	Use:   "rm <workspace-id>",
	Short: "Remove a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceRemove,
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func postJSON(path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("connecting to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

func getJSON(path string) ([]byte, int, error) {
	resp, err := httpClient().Get(serverURL + path)
	if err != nil {
		return nil, 0, fmt.Errorf("connecting to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

func printJSON(data []byte) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(out.String())
}

func runSubmit(_ *cobra.Command, args []string) error {
	payload := map[string]any{
		"workspaceId": submitWorkspace,
		"question":    args[0],
	}
	if submitContext != "" {
		payload["context"] = submitContext
	}
	if submitBranch != "" {
		payload["sourceBranch"] = submitBranch
	}
	if submitEdit {
		payload["editRequest"] = true
	}
	if submitMR {
		payload["createMR"] = true
	}
	if submitTask != "" {
		payload["taskId"] = submitTask
	}

	data, code, err := postJSON("/api/v1/jobs", payload)
	if err != nil {
		return err
	}
	if code != http.StatusAccepted {
		return fmt.Errorf("server returned %d: %s", code, data)
	}
	printJSON(data)
	return nil
}

func runStatus(_ *cobra.Command, args []string) error {
	data, code, err := getJSON("/api/v1/jobs/" + args[0])
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", code, data)
	}
	printJSON(data)
	return nil
}

func runHealth(*cobra.Command, []string) error {
	data, code, err := getJSON("/health")
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("server unhealthy (%d): %s", code, data)
	}
	printJSON(data)
	return nil
}

func runWorkspaceCreate(_ *cobra.Command, args []string) error {
	payload := map[string]any{"repoUrl": args[0]}
	if createTargetBranch != "" {
		payload["targetBranch"] = createTargetBranch
	}
	data, code, err := postJSON("/api/v1/workspaces", payload)
	if err != nil {
		return err
	}
	if code != http.StatusCreated {
		return fmt.Errorf("server returned %d: %s", code, data)
	}
	printJSON(data)
	return nil
}

func runWorkspaceList(*cobra.Command, []string) error {
	data, code, err := getJSON("/api/v1/workspaces")
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", code, data)
	}
	printJSON(data)
	return nil
}

func runWorkspaceRemove(_ *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/workspaces/"+args[0], nil)
	if err != nil {
		return err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, data)
	}
	printJSON(data)
	return nil
}
