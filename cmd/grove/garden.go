package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovehq/grove/pkg/types"
)

var gardenCmd = &cobra.Command{
	Use:   "garden",
	Short: "Inspect and manage gardens",
	Long:  `Inspect and manage the gardens known to a running grove server.`,
}

var gardenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known gardens",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiGet(cmd, "/api/v1/gardens")
		if err != nil {
			return err
		}

		var gardens []*types.Garden
		if err := json.Unmarshal(body, &gardens); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tSTATUS\tNAMESPACES\tSYSTEMS")
		for _, g := range gardens {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				g.Name, g.ConnectionType, g.Status,
				strings.Join(g.Namespaces, ","), len(g.Systems))
		}
		return w.Flush()
	},
}

var gardenGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a single garden as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiGet(cmd, "/api/v1/gardens/"+args[0])
		if err != nil {
			return err
		}

		var out json.RawMessage
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		pretty, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(pretty))
		return nil
	},
}

var gardenSyncCmd = &cobra.Command{
	Use:   "sync [name]",
	Short: "Trigger a federation sync",
	Long: `Trigger a federation sync. With a garden name the sync is addressed
to that garden only; without one it fans out to every remote garden.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/sync"
		if len(args) == 1 {
			path = "/api/v1/gardens/" + args[0] + "/sync"
		}
		if _, err := apiPost(cmd, path, nil); err != nil {
			return err
		}
		fmt.Println("Sync requested")
		return nil
	},
}

var gardenRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a garden and its systems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiDelete(cmd, "/api/v1/gardens/"+args[0]); err != nil {
			return err
		}
		fmt.Printf("Garden %s removed\n", args[0])
		return nil
	},
}

func init() {
	gardenCmd.PersistentFlags().String("server", "http://localhost:2337", "Base URL of the grove server")

	gardenCmd.AddCommand(gardenListCmd)
	gardenCmd.AddCommand(gardenGetCmd)
	gardenCmd.AddCommand(gardenSyncCmd)
	gardenCmd.AddCommand(gardenRemoveCmd)
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func serverURL(cmd *cobra.Command, path string) string {
	base, _ := cmd.Flags().GetString("server")
	return strings.TrimRight(base, "/") + path
}

func apiGet(cmd *cobra.Command, path string) ([]byte, error) {
	resp, err := apiClient().Get(serverURL(cmd, path))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readResponse(resp)
}

func apiPost(cmd *cobra.Command, path string, body io.Reader) ([]byte, error) {
	resp, err := apiClient().Post(serverURL(cmd, path), "application/json", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readResponse(resp)
}

func apiDelete(cmd *cobra.Command, path string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL(cmd, path), nil)
	if err != nil {
		return err
	}
	resp, err := apiClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = readResponse(resp)
	return err
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return body, nil
}
