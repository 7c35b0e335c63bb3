package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/xsession/internal/api"
	"github.com/benaskins/xsession/internal/notify"
	"github.com/benaskins/xsession/internal/vault"
)

func apiClient(timeout time.Duration) *http.Client {
	socketPath := cfg.Socket
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

func apiGet(path string, v any) error {
	resp, err := apiClient(10 * time.Second).Get("http://xsession" + path)
	if err != nil {
		return fmt.Errorf("connecting to bridge: %w (is xsession serve running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the bridge is running and which account is active",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var health api.HealthResponse
		if err := apiGet("/v1/health", &health); err != nil {
			return err
		}
		var accounts []vault.AccountInfo
		if err := apiGet("/v1/accounts", &accounts); err != nil {
			return err
		}
		var active api.ActiveResponse
		if err := apiGet("/v1/accounts/active", &active); err != nil {
			return err
		}

		name := "-"
		if active.Active {
			name = active.Username
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Bridge:\t%s\n", health.Status)
		fmt.Fprintf(w, "Socket:\t%s\n", cfg.Socket)
		fmt.Fprintf(w, "Accounts:\t%d\n", len(accounts))
		fmt.Fprintf(w, "Active:\t%s\n", name)
		fmt.Fprintf(w, "Event streams:\t%d\n", health.Subscribers)
		return w.Flush()
	},
}

// events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print account change events from the bridge until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		req, err := http.NewRequestWithContext(ctx, "GET", "http://xsession/v1/events", nil)
		if err != nil {
			return err
		}
		resp, err := apiClient(0).Do(req)
		if err != nil {
			return fmt.Errorf("connecting to bridge: %w (is xsession serve running?)", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		err = readEvents(resp.Body, func(e notify.Event) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s  %s\n",
				e.At.Local().Format(time.TimeOnly), e.Kind, e.Username)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// readEvents decodes a server-sent event stream, calling fn for each event.
func readEvents(r io.Reader, fn func(notify.Event)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var e notify.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		fn(e)
	}
	return sc.Err()
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
}
