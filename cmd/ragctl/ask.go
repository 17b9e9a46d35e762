package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type chatRequest struct {
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

func newAskCmd() *cobra.Command {
	var (
		api      string
		location string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send a chat message to a running API server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(chatRequest{Message: strings.Join(args, " "), Location: location})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				strings.TrimRight(api, "/")+"/api/chat", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := (&http.Client{Timeout: timeout}).Do(req)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer resp.Body.Close()

			var out chatResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("ask: decode response (status %d): %w", resp.StatusCode, err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("ask: %s (status %d)", out.Error, resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&api, "api", "http://localhost:5001", "API server base URL")
	cmd.Flags().StringVarP(&location, "location", "l", "", "location for seasonal advice (server default if empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "request timeout")
	return cmd
}
