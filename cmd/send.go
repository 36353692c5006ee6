package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
	httpapi "github.com/nextlevelbuilder/httpbridge/internal/http"
	"github.com/nextlevelbuilder/httpbridge/pkg/protocol"
)

func sendCmd() *cobra.Command {
	var (
		gatewayURL string
		req        httpapi.SendRequest
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to a conversation's callback URL through the running gateway",
		Example: `  httpbridge send --to conv-42 --text "deploy finished"
  httpbridge send --to conv-42 --text "see chart" --media https://example.com/chart.png --account ops`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if gatewayURL == "" {
				gatewayURL = localGatewayURL(cfg)
			}
			out, err := postSend(cmd.Context(), gatewayURL, cfg.Gateway.Token, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "gateway base URL (default: from gateway.host/port)")
	cmd.Flags().StringVar(&req.To, "to", "", "conversation id")
	cmd.Flags().StringVar(&req.Text, "text", "", "message text")
	cmd.Flags().StringVar(&req.AccountID, "account", "", "httpbridge account id")
	cmd.Flags().StringArrayVar(&req.MediaURLs, "media", nil, "media URL (repeatable)")
	cmd.Flags().StringVar(&req.SessionKey, "session-key", "", "session key reported to the callback")
	cmd.Flags().StringVar(&req.AgentID, "agent", "", "agent id reported to the callback")
	cmd.Flags().BoolVar(&req.Async, "async", false, "queue the send and return immediately")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func localGatewayURL(cfg *config.Config) string {
	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(cfg.Gateway.Port))
}

func postSend(ctx context.Context, baseURL, token string, req httpapi.SendRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+protocol.PathChannelsSend, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("contact gateway: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return strings.TrimSpace(string(data)), nil
}
