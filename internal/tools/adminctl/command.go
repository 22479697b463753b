package adminctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gamelog-backend/internal/tools/ui"
)

type options struct {
	baseURL     string
	accessToken string
	ci          bool
}

// NewRootCommand builds the operator CLI. Every subcommand talks to the
// running server's admin API with a bearer token belonging to an admin user.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "adminctl", Short: "Operate the gamelog auth backend"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.accessToken, "token", os.Getenv("ADMIN_ACCESS_TOKEN"), "admin access token")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive plain output")
	cmd.AddCommand(newUnlockCommand(opts))
	cmd.AddCommand(newRevokeCommand(opts))
	cmd.AddCommand(newCleanupCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	return cmd
}

func newUnlockCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id-or-email>",
		Short: "Clear the lockout counter and lock window for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "unlock "+args[0], func(ctx context.Context) ([]string, error) {
				data, err := call(ctx, opts, http.MethodPost, "/api/v1/admin/accounts/unlock", map[string]any{"identifier": args[0]})
				if err != nil {
					return nil, err
				}
				return []string{"account unlocked", compact(data)}, nil
			})
		},
	}
}

func newRevokeCommand(opts *options) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Revoke all live credentials for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var userID uint
			if _, err := fmt.Sscanf(args[0], "%d", &userID); err != nil || userID == 0 {
				return fmt.Errorf("user-id must be a positive integer, got %q", args[0])
			}
			return run(opts, "revoke tokens for user "+args[0], func(ctx context.Context) ([]string, error) {
				data, err := call(ctx, opts, http.MethodPost, "/api/v1/admin/tokens/revoke-all", map[string]any{
					"user_id": userID,
					"reason":  reason,
				})
				if err != nil {
					return nil, err
				}
				return []string{"tokens revoked", compact(data)}, nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "operator revoke", "audit reason recorded with the revocation")
	return cmd
}

func newCleanupCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired entries from the revocation ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "ledger cleanup", func(ctx context.Context) ([]string, error) {
				data, err := call(ctx, opts, http.MethodPost, "/api/v1/admin/tokens/cleanup", nil)
				if err != nil {
					return nil, err
				}
				return []string{compact(data)}, nil
			})
		},
	}
}

func newStatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show revocation ledger and lockout policy stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "auth stats", func(ctx context.Context) ([]string, error) {
				data, err := call(ctx, opts, http.MethodGet, "/api/v1/admin/stats", nil)
				if err != nil {
					return nil, err
				}
				return []string{compact(data)}, nil
			})
		},
	}
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) error {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		details, err := fn(ctx)
		for _, d := range details {
			fmt.Println(d)
		}
		return err
	}
	details, err := ui.Run(title, fn)
	for _, d := range details {
		fmt.Println(d)
	}
	return err
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(ctx context.Context, opts *options, method, path string, body any) (json.RawMessage, error) {
	base, err := url.Parse(opts.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, base.ResolveReference(rel).String(), payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.accessToken)
	}

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return env.Data, nil
}

func compact(data json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}
