package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/roamsync/core/roaming"
)

var (
	flushAddr     string
	flushToken    string
	flushKind     string
	flushProvider string
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Trigger a manual flush through the admin API",
	RunE:  runFlush,
}

func init() {
	flushCmd.Flags().StringVar(&flushAddr, "addr", "http://localhost:8080", "admin API base URL")
	flushCmd.Flags().StringVar(&flushToken, "token", "", "admin API bearer token")
	flushCmd.Flags().StringVarP(&flushKind, "kind", "k", "service", "flush kind: service or status")
	flushCmd.Flags().StringVarP(&flushProvider, "provider", "p", "", "provider id")
	_ = flushCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(flushCmd)
}

func runFlush(cmd *cobra.Command, args []string) error {
	kind := roaming.FlushKind(flushKind)
	if kind != roaming.FlushKindService && kind != roaming.FlushKindStatus {
		return fmt.Errorf("unknown flush kind %q", flushKind)
	}
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()
	rep, err := requestFlush(ctx, http.DefaultClient, flushAddr, flushToken, flushProvider, kind)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if rep.Failed() {
		return fmt.Errorf("flush %s of %s: %s", kind, flushProvider, rep.Result())
	}
	return nil
}

func requestFlush(ctx context.Context, c *http.Client, base, token, provider string, kind roaming.FlushKind) (roaming.FlushReport, error) {
	var rep roaming.FlushReport
	target := strings.TrimSuffix(base, "/") + "/providers/" + url.PathEscape(provider) + "/flush/" + string(kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return rep, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.Do(req)
	if err != nil {
		return rep, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(body, &rep); err != nil {
		return rep, fmt.Errorf("admin api %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return rep, nil
}
