package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/netcore/internal/auth"
	"github.com/danmuck/netcore/internal/protocol/value"
	"github.com/danmuck/netcore/internal/transport"
	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	var configPath, addr, network, token string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "call <command> [args...]",
		Short: "Send one command and print the reply",
		Long: `call dials the server, sends {command, args, id} and prints the
result. Arguments are sent as a string array.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSessionConfig(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cl, err := transport.Dial(ctx, network, addr, cfg, nil)
			if err != nil {
				return err
			}
			defer cl.Close()
			if token != "" {
				payload, err := auth.TokenPayload(token)
				if err != nil {
					return err
				}
				if err := cl.Send(ctx, payload); err != nil {
					return err
				}
			}

			callArgs := make([]value.Value, 0, len(args)-1)
			for _, a := range args[1:] {
				callArgs = append(callArgs, value.String(a))
			}
			result, err := cl.Call(ctx, args[0], callArgs...)
			if err != nil {
				return err
			}
			return printResult(cmd, result, asJSON)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.toml (session keys only)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:9400", "server address")
	cmd.Flags().StringVarP(&network, "network", "n", transport.TCP, "tcp or udp")
	cmd.Flags().StringVar(&token, "token", "", "auth token sent before the command")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, v value.Value, asJSON bool) error {
	out := cmd.OutOrStdout()
	if !asJSON {
		_, err := fmt.Fprintln(out, strings.TrimSpace(v.String()))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v.Interface())
}
