package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/discord-mcp/internal/config"
	"github.com/MrWong99/discord-mcp/internal/mcp/server"
	"github.com/MrWong99/discord-mcp/internal/observe"
)

// setupClient loads the configuration and builds the Discord stack for the
// one-shot subcommands.
func setupClient(g *globalFlags) (*config.Config, *stack, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel.Level()))
	st, err := newStack(cfg, observe.DefaultMetrics())
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func setupServer(g *globalFlags) (*server.Server, error) {
	cfg, st, err := setupClient(g)
	if err != nil {
		return nil, err
	}
	return newToolServer(cfg, st, observe.DefaultMetrics())
}

func newWhoamiCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the bot user the configured token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, st, err := setupClient(g)
			if err != nil {
				return err
			}
			u, err := st.api.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "id\t%s\n", u.ID)
			fmt.Fprintf(w, "username\t%s\n", u.Username)
			fmt.Fprintf(w, "bot\t%t\n", u.Bot)
			return w.Flush()
		},
	}
}

func newChannelsCmd(g *globalFlags) *cobra.Command {
	var serverRef string
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List the channels of a server the bot is in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, st, err := setupClient(g)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			guilds, err := st.api.CurrentUserGuilds(ctx, 200)
			if err != nil {
				return err
			}
			guildID := ""
			for _, gu := range guilds {
				if gu.ID == serverRef || strings.EqualFold(gu.Name, serverRef) {
					guildID = gu.ID
					break
				}
			}
			if guildID == "" {
				return fmt.Errorf("bot is not a member of a server named or with id %q", serverRef)
			}
			chans, err := st.api.GuildChannels(ctx, guildID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tNAME")
			for _, c := range chans {
				fmt.Fprintf(w, "%s\t%d\t%s\n", c.ID, c.Type, c.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&serverRef, "server", "", "server name or id")
	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func newToolsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server would publish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := setupServer(g)
			if err != nil {
				return err
			}
			for _, name := range srv.Tools() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newCallCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Invoke one tool and print its JSON result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := setupServer(g)
			if err != nil {
				return err
			}
			in := "{}"
			if len(args) == 2 {
				in = args[1]
			}
			if !gjson.Valid(in) {
				return fmt.Errorf("arguments are not valid JSON: %s", in)
			}
			out, isErr, err := srv.Call(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), gjson.Get(out, "@pretty").String())
			if isErr {
				return errors.New("tool reported an error")
			}
			return nil
		},
	}
}
