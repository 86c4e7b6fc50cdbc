package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/internal/scene"
)

// chatter is the slice of the orchestrator the terminal loop needs.
type chatter interface {
	Chat(ctx context.Context, req scene.ChatRequest) (*scene.ChatResponse, error)
}

type chatOptions struct {
	player  string
	npc     string
	sceneID string
	session string
}

func newChatCmd(g *globals) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a scene from the terminal",
		Long: "Starts an interactive dialogue with a scene. Each line you type is sent as the player's utterance.\n" +
			"Type /new to start a fresh session or /quit to leave.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer shutdown(a)
			return chatLoop(ctx, a.Orchestrator(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.player, "player", "player", "player id")
	cmd.Flags().StringVar(&opts.npc, "npc", "", "NPC the player addresses")
	cmd.Flags().StringVar(&opts.sceneID, "scene", "", "scene id")
	cmd.Flags().StringVar(&opts.session, "session", "", "resume an existing session id")
	cmd.MarkFlagsOneRequired("scene", "npc")
	return cmd
}

// chatLoop reads utterances from in until EOF or /quit. Generation errors
// are printed and the loop continues.
func chatLoop(ctx context.Context, c chatter, opts chatOptions, in io.Reader, out io.Writer) error {
	session := opts.session
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			session = ""
			fmt.Fprintln(out, "(new session)")
			fmt.Fprint(out, "> ")
			continue
		}

		resp, err := c.Chat(ctx, scene.ChatRequest{
			PlayerID:  opts.player,
			NPCID:     opts.npc,
			SceneID:   opts.sceneID,
			Sentence:  line,
			SessionID: session,
		})
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			fmt.Fprintf(out, "error: %v\n", err)
		default:
			session = resp.SessionID
			fmt.Fprintln(out, resp.Sentence)
		}
		fmt.Fprint(out, "> ")
	}
	return sc.Err()
}
