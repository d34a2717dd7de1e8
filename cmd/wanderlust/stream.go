package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bakkerme/wanderlust-ai/internal/llm/chatcompletion"
)

func newStreamCmd(a *app) *cobra.Command {
	var flags callFlags
	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: "Stream a chat completion, printing deltas as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.streamer == nil {
				return fmt.Errorf("backend %q does not support streaming", a.env.LLM.Backend)
			}
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			body, err := a.streamer.Stream(cmd.Context(), flags.params(cmd, prompt))
			if err != nil {
				return a.fail("stream failed", err)
			}
			defer body.Close()

			out := cmd.OutOrStdout()
			events := chatcompletion.NewEventReader(body)
			for {
				chunk, err := events.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					fmt.Fprintln(out)
					return a.fail("stream interrupted", err)
				}
				if _, err := io.WriteString(out, chunk.Content); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}
