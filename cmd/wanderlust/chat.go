package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	var flags callFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send one chat completion and print the reply",
		Long:  "Send one chat completion and print the reply. The prompt is read from stdin when omitted or \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			res, err := a.client.Chat(cmd.Context(), flags.params(cmd, prompt))
			if err != nil {
				return a.fail("chat failed", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			_, err = fmt.Fprintln(out, res.Content)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
