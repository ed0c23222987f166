package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pvarki/takbackend/internal/api/types"
)

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Manage client sequences",
}

var sequenceCreateCmd = &cobra.Command{
	Use:   "create [instance-id] [prefix]",
	Short: "Add a client sequence to an instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxClients, _ := cmd.Flags().GetInt("max")
		var out types.SequenceResponse
		err := newAPIClient(cmd).post("/api/v1/tak/sequences", types.SequenceCreateRequest{
			Server:     args[0],
			Prefix:     args[1],
			MaxClients: maxClients,
		}, &out)
		if err != nil {
			return err
		}
		if isJSON(cmd) {
			printJSON(out)
			return nil
		}
		fmt.Printf("Sequence %s created, hand out %s\n", out.ID, out.URL)
		return nil
	},
}

var sequenceListCmd = &cobra.Command{
	Use:   "list [instance-id]",
	Short: "List the client sequences of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out []types.SequenceResponse
		if err := newAPIClient(cmd).get("/api/v1/tak/instances/"+args[0]+"/sequences", &out); err != nil {
			return err
		}
		if isJSON(cmd) {
			printJSON(out)
			return nil
		}
		if len(out) == 0 {
			fmt.Println("No sequences found.")
			return nil
		}
		fmt.Printf("%-38s  %-12s  %-9s  %s\n", "SEQUENCE ID", "PREFIX", "USED", "URL")
		fmt.Println(strings.Repeat("─", 110))
		for _, s := range out {
			fmt.Printf("%-38s  %-12s  %-9s  %s\n", s.ID, s.Prefix, fmt.Sprintf("%d/%d", s.NextClientNo-1, s.MaxClients), s.URL)
		}
		return nil
	},
}

var sequenceDeleteCmd = &cobra.Command{
	Use:   "delete [sequence-id]",
	Short: "Remove a client sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(cmd).delete("/api/v1/tak/sequences/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("Sequence %s deleted.\n", args[0])
		return nil
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Allocate and fetch clients",
}

var clientNextCmd = &cobra.Command{
	Use:   "next [sequence-id]",
	Short: "Allocate the next client name from a sequence",
	Long:  "takctl client next <sequence-id> [--zip out.zip]\n\nEvery call uses up one name of the sequence.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		zipPath, _ := cmd.Flags().GetString("zip")
		c := newAPIClient(cmd)

		instructions, err := c.nextClient(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Client instructions: %s\n", instructions)
		if zipPath == "" {
			return nil
		}
		zip, err := c.download(instructions + "/zip")
		if err != nil {
			return err
		}
		if err := os.WriteFile(zipPath, zip, 0o600); err != nil {
			return err
		}
		fmt.Printf("Client package written to %s (%d bytes)\n", zipPath, len(zip))
		return nil
	},
}

func init() {
	sequenceCreateCmd.Flags().Int("max", 100, "Maximum number of clients")
	sequenceCmd.AddCommand(sequenceCreateCmd)
	sequenceCmd.AddCommand(sequenceListCmd)
	sequenceCmd.AddCommand(sequenceDeleteCmd)

	clientNextCmd.Flags().String("zip", "", "Also download the client package to this file")
	clientCmd.AddCommand(clientNextCmd)
}
