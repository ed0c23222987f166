package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pvarki/takbackend/internal/api/types"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage TAK instances",
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create [server-name]",
	Short: "Order a new TAK instance",
	Long:  "takctl instance create <server-name> --color '#ff0000' [--prefix FOX_ --max 100] [--email you@example.com]",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		grouping, _ := cmd.Flags().GetString("grouping")
		email, _ := cmd.Flags().GetString("email")
		callback, _ := cmd.Flags().GetString("callback-url")
		prefix, _ := cmd.Flags().GetString("prefix")
		maxClients, _ := cmd.Flags().GetInt("max")
		inputs, _ := cmd.Flags().GetString("tf-inputs")

		req := types.InstanceCreateRequest{Color: color, Grouping: grouping, ServerName: args[0]}
		if inputs != "" {
			if err := json.Unmarshal([]byte(inputs), &req.TFInputs); err != nil {
				return fmt.Errorf("--tf-inputs must be a JSON object: %w", err)
			}
		}
		if email != "" {
			req.ReadyEmail = &email
		}
		if callback != "" {
			req.ReadyCallbackURL = &callback
		}
		if prefix != "" {
			req.SequencePrefix = &prefix
			req.SequenceMax = &maxClients
		}

		var out types.InstanceResponse
		if err := newAPIClient(cmd).post("/api/v1/tak/instances", req, &out); err != nil {
			return err
		}
		if isJSON(cmd) {
			printJSON(out)
			return nil
		}
		fmt.Printf("Instance %s ordered for %q, the pipeline is running.\n", out.ID, out.ServerName)
		return nil
	},
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out []types.InstanceResponse
		if err := newAPIClient(cmd).get("/api/v1/tak/instances?page_size=100", &out); err != nil {
			return err
		}
		if isJSON(cmd) {
			printJSON(out)
			return nil
		}
		if len(out) == 0 {
			fmt.Println("No instances found.")
			return nil
		}
		fmt.Printf("%-38s  %-24s  %-9s  %s\n", "INSTANCE ID", "SERVER NAME", "COLOR", "STATUS")
		fmt.Println(strings.Repeat("─", 90))
		for _, i := range out {
			fmt.Printf("%-38s  %-24s  %-9s  %s\n", i.ID, i.ServerName, i.Color, status(i))
		}
		return nil
	},
}

var instanceGetCmd = &cobra.Command{
	Use:   "get [instance-id]",
	Short: "Show one instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out types.InstanceResponse
		if err := newAPIClient(cmd).get("/api/v1/tak/instances/"+args[0], &out); err != nil {
			return err
		}
		if isJSON(cmd) {
			printJSON(out)
			return nil
		}
		fmt.Println("Instance Details")
		fmt.Println("────────────────")
		fmt.Printf("ID:           %s\n", out.ID)
		fmt.Printf("Server name:  %s\n", out.ServerName)
		fmt.Printf("Color:        %s\n", out.Color)
		fmt.Printf("Grouping:     %s\n", out.Grouping)
		fmt.Printf("Status:       %s\n", status(out))
		if out.OwnerInstructions != "" {
			fmt.Printf("Owner link:   %s\n", out.OwnerInstructions)
			fmt.Printf("User link:    %s\n", out.EndUserInstructions)
		}
		return nil
	},
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete [instance-id]",
	Short: "Tear down an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(cmd).delete("/api/v1/tak/instances/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("Instance %s deleted.\n", args[0])
		return nil
	},
}

func init() {
	instanceCreateCmd.Flags().String("color", "", "Hex color of the instance")
	instanceCreateCmd.Flags().String("grouping", "", "Grouping label")
	instanceCreateCmd.Flags().String("email", "", "Email to notify once the server is ready")
	instanceCreateCmd.Flags().String("callback-url", "", "Webhook to call once the server is ready")
	instanceCreateCmd.Flags().String("prefix", "", "Create a client sequence with this prefix")
	instanceCreateCmd.Flags().Int("max", 100, "Maximum clients for --prefix")
	instanceCreateCmd.Flags().String("tf-inputs", "", "Extra pipeline inputs as a JSON object")
	_ = instanceCreateCmd.MarkFlagRequired("color")

	instanceCmd.AddCommand(instanceCreateCmd)
	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceGetCmd)
	instanceCmd.AddCommand(instanceDeleteCmd)
}

func status(i types.InstanceResponse) string {
	if i.TFCompleted != nil {
		return "completed " + i.TFCompleted.Local().Format("2006-01-02 15:04:05")
	}
	return "provisioning"
}

func isJSON(cmd *cobra.Command) bool {
	f, _ := cmd.Flags().GetString("output")
	return f == "json"
}
