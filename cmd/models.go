package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	container "github.com/inference-gateway/chatledger/internal/container"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	cobra "github.com/spf13/cobra"
)

// ModelInfo is the JSON form of a catalog entry
type ModelInfo struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	PromptRate     string `json:"prompt_rate"`
	CompletionRate string `json:"completion_rate"`
	Multiplier     string `json:"multiplier"`
	EstimatedCost  string `json:"estimated_cost"`
	Description    string `json:"description,omitempty"`
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage billable models",
	Long: `Manage the model catalog. Rates are credits per 1000 tokens. Model names
must use the gateway's provider/model form, e.g. openai/gpt-4o.`,
}

var listModelsCmd = &cobra.Command{
	Use:   "list",
	Short: "List models with their prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		format, _ := cmd.Flags().GetString("format")
		return withContainer(func(c *container.ServiceContainer) error {
			return listModels(cmd, c, all, format)
		})
	},
}

var addModelCmd = &cobra.Command{
	Use:   "add <name> <prompt-rate> <completion-rate> [description...]",
	Short: "Add a model to the catalog",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *container.ServiceContainer) error {
			promptRate, err := money.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid prompt rate: %w", err)
			}
			completionRate, err := money.Parse(args[2])
			if err != nil {
				return fmt.Errorf("invalid completion rate: %w", err)
			}
			model, err := c.GetCatalog().Create(context.Background(), args[0], promptRate, completionRate, strings.Join(args[3:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added model %s (estimated cost per question %s CA)\n",
				model.Name, money.Format(c.GetCatalog().EstimateCost(model)))
			return nil
		})
	},
}

var modelStatusCmd = &cobra.Command{
	Use:   "status <name> <active|disabled>",
	Short: "Enable or disable a model",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := domain.ParseModelStatus(args[1])
		if err != nil {
			return err
		}
		return withContainer(func(c *container.ServiceContainer) error {
			model, err := c.GetCatalog().SetStatus(context.Background(), args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s is now %s\n", model.Name, model.Status)
			return nil
		})
	},
}

func init() {
	listModelsCmd.Flags().Bool("all", false, "include disabled models")
	listModelsCmd.Flags().StringP("format", "f", "text", "output format (text, json)")

	modelsCmd.AddCommand(listModelsCmd)
	modelsCmd.AddCommand(addModelCmd)
	modelsCmd.AddCommand(modelStatusCmd)
	rootCmd.AddCommand(modelsCmd)
}

func listModels(cmd *cobra.Command, c *container.ServiceContainer, all bool, format string) error {
	ctx := context.Background()
	catalog := c.GetCatalog()

	list, err := catalog.ListActive(ctx)
	if all {
		list, err = catalog.ListAll(ctx)
	}
	if err != nil {
		return err
	}

	infos := make([]ModelInfo, len(list))
	for i, m := range list {
		infos[i] = ModelInfo{
			Name:           m.Name,
			Status:         string(m.Status),
			PromptRate:     money.Format(m.PromptRate),
			CompletionRate: money.Format(m.CompletionRate),
			Multiplier:     m.Multiplier.String(),
			EstimatedCost:  money.Format(catalog.EstimateCost(m)),
			Description:    m.Description,
		}
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "text", "":
		if len(infos) == 0 {
			fmt.Fprintln(out, "No models found")
			return nil
		}
		for _, m := range infos {
			fmt.Fprintf(out, "%s [%s]\n  prompt %s / completion %s per 1K tokens, x%s, estimate %s CA\n",
				m.Name, m.Status, m.PromptRate, m.CompletionRate, m.Multiplier, m.EstimatedCost)
			if m.Description != "" {
				fmt.Fprintf(out, "  %s\n", m.Description)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
