package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	services "github.com/inference-gateway/chatledger/internal/services"
)

// ModelsCommand lists active models, or searches them by keyword
type ModelsCommand struct {
	catalog  *services.ModelCatalog
	pageSize int
}

func NewModelsCommand(d Deps) *ModelsCommand {
	return &ModelsCommand{catalog: d.Catalog, pageSize: d.Options.ModelPageSize}
}

func (c *ModelsCommand) GetName() string               { return "models" }
func (c *ModelsCommand) GetDescription() string        { return "List available models" }
func (c *ModelsCommand) GetUsage() string              { return "/models [page|keyword]" }
func (c *ModelsCommand) CanExecute(args []string) bool { return len(args) <= 1 }

func (c *ModelsCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	page := 1
	if len(req.Args) == 1 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil {
			return searchModels(ctx, c.catalog, req.Args[0])
		}
		page = n
	}

	listing, err := c.catalog.ListActivePage(ctx, page, c.pageSize)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available models (page %d/%d)\n====================\n", listing.Page, listing.TotalPages)
	if listing.Total == 0 {
		b.WriteString("No models available")
		return CommandResult{Output: b.String(), Success: true}, nil
	}
	for i, m := range listing.Models {
		writeModel(&b, c.catalog, m)
		if i < len(listing.Models)-1 {
			b.WriteString(separator + "\n")
		}
	}
	if listing.Page > 1 {
		fmt.Fprintf(&b, "\n◀ Previous: /models %d", listing.Page-1)
	}
	if listing.Page < listing.TotalPages {
		fmt.Fprintf(&b, "\n▶ Next: /models %d", listing.Page+1)
	}
	b.WriteString("\n\nUsage: /chat <model> <question>")
	return CommandResult{Output: b.String(), Success: true}, nil
}

// SearchModelCommand finds active models by keyword
type SearchModelCommand struct {
	catalog *services.ModelCatalog
}

func NewSearchModelCommand(d Deps) *SearchModelCommand {
	return &SearchModelCommand{catalog: d.Catalog}
}

func (c *SearchModelCommand) GetName() string               { return "searchmodel" }
func (c *SearchModelCommand) GetDescription() string        { return "Search models by keyword" }
func (c *SearchModelCommand) GetUsage() string              { return "/searchmodel <keyword>" }
func (c *SearchModelCommand) CanExecute(args []string) bool { return len(args) > 0 }

func (c *SearchModelCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	return searchModels(ctx, c.catalog, strings.Join(req.Args, " "))
}

func searchModels(ctx context.Context, catalog *services.ModelCatalog, keyword string) (CommandResult, error) {
	found, err := catalog.SearchByKeyword(ctx, keyword)
	if err != nil {
		return failure(ctx, catalog, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results: %q\n====================\n", keyword)
	if len(found) == 0 {
		b.WriteString("No matching models\nHint: use /models to see every available model")
		return CommandResult{Output: b.String(), Success: true}, nil
	}
	fmt.Fprintf(&b, "Found %d matching model(s):\n", len(found))
	for _, m := range found {
		writeModel(&b, catalog, m)
	}
	b.WriteString("\nUsage: /chat <model> <question>")
	return CommandResult{Output: b.String(), Success: true}, nil
}

// AddModelCommand registers a new model. Admin only.
type AddModelCommand struct {
	catalog *services.ModelCatalog
	ledger  *services.Ledger
}

func NewAddModelCommand(d Deps) *AddModelCommand {
	return &AddModelCommand{catalog: d.Catalog, ledger: d.Ledger}
}

func (c *AddModelCommand) GetName() string        { return "addmodel" }
func (c *AddModelCommand) GetDescription() string { return "Add a model (admin)" }
func (c *AddModelCommand) GetUsage() string {
	return "/addmodel <name> <promptRate> <completionRate> [description]"
}
func (c *AddModelCommand) CanExecute(args []string) bool { return len(args) >= 3 }

func (c *AddModelCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	if !c.ledger.IsAdmin(req.Caller) {
		return failure(ctx, c.catalog, domain.ErrPermissionDenied)
	}

	promptRate, err := money.Parse(req.Args[1])
	if err != nil {
		return failure(ctx, c.catalog, err)
	}
	completionRate, err := money.Parse(req.Args[2])
	if err != nil {
		return failure(ctx, c.catalog, err)
	}

	model, err := c.catalog.Create(ctx, req.Args[0], promptRate, completionRate, strings.Join(req.Args[3:], " "))
	if err != nil {
		return failure(ctx, c.catalog, err)
	}

	var b strings.Builder
	b.WriteString("Model added!\n==================\n")
	writeModel(&b, c.catalog, model)
	return CommandResult{Output: strings.TrimRight(b.String(), "\n"), Success: true}, nil
}

// ModelStatusCommand enables or disables a model. Admin only.
type ModelStatusCommand struct {
	catalog *services.ModelCatalog
	ledger  *services.Ledger
}

func NewModelStatusCommand(d Deps) *ModelStatusCommand {
	return &ModelStatusCommand{catalog: d.Catalog, ledger: d.Ledger}
}

func (c *ModelStatusCommand) GetName() string        { return "modelstatus" }
func (c *ModelStatusCommand) GetDescription() string { return "Enable or disable a model (admin)" }
func (c *ModelStatusCommand) GetUsage() string       { return "/modelstatus <name> active|disabled" }
func (c *ModelStatusCommand) CanExecute(args []string) bool {
	if len(args) != 2 {
		return false
	}
	_, err := domain.ParseModelStatus(args[1])
	return err == nil
}

func (c *ModelStatusCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	if !c.ledger.IsAdmin(req.Caller) {
		return failure(ctx, c.catalog, domain.ErrPermissionDenied)
	}
	status, _ := domain.ParseModelStatus(req.Args[1])

	model, err := c.catalog.SetStatus(ctx, req.Args[0], status)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}
	return CommandResult{
		Output:  fmt.Sprintf("Model status updated!\n==================\nName: %s\nStatus: %s", model.Name, model.Status),
		Success: true,
	}, nil
}
