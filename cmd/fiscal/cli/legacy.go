package cli

import (
	"context"
	"fmt"

	"github.com/llave-asesoria/fiscal/internal/legacy"
)

// MigrateLegacyCommand copies the legacy schema. Unmapped rows are reported and do not
// fail the command.
func (c *OpsCLI) MigrateLegacyCommand(ctx context.Context, dryRun bool) int {
	const command = "migrate-legacy"
	if c.Migrator == nil {
		return c.fail(command, fmt.Errorf("%w: set LEGACY_PG_DSN", errNotConfigured))
	}
	report, err := c.Migrator.Run(ctx, legacy.Options{DryRun: dryRun})
	if err != nil {
		return c.fail(command, err)
	}
	legacy.LogReport(c.logger(), report)
	if c.JSON {
		return c.printJSON(command, summarizeMigration(report))
	}
	renderMigration(c.stdout(), report)
	return 0
}
