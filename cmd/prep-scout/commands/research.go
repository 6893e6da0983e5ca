package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/prep-scout/pkg/models"
)

// ResearchRunAction はリサーチジョブを1件、同期的に実行する
// サーバを立てずに動作確認するための運用コマンド
func ResearchRunAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	userID := uuid.Nil
	if raw := cmd.String("user-id"); raw != "" {
		userID, err = uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid user-id: %w", err)
		}
	}

	subject := models.Subject{
		Company: cmd.String("company"),
		Role:    cmd.String("role"),
		Region:  cmd.String("region"),
	}

	search, err := app.Coordinator.StartSearch(ctx, userID, subject)
	if err != nil {
		return err
	}

	fmt.Printf("search started: %s\n", search.ID)

	if err := app.Coordinator.Run(ctx, search); err != nil {
		return fmt.Errorf("research run failed: %w", err)
	}

	bundle, err := app.Bundles.GetBySearchID(ctx, search.ID)
	if err != nil {
		return fmt.Errorf("failed to load result bundle: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(bundle)
}

// ResearchStatusAction はジョブの進捗を表示する
func ResearchStatusAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	searchID, err := uuid.Parse(cmd.String("search-id"))
	if err != nil {
		return fmt.Errorf("invalid search-id: %w", err)
	}

	search, isStalled, canRetry, err := app.Coordinator.GetProgress(ctx, searchID)
	if err != nil {
		return err
	}

	fmt.Printf("search:     %s\n", search.ID)
	fmt.Printf("target:     %s — %s\n", search.Company, search.Role)
	fmt.Printf("status:     %s\n", search.Status)
	fmt.Printf("step:       %s (%d%%)\n", search.ProgressStep, search.ProgressPercentage)
	if search.ErrorMessage != nil {
		fmt.Printf("error:      %s\n", *search.ErrorMessage)
	}
	fmt.Printf("stalled:    %t\n", isStalled)
	fmt.Printf("can retry:  %t\n", canRetry)

	return nil
}
