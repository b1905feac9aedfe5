package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// SessionShowAction はセッションの会話履歴を表示するコマンドのアクション
func SessionShowAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sessionID := cmd.String("session")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	found, err := appCtx.Container.Sessions.Find(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("履歴の取得に失敗: %w", err)
	}
	if found.IsAbsent() {
		return fmt.Errorf("セッションが見つかりません: %s", sessionID)
	}

	history := found.MustGet()
	if len(history) == 0 {
		fmt.Println("履歴はありません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Role", "Content")

	for i, msg := range history {
		table.Append(
			fmt.Sprintf("%d", i+1),
			string(msg.Role),
			truncateString(msg.Content, 80),
		)
	}

	table.Render()
	return nil
}

// SessionClearAction はセッションの会話履歴を削除するコマンドのアクション
func SessionClearAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sessionID := cmd.String("session")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Sessions.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("履歴の削除に失敗: %w", err)
	}

	fmt.Printf("セッション %s の履歴を削除しました\n", sessionID)
	return nil
}

// truncateString は表示用に文字列を切り詰めます(rune単位、マルチバイト文字を壊さない)
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
