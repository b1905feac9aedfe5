package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	chatdomain "github.com/jinford/doc-chat/internal/module/chat/domain"
)

// AskAction は既存セッションに対して質問を実行するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sessionID := cmd.String("session")
	message := cmd.String("message")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	chat := appCtx.Container.ChatService

	if err := chat.LoadRetriever(ctx, sessionID); err != nil {
		if errors.Is(err, chatdomain.ErrSessionNotFound) {
			return fmt.Errorf("セッションが見つかりません: %s (先にingestを実行してください)", sessionID)
		}
		return err
	}

	answer, err := chat.Invoke(ctx, sessionID, message)
	if err != nil {
		var genErr *chatdomain.GenerationError
		if errors.As(err, &genErr) {
			return fmt.Errorf("回答の生成に失敗 (%s): %w", genErr.Stage, genErr.Err)
		}
		return err
	}

	fmt.Println(answer)
	return nil
}
