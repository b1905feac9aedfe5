package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	httpiface "github.com/jinford/doc-chat/internal/interface/http"
)

// ServeAction はHTTPサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	addr := cmd.String("addr")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if addr == "" {
		addr = appCtx.Config.HTTPAddr
	}

	server := httpiface.NewServer(
		addr,
		appCtx.Container.IndexService,
		appCtx.Container.ChatService,
		appCtx.Container.Sessions,
		appCtx.Container.Loader,
		appCtx.Logger(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバの停止に失敗: %w", err)
	}

	appCtx.Logger().Info("HTTP server stopped")
	return nil
}
