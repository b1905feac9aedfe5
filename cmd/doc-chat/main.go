package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-chat/cmd/doc-chat/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "doc-chat",
		Usage: "セッション単位のドキュメントQAシステム",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "HTTPサーバを起動",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:  "addr",
						Usage: "リッスンアドレス（省略時は環境変数またはデフォルトの:8080）",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:      "ingest",
				Usage:     "ローカルファイルをセッションのインデックスに取り込む",
				ArgsUsage: "<file> [<file>...]",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:  "session",
						Usage: "既存セッションID（省略時は新規セッションを作成）",
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "ask",
				Usage: "セッションに対して質問を実行",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "session",
						Usage:    "セッションID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "message",
						Usage:    "質問文",
						Required: true,
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "session",
				Usage: "セッション管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "会話履歴を表示",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "session",
								Usage:    "セッションID",
								Required: true,
							},
						},
						Action: commands.SessionShowAction,
					},
					{
						Name:  "clear",
						Usage: "会話履歴を削除",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "session",
								Usage:    "セッションID",
								Required: true,
							},
						},
						Action: commands.SessionClearAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
