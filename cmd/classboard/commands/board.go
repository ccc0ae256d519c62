package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/classboard/core/internal/adapters/remote"
	"github.com/classboard/core/internal/application/services"
	"github.com/classboard/core/internal/domain/entities"
	"github.com/classboard/core/internal/infrastructure/config"
	"github.com/classboard/core/internal/infrastructure/logger"
	"github.com/classboard/core/internal/infrastructure/metrics"
	"github.com/classboard/core/internal/ports"
)

// NewBoardCommand groups the client commands that sync with a gateway
func NewBoardCommand() *cobra.Command {
	boardCmd := &cobra.Command{
		Use:   "board",
		Short: "Work with boards on a classboard gateway",
		Long:  "Client commands. They talk to client.gateway_url as the subject of client.token.",
	}

	boardCmd.AddCommand(newBoardListCommand())
	boardCmd.AddCommand(newBoardCreateCommand())
	boardCmd.AddCommand(newBoardWatchCommand())
	boardCmd.AddCommand(newBoardAddNoteCommand())
	return boardCmd
}

// clientRuntime is what every board command needs to reach the gateway
type clientRuntime struct {
	cfg     *config.Config
	logger  *logger.Logger
	client  *remote.Client
	storage *remote.Storage
	userID  string
}

func newClientRuntime() (*clientRuntime, error) {
	cfg, appLogger, err := loadRuntime()
	if err != nil {
		return nil, err
	}
	userID, err := services.TokenSubject(cfg.Client.Token)
	if err != nil {
		return nil, fmt.Errorf("client.token: %w", err)
	}

	client, err := remote.NewClient(cfg.Client, appLogger)
	if err != nil {
		return nil, err
	}
	return &clientRuntime{
		cfg:     cfg,
		logger:  appLogger,
		client:  client,
		storage: remote.NewStorage(client),
		userID:  userID,
	}, nil
}

// session opens a board session; watch attaches the realtime feed
func (r *clientRuntime) session(ctx context.Context, boardID string, watch bool) (*services.BoardSession, error) {
	var feed ports.ChangeFeed
	if watch {
		feed = remote.NewFeed(r.client, r.cfg.Realtime)
	}
	session := services.NewBoardSession(r.storage, feed, r.userID, services.NewSessionConfig(r.cfg), r.logger, metrics.New("classboard_client"))
	if err := session.Open(ctx, boardID); err != nil {
		return nil, err
	}
	return session, nil
}

func newBoardListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List boards owned by the caller, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newClientRuntime()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			boards := services.NewBoardStore(rt.storage.Boards(), nil, rt.logger, nil)
			if err := boards.Fetch(cmd.Context(), rt.userID); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range boards.Snapshot() {
				fmt.Fprintf(out, "%s\t%s\t%s\tlocked=%t public=%t\n", b.ID, b.Title, b.ViewMode, b.IsLocked, b.IsPublic)
			}
			return nil
		},
	}
}

func newBoardCreateCommand() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a board owned by the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newClientRuntime()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			view, _ := cmd.Flags().GetString("view")
			background, _ := cmd.Flags().GetString("background")

			boards := services.NewBoardStore(rt.storage.Boards(), nil, rt.logger, nil)
			if err := boards.Fetch(cmd.Context(), rt.userID); err != nil {
				return err
			}
			board, err := boards.Create(cmd.Context(), rt.userID, ports.CreateBoardRequest{
				Title:           args[0],
				BackgroundColor: background,
				ViewMode:        entities.ViewMode(view),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), board.ID)
			return nil
		},
	}

	createCmd.Flags().String("view", string(entities.ViewModeCanvas), "View mode: canvas, kanban or grid")
	createCmd.Flags().String("background", "", "Background colour")
	return createCmd
}

func newBoardWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <board-id>",
		Short: "Print the board in its view mode, then every change other clients make",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newClientRuntime()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := rt.session(ctx, args[0], true)
			if err != nil {
				return err
			}
			defer session.Close()

			out := cmd.OutOrStdout()
			if err := printView(out, session); err != nil {
				return err
			}

			session.OnRemoteChange(func(change ports.Change) {
				line := fmt.Sprintf("%s %s %s", change.Event, change.Table, change.ID)
				if change.Table == ports.TablePosts {
					if post, ok := session.Posts().Get(change.ID); ok {
						line += fmt.Sprintf(" by %s: %q", session.AuthorName(post.AuthorID), post.Content)
					}
				}
				fmt.Fprintln(out, line)
			})

			<-ctx.Done()
			return nil
		},
	}
}

func newBoardAddNoteCommand() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add-note <board-id> <content>",
		Short: "Add a sticky note to a board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newClientRuntime()
			if err != nil {
				return err
			}
			defer rt.logger.Sync()

			session, err := rt.session(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}

			opts := ports.AddPostOptions{Content: args[1]}
			opts.Color, _ = cmd.Flags().GetString("color")
			if column, _ := cmd.Flags().GetString("column"); column != "" {
				opts.ColumnID = &column
			}

			post, err := session.AddPost(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), post.ID)
			return nil
		},
	}

	addCmd.Flags().String("color", "", "Note colour; defaults to yellow")
	addCmd.Flags().String("column", "", "Kanban column id")
	return addCmd
}

// printView writes the board's current view as indented JSON
func printView(out io.Writer, session *services.BoardSession) error {
	board, _ := session.Board()

	var view interface{}
	switch board.ViewMode {
	case entities.ViewModeKanban:
		view = session.KanbanView()
	case entities.ViewModeGrid:
		view = session.GridView()
	default:
		view = session.CanvasView()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"board": board,
		"view":  view,
	})
}
