package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artisan-platform/live-session/internal/chat"
	"github.com/artisan-platform/live-session/internal/media"
	"github.com/artisan-platform/live-session/internal/model"
	"github.com/artisan-platform/live-session/internal/rest"
	"github.com/artisan-platform/live-session/internal/signaling"
	"github.com/artisan-platform/live-session/internal/viewer"
)

var (
	watchExhibition  string
	watchDisplayName string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join an exhibition as a viewer",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchExhibition, "exhibition", "demo", "exhibition id")
	watchCmd.Flags().StringVar(&watchDisplayName, "name", "guest", "chat display name")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := rest.New(cfg.APIBaseURL, logger)
	ctrl := viewer.New(watchExhibition, api,
		func(onConnected, onDisconnected func()) viewer.MediaSession {
			s := media.NewSession(logger)
			s.OnConnected = onConnected
			s.OnDisconnected = onDisconnected
			return s
		},
		viewer.Options{
			MediaURL:   strings.TrimRight(cfg.MediaURL, "/") + "/whep",
			AutoRejoin: cfg.AutoRejoinOnReconnect,
		}, logger)
	ctrl.OnChange(func(s viewer.State) {
		fmt.Printf("\r[%s] viewers=%d%s\n", s.UIState(), s.ViewerCount, notice(s))
	})

	var sig *signaling.Client
	overlay := chat.New(watchExhibition, signalingSender{&sig}, func() bool {
		s := ctrl.State()
		return s.Phase == viewer.PhaseLive && s.MediaConnected
	}, cfg.ChatMaxMessageLen, logger)

	h := ctrl.Handlers()
	h.OnChatMessage = func(msg model.ChatMessage) {
		overlay.OnMessage(msg)
		fmt.Printf("  %s: %s\n", msg.DisplayName, msg.Message)
	}
	h.OnChatHistory = func(msgs []model.ChatMessage) {
		overlay.OnHistory(msgs)
		for _, msg := range msgs {
			fmt.Printf("  %s: %s\n", msg.DisplayName, msg.Message)
		}
	}
	h.OnReaction = func(emoji string) {
		overlay.OnRemoteReaction(emoji)
		fmt.Printf("  %s\n", emoji)
	}

	sig = signaling.New(signaling.Options{
		URL:               cfg.SignalingURL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectDelayMax: cfg.ReconnectDelayMax,
		ConnectTimeout:    cfg.ConnectTimeout,
		Logger:            logger,
	}, h)
	if err := sig.Connect(ctx); err != nil {
		return fmt.Errorf("signaling: %w", err)
	}
	defer sig.Close()
	if err := sig.JoinRoom(watchExhibition, model.RoleViewer); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	go ctrl.Run(ctx)

	fmt.Println("commands: join | chat <text> | react <emoji> | quit")
	go readCommands(ctx, stop, ctrl, overlay)

	<-ctx.Done()
	return nil
}

func readCommands(ctx context.Context, stop func(), ctrl *viewer.Controller, overlay *chat.Overlay) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "join":
			ctrl.Join()
		case strings.HasPrefix(line, "chat "):
			if err := overlay.Send("", watchDisplayName, "", strings.TrimPrefix(line, "chat "), model.RoleViewer); err != nil {
				fmt.Println("chat:", err)
			}
		case strings.HasPrefix(line, "react "):
			overlay.React(strings.TrimPrefix(line, "react "))
		case line == "quit":
			stop()
			return
		}
	}
}

func notice(s viewer.State) string {
	if s.Notice == "" {
		return ""
	}
	return " — " + s.Notice
}

// signalingSender defers the chat sender binding until the signaling client
// exists (overlay and handlers are wired before the client).
type signalingSender struct {
	c **signaling.Client
}

func (s signalingSender) SendChat(msg model.ChatMessage) error {
	if *s.c == nil {
		return fmt.Errorf("signaling not ready")
	}
	return (*s.c).SendChat(msg)
}

func (s signalingSender) SendReaction(exhibitionID, reaction string) error {
	if *s.c == nil {
		return fmt.Errorf("signaling not ready")
	}
	return (*s.c).SendReaction(exhibitionID, reaction)
}
