package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/broadcaster"
	"github.com/artisan-platform/live-session/internal/chat"
	"github.com/artisan-platform/live-session/internal/media"
	"github.com/artisan-platform/live-session/internal/model"
	"github.com/artisan-platform/live-session/internal/rest"
	"github.com/artisan-platform/live-session/internal/signaling"
)

var (
	broadcastExhibition string
	broadcastName       string
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Go live as the exhibition's artist",
	RunE:  runBroadcast,
}

func init() {
	broadcastCmd.Flags().StringVar(&broadcastExhibition, "exhibition", "demo", "exhibition id")
	broadcastCmd.Flags().StringVar(&broadcastName, "name", "artist", "chat display name")
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := rest.New(cfg.APIBaseURL, logger)

	var sig *signaling.Client
	var ctrl *broadcaster.Controller

	overlay := chat.New(broadcastExhibition, signalingSender{&sig},
		func() bool { return ctrl != nil && ctrl.Live() },
		cfg.ChatMaxMessageLen, logger)

	h := signaling.Handlers{
		OnChatMessage: func(msg model.ChatMessage) {
			overlay.OnMessage(msg)
			fmt.Printf("  %s: %s\n", msg.DisplayName, msg.Message)
		},
		OnChatHistory: overlay.OnHistory,
		OnReaction: func(emoji string) {
			overlay.OnRemoteReaction(emoji)
			fmt.Printf("  %s\n", emoji)
		},
		OnViewerCount: func(n int) { fmt.Printf("\rviewers: %d\n", n) },
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
	if err := sig.JoinRoom(broadcastExhibition, model.RoleAuthor); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	var recorder media.RecorderFactory
	if cfg.RecordingEnabled {
		recorder = media.NewBufferRecorder(0, logger)
	}
	ctrl = broadcaster.New(broadcastExhibition, api, sig,
		&media.SyntheticDevice{Log: logger},
		func(onConnected, onDisconnected func()) broadcaster.MediaPublisher {
			s := media.NewSession(logger)
			s.OnConnected = onConnected
			s.OnDisconnected = onDisconnected
			return s
		},
		recorder,
		broadcaster.Options{
			MediaURL:     strings.TrimRight(cfg.MediaURL, "/") + "/whip",
			RecordingDir: cfg.RecordingDir,
		}, logger)
	ctrl.OnChange(func(p broadcaster.Phase) { fmt.Printf("\r[%s]\n", p) })

	if err := ctrl.StartStream(ctx); err != nil {
		return fmt.Errorf("go live: %w", err)
	}

	fmt.Println("live — commands: chat <text> | end")
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case strings.HasPrefix(line, "chat "):
				if cerr := overlay.Send("", broadcastName, "", strings.TrimPrefix(line, "chat "), model.RoleAuthor); cerr != nil {
					fmt.Println("chat:", cerr)
				}
			case line == "end":
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	// teardown must finish even when the parent context is already cancelled
	endCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ctrl.EndStream(endCtx); err != nil {
		logger.Warn("end stream reported error", zap.Error(err))
	}
	return nil
}
