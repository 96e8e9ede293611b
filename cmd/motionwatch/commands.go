package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/camera"
	"github.com/mikeyg42/motionwatch/internal/crypto"
	"github.com/mikeyg42/motionwatch/internal/notification"
	"github.com/mikeyg42/motionwatch/internal/validate"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start watching every configured camera",
		Long: `Start one worker per camera plus the preview. Press q in a preview window,
or send SIGINT/SIGTERM, to stop all cameras and exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := NewApplication(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer app.Cleanup()

			if err := app.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run(ctx)
		},
	}
}

func newTestEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-email",
		Short: "Send a test message with the configured notification method",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Notification.Method == "none" {
				return fmt.Errorf("notifications are disabled (notification.method is none)")
			}
			if err := validate.ValidateNotificationConfig(&cfg.Notification); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			notifier, err := notification.New(ctx, cfg.Notification, logger)
			if err != nil {
				return err
			}
			defer notifier.Close()

			if err := notifier.Send(ctx, notification.NewTestAlert()); err != nil {
				return fmt.Errorf("test email failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test email sent to %s via %s\n", cfg.Notification.ToEmail, cfg.Notification.Method)
			return nil
		},
	}
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Open every configured camera once and print what it reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := camera.SetRTSPTransport(cfg.RTSPTransport); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failures := 0
			for _, camCfg := range cfg.Cameras {
				capture, err := camera.Open(camCfg, cfg.Recording.DefaultFrameRate, logger)
				if err != nil {
					failures++
					fmt.Fprintf(out, "%-12s FAILED  %v\n", camCfg.ID, err)
					continue
				}

				frame, err := capture.Read()
				if err != nil {
					failures++
					fmt.Fprintf(out, "%-12s OPENED  %s, but read failed: %v\n", camCfg.ID, capture.Camera(), err)
				} else {
					fmt.Fprintf(out, "%-12s OK      %s\n", camCfg.ID, capture.Camera())
					frame.Close()
				}
				if err := capture.Close(); err != nil {
					logger.Warn("Failed to close capture", zap.String("camera", camCfg.ID), zap.Error(err))
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d cameras failed", failures, len(cfg.Cameras))
			}
			return nil
		},
	}
}

func newGmailAuthCmd() *cobra.Command {
	var generateKey bool

	cmd := &cobra.Command{
		Use:   "gmail-auth",
		Short: "Authorize motionwatch to send mail from a Gmail account",
		Long: `Run the OAuth2 consent flow in a browser and store the resulting token at
notification.gmail.token_store_path. When notification.gmail.token_key is set
the token is stored encrypted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if generateKey {
				key, err := crypto.GenerateMasterKey()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "MOTIONWATCH_GMAIL_TOKEN_KEY=%s\n", key)
				return nil
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := notification.Authorize(cmd.Context(), cfg.Notification.Gmail, out); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", cfg.Notification.Gmail.TokenStorePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generateKey, "generate-key", false, "print a new random token_key and exit")
	return cmd
}
