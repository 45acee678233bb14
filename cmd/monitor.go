package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/UT07/keysense-app-sub002/internal/logger"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
	"github.com/UT07/keysense-app-sub002/sdk/keysense"
)

var monitorMethod string

func init() {
	monitorCmd.Flags().StringVar(&monitorMethod, "method", "auto", "input method: auto|midi|mic|touch")
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Capture live input and print unified note events",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewDevelopment(verbose)
		defer log.Sync()

		cfg := contracts.DefaultConfig()
		cfg.PreferredMethod = contracts.InputMethod(monitorMethod)

		client, err := keysense.New(
			contracts.WithLogger(log),
			contracts.WithConfig(cfg),
		)
		if err != nil {
			return err
		}

		cancel := client.Subscribe(func(ev contracts.UnifiedInputEvent) {
			fmt.Printf("%8dms  %-8s pitch=%-3d vel=%-3d source=%s\n",
				ev.TimestampMs, ev.Kind, ev.PitchNumber, ev.Velocity, ev.Source)
		})
		defer cancel()

		if err := client.Start(); err != nil {
			return err
		}
		defer client.Stop()

		fmt.Printf("capturing from %s; press Ctrl+C to exit\n", client.ActiveSource())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}
