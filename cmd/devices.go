package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/UT07/keysense-app-sub002/internal/logger"
	"github.com/UT07/keysense-app-sub002/internal/transport"
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List hardware MIDI devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewDevelopment(verbose)
		defer log.Sync()

		t := transport.ForPlatform(log)
		devices, err := t.Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no MIDI devices found")
			return nil
		}
		for _, d := range devices {
			state := "disconnected"
			if d.Connected {
				state = "connected"
			}
			fmt.Printf("%s  %-30s %-20s %s\n", d.ID, d.Name, d.Manufacturer, state)
		}
		return nil
	},
}
