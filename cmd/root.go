package cmd

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "keysense",
	Short: "Real-time note detection and input arbitration",
	Long: `keysense detects which musical notes are being performed, from a
hardware MIDI keyboard, a microphone, or on-screen touch, and emits one
normalized stream of note-on/note-off events.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
