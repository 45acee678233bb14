package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
	"github.com/UT07/keysense-app-sub002/sdk/keysense"
)

func main() {
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	client, err := keysense.New(
		contracts.WithLogger(log),
		contracts.WithConfig(contracts.Config{
			PreferredMethod: contracts.MethodAuto,
		}),
	)
	if err != nil {
		log.Fatal("building client", zap.Error(err))
	}

	cancel := client.Subscribe(func(ev contracts.UnifiedInputEvent) {
		log.Info("note event",
			zap.Stringer("kind", ev.Kind),
			zap.Int("pitch", ev.PitchNumber),
			zap.Int("velocity", ev.Velocity),
			zap.Int64("timestampMs", ev.TimestampMs),
			zap.Stringer("source", ev.Source),
		)
	})
	defer cancel()

	if err := client.Start(); err != nil {
		log.Fatal("starting capture", zap.Error(err))
	}
	defer client.Stop()

	mult, comp := client.TimingProfile(client.ActiveSource())
	fmt.Printf("active source: %s (timing x%.1f, compensation %dms)\n",
		client.ActiveSource(), mult, comp)

	fmt.Println("listening; press Ctrl+C to exit")
	select {}
}
