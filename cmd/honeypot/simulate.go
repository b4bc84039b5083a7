package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"honeypot/internal/bus"
	"honeypot/internal/config"
	"honeypot/internal/domain"
	"honeypot/internal/engage"
	"honeypot/internal/intel"
	"honeypot/internal/patterns"
	"honeypot/internal/report"
	"honeypot/internal/sentinel"
	"honeypot/internal/store"

	"github.com/spf13/cobra"
)

// A scripted scam conversation played through the full pipeline without any
// network dependency: rules-only detection, canned persona replies, and the
// final report printed instead of posted.
var simulationScript = []string{
	"Your bank account will be blocked today. Verify immediately.",
	"Share your UPI ID to avoid account suspension.",
	"Why are you asking so many questions? Do it fast. Send to support@fakebank now.",
	"Last warning. Police case will be filed. Call 9876543210.",
}

func simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted scam conversation through the pipeline offline",
		RunE:  runSimulate,
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	lib := patterns.NewLibrary()
	keyLocks := store.NewKeyLocks()
	sessionStore := store.NewMemoryStore(time.Hour, keyLocks, logger)
	defer sessionStore.Close()
	reportBus := bus.New(16, logger)
	defer reportBus.Close()

	// No oracle: the sentinel falls back to its heuristic channel and the
	// persona answers from the canned pool.
	engine := engage.NewEngine(engage.EngineConfig{
		Store:      sessionStore,
		Sentinel:   sentinel.New(sentinel.Config{Library: lib, Logger: logger}),
		Intel:      intel.NewAggregator(lib),
		Bus:        reportBus,
		Locks:      keyLocks,
		Engagement: config.Defaults().Engagement,
		Logger:     logger,
	})

	sessionID := fmt.Sprintf("simulation-%d", time.Now().Unix())
	base := time.Now().UTC()

	for i, text := range simulationScript {
		fmt.Printf("\nSCAMMER: %s\n", text)
		resp, err := engine.HandleEvent(ctx, domain.InboundEvent{
			SessionID: sessionID,
			Message: domain.Message{
				Sender:    domain.SenderScammer,
				Text:      text,
				Timestamp: base.Add(time.Duration(i) * time.Minute),
			},
			Metadata: domain.Metadata{Channel: "simulation"},
		})
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		if resp.Reply != "" {
			fmt.Printf("AGENT:   %s\n", resp.Reply)
		} else {
			fmt.Println("AGENT:   (silent)")
		}
	}

	sess, err := sessionStore.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("\nSession state: status=%s scam=%v peak=%.2f qualifying=%d artifacts=%d\n",
		sess.Status, sess.ScamDetected, sess.PeakConfidence, sess.QualifyingTurns, sess.Intel.Size())

	fmt.Println("\nFinal report payload:")
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report.Build(sess))
}
