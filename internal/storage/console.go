package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mselser95/reservation-escrow/internal/escrow"
	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    os.Stdout,
		logger: logger,
	}
}

// StoreEvent pretty-prints an event to console.
func (c *ConsoleStorage) StoreEvent(ctx context.Context, evt *escrow.Event) error {
	fmt.Fprintln(c.out, "\n"+rule)
	fmt.Fprintf(c.out, "%s %s (#%d)\n", eventIcon(evt.Type), evt.Type, evt.Sequence)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintf(c.out, "Time:     %s\n", evt.Timestamp.Format("2006-01-02 15:04:05"))
	if evt.ListingID != "" {
		fmt.Fprintf(c.out, "Listing:  %s\n", short(evt.ListingID))
	}
	if evt.OrderID != "" {
		fmt.Fprintf(c.out, "Order:    %s\n", short(evt.OrderID))
	}
	if evt.Actor != "" {
		fmt.Fprintf(c.out, "Actor:    %s\n", evt.Actor)
	}

	if len(evt.Attributes) > 0 {
		keys := make([]string, 0, len(evt.Attributes))
		for k := range evt.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(c.out, rule)
		for _, k := range keys {
			fmt.Fprintf(c.out, "  %-18s %s\n", k+":", evt.Attributes[k])
		}
	}
	fmt.Fprintln(c.out, rule)

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}

func eventIcon(typ string) string {
	switch typ {
	case escrow.EventListingCreated:
		return "📋"
	case escrow.EventOrderCreated, escrow.EventOrderClaiming:
		return "🤝"
	case escrow.EventOrderSettled:
		return "✅"
	case escrow.EventOrderFailed:
		return "❌"
	default:
		return "•"
	}
}

func short(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}
