// Command replay восстанавливает состояние одного заказа из настроенного хранилища
// и печатает каждое применённое событие и итоговое состояние.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/app"
	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/replay"
)

const defaultTimeout = 30 * time.Second

type options struct {
	orderID       string
	seed          bool
	address       string
	snapshotFirst bool
	audit         bool
}

func main() {
	var opts options
	flag.StringVar(&opts.orderID, "order", "1", "order id (event stream) to replay")
	flag.BoolVar(&opts.seed, "seed", false, "load sample events and snapshots before replay")
	flag.StringVar(&opts.address, "address", "", "emit DeliveryAddressUpdated as first:last and replay again")
	flag.BoolVar(&opts.snapshotFirst, "snapshot-first", false, "apply the snapshot before later events")
	flag.BoolVar(&opts.audit, "audit", true, "append the synthesized Init to the event log")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	cfg, err := app.LoadConfig()
	if err != nil {
		fail("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, cfg, opts, app.SystemClock(), os.Stdout); err != nil {
		fail("%v", err)
	}
}

func run(ctx context.Context, cfg app.Config, opts options, clock domain.Clock, out io.Writer) error {
	logger := log.WithField("component", "replay-cli")

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close(logger)

	if opts.seed {
		if err := seed(ctx, opts.orderID, storage.Events, storage.Snapshots); err != nil {
			return fmt.Errorf("seed sample data: %w", err)
		}
	}

	engine, err := replay.NewEngine(ctx, opts.orderID, storage.Events, storage.Snapshots, replay.NewOrderRegistry(),
		replay.WithClock(clock),
		replay.WithLogger(logger),
		replay.WithRehydrationAudit(opts.audit),
		replay.WithSnapshotFirst(opts.snapshotFirst),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := printProjection(out, engine); err != nil {
		return err
	}

	if opts.address == "" {
		return nil
	}
	firstName, lastName, ok := strings.Cut(opts.address, ":")
	if !ok {
		return fmt.Errorf("address must be first:last, got %q", opts.address)
	}
	if _, err := engine.EmitDeliveryAddressUpdated(ctx, firstName, lastName); err != nil {
		return fmt.Errorf("emit delivery address: %w", err)
	}
	return printProjection(out, engine)
}

func printProjection(out io.Writer, engine *replay.Engine) error {
	state, trace, err := engine.ProjectWithTrace()
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}

	for _, record := range trace {
		recordState, _ := record.State.Encode()
		_, _ = fmt.Fprintf(out, "Executed event:\n")
		_, _ = fmt.Fprintf(out, "EventHandler: %s\n", record.Handler)
		_, _ = fmt.Fprintf(out, "EventCreatedAt: %s\n", record.CreatedAt.UTC().Format(time.RFC3339Nano))
		_, _ = fmt.Fprintf(out, "EventBody: %s\n", record.Payload)
		_, _ = fmt.Fprintf(out, "Order: %s\n\n", recordState)
	}

	result, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Result: %s\n", result)
	return nil
}

// seed записывает демонстрационные данные: два снапшота и два события.
// Повторный запуск на том же хранилище ничего не дублирует.
func seed(ctx context.Context, orderID string, events domain.EventLog, snapshots domain.SnapshotStore) error {
	at := func(hour, minute int) time.Time {
		return time.Date(2022, time.September, 17, hour, minute, 0, 0, time.UTC)
	}

	sampleEvents := []domain.Event{
		{
			ID:        "seed-init-" + orderID,
			OrderID:   orderID,
			Type:      domain.EventTypeInit,
			CreatedAt: at(10, 0),
			Payload:   json.RawMessage(`{"orderId":1,"deliveryAddress":{"firstName":"max","lastName":"mustermann"}}`),
		},
		{
			ID:        "seed-address-" + orderID,
			OrderID:   orderID,
			Type:      domain.EventTypeDeliveryAddressUpdated,
			CreatedAt: at(12, 15),
			Payload:   json.RawMessage(`{"firstName":"alice","lastName":"wonderland"}`),
		},
	}
	sampleSnapshots := []domain.Snapshot{
		{
			OrderID:   orderID,
			CreatedAt: at(10, 0),
			Payload:   json.RawMessage(`{"orderId":1,"deliveryAddress":{"firstName":"egon","lastName":"snapshot"}}`),
		},
		{
			OrderID:   orderID,
			CreatedAt: at(12, 0),
			Payload:   json.RawMessage(`{"orderId":2,"deliveryAddress":{"firstName":"hans","lastName":"snapshot"}}`),
		},
	}

	existing, err := events.EventsFrom(ctx, orderID, time.Time{})
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, event := range existing {
		seen[event.ID] = true
	}
	for _, event := range sampleEvents {
		if seen[event.ID] {
			continue
		}
		if err := events.Append(ctx, event); err != nil {
			return err
		}
	}
	for _, snapshot := range sampleSnapshots {
		if err := snapshots.Save(ctx, snapshot); err != nil && !errors.Is(err, domain.ErrSnapshotConflict) {
			return err
		}
	}
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
