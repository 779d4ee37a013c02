package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/vinostock/internal/adapter/ledger"
	"github.com/rl1809/vinostock/internal/config"
	"github.com/rl1809/vinostock/internal/core/domain"
)

// Hammers a running inventory service with concurrent single-bottle
// decreases and checks the ledger never oversells.
const (
	itemID        = 1
	totalRequests = 200
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceCart)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	client, err := ledger.NewClient(cfg.LedgerAddr, cfg.GatewaySecret, cfg.RemoteTimeout, zap.NewNop())
	if err != nil {
		log.Fatalf("failed to create ledger client: %v", err)
	}
	defer client.Close()

	before, err := client.GetStock(ctx, itemID)
	if err != nil {
		log.Fatalf("failed to read stock of item %d: %v", itemID, err)
	}

	var successCount, rejectedCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := client.DecreaseStock(ctx, "stress:"+uuid.NewString(), itemID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("decrease failed: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// the same request ID twice must move stock once
	replayID := "stress:replay:" + uuid.NewString()
	first, firstErr := client.DecreaseStock(ctx, replayID, itemID, 1)
	second, secondErr := client.DecreaseStock(ctx, replayID, itemID, 1)

	after, err := client.GetStock(ctx, itemID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}

	success := int(successCount.Load())
	expected := max(before.Quantity-totalRequests, 0)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", before.Quantity)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejectedCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == min(before.Quantity, totalRequests) && errorCount.Load() == 0 {
		fmt.Printf("PASS: %d decreases succeeded\n", success)
	} else {
		fmt.Printf("FAIL: expected %d successes, got %d (errors %d)\n",
			min(before.Quantity, totalRequests), success, errorCount.Load())
	}

	if firstErr == nil && secondErr == nil {
		if first.Quantity == second.Quantity {
			fmt.Println("PASS: replayed request applied once")
			expected--
		} else {
			fmt.Printf("FAIL: replayed request moved stock twice (%d then %d)\n", first.Quantity, second.Quantity)
		}
	}

	fmt.Printf("Final Stock:      %d\n", after.Quantity)
	if after.Quantity == expected && after.Quantity >= 0 {
		fmt.Println("PASS: ledger matches accepted decreases")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", expected, after.Quantity)
	}
}
