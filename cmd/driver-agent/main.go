package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"tawsil-backend/internal/agent"
	"tawsil-backend/internal/models"

	"github.com/joho/godotenv"
)

// driver-agent is the headless driver client: it holds the dispatch channel,
// persists the accepted order in Redis and streams filtered GPS samples. A
// restart mid-delivery resumes tracking on its own.
func main() {
	log.Println("🚚 TAWSIL DRIVER AGENT STARTING")

	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	}

	serverURL := envOr("SERVER_URL", "http://localhost:8080/api")
	wsURL := envOr("WS_URL", "ws://localhost:8080/ws")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	driverID := os.Getenv("DRIVER_ID")
	token := os.Getenv("DRIVER_TOKEN")
	if driverID == "" || token == "" {
		log.Fatal("❌ DRIVER_ID and DRIVER_TOKEN environment variables are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := agent.NewRedisSessionStore(redisAddr)
	defer store.Close()

	session, err := agent.LoadSession(ctx, store, driverID)
	if err != nil {
		log.Fatalf("❌ Failed to load session: %v", err)
	}

	api := agent.NewHTTPOrderAPI(serverURL, token)
	watcher := newEnvWatcher()

	samplerCfg := agent.DefaultSamplerConfig()
	if raw := os.Getenv("ACCURACY_REJECT_METERS"); raw != "" {
		if meters, err := strconv.ParseFloat(raw, 64); err == nil && meters > 0 {
			samplerCfg.AccuracyRejectionMeters = meters
		}
	}

	var client *agent.ChannelClient
	drv := agent.New(session, channelRef{&client}, api, watcher, samplerCfg)
	client = agent.NewChannelClient(wsURL, token, drv.Handlers())

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("❌ Channel failed: %v", err)
		}
	}()

	if err := drv.Start(ctx); err != nil {
		log.Printf("⚠️  Could not resume tracking: %v", err)
	}

	go repl(ctx, drv)

	<-ctx.Done()
	drv.Stop()
	client.Close()
	log.Println("👋 Driver agent stopped")
}

// repl reads operator commands from stdin.
func repl(ctx context.Context, drv *agent.Agent) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Commands: pending | accept <order> | deliver | status")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "pending":
			for _, summary := range drv.PendingOrders() {
				fmt.Printf("  %s  %s  %s\n", summary.OrderNumber, summary.ItemType, summary.Address)
			}
		case "accept":
			if len(fields) < 2 {
				fmt.Println("usage: accept <order>")
				continue
			}
			if err := drv.AcceptOrder(ctx, fields[1]); err != nil {
				fmt.Printf("accept failed: %v\n", err)
			}
		case "deliver":
			if err := drv.CompleteDelivery(ctx); err != nil {
				fmt.Printf("deliver failed: %v\n", err)
			}
		case "status":
			fmt.Printf("streaming=%v pending=%d\n", drv.Streaming(), len(drv.PendingOrders()))
		default:
			fmt.Println("unknown command")
		}
	}
}

// channelRef defers to the client created after the agent. Breaks the
// construction cycle between agent handlers and the channel client.
type channelRef struct {
	client **agent.ChannelClient
}

func (r channelRef) JoinOrder(orderNumber string) error {
	if *r.client == nil {
		return fmt.Errorf("channel not ready")
	}
	return (*r.client).JoinOrder(orderNumber)
}

func (r channelRef) LeaveOrder() {
	if *r.client != nil {
		(*r.client).LeaveOrder()
	}
}

func (r channelRef) SendLocation(update models.LocationUpdate) error {
	if *r.client == nil {
		return fmt.Errorf("channel not ready")
	}
	return (*r.client).SendLocation(update)
}

func (r channelRef) SendDelivered(orderNumber string) error {
	if *r.client == nil {
		return fmt.Errorf("channel not ready")
	}
	return (*r.client).SendDelivered(orderNumber)
}

func envOr(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
