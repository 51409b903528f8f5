//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/Rohansunwar5/sweety-server-sub000/internal/domain"
	pconfig "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/config"
	pfirestore "github.com/Rohansunwar5/sweety-server-sub000/internal/platform/firestore"
	"github.com/Rohansunwar5/sweety-server-sub000/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func newEmulatorRegistry(t *testing.T) *Registry {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "commerce-test", EmulatorHost: endpoint})
	reg, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg
}

func TestRepositoriesIntegration(t *testing.T) {
	reg := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	product := domain.Product{
		ID: "prod_1", Code: "TEE-1", Name: "Tee", Price: 49900, Currency: "INR", Active: true,
		Colors:    []domain.ColorVariant{{Name: "Black", Sizes: []domain.SizeStock{{Size: "M", Stock: 3}}}},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := reg.products.Save(ctx, product); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	t.Run("inventory adjust guards negative stock", func(t *testing.T) {
		key := repositories.StockKey{ProductID: "prod_1", Color: "Black", Size: "M"}
		left, err := reg.Inventory().Adjust(ctx, key, -2)
		if err != nil || left != 1 {
			t.Fatalf("expected 1 left, got %d err %v", left, err)
		}
		_, err = reg.Inventory().Adjust(ctx, key, -2)
		var invErr *repositories.InventoryError
		if !errors.As(err, &invErr) || !invErr.IsConflict() || invErr.Available != 1 {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if left, err = reg.Inventory().Adjust(ctx, key, 2); err != nil || left != 3 {
			t.Fatalf("expected restore to 3, got %d err %v", left, err)
		}
		if _, err := reg.Inventory().Available(ctx, repositories.StockKey{ProductID: "prod_1", Color: "Black", Size: "XL"}); err == nil {
			t.Fatalf("expected missing size error")
		}
	})

	t.Run("discount usage is recorded once per user", func(t *testing.T) {
		limit := 5
		discount := domain.Discount{
			ID: "dsc_1", Code: "WELCOME", Kind: domain.DiscountKindCoupon, Type: domain.DiscountTypeFixed, Value: 100,
			ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(time.Hour), UsageLimit: &limit, Active: true,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := reg.Discounts().Insert(ctx, discount); err != nil {
			t.Fatalf("insert discount: %v", err)
		}
		dup := discount
		dup.ID = "dsc_2"
		var repoErr repositories.RepositoryError
		if err := reg.Discounts().Insert(ctx, dup); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected duplicate code conflict, got %v", err)
		}
		marked, err := reg.Discounts().MarkUsed(ctx, "WELCOME", "user_1", now)
		if err != nil || marked.UsedCount != 1 {
			t.Fatalf("expected first usage, got %+v err %v", marked, err)
		}
		_, err = reg.Discounts().MarkUsed(ctx, "WELCOME", "user_1", now)
		var discountErr *repositories.DiscountError
		if !errors.As(err, &discountErr) || discountErr.Code != repositories.DiscountErrorAlreadyUsed {
			t.Fatalf("expected already used, got %v", err)
		}
		if err := reg.Discounts().ReleaseUsage(ctx, "WELCOME", "user_1", now); err != nil {
			t.Fatalf("release usage: %v", err)
		}
		if err := reg.Discounts().ReleaseUsage(ctx, "WELCOME", "user_1", now); err != nil {
			t.Fatalf("second release should be a no-op: %v", err)
		}
		released, err := reg.Discounts().FindByCode(ctx, "WELCOME")
		if err != nil || released.UsedCount != 0 || len(released.UsedBy) != 0 {
			t.Fatalf("expected usage released, got %+v err %v", released, err)
		}
	})

	t.Run("order numbers are unique", func(t *testing.T) {
		order := domain.Order{ID: "ord_1", OrderNumber: "ORD-1", UserID: "user_1", Status: domain.OrderStatusPending, CreatedAt: now, UpdatedAt: now}
		if err := reg.Orders().Insert(ctx, order); err != nil {
			t.Fatalf("insert order: %v", err)
		}
		order.ID = "ord_2"
		var repoErr repositories.RepositoryError
		if err := reg.Orders().Insert(ctx, order); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected order number conflict, got %v", err)
		}
		page, err := reg.Orders().List(ctx, repositories.OrderListFilter{UserID: "user_1"})
		if err != nil || len(page.Items) != 1 {
			t.Fatalf("expected one order, got %+v err %v", page, err)
		}
	})

	t.Run("status writes are conditional", func(t *testing.T) {
		order, err := reg.Orders().FindByID(ctx, "ord_1")
		if err != nil {
			t.Fatalf("find order: %v", err)
		}
		order.Status = domain.OrderStatusCancelled
		if err := reg.Orders().UpdateStatus(ctx, order, domain.OrderStatusPending); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		var repoErr repositories.RepositoryError
		if err := reg.Orders().UpdateStatus(ctx, order, domain.OrderStatusPending); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected stale status conflict, got %v", err)
		}
	})

	t.Run("counter increments", func(t *testing.T) {
		first, err := reg.Counters().Next(ctx, "orders", 1)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		second, _ := reg.Counters().Next(ctx, "orders", 1)
		if second != first+1 {
			t.Fatalf("expected sequential values, got %d then %d", first, second)
		}
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond); err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
