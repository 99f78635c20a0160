package registry

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/starford/modelhub/internal/models"
	"github.com/starford/modelhub/internal/protect"
)

// seedDrift leaves the environment in the state a crash would: one pending
// reservation with a partial directory, one committed model whose directory
// vanished, one healthy model and one unregistered directory.
func seedDrift(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()

	half := filepath.Join(env.shared, "half")
	if _, err := env.db.Reserve("half", models.SourceGit, "https://example.com/half.git", half); err != nil {
		t.Fatal(err)
	}
	_ = os.MkdirAll(filepath.Join(half, ".git"), 0o755)

	gone, err := env.svc.CopyLocal(ctx, localModel(t, "gone", map[string]string{"a": "a"}), "")
	if err != nil {
		t.Fatal(err)
	}
	_ = protect.Release(gone.Path)
	if err := os.RemoveAll(gone.Path); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.CopyLocal(ctx, localModel(t, "healthy", map[string]string{"w": "w"}), ""); err != nil {
		t.Fatal(err)
	}
	_ = os.Mkdir(filepath.Join(env.shared, "stray"), 0o755)
}

func TestReconcileReportsDrift(t *testing.T) {
	env := newTestEnv(t, WithPendingGrace(0))
	seedDrift(t, env)

	report, err := env.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !slices.Equal(report.ReleasedPending, []string{"half"}) {
		t.Errorf("released = %v", report.ReleasedPending)
	}
	if !slices.Equal(report.Missing, []string{"gone"}) {
		t.Errorf("missing = %v", report.Missing)
	}
	if !slices.Equal(report.Orphans, []string{"stray"}) {
		t.Errorf("orphans = %v", report.Orphans)
	}
	if len(report.RemovedOrphans) != 0 {
		t.Errorf("orphans removed without opt-in: %v", report.RemovedOrphans)
	}
	if report.Clean() {
		t.Error("report with drift reported clean")
	}

	if _, err := os.Stat(filepath.Join(env.shared, "half")); !os.IsNotExist(err) {
		t.Errorf("partial destination not removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.shared, "stray")); err != nil {
		t.Errorf("orphan should be kept: %v", err)
	}
	all, _ := env.db.ListAll()
	for _, m := range all {
		if m.Status == models.StatusPending {
			t.Errorf("pending row survived: %+v", m)
		}
	}

	// the released name can be imported again
	if _, err := env.svc.Clone(context.Background(), "https://example.com/half.git", ""); err != nil {
		t.Errorf("re-import after reconcile: %v", err)
	}
}

func TestReconcileRemovesOrphans(t *testing.T) {
	env := newTestEnv(t, WithRemoveOrphans(true), WithPendingGrace(0))
	seedDrift(t, env)

	report, err := env.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(report.RemovedOrphans, []string{"stray"}) {
		t.Errorf("removed = %v", report.RemovedOrphans)
	}
	if _, err := os.Stat(filepath.Join(env.shared, "stray")); !os.IsNotExist(err) {
		t.Errorf("orphan still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.shared, "healthy")); err != nil {
		t.Errorf("registered model removed: %v", err)
	}
}

func TestReconcileClean(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.CopyLocal(context.Background(), localModel(t, "ok", map[string]string{"a": "a"}), ""); err != nil {
		t.Fatal(err)
	}
	report, err := env.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Clean() {
		t.Errorf("report = %+v, want clean", report)
	}
}

func TestReconcileKeepsRecentReservation(t *testing.T) {
	env := newTestEnv(t)
	seedDrift(t, env)

	report, err := env.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(report.InProgress, []string{"half"}) {
		t.Errorf("in progress = %v", report.InProgress)
	}
	if len(report.ReleasedPending) != 0 {
		t.Errorf("fresh reservation released: %v", report.ReleasedPending)
	}
	if slices.Contains(report.Orphans, "half") {
		t.Error("directory of a pending import reported as orphan")
	}
	if _, err := os.Stat(filepath.Join(env.shared, "half", ".git")); err != nil {
		t.Errorf("partial destination of a running import removed: %v", err)
	}
	all, _ := env.db.ListAll()
	pending := 0
	for _, m := range all {
		if m.Status == models.StatusPending {
			pending++
		}
	}
	if pending != 1 {
		t.Errorf("pending rows = %d, want 1", pending)
	}
}

func TestReconcileWaitsForRunningImport(t *testing.T) {
	env := newTestEnv(t, WithPendingGrace(0))
	env.cloner.entered = make(chan struct{}, 1)
	env.cloner.gate = make(chan struct{})
	ctx := context.Background()

	imported := make(chan error, 1)
	go func() {
		_, err := env.svc.Clone(ctx, "https://example.com/bert.git", "")
		imported <- err
	}()
	select {
	case <-env.cloner.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("clone never started")
	}

	reports := make(chan *Report, 1)
	go func() {
		report, err := env.svc.Reconcile(ctx)
		if err != nil {
			t.Errorf("Reconcile: %v", err)
		}
		reports <- report
	}()
	select {
	case <-reports:
		t.Fatal("reconcile ran while an import was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(env.cloner.gate)
	if err := <-imported; err != nil {
		t.Fatalf("import interrupted by reconcile: %v", err)
	}

	var report *Report
	select {
	case report = <-reports:
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile did not finish after the import")
	}
	if report == nil || !report.Clean() || len(report.InProgress) != 0 {
		t.Errorf("report = %+v, want clean", report)
	}
	if _, err := os.Stat(filepath.Join(env.shared, "bert", "more.bin")); err != nil {
		t.Errorf("imported content missing: %v", err)
	}
	m, err := env.svc.Get(ctx, "bert")
	if err != nil || m.Status != models.StatusCommitted {
		t.Errorf("record = %+v, %v", m, err)
	}
}
