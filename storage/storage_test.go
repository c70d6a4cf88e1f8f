package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/nn"
	"github.com/loiht2/ml-platform-email-classifier/backend/textproc"
)

type fakeJobs map[string]*models.Job

func (f fakeJobs) GetJob(id string) (*models.Job, bool) {
	j, ok := f[id]
	return j, ok
}

func completedJob(t *testing.T) *models.Job {
	t.Helper()
	tok := textproc.NewTokenizer(100)
	tok.Fit([]string{"invoice due today", "lunch on friday"})
	enc := &textproc.LabelEncoder{}
	enc.Fit([]string{"billing", "social"})
	m, err := nn.New(nn.Config{Architecture: nn.CNN, VocabSize: tok.VocabularySize(), MaxLen: 10, NumClasses: 2, EmbeddingDim: 4, Filters: 4, KernelSize: 3})
	if err != nil {
		t.Fatalf("nn.New: %v", err)
	}
	return &models.Job{
		JobID:     "j1",
		ModelType: "CNN",
		Status:    models.JobCompleted,
		Results: &models.Results{
			Metadata: models.Metadata{ModelType: "CNN", MaxLen: 10, NumClasses: 2, Classes: enc.Classes},
			Metrics:  models.Metrics{TestAccuracy: 0.75},
		},
		Artifacts: &models.Artifacts{Model: m, Tokenizer: tok, LabelEncoder: enc},
	}
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

func TestSavePreconditions(t *testing.T) {
	running := completedJob(t)
	running.Status = models.JobRunning
	stripped := completedJob(t)
	stripped.Artifacts = nil

	jobs := fakeJobs{"running": running, "stripped": stripped, "done": completedJob(t)}
	tests := []struct {
		name  string
		jobID string
		model string
		want  error
	}{
		{"unknown job", "ghost", "m1", ErrJobNotFound},
		{"not completed", "running", "m1", ErrJobNotCompleted},
		{"artifacts gone", "stripped", "m1", ErrArtifactsMissing},
		{"path traversal", "done", "../evil", ErrInvalidModelName},
		{"slash", "done", "a/b", ErrInvalidModelName},
		{"empty", "done", "", ErrInvalidModelName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			g := NewGateway(jobs, dir)
			if _, err := g.Save(context.Background(), tt.jobID, tt.model); !errors.Is(err, tt.want) {
				t.Errorf("Save err = %v, want %v", err, tt.want)
			}
			if n := dirEntries(t, dir); n != 0 {
				t.Errorf("%d files written on a failed save", n)
			}
		})
	}
}

type recordingCatalog struct{ saved []models.SavedModel }

func (c *recordingCatalog) RegisterModel(_ context.Context, m models.SavedModel) error {
	c.saved = append(c.saved, m)
	return nil
}

type failingMirror struct{ calls int }

func (m *failingMirror) MirrorModel(context.Context, string, ArtifactPaths) error {
	m.calls++
	return errors.New("bucket unreachable")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	job := completedJob(t)
	dir := filepath.Join(t.TempDir(), "models")
	catalog := &recordingCatalog{}
	mirror := &failingMirror{}
	g := NewGateway(fakeJobs{"j1": job}, dir, WithCatalog(catalog), WithMirror(mirror))

	modelPath, err := g.Save(context.Background(), "j1", "email-v2")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	paths := PathsFor(dir, "email-v2")
	if modelPath != paths.Model {
		t.Errorf("model path = %s, want %s", modelPath, paths.Model)
	}
	if n := dirEntries(t, dir); n != 4 {
		t.Errorf("%d files in output dir, want 4", n)
	}
	if mirror.calls != 1 {
		t.Errorf("mirror called %d times", mirror.calls)
	}
	if len(catalog.saved) != 1 || catalog.saved[0].Name != "email-v2" || catalog.saved[0].Metrics.TestAccuracy != 0.75 {
		t.Errorf("catalog = %+v", catalog.saved)
	}

	a, md, err := LoadArtifacts(paths)
	if err != nil {
		t.Fatalf("LoadArtifacts: %v", err)
	}
	if md.MaxLen != 10 || md.ModelType != "CNN" {
		t.Errorf("metadata = %+v", md)
	}
	seqs := job.Artifacts.Tokenizer.TextsToSequences([]string{"invoice due today"})
	x := textproc.PadSequences(seqs, 10)[0]
	want := job.Artifacts.Model.Predict(x)
	got := a.Model.Predict(textproc.PadSequences(a.Tokenizer.TextsToSequences([]string{"invoice due today"}), 10)[0])
	for i := range want {
		if d := want[i] - got[i]; d > 1e-12 || d < -1e-12 {
			t.Fatalf("reloaded prediction %v, want %v", got, want)
		}
	}

	// re-saving overwrites in place
	if _, err := g.Save(context.Background(), "j1", "email-v2"); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if n := dirEntries(t, dir); n != 4 {
		t.Errorf("%d files after overwrite, want 4", n)
	}
}

func TestLoadArtifactsCorruptModel(t *testing.T) {
	job := completedJob(t)
	paths := PathsFor(t.TempDir(), "broken")
	if err := WriteArtifacts(paths, job.Artifacts, job.Results.Metadata); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	for _, snap := range []string{
		`{"format":"` + nn.SnapshotFormat + `","config":{"architecture":"RNN","vocab_size":7,"max_len":10,"num_classes":2,"embedding_dim":-3},"weights":{}}`,
		`{"format":"` + nn.SnapshotFormat + `","config":{"architecture":"CNN","vocab_size":7,"max_len":10,"num_classes":2,"kernel_size":-1},"weights":{}}`,
		`{"format":"` + nn.SnapshotFormat + `","config":{"architecture":"CNN"`,
	} {
		if err := os.WriteFile(paths.Model, []byte(snap), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, _, err := LoadArtifacts(paths); !errors.Is(err, ErrArtifactLoad) {
			t.Errorf("LoadArtifacts(%s) err = %v, want ErrArtifactLoad", snap, err)
		}
	}
}

func TestLoadArtifactsMissingFile(t *testing.T) {
	if _, _, err := LoadArtifacts(PathsFor(t.TempDir(), "nothing")); !errors.Is(err, ErrArtifactLoad) {
		t.Errorf("err = %v, want ErrArtifactLoad", err)
	}
}

func TestLocalLockerSerializes(t *testing.T) {
	l := NewLocalLocker()
	var holders, maxHolders int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "same")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&holders, 1)
			for {
				m := atomic.LoadInt32(&maxHolders)
				if n <= m || atomic.CompareAndSwapInt32(&maxHolders, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&holders, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxHolders != 1 {
		t.Errorf("%d goroutines held the lock at once", maxHolders)
	}
	if len(l.locks) != 0 {
		t.Errorf("%d lock entries leaked", len(l.locks))
	}
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, _ := l.Lock(context.Background(), "m")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "m"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	other, err := l.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("different name blocked: %v", err)
	}
	other()
}

type stubLocker struct {
	err   error
	order *[]string
	name  string
}

func (s stubLocker) Lock(context.Context, string) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	*s.order = append(*s.order, "lock "+s.name)
	return func() { *s.order = append(*s.order, "unlock "+s.name) }, nil
}

func TestChainLocker(t *testing.T) {
	var order []string
	c := ChainLocker{stubLocker{order: &order, name: "a"}, stubLocker{order: &order, name: "b"}}
	unlock, err := c.Lock(context.Background(), "m")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	unlock()
	want := []string{"lock a", "lock b", "unlock b", "unlock a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
		}
	}

	order = nil
	boom := errors.New("boom")
	c = ChainLocker{stubLocker{order: &order, name: "a"}, stubLocker{err: boom}}
	if _, err := c.Lock(context.Background(), "m"); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if len(order) != 2 || order[1] != "unlock a" {
		t.Errorf("partial acquisition not released: %v", order)
	}
}

func TestMinIOConfigFromSecret(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: MinIOSecretName, Namespace: "ml"},
		Data: map[string][]byte{
			"endpoint":  []byte("minio.ml:9000"),
			"accesskey": []byte("ak"),
			"secretkey": []byte("sk"),
		},
	})
	cfg, err := MinIOConfigFromSecret(context.Background(), client, "ml", "models")
	if err != nil {
		t.Fatalf("MinIOConfigFromSecret: %v", err)
	}
	if cfg.Endpoint != "minio.ml:9000" || cfg.AccessKey != "ak" || cfg.SecretKey != "sk" || cfg.UseSSL || cfg.Bucket != "models" {
		t.Errorf("config = %+v", cfg)
	}

	if _, err := MinIOConfigFromSecret(context.Background(), client, "other", "models"); err == nil {
		t.Error("expected error for missing secret")
	}
}

func TestObjectName(t *testing.T) {
	p := PathsFor("/var/models", "email-v2")
	if got := ObjectName("email-v2", p.Tokenizer); got != "models/email-v2/email-v2_tokenizer.json" {
		t.Errorf("ObjectName = %s", got)
	}
}
