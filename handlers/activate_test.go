package handlers

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/loiht2/ml-platform-email-classifier/backend/classifier"
	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/monitor"
	"github.com/loiht2/ml-platform-email-classifier/backend/nn"
	"github.com/loiht2/ml-platform-email-classifier/backend/registry"
	"github.com/loiht2/ml-platform-email-classifier/backend/repository"
	"github.com/loiht2/ml-platform-email-classifier/backend/storage"
	"github.com/loiht2/ml-platform-email-classifier/backend/textproc"
	"github.com/loiht2/ml-platform-email-classifier/backend/trainer"
)

type fakeCatalog struct {
	known     map[string]bool
	activated []string
}

func (f *fakeCatalog) ListModels(context.Context) ([]models.CatalogEntry, error) {
	var out []models.CatalogEntry
	for name := range f.known {
		out = append(out, models.CatalogEntry{Name: name})
	}
	return out, nil
}

func (f *fakeCatalog) ActivateModel(_ context.Context, name string) error {
	if !f.known[name] {
		return repository.ErrModelNotFound
	}
	f.activated = append(f.activated, name)
	return nil
}

func (f *fakeCatalog) ListArchivedJobs(context.Context, int) ([]models.JobSummary, error) {
	return nil, nil
}

type fakePublisher struct {
	names []string
}

func (p *fakePublisher) SetActiveModel(_ context.Context, name string) error {
	p.names = append(p.names, name)
	return nil
}

// copyFetcher copies a saved model from another directory
type copyFetcher struct {
	src   string
	calls int
}

func (f *copyFetcher) FetchModel(_ context.Context, name, dir string) (storage.ArtifactPaths, error) {
	f.calls++
	from, to := storage.PathsFor(f.src, name), storage.PathsFor(dir, name)
	for i, p := range from.All() {
		data, err := os.ReadFile(p)
		if err != nil {
			return to, err
		}
		if err := os.WriteFile(to.All()[i], data, 0o644); err != nil {
			return to, err
		}
	}
	return to, nil
}

// writeModel saves a small untrained model under dir
func writeModel(t *testing.T, dir, name string) {
	t.Helper()
	tok := textproc.NewTokenizer(100)
	tok.Fit([]string{"invoice due today", "lunch on friday"})
	enc := &textproc.LabelEncoder{}
	enc.Fit([]string{"billing", "social"})
	m, err := nn.New(nn.Config{Architecture: nn.CNN, VocabSize: tok.VocabularySize(), MaxLen: 50, NumClasses: 2, EmbeddingDim: 4, Filters: 4, KernelSize: 3})
	if err != nil {
		t.Fatalf("nn.New: %v", err)
	}
	md := models.Metadata{ModelType: "CNN", MaxLen: 50, NumClasses: 2, Classes: enc.Classes}
	a := &models.Artifacts{Model: m, Tokenizer: tok, LabelEncoder: enc}
	if err := storage.WriteArtifacts(storage.PathsFor(dir, name), a, md); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
}

type catalogServer struct {
	*testServer
	catalog   *fakeCatalog
	publisher *fakePublisher
	fetcher   *copyFetcher
}

func newCatalogServer(t *testing.T, known ...string) *catalogServer {
	t.Helper()
	reg := registry.New()
	mon := monitor.NewJobMonitor(reg, trainer.New(), nil, time.Hour)
	t.Cleanup(mon.Stop)

	out := t.TempDir()
	cs := &catalogServer{
		catalog:   &fakeCatalog{known: map[string]bool{}},
		publisher: &fakePublisher{},
		fetcher:   &copyFetcher{src: t.TempDir()},
	}
	for _, name := range known {
		cs.catalog.known[name] = true
	}
	svc := classifier.New()
	h := NewHandler(Dependencies{
		Registry:   reg,
		Monitor:    mon,
		Gateway:    storage.NewGateway(reg, out),
		Classifier: svc,
		Loader:     &classifier.Loader{ModelDir: out, Fetcher: cs.fetcher},
		Catalog:    cs.catalog,
		Publisher:  cs.publisher,
	})
	cs.testServer = &testServer{
		router:     NewRouter(h, RouterOptions{APIKey: testAPIKey, MaxBodyBytes: 1 << 20}),
		registry:   reg,
		classifier: svc,
		outputDir:  out,
	}
	return cs
}

func (cs *catalogServer) assertNothingActivated(t *testing.T) {
	t.Helper()
	if len(cs.catalog.activated) != 0 || len(cs.publisher.names) != 0 || cs.classifier.Loaded() {
		t.Errorf("state changed: catalog %v, published %v, loaded %v",
			cs.catalog.activated, cs.publisher.names, cs.classifier.Loaded())
	}
}

func TestActivateLocalModel(t *testing.T) {
	cs := newCatalogServer(t, "email-v1")
	writeModel(t, cs.outputDir, "email-v1")

	w := cs.do(t, http.MethodPost, "/api/v1/models/email-v1/activate", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d (%s)", w.Code, w.Body.String())
	}
	if len(cs.catalog.activated) != 1 || len(cs.publisher.names) != 1 || cs.publisher.names[0] != "email-v1" {
		t.Errorf("catalog %v, published %v", cs.catalog.activated, cs.publisher.names)
	}
	if info := cs.classifier.Info(); !info.Loaded || info.Source != "catalog:email-v1" {
		t.Errorf("info = %+v", info)
	}
	if cs.fetcher.calls != 0 {
		t.Errorf("fetcher called %d times for a local model", cs.fetcher.calls)
	}
}

func TestActivateFetchesRemoteModel(t *testing.T) {
	cs := newCatalogServer(t, "email-v2")
	writeModel(t, cs.fetcher.src, "email-v2")

	w := cs.do(t, http.MethodPost, "/api/v1/models/email-v2/activate", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d (%s)", w.Code, w.Body.String())
	}
	if cs.fetcher.calls != 1 || !cs.classifier.Loaded() {
		t.Errorf("fetch calls %d, loaded %v", cs.fetcher.calls, cs.classifier.Loaded())
	}
}

func TestActivateMissingModelChangesNothing(t *testing.T) {
	cs := newCatalogServer(t, "email-v3")

	w := cs.do(t, http.MethodPost, "/api/v1/models/email-v3/activate", nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("activate = %d, want 404", w.Code)
	}
	cs.assertNothingActivated(t)
}

func TestActivateCorruptModelChangesNothing(t *testing.T) {
	cs := newCatalogServer(t, "email-v4")
	writeModel(t, cs.outputDir, "email-v4")
	if err := os.WriteFile(storage.PathsFor(cs.outputDir, "email-v4").Model, []byte(`{"format":"`+nn.SnapshotFormat+`","config":{"architecture":"RNN","vocab_size":7,"max_len":50,"num_classes":2,"units":-3}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w := cs.do(t, http.MethodPost, "/api/v1/models/email-v4/activate", nil, true)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("activate = %d, want 500", w.Code)
	}
	cs.assertNothingActivated(t)
}

func TestActivateUnknownCatalogEntry(t *testing.T) {
	cs := newCatalogServer(t)
	writeModel(t, cs.outputDir, "stray")

	w := cs.do(t, http.MethodPost, "/api/v1/models/stray/activate", nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("activate = %d, want 404", w.Code)
	}
	cs.assertNothingActivated(t)
}
