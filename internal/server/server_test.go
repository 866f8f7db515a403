package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/assistant"
	"github.com/opencampus/docqa/internal/catalog"
	"github.com/opencampus/docqa/internal/chunker"
	"github.com/opencampus/docqa/internal/config"
	"github.com/opencampus/docqa/internal/embedding"
	"github.com/opencampus/docqa/internal/extract"
	"github.com/opencampus/docqa/internal/fingerprint"
	"github.com/opencampus/docqa/internal/index"
	"github.com/opencampus/docqa/internal/models"
	"github.com/opencampus/docqa/internal/pipeline"
	"github.com/opencampus/docqa/internal/querycache"
	"github.com/opencampus/docqa/internal/retrieval"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	dataDir := t.TempDir()
	indexDir := t.TempDir()
	stateDir := t.TempDir()

	titles, err := catalog.NewTitleIndex(filepath.Join(stateDir, "titles.bleve"))
	if err != nil {
		t.Fatalf("NewTitleIndex: %v", err)
	}

	cat, err := catalog.New(filepath.Join(stateDir, "catalog.db"), dataDir,
		catalog.WithTitleIndex(titles))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	qc := querycache.New(querycache.NewMemoryStore(), "docqa", time.Hour)

	extensions := []string{".txt"}
	pipe := pipeline.New(extract.NewExtractor(), chunker.NewChunker(512, 256, 150))
	emb := embedding.NewMockEmbedder(64)

	var ret *retrieval.Service
	mgr := index.NewManager("teacher", dataDir, indexDir,
		fingerprint.NewTracker(extensions), pipe, emb,
		index.WithDocumentStore(cat),
		index.WithFileLister(&catalog.Lister{Catalog: cat, Extensions: extensions}),
		index.WithFingerprintCache(qc),
		index.WithOnSwap(func(ctx context.Context) {
			if ret != nil {
				ret.Invalidate(ctx)
			}
		}))
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	ret = retrieval.New(mgr, qc)

	asst := assistant.New(ret, assistant.CompleterFunc(
		func(ctx context.Context, prompt string) (string, error) {
			return "stub answer", nil
		}), qc)

	cfg := &config.Config{
		Extract:  config.ExtractConfig{MaxFileSize: 1024, Extensions: extensions},
		Chunking: config.ChunkingConfig{ChunkSize: 512, ChunkOverlap: 150},
		Search:   config.SearchConfig{DefaultK: 5},
	}
	srv := New(cfg, map[string]*Corpus{
		"teacher": {Manager: mgr, Catalog: cat, Retrieval: ret, Assistant: asst},
	}, qc, zap.NewNop())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func upload(t *testing.T, baseURL, filename string, content []byte, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(baseURL+"/api/v1/corpora/teacher/documents",
		w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestSearch_UnknownCorpus(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/corpora/nope/search", searchRequest{Query: "anything"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSearch_BadRequest(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/corpora/teacher/search",
		"application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/corpora/teacher/search", searchRequest{Query: "  "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank query: status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadSearchDelete(t *testing.T) {
	ts := newTestServer(t)

	resp := upload(t, ts.URL, "info.txt",
		[]byte("The admissions office opens at nine in the morning."), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	doc := decode[models.Document](t, resp)
	if doc.ID == "" || doc.OriginalName != "info.txt" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	resp = postJSON(t, ts.URL+"/api/v1/corpora/teacher/search",
		searchRequest{Query: "when does the admissions office open"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	result := decode[models.RetrievalResult](t, resp)
	if len(result.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if len(result.Sources) != 1 || result.Sources[0] != "info.txt" {
		t.Errorf("sources = %v, want [info.txt]", result.Sources)
	}

	req, err := http.NewRequest(http.MethodDelete,
		ts.URL+"/api/v1/corpora/teacher/documents/"+doc.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/corpora/teacher/search",
		searchRequest{Query: "when does the admissions office open"})
	result = decode[models.RetrievalResult](t, resp)
	if len(result.Chunks) != 0 {
		t.Errorf("chunks after delete = %d, want 0", len(result.Chunks))
	}
}

func TestUpload_TooLarge(t *testing.T) {
	ts := newTestServer(t)
	resp := upload(t, ts.URL, "big.txt", bytes.Repeat([]byte("a"), 2048), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestUpload_Replace(t *testing.T) {
	ts := newTestServer(t)

	resp := upload(t, ts.URL, "old.txt", []byte("the old cafeteria menu"), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first upload status = %d", resp.StatusCode)
	}
	oldDoc := decode[models.Document](t, resp)

	resp = upload(t, ts.URL, "new.txt", []byte("the new cafeteria menu"),
		map[string]string{"replace_id": oldDoc.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("replace upload status = %d", resp.StatusCode)
	}
	newDoc := decode[models.Document](t, resp)
	if newDoc.ID == oldDoc.ID {
		t.Error("replacement should mint a new document")
	}

	getResp, err := http.Get(ts.URL + "/api/v1/corpora/teacher/documents/" + oldDoc.ID)
	if err != nil {
		t.Fatal(err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("replaced document status = %d, want 404", getResp.StatusCode)
	}

	listResp, err := http.Get(ts.URL + "/api/v1/corpora/teacher/documents")
	if err != nil {
		t.Fatal(err)
	}
	list := decode[struct {
		Count int `json:"count"`
	}](t, listResp)
	if list.Count != 1 {
		t.Errorf("active documents = %d, want 1", list.Count)
	}
}

func TestUpload_ReplaceMissing(t *testing.T) {
	ts := newTestServer(t)
	resp := upload(t, ts.URL, "doc.txt", []byte("content"),
		map[string]string{"replace_id": "no-such-id"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDocumentSearch(t *testing.T) {
	ts := newTestServer(t)

	resp := upload(t, ts.URL, "schedule.txt", []byte("exam dates and rooms"),
		map[string]string{"title": "Exam schedule", "tags": "exams, spring"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	searchResp, err := http.Get(ts.URL + "/api/v1/corpora/teacher/documents/search?q=exam")
	if err != nil {
		t.Fatal(err)
	}
	if searchResp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", searchResp.StatusCode)
	}
	found := decode[struct {
		Count     int               `json:"count"`
		Documents []models.Document `json:"documents"`
	}](t, searchResp)
	if found.Count != 1 || found.Documents[0].Title != "Exam schedule" {
		t.Errorf("unexpected result: %+v", found)
	}
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t)

	resp := upload(t, ts.URL, "info.txt", []byte("Tuition is due on the first of September."), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	ask := func() *assistant.Answer {
		resp := postJSON(t, ts.URL+"/api/v1/corpora/teacher/ask",
			askRequest{Session: "s1", Question: "When is tuition due?"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("ask status = %d", resp.StatusCode)
		}
		a := decode[assistant.Answer](t, resp)
		return &a
	}

	first := ask()
	if first.Text != "stub answer" {
		t.Errorf("answer = %q", first.Text)
	}
	if first.Cached {
		t.Error("first answer should not be cached")
	}
	if len(first.Sources) != 1 || first.Sources[0] != "info.txt" {
		t.Errorf("sources = %v", first.Sources)
	}

	second := ask()
	if !second.Cached {
		t.Error("repeated question should hit the answer cache")
	}
	if len(second.Sources) != 1 || second.Sources[0] != "info.txt" {
		t.Errorf("cached answer should carry sources, got %v", second.Sources)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[struct {
		Corpora map[string]struct {
			State  string `json:"state"`
			Chunks int    `json:"chunks"`
		} `json:"corpora"`
		Cache map[string]int64 `json:"cache"`
	}](t, resp)

	teacher, ok := body.Corpora["teacher"]
	if !ok {
		t.Fatal("missing teacher corpus in status")
	}
	if teacher.State != "ready" {
		t.Errorf("state = %q, want ready", teacher.State)
	}
	if body.Cache == nil {
		t.Error("missing cache counters")
	}
}
