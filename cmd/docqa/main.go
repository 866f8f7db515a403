// Package main is the docqa CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
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
	"github.com/opencampus/docqa/internal/server"
	"github.com/opencampus/docqa/internal/watcher"
	"github.com/opencampus/docqa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docqa/config.yaml"

// minDocumentChars is the shortest extracted text worth indexing. Files below
// this produce no chunks.
const minDocumentChars = 50

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "query":
		runQuery()
	case "ask":
		runAsk()
	case "add":
		runAdd()
	case "delete":
		runDelete()
	case "rebuild":
		runRebuild()
	case "docs":
		runDocs()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("docqa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// corpusComponents holds one corpus's initialized services.
type corpusComponents struct {
	Config    *config.CorpusConfig
	Manager   *index.Manager
	Catalog   *catalog.Catalog
	Retrieval *retrieval.Service
	Assistant *assistant.Service
}

// Components holds all initialized services.
type Components struct {
	Cache    *querycache.Cache
	Embedder embedding.Embedder
	Corpora  map[string]*corpusComponents
}

func (c *Components) Close() {
	for _, cc := range c.Corpora {
		if cc.Catalog != nil {
			// Also closes the title index.
			_ = cc.Catalog.Close()
		}
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	var cache *querycache.Cache
	if cfg.Cache.URL != "" {
		store, err := querycache.NewRedisStore(cfg.Cache.URL, logger)
		if err != nil {
			logger.Warn("redis unavailable, running without query cache", zap.Error(err))
		} else {
			cache = querycache.New(store, cfg.Cache.KeyPrefix, cfg.Cache.TTL,
				querycache.WithFingerprintTTL(cfg.Cache.FingerprintTTL),
				querycache.WithLogger(logger))
		}
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using mock embeddings",
			zap.String("model_path", cfg.Embedding.ModelPath),
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	if cfg.Extract.OCREnabled {
		logger.Warn("ocr enabled in config but no backend is compiled in; low-text pages are indexed as-is")
	}
	extractor := extract.NewExtractor(
		extract.WithMinWordsPerPage(cfg.Extract.MinWordsPerPage),
		extract.WithMaxFileSize(cfg.Extract.MaxFileSize),
	)

	pipeOpts := []pipeline.Option{
		pipeline.WithMaxWorkers(cfg.Extract.MaxWorkers),
		pipeline.WithMinTextLength(minDocumentChars),
	}
	if debug {
		pipeOpts = append(pipeOpts, pipeline.WithLogger(logger))
	}
	pipe := pipeline.New(extractor,
		chunker.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.MinChunkSize, cfg.Chunking.ChunkOverlap),
		pipeOpts...)

	var completer assistant.Completer
	if cfg.Assistant.Endpoint != "" {
		completer = assistant.NewHTTPCompleter(
			cfg.Assistant.Endpoint, cfg.Assistant.APIKey, cfg.Assistant.Model, cfg.Assistant.Timeout)
	}

	components := &Components{
		Cache:    cache,
		Embedder: embedder,
		Corpora:  make(map[string]*corpusComponents, len(cfg.Corpora)),
	}
	for i := range cfg.Corpora {
		cc := &cfg.Corpora[i]

		var titles *catalog.TitleIndex
		if cc.TitleIndex != "" {
			titles, err = catalog.NewTitleIndex(cc.TitleIndex)
			if err != nil {
				components.Close()
				return nil, fmt.Errorf("open title index for %s: %w", cc.Name, err)
			}
		}
		catOpts := []catalog.Option{catalog.WithLogger(logger)}
		if titles != nil {
			catOpts = append(catOpts, catalog.WithTitleIndex(titles))
		}
		cat, err := catalog.New(cc.CatalogPath, cc.DataDir, catOpts...)
		if err != nil {
			components.Close()
			return nil, fmt.Errorf("open catalog for %s: %w", cc.Name, err)
		}

		mgrOpts := []index.Option{
			index.WithLogger(logger),
			index.WithDocumentStore(cat),
			index.WithFileLister(&catalog.Lister{Catalog: cat, Extensions: cfg.Extract.Extensions}),
		}
		if cache != nil {
			mgrOpts = append(mgrOpts, index.WithFingerprintCache(cache))
		}
		var ret *retrieval.Service
		mgrOpts = append(mgrOpts, index.WithOnSwap(func(ctx context.Context) {
			if ret != nil {
				ret.Invalidate(ctx)
			}
		}))
		mgr := index.NewManager(cc.Name, cc.DataDir, cc.IndexDir,
			fingerprint.NewTracker(cfg.Extract.Extensions), pipe, embedder, mgrOpts...)
		ret = retrieval.New(mgr, cache,
			retrieval.WithLogger(logger),
			retrieval.WithLimits(cfg.Search.DefaultK, cfg.Search.MaxK, cfg.Search.MaxSources))

		var asst *assistant.Service
		if completer != nil {
			asst = assistant.New(ret, completer, cache,
				assistant.WithLogger(logger),
				assistant.WithRetrievalK(cfg.Search.DefaultK))
		}

		components.Corpora[cc.Name] = &corpusComponents{
			Config:    cc,
			Manager:   mgr,
			Catalog:   cat,
			Retrieval: ret,
			Assistant: asst,
		}
	}
	return components, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	for name, cc := range components.Corpora {
		if err := cc.Manager.Initialize(ctx); err != nil {
			logger.Fatal("Failed to initialize corpus index",
				zap.String("corpus", name), zap.Error(err))
		}
	}

	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.New(cfg.Extract.Extensions, watchOpts...)
	for name, cc := range components.Corpora {
		mgr := cc.Manager
		err := watchSvc.Watch(name, cc.Config.DataDir, func(ctx context.Context, corpus string) {
			if err := mgr.RebuildIfStale(ctx); err != nil {
				logger.Warn("rebuild after folder change failed",
					zap.String("corpus", corpus), zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("Failed to watch corpus folder",
				zap.String("corpus", name), zap.Error(err))
		}
	}
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}

	corpora := make(map[string]*server.Corpus, len(components.Corpora))
	for name, cc := range components.Corpora {
		corpora[name] = &server.Corpus{
			Manager:   cc.Manager,
			Catalog:   cc.Catalog,
			Retrieval: cc.Retrieval,
			Assistant: cc.Assistant,
		}
	}
	srv := server.New(cfg, corpora, components.Cache, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	watchSvc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// directComponents loads config and initializes components for commands that
// bypass the HTTP API.
func directComponents(configPath string) (*config.Config, *Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, components, logger
}

func corpusOrExit(components *Components, name string) *corpusComponents {
	cc, ok := components.Corpora[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown corpus: %s\n", name)
		os.Exit(1)
	}
	return cc
}

// queryArgsReorder moves flags that appear after the query to the front so
// flag.Parse sees them. The flag package stops at the first non-flag argument.
func queryArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = direct index access)`)
	corpus := fs.String("corpus", "teacher", "corpus to search")
	k := fs.Int("k", 0, "number of chunks to retrieve (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(queryArgsReorder(os.Args[2:]))

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: docqa query [flags] <question>")
		os.Exit(1)
	}

	var result models.RetrievalResult
	if *serverURL != "" {
		body, _ := json.Marshal(map[string]any{"query": query, "k": *k})
		if err := apiPost(*serverURL+"/api/v1/corpora/"+*corpus+"/search", body, &result); err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, components, _ := directComponents(*configPath)
		defer components.Close()
		cc := corpusOrExit(components, *corpus)
		ctx := context.Background()
		if err := cc.Manager.Initialize(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Index initialization failed: %v\n", err)
			os.Exit(1)
		}
		res, err := cc.Retrieval.Search(ctx, query, *k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		result = *res
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	case "text":
		if len(result.Chunks) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, sc := range result.Chunks {
			fmt.Printf("%2d. [%.3f] %s\n", i+1, sc.Score, sc.Chunk.Metadata.FileName)
			fmt.Printf("    %s\n", utils.Truncate(strings.ReplaceAll(sc.Chunk.Text, "\n", " "), 200))
		}
		if len(result.Sources) > 0 {
			fmt.Printf("\nSources: %s\n", strings.Join(result.Sources, ", "))
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = direct access)`)
	corpus := fs.String("corpus", "teacher", "corpus to answer from")
	session := fs.String("session", "cli", "conversation session ID")
	_ = fs.Parse(queryArgsReorder(os.Args[2:]))

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: docqa ask [flags] <question>")
		os.Exit(1)
	}

	var answer assistant.Answer
	if *serverURL != "" {
		body, _ := json.Marshal(map[string]string{"session": *session, "question": question})
		if err := apiPost(*serverURL+"/api/v1/corpora/"+*corpus+"/ask", body, &answer); err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, components, _ := directComponents(*configPath)
		defer components.Close()
		cc := corpusOrExit(components, *corpus)
		if cc.Assistant == nil {
			fmt.Fprintln(os.Stderr, "Assistant not configured: set assistant.endpoint in the config")
			os.Exit(1)
		}
		ctx := context.Background()
		if err := cc.Manager.Initialize(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Index initialization failed: %v\n", err)
			os.Exit(1)
		}
		res, err := cc.Assistant.Ask(ctx, *session, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		answer = *res
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(answer.Sources, ", "))
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = direct access)`)
	corpus := fs.String("corpus", "teacher", "corpus to add the document to")
	title := fs.String("title", "", "document title")
	description := fs.String("description", "", "document description")
	tags := fs.String("tags", "", "comma-separated tags")
	replaceID := fs.String("replace", "", "ID of a document to replace")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docqa add [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
		os.Exit(1)
	}

	var doc models.Document
	if *serverURL != "" {
		fields := map[string]string{
			"title":       *title,
			"description": *description,
			"tags":        *tags,
			"replace_id":  *replaceID,
		}
		if err := uploadViaHTTP(*serverURL, *corpus, filepath.Base(path), content, fields, &doc); err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, components, _ := directComponents(*configPath)
		defer components.Close()
		cc := corpusOrExit(components, *corpus)
		ctx := context.Background()
		if *replaceID != "" {
			if err := cc.Manager.DeleteDocument(ctx, *replaceID); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to remove replaced document: %v\n", err)
				os.Exit(1)
			}
		}
		var tagList []string
		for _, t := range strings.Split(*tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tagList = append(tagList, t)
			}
		}
		res, err := cc.Manager.AddDocument(ctx, models.UploadRequest{
			OriginalName: filepath.Base(path),
			Content:      content,
			Title:        *title,
			Description:  *description,
			Tags:         tagList,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			os.Exit(1)
		}
		doc = *res
	}
	fmt.Printf("Document added: %s (%s)\n", doc.ID, doc.OriginalName)
}

func uploadViaHTTP(serverURL, corpus, filename string, content []byte, fields map[string]string, out *models.Document) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return err
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	resp, err := http.Post(serverURL+"/api/v1/corpora/"+corpus+"/documents",
		w.FormDataContentType(), &buf)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = direct access)`)
	corpus := fs.String("corpus", "teacher", "corpus to delete from")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docqa delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	if *serverURL != "" {
		req, err := http.NewRequest(http.MethodDelete,
			*serverURL+"/api/v1/corpora/"+*corpus+"/documents/"+docID, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
			os.Exit(1)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Deletion failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
	} else {
		_, components, _ := directComponents(*configPath)
		defer components.Close()
		cc := corpusOrExit(components, *corpus)
		if err := cc.Manager.DeleteDocument(context.Background(), docID); err != nil {
			fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	corpus := fs.String("corpus", "", "corpus to rebuild (empty = all)")
	ifStale := fs.Bool("if-stale", false, "rebuild only when the folder fingerprint changed")
	_ = fs.Parse(os.Args[2:])

	_, components, _ := directComponents(*configPath)
	defer components.Close()

	ctx := context.Background()
	for name, cc := range components.Corpora {
		if *corpus != "" && name != *corpus {
			continue
		}
		var err error
		if *ifStale {
			err = cc.Manager.RebuildIfStale(ctx)
		} else {
			err = cc.Manager.Rebuild(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Rebuild failed for %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("Corpus %s: %d chunks indexed\n", name, cc.Manager.Size())
	}
}

func runDocs() {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	corpus := fs.String("corpus", "teacher", "corpus to list")
	search := fs.String("search", "", "search titles, descriptions, and tags instead of listing")
	_ = fs.Parse(os.Args[2:])

	_, components, _ := directComponents(*configPath)
	defer components.Close()
	cc := corpusOrExit(components, *corpus)

	ctx := context.Background()
	var docs []*models.Document
	var err error
	if *search != "" {
		docs, err = cc.Catalog.SearchMeta(ctx, *search, 50)
	} else {
		docs, err = cc.Catalog.ListActive(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing failed: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return
	}
	for _, d := range docs {
		fmt.Printf("%s  %8d  %s  %s\n",
			d.ID, d.SizeBytes, d.UploadTime.Format("2006-01-02 15:04"), d.OriginalName)
		if d.Title != "" && d.Title != d.OriginalName {
			fmt.Printf("%s  title: %s\n", strings.Repeat(" ", len(d.ID)), d.Title)
		}
	}
	fmt.Printf("\n%d document(s)\n", len(docs))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = direct catalog access)`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]any
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Decode response failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, components, _ := directComponents(*configPath)
		defer components.Close()
		ctx := context.Background()
		corpora := make(map[string]any, len(components.Corpora))
		for name, cc := range components.Corpora {
			info := map[string]any{"state": cc.Manager.State().String()}
			if stats, err := cc.Catalog.GetStats(ctx); err == nil {
				info["documents"] = stats
			}
			corpora[name] = info
		}
		status = map[string]any{"corpora": corpora}
	}

	switch *outputFormat {
	case "json", "text":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func apiPost(url string, body []byte, out any) error {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printUsage() {
	fmt.Println(`docqa - document indexing and retrieval for campus QA

Usage:
  docqa server [flags]              Start the HTTP server
  docqa query [flags] <question>    Retrieve chunks for a question
  docqa ask [flags] <question>      Ask the assistant a question
  docqa add [flags] <file>          Upload a document to a corpus
  docqa delete [flags] <id>         Delete a document from a corpus
  docqa rebuild [flags]             Rebuild corpus indexes
  docqa docs [flags]                List or search corpus documents
  docqa status [flags]              Show index and catalog status
  docqa version                     Show version
  docqa help                        Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/docqa/config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server ""
                     for direct access when the server is not running.
  --corpus string    Corpus name (default: teacher)

Examples:
  docqa server --debug
  docqa query when does the admissions office open
  docqa query --corpus student --k 10 --output json "exam schedule"
  docqa ask --session advising "what documents do I need to enroll?"
  docqa add --title "Campus guide" --tags guide,campus guide.pdf
  docqa add --replace 6e1f... updated-guide.pdf
  docqa delete 6e1f...
  docqa rebuild --if-stale
  docqa docs --search exam
  docqa status`)
}
