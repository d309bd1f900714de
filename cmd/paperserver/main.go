package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"papergen"

	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
)

const maxRecentPapers = 10

// Server exposes the pipeline and its surrounding document and paper
// management over a JSON API.
type Server struct {
	cfg    *papergen.Config
	db     *papergen.DB
	client *openai.Client
	index  *papergen.PineconeIndex
	ingest *papergen.Ingestor
	store  *sessions.CookieStore
}

func main() {
	papergen.SetVerbose(true)

	_ = godotenv.Load()

	cfg, err := papergen.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	db, err := papergen.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	client := openai.NewClient(cfg.OpenAIAPIKey)

	var index *papergen.PineconeIndex
	var ingestor *papergen.Ingestor
	if cfg.PineconeHost != "" && cfg.PineconeAPIKey != "" {
		embedder := papergen.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
		index = papergen.NewPineconeIndex(cfg.PineconeHost, cfg.PineconeAPIKey, embedder)
		ingestor = papergen.NewIngestor(index, embedder)
	} else {
		log.Println("Pinecone not configured: papers are generated without syllabus context, document endpoints disabled")
	}

	server := &Server{
		cfg:    cfg,
		db:     db,
		client: client,
		index:  index,
		ingest: ingestor,
		store:  sessions.NewCookieStore([]byte(cfg.SessionKey)),
	}

	http.HandleFunc("/api/papers", server.handlePapers)
	http.HandleFunc("/api/papers/", server.handlePaper)
	http.HandleFunc("/api/curriculum", server.handleCurriculum)
	http.HandleFunc("/api/documents", server.handleDocuments)
	http.HandleFunc("/api/documents/", server.handleDocument)
	http.HandleFunc("/api/stats", server.handleStats)

	log.Printf("Starting paper server on %s", cfg.ServerPort)
	log.Fatal(http.ListenAndServe(cfg.ServerPort, nil))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handlePapers serves POST /api/papers (run the pipeline) and GET
// /api/papers (list stored papers).
func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleGenerate(w, r)
	case http.MethodGet:
		papers, err := s.db.ListPapers(50)
		if err != nil {
			log.Printf("Failed to list papers: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to list papers")
			return
		}
		writeJSON(w, http.StatusOK, papers)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var inputs papergen.UserInputs
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := inputs.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// One pipeline per run so each run gets its own trace log.
	var index papergen.ContextIndex
	if s.index != nil {
		index = s.index
	}
	pipeline := papergen.NewPipeline(s.client, index, s.cfg.ChatModel)
	pipeline.SetCallTimeout(s.cfg.LLMTimeout)
	pipeline.SetLogDir(s.cfg.LogDir)

	state := pipeline.Run(r.Context(), inputs)

	if err := s.db.SavePaper(state); err != nil {
		log.Printf("Failed to store paper %s: %v", state.RunID, err)
	}

	s.rememberPaper(w, r, state.RunID)
	writeJSON(w, http.StatusOK, state)
}

// rememberPaper keeps the most recent paper IDs in the browser session.
func (s *Server) rememberPaper(w http.ResponseWriter, r *http.Request, paperID string) {
	session, _ := s.store.Get(r, "papergen-session")

	recent, _ := session.Values["recent_papers"].([]string)
	recent = append(recent, paperID)
	if len(recent) > maxRecentPapers {
		recent = recent[len(recent)-maxRecentPapers:]
	}
	session.Values["recent_papers"] = recent

	if err := session.Save(r, w); err != nil {
		log.Printf("Failed to save session: %v", err)
	}
}

// handlePaper serves GET /api/papers/{id} and GET
// /api/papers/{id}/download?format=txt|tex.
func (s *Server) handlePaper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/papers/")
	parts := strings.Split(path, "/")
	paperID := parts[0]
	if paperID == "" {
		writeError(w, http.StatusBadRequest, "paper id required")
		return
	}

	paper, err := s.db.GetPaper(paperID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if len(parts) > 1 && parts[1] == "download" {
		s.handleDownload(w, r, paper)
		return
	}

	questions, err := s.db.GetPaperQuestions(paperID)
	if err != nil {
		log.Printf("Failed to get questions for %s: %v", paperID, err)
		writeError(w, http.StatusInternalServerError, "failed to load questions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paper":     paper,
		"questions": questions,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, paper *papergen.PaperRecord) {
	format := r.URL.Query().Get("format")

	switch format {
	case "", "txt":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", paper.ID+".txt"))
		fmt.Fprint(w, paper.Output)
	case "tex":
		w.Header().Set("Content-Type", "application/x-tex")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", paper.ID+".tex"))
		fmt.Fprint(w, paper.OutputLaTeX)
	default:
		writeError(w, http.StatusBadRequest, "unsupported format: "+format)
	}
}

func (s *Server) handleCurriculum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, papergen.CurriculumOptions())
}

type ingestRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Class    string `json:"class"`
	Subject  string `json:"subject"`
	Chapter  string `json:"chapter"`
}

// handleDocuments serves POST /api/documents (ingest) and GET
// /api/documents (list ingested documents).
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "vector store not configured")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Filename == "" || req.Content == "" {
			writeError(w, http.StatusBadRequest, "filename and content are required")
			return
		}

		result, err := s.ingest.IngestDocument(r.Context(), req.Filename, req.Content, req.Class, req.Subject, req.Chapter)
		if err != nil {
			log.Printf("Failed to ingest %s: %v", req.Filename, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)

	case http.MethodGet:
		docs, err := s.index.ListDocuments(r.Context())
		if err != nil {
			log.Printf("Failed to list documents: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to list documents")
			return
		}
		if docs == nil {
			docs = []papergen.DocumentInfo{}
		}
		writeJSON(w, http.StatusOK, docs)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleDocument serves DELETE /api/documents/{file_hash}.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "vector store not configured")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	fileHash := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if fileHash == "" {
		writeError(w, http.StatusBadRequest, "file hash required")
		return
	}

	deleted, err := s.index.DeleteDocument(r.Context(), fileHash)
	if err != nil {
		log.Printf("Failed to delete document %s: %v", fileHash, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"vectors_deleted": deleted})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.index == nil {
		writeJSON(w, http.StatusOK, papergen.IndexStats{})
		return
	}

	stats, err := s.index.Stats(r.Context())
	if err != nil {
		log.Printf("Failed to get index stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
