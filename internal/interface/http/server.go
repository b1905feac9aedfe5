package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	chatapp "github.com/jinford/doc-chat/internal/module/chat/application"
	chatdomain "github.com/jinford/doc-chat/internal/module/chat/domain"
	indexapp "github.com/jinford/doc-chat/internal/module/index/application"
	"github.com/jinford/doc-chat/internal/module/ingest/adapter/loader"
	ingestdomain "github.com/jinford/doc-chat/internal/module/ingest/domain"
	sessiondomain "github.com/jinford/doc-chat/internal/module/session/domain"
)

const maxUploadBytes = 32 << 20 // 32MiB

// Server はドキュメントチャットのHTTP APIを提供します
type Server struct {
	index    *indexapp.IndexService
	chat     *chatapp.ChatService
	sessions sessiondomain.Store
	loader   *loader.Loader
	log      *slog.Logger

	httpServer *http.Server
}

// NewServer は新しいServerを作成します
func NewServer(
	addr string,
	index *indexapp.IndexService,
	chat *chatapp.ChatService,
	sessions sessiondomain.Store,
	docLoader *loader.Loader,
	log *slog.Logger,
) *Server {
	s := &Server{
		index:    index,
		chat:     chat,
		sessions: sessions,
		loader:   docLoader,
		log:      log,
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/history", s.handleSessionHistory).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", s.handleSessionClear).Methods(http.MethodDelete)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler はルーティング済みのハンドラーを返します
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe はHTTPサーバーを起動します
func (s *Server) ListenAndServe() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown はHTTPサーバーを停止します
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// === Handlers ===

type uploadResponse struct {
	SessionID string `json:"session_id"`
	Indexed   bool   `json:"indexed"`
	Message   string `json:"message,omitempty"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

type historyResponse struct {
	SessionID string                  `json:"session_id"`
	Messages  []sessiondomain.Message `json:"messages"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload はアップロードされたファイル群から新しいセッションを作成し、
// 分割・ベクトル化してインデックスを構築します。
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	files := make([]loader.UploadedFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read uploaded file")
			return
		}
		defer f.Close()
		files = append(files, loader.UploadedFile{Name: h.Filename, Reader: f})
	}

	sessionID := sessiondomain.NewID()

	docs, err := s.loader.SaveAndLoad(sessionID, files)
	if err != nil {
		s.log.Error("Failed to save uploaded files", "error", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	added, err := s.index.AddDocuments(r.Context(), sessionID, docs)
	if err != nil {
		if errors.Is(err, ingestdomain.ErrInvalidChunkConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("Failed to index documents", "sessionID", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	if err := s.sessions.Create(r.Context(), sessionID); err != nil {
		s.log.Error("Failed to create session history", "sessionID", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	s.log.Info("Upload indexed", "sessionID", sessionID, "files", len(headers), "chunks", added)
	writeJSON(w, http.StatusOK, uploadResponse{
		SessionID: sessionID,
		Indexed:   true,
		Message:   "Indexing complete with MMR",
	})
}

// handleChat はセッションの会話履歴を踏まえた回答を生成します
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.chat.LoadRetriever(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, chatdomain.ErrSessionNotFound) {
			writeError(w, http.StatusBadRequest, "Invalid or expired session_id. Re-upload documents.")
			return
		}
		s.log.Error("Failed to load retriever", "sessionID", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Chat failed")
		return
	}

	answer, err := s.chat.Invoke(r.Context(), req.SessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chatdomain.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "Message cannot be empty")
		default:
			s.log.Error("Chat turn failed", "sessionID", req.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Chat failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: answer})
}

// handleSessionHistory はセッションの会話履歴を返します
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	found, err := s.sessions.Find(r.Context(), sessionID)
	if err != nil {
		s.log.Error("Failed to load session history", "sessionID", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if found.IsAbsent() {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		SessionID: sessionID,
		Messages:  found.MustGet(),
	})
}

// handleSessionClear はセッションの会話履歴を削除します
func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.sessions.Clear(r.Context(), sessionID); err != nil {
		s.log.Error("Failed to clear session", "sessionID", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// corsMiddleware は全オリジンを許可するCORSヘッダを付与します
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
