// Package service exposes the dispatcher over HTTP for the always-on
// service mode. Each handler is a thin adapter: it translates the request
// body into the same operation envelope the job and worker modes consume.
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-agent/internal/dispatcher"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	// maxUploadBytes caps reference-sample uploads.
	maxUploadBytes = 32 << 20

	readHeaderTimeout = 10 * time.Second
	shutdownDrain     = 5 * time.Second
)

// Server serves the voice agent's HTTP API.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	httpServer *http.Server
	log        *logger.Logger
}

// New creates an HTTP server bound to addr.
func New(disp *dispatcher.Dispatcher, addr string, log *logger.Logger) *Server {
	server := &Server{
		dispatcher: disp,
		httpServer: nil,
		log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /synthesize", server.handleSynthesize)
	mux.HandleFunc("POST /clone", server.handleClone)
	mux.HandleFunc("POST /synthesize-with-clone", server.handleSynthesizeWithClone)
	mux.HandleFunc("GET /voices", server.handleListVoices)
	mux.HandleFunc("GET /healthz", server.handleHealth)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return server
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.log.Info("HTTP service listening on %s", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var input dispatcher.Input

	err := json.NewDecoder(r.Body).Decode(&input)
	if err != nil {
		s.writeError(w, dispatcher.ErrorBody{
			Code:    dispatcher.CodeValidation,
			Message: "request body is not valid JSON",
		})

		return
	}

	input.Operation = dispatcher.OpSynthesize
	s.dispatch(w, r, input)
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	input, err := s.decodeCloneInput(r)
	if err != nil {
		s.writeError(w, dispatcher.ErrorBody{
			Code:    dispatcher.CodeValidation,
			Message: err.Error(),
		})

		return
	}

	input.Operation = dispatcher.OpClone
	s.dispatch(w, r, input)
}

func (s *Server) handleSynthesizeWithClone(w http.ResponseWriter, r *http.Request) {
	input, err := s.decodeCloneInput(r)
	if err != nil {
		s.writeError(w, dispatcher.ErrorBody{
			Code:    dispatcher.CodeValidation,
			Message: err.Error(),
		})

		return
	}

	input.Operation = dispatcher.OpSynthesizeWithClone
	s.dispatch(w, r, input)
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	input := dispatcher.Input{
		Operation:   dispatcher.OpListVoices,
		Text:        "",
		Voice:       "",
		VoiceID:     "",
		Speed:       0,
		Language:    "",
		Backend:     r.URL.Query().Get("backend"),
		AudioBase64: "",
		AudioURL:    "",
		AudioKey:    "",
		MakeDefault: false,
	}

	s.dispatch(w, r, input)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(http.StatusOK)

	_, err := w.Write([]byte(`{"status":"ok"}`))
	if err != nil {
		s.log.Warn("Failed to write health response: %v", err)
	}
}

// decodeCloneInput accepts either a JSON body or a multipart form with an
// "audio" file field.
func (s *Server) decodeCloneInput(r *http.Request) (dispatcher.Input, error) {
	var input dispatcher.Input

	contentType := r.Header.Get(headerContentType)
	if contentType == "" || strings.HasPrefix(contentType, contentTypeJSON) {
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			return dispatcher.Input{}, errors.New("request body is not valid JSON")
		}

		return input, nil
	}

	err := r.ParseMultipartForm(maxUploadBytes)
	if err != nil {
		return dispatcher.Input{}, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		return dispatcher.Input{}, errors.New("multipart form must carry an 'audio' file")
	}

	defer func() {
		_ = file.Close()
	}()

	sample, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return dispatcher.Input{}, fmt.Errorf("failed to read uploaded audio: %w", err)
	}

	input.AudioBase64 = base64.StdEncoding.EncodeToString(sample)
	input.Text = r.FormValue("text")
	input.VoiceID = r.FormValue("voice_id")
	input.Backend = r.FormValue("backend")
	input.Language = r.FormValue("language")
	input.MakeDefault = r.FormValue("make_default") == "true"

	speed := r.FormValue("speed")
	if speed != "" {
		_, scanErr := fmt.Sscanf(speed, "%f", &input.Speed)
		if scanErr != nil {
			return dispatcher.Input{}, errors.New("'speed' form value is not a number")
		}
	}

	return input, nil
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, input dispatcher.Input) {
	payload, jobErr := s.dispatcher.Dispatch(r.Context(), input)
	if jobErr != nil {
		s.writeError(w, *jobErr)

		return
	}

	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeError(w http.ResponseWriter, body dispatcher.ErrorBody) {
	s.writeJSON(w, dispatcher.HTTPStatus(body.Code), dispatcher.ErrorResponse{Error: body})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.log.Error("Failed to encode response: %v", err)
	}
}
