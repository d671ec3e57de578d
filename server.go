package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"i4.energy/across/cellat/capability"
	"i4.energy/across/cellat/modem"
)

// Modem is the part of *modem.Modem the HTTP API uses.
type Modem interface {
	SendSMS(ctx context.Context, recipient, message string) (int, error)
	SignalQuality(ctx context.Context) (capability.SignalQuality, error)
	DeviceInfo(ctx context.Context) (capability.DeviceInfo, error)
	Registration(ctx context.Context) (capability.RegistrationStatus, error)
	Direct(ctx context.Context, cmd string, timeout time.Duration) (capability.DirectResponse, error)
}

var _ Modem = (*modem.Modem)(nil)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *zap.Logger
	Modem  Modem
	// Metrics serves /metrics when set
	Metrics http.Handler
	// Token, when set, must be given as a bearer token
	Token string
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /sms", s.authorized(s.handleSMS))
	mux.HandleFunc("POST /at", s.authorized(s.handleAT))
	mux.HandleFunc("GET /signal", s.authorized(s.handleSignal))
	mux.HandleFunc("GET /info", s.authorized(s.handleInfo))
	mux.HandleFunc("GET /registration", s.authorized(s.handleRegistration))
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	mux.ServeHTTP(w, r)
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.Token {
				s.sendError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// modemError maps a modem failure to an HTTP status.
func (s *Server) modemError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, modem.ErrBusy):
		status = http.StatusServiceUnavailable
	case errors.Is(err, modem.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, capability.ErrBadPayload):
		status = http.StatusBadRequest
	case errors.Is(err, capability.ErrPowerState):
		status = http.StatusConflict
	}
	s.Logger.Error("Modem request failed", zap.String("op", op), zap.Error(err))
	s.sendError(w, err.Error(), status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	ref, err := s.Modem.SendSMS(r.Context(), req.To, req.Message)
	if err != nil {
		s.modemError(w, "sms", err)
		return
	}

	s.Logger.Info("SMS sent successfully", zap.String("to", req.To), zap.Int("message_length", len(req.Message)), zap.Int("reference", ref))
	s.sendJSON(w, capability.SMSResult{Reference: ref})
}

// handleAT passes a raw AT command through to the modem
func (s *Server) handleAT(w http.ResponseWriter, r *http.Request) {
	type ATRequest struct {
		Command   string `json:"command"`
		TimeoutMS int    `json:"timeout_ms"`
	}

	var req ATRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		s.sendError(w, "'command' field is required", http.StatusBadRequest)
		return
	}

	resp, err := s.Modem.Direct(r.Context(), req.Command, time.Duration(req.TimeoutMS)*time.Millisecond)
	if err != nil {
		s.modemError(w, "at", err)
		return
	}
	s.sendJSON(w, resp)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	sq, err := s.Modem.SignalQuality(r.Context())
	if err != nil {
		s.modemError(w, "signal", err)
		return
	}

	type SignalResponse struct {
		capability.SignalQuality
		DBm   int  `json:"dbm,omitempty"`
		Known bool `json:"known"`
	}
	s.sendJSON(w, SignalResponse{SignalQuality: sq, DBm: sq.DBm(), Known: sq.Known()})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.Modem.DeviceInfo(r.Context())
	if err != nil {
		s.modemError(w, "info", err)
		return
	}
	s.sendJSON(w, info)
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := s.Modem.Registration(r.Context())
	if err != nil {
		s.modemError(w, "registration", err)
		return
	}

	type RegistrationResponse struct {
		capability.RegistrationStatus
		Registered bool `json:"registered"`
	}
	s.sendJSON(w, RegistrationResponse{RegistrationStatus: reg, Registered: reg.Registered()})
}
