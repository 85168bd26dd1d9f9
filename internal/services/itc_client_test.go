package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orionsky/obsdb-backend/internal/types"
)

func newTestItcClient(t *testing.T, handler http.Handler) (ItcClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Setenv("ITC_URL", server.URL)
	client, err := NewItcClient(testLogger(t))
	if err != nil {
		t.Fatalf("init client: %v", err)
	}
	return client, server
}

func itcTestInput() *ItcInput {
	return &ItcInput{
		Observation: &types.Observation{Title: "science"},
		Targets:     []*types.Target{{Name: "HD 1", RA: 1, Dec: 2}},
	}
}

func TestItcClientRequiresURL(t *testing.T) {
	t.Setenv("ITC_URL", "")
	if _, err := NewItcClient(testLogger(t)); err == nil {
		t.Fatal("expected error without ITC_URL")
	}
}

func TestItcClientParsesResult(t *testing.T) {
	client, _ := newTestItcClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calculate" {
			t.Errorf("path = %s; want /calculate", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"itc_result": {"snr": 12.5}, "execution_digest": {"atoms": 4}}`))
	}))

	result, err := client.Calculate(context.Background(), itcTestInput())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if string(result.ItcResult) != `{"snr": 12.5}` {
		t.Errorf("itc_result = %s", result.ItcResult)
	}
	if string(result.ExecutionDigest) != `{"atoms": 4}` {
		t.Errorf("execution_digest = %s", result.ExecutionDigest)
	}
}

func TestItcClientServerErrorIsRecoverable(t *testing.T) {
	client, _ := newTestItcClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "itc overloaded", http.StatusBadGateway)
	}))

	_, err := client.Calculate(context.Background(), itcTestInput())
	var calcErr *CalcError
	if !errors.As(err, &calcErr) {
		t.Fatalf("err = %v; want *CalcError", err)
	}
	if !calcErr.Recoverable || calcErr.Status != http.StatusBadGateway {
		t.Fatalf("calcErr = %+v; want recoverable 502", calcErr)
	}
}

func TestItcClientRejectionIsUnrecoverable(t *testing.T) {
	client, _ := newTestItcClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "central wavelength outside grating range", http.StatusUnprocessableEntity)
	}))

	_, err := client.Calculate(context.Background(), itcTestInput())
	var calcErr *CalcError
	if !errors.As(err, &calcErr) {
		t.Fatalf("err = %v; want *CalcError", err)
	}
	if calcErr.Recoverable {
		t.Fatalf("calcErr = %+v; input rejections must not be retried", calcErr)
	}
	if calcErr.Detail != "central wavelength outside grating range" {
		t.Errorf("detail = %q", calcErr.Detail)
	}
}

func TestItcClientEmbeddedErrorIsUnrecoverable(t *testing.T) {
	client, _ := newTestItcClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": {"message": "no source profile"}}`))
	}))

	_, err := client.Calculate(context.Background(), itcTestInput())
	var calcErr *CalcError
	if !errors.As(err, &calcErr) {
		t.Fatalf("err = %v; want *CalcError", err)
	}
	if calcErr.Recoverable || calcErr.Detail != "no source profile" {
		t.Fatalf("calcErr = %+v", calcErr)
	}
}

func TestItcClientNetworkFailureIsRecoverable(t *testing.T) {
	client, server := newTestItcClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := client.Calculate(context.Background(), itcTestInput())
	var calcErr *CalcError
	if !errors.As(err, &calcErr) {
		t.Fatalf("err = %v; want *CalcError", err)
	}
	if !calcErr.Recoverable {
		t.Fatalf("calcErr = %+v; network failures must be retried", calcErr)
	}
}
