package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-evaluation-engine/internal/domain"
	"github.com/pa-evaluation-engine/internal/policy"
	"github.com/pa-evaluation-engine/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &domain.Config{
		Server:  domain.ServerConfig{Host: "127.0.0.1", Port: 0},
		Logging: domain.LoggingConfig{Level: "error"},
	}

	resolver := policy.NewTableResolver(logger, nil)
	engine := service.NewCriteriaEngine(logger, domain.EvaluationConfig{})
	evaluation := service.NewEvaluationService(logger, engine, resolver, nil, nil)

	return NewServer(logger, cfg, evaluation, nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHandleEvaluate(t *testing.T) {
	s := newTestServer(t)

	birth := time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)
	body, err := json.Marshal(domain.EvaluationRequest{
		Patient: &domain.PatientSnapshot{
			ID:        "pt-1",
			BirthDate: &birth,
			Vitals:    domain.Vitals{BMI: 32.0},
			Diagnoses: []domain.Diagnosis{{Description: "Obesity"}},
			Medications: []domain.Medication{
				{Name: "Phentermine", Status: "completed"},
			},
			Labs:          []domain.LabResult{{Name: "HbA1c", Value: 5.6, CollectedAt: time.Now()}},
			ClinicalNotes: &domain.ClinicalNotes{HasWeightProgram: true},
		},
		Insurer:    "BlueCross BlueShield",
		DrugName:   "Wegovy",
		Dose:       "0.25 mg",
		Indication: domain.IndicationWeightLoss,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result domain.EvaluationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "pt-1", result.PatientID)
	assert.NotEmpty(t, result.Criteria)
	assert.NotEmpty(t, result.Summary)
}

func TestHandleEvaluate_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewBufferString("{not json"))
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvaluate_MissingFields(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewBufferString("{}"))
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePatientHistory_NoAuditStore(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/patient/pt-1", nil)
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_GracefulShutdown(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
