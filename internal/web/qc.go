package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/minasoft/lab-interop/internal/db"
	store "github.com/minasoft/lab-interop/internal/nats"
	"github.com/minasoft/lab-interop/internal/qc"
)

type evaluateRequest struct {
	Value float64   `json:"value"`
	Mean  float64   `json:"mean"`
	SD    float64   `json:"sd"`
	Prior []float64 `json:"prior"`
}

type evaluateResponse struct {
	Violations []string `json:"violations"`
	ZScore     db.Float `json:"z_score"`
	Status     string   `json:"status"`
	Severity   string   `json:"severity,omitempty"`
}

// handleEvaluate runs the rules on a value without recording anything.
func (s *Server) handleEvaluate(c echo.Context) error {
	var req evaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Geçersiz istek")
	}

	eval := qc.Evaluate(req.Value, req.Mean, req.SD, req.Prior)
	resp := evaluateResponse{
		Violations: qc.Codes(eval.Violations),
		ZScore:     db.Float(eval.ZScore),
		Status:     string(qc.ClassifyStatus(eval.Violations)),
	}
	if sev, ok := qc.ClassifySeverity(eval.Violations); ok {
		resp.Severity = string(sev)
	}

	return c.JSON(http.StatusOK, resp)
}

type statisticsRequest struct {
	Values       []float64 `json:"values"`
	TargetMean   float64   `json:"target_mean"`
	TenantID     string    `json:"tenant_id"`
	TestID       string    `json:"test_id"`
	ControlLevel string    `json:"control_level"`
	Lot          string    `json:"lot"`
	Period       qc.Period `json:"period"`
}

type coverage struct {
	OneSD   db.Float `json:"one_sd"`
	TwoSD   db.Float `json:"two_sd"`
	ThreeSD db.Float `json:"three_sd"`
}

type statisticsResponse struct {
	N        int         `json:"n"`
	Mean     db.Float    `json:"mean"`
	SD       db.Float    `json:"sd"`
	CV       db.Float    `json:"cv"`
	Bias     db.Float    `json:"bias"`
	WithinSD qc.WithinSD `json:"within_sd"`
	Coverage coverage    `json:"coverage"`
	Expected coverage    `json:"expected"`
}

func newStatisticsResponse(st qc.Statistics) statisticsResponse {
	one, two, three := st.Coverage()
	return statisticsResponse{
		N:        st.N,
		Mean:     db.Float(st.Mean),
		SD:       db.Float(st.SD),
		CV:       db.Float(st.CV),
		Bias:     db.Float(st.Bias),
		WithinSD: st.WithinSD,
		Coverage: coverage{OneSD: db.Float(one), TwoSD: db.Float(two), ThreeSD: db.Float(three)},
		Expected: coverage{
			OneSD:   qc.ExpectedWithin1SD,
			TwoSD:   qc.ExpectedWithin2SD,
			ThreeSD: qc.ExpectedWithin3SD,
		},
	}
}

// handleStatistics computes statistics over explicit values, or over the
// recorded results of one test, level and lot for a reporting period.
func (s *Server) handleStatistics(c echo.Context) error {
	var req statisticsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Geçersiz istek")
	}

	if len(req.Values) > 0 {
		return c.JSON(http.StatusOK, newStatisticsResponse(qc.ComputeStatistics(req.Values, req.TargetMean)))
	}

	if req.TestID == "" || req.Period == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "values veya test_id+period zorunlu")
	}
	if s.deps.QC == nil {
		return errUnavailable
	}
	ctx := c.Request().Context()

	tenantID := s.tenant(req.TenantID)
	results, err := s.deps.QC.Results(ctx, tenantID, req.TestID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "QC sonuçları okunamadı: "+err.Error())
	}

	targetMean := req.TargetMean
	if targetMean == 0 {
		key := qc.TargetKey{TenantID: tenantID, TestID: req.TestID, ControlLevel: req.ControlLevel, Lot: req.Lot}
		if t, err := s.deps.QC.Target(ctx, key); err == nil {
			targetMean = t.Mean
		}
	}

	st, err := qc.StatisticsForPeriod(results, req.TestID, req.ControlLevel, req.Lot, req.Period, time.Now(), targetMean)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, newStatisticsResponse(st))
}

type recordResponse struct {
	Result     db.QCResult    `json:"result"`
	Escalation *qc.Escalation `json:"escalation,omitempty"`
}

// handleRecordResult evaluates and stores a control run, escalating
// violations.
func (s *Server) handleRecordResult(c echo.Context) error {
	if s.deps.Recorder == nil {
		return errUnavailable
	}
	ctx := c.Request().Context()

	var run qc.ControlRun
	if err := c.Bind(&run); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Geçersiz istek")
	}
	if run.TestID == "" || run.ControlLevel == "" || run.Lot == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test_id, control_level ve lot zorunlu")
	}
	run.TenantID = s.tenant(run.TenantID)

	result, escalation, err := s.deps.Recorder.Record(ctx, run)
	switch {
	case errors.Is(err, qc.ErrTargetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Kontrol hedefi bulunamadı")
	case errors.Is(err, qc.ErrWindowConflict):
		return echo.NewHTTPError(http.StatusConflict, "Eşzamanlı QC kaydı, tekrar deneyin")
	case err != nil && result.ID == "":
		return echo.NewHTTPError(http.StatusInternalServerError, "QC sonucu kaydedilemedi: "+err.Error())
	case err != nil:
		// Stored but not fully escalated.
		slog.Error("QC eskalasyon hatası", "id", result.ID, "error", err)
	}

	s.deps.Stats.Incr(ctx, store.StatQCRuns)
	if result.Status == string(qc.StatusRejected) {
		s.deps.Stats.Incr(ctx, store.StatQCRejected)
	}

	return c.JSON(http.StatusCreated, recordResponse{Result: result, Escalation: escalation})
}

func (s *Server) handleListResults(c echo.Context) error {
	if s.deps.QC == nil {
		return errUnavailable
	}
	testID := c.QueryParam("test_id")
	if testID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test_id zorunlu")
	}

	results, err := s.deps.QC.Results(c.Request().Context(), s.tenant(c.QueryParam("tenant_id")), testID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "QC sonuçları okunamadı: "+err.Error())
	}
	if results == nil {
		results = []db.QCResult{}
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handlePutTarget(c echo.Context) error {
	if s.deps.QC == nil {
		return errUnavailable
	}

	var target db.QCTarget
	if err := c.Bind(&target); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Geçersiz istek")
	}
	if target.TestID == "" || target.ControlLevel == "" || target.Lot == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test_id, control_level ve lot zorunlu")
	}
	if target.SD <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "sd pozitif olmalı")
	}
	target.TenantID = s.tenant(target.TenantID)

	if err := s.deps.QC.PutTarget(c.Request().Context(), target); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Hedef kaydedilemedi: "+err.Error())
	}
	return c.JSON(http.StatusOK, target)
}

func (s *Server) tenant(id string) string {
	if id != "" {
		return id
	}
	if s.config != nil {
		return s.config.TenantID
	}
	return ""
}
