package roamtech

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

func (s *Server) router() *httprouter.Router {
	router := httprouter.New()

	router.GET("/suites", s.ListSuites)
	router.POST("/suites/:suite-name/runs", s.StartSuiteRun)
	router.GET("/suites/:suite-name/runs", s.ListSuiteRuns)
	router.GET("/suites/:suite-name/runs/:run-id", s.GetSuiteRun)
	router.GET("/suites/:suite-name/runs/:run-id/test/:test-id", s.GetTestResult)

	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return router
}

func (s *Server) httpError(w http.ResponseWriter, err error) {
	var notFound model.NotFoundError

	switch {
	case errors.As(err, &notFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, errShuttingDown):
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		s.log.Error("handling request failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		s.httpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err = w.Write(body); err != nil {
		s.log.Warn("writing response body failed", "error", err)
	}
}

func (s *Server) ListSuites(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	suites := make([]model.SuiteInfo, 0, len(s.suiteNames))

	for _, name := range s.suiteNames {
		suites = append(suites, model.SuiteInfo{Name: name, Tests: s.suites[name].Tests})
	}

	s.writeResponse(w, http.StatusOK, suites)
}

func (s *Server) StartSuiteRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	suite, err := s.getSuite(p)
	if err != nil {
		s.httpError(w, err)
		return
	}

	run, err := s.startRun(suite, "http")
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeResponse(w, http.StatusCreated, run)
}

func (s *Server) ListSuiteRuns(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	suite, err := s.getSuite(p)
	if err != nil {
		s.httpError(w, err)
		return
	}

	var runs []model.SuiteRun

	if s.storage != nil {
		runs, err = s.storage.LoadSuiteRunsByName(r.Context(), suite.Name)
		if err != nil {
			s.httpError(w, err)
			return
		}
	} else {
		runs = s.cache.LoadByName(suite.Name)

		sort.Slice(runs, func(i, j int) bool {
			return runs[i].Scheduled.After(runs[j].Scheduled)
		})
	}

	s.writeResponse(w, http.StatusOK, runs)
}

func (s *Server) GetSuiteRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	run, err := s.getSuiteRun(r, p)
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeResponse(w, http.StatusOK, run)
}

func (s *Server) GetTestResult(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	run, err := s.getSuiteRun(r, p)
	if err != nil {
		s.httpError(w, err)
		return
	}

	testID := p.ByName("test-id")

	for _, result := range run.Results {
		if result.TestID == testID {
			s.writeResponse(w, http.StatusOK, result)
			return
		}
	}

	s.httpError(w, model.NotFoundError{})
}

func (s *Server) getSuite(p httprouter.Params) (model.TestSuite, error) {
	suite, ok := s.suites[p.ByName("suite-name")]
	if !ok {
		return model.TestSuite{}, model.NotFoundError{}
	}

	return suite, nil
}

// getSuiteRun prefers the cache which holds the results of runs that are
// still in progress.
func (s *Server) getSuiteRun(r *http.Request, p httprouter.Params) (model.SuiteRun, error) {
	suite, err := s.getSuite(p)
	if err != nil {
		return model.SuiteRun{}, err
	}

	runID := p.ByName("run-id")

	if run, err := s.cache.Load(suite.Name, runID); err == nil {
		return run, nil
	}

	if s.storage == nil {
		return model.SuiteRun{}, model.NotFoundError{}
	}

	return s.storage.LoadSuiteRun(r.Context(), suite.Name, runID)
}
