package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
	"github.com/ahmethakanbesel/oasis-api/internal/fetcher/oasis"
	"github.com/ahmethakanbesel/oasis-api/internal/job"
	"github.com/ahmethakanbesel/oasis-api/internal/observation"
	"github.com/ahmethakanbesel/oasis-api/internal/platform/sqlite"
	jobrepo "github.com/ahmethakanbesel/oasis-api/internal/repository/job"
	obsrepo "github.com/ahmethakanbesel/oasis-api/internal/repository/observation"
	"github.com/ahmethakanbesel/oasis-api/internal/server"
	"github.com/ahmethakanbesel/oasis-api/internal/tabular/tabulartest"
)

const demandHeader = "INTERVALSTARTTIME_GMT,INTERVALENDTIME_GMT,OPR_DT,OPR_HR,OPR_INTERVAL,MARKET_RUN_ID,TAC_AREA_NAME,LABEL,XML_DATA_ITEM,POS,MW,EXECUTION_TYPE,GROUP\n"

// oasisStub serves one demand row per requested day at 08:00 UTC. Requests
// whose startdatetime is in fail get an error archive instead of a CSV.
type oasisStub struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls atomic.Int64
}

func (s *oasisStub) setFail(start string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = make(map[string]bool)
	}
	s.fail[start] = fail
}

func (s *oasisStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		q := r.URL.Query()

		s.mu.Lock()
		fail := s.fail[q.Get("startdatetime")]
		s.mu.Unlock()
		if fail {
			_, _ = w.Write(tabulartest.Zip(t, tabulartest.File{Name: "INVALID_REQUEST.xml", Body: "<ERR_CODE>1000</ERR_CODE>"}))
			return
		}

		start, err1 := time.Parse("20060102", strings.TrimSuffix(q.Get("startdatetime"), "T08:00-0000"))
		end, err2 := time.Parse("20060102", strings.TrimSuffix(q.Get("enddatetime"), "T08:00-0000"))
		if err1 != nil || err2 != nil {
			http.Error(w, "bad window", http.StatusBadRequest)
			return
		}

		var b strings.Builder
		b.WriteString(demandHeader)
		for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
			at := d.Add(8 * time.Hour)
			fmt.Fprintf(&b, "%s,%s,%s,1,0,DAM,CA ISO-TAC,Demand Forecast,SYS_FCST_DA_MW,3.1,%d,DAM,1\n",
				at.Format("2006-01-02T15:04:05-07:00"), at.Add(time.Hour).Format("2006-01-02T15:04:05-07:00"),
				d.Format("2006-01-02"), 20000+d.Day())
		}
		_, _ = w.Write(tabulartest.CSV(t, q.Get("queryname")+".csv", b.String()))
	}
}

func setupE2E(t *testing.T, stub *oasisStub) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(stub.handler(t))
	t.Cleanup(upstream.Close)

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	obsRepo := obsrepo.NewRepository(db.DB)
	jobRepo := jobrepo.NewRepository(db.DB)

	client := oasis.NewClient(upstream.Client(), upstream.URL, nil)
	registry := fetcher.NewRegistry()
	registry.Register(oasis.NewDemand(oasis.WithClient(client)))
	registry.Register(oasis.NewRenewable(oasis.WithClient(client)))
	registry.Register(oasis.NewTransmission(oasis.WithClient(client)))

	jobSvc := job.NewService(jobRepo)
	obsSvc := observation.NewService(obsRepo, jobRepo, registry,
		observation.WithLocation(time.UTC),
		observation.WithSinks(observation.NewSnapshotSink(t.TempDir())),
	)

	// Start worker pool for background job processing
	poolCtx, poolCancel := context.WithCancel(context.Background())
	pool := job.NewWorkerPool(jobRepo, obsSvc, 2)
	obsSvc.SetNotify(pool.Notify)
	jobSvc.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(poolCtx)
		close(poolDone)
	}()
	// Cleanup runs LIFO: cancel pool, wait for drain, then db.Close
	t.Cleanup(func() {
		poolCancel()
		<-poolDone
	})

	ts := httptest.NewServer(server.NewHandler(obsSvc, jobSvc, pool))
	t.Cleanup(ts.Close)
	return ts
}

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func getJSON[T any](t *testing.T, url string) (int, envelope[T]) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, out
}

// waitForJob polls the job endpoint until the job reaches a terminal status.
func waitForJob(t *testing.T, baseURL string, jobID int64) *job.Job {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job %d to finish", jobID)
		default:
		}

		_, result := getJSON[job.Job](t, fmt.Sprintf("%s/api/v1/jobs/%d", baseURL, jobID))
		switch result.Data.Status {
		case job.StatusCompleted, job.StatusPartial, job.StatusFailed:
			return &result.Data
		}

		time.Sleep(20 * time.Millisecond)
	}
}

func TestE2E_Health(t *testing.T) {
	ts := setupE2E(t, &oasisStub{})

	status, result := getJSON[struct {
		Status  string     `json:"status"`
		Workers *job.Stats `json:"workers"`
	}](t, ts.URL+"/health")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if result.Data.Status != "ok" || result.Data.Workers == nil {
		t.Errorf("unexpected health %+v", result.Data)
	}
}

func TestE2E_ListDatasets(t *testing.T) {
	ts := setupE2E(t, &oasisStub{})

	status, result := getJSON[[]string](t, ts.URL+"/api/v1/datasets")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	want := []string{"demand", "renewable", "transmission"}
	if strings.Join(result.Data, ",") != strings.Join(want, ",") {
		t.Errorf("datasets = %v, want %v", result.Data, want)
	}
}

func TestE2E_Splits(t *testing.T) {
	ts := setupE2E(t, &oasisStub{})

	status, result := getJSON[*fetcher.SplitResult](t, ts.URL+"/api/v1/splits?start=01/01/17&end=12/31/18&limit=90")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if result.Data == nil || len(result.Data.StartDates) != 9 {
		t.Fatalf("expected 9 chunks, got %+v", result.Data)
	}
	if result.Data.StartDates[1] != "04/01/17" || result.Data.EndDates[8] != "12/31/18" {
		t.Errorf("unexpected chunks %+v", result.Data)
	}

	status, result = getJSON[*fetcher.SplitResult](t, ts.URL+"/api/v1/splits?start=01/01/17&end=01/15/17&limit=90")
	if status != http.StatusOK || result.Data != nil {
		t.Errorf("expected null data for a short range, got %d %+v", status, result.Data)
	}

	status, result = getJSON[*fetcher.SplitResult](t, ts.URL+"/api/v1/splits?start=20180101&end=20180301&limit=30&format=%25Y%25m%25d")
	if status != http.StatusOK || result.Data == nil || result.Data.StartDates[1] != "20180131" {
		t.Errorf("unexpected compact-format split %d %+v", status, result.Data)
	}

	for _, q := range []string{
		"start=01/01/17&end=12/31/18&limit=0",
		"start=2017-01-01&end=12/31/18&limit=90",
		"start=12/31/18&end=01/01/17&limit=90",
		"start=01/01/17&end=12/31/18&limit=ten",
		"end=12/31/18&limit=90",
	} {
		status, _ := getJSON[string](t, ts.URL+"/api/v1/splits?"+q)
		if status != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, status)
		}
	}
}

func TestE2E_GetObservations(t *testing.T) {
	stub := &oasisStub{}
	ts := setupE2E(t, stub)

	url := ts.URL + "/api/v1/observations/demand?startDate=2018-11-01&endDate=2018-11-10"

	// First request: nothing stored yet, a job is queued
	status, result := getJSON[observation.GetObservationsResponse](t, url)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if result.Message != "ok" {
		t.Errorf("expected message 'ok', got '%s'", result.Message)
	}
	if result.Data.Job == nil {
		t.Fatal("expected job in first request")
	}

	done := waitForJob(t, ts.URL, result.Data.Job.ID)
	if done.Status != job.StatusCompleted || done.RecordsCount != 10 {
		t.Fatalf("unexpected job %+v", done)
	}

	// Second request: served from the store, no new job
	_, result = getJSON[observation.GetObservationsResponse](t, url)
	if result.Data.Job != nil {
		t.Errorf("expected no job once the range is stored, got %+v", result.Data.Job)
	}
	if len(result.Data.Observations) != 10 {
		t.Fatalf("expected 10 observations, got %d", len(result.Data.Observations))
	}
	first := result.Data.Observations[0]
	if first.Area != "CA ISO-TAC" || first.MW != 20001 || first.IntervalStart.Hour() != 8 {
		t.Errorf("unexpected observation %+v", first)
	}
	if stub.calls.Load() != 1 {
		t.Errorf("expected one upstream request, got %d", stub.calls.Load())
	}
}

func TestE2E_GetObservations_CSV(t *testing.T) {
	ts := setupE2E(t, &oasisStub{})

	base := ts.URL + "/api/v1/observations/demand?startDate=2018-11-01&endDate=2018-11-03"
	_, result := getJSON[observation.GetObservationsResponse](t, base)
	if result.Data.Job != nil {
		waitForJob(t, ts.URL, result.Data.Job.ID)
	}

	resp, err := http.Get(base + "&format=csv") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.Header.Get("Content-Type") != "text/csv" {
		t.Errorf("expected text/csv, got %s", resp.Header.Get("Content-Type"))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "Dataset,Area,Item") {
		t.Errorf("unexpected csv:\n%s", body)
	}
}

func TestE2E_PartialJobAndRetry(t *testing.T) {
	stub := &oasisStub{}
	stub.setFail("20180131T08:00-0000", true)
	ts := setupE2E(t, stub)

	url := ts.URL + "/api/v1/observations/demand?startDate=2018-01-01&endDate=2018-03-15"
	_, result := getJSON[observation.GetObservationsResponse](t, url)
	if result.Data.Job == nil {
		t.Fatal("expected job")
	}

	partial := waitForJob(t, ts.URL, result.Data.Job.ID)
	if partial.Status != job.StatusPartial {
		t.Fatalf("expected partial, got %s (error: %s)", partial.Status, partial.Error)
	}
	if len(partial.FailedChunks) != 1 || partial.FailedChunks[0].String() != "2018-01-31/2018-03-01" {
		t.Fatalf("unexpected failed chunks %v", partial.FailedChunks)
	}
	if partial.RecordsCount != 30+14 {
		t.Errorf("expected 44 records from the good chunks, got %d", partial.RecordsCount)
	}

	stub.setFail("20180131T08:00-0000", false)

	resp, err := http.Post(fmt.Sprintf("%s/api/v1/jobs/%d/retry", ts.URL, partial.ID), "application/json", nil) //nolint:gosec // test URL
	if err != nil {
		t.Fatal(err)
	}
	var retried envelope[[]job.Job]
	err = json.NewDecoder(resp.Body).Decode(&retried)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted || len(retried.Data) != 1 {
		t.Fatalf("unexpected retry response %d %+v", resp.StatusCode, retried.Data)
	}

	done := waitForJob(t, ts.URL, retried.Data[0].ID)
	if done.Status != job.StatusCompleted || done.RecordsCount != 30 {
		t.Fatalf("unexpected retry job %+v", done)
	}

	_, result = getJSON[observation.GetObservationsResponse](t, url)
	if len(result.Data.Observations) != 74 {
		t.Errorf("expected the full 74 days after retry, got %d", len(result.Data.Observations))
	}

	// A completed job cannot be retried.
	resp, err = http.Post(fmt.Sprintf("%s/api/v1/jobs/%d/retry", ts.URL, done.ID), "application/json", nil) //nolint:gosec // test URL
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestE2E_Peaks(t *testing.T) {
	ts := setupE2E(t, &oasisStub{})

	base := ts.URL + "/api/v1/observations/demand/peaks?startDate=2018-11-01&endDate=2018-11-02"
	_, first := getJSON[observation.GetPeaksResponse](t, base)
	if first.Data.Job != nil {
		waitForJob(t, ts.URL, first.Data.Job.ID)
	}

	status, result := getJSON[observation.GetPeaksResponse](t, base)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(result.Data.Peaks) != 2 {
		t.Fatalf("expected 2 daily peaks, got %d", len(result.Data.Peaks))
	}
	p := result.Data.Peaks[0]
	if p.OnPeakCount != 1 || p.OffPeakCount != 0 || p.OnPeak != 20001 {
		t.Errorf("unexpected peak %+v", p)
	}

	// 08:00 falls outside a 09-17 window.
	_, result = getJSON[observation.GetPeaksResponse](t, base+"&onPeakStart=9&onPeakEnd=17")
	if len(result.Data.Peaks) != 2 || result.Data.Peaks[0].OffPeakCount != 1 {
		t.Errorf("unexpected peaks with custom window %+v", result.Data.Peaks)
	}

	status, _ = getJSON[string](t, base+"&onPeakStart=20&onPeakEnd=8")
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for reversed window, got %d", status)
	}
}

func TestE2E_InvalidParams(t *testing.T) {
	ts := setupE2E(t, &oasisStub{})

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/observations/demand", http.StatusBadRequest},
		{"/api/v1/observations/demand?startDate=01-01-2018", http.StatusBadRequest},
		{"/api/v1/observations/demand?startDate=2018-02-01&endDate=2018-01-01", http.StatusBadRequest},
		{"/api/v1/observations/demand?startDate=2018-01-01&format=xml", http.StatusBadRequest},
		{"/api/v1/observations/prices?startDate=2018-01-01", http.StatusNotFound},
		{"/api/v1/jobs/abc", http.StatusBadRequest},
		{"/api/v1/jobs/999", http.StatusNotFound},
		{"/api/v1/jobs?dataset=demand&status=done", http.StatusBadRequest},
		{"/api/v1/jobs?key=NOB_ITC", http.StatusBadRequest},
	}
	for _, tt := range tests {
		status, _ := getJSON[string](t, ts.URL+tt.path)
		if status != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, status)
		}
	}
}

func TestE2E_Jobs(t *testing.T) {
	ts := setupE2E(t, &oasisStub{})

	_, first := getJSON[observation.GetObservationsResponse](t, ts.URL+"/api/v1/observations/renewable?startDate=2019-05-01&endDate=2019-05-02")
	if first.Data.Job != nil {
		waitForJob(t, ts.URL, first.Data.Job.ID)
	}

	status, result := getJSON[[]job.Job](t, ts.URL+"/api/v1/jobs?dataset=renewable")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(result.Data) != 1 || result.Data[0].Dataset != "renewable" {
		t.Errorf("unexpected jobs %+v", result.Data)
	}

	_, result = getJSON[[]job.Job](t, ts.URL+"/api/v1/jobs?dataset=renewable&status=completed")
	if len(result.Data) != 1 {
		t.Errorf("expected 1 completed renewable job, got %d", len(result.Data))
	}

	_, result = getJSON[[]job.Job](t, ts.URL+"/api/v1/jobs?dataset=demand")
	if len(result.Data) != 0 {
		t.Errorf("expected no demand jobs, got %d", len(result.Data))
	}
}
