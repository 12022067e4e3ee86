package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcast-io/briefcast/internal/aggregation"
	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
	"github.com/briefcast-io/briefcast/internal/delivery"
	"github.com/briefcast-io/briefcast/internal/ingestion"
	"github.com/briefcast-io/briefcast/internal/pipeline"
	"github.com/briefcast-io/briefcast/internal/pipeline/rules"
	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/projection"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// The harness wires the full digest flow against in-memory stores and stub
// HTTP backends for the model API, Telegram and the email gateway. Events go
// in over the real ingestion endpoint; summaries and delivery state come back
// out over the real projection endpoint.
type harness struct {
	router     *gin.Engine
	events     *memEventStore
	summaries  *memSummaryStore
	deliveries *memDeliveryStore
	dispatcher *delivery.Dispatcher
	aggregator *aggregation.Aggregator

	llmCalls     *callCounter
	telegramSent *callCounter
	emailSent    *callCounter
}

type callCounter struct {
	mu sync.Mutex
	n  int
}

func (c *callCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *callCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newHarness(t *testing.T, prefsYAML string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		events:       newMemEventStore(),
		summaries:    newMemSummaryStore(),
		deliveries:   newMemDeliveryStore(),
		llmCalls:     &callCounter{},
		telegramSent: &callCounter{},
		emailSent:    &callCounter{},
	}

	// Stub model API speaking the chat completions wire format.
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.llmCalls.inc()
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"headline": "Platform morning digest", "bullets": ["PR #42 approved by bob", "nightly build failed on main"]}`,
				}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(llmServer.Close)

	telegramServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.telegramSent.inc()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(telegramServer.Close)

	emailServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.emailSent.inc()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(emailServer.Close)

	prefsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(prefsDir, "user.yaml"), []byte(prefsYAML), 0o644))
	prefs, err := preferences.NewFileSystemProvider(prefsDir, []string{"email"})
	require.NoError(t, err)

	transports := []delivery.Transport{
		delivery.NewTelegramTransport("test-token", telegramServer.URL),
		delivery.NewEmailTransport(emailServer.URL, "gateway-token"),
	}
	h.dispatcher = delivery.NewDispatcher(h.deliveries, h.summaries, prefs, transports,
		3, time.Millisecond, 10*time.Millisecond, 100, 4)

	llm := summarize.NewOpenAIClient(llmServer.URL, "test-model", "sk-test", 5*time.Second)
	engine := summarize.NewEngine(h.summaries, llm, h.dispatcher)

	executor := pipeline.NewExecutor(pipeline.DefaultSteps(rules.Default(), 20, 5, 8000)...)
	h.aggregator = aggregation.NewAggregator(h.events, executor, engine, prefs, 3, 100, 4)

	ingestionSvc := ingestion.NewService(h.events, 2*time.Hour, 1)
	projectionSvc := projection.NewService(h.summaries, h.deliveries)

	h.router = gin.New()
	ingestionSvc.RegisterRoutes(h.router)
	projectionSvc.RegisterRoutes(h.router)
	h.dispatcher.RegisterRoutes(h.router)

	return h
}

func (h *harness) postEvent(t *testing.T, evt *v1.Event) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

// waitForDeliveries runs the dispatcher until every record for the summary
// has left pending, or the deadline passes.
func (h *harness) waitForDeliveries(t *testing.T, summaryID string, want int) []*delivery.Record {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.dispatcher.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		records, err := h.deliveries.ListBySummary(context.Background(), summaryID)
		require.NoError(t, err)
		settled := 0
		for _, rec := range records {
			if rec.State != delivery.StatePending {
				settled++
			}
		}
		if len(records) == want && settled == want {
			cancel()
			<-done
			return records
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatalf("deliveries for %s did not settle", summaryID)
	return nil
}

func digestEvent(id, title string) *v1.Event {
	return &v1.Event{
		EventID:     id,
		RecipientID: "user-1",
		SourceType:  "github.pr",
		OccurredAt:  time.Date(2026, 3, 10, 8, 37, 0, 0, time.UTC),
		Payload: map[string]interface{}{
			"resource_id": "pr-42",
			"title":       title,
			"link":        "https://github.example/pr/42",
		},
	}
}

const standardPrefs = `
recipient_id: user-1
channels: [telegram, email]
verbosity: standard
telegram_chat_id: "12345"
email: user@example.com
`

func TestDigestFlow_EndToEnd(t *testing.T) {
	h := newHarness(t, standardPrefs)

	// Ingest: first write accepted, byte-identical replay acknowledged as
	// duplicate without a second stored copy.
	resp := h.postEvent(t, digestEvent("evt-1", "PR #42: approved by bob"))
	require.Equal(t, http.StatusAccepted, resp.Code)
	resp = h.postEvent(t, digestEvent("evt-1", "PR #42: approved by bob"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, h.events.count("user-1", "2026-03-10T08:00:00Z"))

	// The window (Mar 2026) is long past due; one sweep processes it.
	processed, err := h.aggregator.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	assert.Equal(t, 1, h.llmCalls.get())

	summary, err := h.summaries.GetByWindow(context.Background(), "user-1", "2026-03-10T08:00:00Z", summarize.GranularityMicro)
	require.NoError(t, err)
	require.Equal(t, summarize.StatusReady, summary.Status)
	assert.Equal(t, "Platform morning digest", summary.Headline)

	// Delivery: telegram acks inline, email waits for the gateway callback.
	records := h.waitForDeliveries(t, summary.SummaryID, 2)
	byChannel := make(map[string]*delivery.Record)
	for _, rec := range records {
		byChannel[rec.Channel] = rec
	}
	assert.Equal(t, delivery.StateAcked, byChannel["telegram"].State)
	assert.Equal(t, delivery.StateSent, byChannel["email"].State)
	assert.Equal(t, 1, h.telegramSent.get())
	assert.Equal(t, 1, h.emailSent.get())

	// Gateway confirms the email out of band.
	req := httptest.NewRequest(http.MethodPost, "/v1/deliveries/"+byChannel["email"].DeliveryID+"/ack", nil)
	ackResp := httptest.NewRecorder()
	h.router.ServeHTTP(ackResp, req)
	require.Equal(t, http.StatusOK, ackResp.Code)

	// Projection returns the summary with its delivery trail.
	req = httptest.NewRequest(http.MethodGet, "/v1/recipients/user-1/summaries", nil)
	listResp := httptest.NewRecorder()
	h.router.ServeHTTP(listResp, req)
	require.Equal(t, http.StatusOK, listResp.Code)

	var body struct {
		Summaries []projection.SummaryWithDeliveries `json:"summaries"`
	}
	require.NoError(t, json.Unmarshal(listResp.Body.Bytes(), &body))
	require.Len(t, body.Summaries, 1)
	assert.Equal(t, "Platform morning digest", body.Summaries[0].Summary.Headline)
	assert.Len(t, body.Summaries[0].Deliveries, 2)

	// A second sweep is a no-op: the window is processed and the summary
	// terminal.
	processed, err = h.aggregator.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Equal(t, 1, h.llmCalls.get())
}

func TestDigestFlow_LateEventJoinsNextWindow(t *testing.T) {
	h := newHarness(t, standardPrefs)

	resp := h.postEvent(t, digestEvent("evt-1", "PR #42: approved by bob"))
	require.Equal(t, http.StatusAccepted, resp.Code)

	processed, err := h.aggregator.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, 1, h.llmCalls.get())

	// A straggler whose OccurredAt falls in the already-processed 08:00
	// window arrives after the sweep. It must not vanish into the closed
	// window: it rolls forward to the 10:00 window instead.
	late := digestEvent("evt-late", "PR #42: follow-up comment")
	late.OccurredAt = time.Date(2026, 3, 10, 8, 50, 0, 0, time.UTC)
	late.Payload["resource_id"] = "pr-42-comment"
	resp = h.postEvent(t, late)
	require.Equal(t, http.StatusAccepted, resp.Code)

	assert.Equal(t, 1, h.events.count("user-1", "2026-03-10T08:00:00Z"))
	require.Equal(t, 1, h.events.count("user-1", "2026-03-10T10:00:00Z"))

	// The next sweep picks up the rolled-forward window and the straggler
	// reaches a summary of its own.
	processed, err = h.aggregator.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	assert.Equal(t, 2, h.llmCalls.get())

	summary, err := h.summaries.GetByWindow(context.Background(), "user-1", "2026-03-10T10:00:00Z", summarize.GranularityMicro)
	require.NoError(t, err)
	require.Equal(t, summarize.StatusReady, summary.Status)
	assert.Contains(t, summary.IncludedEventIDs, "evt-late")
}

func TestDigestFlow_QuietHoursSkipsEmailOnly(t *testing.T) {
	// Quiet hours covering the whole day: email is suppressed, telegram
	// stays on.
	h := newHarness(t, `
recipient_id: user-1
channels: [telegram, email]
quiet_hours:
  start: "00:00"
  end: "23:59"
telegram_chat_id: "12345"
email: user@example.com
`)

	resp := h.postEvent(t, digestEvent("evt-1", "PR #42: approved by bob"))
	require.Equal(t, http.StatusAccepted, resp.Code)

	processed, err := h.aggregator.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	summary, err := h.summaries.GetByWindow(context.Background(), "user-1", "2026-03-10T08:00:00Z", summarize.GranularityMicro)
	require.NoError(t, err)

	records := h.waitForDeliveries(t, summary.SummaryID, 2)
	byChannel := make(map[string]*delivery.Record)
	for _, rec := range records {
		byChannel[rec.Channel] = rec
	}
	assert.Equal(t, delivery.StateAcked, byChannel["telegram"].State)
	assert.Equal(t, delivery.StateSkipped, byChannel["email"].State)
	assert.Zero(t, h.emailSent.get())
}
