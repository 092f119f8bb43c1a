package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/scheduling-engine/internal/scheduling"
)

type testEnv struct {
	server   *httptest.Server
	provider scheduling.Provider
	patient  scheduling.Patient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := scheduling.NewMemoryStore()
	locker := scheduling.NewLocalLocker(2 * time.Second)
	svc := scheduling.NewService(store, locker, scheduling.NopPublisher{}, nil, scheduling.ServiceConfig{})

	router := NewRouter(RouterConfig{
		Service: svc,
		Logger:  zap.NewNop(),
		Env:     "test",
		Version: "test",
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{
		server:   server,
		provider: store.AddProvider(scheduling.Provider{Name: "Dr. Reyes"}),
		patient:  store.AddPatient(scheduling.Patient{Name: "Ana Gomez"}),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func futureAt(hour, min int) time.Time {
	now := time.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, 7)
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestCreateSlotEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/slots", CreateSlotRequest{
		ProviderID: env.provider.ID.String(),
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var slot SlotResponse
	if err := json.Unmarshal(body, &slot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if slot.Status != "available" || slot.Kind != "regular" || slot.MaxOccupancy != 1 {
		t.Fatalf("slot = %+v", slot)
	}

	// Overlapping slot is refused.
	resp, body = env.do(t, http.MethodPost, "/slots", CreateSlotRequest{
		ProviderID: env.provider.ID.String(),
		Start:      futureAt(9, 15),
		End:        futureAt(9, 45),
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("overlap status = %d, body %s", resp.StatusCode, body)
	}
	var errResp ErrorResponse
	_ = json.Unmarshal(body, &errResp)
	if errResp.Error != "slot_conflict" {
		t.Fatalf("error code = %q, want slot_conflict", errResp.Error)
	}
}

func TestCreateSlotEndpointBadInput(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/slots", CreateSlotRequest{
		ProviderID: "not-a-uuid",
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodPost, "/slots", CreateSlotRequest{
		ProviderID: uuid.New().String(),
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown provider status = %d, body %s", resp.StatusCode, body)
	}
}

func TestBookingEndpointWithAlternatives(t *testing.T) {
	env := newTestEnv(t)

	// Three slots; the first gets booked, the refusal should offer the rest.
	for i := 0; i < 3; i++ {
		resp, body := env.do(t, http.MethodPost, "/slots", CreateSlotRequest{
			ProviderID: env.provider.ID.String(),
			Start:      futureAt(9+i, 0),
			End:        futureAt(9+i, 30),
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create slot %d: %d %s", i, resp.StatusCode, body)
		}
	}

	resp, body := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ProviderID: env.provider.ID.String(),
		PatientID:  env.patient.ID.String(),
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book status = %d, body %s", resp.StatusCode, body)
	}
	var appt AppointmentResponse
	if err := json.Unmarshal(body, &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.Status != "scheduled" || appt.SlotID == nil {
		t.Fatalf("appt = %+v", appt)
	}

	resp, body = env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ProviderID: env.provider.ID.String(),
		PatientID:  env.patient.ID.String(),
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double book status = %d, body %s", resp.StatusCode, body)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Error != "slot_unavailable" {
		t.Fatalf("error code = %q, want slot_unavailable", errResp.Error)
	}
	if len(errResp.Alternatives) != 2 {
		t.Fatalf("alternatives = %d, want 2", len(errResp.Alternatives))
	}
}

func TestAppointmentLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ProviderID: env.provider.ID.String(),
		PatientID:  env.patient.ID.String(),
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book status = %d, body %s", resp.StatusCode, body)
	}
	var appt AppointmentResponse
	if err := json.Unmarshal(body, &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Starting before confirming is an invalid transition.
	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/start", appt.ID), nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("early start status = %d, body %s", resp.StatusCode, body)
	}

	for _, step := range []struct {
		verb string
		want string
	}{
		{"confirm", "confirmed"},
		{"start", "in_progress"},
		{"complete", "completed"},
	} {
		resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", appt.ID, step.verb), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", step.verb, resp.StatusCode, body)
		}
		var got AppointmentResponse
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Status != step.want {
			t.Fatalf("after %s status = %q, want %q", step.verb, got.Status, step.want)
		}
	}

	resp, _ = env.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/appointments/"+uuid.New().String(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown get status = %d", resp.StatusCode)
	}
}

func TestRescheduleAndCancelEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ProviderID: env.provider.ID.String(),
		PatientID:  env.patient.ID.String(),
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	var appt AppointmentResponse
	if err := json.Unmarshal(body, &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/reschedule", appt.ID), RescheduleRequest{
		Start: futureAt(14, 0),
		End:   futureAt(14, 30),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reschedule status = %d, body %s", resp.StatusCode, body)
	}
	var moved AppointmentResponse
	if err := json.Unmarshal(body, &moved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !moved.Start.Equal(futureAt(14, 0)) {
		t.Fatalf("moved start = %v", moved.Start)
	}

	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", appt.ID), CancelRequest{Reason: "patient request"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", resp.StatusCode, body)
	}
	var cancelled AppointmentResponse
	if err := json.Unmarshal(body, &cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cancelled.Status != "cancelled" || cancelled.CancelReason == nil {
		t.Fatalf("cancelled = %+v", cancelled)
	}
}

func TestRecurringSlotsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	monday := time.Now().AddDate(0, 0, 7)
	for monday.Weekday() != time.Monday {
		monday = monday.AddDate(0, 0, 1)
	}
	wednesday := monday.AddDate(0, 0, 2)
	friday := monday.AddDate(0, 0, 4)

	resp, body := env.do(t, http.MethodPost, "/slots/recurring", CreateRecurringSlotsRequest{
		ProviderID: env.provider.ID.String(),
		StartDate:  monday.Format("2006-01-02"),
		StartTime:  "09:00",
		EndTime:    "09:30",
		Pattern: RecurrencePatternRequest{
			Frequency:  "daily",
			Until:      friday.Format("2006-01-02"),
			Exceptions: []string{wednesday.Format("2006-01-02")},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var result RecurringSlotsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Created) != 4 || len(result.Skipped) != 1 {
		t.Fatalf("created = %d skipped = %d, want 4 and 1", len(result.Created), len(result.Skipped))
	}

	// The provider's open slots on the start date are listable.
	resp, body = env.do(t, http.MethodGet,
		fmt.Sprintf("/providers/%s/slots?date=%s", env.provider.ID, monday.Format("2006-01-02")), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, body %s", resp.StatusCode, body)
	}
	var open []SlotResponse
	if err := json.Unmarshal(body, &open); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open slots = %d, want 1", len(open))
	}

	// Bulk delete of the series.
	resp, body = env.do(t, http.MethodDelete,
		fmt.Sprintf("/providers/%s/recurrences/%s", env.provider.ID, result.RecurrenceID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete series status = %d, body %s", resp.StatusCode, body)
	}
	var delResp DeleteRecurringResponse
	if err := json.Unmarshal(body, &delResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if delResp.Deleted != 4 || delResp.Kept != 0 {
		t.Fatalf("deleted = %d kept = %d, want 4 and 0", delResp.Deleted, delResp.Kept)
	}
}

func TestBlockUnblockEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodPost, "/slots", CreateSlotRequest{
		ProviderID: env.provider.ID.String(),
		Start:      futureAt(9, 0),
		End:        futureAt(9, 30),
	})
	var slot SlotResponse
	if err := json.Unmarshal(body, &slot); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/slots/%s/block", slot.ID), BlockSlotRequest{
		Reason:    "staff meeting",
		BlockedBy: "admin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("block status = %d, body %s", resp.StatusCode, body)
	}
	var blocked SlotResponse
	if err := json.Unmarshal(body, &blocked); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if blocked.Status != "blocked" || blocked.BlockReason == nil {
		t.Fatalf("blocked = %+v", blocked)
	}

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/slots/%s/unblock", slot.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unblock status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/slots/"+slot.ID.String(), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
}
