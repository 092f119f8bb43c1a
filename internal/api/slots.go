package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/interval"
	"github.com/clinicore/scheduling-engine/internal/scheduling"
)

func createSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		slot, err := svc.CreateSlot(r.Context(), scheduling.CreateSlotInput{
			ProviderID:   providerID,
			Start:        req.Start,
			End:          req.End,
			Kind:         scheduling.SlotKind(req.Kind),
			MaxOccupancy: req.MaxOccupancy,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func createRecurringSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRecurringSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := recurringInputFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_recurrence", err.Error())
			return
		}

		result, err := svc.CreateRecurringSlots(r.Context(), *in)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := RecurringSlotsResponse{
			RecurrenceID: result.RecurrenceID,
			Created:      toSlotResponses(result.Created),
			Skipped:      make([]SkippedDateResponse, 0, len(result.Skipped)),
		}
		for _, sk := range result.Skipped {
			resp.Skipped = append(resp.Skipped, SkippedDateResponse{
				Date:   sk.Date.Format("2006-01-02"),
				Reason: sk.Reason,
			})
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func recurringInputFromRequest(req CreateRecurringSlotsRequest) (*scheduling.RecurringInput, error) {
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("provider_id must be a valid UUID")
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date must be YYYY-MM-DD")
	}
	startTime, err := interval.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("start_time: %v", err)
	}
	endTime, err := interval.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("end_time: %v", err)
	}

	pattern := scheduling.RecurrencePattern{
		Frequency: scheduling.Frequency(req.Pattern.Frequency),
		Interval:  req.Pattern.Interval,
	}
	if req.Pattern.Until != "" {
		until, err := time.Parse("2006-01-02", req.Pattern.Until)
		if err != nil {
			return nil, fmt.Errorf("pattern.until must be YYYY-MM-DD")
		}
		pattern.Until = until
	}
	for _, name := range req.Pattern.DaysOfWeek {
		wd, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		pattern.DaysOfWeek = append(pattern.DaysOfWeek, wd)
	}
	for _, raw := range req.Pattern.Exceptions {
		ex, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("pattern.exceptions must be YYYY-MM-DD dates")
		}
		pattern.Exceptions = append(pattern.Exceptions, ex)
	}

	return &scheduling.RecurringInput{
		ProviderID: providerID,
		StartDate:  startDate,
		Template: scheduling.SlotTemplate{
			Start:        startTime,
			End:          endTime,
			Kind:         scheduling.SlotKind(req.Kind),
			MaxOccupancy: req.MaxOccupancy,
		},
		Pattern: pattern,
	}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(name string) (time.Weekday, error) {
	if wd, ok := weekdayNames[name]; ok {
		return wd, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

func listProviderSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.FindAvailableSlots(r.Context(), providerID, day)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func blockSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}
		var req BlockSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.BlockSlot(r.Context(), slotID, req.Reason, req.BlockedBy)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func unblockSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		slot, err := svc.UnblockSlot(r.Context(), slotID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func deleteSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSlot(r.Context(), slotID); err != nil {
			handleSchedulingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteRecurringSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		recurrenceID, err := uuid.Parse(chi.URLParam(r, "recurrenceID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_recurrence_id", "recurrenceID must be a valid UUID")
			return
		}

		deleted, kept, err := svc.DeleteRecurringSlots(r.Context(), providerID, recurrenceID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DeleteRecurringResponse{Deleted: deleted, Kept: kept})
	}
}
